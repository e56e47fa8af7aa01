// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wrappers provides the canonical byte encoding substrate. All
// signatures in this module are computed over bytes produced by a Packer, so
// field order and integer endianness here define the wire format.
package wrappers

import "errors"

var (
	ErrInsufficientLength = errors.New("packer has insufficient length for input")
	errBadLength          = errors.New("packer has insufficient length for checkpoint")
)

// Packer packs data into bytes. Integers are big-endian. Errors are sticky:
// after the first failure every call is a no-op.
type Packer struct {
	Bytes []byte
	Err   error
}

// NewPacker returns a new Packer with the given initial capacity.
func NewPacker(size int) *Packer {
	return &Packer{
		Bytes: make([]byte, 0, size),
	}
}

// PackByte packs a single byte.
func (p *Packer) PackByte(b byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, b)
}

// PackInt packs a uint32 as 4 bytes.
func (p *Packer) PackInt(i uint32) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, byte(i>>24), byte(i>>16), byte(i>>8), byte(i))
}

// PackLong packs a uint64 as 8 bytes.
func (p *Packer) PackLong(l uint64) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes,
		byte(l>>56), byte(l>>48), byte(l>>40), byte(l>>32),
		byte(l>>24), byte(l>>16), byte(l>>8), byte(l))
}

// PackFixedBytes packs bytes without a length prefix. The receiver is
// expected to know the length.
func (p *Packer) PackFixedBytes(bytes []byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, bytes...)
}

// PackBytes packs a 4-byte length prefix followed by the bytes.
func (p *Packer) PackBytes(bytes []byte) {
	p.PackInt(uint32(len(bytes)))
	p.PackFixedBytes(bytes)
}

// Unpacker unpacks data previously packed by a Packer. Errors are sticky:
// after the first failure every call returns a zero value.
type Unpacker struct {
	Bytes  []byte
	Offset int
	Err    error
}

// NewUnpacker returns an Unpacker over [bytes].
func NewUnpacker(bytes []byte) *Unpacker {
	return &Unpacker{Bytes: bytes}
}

func (u *Unpacker) checkSpace(n int) bool {
	if u.Err != nil {
		return false
	}
	if u.Offset+n > len(u.Bytes) {
		u.Err = ErrInsufficientLength
		return false
	}
	return true
}

// UnpackByte unpacks a single byte.
func (u *Unpacker) UnpackByte() byte {
	if !u.checkSpace(1) {
		return 0
	}
	b := u.Bytes[u.Offset]
	u.Offset++
	return b
}

// UnpackInt unpacks a uint32.
func (u *Unpacker) UnpackInt() uint32 {
	if !u.checkSpace(4) {
		return 0
	}
	b := u.Bytes[u.Offset:]
	u.Offset += 4
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// UnpackLong unpacks a uint64.
func (u *Unpacker) UnpackLong() uint64 {
	if !u.checkSpace(8) {
		return 0
	}
	b := u.Bytes[u.Offset:]
	u.Offset += 8
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

// UnpackFixedBytes unpacks [n] bytes without a length prefix.
func (u *Unpacker) UnpackFixedBytes(n int) []byte {
	if n < 0 {
		u.Err = errBadLength
		return nil
	}
	if !u.checkSpace(n) {
		return nil
	}
	b := u.Bytes[u.Offset : u.Offset+n]
	u.Offset += n
	return b
}

// UnpackBytes unpacks a 4-byte length prefix followed by that many bytes.
func (u *Unpacker) UnpackBytes() []byte {
	n := u.UnpackInt()
	return u.UnpackFixedBytes(int(n))
}

// Done reports an error if unpacking failed or bytes remain.
func (u *Unpacker) Done() error {
	if u.Err != nil {
		return u.Err
	}
	if u.Offset != len(u.Bytes) {
		return errBadLength
	}
	return nil
}
