// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wrappers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	require := require.New(t)

	p := NewPacker(32)
	p.PackByte(0x7f)
	p.PackInt(0xdeadbeef)
	p.PackLong(0x0102030405060708)
	p.PackBytes([]byte("hello"))
	p.PackFixedBytes([]byte{9, 8, 7})
	require.NoError(p.Err)

	u := NewUnpacker(p.Bytes)
	require.Equal(byte(0x7f), u.UnpackByte())
	require.Equal(uint32(0xdeadbeef), u.UnpackInt())
	require.Equal(uint64(0x0102030405060708), u.UnpackLong())
	require.Equal([]byte("hello"), u.UnpackBytes())
	require.Equal([]byte{9, 8, 7}, u.UnpackFixedBytes(3))
	require.NoError(u.Done())
}

func TestUnpackerErrIsSticky(t *testing.T) {
	require := require.New(t)

	u := NewUnpacker([]byte{1})
	require.Equal(byte(1), u.UnpackByte())
	require.Zero(u.UnpackLong())
	require.ErrorIs(u.Err, ErrInsufficientLength)

	// Once failed, every read returns a zero value.
	require.Zero(u.UnpackByte())
	require.Error(u.Done())
}

func TestDoneRejectsTrailingBytes(t *testing.T) {
	require := require.New(t)

	u := NewUnpacker([]byte{1, 2})
	require.Equal(byte(1), u.UnpackByte())
	require.Error(u.Done())
}

func TestUnpackBytesRejectsOversizedLength(t *testing.T) {
	require := require.New(t)

	p := NewPacker(8)
	p.PackInt(1000)
	u := NewUnpacker(p.Bytes)
	require.Nil(u.UnpackBytes())
	require.ErrorIs(u.Err, ErrInsufficientLength)
}

func TestBigEndianLayout(t *testing.T) {
	require := require.New(t)

	p := NewPacker(8)
	p.PackInt(1)
	require.Equal([]byte{0, 0, 0, 1}, p.Bytes)

	p = NewPacker(8)
	p.PackLong(1)
	require.Equal([]byte{0, 0, 0, 0, 0, 0, 0, 1}, p.Bytes)
}
