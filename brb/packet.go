// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package brb

import (
	"fmt"

	"github.com/luxfi/brb/datatype"
	"github.com/luxfi/brb/identity"
	"github.com/luxfi/brb/membership"
	"github.com/luxfi/brb/utils/wrappers"
	"github.com/luxfi/brb/vclock"
)

// PayloadKind tags the packet payload variants.
type PayloadKind uint8

const (
	// PayloadAntiEntropy asks the receiver for the history the sender is
	// missing.
	PayloadAntiEntropy PayloadKind = iota
	// PayloadBRB carries one phase of the three-phase broadcast.
	PayloadBRB
	// PayloadMembership carries a membership vote.
	PayloadMembership
)

// Payload is the authenticated content of a packet.
type Payload struct {
	Kind PayloadKind

	// Generation and Delivered describe the sender's progress. Set for
	// PayloadAntiEntropy.
	Generation membership.Generation
	Delivered  vclock.Clock

	// Op is set for PayloadBRB.
	Op Op

	// Vote is set for PayloadMembership.
	Vote membership.Vote
}

// Bytes returns the canonical encoding of the payload. The packet signature
// is computed over it.
func (pl Payload) Bytes() []byte {
	p := wrappers.NewPacker(128)
	pl.pack(p)
	return p.Bytes
}

func (pl Payload) pack(p *wrappers.Packer) {
	p.PackByte(byte(pl.Kind))
	switch pl.Kind {
	case PayloadAntiEntropy:
		p.PackLong(uint64(pl.Generation))
		packClock(p, pl.Delivered)
	case PayloadBRB:
		pl.Op.pack(p)
	case PayloadMembership:
		voteBytes := pl.Vote.Bytes()
		p.PackFixedBytes(voteBytes)
	}
}

func unpackPayload(u *wrappers.Unpacker, parseOp datatype.ParseOp) Payload {
	kind := PayloadKind(u.UnpackByte())
	switch kind {
	case PayloadAntiEntropy:
		gen := membership.Generation(u.UnpackLong())
		return Payload{
			Kind:       kind,
			Generation: gen,
			Delivered:  unpackClock(u),
		}
	case PayloadBRB:
		return Payload{
			Kind: kind,
			Op:   unpackOp(u, parseOp),
		}
	case PayloadMembership:
		vote, err := membership.UnpackVoteBytes(u.UnpackFixedBytes(len(u.Bytes) - u.Offset))
		if err != nil {
			u.Err = err
			return Payload{}
		}
		return Payload{
			Kind: kind,
			Vote: vote,
		}
	default:
		u.Err = fmt.Errorf("%w: unknown payload kind %d", ErrUnknownTag, kind)
		return Payload{}
	}
}

func (pl Payload) String() string {
	switch pl.Kind {
	case PayloadAntiEntropy:
		return fmt.Sprintf("anti-entropy(G%d)", pl.Generation)
	case PayloadBRB:
		return pl.Op.String()
	default:
		return fmt.Sprintf("membership(%s)", pl.Vote)
	}
}

func packClock(p *wrappers.Packer, c vclock.Clock) {
	actors := c.Actors()
	p.PackInt(uint32(len(actors)))
	for _, a := range actors {
		p.PackFixedBytes(a.Bytes())
		p.PackLong(c.Get(a))
	}
}

func unpackClock(u *wrappers.Unpacker) vclock.Clock {
	n := u.UnpackInt()
	c := vclock.New()
	for i := uint32(0); i < n && u.Err == nil; i++ {
		actor, _ := identity.ActorFromBytes(u.UnpackFixedBytes(identity.ActorLen))
		c.Apply(vclock.Dot{Actor: actor, Counter: u.UnpackLong()})
	}
	return c
}

// Packet is the unit the transport moves between processes. The signature is
// by [Source] over the payload's canonical encoding.
type Packet struct {
	Source  identity.Actor
	Dest    identity.Actor
	Payload Payload
	Sig     identity.Sig
}

// Bytes returns the wire encoding of the packet.
func (pkt Packet) Bytes() []byte {
	p := wrappers.NewPacker(256)
	p.PackFixedBytes(pkt.Source.Bytes())
	p.PackFixedBytes(pkt.Dest.Bytes())
	p.PackBytes(pkt.Payload.Bytes())
	p.PackFixedBytes(pkt.Sig.Bytes())
	return p.Bytes
}

// ParsePacket decodes a packet from its wire encoding. Data-type ops inside
// BRB payloads are decoded with [parseOp].
func ParsePacket(b []byte, parseOp datatype.ParseOp) (Packet, error) {
	u := wrappers.NewUnpacker(b)
	source, _ := identity.ActorFromBytes(u.UnpackFixedBytes(identity.ActorLen))
	dest, _ := identity.ActorFromBytes(u.UnpackFixedBytes(identity.ActorLen))
	payloadBytes := u.UnpackBytes()
	sig, _ := identity.SigFromBytes(u.UnpackFixedBytes(identity.SigLen))
	if err := u.Done(); err != nil {
		return Packet{}, err
	}

	pu := wrappers.NewUnpacker(payloadBytes)
	payload := unpackPayload(pu, parseOp)
	if err := pu.Done(); err != nil {
		return Packet{}, err
	}

	return Packet{
		Source:  source,
		Dest:    dest,
		Payload: payload,
		Sig:     sig,
	}, nil
}

func (pkt Packet) String() string {
	return fmt.Sprintf("packet(%s->%s %s)", pkt.Source, pkt.Dest, pkt.Payload)
}
