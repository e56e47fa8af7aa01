// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package membership

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/luxfi/brb/identity"
	"github.com/luxfi/brb/utils/set"
	"github.com/luxfi/brb/utils/wrappers"
)

// Generation is the epoch counter of the membership configuration. Genesis
// is generation 0; every committed reconfiguration advances it by one.
type Generation uint64

// ReconfigOp distinguishes joins from leaves.
type ReconfigOp uint8

const (
	Join ReconfigOp = iota
	Leave
)

// Reconfig is a proposed change to the voting group.
type Reconfig struct {
	Op    ReconfigOp
	Actor identity.Actor
}

// JoinReconfig returns a Join reconfig for [a].
func JoinReconfig(a identity.Actor) Reconfig {
	return Reconfig{Op: Join, Actor: a}
}

// LeaveReconfig returns a Leave reconfig for [a].
func LeaveReconfig(a identity.Actor) Reconfig {
	return Reconfig{Op: Leave, Actor: a}
}

func (r Reconfig) apply(members set.Set[identity.Actor]) {
	switch r.Op {
	case Join:
		members.Add(r.Actor)
	case Leave:
		members.Remove(r.Actor)
	}
}

// Bytes returns the canonical encoding: a tag byte followed by the actor.
func (r Reconfig) Bytes() []byte {
	p := wrappers.NewPacker(1 + identity.ActorLen)
	r.pack(p)
	return p.Bytes
}

func (r Reconfig) pack(p *wrappers.Packer) {
	p.PackByte(byte(r.Op))
	p.PackFixedBytes(r.Actor.Bytes())
}

func unpackReconfig(u *wrappers.Unpacker) Reconfig {
	op := ReconfigOp(u.UnpackByte())
	actor, _ := identity.ActorFromBytes(u.UnpackFixedBytes(identity.ActorLen))
	return Reconfig{Op: op, Actor: actor}
}

// Compare orders reconfigs by their canonical encoding.
func (r Reconfig) Compare(other Reconfig) int {
	return bytes.Compare(r.Bytes(), other.Bytes())
}

func (r Reconfig) String() string {
	switch r.Op {
	case Join:
		return fmt.Sprintf("J%s", r.Actor)
	default:
		return fmt.Sprintf("L%s", r.Actor)
	}
}

// reconfigSetKey is the canonical encoding of a sorted set of reconfigs. The
// lexicographic order over keys is the total order used to break ties
// between equally supported reconfig sets.
func reconfigSetKey(reconfigs []Reconfig) string {
	sorted := slices.Clone(reconfigs)
	slices.SortFunc(sorted, Reconfig.Compare)
	sorted = slices.CompactFunc(sorted, func(a, b Reconfig) bool { return a == b })

	p := wrappers.NewPacker(len(sorted) * (1 + identity.ActorLen))
	for _, r := range sorted {
		r.pack(p)
	}
	return string(p.Bytes)
}
