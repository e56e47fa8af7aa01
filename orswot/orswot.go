// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package orswot implements an observed-remove set lifted into the broadcast
// core. Adds are tagged with the source's dot; removes cite the clock of the
// adds they delete, so a remove can never affect adds it has not observed.
package orswot

import (
	"errors"
	"fmt"
	"slices"

	"github.com/luxfi/brb/datatype"
	"github.com/luxfi/brb/identity"
	"github.com/luxfi/brb/utils/wrappers"
	"github.com/luxfi/brb/vclock"
)

var (
	// ErrAddDotNotFromSource rejects an add tagged with another actor's dot.
	ErrAddDotNotFromSource = errors.New("add op carries a dot from a different actor than the source")

	// ErrRemoveMoreThanOneValue rejects removes of more than a single value.
	ErrRemoveMoreThanOneValue = errors.New("only removes of a single value are supported")

	// ErrRemoveOfUnseenValue rejects a remove citing adds this replica has
	// not yet observed.
	ErrRemoveOfUnseenValue = errors.New("remove op cites adds we have not seen")

	errUnknownOpKind = errors.New("unknown orswot op kind")
)

// OpKind tags add and remove ops.
type OpKind uint8

const (
	OpAdd OpKind = iota
	OpRemove
)

// Op is an orswot mutation.
type Op struct {
	Kind OpKind

	// Dot tags an add with the source's next event.
	Dot vclock.Dot

	// Clock is the observed clock a remove cites.
	Clock vclock.Clock

	// Values are the affected set members.
	Values []uint64
}

// Bytes returns the canonical encoding of the op.
func (o *Op) Bytes() []byte {
	p := wrappers.NewPacker(64)
	p.PackByte(byte(o.Kind))
	switch o.Kind {
	case OpAdd:
		p.PackFixedBytes(o.Dot.Actor.Bytes())
		p.PackLong(o.Dot.Counter)
	case OpRemove:
		actors := o.Clock.Actors()
		p.PackInt(uint32(len(actors)))
		for _, a := range actors {
			p.PackFixedBytes(a.Bytes())
			p.PackLong(o.Clock.Get(a))
		}
	}
	p.PackInt(uint32(len(o.Values)))
	for _, v := range o.Values {
		p.PackLong(v)
	}
	return p.Bytes
}

// ParseOp decodes an op from its canonical encoding.
func ParseOp(b []byte) (datatype.Op, error) {
	u := wrappers.NewUnpacker(b)
	op := &Op{Kind: OpKind(u.UnpackByte())}
	switch op.Kind {
	case OpAdd:
		actor, _ := identity.ActorFromBytes(u.UnpackFixedBytes(identity.ActorLen))
		op.Dot = vclock.Dot{Actor: actor, Counter: u.UnpackLong()}
	case OpRemove:
		n := u.UnpackInt()
		op.Clock = vclock.New()
		for i := uint32(0); i < n && u.Err == nil; i++ {
			actor, _ := identity.ActorFromBytes(u.UnpackFixedBytes(identity.ActorLen))
			op.Clock.Apply(vclock.Dot{Actor: actor, Counter: u.UnpackLong()})
		}
	default:
		return nil, fmt.Errorf("%w: %d", errUnknownOpKind, op.Kind)
	}
	numValues := u.UnpackInt()
	for i := uint32(0); i < numValues && u.Err == nil; i++ {
		op.Values = append(op.Values, u.UnpackLong())
	}
	if err := u.Done(); err != nil {
		return nil, err
	}
	return op, nil
}

// Orswot is one replica of the set.
type Orswot struct {
	actor   identity.Actor
	clock   vclock.Clock
	entries map[uint64]vclock.Clock
}

// New constructs the replica owned by [actor]. It satisfies datatype.New.
func New(actor identity.Actor) datatype.DataType {
	return &Orswot{
		actor:   actor,
		clock:   vclock.New(),
		entries: make(map[uint64]vclock.Clock),
	}
}

// Actor returns the owner of this replica.
func (o *Orswot) Actor() identity.Actor {
	return o.actor
}

// Add builds the op adding [value], tagged with this replica's next dot.
func (o *Orswot) Add(value uint64) *Op {
	return &Op{
		Kind:   OpAdd,
		Dot:    o.clock.Inc(o.actor),
		Values: []uint64{value},
	}
}

// Remove builds the op removing [value], citing the adds observed so far.
func (o *Orswot) Remove(value uint64) *Op {
	return &Op{
		Kind:   OpRemove,
		Clock:  o.clock.Clone(),
		Values: []uint64{value},
	}
}

// Contains reports whether [value] is in the set.
func (o *Orswot) Contains(value uint64) bool {
	_, ok := o.entries[value]
	return ok
}

// Values returns the members of the set in ascending order.
func (o *Orswot) Values() []uint64 {
	out := make([]uint64, 0, len(o.entries))
	for v := range o.entries {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Validate implements datatype.DataType.
func (o *Orswot) Validate(source identity.Actor, dtOp datatype.Op) error {
	op, ok := dtOp.(*Op)
	if !ok {
		return fmt.Errorf("%w: %T", errUnknownOpKind, dtOp)
	}
	switch op.Kind {
	case OpAdd:
		if op.Dot.Actor != source {
			return fmt.Errorf("%w: dot %s, source %s", ErrAddDotNotFromSource, op.Dot, source)
		}
		return nil
	case OpRemove:
		if len(op.Values) != 1 {
			return fmt.Errorf("%w: %d values", ErrRemoveMoreThanOneValue, len(op.Values))
		}
		// This check renders deferred removes unnecessary: out-of-order
		// removes are rejected here instead of buffered.
		if !o.clock.Dominates(op.Clock) {
			return ErrRemoveOfUnseenValue
		}
		return nil
	default:
		return fmt.Errorf("%w: %d", errUnknownOpKind, op.Kind)
	}
}

// Apply implements datatype.DataType.
func (o *Orswot) Apply(dtOp datatype.Op) {
	op, ok := dtOp.(*Op)
	if !ok {
		return
	}
	switch op.Kind {
	case OpAdd:
		for _, value := range op.Values {
			entry, ok := o.entries[value]
			if !ok {
				entry = vclock.New()
				o.entries[value] = entry
			}
			entry.Apply(op.Dot)
		}
		o.clock.Apply(op.Dot)
	case OpRemove:
		for _, value := range op.Values {
			entry, ok := o.entries[value]
			if !ok {
				continue
			}
			for _, a := range entry.Actors() {
				if entry.Get(a) <= op.Clock.Get(a) {
					delete(entry, a)
				}
			}
			if len(entry) == 0 {
				delete(o.entries, value)
			}
		}
	}
}
