// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vclock implements per-actor version clocks and dots, the sequencing
// primitive used for per-source FIFO delivery.
package vclock

import (
	"fmt"

	"github.com/luxfi/brb/identity"
)

// Dot is a single event in an actor's history: the [Counter]-th message
// issued by [Actor]. Counters start at 1.
type Dot struct {
	Actor   identity.Actor
	Counter uint64
}

func (d Dot) String() string {
	return fmt.Sprintf("%s.%d", d.Actor, d.Counter)
}

// Clock maps each actor to the highest counter observed for it. Absent
// actors are at counter 0.
type Clock map[identity.Actor]uint64

// New returns an empty clock.
func New() Clock {
	return make(Clock)
}

// Get returns the counter recorded for [a], zero if absent.
func (c Clock) Get(a identity.Actor) uint64 {
	return c[a]
}

// Inc returns the dot that would follow [a]'s current counter. The clock is
// not modified.
func (c Clock) Inc(a identity.Actor) Dot {
	return Dot{
		Actor:   a,
		Counter: c[a] + 1,
	}
}

// Apply merges [d] into the clock, taking the pointwise max.
func (c Clock) Apply(d Dot) {
	if d.Counter > c[d.Actor] {
		c[d.Actor] = d.Counter
	}
}

// Merge applies every entry of [other] into the clock.
func (c Clock) Merge(other Clock) {
	for a, counter := range other {
		if counter > c[a] {
			c[a] = counter
		}
	}
}

// Clone returns a copy of the clock.
func (c Clock) Clone() Clock {
	out := make(Clock, len(c))
	for a, counter := range c {
		out[a] = counter
	}
	return out
}

// Dominates reports whether the clock is pointwise >= [other].
func (c Clock) Dominates(other Clock) bool {
	for a, counter := range other {
		if c[a] < counter {
			return false
		}
	}
	return true
}

// Actors returns the actors with a non-zero counter, in actor order.
func (c Clock) Actors() []identity.Actor {
	actors := make([]identity.Actor, 0, len(c))
	for a := range c {
		actors = append(actors, a)
	}
	identity.SortActors(actors)
	return actors
}
