// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vclock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/brb/identity"
)

func newActor(t *testing.T) identity.Actor {
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	return kp.Actor()
}

func TestIncDoesNotMutate(t *testing.T) {
	require := require.New(t)

	a := newActor(t)
	c := New()

	dot := c.Inc(a)
	require.Equal(uint64(1), dot.Counter)
	require.Equal(uint64(0), c.Get(a))

	// Inc is stable until a dot is applied.
	require.Equal(dot, c.Inc(a))
}

func TestApplyTakesMax(t *testing.T) {
	require := require.New(t)

	a := newActor(t)
	c := New()

	c.Apply(Dot{Actor: a, Counter: 3})
	require.Equal(uint64(3), c.Get(a))

	c.Apply(Dot{Actor: a, Counter: 1})
	require.Equal(uint64(3), c.Get(a))

	c.Apply(Dot{Actor: a, Counter: 7})
	require.Equal(uint64(7), c.Get(a))
	require.Equal(uint64(8), c.Inc(a).Counter)
}

func TestDominates(t *testing.T) {
	require := require.New(t)

	a := newActor(t)
	b := newActor(t)

	c1 := New()
	c1.Apply(Dot{Actor: a, Counter: 2})
	c1.Apply(Dot{Actor: b, Counter: 1})

	c2 := New()
	c2.Apply(Dot{Actor: a, Counter: 1})

	require.True(c1.Dominates(c2))
	require.False(c2.Dominates(c1))
	require.True(c1.Dominates(c1))
	require.True(c1.Dominates(New()))
}

func TestMergeAndClone(t *testing.T) {
	require := require.New(t)

	a := newActor(t)
	b := newActor(t)

	c1 := New()
	c1.Apply(Dot{Actor: a, Counter: 2})

	c2 := c1.Clone()
	c2.Apply(Dot{Actor: b, Counter: 5})
	require.Equal(uint64(0), c1.Get(b))

	c1.Merge(c2)
	require.Equal(uint64(2), c1.Get(a))
	require.Equal(uint64(5), c1.Get(b))
}

func TestActorsIsSorted(t *testing.T) {
	require := require.New(t)

	c := New()
	for i := 0; i < 8; i++ {
		c.Apply(Dot{Actor: newActor(t), Counter: uint64(i + 1)})
	}

	actors := c.Actors()
	require.Len(actors, 8)
	for i := 1; i < len(actors); i++ {
		require.Negative(actors[i-1].Compare(actors[i]))
	}
}
