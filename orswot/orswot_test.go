// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orswot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/brb/identity"
	"github.com/luxfi/brb/vclock"
)

func newReplica(t *testing.T) (*Orswot, identity.Actor) {
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	return New(kp.Actor()).(*Orswot), kp.Actor()
}

func TestAddThenContains(t *testing.T) {
	require := require.New(t)

	set, actor := newReplica(t)

	op := set.Add(3)
	require.NoError(set.Validate(actor, op))
	set.Apply(op)

	require.True(set.Contains(3))
	require.Equal([]uint64{3}, set.Values())
}

func TestRemoveObservedAdd(t *testing.T) {
	require := require.New(t)

	set, actor := newReplica(t)

	add := set.Add(3)
	set.Apply(add)

	rm := set.Remove(3)
	require.NoError(set.Validate(actor, rm))
	set.Apply(rm)
	require.False(set.Contains(3))
	require.Empty(set.Values())
}

func TestRejectAddWithForeignDot(t *testing.T) {
	require := require.New(t)

	set, _ := newReplica(t)
	other, otherActor := newReplica(t)

	op := other.Add(1)
	require.NoError(set.Validate(otherActor, op))
	require.ErrorIs(set.Validate(set.Actor(), op), ErrAddDotNotFromSource)
}

func TestRejectRemoveOfUnseenAdds(t *testing.T) {
	require := require.New(t)

	setA, actorA := newReplica(t)
	setB, _ := newReplica(t)

	// B observes an add that A has not seen, then removes it.
	add := setB.Add(9)
	setB.Apply(add)
	rm := setB.Remove(9)

	require.ErrorIs(setA.Validate(actorA, rm), ErrRemoveOfUnseenValue)

	// Once A observes the add, the remove is acceptable.
	setA.Apply(add)
	require.NoError(setA.Validate(actorA, rm))
}

func TestRejectMultiValueRemove(t *testing.T) {
	require := require.New(t)

	set, actor := newReplica(t)
	set.Apply(set.Add(1))
	set.Apply(set.Add(2))

	rm := set.Remove(1)
	rm.Values = append(rm.Values, 2)
	require.ErrorIs(set.Validate(actor, rm), ErrRemoveMoreThanOneValue)
}

func TestConcurrentAddSurvivesRemove(t *testing.T) {
	require := require.New(t)

	setA, _ := newReplica(t)
	setB, _ := newReplica(t)

	// A removes based on its observations while B concurrently re-adds.
	addA := setA.Add(5)
	setA.Apply(addA)
	setB.Apply(addA)

	rm := setA.Remove(5)
	concurrentAdd := setB.Add(5)

	setB.Apply(concurrentAdd)
	setB.Apply(rm)

	// The remove only covered A's add; B's concurrent add survives.
	require.True(setB.Contains(5))
}

func TestOpEncodingRoundTrip(t *testing.T) {
	require := require.New(t)

	set, actor := newReplica(t)

	add := set.Add(42)
	decodedAdd, err := ParseOp(add.Bytes())
	require.NoError(err)
	require.Equal(add.Bytes(), decodedAdd.Bytes())
	require.Equal(vclock.Dot{Actor: actor, Counter: 1}, decodedAdd.(*Op).Dot)

	set.Apply(add)
	rm := set.Remove(42)
	decodedRm, err := ParseOp(rm.Bytes())
	require.NoError(err)
	require.Equal(rm.Bytes(), decodedRm.Bytes())
	require.Equal(uint64(1), decodedRm.(*Op).Clock.Get(actor))

	_, err = ParseOp([]byte{0xee})
	require.Error(err)
}
