// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	require := require.New(t)

	kp, err := GenerateKeypair()
	require.NoError(err)

	msg := []byte("payload bytes")
	sig := kp.Sign(msg)
	require.True(kp.Actor().Verify(msg, sig))
	require.False(kp.Actor().Verify([]byte("other bytes"), sig))

	other, err := GenerateKeypair()
	require.NoError(err)
	require.False(other.Actor().Verify(msg, sig))
}

func TestTamperedSignatureFailsVerify(t *testing.T) {
	require := require.New(t)

	kp, err := GenerateKeypair()
	require.NoError(err)

	msg := []byte("payload bytes")
	sig := kp.Sign(msg)
	sig[0] ^= 0xff
	require.False(kp.Actor().Verify(msg, sig))
}

func TestActorFromBytes(t *testing.T) {
	require := require.New(t)

	kp, err := GenerateKeypair()
	require.NoError(err)

	parsed, err := ActorFromBytes(kp.Actor().Bytes())
	require.NoError(err)
	require.Equal(kp.Actor(), parsed)

	_, err = ActorFromBytes([]byte{1, 2, 3})
	require.Error(err)

	_, err = SigFromBytes([]byte{1, 2, 3})
	require.Error(err)
}

func TestSortActorsIsTotalOrder(t *testing.T) {
	require := require.New(t)

	actors := make([]Actor, 0, 10)
	for i := 0; i < 10; i++ {
		kp, err := GenerateKeypair()
		require.NoError(err)
		actors = append(actors, kp.Actor())
	}

	SortActors(actors)
	for i := 1; i < len(actors); i++ {
		require.Negative(actors[i-1].Compare(actors[i]))
	}
}
