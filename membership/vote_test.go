// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package membership

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/brb/identity"
)

func newTestKeypair(t *testing.T) *identity.Keypair {
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	return kp
}

func signedVote(kp *identity.Keypair, gen Generation, ballot Ballot) Vote {
	return Vote{
		Gen:    gen,
		Ballot: ballot,
		Voter:  kp.Actor(),
		Sig:    kp.Sign(SigningBytes(ballot, gen)),
	}
}

func TestVoteSupersedesItself(t *testing.T) {
	require := require.New(t)

	kp := newTestKeypair(t)
	vote := signedVote(kp, 1, ProposeBallot(JoinReconfig(kp.Actor())))

	require.True(vote.Supersedes(vote))
}

func TestMergeSupersedesContainedVotes(t *testing.T) {
	require := require.New(t)

	kpA := newTestKeypair(t)
	kpB := newTestKeypair(t)

	voteA := signedVote(kpA, 1, ProposeBallot(JoinReconfig(kpA.Actor())))
	voteB := signedVote(kpB, 1, ProposeBallot(JoinReconfig(kpB.Actor())))

	merge := signedVote(kpA, 1, MergeBallot([]Vote{voteA, voteB}))

	require.True(merge.Supersedes(voteA))
	require.True(merge.Supersedes(voteB))
	require.False(voteA.Supersedes(merge))
	require.False(voteA.Supersedes(voteB))
}

func TestSimplifyDropsSupersededVotes(t *testing.T) {
	require := require.New(t)

	kpA := newTestKeypair(t)
	kpB := newTestKeypair(t)

	voteA := signedVote(kpA, 1, ProposeBallot(JoinReconfig(kpA.Actor())))
	voteB := signedVote(kpB, 1, ProposeBallot(JoinReconfig(kpB.Actor())))
	merge := signedVote(kpA, 1, MergeBallot([]Vote{voteA, voteB}))

	simplified := simplifyVotes([]Vote{voteA, voteB, merge})
	require.Len(simplified, 1)
	require.Equal(merge.ID(), simplified[0].ID())
}

func TestUnpackVotesIsRecursive(t *testing.T) {
	require := require.New(t)

	kpA := newTestKeypair(t)
	kpB := newTestKeypair(t)

	voteA := signedVote(kpA, 1, ProposeBallot(JoinReconfig(kpA.Actor())))
	voteB := signedVote(kpB, 1, ProposeBallot(JoinReconfig(kpB.Actor())))
	merge := signedVote(kpA, 1, MergeBallot([]Vote{voteA, voteB}))
	sm := signedVote(kpB, 1, SuperMajorityBallot([]Vote{merge}))

	unpacked := sm.UnpackVotes()
	require.Len(unpacked, 4)

	pairs := sm.Reconfigs()
	require.Equal(2, pairs.Len())
	require.True(pairs.Contains(VoterReconfig{Voter: kpA.Actor(), Reconfig: JoinReconfig(kpA.Actor())}))
	require.True(pairs.Contains(VoterReconfig{Voter: kpB.Actor(), Reconfig: JoinReconfig(kpB.Actor())}))
}

func TestVoteEncodingRoundTrip(t *testing.T) {
	require := require.New(t)

	kpA := newTestKeypair(t)
	kpB := newTestKeypair(t)

	voteA := signedVote(kpA, 3, ProposeBallot(LeaveReconfig(kpB.Actor())))
	voteB := signedVote(kpB, 3, ProposeBallot(JoinReconfig(kpA.Actor())))
	sm := signedVote(kpA, 3, SuperMajorityBallot([]Vote{voteA, voteB}))

	decoded, err := UnpackVoteBytes(sm.Bytes())
	require.NoError(err)
	require.Equal(sm.ID(), decoded.ID())
	require.Equal(sm.Gen, decoded.Gen)
	require.Equal(sm.Voter, decoded.Voter)
	require.Len(decoded.Ballot.Votes, 2)
}

func TestReconfigSetKeyIsOrderIndependent(t *testing.T) {
	require := require.New(t)

	a := JoinReconfig(newTestKeypair(t).Actor())
	b := LeaveReconfig(newTestKeypair(t).Actor())

	require.Equal(reconfigSetKey([]Reconfig{a, b}), reconfigSetKey([]Reconfig{b, a}))
	require.Equal(reconfigSetKey([]Reconfig{a, a, b}), reconfigSetKey([]Reconfig{b, a}))
	require.NotEqual(reconfigSetKey([]Reconfig{a}), reconfigSetKey([]Reconfig{b}))
}
