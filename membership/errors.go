// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package membership

import "errors"

var (
	// ErrInvalidSignature is returned for a vote whose signature does not
	// verify under the voter's key.
	ErrInvalidSignature = errors.New("vote has an invalid signature")

	// ErrWrongDestination is returned for a packet that was not addressed to
	// this actor.
	ErrWrongDestination = errors.New("packet was not destined for this actor")

	// ErrMembersAtCapacity rejects joins once the group has reached the soft
	// cap.
	ErrMembersAtCapacity = errors.New("cannot accept new members, group is at capacity")

	// ErrJoinRequestForExistingMember rejects a join for an actor that is
	// already a member.
	ErrJoinRequestForExistingMember = errors.New("existing member cannot request to join again")

	// ErrLeaveRequestForNonMember rejects a leave for an actor that is not a
	// member.
	ErrLeaveRequestForNonMember = errors.New("only members can request to leave")

	// ErrVoteNotForNextGeneration rejects votes whose generation is not
	// exactly one past the committed generation.
	ErrVoteNotForNextGeneration = errors.New("vote is not for the next generation")

	// ErrVoteFromNonMember rejects votes from actors outside the voting
	// group.
	ErrVoteFromNonMember = errors.New("vote from non-member")

	// ErrVoterChangedMind rejects a voter advocating a different reconfig
	// mid-round.
	ErrVoterChangedMind = errors.New("voter changed their mind")

	// ErrExistingVoteIncompatibleWithNewVote rejects a vote that neither
	// supersedes nor is superseded by the vote we already hold from that
	// voter.
	ErrExistingVoteIncompatibleWithNewVote = errors.New("existing vote not compatible with new vote")

	// ErrSuperMajorityBallotIsNotSuperMajority rejects a SuperMajority
	// ballot whose unpacked votes do not actually form a supermajority.
	ErrSuperMajorityBallotIsNotSuperMajority = errors.New("super majority ballot is not a super majority")

	// ErrInvalidGeneration is returned when asked for the member set of a
	// generation with no history entry.
	ErrInvalidGeneration = errors.New("invalid generation")

	// ErrInvalidVoteInHistory is returned when a history entry is not a
	// SuperMajority vote.
	ErrInvalidVoteInHistory = errors.New("history contains an invalid vote")

	errUnknownTag = errors.New("unknown tag")
)
