// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package membership implements generational supermajority agreement over
// join/leave reconfigurations of a voting group.
//
// Each round agrees on the reconfig set carried from one generation to the
// next. A round terminates when a supermajority of members have broadcast
// SuperMajority ballots for the same reconfig set (SM/SM); the winning vote
// is archived in the generation history so future members can be onboarded
// from it.
package membership

import (
	"fmt"
	"slices"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/luxfi/brb/config"
	"github.com/luxfi/brb/identity"
	"github.com/luxfi/brb/utils/bag"
	"github.com/luxfi/brb/utils/set"
)

// State is one process's view of the membership protocol. Operations must be
// serialized by the caller; State performs no internal locking.
type State struct {
	keypair *identity.Keypair
	params  config.Parameters
	log     log.Logger

	// Gen is the committed generation.
	Gen Generation
	// PendingGen is the generation the current round is voting for. Equal to
	// Gen when no round is in progress.
	PendingGen Generation

	// ForcedReconfigs holds reconfigs injected without voting, keyed by the
	// generation they were injected at. Bootstrap only.
	ForcedReconfigs map[Generation][]Reconfig

	// History archives, per committed generation, the SuperMajority vote
	// that carried it.
	History map[Generation]Vote

	// Votes holds the latest vote seen from each voter in the current round.
	Votes map[identity.Actor]Vote

	// membersCache memoizes Members reconstructions. Invalidated whenever
	// History or ForcedReconfigs change.
	membersCache map[Generation]set.Set[identity.Actor]
}

// NewState creates the membership state of the process identified by [kp].
func NewState(kp *identity.Keypair, params config.Parameters, logger log.Logger) *State {
	return &State{
		keypair:         kp,
		params:          params,
		log:             logger,
		ForcedReconfigs: make(map[Generation][]Reconfig),
		History:         make(map[Generation]Vote),
		Votes:           make(map[identity.Actor]Vote),
		membersCache:    make(map[Generation]set.Set[identity.Actor]),
	}
}

// Actor returns this process's identity.
func (s *State) Actor() identity.Actor {
	return s.keypair.Actor()
}

// ForceJoin adds [actor] to the group at the current generation without a
// vote. Only valid during bootstrap or in tests.
func (s *State) ForceJoin(actor identity.Actor) {
	s.forceReconfig(JoinReconfig(actor), LeaveReconfig(actor))
}

// ForceLeave removes [actor] from the group at the current generation
// without a vote. Only valid during bootstrap or in tests.
func (s *State) ForceLeave(actor identity.Actor) {
	s.forceReconfig(LeaveReconfig(actor), JoinReconfig(actor))
}

func (s *State) forceReconfig(insert, remove Reconfig) {
	forced := s.ForcedReconfigs[s.Gen]
	forced = slices.DeleteFunc(forced, func(r Reconfig) bool {
		return r == remove || r == insert
	})
	forced = append(forced, insert)
	slices.SortFunc(forced, Reconfig.Compare)
	s.ForcedReconfigs[s.Gen] = forced
	clear(s.membersCache)
}

// Members reconstructs the voting group at [gen] by replaying forced
// reconfigs and the generation history from genesis.
func (s *State) Members(gen Generation) (set.Set[identity.Actor], error) {
	if cached, ok := s.membersCache[gen]; ok {
		return cached.Clone(), nil
	}

	members := set.NewSet[identity.Actor](s.params.SoftMaxMembers)
	for _, r := range s.ForcedReconfigs[0] {
		r.apply(members)
	}

	if gen == 0 {
		s.membersCache[gen] = members.Clone()
		return members, nil
	}

	histGens := make([]Generation, 0, len(s.History))
	for g := range s.History {
		histGens = append(histGens, g)
	}
	slices.Sort(histGens)

	for _, histGen := range histGens {
		for _, r := range s.ForcedReconfigs[histGen] {
			r.apply(members)
		}

		vote := s.History[histGen]
		if vote.Ballot.Kind != BallotSuperMajority {
			return nil, fmt.Errorf("%w: %s", ErrInvalidVoteInHistory, vote)
		}

		for _, r := range resolveVotes(vote.Ballot.Votes) {
			r.apply(members)
		}

		if histGen == gen {
			s.membersCache[gen] = members.Clone()
			return members, nil
		}
	}

	return nil, fmt.Errorf("%w: %d", ErrInvalidGeneration, gen)
}

// Propose starts (or joins) a round for the next generation advocating
// [reconfig], returning the vote messages to broadcast.
func (s *State) Propose(reconfig Reconfig) ([]VoteMsg, error) {
	vote, err := s.buildVote(s.Gen+1, ProposeBallot(reconfig))
	if err != nil {
		return nil, err
	}
	if err := s.validateVote(vote); err != nil {
		return nil, err
	}
	return s.castVote(vote)
}

// AntiEntropy returns, for a peer whose committed generation is [fromGen],
// every archived SuperMajority vote they are missing plus every vote pending
// in the current round.
func (s *State) AntiEntropy(fromGen Generation, peer identity.Actor) []VoteMsg {
	s.log.Debug("membership anti-entropy",
		zap.Stringer("peer", peer),
		zap.Uint64("fromGen", uint64(fromGen)),
	)

	histGens := make([]Generation, 0, len(s.History))
	for g := range s.History {
		if g > fromGen {
			histGens = append(histGens, g)
		}
	}
	slices.Sort(histGens)

	msgs := make([]VoteMsg, 0, len(histGens)+len(s.Votes))
	for _, g := range histGens {
		msgs = append(msgs, VoteMsg{Vote: s.History[g], Dest: peer})
	}
	for _, voter := range s.pendingVoters() {
		msgs = append(msgs, VoteMsg{Vote: s.Votes[voter], Dest: peer})
	}
	return msgs
}

// HandleVote runs the vote state machine over an incoming vote. It returns
// the vote messages this process must broadcast in response, if any.
func (s *State) HandleVote(vote Vote) ([]VoteMsg, error) {
	if err := s.validateVote(vote); err != nil {
		return nil, err
	}

	s.logVote(vote)
	s.PendingGen = vote.Gen

	ourActor := s.Actor()
	allVotes := s.currentVotes()

	splitVote, err := s.isSplitVote(allVotes)
	if err != nil {
		return nil, err
	}
	if splitVote {
		s.log.Debug("detected split vote", zap.Uint64("pendingGen", uint64(s.PendingGen)))

		mergeVote, err := s.buildVote(s.PendingGen, MergeBallot(allVotes).Simplify())
		if err != nil {
			return nil, err
		}

		if ourVote, voted := s.Votes[ourActor]; voted {
			votedFor := reconfigSetKey(ourVote.reconfigSet())
			wouldVoteFor := reconfigSetKey(mergeVote.reconfigSet())
			if votedFor == wouldVoteFor {
				// Our standing vote already covers the merge; wait for more
				// votes instead of churning.
				return nil, nil
			}
		}

		return s.castVote(mergeVote)
	}

	smOverSM, err := s.isSuperMajorityOverSuperMajorities(allVotes)
	if err != nil {
		return nil, err
	}
	if smOverSM {
		s.log.Debug("detected super majority over super majorities",
			zap.Uint64("pendingGen", uint64(s.PendingGen)),
		)

		members, err := s.Members(s.Gen)
		if err != nil {
			return nil, err
		}

		var smVote *Vote
		if members.Contains(ourActor) {
			// We were a member during this round: archive the votes we have
			// seen as our own signed history entry.
			archived, err := s.buildVote(s.PendingGen, SuperMajorityBallot(allVotes).Simplify())
			if err != nil {
				return nil, err
			}
			smVote = &archived
		} else {
			// We were not a member; a member sent us this vote to onboard us.
			// Only archive it if it is itself an SM/SM certificate.
			certified, err := s.isSuperMajorityOverSuperMajorities(vote.UnpackVotes())
			if err != nil {
				return nil, err
			}
			if certified {
				smVote = &vote
			}
		}

		if smVote != nil {
			s.History[s.PendingGen] = *smVote
			clear(s.Votes)
			clear(s.membersCache)
			s.Gen = s.PendingGen
			s.log.Info("committed generation",
				zap.Uint64("gen", uint64(s.Gen)),
			)
		}
		return nil, nil
	}

	superMajority, err := s.isSuperMajority(allVotes)
	if err != nil {
		return nil, err
	}
	if superMajority {
		s.log.Debug("detected super majority", zap.Uint64("pendingGen", uint64(s.PendingGen)))

		if ourVote, voted := s.Votes[ourActor]; voted {
			// The network may have formed a supermajority without our vote.
			// If we committed to reconfigs outside it we cannot switch; the
			// round resolves later through split-vote detection or SM/SM.
			winning := set.Of(resolveVotes(allVotes)...)
			for _, r := range resolveVotes(ourVote.UnpackVotes()) {
				if !winning.Contains(r) {
					return nil, nil
				}
			}
			if ourVote.IsSuperMajorityBallot() {
				return nil, nil
			}
		}

		smVote, err := s.buildVote(s.PendingGen, SuperMajorityBallot(allVotes).Simplify())
		if err != nil {
			return nil, err
		}
		return s.castVote(smVote)
	}

	// Not enough votes to act. Contribute our own vote if we have not yet.
	if _, voted := s.Votes[ourActor]; !voted {
		ourVote, err := s.buildVote(s.PendingGen, vote.Ballot)
		if err != nil {
			return nil, err
		}
		return s.castVote(ourVote)
	}

	return nil, nil
}

func (s *State) buildVote(gen Generation, ballot Ballot) (Vote, error) {
	return Vote{
		Gen:    gen,
		Ballot: ballot,
		Voter:  s.Actor(),
		Sig:    s.keypair.Sign(SigningBytes(ballot, gen)),
	}, nil
}

func (s *State) castVote(vote Vote) ([]VoteMsg, error) {
	s.PendingGen = vote.Gen
	s.logVote(vote)

	members, err := s.Members(s.Gen)
	if err != nil {
		return nil, err
	}
	dests := members.List()
	identity.SortActors(dests)

	msgs := make([]VoteMsg, 0, len(dests))
	for _, dest := range dests {
		msgs = append(msgs, VoteMsg{Vote: vote, Dest: dest})
	}
	return msgs, nil
}

// logVote merges every vote unpacked from [vote] into the round state,
// keeping the superseding vote per voter.
func (s *State) logVote(vote Vote) {
	for _, v := range vote.UnpackVotes() {
		existing, ok := s.Votes[v.Voter]
		if !ok || v.Supersedes(existing) {
			s.Votes[v.Voter] = v
		}
	}
}

func (s *State) currentVotes() []Vote {
	votes := make([]Vote, 0, len(s.Votes))
	for _, voter := range s.pendingVoters() {
		votes = append(votes, s.Votes[voter])
	}
	return votes
}

func (s *State) pendingVoters() []identity.Actor {
	voters := make([]identity.Actor, 0, len(s.Votes))
	for voter := range s.Votes {
		voters = append(voters, voter)
	}
	identity.SortActors(voters)
	return voters
}

// countVotes tallies, per advocated reconfig set, how many of [votes]
// advocate exactly that set.
func countVotes(votes []Vote) (bag.Bag[string], map[string][]Reconfig) {
	counts := bag.New[string]()
	sets := make(map[string][]Reconfig)
	for _, v := range votes {
		reconfigs := v.reconfigSet()
		key := reconfigSetKey(reconfigs)
		counts.Add(key)
		if _, ok := sets[key]; !ok {
			slices.SortFunc(reconfigs, Reconfig.Compare)
			sets[key] = slices.CompactFunc(reconfigs, func(a, b Reconfig) bool { return a == b })
		}
	}
	return counts, sets
}

// resolveVotes returns the reconfig set with the most votes, breaking ties
// by the total order over reconfig sets.
func resolveVotes(votes []Vote) []Reconfig {
	counts, sets := countVotes(votes)
	winner, _ := counts.Mode(func(a, b string) bool { return a < b })
	return sets[winner]
}

// isSplitVote reports whether no reconfig set can still reach supermajority
// even if every outstanding voter sides with the current plurality.
func (s *State) isSplitVote(votes []Vote) (bool, error) {
	members, err := s.Members(s.Gen)
	if err != nil {
		return false, err
	}
	counts, _ := countVotes(votes)
	received := counts.Len()
	most := counts.Max()
	n := members.Len()
	outstanding := n - received
	predicted := most + outstanding
	return 3*received > 2*n && 3*predicted <= 2*n, nil
}

// isSuperMajority reports whether the plurality reconfig set has
// supermajority support.
func (s *State) isSuperMajority(votes []Vote) (bool, error) {
	members, err := s.Members(s.Gen)
	if err != nil {
		return false, err
	}
	counts, _ := countVotes(votes)
	return 3*counts.Max() > 2*members.Len(), nil
}

// isSuperMajorityOverSuperMajorities reports whether a supermajority of
// members have cast SuperMajority ballots for the winning reconfig set.
func (s *State) isSuperMajorityOverSuperMajorities(votes []Vote) (bool, error) {
	members, err := s.Members(s.Gen)
	if err != nil {
		return false, err
	}
	winning := reconfigSetKey(resolveVotes(votes))

	count := 0
	for _, v := range votes {
		if v.IsSuperMajorityBallot() && reconfigSetKey(v.reconfigSet()) == winning {
			count++
		}
	}
	return 3*count > 2*members.Len(), nil
}

func (s *State) validateVote(vote Vote) error {
	members, err := s.Members(s.Gen)
	if err != nil {
		return err
	}

	switch {
	case !vote.Voter.Verify(SigningBytes(vote.Ballot, vote.Gen), vote.Sig):
		return ErrInvalidSignature
	case vote.Gen != s.Gen+1:
		return fmt.Errorf("%w: vote gen %d != %d + 1",
			ErrVoteNotForNextGeneration, vote.Gen, s.Gen)
	case !members.Contains(vote.Voter):
		return fmt.Errorf("%w: %s", ErrVoteFromNonMember, vote.Voter)
	}

	if existing, ok := s.Votes[vote.Voter]; ok {
		if !vote.Supersedes(existing) && !existing.Supersedes(vote) {
			return fmt.Errorf("%w: existing %s", ErrExistingVoteIncompatibleWithNewVote, existing)
		}
	}

	if s.PendingGen == s.Gen {
		// Starting a round for the next generation.
		return s.validateBallot(vote.Gen, vote.Ballot)
	}

	// Round in progress: no voter may switch the reconfig they advocate.
	pairs := set.NewSet[VoterReconfig](len(s.Votes))
	for _, v := range s.Votes {
		pairs.Union(v.Reconfigs())
	}
	pairs.Union(vote.Reconfigs())

	voters := set.NewSet[identity.Actor](pairs.Len())
	for pair := range pairs {
		voters.Add(pair.Voter)
	}
	if voters.Len() != pairs.Len() {
		return ErrVoterChangedMind
	}
	return s.validateBallot(vote.Gen, vote.Ballot)
}

func (s *State) validateBallot(gen Generation, ballot Ballot) error {
	switch ballot.Kind {
	case BallotPropose:
		return s.validateReconfig(ballot.Reconfig)
	case BallotMerge:
		for _, vote := range ballot.Votes {
			if vote.Gen != gen {
				return fmt.Errorf("%w: inner vote gen %d != %d",
					ErrVoteNotForNextGeneration, vote.Gen, gen)
			}
			if err := s.validateVote(vote); err != nil {
				return err
			}
		}
		return nil
	default:
		var unpacked []Vote
		for _, vote := range ballot.Votes {
			unpacked = append(unpacked, vote.UnpackVotes()...)
		}
		superMajority, err := s.isSuperMajority(sortedUniqueVotes(unpacked))
		if err != nil {
			return err
		}
		if !superMajority {
			return fmt.Errorf("%w: %s", ErrSuperMajorityBallotIsNotSuperMajority, ballot)
		}
		for _, vote := range ballot.Votes {
			if vote.Gen != gen {
				return fmt.Errorf("%w: inner vote gen %d != %d",
					ErrVoteNotForNextGeneration, vote.Gen, gen)
			}
			if err := s.validateVote(vote); err != nil {
				return err
			}
		}
		return nil
	}
}

func (s *State) validateReconfig(reconfig Reconfig) error {
	members, err := s.Members(s.Gen)
	if err != nil {
		return err
	}

	switch reconfig.Op {
	case Join:
		if members.Contains(reconfig.Actor) {
			return fmt.Errorf("%w: %s", ErrJoinRequestForExistingMember, reconfig.Actor)
		}
		if members.Len() >= s.params.SoftMaxMembers {
			return fmt.Errorf("%w: %d members", ErrMembersAtCapacity, members.Len())
		}
		return nil
	default:
		if !members.Contains(reconfig.Actor) {
			return fmt.Errorf("%w: %s", ErrLeaveRequestForNonMember, reconfig.Actor)
		}
		return nil
	}
}
