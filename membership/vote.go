// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package membership

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"slices"
	"strings"

	"github.com/luxfi/ids"

	"github.com/luxfi/brb/identity"
	"github.com/luxfi/brb/utils/set"
	"github.com/luxfi/brb/utils/wrappers"
)

// BallotKind tags the three voting stances.
type BallotKind uint8

const (
	// BallotPropose advocates a single reconfig.
	BallotPropose BallotKind = iota
	// BallotMerge combines the votes of a detected split so every voter can
	// converge on the union of proposals.
	BallotMerge
	// BallotSuperMajority asserts that the contained votes form a
	// supermajority for one reconfig set.
	BallotSuperMajority
)

// Ballot is a voting stance over reconfigurations. Merge and SuperMajority
// ballots recursively embed the votes they are derived from.
type Ballot struct {
	Kind     BallotKind
	Reconfig Reconfig // set for BallotPropose
	Votes    []Vote   // set for BallotMerge and BallotSuperMajority
}

// ProposeBallot returns a Propose ballot for [r].
func ProposeBallot(r Reconfig) Ballot {
	return Ballot{Kind: BallotPropose, Reconfig: r}
}

// MergeBallot returns a Merge ballot over [votes].
func MergeBallot(votes []Vote) Ballot {
	return Ballot{Kind: BallotMerge, Votes: sortedUniqueVotes(votes)}
}

// SuperMajorityBallot returns a SuperMajority ballot over [votes].
func SuperMajorityBallot(votes []Vote) Ballot {
	return Ballot{Kind: BallotSuperMajority, Votes: sortedUniqueVotes(votes)}
}

// Simplify drops every embedded vote that is strictly superseded by another
// vote in the same ballot.
func (b Ballot) Simplify() Ballot {
	switch b.Kind {
	case BallotPropose:
		return b
	default:
		return Ballot{Kind: b.Kind, Votes: simplifyVotes(b.Votes)}
	}
}

// Bytes returns the canonical encoding of the ballot.
func (b Ballot) Bytes() []byte {
	p := wrappers.NewPacker(64)
	b.pack(p)
	return p.Bytes
}

func (b Ballot) pack(p *wrappers.Packer) {
	p.PackByte(byte(b.Kind))
	switch b.Kind {
	case BallotPropose:
		b.Reconfig.pack(p)
	default:
		p.PackInt(uint32(len(b.Votes)))
		for _, v := range b.Votes {
			v.pack(p)
		}
	}
}

func unpackBallot(u *wrappers.Unpacker) Ballot {
	kind := BallotKind(u.UnpackByte())
	switch kind {
	case BallotPropose:
		return Ballot{Kind: kind, Reconfig: unpackReconfig(u)}
	case BallotMerge, BallotSuperMajority:
		// The count is untrusted; the slice grows only with votes that
		// actually decode.
		n := u.UnpackInt()
		votes := make([]Vote, 0)
		for i := uint32(0); i < n && u.Err == nil; i++ {
			votes = append(votes, unpackVote(u))
		}
		return Ballot{Kind: kind, Votes: votes}
	default:
		u.Err = fmt.Errorf("%w: unknown ballot kind %d", errUnknownTag, kind)
		return Ballot{}
	}
}

func (b Ballot) String() string {
	switch b.Kind {
	case BallotPropose:
		return fmt.Sprintf("P(%s)", b.Reconfig)
	case BallotMerge:
		return fmt.Sprintf("M%s", votesString(b.Votes))
	default:
		return fmt.Sprintf("SM%s", votesString(b.Votes))
	}
}

func votesString(votes []Vote) string {
	parts := make([]string, len(votes))
	for i, v := range votes {
		parts[i] = v.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Vote is one voter's signed stance for one generation. The signature is
// computed over the canonical encoding of (ballot, generation).
type Vote struct {
	Gen    Generation
	Ballot Ballot
	Voter  identity.Actor
	Sig    identity.Sig
}

// Bytes returns the canonical encoding of the vote.
func (v Vote) Bytes() []byte {
	p := wrappers.NewPacker(128)
	v.pack(p)
	return p.Bytes
}

func (v Vote) pack(p *wrappers.Packer) {
	p.PackLong(uint64(v.Gen))
	v.Ballot.pack(p)
	p.PackFixedBytes(v.Voter.Bytes())
	p.PackFixedBytes(v.Sig.Bytes())
}

func unpackVote(u *wrappers.Unpacker) Vote {
	gen := Generation(u.UnpackLong())
	ballot := unpackBallot(u)
	voter, _ := identity.ActorFromBytes(u.UnpackFixedBytes(identity.ActorLen))
	sig, _ := identity.SigFromBytes(u.UnpackFixedBytes(identity.SigLen))
	return Vote{Gen: gen, Ballot: ballot, Voter: voter, Sig: sig}
}

// UnpackVoteBytes decodes a vote from its canonical encoding.
func UnpackVoteBytes(b []byte) (Vote, error) {
	u := wrappers.NewUnpacker(b)
	v := unpackVote(u)
	if err := u.Done(); err != nil {
		return Vote{}, err
	}
	return v, nil
}

// ID returns the content hash identifying this vote.
func (v Vote) ID() ids.ID {
	return ids.ID(sha256.Sum256(v.Bytes()))
}

// SigningBytes returns the bytes the vote signature is computed over.
func SigningBytes(ballot Ballot, gen Generation) []byte {
	p := wrappers.NewPacker(64)
	ballot.pack(p)
	p.PackLong(uint64(gen))
	return p.Bytes
}

// Compare orders votes by their canonical encoding.
func (v Vote) Compare(other Vote) int {
	return bytes.Compare(v.Bytes(), other.Bytes())
}

// IsSuperMajorityBallot reports whether this vote casts a SuperMajority
// ballot.
func (v Vote) IsSuperMajorityBallot() bool {
	return v.Ballot.Kind == BallotSuperMajority
}

// Supersedes reports whether this vote covers [other]: either they are the
// same vote, or [other] is transitively embedded in this vote's ballot.
func (v Vote) Supersedes(other Vote) bool {
	if v.ID() == other.ID() {
		return true
	}
	switch v.Ballot.Kind {
	case BallotPropose:
		return false
	default:
		for _, inner := range v.Ballot.Votes {
			if inner.Supersedes(other) {
				return true
			}
		}
		return false
	}
}

// UnpackVotes returns this vote and every vote transitively embedded in its
// ballot, deduplicated.
func (v Vote) UnpackVotes() []Vote {
	seen := set.NewSet[ids.ID](1)
	var out []Vote
	v.unpackInto(seen, &out)
	return out
}

func (v Vote) unpackInto(seen set.Set[ids.ID], out *[]Vote) {
	id := v.ID()
	if seen.Contains(id) {
		return
	}
	seen.Add(id)
	*out = append(*out, v)
	for _, inner := range v.Ballot.Votes {
		inner.unpackInto(seen, out)
	}
}

// VoterReconfig is one voter's advocated reconfig.
type VoterReconfig struct {
	Voter    identity.Actor
	Reconfig Reconfig
}

// Reconfigs returns the set of (voter, reconfig) pairs this vote advocates.
func (v Vote) Reconfigs() set.Set[VoterReconfig] {
	out := set.NewSet[VoterReconfig](1)
	v.reconfigsInto(out)
	return out
}

func (v Vote) reconfigsInto(out set.Set[VoterReconfig]) {
	switch v.Ballot.Kind {
	case BallotPropose:
		out.Add(VoterReconfig{Voter: v.Voter, Reconfig: v.Ballot.Reconfig})
	default:
		for _, inner := range v.Ballot.Votes {
			inner.reconfigsInto(out)
		}
	}
}

// reconfigSet returns just the reconfigs this vote advocates, voters
// stripped.
func (v Vote) reconfigSet() []Reconfig {
	pairs := v.Reconfigs()
	out := make([]Reconfig, 0, pairs.Len())
	for pair := range pairs {
		out = append(out, pair.Reconfig)
	}
	return out
}

func (v Vote) String() string {
	return fmt.Sprintf("%s@%sG%d", v.Ballot, v.Voter, v.Gen)
}

// VoteMsg is a vote addressed to one member.
type VoteMsg struct {
	Vote Vote
	Dest identity.Actor
}

// sortedUniqueVotes returns [votes] sorted by canonical encoding with
// duplicates removed.
func sortedUniqueVotes(votes []Vote) []Vote {
	out := slices.Clone(votes)
	slices.SortFunc(out, Vote.Compare)
	return slices.CompactFunc(out, func(a, b Vote) bool { return a.ID() == b.ID() })
}

// simplifyVotes drops votes strictly superseded by another vote in the set.
func simplifyVotes(votes []Vote) []Vote {
	votes = sortedUniqueVotes(votes)
	out := make([]Vote, 0, len(votes))
	for i, v := range votes {
		superseded := false
		for j, other := range votes {
			if i != j && other.Supersedes(v) && !v.Supersedes(other) {
				superseded = true
				break
			}
		}
		if !superseded {
			out = append(out, v)
		}
	}
	return out
}
