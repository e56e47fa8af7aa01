// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package brb implements deterministic byzantine reliable broadcast over an
// operation-based data type.
//
// A source broadcasts a RequestValidation for its next msg; every member
// validates it against the data type and returns a SignedValidated
// endorsement; once the source holds a supermajority of endorsements it
// broadcasts a ProofOfAgreement, and receivers verify the proof and deliver
// the op. Msgs are bound to the membership generation they were issued in
// and are delivered in per-source FIFO order.
package brb

import (
	"fmt"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luxfi/brb/config"
	"github.com/luxfi/brb/datatype"
	"github.com/luxfi/brb/identity"
	"github.com/luxfi/brb/membership"
	"github.com/luxfi/brb/utils/set"
	"github.com/luxfi/brb/vclock"
)

// ProvenMsg is a delivered msg together with the proof that carried it.
type ProvenMsg struct {
	Msg   Msg
	Proof map[identity.Actor]identity.Sig
}

// Process is one replica of the broadcast core. Operations must be
// serialized by the caller; a Process performs no internal locking and never
// blocks. Every operation either completes its state change and returns the
// packets to dispatch, or returns an error having changed nothing.
type Process struct {
	keypair *identity.Keypair

	// Membership is the generational membership engine msgs are bound to.
	Membership *membership.State

	// received tracks, per source, the highest dot acknowledged in a
	// RequestValidation.
	received vclock.Clock

	// delivered tracks, per source, the highest dot applied to the data
	// type. Pointwise <= received at all times.
	delivered vclock.Clock

	// pendingProof collects endorsements for msgs this process originated,
	// keyed by msg content hash.
	pendingProof map[ids.ID]map[identity.Actor]identity.Sig

	// historyFromSource archives delivered msgs and their proofs per
	// source, in delivery order. Used to onboard peers via anti-entropy.
	historyFromSource map[identity.Actor][]ProvenMsg

	// dt is the replicated data type agreement is formed over.
	dt datatype.DataType

	log     log.Logger
	metrics *processMetrics
}

// New creates a process identified by [kp] replicating the data type
// constructed by [newDT].
func New(
	kp *identity.Keypair,
	newDT datatype.New,
	params config.Parameters,
	logger log.Logger,
	reg prometheus.Registerer,
) (*Process, error) {
	if err := params.Valid(); err != nil {
		return nil, err
	}
	metrics, err := newProcessMetrics(reg)
	if err != nil {
		return nil, err
	}
	return &Process{
		keypair:           kp,
		Membership:        membership.NewState(kp, params, logger),
		received:          vclock.New(),
		delivered:         vclock.New(),
		pendingProof:      make(map[ids.ID]map[identity.Actor]identity.Sig),
		historyFromSource: make(map[identity.Actor][]ProvenMsg),
		dt:                newDT(kp.Actor()),
		log:               logger,
		metrics:           metrics,
	}, nil
}

// Actor returns this process's identity.
func (p *Process) Actor() identity.Actor {
	return p.keypair.Actor()
}

// DataType returns the replicated data type instance.
func (p *Process) DataType() datatype.DataType {
	return p.dt
}

// Received returns a copy of the received clock.
func (p *Process) Received() vclock.Clock {
	return p.received.Clone()
}

// Delivered returns a copy of the delivered clock.
func (p *Process) Delivered() vclock.Clock {
	return p.delivered.Clone()
}

// History returns the delivered msgs from [source], in delivery order.
func (p *Process) History(source identity.Actor) []ProvenMsg {
	return p.historyFromSource[source]
}

// HistorySources returns every source with delivered history, in actor
// order.
func (p *Process) HistorySources() []identity.Actor {
	sources := make([]identity.Actor, 0, len(p.historyFromSource))
	for a := range p.historyFromSource {
		sources = append(sources, a)
	}
	identity.SortActors(sources)
	return sources
}

// Peers returns the voting group at the current generation.
func (p *Process) Peers() (set.Set[identity.Actor], error) {
	return p.Membership.Members(p.Membership.Gen)
}

// ForceJoin adds [peer] to the group without a vote. Bootstrap only.
func (p *Process) ForceJoin(peer identity.Actor) {
	p.log.Info("forcing peer to join",
		zap.Stringer("actor", p.Actor()),
		zap.Stringer("peer", peer),
	)
	p.Membership.ForceJoin(peer)
}

// ForceLeave removes [peer] from the group without a vote. Bootstrap only.
func (p *Process) ForceLeave(peer identity.Actor) {
	p.log.Info("forcing peer to leave",
		zap.Stringer("actor", p.Actor()),
		zap.Stringer("peer", peer),
	)
	p.Membership.ForceLeave(peer)
}

// RequestMembership proposes that [actor] join the voting group.
func (p *Process) RequestMembership(actor identity.Actor) ([]Packet, error) {
	voteMsgs, err := p.Membership.Propose(membership.JoinReconfig(actor))
	if err != nil {
		return nil, err
	}
	return p.packVoteMsgs(voteMsgs)
}

// KillPeer proposes that [actor] leave the voting group.
func (p *Process) KillPeer(actor identity.Actor) ([]Packet, error) {
	voteMsgs, err := p.Membership.Propose(membership.LeaveReconfig(actor))
	if err != nil {
		return nil, err
	}
	return p.packVoteMsgs(voteMsgs)
}

// AntiEntropy builds the packet that asks [peer] for everything this
// process is missing.
func (p *Process) AntiEntropy(peer identity.Actor) (Packet, error) {
	return p.send(peer, Payload{
		Kind:       PayloadAntiEntropy,
		Generation: p.Membership.Gen,
		Delivered:  p.delivered.Clone(),
	})
}

// ExecOp starts the three-phase broadcast of [op], returning the
// RequestValidation packets to dispatch.
//
// The dot is taken from the received clock rather than the delivered clock
// so this process can have several proposals in flight; peers still
// serialize them at delivery.
func (p *Process) ExecOp(op datatype.Op) ([]Packet, error) {
	msg := Msg{
		Gen: p.Membership.Gen,
		Op:  op,
		Dot: p.received.Inc(p.Actor()),
	}

	p.log.Info("initiating agreement",
		zap.Stringer("actor", p.Actor()),
		zap.Stringer("msg", msg),
	)

	peers, err := p.Peers()
	if err != nil {
		return nil, err
	}
	return p.broadcast(Payload{
		Kind: PayloadBRB,
		Op:   Op{Kind: RequestValidation, Msg: msg},
	}, peers)
}

// HandlePacket validates and processes one inbound packet, returning the
// packets to dispatch in response. On error no state was changed.
func (p *Process) HandlePacket(packet Packet) ([]Packet, error) {
	start := time.Now()
	p.metrics.packetsHandled.Inc()

	p.log.Debug("handling packet",
		zap.Stringer("source", packet.Source),
		zap.Stringer("actor", p.Actor()),
		zap.Stringer("payload", packet.Payload),
	)

	out, err := p.handlePacket(packet)
	if err != nil {
		p.metrics.packetsInvalid.Inc()
	}
	p.metrics.generation.Set(float64(p.Membership.Gen))
	p.metrics.handleDuration.Observe(float64(time.Since(start)))
	return out, err
}

func (p *Process) handlePacket(packet Packet) ([]Packet, error) {
	if err := p.validatePacket(packet); err != nil {
		return nil, err
	}
	return p.processPacket(packet)
}

func (p *Process) validatePacket(packet Packet) error {
	if packet.Dest != p.Actor() {
		return fmt.Errorf("%w: %s != %s",
			membership.ErrWrongDestination, packet.Dest, p.Actor())
	}
	if !packet.Source.Verify(packet.Payload.Bytes(), packet.Sig) {
		return ErrInvalidSignature
	}
	return p.validatePayload(packet.Source, packet.Payload)
}

func (p *Process) validatePayload(from identity.Actor, payload Payload) error {
	switch payload.Kind {
	case PayloadAntiEntropy:
		return nil
	case PayloadBRB:
		return p.validateOp(from, payload.Op)
	default:
		// Membership votes are validated inside Membership.HandleVote.
		return nil
	}
}

func (p *Process) validateOp(from identity.Actor, op Op) error {
	switch op.Kind {
	case RequestValidation:
		msg := op.Msg
		if from != msg.Dot.Actor {
			return fmt.Errorf("%w: %s sent dot %s", ErrPacketSourceIsNotDot, from, msg.Dot)
		}
		if msg.Dot != p.received.Inc(from) {
			return fmt.Errorf("%w: got %s, expected %s",
				ErrMsgDotNotTheNextDot, msg.Dot, p.received.Inc(from))
		}
		if msg.Dot != p.delivered.Inc(from) {
			return fmt.Errorf("%w: got %s, next to deliver %s",
				ErrSourceAlreadyHasPendingMsg, msg.Dot, p.delivered.Inc(from))
		}
		if msg.Gen != p.Membership.Gen {
			return fmt.Errorf("%w: msg gen %d, ours %d",
				ErrMessageFromDifferentGeneration, msg.Gen, p.Membership.Gen)
		}
		members, err := p.Peers()
		if err != nil {
			return err
		}
		if !members.Contains(from) {
			return fmt.Errorf("%w: %s", ErrSourceIsNotVotingMember, from)
		}
		if err := p.dt.Validate(from, msg.Op); err != nil {
			return fmt.Errorf("%w: %w", ErrDataTypeFailedValidation, err)
		}
		return nil

	case SignedValidated:
		if !from.Verify(op.Msg.Bytes(), op.Sig) {
			return ErrInvalidSignature
		}
		if op.Msg.Dot.Actor != p.Actor() {
			return ErrSignedValidatedForMsgWeDidNotRequest
		}
		return nil

	case ProofOfAgreement:
		msg := op.Msg
		if msg.Dot != p.delivered.Inc(msg.Dot.Actor) {
			return fmt.Errorf("%w: got %s, expected %s",
				ErrMsgDotNotNextDotToBeDelivered, msg.Dot, p.delivered.Inc(msg.Dot.Actor))
		}
		msgMembers, err := p.Membership.Members(msg.Gen)
		if err != nil {
			return err
		}
		quorum, err := p.quorum(len(op.Proof), msg.Gen)
		if err != nil {
			return err
		}
		if !quorum {
			return ErrNotEnoughSignaturesToFormQuorum
		}
		msgBytes := msg.Bytes()
		for signer := range op.Proof {
			if !msgMembers.Contains(signer) {
				return fmt.Errorf("%w: %s", ErrProofContainsSignaturesFromNonMembers, signer)
			}
		}
		for signer, sig := range op.Proof {
			if !signer.Verify(msgBytes, sig) {
				return fmt.Errorf("%w: %s", ErrProofContainsInvalidSignatures, signer)
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: brb op kind %d", ErrUnknownTag, op.Kind)
	}
}

func (p *Process) processPacket(packet Packet) ([]Packet, error) {
	switch packet.Payload.Kind {
	case PayloadAntiEntropy:
		return p.processAntiEntropy(packet.Source, packet.Payload)
	case PayloadBRB:
		return p.processOp(packet.Source, packet.Payload.Op)
	default:
		voteMsgs, err := p.Membership.HandleVote(packet.Payload.Vote)
		if err != nil {
			return nil, err
		}
		return p.packVoteMsgs(voteMsgs)
	}
}

func (p *Process) processAntiEntropy(source identity.Actor, payload Payload) ([]Packet, error) {
	out, err := p.packVoteMsgs(p.Membership.AntiEntropy(payload.Generation, source))
	if err != nil {
		return nil, err
	}

	sources := make([]identity.Actor, 0, len(p.historyFromSource))
	for a := range p.historyFromSource {
		sources = append(sources, a)
	}
	identity.SortActors(sources)

	for _, a := range sources {
		seen := payload.Delivered.Get(a)
		for _, entry := range p.historyFromSource[a] {
			if entry.Msg.Dot.Counter <= seen {
				continue
			}
			packet, err := p.send(source, Payload{
				Kind: PayloadBRB,
				Op: Op{
					Kind:  ProofOfAgreement,
					Msg:   entry.Msg,
					Proof: entry.Proof,
				},
			})
			if err != nil {
				return nil, err
			}
			out = append(out, packet)
		}
	}
	return out, nil
}

func (p *Process) processOp(source identity.Actor, op Op) ([]Packet, error) {
	switch op.Kind {
	case RequestValidation:
		p.received.Apply(op.Msg.Dot)

		// The msg is not stored: it comes back with the proof of agreement,
		// and our signature prevents tampering in between.
		sig := p.keypair.Sign(op.Msg.Bytes())
		packet, err := p.send(source, Payload{
			Kind: PayloadBRB,
			Op:   Op{Kind: SignedValidated, Msg: op.Msg, Sig: sig},
		})
		if err != nil {
			return nil, err
		}
		return []Packet{packet}, nil

	case SignedValidated:
		msgID := op.Msg.ID()
		pending, ok := p.pendingProof[msgID]
		if !ok {
			pending = make(map[identity.Actor]identity.Sig)
			p.pendingProof[msgID] = pending
		}
		pending[source] = op.Sig

		numSigs := len(pending)
		quorum, err := p.quorum(numSigs, op.Msg.Gen)
		if err != nil {
			return nil, err
		}
		hadQuorum, err := p.quorum(numSigs-1, op.Msg.Gen)
		if err != nil {
			return nil, err
		}
		// Only broadcast the proof on the packet that crossed the
		// threshold; later endorsements must not re-broadcast.
		if !quorum || hadQuorum {
			return nil, nil
		}

		p.log.Info("quorum reached, broadcasting proof",
			zap.Stringer("msg", op.Msg),
			zap.Int("signatures", numSigs),
		)
		p.metrics.proofsBroadcast.Inc()

		proof := make(map[identity.Actor]identity.Sig, numSigs)
		for signer, sig := range pending {
			proof[signer] = sig
		}

		members, err := p.Membership.Members(op.Msg.Gen)
		if err != nil {
			return nil, err
		}
		// Include ourselves: we may have initiated this request before being
		// an accepted member, e.g. while requesting to join.
		recipients := members.Clone()
		recipients.Add(p.Actor())
		return p.broadcast(Payload{
			Kind: PayloadBRB,
			Op:   Op{Kind: ProofOfAgreement, Msg: op.Msg, Proof: proof},
		}, recipients)

	case ProofOfAgreement:
		// We may not have been in the member subset that validated this msg,
		// so received may be behind; bring it up to the msg's dot or we will
		// reject future msgs from this source.
		p.received.Apply(op.Msg.Dot)
		p.delivered.Apply(op.Msg.Dot)

		src := op.Msg.Dot.Actor
		p.historyFromSource[src] = append(p.historyFromSource[src], ProvenMsg{
			Msg:   op.Msg,
			Proof: op.Proof,
		})
		delete(p.pendingProof, op.Msg.ID())

		p.dt.Apply(op.Msg.Op)
		p.metrics.opsDelivered.Inc()
		p.log.Info("delivered op",
			zap.Stringer("actor", p.Actor()),
			zap.Stringer("msg", op.Msg),
		)
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: brb op kind %d", ErrUnknownTag, op.Kind)
	}
}

// quorum reports whether [n] signatures form a supermajority of the voting
// group at [gen]: 3n > 2N.
func (p *Process) quorum(n int, gen membership.Generation) (bool, error) {
	members, err := p.Membership.Members(gen)
	if err != nil {
		return false, err
	}
	return 3*n > 2*members.Len(), nil
}

func (p *Process) packVoteMsgs(voteMsgs []membership.VoteMsg) ([]Packet, error) {
	packets := make([]Packet, 0, len(voteMsgs))
	for _, vm := range voteMsgs {
		packet, err := p.send(vm.Dest, Payload{
			Kind: PayloadMembership,
			Vote: vm.Vote,
		})
		if err != nil {
			return nil, err
		}
		packets = append(packets, packet)
	}
	return packets, nil
}

func (p *Process) broadcast(payload Payload, targets set.Set[identity.Actor]) ([]Packet, error) {
	dests := targets.List()
	identity.SortActors(dests)

	packets := make([]Packet, 0, len(dests))
	for _, dest := range dests {
		packet, err := p.send(dest, payload)
		if err != nil {
			return nil, err
		}
		packets = append(packets, packet)
	}
	return packets, nil
}

func (p *Process) send(dest identity.Actor, payload Payload) (Packet, error) {
	return Packet{
		Source:  p.Actor(),
		Dest:    dest,
		Payload: payload,
		Sig:     p.keypair.Sign(payload.Bytes()),
	}, nil
}
