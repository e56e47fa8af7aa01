// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package brb

import (
	"crypto/sha256"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/brb/datatype"
	"github.com/luxfi/brb/identity"
	"github.com/luxfi/brb/membership"
	"github.com/luxfi/brb/utils/wrappers"
	"github.com/luxfi/brb/vclock"
)

// Msg is a data-type operation bound to the generation it was issued in and
// to its source's dot.
type Msg struct {
	Gen membership.Generation
	Op  datatype.Op
	Dot vclock.Dot
}

// Bytes returns the canonical encoding of the message. Signed validations
// and proof signatures are computed over it.
func (m Msg) Bytes() []byte {
	p := wrappers.NewPacker(64)
	m.pack(p)
	return p.Bytes
}

func (m Msg) pack(p *wrappers.Packer) {
	p.PackLong(uint64(m.Gen))
	p.PackBytes(m.Op.Bytes())
	p.PackFixedBytes(m.Dot.Actor.Bytes())
	p.PackLong(m.Dot.Counter)
}

func unpackMsg(u *wrappers.Unpacker, parseOp datatype.ParseOp) Msg {
	gen := membership.Generation(u.UnpackLong())
	opBytes := u.UnpackBytes()
	actor, _ := identity.ActorFromBytes(u.UnpackFixedBytes(identity.ActorLen))
	counter := u.UnpackLong()
	if u.Err != nil {
		return Msg{}
	}

	op, err := parseOp(opBytes)
	if err != nil {
		u.Err = err
		return Msg{}
	}
	return Msg{
		Gen: gen,
		Op:  op,
		Dot: vclock.Dot{Actor: actor, Counter: counter},
	}
}

// ID returns the content hash identifying this message.
func (m Msg) ID() ids.ID {
	return ids.ID(sha256.Sum256(m.Bytes()))
}

func (m Msg) String() string {
	return fmt.Sprintf("msg(%s G%d)", m.Dot, m.Gen)
}

// OpKind tags the three phases of the broadcast.
type OpKind uint8

const (
	// RequestValidation asks every member to validate and endorse a msg.
	RequestValidation OpKind = iota
	// SignedValidated returns one member's endorsement to the source.
	SignedValidated
	// ProofOfAgreement carries a supermajority of endorsements; receivers
	// deliver the msg to the data type.
	ProofOfAgreement
)

// Op is a single phase of the three-phase broadcast of one msg.
type Op struct {
	Kind OpKind
	Msg  Msg

	// Sig is the endorsement carried by a SignedValidated.
	Sig identity.Sig

	// Proof maps endorsing members to their signatures over the msg. Set for
	// ProofOfAgreement.
	Proof map[identity.Actor]identity.Sig
}

func (o Op) pack(p *wrappers.Packer) {
	p.PackByte(byte(o.Kind))
	o.Msg.pack(p)
	switch o.Kind {
	case SignedValidated:
		p.PackFixedBytes(o.Sig.Bytes())
	case ProofOfAgreement:
		packProof(p, o.Proof)
	}
}

func unpackOp(u *wrappers.Unpacker, parseOp datatype.ParseOp) Op {
	kind := OpKind(u.UnpackByte())
	op := Op{
		Kind: kind,
		Msg:  unpackMsg(u, parseOp),
	}
	switch kind {
	case RequestValidation:
	case SignedValidated:
		op.Sig, _ = identity.SigFromBytes(u.UnpackFixedBytes(identity.SigLen))
	case ProofOfAgreement:
		op.Proof = unpackProof(u)
	default:
		u.Err = fmt.Errorf("%w: unknown brb op kind %d", ErrUnknownTag, kind)
	}
	return op
}

func (o Op) String() string {
	switch o.Kind {
	case RequestValidation:
		return fmt.Sprintf("req-validation(%s)", o.Msg)
	case SignedValidated:
		return fmt.Sprintf("signed-validated(%s)", o.Msg)
	default:
		return fmt.Sprintf("proof-of-agreement(%s, %d sigs)", o.Msg, len(o.Proof))
	}
}

// packProof packs a proof map ordered by actor so the encoding is canonical.
func packProof(p *wrappers.Packer, proof map[identity.Actor]identity.Sig) {
	signers := make([]identity.Actor, 0, len(proof))
	for signer := range proof {
		signers = append(signers, signer)
	}
	identity.SortActors(signers)

	p.PackInt(uint32(len(signers)))
	for _, signer := range signers {
		p.PackFixedBytes(signer.Bytes())
		sig := proof[signer]
		p.PackFixedBytes(sig.Bytes())
	}
}

func unpackProof(u *wrappers.Unpacker) map[identity.Actor]identity.Sig {
	// The count is untrusted, so it is not used as a size hint.
	n := u.UnpackInt()
	proof := make(map[identity.Actor]identity.Sig)
	for i := uint32(0); i < n && u.Err == nil; i++ {
		signer, _ := identity.ActorFromBytes(u.UnpackFixedBytes(identity.ActorLen))
		sig, _ := identity.SigFromBytes(u.UnpackFixedBytes(identity.SigLen))
		proof[signer] = sig
	}
	return proof
}
