// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package identity provides the public-key identities and signatures that
// every broadcast and membership message is authenticated with. An Actor is
// an ed25519 public key; a Keypair additionally holds the private half and
// can sign on the actor's behalf.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
)

const (
	// ActorLen is the byte length of an actor's public key.
	ActorLen = ed25519.PublicKeySize
	// SigLen is the byte length of a signature.
	SigLen = ed25519.SignatureSize
)

// Actor is a process identity. One process holds exactly one actor. Actors
// are totally ordered by the lexicographic order of their key bytes.
type Actor [ActorLen]byte

// EmptyActor is the zero actor.
var EmptyActor = Actor{}

// ActorFromBytes parses an actor from its byte representation.
func ActorFromBytes(b []byte) (Actor, error) {
	if len(b) != ActorLen {
		return EmptyActor, fmt.Errorf("wrong actor length: %d", len(b))
	}
	var a Actor
	copy(a[:], b)
	return a, nil
}

// Bytes returns the actor's public key bytes.
func (a Actor) Bytes() []byte {
	return a[:]
}

// Compare returns -1, 0, or 1 ordering actors by their key bytes.
func (a Actor) Compare(other Actor) int {
	return bytes.Compare(a[:], other[:])
}

// Verify reports whether [sig] is a valid signature by this actor over [msg].
func (a Actor) Verify(msg []byte, sig Sig) bool {
	return ed25519.Verify(a[:], msg, sig[:])
}

func (a Actor) String() string {
	return "i:" + hex.EncodeToString(a[:2]) + ".."
}

// Sig is a signature over the canonical byte encoding of a value.
type Sig [SigLen]byte

// SigFromBytes parses a signature from its byte representation.
func SigFromBytes(b []byte) (Sig, error) {
	if len(b) != SigLen {
		return Sig{}, fmt.Errorf("wrong signature length: %d", len(b))
	}
	var s Sig
	copy(s[:], b)
	return s, nil
}

// Bytes returns the raw signature bytes.
func (s Sig) Bytes() []byte {
	return s[:]
}

func (s Sig) String() string {
	return "sig:" + hex.EncodeToString(s[:2]) + ".."
}

// Keypair is a signing actor: an actor plus the private key that signs for
// it. The private key never leaves this struct.
type Keypair struct {
	actor Actor
	priv  ed25519.PrivateKey
}

// GenerateKeypair creates a fresh signing actor.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	var a Actor
	copy(a[:], pub)
	return &Keypair{
		actor: a,
		priv:  priv,
	}, nil
}

// Actor returns the public identity of this keypair.
func (k *Keypair) Actor() Actor {
	return k.actor
}

// Sign signs [msg] with the private key.
func (k *Keypair) Sign(msg []byte) Sig {
	var s Sig
	copy(s[:], ed25519.Sign(k.priv, msg))
	return s
}

func (k *Keypair) String() string {
	return k.actor.String()
}

// SortActors sorts [actors] in place by the actor total order.
func SortActors(actors []Actor) {
	slices.SortFunc(actors, Actor.Compare)
}
