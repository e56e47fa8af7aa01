// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package datatype defines the capability interface between the broadcast
// core and the replicated data type it secures.
package datatype

import (
	"github.com/luxfi/brb/identity"
)

// Op is an operation of the replicated data type. Ops must have a canonical
// byte encoding: signatures and message identities are computed over it.
type Op interface {
	Bytes() []byte
}

// ParseOp decodes an op from its canonical encoding. Each data type supplies
// its own parser so packets can be decoded without the core knowing the op
// schema.
type ParseOp func([]byte) (Op, error)

// DataType is a replica of an operation-based data type lifted into the
// broadcast core.
//
// Validate must be a pure function of the replica state and its arguments.
// Apply is invoked exactly once per delivered message.
type DataType interface {
	// Validate is the protection against byzantine sources: it checks that
	// [op], claimed by [source], is acceptable in the current state.
	Validate(source identity.Actor, op Op) error

	// Apply executes an op that has gathered proof of agreement.
	Apply(op Op)
}

// New constructs a replica owned by [actor].
type New func(actor identity.Actor) DataType
