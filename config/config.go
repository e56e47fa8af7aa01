// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines the tunable parameters of the broadcast core.
package config

import "errors"

var ErrInvalidSoftMaxMembers = errors.New("soft max members must be >= 1")

// Parameters defines the membership parameters of a process.
type Parameters struct {
	// SoftMaxMembers caps the voting group size. Join proposals are rejected
	// once the group has this many members.
	SoftMaxMembers int
}

// DefaultParameters returns the parameters used by production deployments.
func DefaultParameters() Parameters {
	return Parameters{
		SoftMaxMembers: 7,
	}
}

// Valid reports an error if the parameters are unusable.
func (p Parameters) Valid() error {
	if p.SoftMaxMembers < 1 {
		return ErrInvalidSoftMaxMembers
	}
	return nil
}
