// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultParametersAreValid(t *testing.T) {
	require := require.New(t)

	params := DefaultParameters()
	require.NoError(params.Valid())
	require.Equal(7, params.SoftMaxMembers)
}

func TestInvalidParameters(t *testing.T) {
	require := require.New(t)

	params := Parameters{SoftMaxMembers: 0}
	require.ErrorIs(params.Valid(), ErrInvalidSoftMaxMembers)
}
