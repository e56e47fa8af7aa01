// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestAveragerRegistersAndObserves(t *testing.T) {
	require := require.New(t)

	reg := prometheus.NewRegistry()
	a, err := NewAverager("op_duration", "time an op took", reg)
	require.NoError(err)

	a.Observe(3)
	a.Observe(5)

	families, err := reg.Gather()
	require.NoError(err)
	require.Len(families, 2)
}

func TestAveragerRejectsDuplicateRegistration(t *testing.T) {
	require := require.New(t)

	reg := prometheus.NewRegistry()
	_, err := NewAverager("op_duration", "time an op took", reg)
	require.NoError(err)

	_, err = NewAverager("op_duration", "time an op took", reg)
	require.Error(err)
}
