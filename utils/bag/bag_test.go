// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBagCounts(t *testing.T) {
	require := require.New(t)

	b := Of("x", "x", "y")
	require.Equal(2, b.Count("x"))
	require.Equal(1, b.Count("y"))
	require.Equal(0, b.Count("z"))
	require.Equal(3, b.Len())
	require.Equal(2, b.Max())
	require.Len(b.List(), 2)
}

func TestModeBreaksTiesDeterministically(t *testing.T) {
	require := require.New(t)

	less := func(a, b string) bool { return a < b }

	b := Of("b", "a")
	mode, count := b.Mode(less)
	require.Equal("a", mode)
	require.Equal(1, count)

	b.Add("b")
	mode, count = b.Mode(less)
	require.Equal("b", mode)
	require.Equal(2, count)
}

func TestEmptyBag(t *testing.T) {
	require := require.New(t)

	b := New[string]()
	require.Zero(b.Len())
	require.Zero(b.Max())
	mode, count := b.Mode(func(a, c string) bool { return a < c })
	require.Zero(count)
	require.Empty(mode)
}
