// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package set

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	require := require.New(t)

	// Empty set
	s1 := Of[int]()
	require.Equal(0, s1.Len())

	// Set with elements
	s2 := Of(1, 2, 3)
	require.Equal(3, s2.Len())
	require.True(s2.Contains(1))
	require.True(s2.Contains(2))
	require.True(s2.Contains(3))

	// Set with duplicates
	s3 := Of(1, 2, 2, 3, 3, 3)
	require.Equal(3, s3.Len())
}

func TestAddRemove(t *testing.T) {
	require := require.New(t)

	s := NewSet[string](0)
	require.Equal(0, s.Len())

	s.Add("a")
	require.Equal(1, s.Len())
	require.True(s.Contains("a"))

	s.Add("b", "c")
	require.Equal(3, s.Len())

	// Add duplicate
	s.Add("a")
	require.Equal(3, s.Len())

	s.Remove("a", "b")
	require.Equal(1, s.Len())
	require.False(s.Contains("a"))
	require.True(s.Contains("c"))
}

func TestUnion(t *testing.T) {
	require := require.New(t)

	s := Of(1, 2)
	s.Union(Of(2, 3))
	require.Equal(3, s.Len())
	require.True(s.Contains(3))
}

func TestEquals(t *testing.T) {
	require := require.New(t)

	require.True(Of(1, 2).Equals(Of(2, 1)))
	require.False(Of(1, 2).Equals(Of(1)))
	require.False(Of(1, 2).Equals(Of(1, 3)))
	require.True(Of[int]().Equals(NewSet[int](5)))
}

func TestClone(t *testing.T) {
	require := require.New(t)

	s := Of(1, 2)
	c := s.Clone()
	c.Add(3)
	require.Equal(2, s.Len())
	require.Equal(3, c.Len())
}
