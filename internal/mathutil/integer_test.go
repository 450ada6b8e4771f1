// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package mathutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAbsoluteDifference(t *testing.T) {
	require.EqualValues(t, 5, AbsoluteDifference(10, 15))
	require.EqualValues(t, 5, AbsoluteDifference(15, 10))
	require.EqualValues(t, 0, AbsoluteDifference(7, 7))
}

func TestSafeMulOverflow(t *testing.T) {
	v, overflow := SafeMul(2, 3)
	require.EqualValues(t, 6, v)
	require.False(t, overflow)

	_, overflow = SafeMul(math.MaxUint64, 2)
	require.True(t, overflow)
}

func TestSafeAddOverflow(t *testing.T) {
	v, overflow := SafeAdd(2, 3)
	require.EqualValues(t, 5, v)
	require.False(t, overflow)

	_, overflow = SafeAdd(math.MaxUint64, 1)
	require.True(t, overflow)
}

func TestCeilDiv(t *testing.T) {
	require.Equal(t, 3, CeilDiv(7, 3))
	require.Equal(t, 2, CeilDiv(6, 3))
	require.Equal(t, 0, CeilDiv(7, 0))
}

func TestMax(t *testing.T) {
	require.EqualValues(t, 9, Max(9, 4))
	require.EqualValues(t, 9, Max(4, 9))
}
