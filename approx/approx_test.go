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

package approx

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableLookupContainment(t *testing.T) {
	tbl := NewTable()
	tbl.Declare(1000, 2000, FLOAT32)
	tbl.Declare(5000, 6000, INT16)

	r, ok := tbl.Lookup(1000, 1063)
	require.True(t, ok)
	require.Equal(t, FLOAT32, r.Type)

	_, ok = tbl.Lookup(1990, 2100) // spills past the declared region
	require.False(t, ok)

	_, ok = tbl.Lookup(3000, 3063) // outside every region
	require.False(t, ok)
}

func TestNearlyEqualFloat32(t *testing.T) {
	a := make([]byte, 4)
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(a, F32Bits(3.14159001))
	binary.LittleEndian.PutUint32(b, F32Bits(3.14159002))
	require.True(t, NearlyEqualFloat32(a, b))

	binary.LittleEndian.PutUint32(b, F32Bits(9.0))
	require.False(t, NearlyEqualFloat32(a, b))
}

func TestTruncateInt32KeepsDistinctValuesDistinct(t *testing.T) {
	small := make([]byte, 4)
	big := make([]byte, 4)
	binary.LittleEndian.PutUint32(small, 1000)
	binary.LittleEndian.PutUint32(big, 2000)
	Truncate(small, INT32)
	Truncate(big, INT32)
	require.NotEqual(t, small, big, "truncating low bits must not collapse clearly distinct integers")
}
