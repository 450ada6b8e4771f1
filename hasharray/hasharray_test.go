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

package hasharray

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/llcache/approx"
	"github.com/erigontech/llcache/replpolicy"
)

func TestHashIsStableForEqualPayloads(t *testing.T) {
	p1 := []byte("0123456701234567")
	p2 := append([]byte(nil), p1...)
	require.Equal(t, Hash(p1), Hash(p2))
}

func TestHashDiffersForDifferentPayloads(t *testing.T) {
	p1 := []byte("0123456701234567")
	p2 := []byte("7654321076543210")
	require.NotEqual(t, Hash(p1), Hash(p2))
}

func TestApproximateCollapsesNearEqualFloats(t *testing.T) {
	a := approx.F32Bits(1.0000001)
	b := approx.F32Bits(1.0000002)
	pa := make([]byte, 4)
	pb := make([]byte, 4)
	putU32LE(pa, a)
	putU32LE(pb, b)
	Approximate(pa, approx.FLOAT32)
	Approximate(pb, approx.FLOAT32)
	require.Equal(t, Hash(pa), Hash(pb))
}

func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func TestLookupAndPostinsert(t *testing.T) {
	a := New(4, replpolicy.NewRoundRobin(4))
	require.EqualValues(t, Invalid, a.Lookup(0xDEAD, true))
	a.Postinsert(0xDEAD, 2, 3, 0, true)
	require.EqualValues(t, 0, a.Lookup(0xDEAD, true))
	require.EqualValues(t, 2, a.ReadDataPointer(0))
	require.EqualValues(t, 3, a.ReadSegmentPointer(0))
	require.EqualValues(t, 1, a.CountValidLines())
}

func TestPostinsertOverwritesOldHashMapping(t *testing.T) {
	a := New(4, replpolicy.NewRoundRobin(4))
	a.Postinsert(0x1, 0, 0, 0, true)
	a.Postinsert(0x2, 1, 1, 0, true)
	require.EqualValues(t, Invalid, a.Lookup(0x1, true))
	require.EqualValues(t, 0, a.Lookup(0x2, true))
}
