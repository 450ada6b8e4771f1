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

package dataarray

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/llcache/bdicode"
	"github.com/erigontech/llcache/geometry"
	"github.com/erigontech/llcache/replpolicy"
)

func newTestArray(t *testing.T) (*Array, *geometry.Geometry) {
	t.Helper()
	geo, err := geometry.New(64, 16, 16*8, 2, 4, 16)
	require.NoError(t, err)
	return New(geo, replpolicy.NewRoundRobin), geo
}

func TestFreeBytesStartsFull(t *testing.T) {
	a, geo := newTestArray(t)
	require.EqualValues(t, geo.SetSegments()*geometry.SegmentBytes, a.FreeBytes(0))
}

func TestPostinsertReducesFreeBytes(t *testing.T) {
	a, _ := newTestArray(t)
	payload := make([]byte, 64)
	enc, size := a.Compress(payload) // all-zero -> ZERO, 8 bytes
	require.Equal(t, bdicode.ZERO, enc)
	a.Postinsert(7, 1, 0, 0, payload, enc, true)
	require.EqualValues(t, a.FreeBytes(0), a.geoFreeBytesAfterOneZeroLine())
	require.EqualValues(t, size, geometry.SegmentBytes)
}

// geoFreeBytesAfterOneZeroLine is a small test-local helper computing the
// expected free bytes after installing exactly one ZERO-encoded line.
func (a *Array) geoFreeBytesAfterOneZeroLine() uint32 {
	return a.geo.SetSegments()*geometry.SegmentBytes - geometry.SegmentBytes
}

func TestIsSameDistinguishesPayloads(t *testing.T) {
	a, _ := newTestArray(t)
	p1 := make([]byte, 64)
	p2 := make([]byte, 64)
	p2[0] = 1
	enc, _ := a.Compress(p1)
	a.Postinsert(7, 1, 0, 0, p1, enc, true)
	require.True(t, a.IsSame(0, 0, p1))
	require.False(t, a.IsSame(0, 0, p2))
}

func TestFreeRunAfterFreeingSegment(t *testing.T) {
	a, geo := newTestArray(t)
	payload := make([]byte, 64)
	enc, _ := a.Compress(payload)
	a.Postinsert(7, 1, 0, 0, payload, enc, true)
	require.EqualValues(t, Invalid, a.FindFreeRun(0, geo.SetSegments()*geometry.SegmentBytes))
	a.Postinsert(Invalid, 0, 0, 0, nil, bdicode.NONE, false)
	require.NotEqual(t, Invalid, a.FindFreeRun(0, geo.SetSegments()*geometry.SegmentBytes))
}

func TestCountValidSegmentsTracksOccupancy(t *testing.T) {
	a, _ := newTestArray(t)
	require.Equal(t, 0, a.CountValidSegments())
	payload := make([]byte, 64)
	enc, size := a.Compress(payload)
	a.Postinsert(7, 1, 0, 0, payload, enc, true)
	require.Equal(t, int(size/geometry.SegmentBytes), a.CountValidSegments())
}

func TestChangeInPlacePreservesPayload(t *testing.T) {
	a, _ := newTestArray(t)
	payload := make([]byte, 64)
	payload[10] = 42
	enc, _ := a.Compress(payload)
	a.Postinsert(7, 1, 0, 0, payload, enc, true)
	a.ChangeInPlace(9, 2, 0, 0)
	require.EqualValues(t, 9, a.ReadListHead(0, 0))
	require.EqualValues(t, 2, a.ReadCounter(0, 0))
	require.True(t, a.IsSame(0, 0, payload))
}
