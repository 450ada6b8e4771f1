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

// Package geometry holds the fixed shape of a cache instance: line size,
// tag-array depth, data-array depth/associativity, access latency. All other
// packages read it through a *Geometry handle rather than carrying their own
// copies of these constants.
package geometry

import (
	"fmt"
	"math/bits"

	"github.com/erigontech/llcache/internal/mathutil"
)

// SegmentBytes is the unit of allocation inside the data array.
const SegmentBytes = 8

// Geometry is immutable once built; reconfiguration requires a new instance.
type Geometry struct {
	LineBytes    uint32 // uncompressed line size, e.g. 64
	NumTags      uint32 // NT: number of tag slots
	NumSegments  uint32 // ND: total 8-byte segments across the whole data array
	Assoc        uint32 // A: data-set associativity, in lines
	AccessLat    uint32 // accLat: tag-array access latency, in cycles
	HashSlots    uint32 // number of hash-array slots
}

// New validates and returns a Geometry, or an error describing the first
// violated constraint.
func New(lineBytes, numTags, numSegments, assoc, accessLat, hashSlots uint32) (*Geometry, error) {
	g := &Geometry{
		LineBytes:   lineBytes,
		NumTags:     numTags,
		NumSegments: numSegments,
		Assoc:       assoc,
		AccessLat:   accessLat,
		HashSlots:   hashSlots,
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Geometry) validate() error {
	if g.LineBytes == 0 || g.LineBytes%SegmentBytes != 0 {
		return fmt.Errorf("geometry: line size %d must be a positive multiple of %d", g.LineBytes, SegmentBytes)
	}
	if bits.OnesCount32(g.LineBytes) != 1 {
		return fmt.Errorf("geometry: line size %d must be a power of two", g.LineBytes)
	}
	if g.NumTags == 0 {
		return fmt.Errorf("geometry: NumTags must be positive")
	}
	if g.Assoc == 0 {
		return fmt.Errorf("geometry: Assoc must be positive")
	}
	segsPerLine := g.LineBytes / SegmentBytes
	setSegs := g.Assoc * segsPerLine
	if g.NumSegments%setSegs != 0 {
		return fmt.Errorf("geometry: NumSegments %d is not a multiple of Assoc*LINE/8 (%d)", g.NumSegments, setSegs)
	}
	if g.AccessLat == 0 {
		return fmt.Errorf("geometry: AccessLat must be positive")
	}
	return nil
}

// LineBits is log2(LineBytes); request addresses arrive pre-shifted by this
// amount (the "lineAddr" convention from §6).
func (g *Geometry) LineBits() uint {
	return uint(bits.TrailingZeros32(g.LineBytes))
}

// SegmentsPerLine is the number of 8-byte segments an uncompressed line spans.
func (g *Geometry) SegmentsPerLine() uint32 {
	return g.LineBytes / SegmentBytes
}

// SetSegments is the total segment capacity of a single data set (A*LINE/8).
func (g *Geometry) SetSegments() uint32 {
	return g.Assoc * g.SegmentsPerLine()
}

// NumDataSets is the number of independent data sets (ND / (A*LINE/8)).
func (g *Geometry) NumDataSets() uint32 {
	return g.NumSegments / g.SetSegments()
}

// DataSetFor picks the data set that a fresh line lands in, using a simple
// modulo hash over the line address; the compressed size plays no part —
// mirrors the second compress-driven overload of DataArray.preinsert
// in §4.2.
func (g *Geometry) DataSetFor(lineAddr uint64) uint32 {
	return uint32(lineAddr % uint64(g.NumDataSets()))
}

// CeilSegments converts a byte size to a segment count, rounding up.
func CeilSegments(sizeBytes uint32) uint32 {
	return uint32(mathutil.CeilDiv(int(sizeBytes), SegmentBytes))
}
