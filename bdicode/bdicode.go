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

// Package bdicode implements Base-Delta-Immediate compression: a cache line
// is represented as a base value plus an array of small deltas whenever that
// representation is shorter than the line itself.
package bdicode

import (
	"encoding/binary"

	"github.com/erigontech/llcache/geometry"
)

// Encoding enumerates the BDI representations. The enum order does not follow
// compressed size (ZERO is the smallest, NONE the largest, and the base/delta
// encodings are not sorted by size); compare sizes through EncodingSize.
type Encoding uint8

const (
	NONE Encoding = iota
	ZERO
	BASE8_DELTA1
	BASE8_DELTA2
	BASE8_DELTA4
	BASE4_DELTA1
	BASE4_DELTA2
	BASE2_DELTA1
)

func (e Encoding) String() string {
	switch e {
	case NONE:
		return "NONE"
	case ZERO:
		return "ZERO"
	case BASE8_DELTA1:
		return "BASE8_DELTA1"
	case BASE8_DELTA2:
		return "BASE8_DELTA2"
	case BASE8_DELTA4:
		return "BASE8_DELTA4"
	case BASE4_DELTA1:
		return "BASE4_DELTA1"
	case BASE4_DELTA2:
		return "BASE4_DELTA2"
	case BASE2_DELTA1:
		return "BASE2_DELTA1"
	default:
		return "UNKNOWN"
	}
}

// EncodingSize returns the compressed size in bytes for a line of lineBytes
// bytes encoded with e. NONE always costs the full line; ZERO always costs
// one segment; the BASEn_DELTAm family costs one base word of n bytes plus
// one delta of m bytes per (lineBytes/n) elements, rounded up to a whole
// number of 8-byte segments because segments are the unit of allocation.
func EncodingSize(e Encoding, lineBytes uint32) uint32 {
	switch e {
	case ZERO:
		return geometry.SegmentBytes
	case BASE8_DELTA1:
		return roundUpSegments(8+1*(lineBytes/8), lineBytes)
	case BASE8_DELTA2:
		return roundUpSegments(8+2*(lineBytes/8), lineBytes)
	case BASE8_DELTA4:
		return roundUpSegments(8+4*(lineBytes/8), lineBytes)
	case BASE4_DELTA1:
		return roundUpSegments(4+1*(lineBytes/4), lineBytes)
	case BASE4_DELTA2:
		return roundUpSegments(4+2*(lineBytes/4), lineBytes)
	case BASE2_DELTA1:
		return roundUpSegments(2+1*(lineBytes/2), lineBytes)
	default:
		return lineBytes
	}
}

func roundUpSegments(raw, lineBytes uint32) uint32 {
	segs := (raw + geometry.SegmentBytes - 1) / geometry.SegmentBytes
	bytes := segs * geometry.SegmentBytes
	if bytes > lineBytes {
		return lineBytes
	}
	return bytes
}

// Compress picks the smallest encoding that fits payload, trying bases from
// widest (cheapest search, least likely to fit) to narrowest in the order the
// original BDI paper describes: an all-zero line is always ZERO; otherwise
// the first base/delta width pair whose deltas all fit wins, falling back to
// NONE.
func Compress(payload []byte, lineBytes uint32) (Encoding, uint32) {
	if allZero(payload) {
		return ZERO, EncodingSize(ZERO, lineBytes)
	}
	type candidate struct {
		enc       Encoding
		baseWidth int
		deltaWidth int
	}
	candidates := []candidate{
		{BASE8_DELTA1, 8, 1},
		{BASE8_DELTA2, 8, 2},
		{BASE8_DELTA4, 8, 4},
		{BASE4_DELTA1, 4, 1},
		{BASE4_DELTA2, 4, 2},
		{BASE2_DELTA1, 2, 1},
	}
	for _, c := range candidates {
		if fitsBaseDelta(payload, c.baseWidth, c.deltaWidth) {
			return c.enc, EncodingSize(c.enc, lineBytes)
		}
	}
	return NONE, lineBytes
}

func allZero(payload []byte) bool {
	for _, b := range payload {
		if b != 0 {
			return false
		}
	}
	return true
}

// fitsBaseDelta reports whether every baseWidth-wide element of payload
// differs from the first element by at most what fits in a two's-complement
// delta of deltaWidth bytes.
func fitsBaseDelta(payload []byte, baseWidth, deltaWidth int) bool {
	if len(payload)%baseWidth != 0 || baseWidth <= deltaWidth {
		return false
	}
	base := readUint(payload[0:baseWidth])
	minDelta, maxDelta := deltaRange(deltaWidth)
	for off := 0; off < len(payload); off += baseWidth {
		v := readUint(payload[off : off+baseWidth])
		delta := int64(v) - int64(base)
		if delta < minDelta || delta > maxDelta {
			return false
		}
	}
	return true
}

func deltaRange(deltaWidth int) (min, max int64) {
	bits := uint(deltaWidth * 8)
	max = (1 << (bits - 1)) - 1
	min = -(1 << (bits - 1))
	return
}

func readUint(b []byte) uint64 {
	switch len(b) {
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	default:
		var v uint64
		for i, c := range b {
			v |= uint64(c) << (8 * i)
		}
		return v
	}
}
