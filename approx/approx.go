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

// Package approx implements the ApproximationFilter: a table of address
// regions declared to hold approximate data, and the truncation that turns a
// near-equal floating point or integer line into a byte-identical one before
// hashing.
package approx

import (
	"encoding/binary"
	"math"

	"github.com/google/btree"
)

// DataType names the element width/interpretation truncation is tuned for.
type DataType uint8

const (
	FLOAT32 DataType = iota
	FLOAT64
	INT32
	INT16
)

// mantissaBits is how many low bits of each element get zeroed before
// hashing; chosen conservatively so the truncation only masks noise in the
// least-significant mantissa bits, never the exponent/sign or integer
// magnitude bits that would change the represented value's order.
var mantissaBits = map[DataType]int{
	FLOAT32: 13,
	FLOAT64: 29,
	INT32:   4,
	INT16:   2,
}

// Region is a declared approximate address range, inclusive on both ends.
type Region struct {
	Start uint64
	End   uint64
	Type  DataType
}

func (r Region) Less(than btree.Item) bool {
	return r.Start < than.(Region).Start
}

// Table is an ordered index of approximate regions, queried by containment.
// It is backed by a google/btree B-tree keyed on region start address so a
// lookup need not scan every declared region.
type Table struct {
	tree *btree.BTree
}

// NewTable builds an empty region table.
func NewTable() *Table {
	return &Table{tree: btree.New(16)}
}

// Declare adds a region to the table.
func (t *Table) Declare(start, end uint64, typ DataType) {
	t.tree.ReplaceOrInsert(Region{Start: start, End: end, Type: typ})
}

// Lookup returns the declared region fully containing [lineStart, lineEnd],
// per §6: "a line is approximate iff it lies entirely inside one region".
func (t *Table) Lookup(lineStart, lineEnd uint64) (Region, bool) {
	var found Region
	ok := false
	// Walk candidates with Start <= lineStart in descending order; the first
	// one whose End covers lineEnd (if any) is the containing region, since
	// declared regions are assumed non-overlapping.
	t.tree.DescendLessOrEqual(Region{Start: lineStart}, func(item btree.Item) bool {
		r := item.(Region)
		if lineStart >= r.Start && lineEnd <= r.End {
			found = r
			ok = true
		}
		return false
	})
	return found, ok
}

// Truncate zeroes the low mantissa/magnitude bits of payload in place,
// treating it as an array of typ-sized elements, per the declared region's
// DataType. This is HashArray.approximate from §4.3.
func Truncate(payload []byte, typ DataType) {
	bits := mantissaBits[typ]
	switch typ {
	case FLOAT32:
		truncateWords(payload, 4, bits, binary.LittleEndian.Uint32, func(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) })
	case FLOAT64:
		truncateWords64(payload, bits)
	case INT32:
		truncateWords(payload, 4, bits, binary.LittleEndian.Uint32, func(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) })
	case INT16:
		truncateWords16(payload, bits)
	}
}

func truncateWords(payload []byte, width, bits int, get func([]byte) uint32, put func([]byte, uint32)) {
	mask := ^uint32(0) << uint(bits)
	for off := 0; off+width <= len(payload); off += width {
		v := get(payload[off : off+width])
		put(payload[off:off+width], v&mask)
	}
}

func truncateWords64(payload []byte, bits int) {
	mask := ^uint64(0) << uint(bits)
	for off := 0; off+8 <= len(payload); off += 8 {
		v := binary.LittleEndian.Uint64(payload[off : off+8])
		binary.LittleEndian.PutUint64(payload[off:off+8], v&mask)
	}
}

func truncateWords16(payload []byte, bits int) {
	mask := ^uint16(0) << uint(bits)
	for off := 0; off+2 <= len(payload); off += 2 {
		v := binary.LittleEndian.Uint16(payload[off : off+2])
		binary.LittleEndian.PutUint16(payload[off:off+2], v&mask)
	}
}

// NearlyEqualFloat32 is a test/debugging helper: reports whether two float32
// payloads of equal length would collapse to the same truncated bit pattern.
func NearlyEqualFloat32(a, b []byte) bool {
	if len(a) != len(b) || len(a)%4 != 0 {
		return false
	}
	ca := append([]byte(nil), a...)
	cb := append([]byte(nil), b...)
	Truncate(ca, FLOAT32)
	Truncate(cb, FLOAT32)
	for i := range ca {
		if ca[i] != cb[i] {
			return false
		}
	}
	return true
}

// F32Bits is a small convenience used by tests to build float payloads.
func F32Bits(f float32) uint32 {
	return math.Float32bits(f)
}
