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

// Package dataarray implements the DataArray of §4.2: a set-associative store
// of 8-byte segments, BDI-compressed, where a compressed line occupies a
// contiguous run of segments headed by the first sharer's tag id.
package dataarray

import (
	"bytes"

	roaring "github.com/RoaringBitmap/roaring/v2"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/erigontech/llcache/bdicode"
	"github.com/erigontech/llcache/geometry"
	"github.com/erigontech/llcache/replpolicy"
)

// Invalid is the sentinel for "no sharer"/"no victim".
const Invalid = -1

type segment struct {
	listHead int32
	counter  uint32
	payload  []byte // nil when free
	encoding bdicode.Encoding
}

// Array is the segmented data store: one policy and one occupancy bitmap per
// data set, segments laid out contiguously set-by-set.
type Array struct {
	geo      *geometry.Geometry
	segments []segment
	// occupied[dataSet] has a bit set for every segment currently acting as
	// a line's head or interior segment. FindFreeRun tests these bits and
	// CountValidSegments sums their cardinalities; OccupiedBytes does not use
	// them and scans the set's segments instead.
	occupied []*roaring.Bitmap
	policies []replpolicy.Policy // one per data set, over segment-local ids
}

// New builds a data array over geo's shape. newPolicy constructs a fresh
// replacement policy over n segment-local ids; it is invoked once per data
// set so that sets do not share victim-selection state.
func New(geo *geometry.Geometry, newPolicy func(n int) replpolicy.Policy) *Array {
	segs := make([]segment, geo.NumSegments)
	for i := range segs {
		segs[i].listHead = Invalid
	}
	numSets := int(geo.NumDataSets())
	setSegs := int(geo.SetSegments())
	occ := make([]*roaring.Bitmap, numSets)
	pol := make([]replpolicy.Policy, numSets)
	for s := 0; s < numSets; s++ {
		occ[s] = roaring.New()
		pol[s] = newPolicy(setSegs)
	}
	return &Array{geo: geo, segments: segs, occupied: occ, policies: pol}
}

func (a *Array) globalSeg(dataSet, segment int32) int32 {
	return dataSet*int32(a.geo.SetSegments()) + segment
}

// GetAssoc returns A, the data-set associativity in lines.
func (a *Array) GetAssoc() uint32 { return a.geo.Assoc }

// Compress is a thin forward to bdicode.Compress using this array's line
// size, kept as a method so callers need not import bdicode/geometry
// themselves (§4.2's "knows LINE via a global geometry handle").
func (a *Array) Compress(payload []byte) (bdicode.Encoding, uint32) {
	return bdicode.Compress(payload, a.geo.LineBytes)
}

// OccupiedBytes sums the compressed size of every live line resident in
// dataSet, i.e. the occupied term in §4.5's reclamation loop.
func (a *Array) OccupiedBytes(dataSet int32) uint32 {
	base := dataSet * int32(a.geo.SetSegments())
	var occupied uint32
	end := base + int32(a.geo.SetSegments())
	for s := base; s < end; s++ {
		seg := &a.segments[s]
		if seg.listHead != Invalid {
			occupied += bdicode.EncodingSize(seg.encoding, a.geo.LineBytes)
		}
	}
	return occupied
}

// FreeBytes returns A*LINE - OccupiedBytes(dataSet).
func (a *Array) FreeBytes(dataSet int32) uint32 {
	return a.geo.SetSegments()*geometry.SegmentBytes - a.OccupiedBytes(dataSet)
}

// SelectSet picks which data set a fresh line should land in, using the
// geometry's address-driven hash (§4.2's second preinsert overload).
func (a *Array) SelectSet(lineAddr uint64) int32 {
	return int32(a.geo.DataSetFor(lineAddr))
}

// Preinsert chooses the next segment to evict from dataSet, excluding every
// segment-local id present in kept. It reports the chosen segment (local to
// the set) and the sharer-list head resident there (Invalid if the segment
// was already free).
func (a *Array) Preinsert(dataSet int32, kept mapset.Set[int32]) (victimSegment int32, victimListHead int32) {
	victimSegment = a.policies[dataSet].Victim(kept)
	if victimSegment == Invalid {
		return Invalid, Invalid
	}
	g := a.globalSeg(dataSet, victimSegment)
	return victimSegment, a.segments[g].listHead
}

// Postinsert commits a payload into (dataSet, segmentLocal) with the given
// sharer-list head and counter. headTagID == Invalid frees the segment
// (and every interior segment of whatever line previously lived there,
// computed from the freed segment's own recorded encoding).
func (a *Array) Postinsert(headTagID int32, counter uint32, dataSet, segmentLocal int32, payload []byte, encoding bdicode.Encoding, updateRepl bool) {
	g := a.globalSeg(dataSet, segmentLocal)
	seg := &a.segments[g]
	if headTagID == Invalid {
		a.freeRun(dataSet, segmentLocal)
		a.policies[dataSet].Remove(segmentLocal)
		return
	}
	size := bdicode.EncodingSize(encoding, a.geo.LineBytes)
	nsegs := size / geometry.SegmentBytes
	seg.listHead = headTagID
	seg.counter = counter
	seg.encoding = encoding
	seg.payload = append([]byte(nil), payload...)
	base := dataSet * int32(a.geo.SetSegments())
	for i := int32(0); i < int32(nsegs); i++ {
		a.occupied[dataSet].Add(uint32(segmentLocal + i))
		if i > 0 {
			a.segments[base+segmentLocal+i].listHead = Invalid
		}
	}
	if updateRepl {
		a.policies[dataSet].Touch(segmentLocal)
	}
}

// freeRun clears the occupied bits for the run previously headed at
// segmentLocal, reading its length from the recorded encoding before
// clearing the head itself.
func (a *Array) freeRun(dataSet, segmentLocal int32) {
	g := a.globalSeg(dataSet, segmentLocal)
	seg := &a.segments[g]
	if seg.listHead == Invalid && seg.payload == nil {
		return
	}
	size := bdicode.EncodingSize(seg.encoding, a.geo.LineBytes)
	nsegs := size / geometry.SegmentBytes
	base := dataSet * int32(a.geo.SetSegments())
	for i := int32(0); i < int32(nsegs); i++ {
		a.occupied[dataSet].Remove(uint32(segmentLocal + i))
		a.segments[base+segmentLocal+i] = segment{listHead: Invalid}
	}
}

// ChangeInPlace rewrites only the sharer-list head and counter of a resident
// segment (e.g. after a dedup splice/unsplice), leaving the payload as-is.
func (a *Array) ChangeInPlace(newListHead int32, counter uint32, dataSet, segmentLocal int32) {
	g := a.globalSeg(dataSet, segmentLocal)
	a.segments[g].listHead = newListHead
	a.segments[g].counter = counter
}

// ReadListHead, ReadCounter, ReadEncoding are segment-local accessors.
func (a *Array) ReadListHead(dataSet, segmentLocal int32) int32 {
	return a.segments[a.globalSeg(dataSet, segmentLocal)].listHead
}
func (a *Array) ReadCounter(dataSet, segmentLocal int32) uint32 {
	return a.segments[a.globalSeg(dataSet, segmentLocal)].counter
}
func (a *Array) ReadEncoding(dataSet, segmentLocal int32) bdicode.Encoding {
	return a.segments[a.globalSeg(dataSet, segmentLocal)].encoding
}

// IsSame reports whether the payload resident at (dataSet, segmentLocal) is
// byte-identical to payload — the guard that masks stale hash entries and
// distinguishes HH_DS from HH_DD in §4.4.
func (a *Array) IsSame(dataSet, segmentLocal int32, payload []byte) bool {
	g := a.globalSeg(dataSet, segmentLocal)
	return bytes.Equal(a.segments[g].payload, payload)
}

// TouchPolicy marks segmentLocal in dataSet as just-used without altering
// its contents, for the WSR_TH pure-read case.
func (a *Array) TouchPolicy(dataSet, segmentLocal int32) {
	a.policies[dataSet].Touch(segmentLocal)
}

// FindFreeRun scans dataSet for the first contiguous run of segments, long
// enough to hold sizeBytes, that is entirely free. It returns Invalid if no
// such run exists, which the caller takes as "evict more before retrying"
// rather than as a hard failure — aggregate FreeBytes can be misleading when
// free segments are scattered rather than contiguous.
func (a *Array) FindFreeRun(dataSet int32, sizeBytes uint32) int32 {
	nsegs := int32(sizeBytes / geometry.SegmentBytes)
	setSegs := int32(a.geo.SetSegments())
	base := dataSet * setSegs
	for start := int32(0); start+nsegs <= setSegs; start++ {
		free := true
		for i := int32(0); i < nsegs; i++ {
			if a.occupied[dataSet].Contains(uint32(start + i)) {
				free = false
				break
			}
		}
		if free {
			return start
		}
	}
	return Invalid
}

// CountValidSegments sums occupied segments across every data set
// (validSegments in §8), using the Roaring bitmaps' cardinality.
func (a *Array) CountValidSegments() int {
	total := 0
	for _, b := range a.occupied {
		total += int(b.GetCardinality())
	}
	return total
}
