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

// Package tagarray implements the TagArray directory of §4.1: an arena of
// fixed-size tag records indexed by integer id, each pointing into the data
// array and linked into a per-segment sharer list.
package tagarray

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/willf/bitset"

	"github.com/erigontech/llcache/bdicode"
	"github.com/erigontech/llcache/replpolicy"
)

// Invalid is the sentinel for "no such id" used throughout the directories.
const Invalid = -1

// Line is one tag slot. DataSet/Segment are only meaningful while Valid.
type Line struct {
	Addr      uint64
	Valid     bool
	Encoding  bdicode.Encoding
	DataSet   int32
	Segment   int32
	NextShare int32 // next tag id in the sharer list, or Invalid
}

// Array is the tag directory: a fixed arena of NT lines plus an associative
// lookup index and a replacement policy.
type Array struct {
	lines  []Line
	valid  *bitset.BitSet
	policy replpolicy.Policy
	byAddr map[uint64]int32 // associative search index; a real hardware tag array is set-associative, this models full associativity for simplicity per §4.1
}

// New builds an empty tag array of n slots driven by policy.
func New(n int, policy replpolicy.Policy) *Array {
	lines := make([]Line, n)
	for i := range lines {
		lines[i].DataSet = Invalid
		lines[i].Segment = Invalid
		lines[i].NextShare = Invalid
	}
	return &Array{
		lines:  lines,
		valid:  bitset.New(uint(n)),
		policy: policy,
		byAddr: make(map[uint64]int32, n),
	}
}

// Len is the number of tag slots (NT).
func (a *Array) Len() int { return len(a.lines) }

// Lookup performs the associative search of §4.1; on hit, touches the
// replacement policy only when updateRepl is set.
func (a *Array) Lookup(addr uint64, updateRepl bool) int32 {
	id, ok := a.byAddr[addr]
	if !ok {
		return Invalid
	}
	if updateRepl {
		a.policy.Touch(id)
	}
	return id
}

// Preinsert picks the tag slot to fill on a miss, without mutating any state
// yet: the lowest-numbered invalid slot not in kept when there is one,
// otherwise the replacement policy's victim.
func (a *Array) Preinsert(kept mapset.Set[int32]) (victimTagID int32, victimAddr uint64) {
	for i := range a.lines {
		free := int32(i)
		if !a.valid.Test(uint(i)) && (kept == nil || !kept.Contains(free)) {
			return free, a.lines[free].Addr
		}
	}
	id := a.policy.Victim(kept)
	if id == Invalid {
		return Invalid, 0
	}
	return id, a.lines[id].Addr
}

// EvictAssociatedData unlinks victimTagID from its sharer list. It reports
// whether the victim was the segment's sole sharer (the segment must now be
// freed by the caller) and the list's head afterwards: the successor when the
// victim was the head (Invalid if it had none), otherwise the unchanged
// listHead. When the victim is not the head, it walks the list from listHead
// to the victim's predecessor and splices the victim out itself.
func (a *Array) EvictAssociatedData(victimTagID int32, listHead int32) (freesSegment bool, newListHead int32) {
	if listHead == victimTagID {
		next := a.lines[victimTagID].NextShare
		if next == Invalid {
			return true, Invalid
		}
		return false, next
	}
	// Walk from head to find victimTagID's predecessor and splice it out.
	prev := listHead
	for prev != Invalid && a.lines[prev].NextShare != victimTagID {
		prev = a.lines[prev].NextShare
	}
	if prev != Invalid {
		a.lines[prev].NextShare = a.lines[victimTagID].NextShare
	}
	return false, listHead
}

// Postinsert writes all fields of tagID and, when updateRepl is set, touches
// the replacement policy. Passing addr=0, dataSet=Invalid marks the slot
// invalid (an eviction or invalidation), matching §4.1's convention.
func (a *Array) Postinsert(addr uint64, tagID int32, dataSet, segment int32, encoding bdicode.Encoding, nextShare int32, updateRepl bool) {
	old := a.lines[tagID]
	if old.Valid {
		delete(a.byAddr, old.Addr)
	}
	valid := dataSet != Invalid
	a.lines[tagID] = Line{
		Addr:      addr,
		Valid:     valid,
		Encoding:  encoding,
		DataSet:   dataSet,
		Segment:   segment,
		NextShare: nextShare,
	}
	a.valid.SetTo(uint(tagID), valid)
	if valid {
		a.byAddr[addr] = tagID
	}
	if updateRepl {
		a.policy.Touch(tagID)
	} else {
		// Even a non-touching postinsert resets the policy's bookkeeping for
		// this id through Remove; the LRU and ARC policies re-add the id as
		// their most recently used entry, and round-robin ignores it.
		a.policy.Remove(tagID)
	}
}

// ChangeInPlace updates a subset of fields without retouching replacement;
// used when only NextShare changes (dedup splice/unsplice).
func (a *Array) ChangeInPlace(tagID int32, nextShare int32) {
	a.lines[tagID].NextShare = nextShare
}

// ReadAddress, ReadDataID, ReadSegment, ReadNextShare, ReadEncoding, IsValid
// are the narrow accessors the engine needs while walking sharer lists.
func (a *Array) ReadAddress(tagID int32) uint64            { return a.lines[tagID].Addr }
func (a *Array) ReadDataID(tagID int32) int32              { return a.lines[tagID].DataSet }
func (a *Array) ReadSegment(tagID int32) int32             { return a.lines[tagID].Segment }
func (a *Array) ReadNextShare(tagID int32) int32           { return a.lines[tagID].NextShare }
func (a *Array) ReadEncoding(tagID int32) bdicode.Encoding { return a.lines[tagID].Encoding }
func (a *Array) IsValid(tagID int32) bool                  { return a.lines[tagID].Valid }

// CountValid returns the number of valid tag lines (validLines in §8).
func (a *Array) CountValid() int {
	return int(a.valid.Count())
}
