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

// Package hasharray implements the HashArray of §4.3: a content-hash to
// (dataSet, segment) index used for deduplication lookups. Presence is a
// hint only — a stale entry is tolerated and caught downstream by
// DataArray.IsSame.
package hasharray

import (
	"github.com/cespare/xxhash/v2"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/willf/bitset"

	"github.com/erigontech/llcache/approx"
	"github.com/erigontech/llcache/replpolicy"
)

// Invalid is the sentinel for "no such hash slot".
const Invalid = -1

type entry struct {
	hash    uint64
	valid   bool
	dataSet int32
	segment int32
}

// Array is the hash directory.
type Array struct {
	entries []entry
	valid   *bitset.BitSet
	policy  replpolicy.Policy
	byHash  map[uint64]int32
}

// New builds an empty hash array of n slots driven by policy.
func New(n int, policy replpolicy.Policy) *Array {
	return &Array{
		entries: make([]entry, n),
		valid:   bitset.New(uint(n)),
		policy:  policy,
		byHash:  make(map[uint64]int32, n),
	}
}

// Approximate truncates payload in place per the declared region's type,
// before hashing, so near-equal lines collapse to the same hash (§4.3).
func Approximate(payload []byte, typ approx.DataType) {
	approx.Truncate(payload, typ)
}

// Hash computes the content hash fed into Lookup/Preinsert. xxhash is
// non-cryptographic and fast, matching the simulator's need to detect
// equality cheaply rather than authenticate content.
func Hash(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}

// Lookup returns the hash id for h, touching replacement on hit only when
// updateRepl is set.
func (a *Array) Lookup(h uint64, updateRepl bool) int32 {
	id, ok := a.byHash[h]
	if !ok {
		return Invalid
	}
	if updateRepl {
		a.policy.Touch(id)
	}
	return id
}

// Preinsert picks the hash slot id a new entry will overwrite: the
// lowest-numbered never-used slot not in kept when there is one, otherwise
// the replacement policy's victim. It does not mutate state.
func (a *Array) Preinsert(kept mapset.Set[int32]) int32 {
	for i := range a.entries {
		free := int32(i)
		if !a.valid.Test(uint(i)) && (kept == nil || !kept.Contains(free)) {
			return free
		}
	}
	return a.policy.Victim(kept)
}

// Postinsert writes hashID's fields and, when updateRepl is set, touches
// replacement.
func (a *Array) Postinsert(h uint64, dataSet, segment int32, hashID int32, updateRepl bool) {
	old := a.entries[hashID]
	if old.valid {
		delete(a.byHash, old.hash)
	}
	a.entries[hashID] = entry{hash: h, valid: true, dataSet: dataSet, segment: segment}
	a.valid.Set(uint(hashID))
	a.byHash[h] = hashID
	if updateRepl {
		a.policy.Touch(hashID)
	}
}

// ReadDataPointer and ReadSegmentPointer are the narrow accessors the engine
// needs once it has a hash id.
func (a *Array) ReadDataPointer(hashID int32) int32 { return a.entries[hashID].dataSet }
func (a *Array) ReadSegmentPointer(hashID int32) int32 { return a.entries[hashID].segment }

// CountValidLines returns the number of occupied hash slots. Per §9's third
// open question, this count is inflated by stale entries whose underlying
// segment has since been freed — the hash array is never proactively
// cleared, only masked by IsSame at lookup time.
func (a *Array) CountValidLines() int {
	return int(a.valid.Count())
}
