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

// Package replpolicy provides the pluggable victim-selection policies that
// TagArray, DataArray and HashArray drive through a single narrow interface,
// per §6's "Replacement policy plug-in". Two real implementations are backed
// by hashicorp/golang-lru's LRU and ARC caches; a third is a deterministic
// round-robin used by unit tests that need reproducible victim choices.
package replpolicy

import (
	mapset "github.com/deckarep/golang-set/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/arc/v2"
)

// Policy tracks recency/frequency over a fixed universe of integer slot ids
// and picks eviction victims, excluding any id present in the caller-supplied
// exclusion set (the "kept" set of §4.5).
type Policy interface {
	// Touch marks id as just-used. Called only when updateRepl is set.
	Touch(id int32)
	// Victim returns a slot id to evict, skipping every id in exclude.
	// Candidates is the full universe of valid ids [0, n).
	Victim(exclude mapset.Set[int32]) int32
	// Remove forgets id, e.g. after it has been invalidated.
	Remove(id int32)
}

// lruPolicy wraps hashicorp/golang-lru as a recency tracker over a closed
// universe of ids; all ids are seeded present so Victim always has a
// candidate to evict (the "cache" here holds metadata, not the payload).
type lruPolicy struct {
	cache *lru.Cache[int32, struct{}]
	order []int32 // insertion/seed order, used as the fallback scan when cache.Keys() is exhausted by exclusions
}

// NewLRU builds an LRU-driven policy over n slots (ids 0..n-1).
func NewLRU(n int) Policy {
	c, err := lru.New[int32, struct{}](n)
	if err != nil {
		panic(err)
	}
	order := make([]int32, n)
	for i := 0; i < n; i++ {
		order[i] = int32(i)
		c.Add(int32(i), struct{}{})
	}
	return &lruPolicy{cache: c, order: order}
}

func (p *lruPolicy) Touch(id int32) {
	p.cache.Get(id)
}

func (p *lruPolicy) Victim(exclude mapset.Set[int32]) int32 {
	for _, id := range p.cache.Keys() {
		if exclude == nil || !exclude.Contains(id) {
			return id
		}
	}
	for _, id := range p.order {
		if exclude == nil || !exclude.Contains(id) {
			return id
		}
	}
	return -1
}

func (p *lruPolicy) Remove(id int32) {
	// Re-add at the back so it remains a valid future victim candidate;
	// a removed slot must stay selectable, it is not gone from the universe.
	p.cache.Remove(id)
	p.cache.Add(id, struct{}{})
}

// arcPolicy mirrors lruPolicy but is driven by an Adaptive Replacement Cache,
// offered as the scan-resistant alternative selectable via config.
type arcPolicy struct {
	cache *arc.ARCCache[int32, struct{}]
	order []int32
}

// NewARC builds an ARC-driven policy over n slots.
func NewARC(n int) Policy {
	c, err := arc.NewARC[int32, struct{}](n)
	if err != nil {
		panic(err)
	}
	order := make([]int32, n)
	for i := 0; i < n; i++ {
		order[i] = int32(i)
		c.Add(int32(i), struct{}{})
	}
	return &arcPolicy{cache: c, order: order}
}

func (p *arcPolicy) Touch(id int32) {
	p.cache.Get(id)
}

func (p *arcPolicy) Victim(exclude mapset.Set[int32]) int32 {
	for _, id := range p.cache.Keys() {
		if exclude == nil || !exclude.Contains(id) {
			return id
		}
	}
	for _, id := range p.order {
		if exclude == nil || !exclude.Contains(id) {
			return id
		}
	}
	return -1
}

func (p *arcPolicy) Remove(id int32) {
	p.cache.Remove(id)
	p.cache.Add(id, struct{}{})
}

// roundRobin is a deterministic policy: Victim always returns the lowest id
// not in exclude, Touch is a no-op. Used by unit tests that need the
// reclamation loop's outcome to be reproducible across runs.
type roundRobin struct {
	n int
}

// NewRoundRobin builds a deterministic policy over n slots.
func NewRoundRobin(n int) Policy {
	return &roundRobin{n: n}
}

func (p *roundRobin) Touch(int32) {}

func (p *roundRobin) Victim(exclude mapset.Set[int32]) int32 {
	for i := 0; i < p.n; i++ {
		id := int32(i)
		if exclude == nil || !exclude.Contains(id) {
			return id
		}
	}
	return -1
}

func (p *roundRobin) Remove(int32) {}
