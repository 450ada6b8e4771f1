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

// Package coherence defines the narrow coherence-controller interface the
// access engine drives (§6), plus a default single-core implementation that
// never skips an access, always allocates, and attributes a fixed latency to
// evictions and fills. A full coherence fabric is out of scope; this default
// is what lets the engine run standalone.
package coherence

import "github.com/erigontech/llcache/request"

// Controller is the cc collaborator.
type Controller interface {
	// StartAccess may reclassify req.Op (e.g. upgrade demotion) and reports
	// whether the access must be skipped entirely (a race with another
	// in-flight access to the same line).
	StartAccess(req *request.Request) (skip bool)
	// ShouldAllocate reports whether a tag miss should allocate a line at
	// all (false for some write-no-allocate policies outside this scope).
	ShouldAllocate(req *request.Request) bool
	// ProcessEviction writes back victimTagID's line and returns the cycle
	// the writeback completes.
	ProcessEviction(req *request.Request, addr uint64, victimTagID int32, startCycle uint64) (endCycle uint64)
	// ProcessAccess resolves the access upstream (e.g. a fill from the next
	// level) and returns the response cycle; getDoneCycle is updated with the
	// cycle the fill data itself becomes available, which must equal the
	// returned respCycle on the hot path (§4.4 asserts this).
	ProcessAccess(req *request.Request, tagID int32, respCycle uint64, getDoneCycle *uint64) (newRespCycle uint64)
	// EndAccess releases any per-request state StartAccess allocated.
	EndAccess(req *request.Request)
}

// Default is a single-core, always-allocate coherence controller: never
// skips, attributes FillLatency to a fill and WritebackLatency to a
// writeback. It is the concrete CC the cache uses when no richer fabric is
// wired in.
type Default struct {
	FillLatency      uint64
	WritebackLatency uint64
}

// NewDefault builds a Default controller with the given fill/writeback
// latencies, in cycles.
func NewDefault(fillLatency, writebackLatency uint64) *Default {
	return &Default{FillLatency: fillLatency, WritebackLatency: writebackLatency}
}

func (d *Default) StartAccess(*request.Request) bool { return false }

func (d *Default) ShouldAllocate(*request.Request) bool { return true }

func (d *Default) ProcessEviction(_ *request.Request, _ uint64, _ int32, startCycle uint64) uint64 {
	return startCycle + d.WritebackLatency
}

func (d *Default) ProcessAccess(_ *request.Request, _ int32, respCycle uint64, getDoneCycle *uint64) uint64 {
	newResp := respCycle + d.FillLatency
	*getDoneCycle = newResp
	return newResp
}

func (d *Default) EndAccess(*request.Request) {}
