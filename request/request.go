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

// Package request defines the Request type that flows through the access
// engine and its collaborators (§6).
package request

// Op is the access type of a Request.
type Op uint8

const (
	GETS Op = iota
	GETX
	PUTS
	PUTX
)

func (o Op) String() string {
	switch o {
	case GETS:
		return "GETS"
	case GETX:
		return "GETX"
	case PUTS:
		return "PUTS"
	case PUTX:
		return "PUTX"
	default:
		return "UNKNOWN"
	}
}

// IsGet reports whether this op should update the replacement policy on a
// tag/hash hit, per §4.4's `updateRepl = op ∈ {GETS, GETX}`.
func (o Op) IsGet() bool {
	return o == GETS || o == GETX
}

// Request is one memory access presented to the cache.
type Request struct {
	LineAddr uint64 // physical block address, already shifted right by log2(LINE)
	Op       Op
	SrcID    int
	Cycle    uint64
	// State carries coherence-controller-private state across startAccess,
	// shouldAllocate, processAccess and endAccess for a single request.
	State any
}
