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

// Package mathutil collects small integer helpers: overflow-checked addition
// and multiplication, the ceiling division behind geometry.CeilSegments, and
// the Max used by the timing-graph package.
package mathutil

import "math/bits"

// AbsoluteDifference returns |x-y| for two uint64, without risking underflow.
func AbsoluteDifference(x, y uint64) uint64 {
	if x > y {
		return x - y
	}
	return y - x
}

// SafeMul returns x*y and reports whether the multiplication overflowed.
func SafeMul(x, y uint64) (uint64, bool) {
	hi, lo := bits.Mul64(x, y)
	return lo, hi != 0
}

// SafeAdd returns x+y and reports whether the addition overflowed.
func SafeAdd(x, y uint64) (uint64, bool) {
	sum, carryOut := bits.Add64(x, y, 0)
	return sum, carryOut != 0
}

// CeilDiv rounds x/y up to the nearest integer; CeilDiv(x, 0) is 0 rather
// than panicking, since callers treat a zero divisor as "not applicable".
func CeilDiv(x, y int) int {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// Max returns the larger of two uint64 cycle counts; used throughout the
// timing graph where a node's min-start cycle is the max of several inputs.
func Max(x, y uint64) uint64 {
	if x > y {
		return x
	}
	return y
}
