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

package memsampler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenSafeCopyRoundTrips(t *testing.T) {
	b := NewByteStore(16)
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	b.Write(10, want)

	got := make([]byte, len(want))
	b.SafeCopy(got, 10, len(want))
	require.Equal(t, want, got)
}

func TestSafeCopySpansPageBoundary(t *testing.T) {
	b := NewByteStore(8)
	b.Write(4, []byte{1, 2, 3, 4, 5, 6, 7, 8}) // spans page [0,8) and [8,16)

	got := make([]byte, 8)
	b.SafeCopy(got, 4, 8)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)
}

func TestSafeCopyReadsUnwrittenPageAsZero(t *testing.T) {
	b := NewByteStore(16)
	got := make([]byte, 4)
	b.SafeCopy(got, 100, 4)
	require.Equal(t, []byte{0, 0, 0, 0}, got)
}

func TestInjectFaultZeroesPayloadInstead(t *testing.T) {
	b := NewByteStore(16)
	b.Write(0, []byte{9, 9, 9, 9})
	b.InjectFault(0)

	got := []byte{1, 1, 1, 1}
	b.SafeCopy(got, 0, 4)
	require.Equal(t, []byte{0, 0, 0, 0}, got, "a faulting page must degrade to zero, not propagate an error")
}
