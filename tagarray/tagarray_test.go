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

package tagarray

import (
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/llcache/bdicode"
	"github.com/erigontech/llcache/replpolicy"
)

func TestLookupMissOnEmptyArray(t *testing.T) {
	a := New(4, replpolicy.NewRoundRobin(4))
	require.EqualValues(t, Invalid, a.Lookup(0xABCD, true))
}

func TestPostinsertThenLookupHits(t *testing.T) {
	a := New(4, replpolicy.NewRoundRobin(4))
	a.Postinsert(0x100, 0, 2, 3, bdicode.BASE8_DELTA1, Invalid, true)
	require.EqualValues(t, 0, a.Lookup(0x100, true))
	require.EqualValues(t, 2, a.ReadDataID(0))
	require.EqualValues(t, 3, a.ReadSegment(0))
	require.True(t, a.IsValid(0))
	require.EqualValues(t, 1, a.CountValid())
}

func TestPostinsertInvalidatesOldAddress(t *testing.T) {
	a := New(4, replpolicy.NewRoundRobin(4))
	a.Postinsert(0x100, 0, 2, 3, bdicode.NONE, Invalid, true)
	a.Postinsert(0x200, 0, 2, 5, bdicode.NONE, Invalid, true)
	require.EqualValues(t, Invalid, a.Lookup(0x100, true))
	require.EqualValues(t, 0, a.Lookup(0x200, true))
}

func TestEvictAssociatedDataSoleSharer(t *testing.T) {
	a := New(4, replpolicy.NewRoundRobin(4))
	a.Postinsert(0x100, 0, 2, 3, bdicode.NONE, Invalid, true)
	frees, newHead := a.EvictAssociatedData(0, 0)
	require.True(t, frees)
	require.EqualValues(t, Invalid, newHead)
}

func TestEvictAssociatedDataSharedListHead(t *testing.T) {
	a := New(4, replpolicy.NewRoundRobin(4))
	// tag 1 shares with tag 0 as head: listHead=0, 0.NextShare=1
	a.Postinsert(0x100, 0, 2, 3, bdicode.NONE, 1, true)
	a.Postinsert(0x200, 1, 2, 3, bdicode.NONE, Invalid, true)
	frees, newHead := a.EvictAssociatedData(0, 0)
	require.False(t, frees)
	require.EqualValues(t, 1, newHead)
}

func TestEvictAssociatedDataNonHeadSplice(t *testing.T) {
	a := New(4, replpolicy.NewRoundRobin(4))
	// list: 0 -> 1 -> 2, evict 1 (not head)
	a.Postinsert(0x100, 0, 2, 3, bdicode.NONE, 1, true)
	a.Postinsert(0x200, 1, 2, 3, bdicode.NONE, 2, true)
	a.Postinsert(0x300, 2, 2, 3, bdicode.NONE, Invalid, true)
	frees, newHead := a.EvictAssociatedData(1, 0)
	require.False(t, frees)
	require.EqualValues(t, 0, newHead) // head unchanged, splice happened internally
	require.EqualValues(t, 2, a.ReadNextShare(0))
}

func TestPreinsertExcludesKept(t *testing.T) {
	a := New(2, replpolicy.NewRoundRobin(2))
	kept := mapset.NewThreadUnsafeSet[int32](0)
	victim, _ := a.Preinsert(kept)
	require.EqualValues(t, 1, victim)
}
