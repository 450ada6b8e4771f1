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

package timinggraph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMissWritebackDuration(t *testing.T) {
	b := NewBuilder()
	n := b.MissWriteback(10, 4)
	require.EqualValues(t, 8, n.Duration)
	require.EqualValues(t, 18, n.DoneCycle())
}

func TestHitWritebackDuration(t *testing.T) {
	b := NewBuilder()
	n := b.HitWriteback(10, 4)
	require.EqualValues(t, 12, n.Duration)
	require.EqualValues(t, 22, n.DoneCycle())
}

func TestConnectSameCycle(t *testing.T) {
	b := NewBuilder()
	start := b.MissStart(0, 4)
	end := b.MissResponse(4)
	b.Connect(start, end, 4, 4)
	g := b.Graph()
	require.Contains(t, g.Edges[start.ID], end.ID)
}

func TestConnectInsertsDelay(t *testing.T) {
	b := NewBuilder()
	start := b.MissStart(0, 4)
	end := b.MissResponse(10)
	b.Connect(start, end, 4, 10)
	g := b.Graph()
	require.Len(t, g.Edges[start.ID], 1)
	delayID := g.Edges[start.ID][0]
	require.Equal(t, KindDelay, g.Nodes[delayID].Kind)
	require.Contains(t, g.Edges[delayID], end.ID)
}

func TestConnectEndBeforeStartJoinsDirectly(t *testing.T) {
	b := NewBuilder()
	start := b.MissStart(10, 4)
	end := b.MissResponse(14)
	b.Connect(start, end, 14, 10)
	g := b.Graph()
	require.Contains(t, g.Edges[start.ID], end.ID, "endCycle <= startCycle must not insert a zero-duration Delay")
}

func TestMaxDoneCycle(t *testing.T) {
	require.EqualValues(t, 42, MaxDoneCycle(1, 42, 7))
	require.EqualValues(t, 0, MaxDoneCycle())
}

func TestDOTRendersEveryNode(t *testing.T) {
	b := NewBuilder()
	s := b.MissStart(0, 4)
	e := b.MissResponse(4)
	b.AddEdge(s, e)
	dot := b.Graph().DOT()
	require.True(t, strings.Contains(dot, "MissStart"))
	require.True(t, strings.Contains(dot, "MissResponse"))
}
