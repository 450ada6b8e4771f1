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

package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/llcache/internal/config"
	"github.com/erigontech/llcache/request"
	"github.com/erigontech/llcache/stats"
)

func TestNewBuildsFromDefaultConfig(t *testing.T) {
	c, err := New(config.Default(), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, c.Engine)
}

func TestAccessThenSnapshotReflectsOneLine(t *testing.T) {
	c, err := New(config.Default(), nil, nil)
	require.NoError(t, err)

	buf := make([]byte, c.Geo.LineBytes)
	buf[0] = 1
	c.Mem.Write(0, buf)

	res := c.Access(&request.Request{LineAddr: 0, Op: request.GETS, Cycle: 0})
	require.Equal(t, stats.TM_HM, res.Case)

	snap := c.Snapshot()
	require.Equal(t, 1, snap.ValidLines)
	require.EqualValues(t, 1, snap.Transitions[stats.TM_HM])
}

func TestNewRejectsUnknownApproxRegionType(t *testing.T) {
	cfg := config.Default()
	cfg.Approximate = true
	cfg.ApproxRegions = []config.ApproxRegion{{Start: 0, End: 100, Type: "bogus"}}

	_, err := New(cfg, nil, nil)
	require.Error(t, err)
}
