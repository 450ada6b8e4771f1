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

// Package cache wires the tag/data/hash directories, the coherence
// controller, the memory sampler and the access engine into one buildable
// instance, driven by a config.Config.
package cache

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/erigontech/llcache/accessengine"
	"github.com/erigontech/llcache/approx"
	"github.com/erigontech/llcache/coherence"
	"github.com/erigontech/llcache/dataarray"
	"github.com/erigontech/llcache/geometry"
	"github.com/erigontech/llcache/hasharray"
	"github.com/erigontech/llcache/internal/config"
	"github.com/erigontech/llcache/internal/memsampler"
	"github.com/erigontech/llcache/mshr"
	"github.com/erigontech/llcache/replpolicy"
	"github.com/erigontech/llcache/request"
	"github.com/erigontech/llcache/stats"
	"github.com/erigontech/llcache/tagarray"
)

// Cache is one fully wired instance: a geometry, its three directories, and
// the access engine that drives them.
type Cache struct {
	Geo    *geometry.Geometry
	Tags   *tagarray.Array
	Data   *dataarray.Array
	Hashes *hasharray.Array
	Mem    *memsampler.ByteStore
	Stats  *stats.Sink
	Engine *accessengine.Engine
}

// policyFactory resolves the config's replacement-policy name to a
// constructor, defaulting to LRU for an unrecognized or empty name.
func policyFactory(name string) func(n int) replpolicy.Policy {
	switch name {
	case "arc":
		return replpolicy.NewARC
	case "round-robin":
		return replpolicy.NewRoundRobin
	default:
		return replpolicy.NewLRU
	}
}

func parseDataType(name string) (approx.DataType, error) {
	switch name {
	case "float32":
		return approx.FLOAT32, nil
	case "float64":
		return approx.FLOAT64, nil
	case "int32":
		return approx.INT32, nil
	case "int16":
		return approx.INT16, nil
	default:
		return 0, errors.Errorf("unknown approximate region type %q", name)
	}
}

// New builds a Cache from cfg. log may be nil; reg (a Prometheus registry)
// may also be nil, in which case metrics are not exported.
func New(cfg *config.Config, log *zap.SugaredLogger, reg prometheus.Registerer) (*Cache, error) {
	numSegments := uint32(cfg.DataSize.Bytes() / geometry.SegmentBytes)
	geo, err := geometry.New(uint32(cfg.LineSize.Bytes()), cfg.NumTags, numSegments, cfg.Assoc, cfg.AccessLatencyCycles, cfg.HashSlots)
	if err != nil {
		return nil, errors.Wrap(err, "building geometry")
	}

	newPolicy := policyFactory(cfg.ReplacementPolicy)
	tags := tagarray.New(int(geo.NumTags), newPolicy(int(geo.NumTags)))
	data := dataarray.New(geo, newPolicy)
	hashes := hasharray.New(int(geo.HashSlots), newPolicy(int(geo.HashSlots)))

	cc := coherence.NewDefault(cfg.FillLatencyCycles, cfg.WritebackLatency)

	var sugared *zap.SugaredLogger
	if log != nil {
		sugared = log
	}

	mem := memsampler.NewByteStore(uint64(geo.LineBytes))
	mem.SetTrace(cfg.Trace)
	mem.SetLogger(sugared)

	var at *approx.Table
	if cfg.Approximate {
		at = approx.NewTable()
		for _, r := range cfg.ApproxRegions {
			typ, err := parseDataType(r.Type)
			if err != nil {
				return nil, errors.Wrapf(err, "approx region [%d,%d]", r.Start, r.End)
			}
			at.Declare(r.Start, r.End, typ)
		}
	}

	sink := stats.NewSink(reg)
	pool := mshr.NewPool(cfg.MSHREntries)

	engine := accessengine.New(geo, tags, data, hashes, cc, mem, at, sink, pool, sugared)

	return &Cache{
		Geo: geo, Tags: tags, Data: data, Hashes: hashes,
		Mem: mem, Stats: sink, Engine: engine,
	}, nil
}

// Access runs req through the access engine.
func (c *Cache) Access(req *request.Request) accessengine.Result {
	return c.Engine.Access(req)
}

// Snapshot captures the directories' current occupancy alongside the
// engine's running stats, the dumpStats()-equivalent report's input.
func (c *Cache) Snapshot() stats.Snapshot {
	return c.Stats.Snapshot(c.Tags.CountValid(), c.Data.CountValidSegments(), c.Hashes.CountValidLines())
}
