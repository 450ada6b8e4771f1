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

// Package config loads a cache instance's geometry and policy knobs from a
// TOML file, in the same pelletier/go-toml-driven style the rest of the
// ecosystem corpus configures services.
package config

import (
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// ApproxRegion declares one address range as holding approximate data, per
// the TOML config's [[approx_regions]] array.
type ApproxRegion struct {
	Start uint64 `toml:"start"`
	End   uint64 `toml:"end"`
	Type  string `toml:"type"` // "float32", "float64", "int32", "int16"
}

// Config is the complete set of knobs needed to build a Cache.
type Config struct {
	LineSize            datasize.ByteSize `toml:"line_size"`
	NumTags             uint32            `toml:"num_tags"`
	DataSize            datasize.ByteSize `toml:"data_size"`
	Assoc               uint32            `toml:"assoc"`
	AccessLatencyCycles uint32            `toml:"access_latency_cycles"`
	HashSlots           uint32            `toml:"hash_slots"`
	FillLatencyCycles   uint64            `toml:"fill_latency_cycles"`
	WritebackLatency    uint64            `toml:"writeback_latency_cycles"`
	MSHREntries         int               `toml:"mshr_entries"`
	ReplacementPolicy   string            `toml:"replacement_policy"` // "lru", "arc", "round-robin"
	Approximate         bool              `toml:"approximate"`
	ApproxRegions       []ApproxRegion    `toml:"approx_regions"`
	Trace               bool              `toml:"trace"`
}

// Default returns the knobs used when no config file is supplied: a 64-byte
// line, 4K tags, 1MiB of data-array backing, 8-way sets, LRU replacement.
func Default() *Config {
	return &Config{
		LineSize:            64 * datasize.B,
		NumTags:             4096,
		DataSize:            1 * datasize.MB,
		Assoc:               8,
		AccessLatencyCycles: 4,
		HashSlots:           4096,
		FillLatencyCycles:   100,
		WritebackLatency:    50,
		MSHREntries:         16,
		ReplacementPolicy:   "lru",
	}
}

// Load reads and parses a TOML config file, starting from Default() so a
// partial file only overrides the fields it mentions.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	cfg := Default()
	if err := toml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}
