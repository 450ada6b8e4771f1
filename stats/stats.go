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

// Package stats implements the engine's stats sinks (§6, §4.8): running-mean
// accumulators and per-case transition/eviction counters, exported both
// in-process and as Prometheus metrics.
package stats

import (
	"io"

	goccyjson "github.com/goccy/go-json"
	jsoniter "github.com/json-iterator/go"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
)

// Case names the eleven rows of the classification matrix (§4.4).
type Case string

const (
	TM_HM         Case = "TM_HM"
	TM_HH_DI      Case = "TM_HH_DI"
	TM_HH_DS      Case = "TM_HH_DS"
	TM_HH_DD      Case = "TM_HH_DD"
	WD_TH_HM_1    Case = "WD_TH_HM_1"
	WD_TH_HM_M    Case = "WD_TH_HM_M"
	WD_TH_HH_DI   Case = "WD_TH_HH_DI"
	WD_TH_HH_DS   Case = "WD_TH_HH_DS"
	WD_TH_HH_DD_1 Case = "WD_TH_HH_DD_1"
	WD_TH_HH_DD_M Case = "WD_TH_HH_DD_M"
	WSR_TH        Case = "WSR_TH"
)

// AllCases lists every case in table order, for stable iteration/reporting.
var AllCases = []Case{
	TM_HM, TM_HH_DI, TM_HH_DS, TM_HH_DD,
	WD_TH_HM_1, WD_TH_HM_M, WD_TH_HH_DI, WD_TH_HH_DS, WD_TH_HH_DD_1, WD_TH_HH_DD_M,
	WSR_TH,
}

// RunningStats accumulates count/mean/variance via Welford's algorithm,
// matching the `dupStats`/`bdiStats` running accumulators of the original.
type RunningStats struct {
	count uint64
	mean  float64
	m2    float64
}

// Add folds one sample into the running mean/variance.
func (r *RunningStats) Add(x float64) {
	r.count++
	delta := x - r.mean
	r.mean += delta / float64(r.count)
	delta2 := x - r.mean
	r.m2 += delta * delta2
}

// Mean returns the running mean, or 0 before any sample.
func (r *RunningStats) Mean() float64 {
	if r.count == 0 {
		return 0
	}
	return r.mean
}

// Variance returns the running (population) variance, or 0 before two samples.
func (r *RunningStats) Variance() float64 {
	if r.count < 2 {
		return 0
	}
	return r.m2 / float64(r.count)
}

// Count is the number of samples folded in so far.
func (r *RunningStats) Count() uint64 { return r.count }

// Snapshot is the point-in-time report the CLI driver renders/serializes.
type Snapshot struct {
	ValidLines     int               `json:"validLines"`
	ValidSegments  int               `json:"validSegments"`
	ValidHashLines int               `json:"validHashLines"`
	Evictions      uint64            `json:"evictions"`
	CompressionMean float64          `json:"compressionRatioMean"`
	DedupMean      float64           `json:"dedupRatioMean"`
	Transitions    map[Case]uint64   `json:"transitions"`
	EvictionsByCase map[Case]uint64  `json:"evictionsByCase"`
}

// Sink is the engine's single stats collaborator: in-process accumulators
// plus their Prometheus-exported twins.
type Sink struct {
	compression RunningStats
	dedup       RunningStats
	transitions map[Case]uint64
	evByCase    map[Case]uint64
	evictions   uint64

	promTransitions *prometheus.CounterVec
	promEvictions   *prometheus.CounterVec
	promCompression prometheus.Summary
	promDedup       prometheus.Summary
}

// NewSink builds a Sink and registers its Prometheus collectors with reg.
// Passing a nil registry skips Prometheus registration (e.g. in unit tests
// that construct many Sinks and would otherwise collide on metric names).
func NewSink(reg prometheus.Registerer) *Sink {
	s := &Sink{
		transitions: make(map[Case]uint64, len(AllCases)),
		evByCase:    make(map[Case]uint64, len(AllCases)),
		promTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llcache",
			Name:      "case_transitions_total",
			Help:      "Count of accesses classified into each of the eleven access-engine cases.",
		}, []string{"case"}),
		promEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llcache",
			Name:      "case_evictions_total",
			Help:      "Count of sharer evictions attributed to each triggering case.",
		}, []string{"case"}),
		promCompression: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace: "llcache",
			Name:      "compression_ratio",
			Help:      "Per-access compression ratio (valid segments / valid tags).",
		}),
		promDedup: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace: "llcache",
			Name:      "dedup_ratio",
			Help:      "Per-access dedup ratio (valid tags / compressed-line count).",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.promTransitions, s.promEvictions, s.promCompression, s.promDedup)
	}
	return s
}

// RecordAccess folds one access's ratios into the running stats and bumps
// the case's transition counter.
func (s *Sink) RecordAccess(c Case, compressionRatio, dedupRatio float64) {
	s.transitions[c]++
	s.promTransitions.WithLabelValues(string(c)).Inc()
	s.compression.Add(compressionRatio)
	s.dedup.Add(dedupRatio)
	s.promCompression.Observe(compressionRatio)
	s.promDedup.Observe(dedupRatio)
}

// RecordEviction attributes one evicted sharer to the triggering case.
func (s *Sink) RecordEviction(triggeringCase Case) {
	s.evictions++
	s.evByCase[triggeringCase]++
	s.promEvictions.WithLabelValues(string(triggeringCase)).Inc()
}

// Snapshot captures validLines/validSegments/validHashLines (read from the
// three directories by the caller) alongside the sink's own accumulators.
func (s *Sink) Snapshot(validLines, validSegments, validHashLines int) Snapshot {
	transitions := make(map[Case]uint64, len(s.transitions))
	for k, v := range s.transitions {
		transitions[k] = v
	}
	evByCase := make(map[Case]uint64, len(s.evByCase))
	for k, v := range s.evByCase {
		evByCase[k] = v
	}
	return Snapshot{
		ValidLines:      validLines,
		ValidSegments:   validSegments,
		ValidHashLines:  validHashLines,
		Evictions:       s.evictions,
		CompressionMean: s.compression.Mean(),
		DedupMean:       s.dedup.Mean(),
		Transitions:     transitions,
		EvictionsByCase: evByCase,
	}
}

// EncodeJSON serializes a Snapshot via json-iterator, the encode-side of the
// two alternate fast-JSON codecs wired per SPEC_FULL.md §2.2.
func EncodeJSON(snap Snapshot) ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(snap)
}

// DecodeJSON deserializes a Snapshot via goccy/go-json, the decode-side
// counterpart to EncodeJSON.
func DecodeJSON(data []byte) (Snapshot, error) {
	var snap Snapshot
	err := goccyjson.Unmarshal(data, &snap)
	return snap, err
}

// WriteReport renders a Snapshot as an aligned table (go-pretty), the
// dumpStats()-equivalent end-of-run report of §4.8.
func WriteReport(w io.Writer, snap Snapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"validLines", snap.ValidLines})
	t.AppendRow(table.Row{"validSegments", snap.ValidSegments})
	t.AppendRow(table.Row{"validHashLines", snap.ValidHashLines})
	t.AppendRow(table.Row{"evictions", snap.Evictions})
	t.AppendRow(table.Row{"compressionRatioMean", snap.CompressionMean})
	t.AppendRow(table.Row{"dedupRatioMean", snap.DedupMean})
	t.AppendSeparator()
	for _, c := range AllCases {
		t.AppendRow(table.Row{string(c), snap.Transitions[c]})
	}
	t.AppendSeparator()
	for _, c := range AllCases {
		t.AppendRow(table.Row{string(c) + "_evictions", snap.EvictionsByCase[c]})
	}
	t.Render()
}
