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

package stats

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	fuzz "github.com/google/gofuzz"
	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
)

// TestSnapshotJSONRoundTrip exercises the asymmetric encode/decode pair: a
// Snapshot goes out through json-iterator (EncodeJSON) and comes back
// through goccy/go-json (DecodeJSON). Both google/go-cmp and go-test/deep
// are used to diff the round trip, since the two give differently-shaped
// failure output and this is the one place in the tree both are exercised.
func TestSnapshotJSONRoundTrip(t *testing.T) {
	s := NewSink(nil)
	s.RecordAccess(TM_HM, 0.5, 0)
	s.RecordAccess(TM_HH_DS, 0.5, 0.5)
	s.RecordEviction(WD_TH_HH_DD_M)

	want := s.Snapshot(3, 5, 2)

	encoded, err := EncodeJSON(want)
	require.NoError(t, err)

	got, err := DecodeJSON(encoded)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot changed shape across the JSON round trip (-want +got):\n%s", diff)
	}
	if diff := deep.Equal(want, got); diff != nil {
		t.Fatalf("go-test/deep found a mismatch the round trip should not introduce: %v", diff)
	}
}

// TestRunningStatsMeanBoundedByFuzzedSamples checks the Welford accumulator's
// basic invariant — the running mean never leaves the sampled range — across
// a randomly sized, randomly valued sample set generated by gofuzz rather
// than a hand-picked fixture.
func TestRunningStatsMeanBoundedByFuzzedSamples(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(5, 50).Funcs(
		func(x *float64, c fuzz.Continue) {
			*x = c.Float64()*2000 - 1000
		},
	)
	var samples []float64
	f.Fuzz(&samples)
	require.NotEmpty(t, samples)

	var rs RunningStats
	min, max := samples[0], samples[0]
	for _, x := range samples {
		rs.Add(x)
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}

	require.EqualValues(t, len(samples), rs.Count())
	require.GreaterOrEqual(t, rs.Mean(), min)
	require.LessOrEqual(t, rs.Mean(), max)
}
