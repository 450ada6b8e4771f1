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

package mshr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTryAcquireUpToCapacity(t *testing.T) {
	p := NewPool(2)
	require.True(t, p.TryAcquire(nil))
	require.True(t, p.TryAcquire(nil))
	require.False(t, p.TryAcquire(nil))
}

func TestReleaseDrainsPendingRetries(t *testing.T) {
	p := NewPool(1)
	require.True(t, p.TryAcquire(nil))

	ran := false
	require.False(t, p.TryAcquire(func() { ran = true }))
	require.Equal(t, 1, p.PendingCount())

	p.Release()
	require.True(t, ran)
	require.Equal(t, 0, p.PendingCount())
}

func TestReleaseWithoutPendingIsSafe(t *testing.T) {
	p := NewPool(1)
	require.True(t, p.TryAcquire(nil))
	require.NotPanics(t, func() { p.Release() })
	require.True(t, p.TryAcquire(nil))
}
