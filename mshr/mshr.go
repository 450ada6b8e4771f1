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

// Package mshr models the fixed pool of miss-status holding registers a
// HitWritebackEvent must acquire (§5, §4.8): a bounded resource that retries
// at low priority on contention and, once acquired, drains a FIFO of events
// that deferred themselves waiting on the same resource.
package mshr

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool is a fixed-size MSHR pool backed by a weighted semaphore.
type Pool struct {
	sem     *semaphore.Weighted
	pending []func()
}

// NewPool builds a pool with n MSHR slots.
func NewPool(n int) *Pool {
	return &Pool{sem: semaphore.NewWeighted(int64(n))}
}

// TryAcquire attempts a low-priority, non-blocking acquisition of one MSHR
// slot. On failure it enqueues onRetry to run once a slot next frees, per
// the "requeues itself on contention" contract of §5.
func (p *Pool) TryAcquire(onRetry func()) (acquired bool) {
	if p.sem.TryAcquire(1) {
		return true
	}
	if onRetry != nil {
		p.pending = append(p.pending, onRetry)
	}
	return false
}

// Release frees one MSHR slot and drains the pending queue, running every
// deferred retry that had queued up while the pool was saturated.
func (p *Pool) Release() {
	p.sem.Release(1)
	drained := p.pending
	p.pending = nil
	for _, fn := range drained {
		fn()
	}
}

// Acquire blocks until a slot is available or ctx is done. The access engine
// does not use it (it calls TryAcquire), and neither does the CLI driver.
func (p *Pool) Acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}

// PendingCount reports how many retries are currently queued, for tests and
// stats reporting.
func (p *Pool) PendingCount() int {
	return len(p.pending)
}
