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

// Package memsampler implements the memory-sampler collaborator of §6: an
// opaque SafeCopy that reads the target process's address space and
// degrades to an all-zero payload on fault rather than erroring. The
// trace-gated read/log idiom (debug logging through zap behind a boolean
// flag) generalizes HistoryReaderV3's transaction-scoped
// key/value reader into a flat byte-addressable arena.
package memsampler

import "go.uber.org/zap"

// ByteStore is an in-process stand-in for the guest process's address space:
// a flat byte-addressable arena with optional fault injection, used both by
// the CLI driver (to host a scripted trace's line contents) and by tests.
type ByteStore struct {
	trace  bool
	pages  map[uint64][]byte // keyed by page-aligned base address
	faults map[uint64]bool   // addresses that always fault, for tests
	pageSz uint64
	log    *zap.SugaredLogger
}

// NewByteStore builds a store with the given page size (must be a power of
// two); pages are allocated lazily on first write.
func NewByteStore(pageSize uint64) *ByteStore {
	return &ByteStore{
		pages:  make(map[uint64][]byte),
		faults: make(map[uint64]bool),
		pageSz: pageSize,
		log:    zap.NewNop().Sugar(),
	}
}

// SetTrace toggles verbose per-read logging.
func (b *ByteStore) SetTrace(trace bool) { b.trace = trace }

// SetLogger installs the logger trace-gated logging is routed through. A nil
// logger restores the no-op default.
func (b *ByteStore) SetLogger(log *zap.SugaredLogger) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	b.log = log
}

// Write installs len(data) bytes at addr, allocating backing pages as needed.
func (b *ByteStore) Write(addr uint64, data []byte) {
	for i := 0; i < len(data); {
		page := addr + uint64(i)
		base := page - page%b.pageSz
		buf := b.pageOrAlloc(base)
		off := (addr + uint64(i)) - base
		n := copy(buf[off:], data[i:])
		i += n
	}
}

// InjectFault marks addr's containing page as always faulting on SafeCopy.
func (b *ByteStore) InjectFault(addr uint64) {
	base := addr - addr%b.pageSz
	b.faults[base] = true
}

func (b *ByteStore) pageOrAlloc(base uint64) []byte {
	buf, ok := b.pages[base]
	if !ok {
		buf = make([]byte, b.pageSz)
		b.pages[base] = buf
	}
	return buf
}

// SafeCopy reads n bytes starting at sourceAddr into dest. On a faulting
// page it zeroes dest instead of returning an error, per §6's
// "collaborator's contract": a memory-sampler fault degrades quality, it is
// never a simulation error.
func (b *ByteStore) SafeCopy(dest []byte, sourceAddr uint64, n int) {
	for i := 0; i < n; {
		addr := sourceAddr + uint64(i)
		base := addr - addr%b.pageSz
		if b.faults[base] {
			for j := i; j < n; j++ {
				dest[j] = 0
			}
			if b.trace {
				b.log.Debugw("memsampler: fault reading page, zeroing remainder", "page", base)
			}
			return
		}
		buf := b.pageOrAlloc(base)
		off := addr - base
		remain := n - i
		avail := len(buf) - int(off)
		k := remain
		if avail < k {
			k = avail
		}
		copy(dest[i:i+k], buf[off:int(off)+k])
		i += k
	}
	if b.trace {
		b.log.Debugw("memsampler: read bytes", "n", n, "sourceAddr", sourceAddr)
	}
}
