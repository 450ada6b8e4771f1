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

// Package accessengine implements the eleven-case classification matrix and
// segment-reclamation loop (§4.4, §4.5): the orchestrator that drives the tag,
// data and hash directories, the coherence controller, the MSHR pool and the
// timing-graph builder on every access. This is the component the rest of the
// module exists to support.
package accessengine

import (
	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/erigontech/llcache/approx"
	"github.com/erigontech/llcache/bdicode"
	"github.com/erigontech/llcache/coherence"
	"github.com/erigontech/llcache/dataarray"
	"github.com/erigontech/llcache/geometry"
	"github.com/erigontech/llcache/hasharray"
	"github.com/erigontech/llcache/mshr"
	"github.com/erigontech/llcache/request"
	"github.com/erigontech/llcache/stats"
	"github.com/erigontech/llcache/tagarray"
	"github.com/erigontech/llcache/timinggraph"
)

// MemorySampler is the narrow slice of memsampler.ByteStore the engine needs:
// a fault-tolerant read of one line's bytes.
type MemorySampler interface {
	SafeCopy(dest []byte, sourceAddr uint64, n int)
}

// Engine wires every collaborator of §6 together and implements Access, the
// single entry point a driver calls once per request.
type Engine struct {
	Geo    *geometry.Geometry
	Tags   *tagarray.Array
	Data   *dataarray.Array
	Hashes *hasharray.Array
	CC     coherence.Controller
	Mem    MemorySampler
	Approx *approx.Table
	Stats  *stats.Sink
	MSHR   *mshr.Pool

	approximate bool // whether the approx table is consulted at all
	log         *zap.SugaredLogger
}

// New builds an Engine from its collaborators. log may be nil, in which case
// a no-op logger is used.
func New(geo *geometry.Geometry, tags *tagarray.Array, data *dataarray.Array, hashes *hasharray.Array,
	cc coherence.Controller, mem MemorySampler, at *approx.Table, sink *stats.Sink, pool *mshr.Pool, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{
		Geo: geo, Tags: tags, Data: data, Hashes: hashes, CC: cc,
		Mem: mem, Approx: at, Stats: sink, MSHR: pool,
		approximate: at != nil,
		log:         log,
	}
}

// Result is everything an access produces: the case it was classified into
// and the timing graph describing when its effects become visible.
type Result struct {
	Case  stats.Case
	Graph *timinggraph.Graph
}

// Access runs one request through the full classification matrix, mutating
// the tag/data/hash directories and recording stats as a side effect, and
// returns the case it fell into plus the access's timing graph.
//
// Panics with *InvariantError on any condition §7 calls fatal: a tag miss the
// coherence controller refuses to allocate for (write-no-allocate policies
// are out of scope here), or a reclamation loop that cannot free enough
// contiguous space no matter how much it evicts (a misconfigured geometry,
// e.g. a line that cannot fit in its own data set even empty).
func (e *Engine) Access(req *request.Request) Result {
	b := timinggraph.NewBuilder()

	if skip := e.CC.StartAccess(req); skip {
		e.CC.EndAccess(req)
		return Result{Case: stats.WSR_TH, Graph: b.Graph()}
	}
	defer e.CC.EndAccess(req)

	addrBytes := req.LineAddr << e.Geo.LineBits()
	payload := make([]byte, e.Geo.LineBytes)
	e.Mem.SafeCopy(payload, addrBytes, int(e.Geo.LineBytes))

	if e.approximate {
		if region, ok := e.Approx.Lookup(addrBytes, addrBytes+uint64(e.Geo.LineBytes)-1); ok {
			approx.Truncate(payload, region.Type)
		}
	}
	hash := hasharray.Hash(payload)
	encoding, lineSize := e.Data.Compress(payload)

	updateRepl := req.Op.IsGet()
	tagID := e.Tags.Lookup(req.LineAddr, updateRepl)

	var c stats.Case
	if tagID == tagarray.Invalid {
		c = e.accessTagMiss(req, b, payload, hash, encoding, lineSize, updateRepl)
	} else {
		c = e.accessTagHit(req, b, tagID, payload, hash, encoding, lineSize, updateRepl)
	}

	compressionRatio := ratio(e.Data.CountValidSegments(), e.Tags.CountValid())
	dedupRatio := ratio(e.Tags.CountValid(), e.residentLineCount())
	e.Stats.RecordAccess(c, compressionRatio, dedupRatio)

	return Result{Case: c, Graph: b.Graph()}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// residentLineCount approximates "compressed-line count" (§6) as the number
// of data-set segments currently acting as a sharer-list head: each is one
// distinct stored payload, however many tags share it.
func (e *Engine) residentLineCount() int {
	n := int(e.Geo.NumDataSets())
	setSegs := int(e.Geo.SetSegments())
	count := 0
	for ds := 0; ds < n; ds++ {
		for seg := 0; seg < setSegs; seg++ {
			if e.Data.ReadListHead(int32(ds), int32(seg)) != tagarray.Invalid {
				count++
			}
		}
	}
	return count
}

// --- tag-miss path (TM_*) ---------------------------------------------------

func (e *Engine) accessTagMiss(req *request.Request, b *timinggraph.Builder, payload []byte, hash uint64, encoding bdicode.Encoding, lineSize uint32, updateRepl bool) stats.Case {
	if !e.CC.ShouldAllocate(req) {
		panic(newInvariantError("tag miss but coherence controller refused to allocate (write-no-allocate policies are unsupported)", req))
	}

	victimTagID, victimAddr := e.Tags.Preinsert(nil)
	if victimTagID == tagarray.Invalid {
		panic(newInvariantError("tag array has no victim to offer on a tag miss", req))
	}
	reqCycle := req.Cycle
	respCycle := reqCycle + uint64(e.Geo.AccessLat)

	var tagEvDoneCycle uint64
	if e.Tags.IsValid(victimTagID) {
		evictCycle := respCycle + uint64(e.Geo.AccessLat)
		tagEvDoneCycle = e.CC.ProcessEviction(req, victimAddr, victimTagID, evictCycle)
		e.detachFromSharerList(victimTagID)
		e.Tags.Postinsert(0, victimTagID, tagarray.Invalid, tagarray.Invalid, bdicode.NONE, tagarray.Invalid, false)
	}

	getDoneCycle := respCycle
	respCycle = e.CC.ProcessAccess(req, victimTagID, respCycle, &getDoneCycle)

	hashID := e.Hashes.Lookup(hash, updateRepl)
	var c stats.Case
	var reclaimEvDone uint64
	switch {
	case hashID == hasharray.Invalid:
		c = stats.TM_HM
		dataSet := e.Data.SelectSet(req.LineAddr)
		headSeg, evDone := e.reclaim(dataSet, lineSize, victimTagID, req, c)
		reclaimEvDone = evDone
		e.Tags.Postinsert(req.LineAddr, victimTagID, dataSet, headSeg, encoding, tagarray.Invalid, true)
		e.Data.Postinsert(victimTagID, 1, dataSet, headSeg, payload, encoding, updateRepl)
		newHashID := e.Hashes.Preinsert(nil)
		if newHashID != hasharray.Invalid {
			e.Hashes.Postinsert(hash, dataSet, headSeg, newHashID, true)
		}

	case e.Data.ReadListHead(e.Hashes.ReadDataPointer(hashID), e.Hashes.ReadSegmentPointer(hashID)) == tagarray.Invalid:
		c = stats.TM_HH_DI
		dataID := e.Hashes.ReadDataPointer(hashID)
		headSeg, evDone := e.reclaim(dataID, lineSize, victimTagID, req, c)
		reclaimEvDone = evDone
		e.Tags.Postinsert(req.LineAddr, victimTagID, dataID, headSeg, encoding, tagarray.Invalid, true)
		e.Data.Postinsert(victimTagID, 1, dataID, headSeg, payload, encoding, updateRepl)
		e.Hashes.Postinsert(hash, dataID, headSeg, hashID, true)

	case e.Data.IsSame(e.Hashes.ReadDataPointer(hashID), e.Hashes.ReadSegmentPointer(hashID), payload):
		c = stats.TM_HH_DS
		dataID, segID := e.Hashes.ReadDataPointer(hashID), e.Hashes.ReadSegmentPointer(hashID)
		oldHead := e.Data.ReadListHead(dataID, segID)
		counter := e.Data.ReadCounter(dataID, segID)
		e.Tags.Postinsert(req.LineAddr, victimTagID, dataID, segID, encoding, oldHead, true)
		e.Data.ChangeInPlace(victimTagID, counter+1, dataID, segID)
		e.Hashes.Postinsert(hash, dataID, segID, hashID, true)

	default:
		c = stats.TM_HH_DD
		oldDataID, oldSegID := e.Hashes.ReadDataPointer(hashID), e.Hashes.ReadSegmentPointer(hashID)
		oldCounter := e.Data.ReadCounter(oldDataID, oldSegID)
		newDataSet := e.Data.SelectSet(req.LineAddr)
		headSeg, evDone := e.reclaim(newDataSet, lineSize, victimTagID, req, c)
		reclaimEvDone = evDone
		e.Tags.Postinsert(req.LineAddr, victimTagID, newDataSet, headSeg, encoding, tagarray.Invalid, true)
		e.Data.Postinsert(victimTagID, 1, newDataSet, headSeg, payload, encoding, updateRepl)
		if oldCounter == 1 {
			e.Hashes.Postinsert(hash, newDataSet, headSeg, hashID, true)
		}
	}

	mse := b.MissStart(reqCycle, uint64(e.Geo.AccessLat))
	mre := b.MissResponse(respCycle)
	b.Connect(mse, mre, mse.DoneCycle(), respCycle)
	if wbDone := timinggraph.MaxDoneCycle(tagEvDoneCycle, reclaimEvDone); wbDone > 0 {
		mwe := b.MissWriteback(timinggraph.MaxDoneCycle(wbDone, respCycle), uint64(e.Geo.AccessLat))
		b.Connect(mse, mwe, mse.DoneCycle(), mwe.MinStart)
	}

	e.log.Debugw("tag miss classified", "case", c, "addr", req.LineAddr, "cycle", req.Cycle)
	return c
}

// detachFromSharerList removes tagID from whatever sharer list it currently
// heads or belongs to, freeing the segment if it was the sole sharer.
func (e *Engine) detachFromSharerList(tagID int32) {
	dataSet, seg := e.Tags.ReadDataID(tagID), e.Tags.ReadSegment(tagID)
	if dataSet == tagarray.Invalid {
		return
	}
	listHead := e.Data.ReadListHead(dataSet, seg)
	freesSeg, newHead := e.Tags.EvictAssociatedData(tagID, listHead)
	if freesSeg {
		e.Data.Postinsert(dataarray.Invalid, 0, dataSet, seg, nil, bdicode.NONE, false)
		return
	}
	if newHead != tagarray.Invalid {
		counter := e.Data.ReadCounter(dataSet, seg)
		e.Data.ChangeInPlace(newHead, counter-1, dataSet, seg)
	}
}

// --- tag-hit path (WSR_TH / WD_TH_*) ---------------------------------------

func (e *Engine) accessTagHit(req *request.Request, b *timinggraph.Builder, tagID int32, payload []byte, hash uint64, encoding bdicode.Encoding, lineSize uint32, updateRepl bool) stats.Case {
	oldDataSet, oldSeg := e.Tags.ReadDataID(tagID), e.Tags.ReadSegment(tagID)
	sameAsOld := e.Data.IsSame(oldDataSet, oldSeg, payload)

	reqCycle := req.Cycle
	respCycle := reqCycle + uint64(e.Geo.AccessLat)
	hit := b.Hit(reqCycle, respCycle)

	// Only a PUTX that actually changes the resident bytes mutates sharing;
	// GETS/GETX/PUTS and a same-payload PUTX are all read-shaped on the data
	// array and fall to WSR_TH.
	if req.Op != request.PUTX || sameAsOld {
		e.Data.TouchPolicy(oldDataSet, oldSeg)
		e.log.Debugw("tag hit classified", "case", stats.WSR_TH, "addr", req.LineAddr, "cycle", req.Cycle)
		return stats.WSR_TH
	}

	oldCounter := e.Data.ReadCounter(oldDataSet, oldSeg)
	hashID := e.Hashes.Lookup(hash, true)

	var c stats.Case
	var reclaimEvDone uint64
	switch {
	case hashID == hasharray.Invalid:
		if oldCounter == 1 {
			c = stats.WD_TH_HM_1
			e.dropOldSharing(tagID, oldDataSet, oldSeg, oldCounter)
			headSeg, evDone := e.reclaim(oldDataSet, lineSize, tagID, req, c)
			reclaimEvDone = evDone
			e.Tags.Postinsert(req.LineAddr, tagID, oldDataSet, headSeg, encoding, tagarray.Invalid, true)
			e.Data.Postinsert(tagID, 1, oldDataSet, headSeg, payload, encoding, updateRepl)
			newHashID := e.Hashes.Preinsert(nil)
			if newHashID != hasharray.Invalid {
				e.Hashes.Postinsert(hash, oldDataSet, headSeg, newHashID, true)
			}
		} else {
			c = stats.WD_TH_HM_M
			e.dropOldSharing(tagID, oldDataSet, oldSeg, oldCounter)
			newDataSet := e.Data.SelectSet(req.LineAddr)
			headSeg, evDone := e.reclaim(newDataSet, lineSize, tagID, req, c)
			reclaimEvDone = evDone
			e.Tags.Postinsert(req.LineAddr, tagID, newDataSet, headSeg, encoding, tagarray.Invalid, true)
			e.Data.Postinsert(tagID, 1, newDataSet, headSeg, payload, encoding, updateRepl)
			newHashID := e.Hashes.Preinsert(nil)
			if newHashID != hasharray.Invalid {
				e.Hashes.Postinsert(hash, newDataSet, headSeg, newHashID, true)
			}
		}

	case e.Data.ReadListHead(e.Hashes.ReadDataPointer(hashID), e.Hashes.ReadSegmentPointer(hashID)) == tagarray.Invalid:
		c = stats.WD_TH_HH_DI
		dataID := e.Hashes.ReadDataPointer(hashID)
		e.dropOldSharing(tagID, oldDataSet, oldSeg, oldCounter)
		headSeg, evDone := e.reclaim(dataID, lineSize, tagID, req, c)
		reclaimEvDone = evDone
		e.Tags.Postinsert(req.LineAddr, tagID, dataID, headSeg, encoding, tagarray.Invalid, true)
		e.Data.Postinsert(tagID, 1, dataID, headSeg, payload, encoding, updateRepl)
		e.Hashes.Postinsert(hash, dataID, headSeg, hashID, true)

	case e.Data.IsSame(e.Hashes.ReadDataPointer(hashID), e.Hashes.ReadSegmentPointer(hashID), payload):
		c = stats.WD_TH_HH_DS
		dataID, segID := e.Hashes.ReadDataPointer(hashID), e.Hashes.ReadSegmentPointer(hashID)
		e.dropOldSharing(tagID, oldDataSet, oldSeg, oldCounter)
		oldHead := e.Data.ReadListHead(dataID, segID)
		dsCounter := e.Data.ReadCounter(dataID, segID)
		e.Tags.Postinsert(req.LineAddr, tagID, dataID, segID, encoding, oldHead, true)
		e.Data.ChangeInPlace(tagID, dsCounter+1, dataID, segID)
		e.Hashes.Postinsert(hash, dataID, segID, hashID, true)

	default:
		dataID, segID := e.Hashes.ReadDataPointer(hashID), e.Hashes.ReadSegmentPointer(hashID)
		targetCounter := e.Data.ReadCounter(dataID, segID)
		if oldCounter == 1 {
			c = stats.WD_TH_HH_DD_1
			e.dropOldSharing(tagID, oldDataSet, oldSeg, oldCounter)
			headSeg, evDone := e.reclaim(oldDataSet, lineSize, tagID, req, c)
			reclaimEvDone = evDone
			e.Tags.Postinsert(req.LineAddr, tagID, oldDataSet, headSeg, encoding, tagarray.Invalid, true)
			e.Data.Postinsert(tagID, 1, oldDataSet, headSeg, payload, encoding, updateRepl)
			if targetCounter == 1 {
				e.Hashes.Postinsert(hash, oldDataSet, headSeg, hashID, true)
			}
		} else {
			c = stats.WD_TH_HH_DD_M
			e.dropOldSharing(tagID, oldDataSet, oldSeg, oldCounter)
			newDataSet := e.Data.SelectSet(req.LineAddr)
			headSeg, evDone := e.reclaim(newDataSet, lineSize, tagID, req, c)
			reclaimEvDone = evDone
			e.Tags.Postinsert(req.LineAddr, tagID, newDataSet, headSeg, encoding, tagarray.Invalid, true)
			e.Data.Postinsert(tagID, 1, newDataSet, headSeg, payload, encoding, updateRepl)
			if targetCounter == 1 {
				e.Hashes.Postinsert(hash, newDataSet, headSeg, hashID, true)
			}
		}
	}

	hwMinStart := timinggraph.MaxDoneCycle(reclaimEvDone, respCycle)
	acquired := e.MSHR.TryAcquire(func() {
		e.log.Debugw("hit writeback MSHR contention cleared, draining pending entry", "addr", req.LineAddr, "case", c)
	})
	if !acquired {
		hwMinStart += uint64(e.Geo.AccessLat)
		e.log.Debugw("hit writeback MSHR saturated, requeued at low priority", "addr", req.LineAddr, "case", c)
	} else {
		defer e.MSHR.Release()
	}
	hwe := b.HitWriteback(hwMinStart, uint64(e.Geo.AccessLat))
	b.Connect(hit, hwe, hit.DoneCycle(), hwe.MinStart)

	e.log.Debugw("tag hit classified", "case", c, "addr", req.LineAddr, "cycle", req.Cycle)
	return c
}

// dropOldSharing removes tagID from (dataSet, seg)'s sharer list, freeing the
// segment outright when it was the sole sharer, otherwise decrementing the
// counter and relinking the new head — the "drop old sharing" step common to
// every WD_TH_* branch except WSR_TH.
func (e *Engine) dropOldSharing(tagID, dataSet, seg int32, counter uint32) {
	if counter == 1 {
		e.Data.Postinsert(dataarray.Invalid, 0, dataSet, seg, nil, bdicode.NONE, false)
		return
	}
	oldHead := e.Data.ReadListHead(dataSet, seg)
	freesSeg, newHead := e.Tags.EvictAssociatedData(tagID, oldHead)
	if freesSeg {
		e.Data.Postinsert(dataarray.Invalid, 0, dataSet, seg, nil, bdicode.NONE, false)
		return
	}
	e.Data.ChangeInPlace(newHead, counter-1, dataSet, seg)
}

// --- segment reclamation (§4.5) --------------------------------------------

// reclaim finds (evicting as needed) a contiguous run of free segments in
// dataSet large enough for lineSize bytes, excluding keepTagID from eviction
// (it is mid-install and must survive the loop that makes room for it).
// Every sharer displaced along the way is written back via the coherence
// controller and counted against c in stats.
//
// It terminates because each iteration either returns a usable run or evicts
// at least one more segment into the exclusion set, and the exclusion set is
// bounded by SetSegments(); a dataSet geometrically unable to ever hold
// lineSize bytes (even fully evicted) triggers an InvariantError rather than
// looping forever.
//
// The second return value is the max cycle by which every writeback the loop
// issued has completed (0 if nothing was evicted), which the caller folds
// into its MissWriteback/HitWriteback node's min-start alongside the tag
// victim's own eviction and the access's response cycle (§4.6).
func (e *Engine) reclaim(dataSet int32, lineSize uint32, keepTagID int32, req *request.Request, c stats.Case) (int32, uint64) {
	kept := mapset.NewThreadUnsafeSet[int32]()
	var evDone uint64
	for {
		if start := e.Data.FindFreeRun(dataSet, lineSize); start != dataarray.Invalid {
			return start, evDone
		}
		victimSeg, victimHead := e.Data.Preinsert(dataSet, kept)
		if victimSeg == dataarray.Invalid {
			panic(newInvariantError("reclamation loop exhausted data set without freeing enough contiguous space", dataSet, lineSize, req))
		}
		kept.Add(victimSeg)

		evictCycle := req.Cycle + 2*uint64(e.Geo.AccessLat)
		cur := victimHead
		for cur != tagarray.Invalid {
			next := e.Tags.ReadNextShare(cur)
			if cur != keepTagID {
				wbAddr := e.Tags.ReadAddress(cur)
				done := e.CC.ProcessEviction(req, wbAddr, cur, evictCycle)
				evDone = timinggraph.MaxDoneCycle(evDone, done)
				e.Tags.Postinsert(0, cur, tagarray.Invalid, tagarray.Invalid, bdicode.NONE, tagarray.Invalid, false)
				e.Stats.RecordEviction(c)
				e.log.Debugw("reclamation evicted sharer", "case", c, "tagID", cur, "dataSet", dataSet)
			}
			cur = next
		}
		if victimHead != tagarray.Invalid {
			e.Data.Postinsert(dataarray.Invalid, 0, dataSet, victimSeg, nil, bdicode.NONE, false)
		}
	}
}
