// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package catchain

import (
	"github.com/ton-blockchain/catchain-consensus/metrics"
)

// NeighbourDiff is the (src, height) frontier this receiver is missing
// relative to a neighbour's reported vt (spec.md §4.2.5).
type NeighbourDiff struct {
	SourceIdx  int
	FromHeight uint32
	ToHeight   uint32
}

// Frontier snapshots this receiver's delivered-height-per-source view, the
// shape exchanged as getDifference(our_vt) (spec.md §4.2.5).
func (r *Receiver) Frontier() map[int]uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]uint32, len(r.sources))
	for _, s := range r.sources {
		out[s.Idx] = s.DeliveredHeight
	}
	return out
}

// Diff computes what this receiver is missing relative to a neighbour's
// frontier: for each source where the neighbour is ahead, the height range
// to fetch, FromHeight through ToHeight inclusive.
func (r *Receiver) Diff(neighbourFrontier map[int]uint32) []NeighbourDiff {
	r.mu.Lock()
	defer r.mu.Unlock()
	var diffs []NeighbourDiff
	for _, s := range r.sources {
		theirs, ok := neighbourFrontier[s.Idx]
		if !ok || theirs <= s.DeliveredHeight {
			continue
		}
		diffs = append(diffs, NeighbourDiff{SourceIdx: s.Idx, FromHeight: s.DeliveredHeight + 1, ToHeight: theirs})
	}
	return diffs
}

// PendingDepsWalk bounds spec.md §4.2.5's find_pending_deps: starting
// from every block currently Initialized-but-not-delivered, walk its
// dependency closure downward and collect the hashes this receiver holds
// no content for (absent, or only a StateNone stub), up to maxSize.
func (r *Receiver) PendingDepsWalk(maxSize int) [][32]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[[32]byte]bool)
	var missing [][32]byte

	var visit func(ref BlockRef)
	visit = func(ref BlockRef) {
		if len(missing) >= maxSize || seen[ref.Hash] {
			return
		}
		seen[ref.Hash] = true
		block, ok := r.blocks[ref.Hash]
		if !ok || block.State == StateNone {
			if ref.Height > 0 {
				missing = append(missing, ref.Hash)
			}
			return
		}
		if block.State == StateDelivered {
			return
		}
		visit(block.Prev)
		for _, d := range block.Deps {
			if len(missing) >= maxSize {
				return
			}
			visit(d)
		}
	}

	for _, b := range r.blocks {
		if b.State == StateInitialized {
			visit(b.Prev)
			for _, d := range b.Deps {
				visit(d)
			}
		}
		if len(missing) >= maxSize {
			break
		}
	}
	return missing
}

// RecordSyncRequest increments the sync-request counter for kind
// ("getBlock", "getBlocks", "getBlockHistory", "getDifference").
func (r *Receiver) RecordSyncRequest(kind string, m *metrics.Set) {
	if m == nil {
		return
	}
	m.SyncRequestsTotal.WithLabelValues(kind).Inc()
}
