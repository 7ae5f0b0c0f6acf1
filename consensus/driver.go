// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ton-blockchain/catchain-consensus/actor"
	"github.com/ton-blockchain/catchain-consensus/bus"
	"github.com/ton-blockchain/catchain-consensus/identity"
	"github.com/ton-blockchain/catchain-consensus/log"
	"github.com/ton-blockchain/catchain-consensus/metrics"
)

// Driver is the leader-window block producer (spec.md §4.3.1), grounded
// on original_source/validator/consensus/block-producer.cpp restated
// over this core's bus/actor primitives in place of the original's
// coroutine runtime.
type Driver struct {
	mu  sync.Mutex
	cfg Config

	bus      *bus.Bus
	mailbox  *actor.Mailbox
	sys      *actor.System
	timers   *actor.TimerWheel
	collator Collator
	signer   Signer
	metrics  *metrics.Set
	log      log.Logger

	currentWindow *uint64
	cancel        *actor.CancellationSource

	lastConsensusFinalizedSeqno uint64
	lastMcFinalizedSeqno        uint64
}

// NewDriver builds a driver for one consensus session. genesisSeqno
// seeds both finalized-seqno watermarks (spec.md's start_up computing
// them from the genesis CandidateParent).
func NewDriver(cfg Config, sys *actor.System, b *bus.Bus, mailbox *actor.Mailbox, timers *actor.TimerWheel, collator Collator, signer Signer, m *metrics.Set, logger log.Logger, genesisSeqno uint64) *Driver {
	if m == nil {
		m = metrics.NewNopSet()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Driver{
		cfg: cfg, bus: b, mailbox: mailbox, sys: sys, timers: timers,
		collator: collator, signer: signer, metrics: m, log: logger,
		lastConsensusFinalizedSeqno: genesisSeqno,
		lastMcFinalizedSeqno:        genesisSeqno,
	}
}

// Start wires the driver's handlers onto the bus (spec.md §6.3).
func (d *Driver) Start() {
	bus.Subscribe(d.bus, d.mailbox, d.handleStop)
	bus.Subscribe(d.bus, d.mailbox, d.handleWindowStarted)
	bus.Subscribe(d.bus, d.mailbox, d.handleWindowAborted)
	bus.Subscribe(d.bus, d.mailbox, d.handleBlockFinalized)
	bus.Subscribe(d.bus, d.mailbox, d.handleBlockFinalizedInMasterchain)
}

func (d *Driver) handleStop(ctx context.Context, _ bus.StopRequested) {
	d.mu.Lock()
	d.currentWindow = nil
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel.Cancel()
	}
}

func (d *Driver) handleBlockFinalized(ctx context.Context, ev bus.BlockFinalized) {
	if ev.FinalSignature == nil {
		return
	}
	d.mu.Lock()
	if ev.Candidate.Slot > d.lastConsensusFinalizedSeqno {
		d.lastConsensusFinalizedSeqno = ev.Candidate.Slot
	}
	d.mu.Unlock()
}

func (d *Driver) handleBlockFinalizedInMasterchain(ctx context.Context, ev bus.BlockFinalizedInMasterchain) {
	d.mu.Lock()
	if ev.Seqno > d.lastMcFinalizedSeqno {
		d.lastMcFinalizedSeqno = ev.Seqno
	}
	if d.lastMcFinalizedSeqno > d.lastConsensusFinalizedSeqno {
		d.lastConsensusFinalizedSeqno = d.lastMcFinalizedSeqno
	}
	d.mu.Unlock()
}

func (d *Driver) handleWindowStarted(ctx context.Context, ev bus.OurLeaderWindowStarted) {
	d.mu.Lock()
	start := ev.StartSlot
	d.currentWindow = &start
	d.cancel = actor.NewCancellationSource(context.Background())
	cancelToken := d.cancel.Token()
	d.mu.Unlock()

	actor.NewTask(func(context.Context) (struct{}, error) {
		d.generateCandidates(cancelToken, start, ev)
		return struct{}{}, nil
	}).Detach(d.sys, cancelToken)
}

func (d *Driver) handleWindowAborted(ctx context.Context, ev bus.OurLeaderWindowAborted) {
	d.mu.Lock()
	d.currentWindow = nil
	d.cancel = actor.NewCancellationSource(context.Background())
	d.mu.Unlock()
}

// isActive reports whether window is still the current window.
func (d *Driver) isActive(window uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentWindow != nil && *d.currentWindow == window
}

// shouldGenerateEmpty is spec.md §4.3.2's empty-vs-full policy (P5).
func (d *Driver) shouldGenerateEmpty(ctx context.Context, newSeqno uint64, prevBlockData []byte) bool {
	before, err := d.collator.IsBeforeSplit(ctx, prevBlockData)
	if err == nil && before {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.IsMasterchain {
		return d.lastConsensusFinalizedSeqno+1 < newSeqno
	}
	return d.lastMcFinalizedSeqno+8 < newSeqno
}

// generateCandidates is the window loop of spec.md §4.3.1.
func (d *Driver) generateCandidates(token context.Context, window uint64, ev bus.OurLeaderWindowStarted) {
	parent := candidateParent{parentID: ev.Base, block: ev.Base.ID, seqno: ev.StartSlot - 1}
	if !ev.Base.Ok {
		parent.seqno = 0
	}

	prevStateRoot := ev.PrevBlockStateRoot
	prevBlockData := ev.PrevBlockData

	target := ev.StartTime
	slot := ev.StartSlot

	for d.isActive(window) && slot < ev.EndSlot {
		if err := d.timers.SleepUntil(token, target); err != nil {
			return // cancelled at a suspension point.
		}

		newSeqno := parent.nextSeqno()
		d.publishStats(bus.StatsCollateStarted, slot)

		var (
			variant  bus.CandidateVariant
			block    bus.BlockID
			collator identity.NodeID
			hasColl  bool
		)

		if d.shouldGenerateEmpty(token, newSeqno, prevBlockData) {
			if !parent.parentID.Ok {
				d.log.Error("consensus: cannot emit empty candidate with no parent", zap.Uint64("slot", slot))
				return
			}
			variant = bus.VariantEmpty
			block = parent.block
		} else {
			if !d.isActive(window) {
				return
			}
			cand, err := d.collator.CollateBlock(token, CollateParams{
				IsMasterchain: d.cfg.IsMasterchain,
				MinMcBlockID:  d.cfg.MinMcBlockID,
				Prev:          parent.block,
				PrevBlockData: prevBlockData,
				PrevStateRoot: prevStateRoot,
			})
			if err != nil {
				if token.Err() != nil {
					return // cancelled mid-collation: exit silently.
				}
				d.log.Error("consensus: collate_block failed", zap.Error(err), zap.Uint64("slot", slot))
				return
			}
			variant = bus.VariantFullBlock
			block = cand.Block
			collator = cand.CollatorNode
			hasColl = cand.HasCollator

			if len(prevStateRoot) > 0 {
				newRoot, newData, err := d.collator.ApplyBlockToState(token, prevStateRoot, block)
				if err != nil {
					d.log.Error("consensus: apply_block_to_state failed", zap.Error(err), zap.Uint64("slot", slot))
					return
				}
				prevStateRoot, prevBlockData = newRoot, newData
			}
		}

		id := candidateID(slot, variant, block, parent.parentID)
		sig := d.signer.Sign(signingPayload(d.cfg.Session, id))
		candidate := bus.RawCandidate{
			ID: id, ParentID: parent.parentID, ProducerIdx: d.cfg.ProducerIdx,
			Variant: variant, Block: block, Signature: sig, Slot: slot,
		}

		d.publishStats(bus.StatsCollateFinished, slot)
		d.metrics.CandidatesGenerated.WithLabelValues(variantLabel(variant)).Inc()

		if !d.isActive(window) {
			return
		}
		bus.Publish(d.bus, token, bus.CandidateGenerated{Candidate: candidate, Collator: collator, HasCollator: hasColl})
		bus.Publish(d.bus, token, bus.CandidateReceived{Candidate: candidate})

		slot++
		parent = parent.advance(id, block)
		target = target.Add(d.cfg.TargetRate)
	}
}

func (d *Driver) publishStats(kind bus.StatsTargetReachedKind, slot uint64) {
	bus.Publish(d.bus, context.Background(), bus.StatsTargetReached{Kind: kind, Slot: slot})
}

func variantLabel(v bus.CandidateVariant) string {
	if v == bus.VariantEmpty {
		return "empty"
	}
	return "full"
}
