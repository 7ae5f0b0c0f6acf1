// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/hex"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ton-blockchain/catchain-consensus/actor"
	"github.com/ton-blockchain/catchain-consensus/bus"
	"github.com/ton-blockchain/catchain-consensus/kv"
	"github.com/ton-blockchain/catchain-consensus/log"
	"github.com/ton-blockchain/catchain-consensus/metrics"
)

// StateApplier is the subset of Collator the resolver needs: folding one
// more candidate onto a resolved parent state (spec.md §4.3.4's "apply
// the candidate"). Collator already satisfies this.
type StateApplier interface {
	ApplyBlockToState(ctx context.Context, prevStateRoot []byte, candidate bus.BlockID) (newStateRoot []byte, newBlockData []byte, err error)
}

// Resolver is the state resolver and finalization walker of spec.md
// §4.3.4-§4.3.5, grounded on the same block-producer.cpp family (the
// resolver and producer are companion actors behind one Bus in the
// original) restated over actor.SharedFuture for memoization.
type Resolver struct {
	bus      *bus.Bus
	mailbox  *actor.Mailbox
	manager  ManagerFacade
	applier  StateApplier
	store    kv.Store
	metrics  *metrics.Set
	log      log.Logger
	cache    *actor.SharedFuture[ResolvedState]
	minMcRef bus.BlockID

	mu           sync.Mutex
	finalizedMem map[bus.CandidateID]bool
}

// NewResolver builds a resolver over store (the finalizer's durable
// journal) and manager/applier (the validator-manager and collator
// facades spec.md §4.3.4 calls into).
func NewResolver(b *bus.Bus, mailbox *actor.Mailbox, manager ManagerFacade, applier StateApplier, store kv.Store, minMcRef bus.BlockID, m *metrics.Set, logger log.Logger) *Resolver {
	if m == nil {
		m = metrics.NewNopSet()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Resolver{
		bus: b, mailbox: mailbox, manager: manager, applier: applier, store: store, minMcRef: minMcRef,
		metrics: m, log: logger, cache: actor.NewSharedFuture[ResolvedState](),
		finalizedMem: make(map[bus.CandidateID]bool),
	}
}

// Start wires the resolver's bus surface (spec.md §6.3): it answers
// ResolveState requests and reacts to FinalizationObserved.
func (r *Resolver) Start() {
	bus.RegisterResponder(r.bus, func(ctx context.Context, req bus.ResolveState) (bus.ResolveStateResponse, error) {
		st, err := r.ResolveState(ctx, req.Parent)
		if err != nil {
			return bus.ResolveStateResponse{}, err
		}
		return bus.ResolveStateResponse{State: st.StateRoot, GenUtimeExact: st.GenUtimeExact, HasGenUtime: st.HasGenUtime}, nil
	})
	bus.Subscribe(r.bus, r.mailbox, r.handleFinalizationObserved)
}

func parentCacheKey(parent bus.ParentID) string {
	if !parent.Ok {
		return "genesis"
	}
	return hex.EncodeToString(parent.ID[:])
}

// ResolveState implements spec.md §4.3.4: many concurrent callers for
// the same parent share one computation (S5), via actor.SharedFuture.
func (r *Resolver) ResolveState(ctx context.Context, parent bus.ParentID) (ResolvedState, error) {
	return r.cache.Get(ctx, parentCacheKey(parent), func(ctx context.Context) (ResolvedState, error) {
		return r.resolveUncached(ctx, parent)
	})
}

func (r *Resolver) resolveUncached(ctx context.Context, parent bus.ParentID) (ResolvedState, error) {
	if !parent.Ok {
		return r.manager.ChainStateFromManager(ctx, nil, r.minMcRef)
	}
	if r.isFinalized(parent.ID) {
		cand, err := bus.Ask[bus.ResolveCandidate, bus.ResolveCandidateResponse](ctx, r.bus, bus.ResolveCandidate{ID: parent.ID})
		if err != nil {
			return ResolvedState{}, errors.WithMessage(err, "consensus: resolve finalized candidate")
		}
		return r.manager.ChainStateFromManager(ctx, []bus.BlockID{cand.Candidate.Block}, r.minMcRef)
	}

	resp, err := bus.Ask[bus.ResolveCandidate, bus.ResolveCandidateResponse](ctx, r.bus, bus.ResolveCandidate{ID: parent.ID})
	if err != nil {
		return ResolvedState{}, errors.WithMessage(err, "consensus: resolve candidate")
	}
	parentState, err := r.ResolveState(ctx, resp.Candidate.ParentID)
	if err != nil {
		return ResolvedState{}, err
	}
	if resp.Candidate.Variant == bus.VariantEmpty {
		return parentState, nil
	}
	newRoot, _, err := r.applier.ApplyBlockToState(ctx, parentState.StateRoot, resp.Candidate.Block)
	if err != nil {
		return ResolvedState{}, errors.WithMessage(err, "consensus: apply candidate to state")
	}
	return ResolvedState{StateRoot: newRoot, GenUtimeExact: uint32(resp.Candidate.Slot), HasGenUtime: true}, nil
}

func (r *Resolver) isFinalized(id bus.CandidateID) bool {
	r.mu.Lock()
	if r.finalizedMem[id] {
		r.mu.Unlock()
		return true
	}
	r.mu.Unlock()
	if r.store == nil {
		return false
	}
	ok, err := r.store.Has(finalizedKey(id))
	if err != nil {
		return false
	}
	if ok {
		r.mu.Lock()
		r.finalizedMem[id] = true
		r.mu.Unlock()
	}
	return ok
}

// handleFinalizationObserved implements spec.md §4.3.5: walk from id
// toward genesis, collecting every not-yet-finalized ancestor, then
// finalize them oldest-first so FinalizeBlock requests are issued in
// causal order.
func (r *Resolver) handleFinalizationObserved(ctx context.Context, ev bus.FinalizationObserved) {
	var chain []bus.RawCandidate
	current := ev.ID
	for {
		if r.isFinalized(current) {
			break
		}
		resp, err := bus.Ask[bus.ResolveCandidate, bus.ResolveCandidateResponse](ctx, r.bus, bus.ResolveCandidate{ID: current})
		if err != nil {
			r.log.Error("consensus: finalization walk could not resolve candidate", zap.String("candidate", hex.EncodeToString(current[:])), zap.Error(err))
			break
		}
		chain = append(chain, resp.Candidate)
		if !resp.Candidate.ParentID.Ok {
			break
		}
		current = resp.Candidate.ParentID.ID
	}

	for i := len(chain) - 1; i >= 0; i-- {
		cand := chain[i]
		r.finalizeOne(ctx, cand, cand.ID == ev.ID, ev.FinalCert)
	}
}

// finalizeOne finalizes one candidate exactly once (P6): the in-memory
// cache check and the persisted key write bracket the validator
// manager's ack, so a concurrent or repeated FinalizationObserved for
// the same id is a no-op.
func (r *Resolver) finalizeOne(ctx context.Context, cand bus.RawCandidate, isTerminal bool, terminalFinal *bus.FinalCert) {
	if r.isFinalized(cand.ID) {
		return
	}

	var sigSet []byte
	var finalCert *bus.FinalCert
	if isTerminal && terminalFinal != nil {
		finalCert = terminalFinal
		sigSet = encodeFinalCert(terminalFinal)
	} else {
		resp, err := bus.Ask[bus.ResolveCandidate, bus.ResolveCandidateResponse](ctx, r.bus, bus.ResolveCandidate{ID: cand.ID})
		if err != nil || resp.NotarCert == nil {
			r.log.Warn("consensus: finalizing without a notar cert on file", zap.String("candidate", hex.EncodeToString(cand.ID[:])))
			sigSet = []byte{}
		} else {
			sigSet = encodeNotarCert(resp.NotarCert)
		}
	}

	_, err := bus.Ask[bus.FinalizeBlock, bus.FinalizeBlockAck](ctx, r.bus, bus.FinalizeBlock{Candidate: cand, SigSet: sigSet})
	if err != nil {
		r.log.Error("consensus: validator manager rejected finalization", zap.String("candidate", hex.EncodeToString(cand.ID[:])), zap.Error(err))
		return
	}

	if r.store != nil {
		if err := r.store.Put(finalizedKey(cand.ID), []byte{1}); err != nil {
			r.log.Error("consensus: persist finalizedBlock failed", zap.String("candidate", hex.EncodeToString(cand.ID[:])), zap.Error(err))
			return
		}
	}
	r.mu.Lock()
	r.finalizedMem[cand.ID] = true
	r.mu.Unlock()

	r.metrics.FinalizationsTotal.Inc()
	bus.Publish(r.bus, ctx, bus.BlockFinalized{Candidate: cand, FinalSignature: finalCert})
}

// encodeNotarCert/encodeFinalCert produce the opaque sig_set bytes
// FinalizeBlock carries. The wire TL encoding of a signature set is
// external (spec.md §1 non-goals); this core only needs an internal,
// round-trippable byte form to pass across the bus boundary, so it uses
// encoding/gob directly, matching catchain/codec.go's justification.
func encodeNotarCert(c *bus.NotarCert) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(c)
	return buf.Bytes()
}

func encodeFinalCert(c *bus.FinalCert) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(c)
	return buf.Bytes()
}
