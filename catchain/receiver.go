// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package catchain

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ton-blockchain/catchain-consensus/identity"
	"github.com/ton-blockchain/catchain-consensus/kv"
	"github.com/ton-blockchain/catchain-consensus/log"
	"github.com/ton-blockchain/catchain-consensus/metrics"
	"github.com/ton-blockchain/catchain-consensus/xerr"
)

// Callbacks is the receiver's public contract toward the consensus layer
// (spec.md §4.2.2). Every field is optional; a nil field is simply not
// invoked.
type Callbacks struct {
	// OnNewBlock fires exactly once per block, in causal order.
	OnNewBlock func(srcIdx int, forkID ForkID, hash [32]byte, height uint32, prevHash [32]byte, depsHashes [][32]byte, vt map[ForkID]uint32, payload []byte)
	// OnBlame fires at most once per source.
	OnBlame func(srcIdx int)
	// OnCustomQuery and OnBroadcast are pass-throughs for non-block
	// overlay traffic (including fork_proof broadcasts).
	OnCustomQuery func(from identity.NodeID, data []byte, reply func([]byte))
	OnBroadcast   func(from identity.NodeID, data []byte)
	// OnStart fires once, when ReplayFromStore finishes; the receiver runs
	// no neighbour sync before firing it.
	OnStart func()
}

// Config parametrizes one receiver instance.
type Config struct {
	Session    identity.SessionID
	SelfIdx    int
	MaxDeps    int
	AllowUnsafeSelfBlocksResync bool
}

// Receiver is the catchain DAG receiver actor (spec.md §4.2). All state is
// single-writer: every exported method takes Receiver's own mutex,
// realizing "all access is single-threaded within the receiver actor"
// (spec.md §4.2.6, §9) without needing a dedicated goroutine per
// instance.
type Receiver struct {
	mu sync.Mutex

	cfg     Config
	sources []*Source
	blocks  map[[32]byte]*ReceivedBlock

	nextForkID ForkID

	store   kv.Store
	metrics *metrics.Set
	log     log.Logger
	cb      Callbacks
}

// NewReceiver creates a receiver for nSources validators.
func NewReceiver(cfg Config, nSources int, sourceNodeIDs []identity.NodeID, store kv.Store, m *metrics.Set, logger log.Logger, cb Callbacks) *Receiver {
	if m == nil {
		m = metrics.NewNopSet()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	r := &Receiver{
		cfg:     cfg,
		blocks:  make(map[[32]byte]*ReceivedBlock),
		store:   store,
		metrics: m,
		log:     logger,
		cb:      cb,
	}
	for i := 0; i < nSources; i++ {
		var node identity.NodeID
		if i < len(sourceNodeIDs) {
			node = sourceNodeIDs[i]
		}
		r.sources = append(r.sources, newSource(i, node, node))
	}
	return r
}

// AddBlock queues a locally produced block (spec.md §4.2.2): src is this
// receiver's own source, and height/prev are taken implicitly from the
// tip of its own chain (an honest producer always extends sequentially).
func (r *Receiver) AddBlock(payload []byte, deps []BlockRef) (BlockRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	srcIdx := r.cfg.SelfIdx
	if srcIdx < 0 || srcIdx >= len(r.sources) {
		return BlockRef{}, xerr.New(xerr.ProtocolViolation, "catchain: self index out of range")
	}
	src := r.sources[srcIdx]
	height := src.DeliveredHeight + 1
	prevRef := BlockRef{Hash: rootHash(r.cfg.Session, srcIdx), Height: 0}
	if height > 1 {
		var ok bool
		prevRef, ok = src.BlocksByHeight[height-1]
		if !ok {
			return BlockRef{}, xerr.New(xerr.ProtocolViolation, "catchain: missing prev block")
		}
	}
	return r.admit(srcIdx, height, prevRef, payload, nil, deps)
}

// HandleBlock admits a block authored by a remote source (spec.md
// §4.2.3's "direct block with payload" arrival path). height and prev are
// exactly as the block declares them — a remote source may claim any
// (height, prev) pair, including one that collides with an
// already-admitted block at that height (the fork case, spec.md §3.2).
// signature is opaque and is not cryptographically checked here — that
// belongs to the external validator/signature layer spec.md treats as
// out of scope.
func (r *Receiver) HandleBlock(srcIdx int, height uint32, prev BlockRef, payload []byte, signature []byte, deps []BlockRef) (BlockRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.admit(srcIdx, height, prev, payload, signature, deps)
}

// admit runs the six-step validation pipeline of spec.md §4.2.3 for one
// directly-provided (non-stub) block. Caller holds r.mu.
func (r *Receiver) admit(srcIdx int, height uint32, prevRef BlockRef, payload, signature []byte, deps []BlockRef) (BlockRef, error) {
	if srcIdx < 0 || srcIdx >= len(r.sources) {
		return BlockRef{}, xerr.New(xerr.ProtocolViolation, "catchain: source index out of range")
	}
	src := r.sources[srcIdx]
	if src.Blamed {
		return BlockRef{}, xerr.New(xerr.ProtocolViolation, "catchain: source already blamed")
	}
	if len(payload) == 0 {
		return BlockRef{}, xerr.New(xerr.ProtocolViolation, "catchain: empty payload")
	}

	// 1. Pre-validate: height == prev.height + 1, and for height 1 the
	// prev must be this source's root pseudo-block. A height > 1 whose
	// claimed prev diverges from this receiver's own view of that
	// source's chain is exactly the fork case (spec.md §3.2) and is left
	// to step 2 to detect and blame, not rejected here.
	if height == 0 {
		return BlockRef{}, xerr.New(xerr.ProtocolViolation, "catchain: height must be > 0")
	}
	if height == 1 {
		if prevRef.Height != 0 || prevRef.Hash != rootHash(r.cfg.Session, srcIdx) {
			return BlockRef{}, xerr.New(xerr.ProtocolViolation, "catchain: height 1 must reference the source's root")
		}
	} else if prevRef.Height != height-1 {
		return BlockRef{}, xerr.New(xerr.ProtocolViolation, "catchain: prev height mismatch")
	}
	if err := r.preValidateDeps(srcIdx, deps); err != nil {
		return BlockRef{}, err
	}

	hash := contentHash(r.cfg.Session, srcIdx, height, payload)

	// 2. Create-or-attach (fork detection / block_dep stub fill-in). A
	// StateNone entry is a placeholder materialized by some earlier
	// dependent's initializeNode (spec.md §3.5); its content arrives now
	// and it gets promoted in place so its already-accumulated RevDeps
	// aren't lost. Anything past StateNone is a genuine duplicate
	// resubmission, idempotent per P2.
	existing, known := r.blocks[hash]
	if known && existing.State != StateNone {
		if existing.State == StateInitialized && !existing.InDB {
			// An earlier persist of this block failed; re-admission retries it.
			data, err := encodeBlock(existing)
			if err != nil {
				return BlockRef{}, err
			}
			if err := r.store.Put(blockKey(hash), data); err != nil {
				return BlockRef{}, xerr.Wrap(err, "catchain: persist block")
			}
			existing.InDB = true
			if existing.PendingDepsCount == 0 {
				r.tryDeliver(existing)
			}
		}
		return BlockRef{Hash: existing.Hash, Height: existing.Height}, nil
	}
	if conflict, ok := src.BlocksByHeight[height]; ok && conflict.Hash != hash {
		r.blameFork(src, srcIdx, conflict, BlockRef{Hash: hash, Height: height})
		return BlockRef{}, xerr.New(xerr.ForkDetected, fmt.Sprintf("catchain: fork at source %d height %d", srcIdx, height))
	}

	block := existing
	if !known {
		block = &ReceivedBlock{Hash: hash}
	}
	block.SourceIdx = srcIdx
	block.Height = height
	block.PayloadBytes = payload
	block.Signature = signature
	block.Prev = prevRef
	block.Deps = append([]BlockRef(nil), deps...)
	block.VT = make(map[ForkID]uint32)
	block.State = StateInitialized

	// 3. Initialize: pending-dependency count, reverse edges, ill
	// propagation from already-known ill ancestors.
	r.initializeNode(block)
	src.BlocksByHeight[height] = BlockRef{Hash: hash, Height: height}
	r.blocks[hash] = block

	// 4. Persist.
	data, err := encodeBlock(block)
	if err != nil {
		return BlockRef{}, err
	}
	if err := r.store.Put(blockKey(hash), data); err != nil {
		// Block stays Initialized; a retry of the identical Put is
		// idempotent (P2) and the caller may re-admit the same content.
		return BlockRef{}, xerr.Wrap(err, "catchain: persist block")
	}
	block.InDB = true

	if block.State != StateIll && block.PendingDepsCount == 0 {
		r.tryDeliver(block)
	}

	return BlockRef{Hash: hash, Height: height}, nil
}

// preValidateDeps runs the syntactic dep checks admit can perform without
// waiting on network round trips. A dep this receiver hasn't admitted yet
// (or only holds a stub for) is not rejected: spec.md §4.2.3's arrival path
// is "either as a direct block with payload or a block_dep stub", so an
// unknown dep is pended via initializeNode's stub materialization and
// re-validated against srcIdx once its own content actually arrives.
func (r *Receiver) preValidateDeps(srcIdx int, deps []BlockRef) error {
	if len(deps) > r.cfg.MaxDeps {
		return xerr.New(xerr.ProtocolViolation, "catchain: too many deps")
	}
	seenSrc := make(map[int]bool, len(deps))
	for _, d := range deps {
		db, ok := r.blocks[d.Hash]
		if !ok || db.State == StateNone {
			continue
		}
		if db.SourceIdx == srcIdx {
			return xerr.New(xerr.ProtocolViolation, "catchain: dep from own source")
		}
		if seenSrc[db.SourceIdx] {
			return xerr.New(xerr.ProtocolViolation, "catchain: two deps from same source")
		}
		seenSrc[db.SourceIdx] = true
	}
	return nil
}

// materializeStub returns the ReceivedBlock already registered at ref's
// hash, or allocates a StateNone placeholder for it (spec.md §3.5: "a
// ReceivedBlock is created on the first reference ... as a dep; dep-created
// blocks may later receive their full content"). srcIdx is the stub's
// owning source if already known (Prev always is — a source's own chain),
// or -1 when it isn't (a fresh cross-source dep reference).
func (r *Receiver) materializeStub(ref BlockRef, srcIdx int) *ReceivedBlock {
	if stub, ok := r.blocks[ref.Hash]; ok {
		return stub
	}
	stub := &ReceivedBlock{
		Hash:      ref.Hash,
		SourceIdx: srcIdx,
		Height:    ref.Height,
		State:     StateNone,
	}
	r.blocks[ref.Hash] = stub
	return stub
}

// initializeNode computes pending-dependency count and registers reverse
// edges on not-yet-delivered ancestors, materializing a stub for any
// ancestor this receiver hasn't seen content for yet (spec.md §4.2.3 step
// 3, §3.5). Caller holds r.mu.
func (r *Receiver) initializeNode(block *ReceivedBlock) {
	pending := 0

	link := func(a BlockRef, srcHint int) bool {
		if a.Height == 0 {
			// Root pseudo-blocks are always considered delivered.
			return true
		}
		anc, ok := r.blocks[a.Hash]
		if !ok {
			anc = r.materializeStub(a, srcHint)
		}
		if anc.State == StateIll {
			r.markIll(block)
			return false
		}
		if anc.State != StateDelivered {
			anc.RevDeps = append(anc.RevDeps, BlockRef{Hash: block.Hash, Height: block.Height})
			pending++
		}
		return true
	}

	if !link(block.Prev, block.SourceIdx) {
		return
	}
	for _, d := range block.Deps {
		if !link(d, -1) {
			return
		}
	}
	block.PendingDepsCount = pending
}

// tryDeliver runs steps 5 and 6 of spec.md §4.2.3 once a block's
// dependencies are all delivered and it has been persisted.
func (r *Receiver) tryDeliver(block *ReceivedBlock) {
	if block.State == StateIll || block.State == StateDelivered {
		return
	}
	if !block.InDB || block.PendingDepsCount != 0 {
		return
	}

	src := r.sources[block.SourceIdx]

	// vt = merge(prev.vt, deps[*].vt) element-wise max.
	vt := make(map[ForkID]uint32)
	prevBlock, prevKnown := r.blocks[block.Prev.Hash]
	if prevKnown {
		mergeVT(vt, prevBlock.VT)
	}
	for _, d := range block.Deps {
		dep := r.blocks[d.Hash]
		if dep == nil {
			continue
		}
		mergeVT(vt, dep.VT)

		// Pre-deliver semantic checks (step 5).
		if prevKnown {
			if prevHeight, ok := vtBeforeMerge(prevBlock.VT, dep.ForkID); ok && prevHeight >= dep.Height {
				r.markIll(block)
				return
			}
		}
		depSrc := r.sources[dep.SourceIdx]
		if depSrc.Blamed {
			if citesOtherFork(prevBlock, dep.SourceIdx, dep.ForkID, r) {
				r.blame(src)
				r.markIll(block)
				return
			}
		}
		if minBlamed, ok := depSrc.BlamedHeights[dep.ForkID]; ok && prevKnown {
			if prevHeight, ok2 := vtBeforeMerge(prevBlock.VT, dep.ForkID); ok2 && prevHeight >= minBlamed {
				r.blame(src)
				r.markIll(block)
				return
			}
		}
	}

	// Fork id: height 1 allocates fresh; height > 1 inherits prev's
	// (the diverging-prev case was already caught as a ForkDetected
	// error in step 2, so no second allocation branch is reachable
	// here — see catchain/receiver.go's admit doc).
	if block.Height == 1 {
		block.ForkID = r.allocFork(src)
	} else if prevKnown {
		block.ForkID = prevBlock.ForkID
	} else {
		block.ForkID = r.allocFork(src)
	}
	vt[block.ForkID] = block.Height
	block.VT = vt
	block.State = StateDelivered
	src.DeliveredHeight = block.Height

	r.metrics.BlocksDeliveredTotal.Inc()
	if r.cb.OnNewBlock != nil {
		depsHashes := make([][32]byte, len(block.Deps))
		for i, d := range block.Deps {
			depsHashes[i] = d.Hash
		}
		r.cb.OnNewBlock(block.SourceIdx, block.ForkID, block.Hash, block.Height, block.Prev.Hash, depsHashes, vt, block.PayloadBytes)
	}

	r.log.Debug("catchain block delivered", zap.Int("source", block.SourceIdx), zap.Uint32("height", block.Height))

	// Cascade to reverse dependents.
	revDeps := block.RevDeps
	for _, rd := range revDeps {
		dependent, ok := r.blocks[rd.Hash]
		if !ok {
			continue
		}
		dependent.PendingDepsCount--
		if dependent.PendingDepsCount == 0 {
			r.tryDeliver(dependent)
		}
	}
}

func vtBeforeMerge(vt map[ForkID]uint32, fork ForkID) (uint32, bool) {
	h, ok := vt[fork]
	return h, ok
}

func citesOtherFork(prevBlock *ReceivedBlock, srcIdx int, ownFork ForkID, r *Receiver) bool {
	if prevBlock == nil {
		return false
	}
	for fork := range prevBlock.VT {
		if fork == ownFork {
			continue
		}
		if _, owns := r.sources[srcIdx].Forks[fork]; owns {
			return true
		}
	}
	return false
}

func mergeVT(dst, src map[ForkID]uint32) {
	for fork, height := range src {
		if cur, ok := dst[fork]; !ok || height > cur {
			dst[fork] = height
		}
	}
}

// markIll sets block (and its closure of pending reverse-dependents)
// ill. Ill is absorbing and never delivered (spec.md §3.2).
func (r *Receiver) markIll(block *ReceivedBlock) {
	if block.State == StateIll {
		return
	}
	block.State = StateIll
	r.metrics.BlocksIllTotal.Inc()
	for _, rd := range block.RevDeps {
		if dependent, ok := r.blocks[rd.Hash]; ok {
			r.markIll(dependent)
		}
	}
}

// allocFork mints a fresh fork id for src. The first fork a source
// receives is not blame-worthy; any subsequent one is (spec.md §3.2).
func (r *Receiver) allocFork(src *Source) ForkID {
	r.nextForkID++
	id := r.nextForkID
	if len(src.Forks) > 0 {
		r.blame(src)
	}
	src.Forks[id] = struct{}{}
	return id
}

// blameFork handles spec.md §4.2.3 step 2: two distinct blocks compete
// for the same (source, height) slot.
func (r *Receiver) blameFork(src *Source, srcIdx int, left, right BlockRef) {
	already := src.Blamed
	src.ForkProof = forkProofBytes(srcIdx, left.Height, left.Hash, right.Hash)
	r.blame(src)
	r.recordBlamedHeight(src, left.Height)
	r.metrics.ForksTotal.Inc()
	if !already && r.cb.OnBroadcast != nil {
		r.cb.OnBroadcast(src.NodeID, src.ForkProof)
	}
}

// recordBlamedHeight marks height as known-blamed across every fork src
// currently owns (spec.md §4.2.3 step 5's "known-blamed heights": once a
// source is caught equivocating at height, any lineage built on top of
// that height through any of the source's forks is equally suspect).
func (r *Receiver) recordBlamedHeight(src *Source, height uint32) {
	for fork := range src.Forks {
		if cur, ok := src.BlamedHeights[fork]; !ok || height < cur {
			src.BlamedHeights[fork] = height
		}
	}
}

// HandleForkBlameProof recognizes an inbound fork_blame payload (spec.md
// §4.2.3 step 5's "inner TL payload recognition"): src and height are
// self-reported in the proof, so a receiver that never itself admitted the
// colliding submissions can still blame src and record the blamed height
// once the proof's two cited hashes are confirmed to actually differ.
func (r *Receiver) HandleForkBlameProof(proof []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	srcIdx, height, left, right, ok := parseForkProofBytes(proof)
	if !ok || left == right {
		return xerr.New(xerr.ProtocolViolation, "catchain: malformed fork_blame payload")
	}
	if srcIdx < 0 || srcIdx >= len(r.sources) {
		return xerr.New(xerr.ProtocolViolation, "catchain: fork_blame source index out of range")
	}

	src := r.sources[srcIdx]
	already := src.Blamed
	src.ForkProof = proof
	r.blame(src)
	r.recordBlamedHeight(src, height)
	r.metrics.ForksTotal.Inc()
	if !already && r.cb.OnBroadcast != nil {
		r.cb.OnBroadcast(src.NodeID, proof)
	}
	return nil
}

// blame marks src permanently blamed and fires OnBlame exactly once
// (spec.md P3).
func (r *Receiver) blame(src *Source) {
	wasBlamed := src.Blamed
	src.Blamed = true
	if !wasBlamed {
		r.metrics.BlamesTotal.WithLabelValues(fmt.Sprint(src.Idx)).Inc()
		if r.cb.OnBlame != nil {
			r.cb.OnBlame(src.Idx)
		}
	}
}

// Blamed reports whether src is permanently blamed.
func (r *Receiver) Blamed(srcIdx int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sources[srcIdx].Blamed
}

// Block returns the current state of a known block, for tests and
// diagnostics.
func (r *Receiver) Block(hash [32]byte) (*ReceivedBlock, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blocks[hash]
	return b, ok
}
