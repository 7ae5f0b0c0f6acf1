// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"context"
	"time"

	"github.com/ton-blockchain/catchain-consensus/bus"
	"github.com/ton-blockchain/catchain-consensus/identity"
)

// CollateParams is the request passed to Collator.CollateBlock, carrying
// everything the external collator needs to build one new block on top
// of parent (spec.md §1 non-goal: validate_block_sync/collate_block are
// external collaborators; this is just their call shape).
type CollateParams struct {
	IsMasterchain  bool
	MinMcBlockID   bus.BlockID
	Prev           bus.BlockID
	Creator        identity.NodeID
	PrevBlockData  []byte
	PrevStateRoot  []byte
}

// BlockCandidate is what the external collator returns for a FullBlock
// slot: the new block id and, if this validator produced it locally,
// the collator node that did the work (for attribution only).
type BlockCandidate struct {
	Block        bus.BlockID
	CollatorNode identity.NodeID
	HasCollator  bool
}

// Collator is the external block-collation contract (spec.md §1's
// `collate_block`), injected so the driver itself stays free of shard
// state machinery.
type Collator interface {
	CollateBlock(ctx context.Context, params CollateParams) (BlockCandidate, error)
	// ApplyBlockToState folds candidate onto the previous state root,
	// returning the new root and block data (spec.md §1's
	// `apply_block_to_state`).
	ApplyBlockToState(ctx context.Context, prevStateRoot []byte, candidate bus.BlockID) (newStateRoot []byte, newBlockData []byte, err error)
	// IsBeforeSplit reports whether prevBlockData names a shard on the
	// verge of a split (spec.md §4.3.2's "before-split" empty-block
	// trigger). A non-nil error is treated as false by the caller.
	IsBeforeSplit(ctx context.Context, prevBlockData []byte) (bool, error)
}

// ManagerFacade is the external validator-manager contract the state
// resolver calls into for genesis/already-finalized state (spec.md
// §4.3.4's `ChainState::from_manager`). Acking a finalization itself
// goes through the bus's FinalizeBlock request/response event (spec.md
// §4.3.5, §6.3), not through this facade, since that is already modeled
// as a typed bus round-trip.
type ManagerFacade interface {
	ChainStateFromManager(ctx context.Context, blocks []bus.BlockID, minMcBlockID bus.BlockID) (ResolvedState, error)
}

// ResolvedState is the state-resolver's output for a ParentId (spec.md
// §4.3.4): the post-state and the exact gen_utime of the block that
// produced it, if known.
type ResolvedState struct {
	StateRoot     []byte
	GenUtimeExact uint32
	HasGenUtime   bool
}

// Signer produces the session-scoped signature over a candidate id
// (spec.md §4.3.1's "sign over (session_id, id)").
type Signer interface {
	Sign(data []byte) []byte
}

// Config parametrizes one consensus instance (spec.md §4.3's "session
// id, local validator key, shard descriptor, leader schedule, and the
// configured target_rate_ms").
type Config struct {
	Session         identity.SessionID
	ProducerIdx     int
	IsMasterchain   bool
	TargetRate      time.Duration
	MinMcBlockID    bus.BlockID
}
