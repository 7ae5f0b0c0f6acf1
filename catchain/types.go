// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package catchain implements CORE A: the causally-ordered block DAG
// receiver, with fork detection, blame attribution and durable replay
// (spec.md §3.2, §4.2). Shape is grounded on the teacher's
// dag/dag.go (map of block-id to node, tip tracking) and
// engine/dag/bootstrap/bootstrapper.go (dependency-first fetch), restated
// over this core's validator/fork semantics instead of the teacher's.
package catchain

import (
	"github.com/ton-blockchain/catchain-consensus/identity"
)

// ForkID distinguishes diverging branches of one source (spec.md §3.2).
// The receiver allocates these; zero is never a valid allocated id.
type ForkID int32

// BlockRef names a block by content hash and height, the pair threaded
// through prev/deps/rev_deps/vt.
type BlockRef struct {
	Hash   [32]byte
	Height uint32
}

// BlockState is a ReceivedBlock's position in spec.md §3.2's state
// machine: none -> initialized -> delivered, with ill absorbing from
// either of the first two.
type BlockState int

const (
	StateNone BlockState = iota
	StateInitialized
	StateDelivered
	StateIll
)

func (s BlockState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateInitialized:
		return "initialized"
	case StateDelivered:
		return "delivered"
	case StateIll:
		return "ill"
	default:
		return "unknown"
	}
}

// Source is one validator's bookkeeping within a session (spec.md §3.2).
type Source struct {
	Idx             int
	NodeID          identity.NodeID
	AdnlID          identity.NodeID
	Forks           map[ForkID]struct{}
	BlamedHeights   map[ForkID]uint32 // minimum blamed height, per fork
	Blamed          bool
	DeliveredHeight uint32
	ReceivedHeight  uint32
	BlocksByHeight  map[uint32]BlockRef
	ForkProof       []byte
}

func newSource(idx int, nodeID, adnlID identity.NodeID) *Source {
	return &Source{
		Idx:            idx,
		NodeID:         nodeID,
		AdnlID:         adnlID,
		Forks:          make(map[ForkID]struct{}),
		BlamedHeights:  make(map[ForkID]uint32),
		BlocksByHeight: make(map[uint32]BlockRef),
	}
}

// ReceivedBlock is one DAG node (spec.md §3.2).
type ReceivedBlock struct {
	Hash         [32]byte
	SourceIdx    int
	Height       uint32
	ForkID       ForkID
	PayloadBytes []byte
	Signature    []byte
	Prev         BlockRef
	Deps         []BlockRef
	VT           map[ForkID]uint32
	RevDeps      []BlockRef

	PendingDepsCount int
	InDB             bool
	State            BlockState
}
