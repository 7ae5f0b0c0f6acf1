// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bus

import (
	"time"

	"github.com/ton-blockchain/catchain-consensus/identity"
)

// BlockID names a block produced by the external collator/validator
// (spec.md §6 treats it as opaque outside the validator contract).
type BlockID [32]byte

// CandidateID is H(slot, CandidateHashData) — spec.md §3.3.
type CandidateID [32]byte

// ParentID is Option<CandidateID>; the zero value (Ok=false) is genesis.
type ParentID struct {
	ID CandidateID
	Ok bool
}

// CandidateVariant distinguishes a FullBlock candidate from an Empty one.
type CandidateVariant int

const (
	VariantFullBlock CandidateVariant = iota
	VariantEmpty
)

// RawCandidate is spec.md §3.3's RawCandidate.
type RawCandidate struct {
	ID          CandidateID
	ParentID    ParentID
	ProducerIdx int
	Variant     CandidateVariant
	Block       BlockID
	Signature   []byte
	Slot        uint64
}

// NotarCert is the multisignature formed once a candidate gathers
// notarization weight (spec.md §3.3).
type NotarCert struct {
	ID            CandidateID
	SignerBitmap  []bool
	AggregatedSig []byte
}

// FinalCert is analogous to NotarCert but over (vote.id, vote.slot) and
// ends the slot chain.
type FinalCert struct {
	ID            CandidateID
	Slot          uint64
	SignerBitmap  []bool
	AggregatedSig []byte
}

// Start is the bus's first published event, carrying the session's
// initial resolved state.
type Start struct {
	InitialState any
}

// StopRequested tells every listening actor to cancel its active work and
// shut down.
type StopRequested struct{}

// OurLeaderWindowStarted assigns slots [StartSlot, EndSlot) to the local
// validator (spec.md §4.3.1, §6.3).
type OurLeaderWindowStarted struct {
	StartSlot          uint64
	EndSlot            uint64
	StartTime          time.Time
	Base               ParentID
	PrevBlockStateRoot []byte
	PrevBlockData      []byte
}

// OurLeaderWindowAborted invalidates the window that began at StartSlot.
type OurLeaderWindowAborted struct {
	StartSlot uint64
}

// CandidateGenerated is published once per slot by the leader window
// loop, naming the collator node id that produced it (if any, for a full
// block).
type CandidateGenerated struct {
	Candidate RawCandidate
	Collator  identity.NodeID
	HasCollator bool
}

// CandidateReceived is published whenever a candidate — ours or a
// peer's — becomes known to this instance.
type CandidateReceived struct {
	Candidate RawCandidate
}

// FinalizationObserved names a candidate that has gathered a final
// certificate, directly or by extension (spec.md §4.3.5).
type FinalizationObserved struct {
	ID        CandidateID
	FinalCert *FinalCert
}

// BlockFinalized is published at most once per CandidateID (P6).
type BlockFinalized struct {
	Candidate      RawCandidate
	FinalSignature *FinalCert
}

// BlockFinalizedInMasterchain notifies workchains of masterchain
// progress, used by the empty-vs-full policy (spec.md §4.3.2).
type BlockFinalizedInMasterchain struct {
	Block BlockID
	Seqno uint64
}

// StatsTargetReachedKind names which stats milestone StatsTargetReached
// reports.
type StatsTargetReachedKind int

const (
	StatsCollateStarted StatsTargetReachedKind = iota
	StatsCollateFinished
)

// StatsTargetReached is an observability event with no consensus effect.
type StatsTargetReached struct {
	Kind StatsTargetReachedKind
	Slot uint64
}

// ResolveCandidate is a request/response event: callers ask for a
// candidate and its notarization certificate by id.
type ResolveCandidate struct {
	ID CandidateID
}

// ResolveCandidateResponse answers ResolveCandidate.
type ResolveCandidateResponse struct {
	Candidate RawCandidate
	NotarCert *NotarCert
}

// ResolveState is a request/response event: callers ask for the
// post-state of an arbitrary parent (spec.md §4.3.4).
type ResolveState struct {
	Parent ParentID
}

// ResolveStateResponse answers ResolveState.
type ResolveStateResponse struct {
	State          []byte
	GenUtimeExact  uint32
	HasGenUtime    bool
}

// FinalizeBlock is a request/response event published by the state
// resolver to the validator manager.
type FinalizeBlock struct {
	Candidate RawCandidate
	SigSet    []byte
}

// FinalizeBlockAck answers FinalizeBlock.
type FinalizeBlockAck struct{}
