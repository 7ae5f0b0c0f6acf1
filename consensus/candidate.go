// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/ton-blockchain/catchain-consensus/bus"
)

// candidateID computes H(slot, CandidateHashData) (spec.md §3.3): the
// variant tag, the slot, the carried block id and the parent reference
// are all folded into the digest so a FullBlock and an Empty candidate
// at the same slot/parent never collide.
func candidateID(slot uint64, variant bus.CandidateVariant, block bus.BlockID, parent bus.ParentID) bus.CandidateID {
	h := sha256.New()
	var slotBuf [8]byte
	binary.LittleEndian.PutUint64(slotBuf[:], slot)
	h.Write(slotBuf[:])
	h.Write([]byte{byte(variant)})
	h.Write(block[:])
	if parent.Ok {
		h.Write([]byte{1})
		h.Write(parent.ID[:])
	} else {
		h.Write([]byte{0})
	}
	var out bus.CandidateID
	copy(out[:], h.Sum(nil))
	return out
}

// signingPayload is what the validator signs: (session_id, id), matching
// spec.md §4.3.1's "sign over (session_id, id)".
func signingPayload(session [32]byte, id bus.CandidateID) []byte {
	out := make([]byte, 0, 64)
	out = append(out, session[:]...)
	out = append(out, id[:]...)
	return out
}

// candidateParent mirrors the teacher-adjacent original's CandidateParent:
// bookkeeping for the block this driver is about to extend, carried
// across iterations of the leader-window loop.
type candidateParent struct {
	parentID bus.ParentID
	block    bus.BlockID
	seqno    uint64
}

// nextSeqno is the seqno the next candidate at this parent will claim.
func (p candidateParent) nextSeqno() uint64 { return p.seqno + 1 }

// advance moves the parent pointer forward to the block just produced.
func (p candidateParent) advance(id bus.CandidateID, block bus.BlockID) candidateParent {
	return candidateParent{
		parentID: bus.ParentID{ID: id, Ok: true},
		block:    block,
		seqno:    p.seqno + 1,
	}
}
