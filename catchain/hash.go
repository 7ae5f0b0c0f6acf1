// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package catchain

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/ton-blockchain/catchain-consensus/identity"
)

// contentHash computes a block's content address over
// {session, source index, height, payload_hash} (spec.md §3.2). The source
// is named by its index in the session, not by its short id.
func contentHash(session identity.SessionID, sourceIdx int, height uint32, payload []byte) [32]byte {
	payloadHash := sha256.Sum256(payload)

	h := sha256.New()
	h.Write(session[:])
	var idxBuf [8]byte
	binary.LittleEndian.PutUint64(idxBuf[:], uint64(sourceIdx))
	h.Write(idxBuf[:])
	var heightBuf [4]byte
	binary.LittleEndian.PutUint32(heightBuf[:], height)
	h.Write(heightBuf[:])
	h.Write(payloadHash[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// rootHash addresses the pseudo-block that grounds height 1 of sourceIdx.
func rootHash(session identity.SessionID, sourceIdx int) [32]byte {
	h := sha256.New()
	h.Write(session[:])
	h.Write([]byte("root"))
	var idxBuf [8]byte
	binary.LittleEndian.PutUint64(idxBuf[:], uint64(sourceIdx))
	h.Write(idxBuf[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// forkProofBytes synthesizes the opaque fork_proof payload cited by
// on_found_fork_proof (spec.md §4.2.3 step 5's "inner TL payload
// recognition"): the source and height the two blocks collide at, plus
// their two distinct hashes, so a receiver that never itself observed the
// colliding submissions can still recognize and act on the proof.
func forkProofBytes(srcIdx int, height uint32, left, right [32]byte) []byte {
	out := make([]byte, 8+4+32+32)
	binary.LittleEndian.PutUint64(out[0:8], uint64(srcIdx))
	binary.LittleEndian.PutUint32(out[8:12], height)
	copy(out[12:44], left[:])
	copy(out[44:76], right[:])
	return out
}

// parseForkProofBytes is forkProofBytes' inverse. ok is false for anything
// whose length is not exactly that of a well-formed fork_blame payload.
func parseForkProofBytes(data []byte) (srcIdx int, height uint32, left, right [32]byte, ok bool) {
	if len(data) != 8+4+32+32 {
		return 0, 0, left, right, false
	}
	srcIdx = int(binary.LittleEndian.Uint64(data[0:8]))
	height = binary.LittleEndian.Uint32(data[8:12])
	copy(left[:], data[12:44])
	copy(right[:], data[44:76])
	return srcIdx, height, left, right, true
}
