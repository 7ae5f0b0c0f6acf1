// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import "github.com/ton-blockchain/catchain-consensus/bus"

// finalizedPrefix mirrors catchain's own key-layout choice (catchain/keys.go):
// a fixed ASCII prefix over the raw id bytes, realizing spec.md §6.1's
// consensus_simplex.db_key.finalizedBlock(candidate_id) as this core's own
// internal KV row rather than a literal re-derivation of the external
// schema.
var finalizedPrefix = []byte("consensus/finalized/")

func finalizedKey(id bus.CandidateID) []byte {
	key := make([]byte, 0, len(finalizedPrefix)+32)
	key = append(key, finalizedPrefix...)
	key = append(key, id[:]...)
	return key
}
