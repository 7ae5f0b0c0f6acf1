// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package catchain

// Key layout realizes spec.md §6.1's catchain receiver DB schema
// (db_key.block(hash), db_key.neighbour) over this module's opaque
// kv.Store: a fixed ASCII prefix plus the logical key, rather than
// re-hashing the prefix+key pair into an opaque digest, so replay can
// enumerate every persisted block with kv.Store.NewIterator(blockPrefix)
// (spec.md §4.2.6). The on-disk byte layout is this core's own, not a
// wire format — the external database backend is out of scope (spec.md
// §1 Non-goals).

var blockPrefix = []byte("catchain/block/")

func blockKey(hash [32]byte) []byte {
	key := make([]byte, 0, len(blockPrefix)+32)
	key = append(key, blockPrefix...)
	key = append(key, hash[:]...)
	return key
}

var neighbourPrefix = []byte("catchain/neighbour/")

func neighbourKey(sourceIdx int) []byte {
	key := make([]byte, 0, len(neighbourPrefix)+2)
	key = append(key, neighbourPrefix...)
	key = append(key, byte(sourceIdx), byte(sourceIdx>>8))
	return key
}
