// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package kv is the durable key-value journal backing the catchain
// receiver and the consensus finalizer (spec.md §6.1). Keys are opaque
// byte strings (callers build their own, as a fixed prefix plus the raw
// logical key; see catchain/keys.go and consensus/keys.go); values are
// opaque serialized payloads.
package kv

import "errors"

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("kv: not found")

// Iterator walks a key range in ascending key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Store is the durable KV contract every journal in this module is built
// on. Implementations must make Put idempotent: writing the same
// key/value pair twice has the same observable effect as writing it
// once (spec.md P2).
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	NewIterator(prefix []byte) Iterator
	Close() error
}
