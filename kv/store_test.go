// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStorePutGetIdempotent(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Put([]byte("a"), []byte("1")))
	require.NoError(t, s.Put([]byte("a"), []byte("1")))

	v, err := s.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}

func TestMemStoreGetMissingReturnsErrNotFound(t *testing.T) {
	s := NewMemStore()
	_, err := s.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreIteratorOrdersByPrefix(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Put([]byte("block:b"), []byte("2")))
	require.NoError(t, s.Put([]byte("block:a"), []byte("1")))
	require.NoError(t, s.Put([]byte("other:z"), []byte("9")))

	it := s.NewIterator([]byte("block:"))
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Error())
	require.Equal(t, []string{"block:a", "block:b"}, keys)
}
