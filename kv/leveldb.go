// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package kv

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB implements Store on top of goleveldb, the same driver the
// pack's tolelom-tolchain teacher wires for its block store (its internal
// `database` dependency has no public source to target instead — see
// DESIGN.md).
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a LevelDB database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return val, err
}

func (l *LevelDB) Put(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) Has(key []byte) (bool, error) {
	return l.db.Has(key, nil)
}

func (l *LevelDB) NewIterator(prefix []byte) Iterator {
	var rng *util.Range
	if len(prefix) > 0 {
		rng = util.BytesPrefix(prefix)
	}
	return &levelIterator{it: l.db.NewIterator(rng, nil)}
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

type levelIterator struct {
	it iterator.Iterator
}

func (i *levelIterator) Next() bool     { return i.it.Next() }
func (i *levelIterator) Key() []byte    { return i.it.Key() }
func (i *levelIterator) Value() []byte  { return i.it.Value() }
func (i *levelIterator) Release()       { i.it.Release() }
func (i *levelIterator) Error() error   { return i.it.Error() }
