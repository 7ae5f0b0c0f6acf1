// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package catchain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ton-blockchain/catchain-consensus/identity"
	"github.com/ton-blockchain/catchain-consensus/kv"
	"github.com/ton-blockchain/catchain-consensus/log"
	"github.com/ton-blockchain/catchain-consensus/metrics"
)

type deliveryEvent struct {
	srcIdx int
	height uint32
	hash   [32]byte
	vt     map[ForkID]uint32
	payload string
}

func newTestReceiver(t *testing.T, session identity.SessionID, selfIdx, nSources int) (*Receiver, *[]deliveryEvent, *[]int) {
	t.Helper()
	var delivered []deliveryEvent
	var blamed []int
	cb := Callbacks{
		OnNewBlock: func(srcIdx int, forkID ForkID, hash [32]byte, height uint32, prevHash [32]byte, deps [][32]byte, vt map[ForkID]uint32, payload []byte) {
			delivered = append(delivered, deliveryEvent{srcIdx: srcIdx, height: height, hash: hash, vt: vt, payload: string(payload)})
		},
		OnBlame: func(srcIdx int) {
			blamed = append(blamed, srcIdx)
		},
	}
	r := NewReceiver(Config{Session: session, SelfIdx: selfIdx, MaxDeps: 2}, nSources, nil, kv.NewMemStore(), metrics.NewNopSet(), log.NewNop(), cb)
	return r, &delivered, &blamed
}

func rootRef(session identity.SessionID, srcIdx int) BlockRef {
	return BlockRef{Hash: rootHash(session, srcIdx), Height: 0}
}

// TestS1CausalOrderAcrossTwoValidators is spec.md §8 S1, literally.
func TestS1CausalOrderAcrossTwoValidators(t *testing.T) {
	var session identity.SessionID
	session[0] = 0x01

	r0, delivered0, _ := newTestReceiver(t, session, 0, 2)
	r1, delivered1, _ := newTestReceiver(t, session, 1, 2)

	ref1, err := r0.AddBlock([]byte("hello"), nil)
	require.NoError(t, err)

	// V1 receives B1, then produces B2 depending on it.
	_, err = r1.HandleBlock(0, 1, rootRef(session, 0), []byte("hello"), nil, nil)
	require.NoError(t, err)
	ref2, err := r1.AddBlock([]byte("reply"), []BlockRef{ref1})
	require.NoError(t, err)

	// V0 receives B2 (causal order requires B1 already known, which it is).
	_, err = r0.HandleBlock(1, 1, rootRef(session, 1), []byte("reply"), nil, []BlockRef{ref1})
	require.NoError(t, err)

	for _, delivered := range [][]deliveryEvent{*delivered0, *delivered1} {
		require.Len(t, delivered, 2)
		require.Equal(t, 0, delivered[0].srcIdx)
		require.Equal(t, "hello", delivered[0].payload)
		require.Equal(t, ref1.Hash, delivered[0].hash)
		require.Equal(t, 1, delivered[1].srcIdx)
		require.Equal(t, "reply", delivered[1].payload)
		require.Equal(t, ref2.Hash, delivered[1].hash)
	}
}

// TestP1CausalDelivery: a block's prev/deps closure is always delivered
// strictly before it, for an arbitrary chain.
func TestP1CausalDelivery(t *testing.T) {
	var session identity.SessionID
	session[1] = 0x02
	r, delivered, _ := newTestReceiver(t, session, 0, 1)

	_, err := r.AddBlock([]byte("a"), nil)
	require.NoError(t, err)
	_, err = r.AddBlock([]byte("b"), nil)
	require.NoError(t, err)
	_, err = r.AddBlock([]byte("c"), nil)
	require.NoError(t, err)

	require.Len(t, *delivered, 3)
	for i, ev := range *delivered {
		require.Equal(t, uint32(i+1), ev.height)
	}
}

// TestS2ForkBlameIsPermanentAndSingular is spec.md §8 S2, literally.
func TestS2ForkBlameIsPermanentAndSingular(t *testing.T) {
	var session identity.SessionID
	session[0] = 0x01

	r0, _, blamed0 := newTestReceiver(t, session, 0, 2)
	r1, _, blamed1 := newTestReceiver(t, session, 1, 2)

	_, err := r0.AddBlock([]byte("hello"), nil)
	require.NoError(t, err)
	_, err = r1.HandleBlock(0, 1, rootRef(session, 0), []byte("hello"), nil, nil)
	require.NoError(t, err)

	// V0 broadcasts a conflicting B1' at the same (src=0, height=1).
	_, err = r0.HandleBlock(0, 1, rootRef(session, 0), []byte("bye"), nil, nil)
	require.Error(t, err)
	_, err = r1.HandleBlock(0, 1, rootRef(session, 0), []byte("bye"), nil, nil)
	require.Error(t, err)

	require.Equal(t, []int{0}, *blamed0)
	require.Equal(t, []int{0}, *blamed1)
	require.True(t, r0.Blamed(0))
	require.True(t, r1.Blamed(0))

	// Subsequent blocks from the blamed source never deliver.
	_, err = r1.HandleBlock(0, 1, rootRef(session, 0), []byte("later"), nil, nil)
	require.Error(t, err)
}

// TestP3ForkDetectionIsOrderIndependent covers P3 with the two
// conflicting blocks admitted in the opposite order.
func TestP3ForkDetectionIsOrderIndependent(t *testing.T) {
	var session identity.SessionID
	session[2] = 0x03
	r, _, blamed := newTestReceiver(t, session, 5, 2)

	_, err := r.HandleBlock(0, 1, rootRef(session, 0), []byte("bye"), nil, nil)
	require.NoError(t, err)
	_, err = r.HandleBlock(0, 1, rootRef(session, 0), []byte("hello"), nil, nil)
	require.Error(t, err)

	require.Equal(t, []int{0}, *blamed)
}

// TestP2IdempotentPersistence: replaying from the KV store after a
// simulated crash reproduces the same delivery stream as a fresh run.
func TestP2IdempotentPersistence(t *testing.T) {
	var session identity.SessionID
	session[3] = 0x04

	store := kv.NewMemStore()
	cb := Callbacks{}
	r := NewReceiver(Config{Session: session, SelfIdx: 0, MaxDeps: 2}, 1, nil, store, metrics.NewNopSet(), log.NewNop(), cb)

	ref1, err := r.AddBlock([]byte("a"), nil)
	require.NoError(t, err)
	_, err = r.AddBlock([]byte("b"), nil)
	require.NoError(t, err)

	// Simulate crash: a fresh receiver over the same store, with no
	// further inputs beyond replay.
	var delivered []deliveryEvent
	cb2 := Callbacks{OnNewBlock: func(srcIdx int, forkID ForkID, hash [32]byte, height uint32, prevHash [32]byte, deps [][32]byte, vt map[ForkID]uint32, payload []byte) {
		delivered = append(delivered, deliveryEvent{srcIdx: srcIdx, height: height, hash: hash, payload: string(payload)})
	}}
	r2 := NewReceiver(Config{Session: session, SelfIdx: 0, MaxDeps: 2}, 1, nil, store, metrics.NewNopSet(), log.NewNop(), cb2)
	require.NoError(t, r2.ReplayFromStore())

	require.Len(t, delivered, 2)
	require.Equal(t, ref1.Hash, delivered[0].hash)
	require.Equal(t, "a", delivered[0].payload)
	require.Equal(t, "b", delivered[1].payload)

	block, ok := r2.Block(ref1.Hash)
	require.True(t, ok)
	require.Equal(t, StateDelivered, block.State)
}

// TestOutOfOrderDepArrivalStillDelivers covers spec.md §3.5: a block citing
// a dep this receiver has not yet seen content for is pended behind a
// StateNone stub rather than rejected, and delivers once the dep's real
// content later fills that stub in.
func TestOutOfOrderDepArrivalStillDelivers(t *testing.T) {
	var session identity.SessionID
	session[4] = 0x05

	r, delivered, _ := newTestReceiver(t, session, 5, 2)

	aHash := contentHash(session, 0, 1, []byte("a"))
	aRef := BlockRef{Hash: aHash, Height: 1}

	// B (source 1) cites A (source 0) as a dep before A has arrived at all.
	bRef, err := r.HandleBlock(1, 1, rootRef(session, 1), []byte("b"), nil, []BlockRef{aRef})
	require.NoError(t, err)

	require.Empty(t, *delivered, "B must not deliver while its dep is unknown")

	stub, ok := r.Block(aHash)
	require.True(t, ok, "an unknown dep reference must materialize a stub")
	require.Equal(t, StateNone, stub.State)

	pending, ok := r.Block(bRef.Hash)
	require.True(t, ok)
	require.Equal(t, StateInitialized, pending.State)
	require.Equal(t, 1, pending.PendingDepsCount)

	// A arrives for real: it fills the stub in place and wakes B.
	_, err = r.HandleBlock(0, 1, rootRef(session, 0), []byte("a"), nil, nil)
	require.NoError(t, err)

	require.Len(t, *delivered, 2)
	require.Equal(t, aHash, (*delivered)[0].hash)
	require.Equal(t, "a", (*delivered)[0].payload)
	require.Equal(t, bRef.Hash, (*delivered)[1].hash)
	require.Equal(t, "b", (*delivered)[1].payload)

	filled, ok := r.Block(aHash)
	require.True(t, ok)
	require.Equal(t, StateDelivered, filled.State)
	require.Same(t, stub, filled, "the stub is promoted in place, not replaced")
}

// TestOutOfOrderPrevArrivalStillDelivers is the same gap on the prev edge
// instead of deps: a source's own height-2 block can arrive before its
// height-1 prev, and must still deliver once the prev fills in.
func TestOutOfOrderPrevArrivalStillDelivers(t *testing.T) {
	var session identity.SessionID
	session[5] = 0x06

	r, delivered, _ := newTestReceiver(t, session, 5, 1)

	h1Hash := contentHash(session, 0, 1, []byte("h1"))
	h1Ref := BlockRef{Hash: h1Hash, Height: 1}
	h2Hash := contentHash(session, 0, 2, []byte("h2"))

	_, err := r.HandleBlock(0, 2, h1Ref, []byte("h2"), nil, nil)
	require.NoError(t, err)
	require.Empty(t, *delivered)

	stub, ok := r.Block(h1Hash)
	require.True(t, ok)
	require.Equal(t, StateNone, stub.State)
	require.Equal(t, 0, stub.SourceIdx, "prev's source is known even as a stub")

	_, err = r.HandleBlock(0, 1, rootRef(session, 0), []byte("h1"), nil, nil)
	require.NoError(t, err)

	require.Len(t, *delivered, 2)
	require.Equal(t, h1Hash, (*delivered)[0].hash)
	require.Equal(t, h2Hash, (*delivered)[1].hash)
}
