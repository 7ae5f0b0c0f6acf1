// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ton-blockchain/catchain-consensus/identity"
)

func idWithByte(b byte) identity.NodeID {
	var id identity.NodeID
	id[31] = b
	return id
}

func TestBucketIndexIsHighestSetBit(t *testing.T) {
	var zero identity.NodeID
	require.Equal(t, -1, bucketIndex(zero))

	d := idWithByte(1) // ...00000001 -> bit 0
	require.Equal(t, 0, bucketIndex(d))

	d2 := idWithByte(2) // ...00000010 -> bit 1
	require.Equal(t, 1, bucketIndex(d2))
}

func TestRoutingTableAddAndClosest(t *testing.T) {
	local := idWithByte(0)
	rt := NewRoutingTable(local, DefaultK)

	for i := byte(1); i <= 5; i++ {
		rt.Add(Node{ID: idWithByte(i)})
	}
	require.Equal(t, 5, rt.Len())

	closest := rt.Closest(idWithByte(1), 3)
	require.Len(t, closest, 3)
	require.Equal(t, idWithByte(1), closest[0].ID)
}

func TestRoutingTableOverflowsToBackup(t *testing.T) {
	local := idWithByte(0)
	rt := NewRoutingTable(local, 2)

	// All these share the same highest-set-bit bucket (bit 2, value 4..7).
	rt.Add(Node{ID: idWithByte(4)})
	rt.Add(Node{ID: idWithByte(5)})
	rt.Add(Node{ID: idWithByte(6)}) // should go to backup, active is full

	idx := bucketIndex(Distance(local, idWithByte(4)))
	require.Len(t, rt.buckets[idx].active, 2)
	require.Len(t, rt.buckets[idx].backup, 1)
}

func TestMarkFailedPromotesBackup(t *testing.T) {
	local := idWithByte(0)
	rt := NewRoutingTable(local, 1)

	rt.Add(Node{ID: idWithByte(4)})
	rt.Add(Node{ID: idWithByte(5)}) // backup, bucket full

	rt.MarkFailed(idWithByte(4), time.Now())

	idx := bucketIndex(Distance(local, idWithByte(4)))
	require.Len(t, rt.buckets[idx].active, 1)
	require.Equal(t, idWithByte(5), rt.buckets[idx].active[0].ID)
	require.Empty(t, rt.buckets[idx].backup)
}
