// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dht implements the DHT client contract this core relies on for
// name-to-address resolution: routing table, iterative get_value/
// set_value, reverse connections and republish (spec.md §4.5, §6.2). The
// wire-level findNode/findValue/store RPCs and their on-disk bucket
// persistence are the externally specified ADNL/DB surface; this package
// only implements the client-side algorithm that drives them.
//
// Bucket bookkeeping is grounded on
// _examples/orbas1-Synnergy/synnergy-network/core/kademlia.go's XOR/
// leading-zero bucket-index math, generalized from that file's fixed
// 160-bit/no-backup-slots table to the 256-bit, k=10, active+backup table
// spec.md §4.5 specifies.
package dht

import (
	"math/bits"
	"sync"
	"time"

	"github.com/ton-blockchain/catchain-consensus/identity"
)

// DefaultK is the default bucket size (spec.md §4.5).
const DefaultK = 10

// Node is one DHT peer, as held in the routing table.
type Node struct {
	ID           identity.NodeID
	Addr         identity.PeerAddress
	LastSeen     time.Time
	LastFailedAt time.Time
	Failed       bool
}

// Distance is the XOR of two 256-bit keys (spec's GLOSSARY entry).
func Distance(a, b identity.NodeID) identity.NodeID {
	var d identity.NodeID
	for i := range a {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// bucketIndex is the position of the highest set bit of the XOR distance,
// i.e. floor(log2(distance)); self (distance zero) has no bucket and is
// reported as -1.
func bucketIndex(d identity.NodeID) int {
	for i, b := range d {
		if b == 0 {
			continue
		}
		// Byte i holds the highest set bit; bits.Len8 gives its 1-based
		// bit position within the byte.
		return (len(d)-1-i)*8 + bits.Len8(b) - 1
	}
	return -1
}

type bucket struct {
	active []Node
	backup []Node
}

// RoutingTable is a local-key-centered set of 256 k-buckets, one per
// distance bit position, each with k active slots and k backup slots
// (spec.md §4.5).
type RoutingTable struct {
	mu    sync.Mutex
	local identity.NodeID
	k     int
	// 256 buckets ordered by XOR distance bit: bucket i holds nodes whose
	// distance has highest set bit i; bucket 0 is closest to self.
	buckets [256]*bucket
}

// NewRoutingTable creates a table centered on local with bucket size k
// (DefaultK if k <= 0).
func NewRoutingTable(local identity.NodeID, k int) *RoutingTable {
	if k <= 0 {
		k = DefaultK
	}
	rt := &RoutingTable{local: local, k: k}
	for i := range rt.buckets {
		rt.buckets[i] = &bucket{}
	}
	return rt
}

// Add inserts or refreshes n. If the node's active slot is full, n is
// added as a backup instead (spec.md's Kademlia replacement strategy).
func (rt *RoutingTable) Add(n Node) {
	if n.ID == rt.local {
		return
	}
	idx := bucketIndex(Distance(rt.local, n.ID))
	if idx < 0 {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	b := rt.buckets[idx]

	for i, existing := range b.active {
		if existing.ID == n.ID {
			b.active[i] = n
			return
		}
	}
	if len(b.active) < rt.k {
		b.active = append(b.active, n)
		return
	}
	for i, existing := range b.backup {
		if existing.ID == n.ID {
			b.backup[i] = n
			return
		}
	}
	if len(b.backup) < rt.k {
		b.backup = append(b.backup, n)
		return
	}
	// Backup full too: drop the least-recently-failed backup to make
	// room, per spec.md's replacement rule. If nothing has failed, drop
	// the oldest by LastSeen.
	victim := 0
	for i := 1; i < len(b.backup); i++ {
		bi, bv := b.backup[i], b.backup[victim]
		if bi.LastFailedAt.Before(bv.LastFailedAt) ||
			(bi.LastFailedAt.Equal(bv.LastFailedAt) && bi.LastSeen.Before(bv.LastSeen)) {
			victim = i
		}
	}
	b.backup[victim] = n
}

// MarkFailed removes a failed active node from its active slot and
// promotes the bucket's first backup (if any) in its place. The failed
// node is dropped, not kept as a backup.
func (rt *RoutingTable) MarkFailed(id identity.NodeID, at time.Time) {
	idx := bucketIndex(Distance(rt.local, id))
	if idx < 0 {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	b := rt.buckets[idx]

	for i, n := range b.active {
		if n.ID != id {
			continue
		}
		n.Failed = true
		n.LastFailedAt = at
		if len(b.backup) > 0 {
			promoted := b.backup[0]
			b.backup = b.backup[1:]
			b.active[i] = promoted
		} else {
			b.active = append(b.active[:i], b.active[i+1:]...)
		}
		return
	}
}

// Closest returns up to n nodes closest to target, across all buckets,
// sorted by ascending distance.
func (rt *RoutingTable) Closest(target identity.NodeID, n int) []Node {
	rt.mu.Lock()
	var all []Node
	for _, b := range rt.buckets {
		all = append(all, b.active...)
	}
	rt.mu.Unlock()

	sortByDistance(all, target)
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func sortByDistance(nodes []Node, target identity.NodeID) {
	less := func(i, j int) bool {
		di := Distance(nodes[i].ID, target)
		dj := Distance(nodes[j].ID, target)
		for k := range di {
			if di[k] != dj[k] {
				return di[k] < dj[k]
			}
		}
		return false
	}
	// Insertion sort: bucket counts are small (<= 2k per bucket) and
	// this keeps the dependency surface to the standard library only,
	// matching how the rest of the routing table is implemented.
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}

// Len returns the total number of active nodes tracked.
func (rt *RoutingTable) Len() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	n := 0
	for _, b := range rt.buckets {
		n += len(b.active)
	}
	return n
}
