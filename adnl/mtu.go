// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package adnl implements the two contracts this core consumes from the
// (externally specified) ADNL transport: a framed per-peer Sender and the
// MTU registry that tracks the effective MTU for every (local, peer)
// pair (spec.md §4.6, §6.2). The raw UDP/ADNL wire protocol itself is out
// of scope; only send_message/send_query/subscribe are consumed.
package adnl

import (
	"sync"

	"github.com/ton-blockchain/catchain-consensus/identity"
)

// pairKey identifies one (local, peer) MTU domain.
type pairKey struct {
	local identity.NodeID
	peer  identity.NodeID
}

// MTURegistry tracks the effective MTU for every (local_id, peer_id) pair:
// max(default, override(local), max(overrides(local,peer))) — spec.md §4.6
// / P7.
type MTURegistry struct {
	mu sync.Mutex

	defaultMTU int
	localOverride map[identity.NodeID]int
	// pairOverrides is a multiset: the same override value can be held
	// by more than one guard at once, and the pair's effective override
	// only disappears once every holder has released it.
	pairOverrides map[pairKey][]int

	onUpdated func(local identity.NodeID, hasLocal bool, peer identity.NodeID, hasPeer bool)
}

// NewMTURegistry creates a registry with the given process-wide default.
func NewMTURegistry(defaultMTU int) *MTURegistry {
	return &MTURegistry{
		defaultMTU:    defaultMTU,
		localOverride: make(map[identity.NodeID]int),
		pairOverrides: make(map[pairKey][]int),
	}
}

// OnMTUUpdated installs the callback invoked after every change, so a
// derived component (e.g. a fragmenter) can resize itself. Matches
// spec.md's on_mtu_updated(local_id?, peer_id?).
func (r *MTURegistry) OnMTUUpdated(fn func(local identity.NodeID, hasLocal bool, peer identity.NodeID, hasPeer bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpdated = fn
}

// SetLocalOverride sets the MTU override for every peer of local.
func (r *MTURegistry) SetLocalOverride(local identity.NodeID, mtu int) {
	r.mu.Lock()
	r.localOverride[local] = mtu
	cb := r.onUpdated
	r.mu.Unlock()
	if cb != nil {
		cb(local, true, identity.NodeID{}, false)
	}
}

// Effective returns max(default, local override, max of per-peer
// overrides) for (local, peer).
func (r *MTURegistry) Effective(local, peer identity.NodeID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.effectiveLocked(local, peer)
}

func (r *MTURegistry) effectiveLocked(local, peer identity.NodeID) int {
	mtu := r.defaultMTU
	if v, ok := r.localOverride[local]; ok && v > mtu {
		mtu = v
	}
	for _, v := range r.pairOverrides[pairKey{local: local, peer: peer}] {
		if v > mtu {
			mtu = v
		}
	}
	return mtu
}

func (r *MTURegistry) addPairOverride(local, peer identity.NodeID, mtu int) {
	r.mu.Lock()
	k := pairKey{local: local, peer: peer}
	r.pairOverrides[k] = append(r.pairOverrides[k], mtu)
	cb := r.onUpdated
	r.mu.Unlock()
	if cb != nil {
		cb(local, true, peer, true)
	}
}

func (r *MTURegistry) removePairOverride(local, peer identity.NodeID, mtu int) {
	r.mu.Lock()
	k := pairKey{local: local, peer: peer}
	overrides := r.pairOverrides[k]
	for i, v := range overrides {
		if v == mtu {
			overrides = append(overrides[:i], overrides[i+1:]...)
			break
		}
	}
	if len(overrides) == 0 {
		delete(r.pairOverrides, k)
	} else {
		r.pairOverrides[k] = overrides
	}
	cb := r.onUpdated
	r.mu.Unlock()
	if cb != nil {
		cb(local, true, peer, true)
	}
}

// PeersMtuGuard is a scoped RAII-style object: on construction it inserts
// an MTU override for every (local, peer) in peers; Release removes it
// (spec.md §4.6). Adding and immediately releasing a guard must leave the
// registry's Effective() values exactly as they were (P7).
type PeersMtuGuard struct {
	reg    *MTURegistry
	local  identity.NodeID
	peers  []identity.NodeID
	mtu    int
	released bool
}

// NewPeersMtuGuard inserts mtu as an override for (local, peer) for every
// peer in peers.
func NewPeersMtuGuard(reg *MTURegistry, local identity.NodeID, peers []identity.NodeID, mtu int) *PeersMtuGuard {
	g := &PeersMtuGuard{reg: reg, local: local, peers: append([]identity.NodeID(nil), peers...), mtu: mtu}
	for _, p := range g.peers {
		reg.addPairOverride(local, p, mtu)
	}
	return g
}

// Release removes the guard's override. Idempotent.
func (g *PeersMtuGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	for _, p := range g.peers {
		g.reg.removePairOverride(g.local, p, g.mtu)
	}
}
