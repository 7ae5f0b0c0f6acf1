// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package adnl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ton-blockchain/catchain-consensus/identity"
)

// TestP7MTUInvariant covers spec.md P7: effective MTU equals
// max(default, override(L), max(overrides(L,P))), and adding then
// immediately dropping a guard restores the prior value.
func TestP7MTUInvariant(t *testing.T) {
	reg := NewMTURegistry(1280)
	var local, peer identity.NodeID
	local[0] = 1
	peer[0] = 2

	require.Equal(t, 1280, reg.Effective(local, peer))

	before := reg.Effective(local, peer)
	guard := NewPeersMtuGuard(reg, local, []identity.NodeID{peer}, 4096)
	require.Equal(t, 4096, reg.Effective(local, peer))

	guard.Release()
	require.Equal(t, before, reg.Effective(local, peer))
}

func TestLocalOverrideAppliesToEveryPeer(t *testing.T) {
	reg := NewMTURegistry(1280)
	var local, peerA, peerB identity.NodeID
	local[0], peerA[0], peerB[0] = 1, 2, 3

	reg.SetLocalOverride(local, 2048)
	require.Equal(t, 2048, reg.Effective(local, peerA))
	require.Equal(t, 2048, reg.Effective(local, peerB))
}

func TestMultipleGuardsAreAMultiset(t *testing.T) {
	reg := NewMTURegistry(1280)
	var local, peer identity.NodeID
	local[0], peer[0] = 1, 2

	g1 := NewPeersMtuGuard(reg, local, []identity.NodeID{peer}, 3000)
	g2 := NewPeersMtuGuard(reg, local, []identity.NodeID{peer}, 2000)
	require.Equal(t, 3000, reg.Effective(local, peer))

	g1.Release()
	// g2's override (2000) is still held.
	require.Equal(t, 2000, reg.Effective(local, peer))

	g2.Release()
	require.Equal(t, 1280, reg.Effective(local, peer))
}

func TestOnMTUUpdatedFiresOnChange(t *testing.T) {
	reg := NewMTURegistry(1280)
	var local, peer identity.NodeID
	local[0], peer[0] = 1, 2

	calls := 0
	reg.OnMTUUpdated(func(l identity.NodeID, hasL bool, p identity.NodeID, hasP bool) {
		calls++
	})

	g := NewPeersMtuGuard(reg, local, []identity.NodeID{peer}, 3000)
	g.Release()
	require.Equal(t, 2, calls)
}
