// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ton-blockchain/catchain-consensus/identity"
)

// fakeNetwork is a synthetic static topology: every simulated node knows
// its own k closest peers out of a fixed universe, and one node owns a
// value. It lets TestP8BoundedLookup drive Client.GetValue against fixed,
// reproducible routing without any real transport.
type fakeNetwork struct {
	mu        sync.Mutex
	neighbors map[identity.NodeID][]Node
	values    map[identity.NodeID]Value // keyed by owning node
	calls     map[identity.NodeID]int
}

func (n *fakeNetwork) FindNode(ctx context.Context, peer Node, target identity.NodeID) ([]Node, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[peer.ID]++
	return append([]Node(nil), n.neighbors[peer.ID]...), nil
}

func (n *fakeNetwork) FindValue(ctx context.Context, peer Node, key []byte) ([]Node, *Value, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[peer.ID]++
	if v, ok := n.values[peer.ID]; ok {
		return nil, &v, nil
	}
	return append([]Node(nil), n.neighbors[peer.ID]...), nil, nil
}

func (n *fakeNetwork) Store(ctx context.Context, peer Node, v Value) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.values[peer.ID] = v
	return nil
}

func (n *fakeNetwork) Ping(ctx context.Context, peer Node) error { return nil }

// buildChain wires a line topology: node i knows node i+1 (and nothing
// else), so a lookup for the value owned by the last node must hop
// through every intermediate node exactly once.
func buildChain(size int) (*fakeNetwork, []Node) {
	nodes := make([]Node, size)
	for i := 0; i < size; i++ {
		nodes[i] = Node{ID: idWithByte(byte(i + 1))}
	}
	net := &fakeNetwork{neighbors: make(map[identity.NodeID][]Node), values: make(map[identity.NodeID]Value), calls: make(map[identity.NodeID]int)}
	for i := 0; i < size-1; i++ {
		net.neighbors[nodes[i].ID] = []Node{nodes[i+1]}
	}
	return net, nodes
}

// TestP8BoundedLookup covers property P8: over a fixed, known topology,
// GetValue converges and queries any single node at most
// MaxAttemptsPerNode times.
func TestP8BoundedLookup(t *testing.T) {
	net, nodes := buildChain(6)
	owner := nodes[len(nodes)-1]
	key := []byte("k")
	net.values[owner.ID] = Value{Key: key, Data: []byte("v")}

	local := idWithByte(0)
	rt := NewRoutingTable(local, DefaultK)
	rt.Add(nodes[0])

	client := NewClient(local, rt, net, nil)
	v, err := client.GetValue(context.Background(), key, owner.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v.Data)

	for id, count := range net.calls {
		require.LessOrEqualf(t, count, MaxAttemptsPerNode, "node %s queried too many times", id)
	}
}

func TestGetValueNotFoundWhenLookupExhausted(t *testing.T) {
	net, nodes := buildChain(3)
	local := idWithByte(0)
	rt := NewRoutingTable(local, DefaultK)
	rt.Add(nodes[0])

	client := NewClient(local, rt, net, nil)
	var missing identity.NodeID
	missing[0] = 0xff
	_, err := client.GetValue(context.Background(), []byte("missing"), missing)
	require.Error(t, err)
}

func TestSetValueStoresAtClosestNodes(t *testing.T) {
	net, nodes := buildChain(4)
	local := idWithByte(0)
	rt := NewRoutingTable(local, DefaultK)
	for _, n := range nodes {
		rt.Add(n)
	}

	client := NewClient(local, rt, net, nil)
	target := nodes[0].ID
	err := client.SetValue(context.Background(), Value{Key: []byte("k"), Data: []byte("v")}, target)
	require.NoError(t, err)

	net.mu.Lock()
	defer net.mu.Unlock()
	require.NotEmpty(t, net.values)
}

func TestRegisterAndRequestReversePing(t *testing.T) {
	net, nodes := buildChain(2)
	local := idWithByte(0)
	rt := NewRoutingTable(local, DefaultK)
	client := NewClient(local, rt, net, nil)

	target := nodes[1].ID

	err := client.RequestReversePing(context.Background(), nodes[0], target)
	require.Error(t, err, "no reverse-connection record yet")

	client.RegisterReverseConnection(target, identity.PeerAddress{})
	err = client.RequestReversePing(context.Background(), nodes[0], target)
	require.NoError(t, err)
}
