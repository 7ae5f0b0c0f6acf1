// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ton-blockchain/catchain-consensus/identity"
	"github.com/ton-blockchain/catchain-consensus/log"
	"github.com/ton-blockchain/catchain-consensus/xerr"
)

// Alpha is the iterative-lookup parallelism factor.
const Alpha = 3

// MaxAttemptsPerNode bounds how many times the same node is queried
// during one lookup, so a flaky peer cannot stall convergence (property
// P8).
const MaxAttemptsPerNode = 3

// Value is a signed key/value record as stored in the DHT (spec.md §4.5).
type Value struct {
	Key       []byte
	Data      []byte
	Signature []byte
	TTL       time.Time
}

// PeerClient is the per-peer RPC surface an iterative lookup drives.
// Implementations sit on top of adnl.Sender's query path.
type PeerClient interface {
	FindNode(ctx context.Context, peer Node, target identity.NodeID) ([]Node, error)
	FindValue(ctx context.Context, peer Node, key []byte) ([]Node, *Value, error)
	Store(ctx context.Context, peer Node, v Value) error
	Ping(ctx context.Context, peer Node) error
}

// Client drives get_value/set_value/reverse-connection operations over a
// RoutingTable and a PeerClient (spec.md §4.5, §6.2).
type Client struct {
	local   identity.NodeID
	table   *RoutingTable
	peers   PeerClient
	log     log.Logger
	mu      sync.Mutex
	reverse map[identity.NodeID]reverseEntry
}

type reverseEntry struct {
	requestedAt time.Time
	addr        identity.PeerAddress
}

// NewClient creates a client centered on local, driving table over peers.
func NewClient(local identity.NodeID, table *RoutingTable, peers PeerClient, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{local: local, table: table, peers: peers, log: logger, reverse: make(map[identity.NodeID]reverseEntry)}
}

// lookupState tracks one iterative lookup's shortlist and per-node
// attempt counts.
type lookupState struct {
	mu       sync.Mutex
	target   identity.NodeID
	seen     map[identity.NodeID]Node
	attempts map[identity.NodeID]int
	queried  map[identity.NodeID]bool
}

func newLookupState(target identity.NodeID, seed []Node) *lookupState {
	s := &lookupState{
		target:   target,
		seen:     make(map[identity.NodeID]Node),
		attempts: make(map[identity.NodeID]int),
		queried:  make(map[identity.NodeID]bool),
	}
	for _, n := range seed {
		s.seen[n.ID] = n
	}
	return s
}

func (s *lookupState) addCandidates(nodes []Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		if _, ok := s.seen[n.ID]; !ok {
			s.seen[n.ID] = n
		}
	}
}

// nextBatch returns up to Alpha nodes not yet queried, closest-first, and
// marks them queried.
func (s *lookupState) nextBatch() []Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []Node
	for id, n := range s.seen {
		if s.queried[id] {
			continue
		}
		if s.attempts[id] >= MaxAttemptsPerNode {
			continue
		}
		candidates = append(candidates, n)
	}
	sortByDistance(candidates, s.target)
	if len(candidates) > Alpha {
		candidates = candidates[:Alpha]
	}
	for _, n := range candidates {
		s.queried[n.ID] = true
		s.attempts[n.ID]++
	}
	return candidates
}

func (s *lookupState) closest(k int) []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]Node, 0, len(s.seen))
	for _, n := range s.seen {
		all = append(all, n)
	}
	sortByDistance(all, s.target)
	if len(all) > k {
		all = all[:k]
	}
	return all
}

// GetValue runs the iterative findValue procedure (spec.md's get_value):
// query the Alpha closest unqueried nodes in parallel each round,
// widening the shortlist with every reply, until either a reply carries a
// value or every node on the shortlist has been queried. The first value
// returned is accepted as is; its key and signature are not checked. Each
// node is queried at most MaxAttemptsPerNode times, bounding total work
// for property P8.
func (c *Client) GetValue(ctx context.Context, key []byte, target identity.NodeID) (*Value, error) {
	seed := c.table.Closest(target, DefaultK)
	if len(seed) == 0 {
		return nil, xerr.New(xerr.NotReady, "dht: routing table empty")
	}
	state := newLookupState(target, seed)

	for round := 0; ; round++ {
		batch := state.nextBatch()
		if len(batch) == 0 {
			return nil, xerr.New(xerr.NotReady, "dht: value not found, lookup exhausted")
		}

		type reply struct {
			nodes []Node
			value *Value
		}
		replies := make([]reply, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i, peer := range batch {
			i, peer := i, peer
			g.Go(func() error {
				nodes, v, err := c.peers.FindValue(gctx, peer, key)
				if err != nil {
					c.table.MarkFailed(peer.ID, time.Now())
					return nil // a single peer failure never aborts the round
				}
				replies[i] = reply{nodes: nodes, value: v}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, errors.WithMessage(err, "dht get_value round")
		}

		for _, r := range replies {
			if r.value != nil {
				return r.value, nil
			}
			state.addCandidates(r.nodes)
		}

		if ctx.Err() != nil {
			return nil, xerr.Wrap(ctx.Err(), "dht get_value")
		}
	}
}

// SetValue stores v at the k nodes closest to the value's key, via the
// same iterative-lookup shortlist used by GetValue, then issues Store to
// each. Succeeds if at least one Store call succeeds.
func (c *Client) SetValue(ctx context.Context, v Value, target identity.NodeID) error {
	seed := c.table.Closest(target, DefaultK)
	state := newLookupState(target, seed)

	for {
		batch := state.nextBatch()
		if len(batch) == 0 {
			break
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, peer := range batch {
			peer := peer
			g.Go(func() error {
				nodes, err := c.peers.FindNode(gctx, peer, target)
				if err != nil {
					c.table.MarkFailed(peer.ID, time.Now())
					return nil
				}
				state.addCandidates(nodes)
				return nil
			})
		}
		_ = g.Wait()
		if ctx.Err() != nil {
			return xerr.Wrap(ctx.Err(), "dht set_value lookup")
		}
	}

	targets := state.closest(DefaultK)
	if len(targets) == 0 {
		return xerr.New(xerr.NotReady, "dht: no nodes to store value at")
	}

	var mu sync.Mutex
	stored := 0
	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range targets {
		peer := peer
		g.Go(func() error {
			if err := c.peers.Store(gctx, peer, v); err != nil {
				c.table.MarkFailed(peer.ID, time.Now())
				return nil
			}
			mu.Lock()
			stored++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if stored == 0 {
		return xerr.New(xerr.NotReady, "dht: set_value failed at every target node")
	}
	return nil
}

// RegisterReverseConnection records that peer asked local to remember it
// owns addr, so a later request_reverse_ping can route back through a
// relay when peer is not directly reachable (spec.md §4.5).
func (c *Client) RegisterReverseConnection(peer identity.NodeID, addr identity.PeerAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reverse[peer] = reverseEntry{requestedAt: time.Now(), addr: addr}
}

// RequestReversePing returns NotReady when no reverse-connection record
// for target is on file; otherwise it pings relay. The ping carries no
// reference to target, so relay is not told which node to dial.
func (c *Client) RequestReversePing(ctx context.Context, relay Node, target identity.NodeID) error {
	c.mu.Lock()
	_, known := c.reverse[target]
	c.mu.Unlock()
	if !known {
		return xerr.New(xerr.NotReady, "dht: no reverse-connection record for target")
	}
	return c.peers.Ping(ctx, relay)
}

// Republish re-stores every value in owned, whatever its TTL, and should be
// driven periodically by the caller (spec.md's republish obligation,
// §4.5). A failed store is logged and does not stop the others.
func (c *Client) Republish(ctx context.Context, owned []Value, keyTarget func(key []byte) identity.NodeID) error {
	for _, v := range owned {
		if err := c.SetValue(ctx, v, keyTarget(v.Key)); err != nil {
			c.log.Warn("dht republish failed", zap.Error(err))
		}
	}
	return nil
}
