// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package adnl

import (
	"context"

	"github.com/ton-blockchain/catchain-consensus/identity"
)

// Sender is the subset of the ADNL wire contract this core consumes
// (spec.md §1, §6.2): framed send, request/response query, and broadcast
// subscription. The UDP framing and encryption live entirely outside this
// module.
type Sender interface {
	// SendMessage delivers data to peer best-effort, fragmenting via the
	// FEC codec integration layer when data exceeds the effective MTU.
	SendMessage(ctx context.Context, local, peer identity.NodeID, data []byte) error
	// SendQuery sends data to peer and returns its response, or an error
	// on timeout/protocol violation.
	SendQuery(ctx context.Context, local, peer identity.NodeID, data []byte) ([]byte, error)
	// Subscribe registers handler for inbound broadcasts/queries
	// addressed to local.
	Subscribe(local identity.NodeID, handler QueryHandler)
}

// QueryHandler handles an inbound query or broadcast. For a query, reply
// must be invoked exactly once; for a broadcast, reply is nil.
type QueryHandler interface {
	OnQuery(ctx context.Context, from identity.NodeID, data []byte, reply func([]byte))
	OnBroadcast(ctx context.Context, from identity.NodeID, data []byte)
}

// MTUAwareSender wraps a Sender with an MTURegistry so callers can ask
// "what's the effective MTU to this peer right now" without threading the
// registry through every call site.
type MTUAwareSender struct {
	Sender
	MTU *MTURegistry
}

// EffectiveMTU returns the current MTU for (local, peer).
func (s *MTUAwareSender) EffectiveMTU(local, peer identity.NodeID) int {
	return s.MTU.Effective(local, peer)
}
