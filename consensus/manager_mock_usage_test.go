// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ton-blockchain/catchain-consensus/bus"
)

// TestResolveStateGenesisCallsManagerExactlyOnce exercises ManagerFacade
// through a generated-style mock rather than a hand-written fake, so the
// resolver's genesis path (spec.md §4.3.4: no parent means the validator
// manager itself supplies the state) is verified by call-count and
// argument expectations instead of just observing a return value.
func TestResolveStateGenesisCallsManagerExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	minMcRef := bus.BlockID{7}
	mgr := NewMockManagerFacade(ctrl)
	mgr.EXPECT().
		ChainStateFromManager(gomock.Any(), nil, minMcRef).
		Return(ResolvedState{StateRoot: []byte("genesis-state")}, nil).
		Times(1)

	r := NewResolver(bus.New(), nil, mgr, nil, nil, minMcRef, nil, nil)

	st, err := r.ResolveState(context.Background(), bus.ParentID{Ok: false})
	require.NoError(t, err)
	require.Equal(t, []byte("genesis-state"), st.StateRoot)

	// SharedFuture memoizes by cache key, so a second call for the same
	// (genesis) parent must not call the manager again.
	st2, err := r.ResolveState(context.Background(), bus.ParentID{Ok: false})
	require.NoError(t, err)
	require.Equal(t, st.StateRoot, st2.StateRoot)
}
