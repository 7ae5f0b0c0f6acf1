// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMailboxDeliversInSendOrder(t *testing.T) {
	sys := NewSystem(4)
	defer sys.Close()

	a := NewActor(sys, 16)
	var order []int
	var mu chan struct{} = make(chan struct{}, 1)
	mu <- struct{}{}

	for i := 0; i < 10; i++ {
		i := i
		a.Mailbox.Post(func() {
			<-mu
			order = append(order, i)
			mu <- struct{}{}
		})
	}

	require.NoError(t, a.Run(context.Background(), func() {}))
	require.Len(t, order, 10)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestActorRunIsSynchronous(t *testing.T) {
	sys := NewSystem(2)
	defer sys.Close()

	a := NewActor(sys, 4)
	done := false
	err := a.Run(context.Background(), func() { done = true })
	require.NoError(t, err)
	require.True(t, done)
}
