// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSleepUntilResolvesAtDeadline(t *testing.T) {
	w := NewTimerWheel()
	start := time.Now()
	err := w.SleepUntil(context.Background(), start.Add(20*time.Millisecond))
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSleepUntilRacesCancellation(t *testing.T) {
	w := NewTimerWheel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := w.SleepUntil(ctx, time.Now().Add(time.Hour))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSleepUntilPastDeadlineReturnsImmediately(t *testing.T) {
	w := NewTimerWheel()
	err := w.SleepUntil(context.Background(), time.Now().Add(-time.Second))
	require.NoError(t, err)
}

func TestMultipleTimersFireInOrder(t *testing.T) {
	w := NewTimerWheel()
	now := time.Now()
	var order []int
	done := make(chan struct{})
	go func() {
		_ = w.SleepUntil(context.Background(), now.Add(30*time.Millisecond))
		order = append(order, 2)
		close(done)
	}()
	_ = w.SleepUntil(context.Background(), now.Add(10*time.Millisecond))
	order = append(order, 1)
	<-done
	require.Equal(t, []int{1, 2}, order)
}
