// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskStartAndWait(t *testing.T) {
	sys := NewSystem(2)
	defer sys.Close()

	task := NewTask(func(ctx context.Context) (int, error) {
		return 42, nil
	})
	v, err := task.Start(sys, context.Background()).Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestTaskStartImmediateRunsInline(t *testing.T) {
	ran := false
	task := NewTask(func(ctx context.Context) (int, error) {
		ran = true
		return 1, nil
	})
	_, err := task.StartImmediate(context.Background()).Wait(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
}

func TestTaskWaitRespectsCancellation(t *testing.T) {
	sys := NewSystem(1)
	defer sys.Close()

	block := make(chan struct{})
	task := NewTask(func(ctx context.Context) (int, error) {
		<-block
		return 0, nil
	})
	started := task.Start(sys, context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := started.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	close(block)
}

func TestWrapSuppressesPropagation(t *testing.T) {
	sys := NewSystem(1)
	defer sys.Close()

	failing := NewTask(func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	wrapped := Wrap(failing)
	res, err := wrapped.Start(sys, context.Background()).Wait(context.Background())
	require.NoError(t, err)
	require.Error(t, res.Err)
}

func TestAllCancelsSiblingsOnFailure(t *testing.T) {
	sys := NewSystem(4)
	defer sys.Close()

	var cancelled bool
	slow := NewTask(func(ctx context.Context) (int, error) {
		<-ctx.Done()
		cancelled = true
		return 0, ctx.Err()
	})
	failing := NewTask(func(ctx context.Context) (int, error) {
		time.Sleep(10 * time.Millisecond)
		return 0, errors.New("fail fast")
	})

	_, err := All(context.Background(), sys, slow, failing)
	require.Error(t, err)
	require.True(t, cancelled)
}

func TestAskBridgesAMethodReturningATask(t *testing.T) {
	sys := NewSystem(1)
	defer sys.Close()

	type service struct{ base int }
	svc := &service{base: 10}
	add := func(ctx context.Context, n int) (int, error) {
		return svc.base + n, nil
	}

	v, err := Ask(context.Background(), sys, func(ctx context.Context) (int, error) {
		return add(ctx, 5)
	})
	require.NoError(t, err)
	require.Equal(t, 15, v)
}
