// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// SharedFuture lets many waiters inside one actor share a single
// computation (spec.md §5). It wraps golang.org/x/sync/singleflight, which
// already coalesces concurrent calls for the same key, with explicit
// refcounting: singleflight alone has no notion of "cancel the backing
// call", so the wrapper tracks live waiters and cancels the backing
// call's context itself once the last one drops, per spec.md's "cancels
// the backing task when the last strong holder drops (ref-count goes to
// zero)".
type SharedFuture[T any] struct {
	mu    sync.Mutex
	group singleflight.Group
	refs  map[string]*sharedCall
}

type sharedCall struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewSharedFuture creates an empty SharedFuture registry.
func NewSharedFuture[T any]() *SharedFuture[T] {
	return &SharedFuture[T]{refs: make(map[string]*sharedCall)}
}

type sharedResult[T any] struct {
	v   T
	err error
}

// Get runs fn at most once per key concurrently; every caller for the same
// key while a call is in flight shares that one call's result instead of
// re-running fn. fn receives the shared call's own context, which is
// cancelled only once every waiter for this key has left (by returning or
// by its own ctx being cancelled).
func (f *SharedFuture[T]) Get(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	f.mu.Lock()
	call, ok := f.refs[key]
	if !ok {
		callCtx, cancel := context.WithCancel(context.Background())
		call = &sharedCall{ctx: callCtx, cancel: cancel}
		f.refs[key] = call
	}
	call.waiters++
	callCtx := call.ctx
	f.mu.Unlock()

	defer f.release(key, call)

	done := make(chan sharedResult[T], 1)
	go func() {
		v, err, _ := f.group.Do(key, func() (any, error) {
			vv, ferr := fn(callCtx)
			return sharedResult[T]{v: vv, err: ferr}, nil
		})
		r, _ := v.(sharedResult[T])
		if err != nil {
			done <- sharedResult[T]{err: err}
			return
		}
		done <- r
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *SharedFuture[T]) release(key string, call *sharedCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call.waiters--
	if call.waiters <= 0 {
		call.cancel()
		if f.refs[key] == call {
			delete(f.refs, key)
		}
	}
}
