// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is a lazy unit of work: nothing runs until Start or StartImmediate
// is called (spec.md §4.1's `Task<T>`). The zero value is not usable; build
// one with NewTask.
type Task[T any] struct {
	fn func(ctx context.Context) (T, error)
}

// NewTask wraps fn as a lazy task.
func NewTask[T any](fn func(ctx context.Context) (T, error)) Task[T] {
	return Task[T]{fn: fn}
}

// StartedTask is always-running and awaitable exactly once via Wait.
type StartedTask[T any] struct {
	done   chan struct{}
	once   sync.Once
	result T
	err    error
}

func newStartedTask[T any]() *StartedTask[T] {
	return &StartedTask[T]{done: make(chan struct{})}
}

func (s *StartedTask[T]) finish(v T, err error) {
	s.once.Do(func() {
		s.result = v
		s.err = err
		close(s.done)
	})
}

// Wait blocks until the task finishes or ctx is cancelled, whichever comes
// first. Awaiting a Task returning an error auto-propagates it to the
// caller per spec.md §4.1 — callers that don't want that follow the error
// return immediately, exactly as Wrap's description says: short-circuit
// unless explicitly suppressed.
func (s *StartedTask[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Start schedules the task on sys and returns a handle to its eventual
// result.
func (t Task[T]) Start(sys *System, ctx context.Context) *StartedTask[T] {
	st := newStartedTask[T]()
	sys.Schedule(func() {
		v, err := t.fn(ctx)
		st.finish(v, err)
	})
	return st
}

// StartImmediate runs the task inline on the calling goroutine instead of
// handing it to the pool — the Go rendering of "resumes inline if the
// current executor allows".
func (t Task[T]) StartImmediate(ctx context.Context) *StartedTask[T] {
	st := newStartedTask[T]()
	v, err := t.fn(ctx)
	st.finish(v, err)
	return st
}

// Detach starts the task and discards its handle: the caller relinquishes
// ownership of the result entirely (fire-and-forget).
func (t Task[T]) Detach(sys *System, ctx context.Context) {
	sys.Schedule(func() {
		_, _ = t.fn(ctx)
	})
}

// Wrap converts a task that can fail into one that always succeeds,
// carrying the (T, error) pair as its value instead of propagating the
// error — spec.md §4.1's `task.wrap()`.
func Wrap[T any](t Task[T]) Task[Result[T]] {
	return NewTask(func(ctx context.Context) (Result[T], error) {
		v, err := t.fn(ctx)
		return Result[T]{Value: v, Err: err}, nil
	})
}

// Result carries a value-or-error pair without triggering propagation.
type Result[T any] struct {
	Value T
	Err   error
}

// All awaits every task to completion on the current scheduler and
// collects results in order, cancelling sibling tasks' shared context on
// the first failure (golang.org/x/sync/errgroup backs this, realizing
// spec.md §4.1's `all(a, b, ...)`).
func All[T any](ctx context.Context, sys *System, tasks ...Task[T]) ([]T, error) {
	results := make([]T, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			v, err := t.fn(gctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Ask invokes fn — typically a method on a foreign actor that returns a
// Task — and awaits it on ctx. It is the bridge spec.md §4.1 calls
// `ask(actor, &T::method, args...)`: here the "promise bridge" collapses
// to an ordinary function call since Go methods are already first-class
// values.
func Ask[T any](ctx context.Context, sys *System, fn func(context.Context) (T, error)) (T, error) {
	return NewTask(fn).Start(sys, ctx).Wait(ctx)
}
