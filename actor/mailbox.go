// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"context"
	"sync/atomic"
)

// Mailbox is a single-consumer message queue. An Actor drains its own
// mailbox on at most one goroutine at a time, realizing "an actor is a
// single-threaded unit of locality" (spec.md §4.1).
type Mailbox struct {
	msgs    chan func()
	sys     *System
	running atomic.Bool
}

// NewMailbox creates a mailbox bound to sys with the given buffer depth.
func NewMailbox(sys *System, buffer int) *Mailbox {
	return &Mailbox{sys: sys, msgs: make(chan func(), buffer)}
}

// Post enqueues a handler to run with exclusive access to the actor's
// state. Posts from the same goroutine are delivered in send order
// (spec.md §5).
func (m *Mailbox) Post(handler func()) {
	m.msgs <- handler
	m.pump()
}

// pump schedules draining if nobody is currently draining. Only one
// drain loop runs per mailbox at a time, which is what gives the actor
// its single-threaded locality even though Post can be called
// concurrently from many goroutines.
func (m *Mailbox) pump() {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	m.sys.Schedule(m.drain)
}

func (m *Mailbox) drain() {
	for {
		select {
		case h := <-m.msgs:
			h()
		default:
			m.running.Store(false)
			// A Post may have raced us between the channel read
			// failing and running flipping false; re-check and
			// resume draining if so.
			if len(m.msgs) > 0 && m.running.CompareAndSwap(false, true) {
				continue
			}
			return
		}
	}
}

// Close stops scheduling new drains; callers should stop Posting before
// calling Close.
func (m *Mailbox) Close() {
	close(m.msgs)
}

// Actor is embedded by every single-threaded unit in this module. It
// binds a Mailbox to the shared System and provides Run as sugar for
// Mailbox.Post.
type Actor struct {
	Mailbox *Mailbox
}

// NewActor creates an actor with a fresh mailbox on sys.
func NewActor(sys *System, mailboxBuffer int) Actor {
	return Actor{Mailbox: NewMailbox(sys, mailboxBuffer)}
}

// Run posts fn to the actor's mailbox and blocks the caller until it has
// executed (or ctx is cancelled), giving callers the synchronous "ask"
// calling convention on top of the async mailbox.
func (a *Actor) Run(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	a.Mailbox.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
