// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bus implements the typed, in-process publish/subscribe backbone
// shared by every actor in one consensus instance (spec.md §4.4, §6.3).
// Each event class is a distinct Go type; Publish delivers to every
// subscriber registered for that type, Ask delivers to the single
// registered responder for a request type and returns its response.
package bus

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/ton-blockchain/catchain-consensus/actor"
)

// Bus is the pub/sub backbone for one session. Zero value is not usable;
// build one with New.
type Bus struct {
	mu        sync.RWMutex
	subs      map[reflect.Type][]*subscription
	responder map[reflect.Type]responderFunc
}

type subscription struct {
	mailbox *actor.Mailbox
	deliver func(ctx context.Context, ev any)
}

type responderFunc func(ctx context.Context, req any) (any, error)

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subs:      make(map[reflect.Type][]*subscription),
		responder: make(map[reflect.Type]responderFunc),
	}
}

// Subscribe registers handler to run, on mailbox, for every future Publish
// of E. Handlers for the same subscriber's mailbox are delivered FIFO;
// the bus makes no ordering guarantee across different subscribers
// (spec.md §4.4).
func Subscribe[E any](b *Bus, mailbox *actor.Mailbox, handler func(ctx context.Context, ev E)) {
	var zero E
	t := reflect.TypeOf(zero)
	sub := &subscription{
		mailbox: mailbox,
		deliver: func(ctx context.Context, ev any) { handler(ctx, ev.(E)) },
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], sub)
}

// Publish delivers ev to every subscriber of type E by posting into each
// subscriber's own mailbox, so a slow subscriber never blocks the
// publisher or its siblings.
func Publish[E any](b *Bus, ctx context.Context, ev E) {
	t := reflect.TypeOf(ev)
	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs[t]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s := s
		s.mailbox.Post(func() { s.deliver(ctx, ev) })
	}
}

// RegisterResponder installs the single handler for request/response
// events of type Req (spec.md's ResolveCandidate / ResolveState). A
// second registration for the same Req type is a programming error and
// panics, since the spec requires exactly one handler to accept the
// request.
func RegisterResponder[Req any, Resp any](b *Bus, handler func(ctx context.Context, req Req) (Resp, error)) {
	var zero Req
	t := reflect.TypeOf(zero)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.responder[t]; exists {
		panic(fmt.Sprintf("bus: responder already registered for %s", t))
	}
	b.responder[t] = func(ctx context.Context, req any) (any, error) {
		return handler(ctx, req.(Req))
	}
}

// Ask publishes a request/response event and returns its response,
// synthesizing the Task<Response> of spec.md §4.4 as an ordinary
// synchronous call: the registered responder runs directly on the
// caller's goroutine.
func Ask[Req any, Resp any](ctx context.Context, b *Bus, req Req) (Resp, error) {
	var zero Resp
	t := reflect.TypeOf(req)
	b.mu.RLock()
	h, ok := b.responder[t]
	b.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("bus: no responder registered for %s", t)
	}
	out, err := h(ctx, req)
	if err != nil {
		return zero, err
	}
	resp, ok := out.(Resp)
	if !ok {
		return zero, fmt.Errorf("bus: responder for %s returned unexpected type %T", t, out)
	}
	return resp, nil
}
