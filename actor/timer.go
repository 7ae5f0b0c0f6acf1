// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// TimerWheel is the min-heap of absolute deadlines described in spec.md
// §4.1. It is not owned by a System; callers create one and share it.
// SleepUntil registers a heap entry and resolves when either the deadline
// elapses or the caller's context is cancelled — the two race on whether
// the node is still in the heap, checked under the wheel's mutex, the Go
// rendering of the source's CAS-on-node-state race.
type TimerWheel struct {
	mu    sync.Mutex
	items timerHeap
	timer *time.Timer
}

type timerNode struct {
	deadline time.Time
	index    int
	ready    chan struct{}
}

type timerHeap []*timerNode

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x any) {
	n := x.(*timerNode)
	n.index = len(*h)
	*h = append(*h, n)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// NewTimerWheel creates an empty wheel.
func NewTimerWheel() *TimerWheel {
	return &TimerWheel{}
}

// SleepUntil blocks the calling goroutine until deadline elapses or ctx is
// done, whichever comes first. It returns ctx.Err() on cancellation.
func (w *TimerWheel) SleepUntil(ctx context.Context, deadline time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := time.Until(deadline)
	if d <= 0 {
		return nil
	}
	node := &timerNode{deadline: deadline, ready: make(chan struct{})}
	w.mu.Lock()
	heap.Push(&w.items, node)
	w.rearm()
	w.mu.Unlock()

	select {
	case <-node.ready:
		return nil
	case <-ctx.Done():
		w.cancelNode(node)
		return ctx.Err()
	}
}

// cancelNode removes node from the heap if it hasn't already fired. If it
// already fired, the ready channel is simply never read again — harmless.
func (w *TimerWheel) cancelNode(node *timerNode) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if node.index >= 0 && node.index < len(w.items) && w.items[node.index] == node {
		heap.Remove(&w.items, node.index)
	}
	w.rearm()
}

// rearm schedules the process timer for the new heap head. Caller holds mu.
func (w *TimerWheel) rearm() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if len(w.items) == 0 {
		return
	}
	head := w.items[0]
	d := time.Until(head.deadline)
	if d < 0 {
		d = 0
	}
	w.timer = time.AfterFunc(d, w.fire)
}

func (w *TimerWheel) fire() {
	w.mu.Lock()
	now := time.Now()
	var fired []*timerNode
	for len(w.items) > 0 && !w.items[0].deadline.After(now) {
		fired = append(fired, heap.Pop(&w.items).(*timerNode))
	}
	w.rearm()
	w.mu.Unlock()

	for _, n := range fired {
		close(n.ready)
	}
}
