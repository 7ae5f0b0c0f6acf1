// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestS6RateLimiterScenario reproduces spec.md §8 scenario S6 exactly:
// global (1s, 5), per-kind dht-store (1s, 2), six requests at
// t=0,0.1,...,0.5.
func TestS6RateLimiterScenario(t *testing.T) {
	limiter := NewLimiter(NewWindow(time.Second, 5), func() *Window {
		return NewWindow(time.Second, 2)
	})

	base := time.Unix(0, 0)
	offsets := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 400 * time.Millisecond, 500 * time.Millisecond}
	want := []bool{true, true, false, false, false, false}

	for i, off := range offsets {
		got := limiter.CheckIn("dht-store", base.Add(off))
		require.Equalf(t, want[i], got, "request %d at t=%v", i+1, off)
	}

	// At t = 1.1s the per-kind window has slid past the first admission
	// (t=0), so the category has room again.
	got := limiter.CheckIn("dht-store", base.Add(1100*time.Millisecond))
	require.True(t, got)
}

func TestWindowRejectsOverLimit(t *testing.T) {
	w := NewWindow(time.Second, 2)
	now := time.Now()
	require.True(t, w.allow(now))
	require.True(t, w.allow(now))
	require.False(t, w.allow(now))
}

func TestWindowSlidesOverTime(t *testing.T) {
	w := NewWindow(100*time.Millisecond, 1)
	now := time.Now()
	require.True(t, w.allow(now))
	require.False(t, w.allow(now.Add(50*time.Millisecond)))
	require.True(t, w.allow(now.Add(150*time.Millisecond)))
}
