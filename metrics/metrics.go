// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics provides the Prometheus collectors shared by the
// catchain receiver and the consensus driver.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set is the registered collectors for one running session. BlamesTotal,
// ForksTotal, BlocksDeliveredTotal and BlocksIllTotal are the counters
// named in SPEC_FULL.md §10 item 2; the other fields cover delivery
// latency, consensus and sync.
type Set struct {
	BlamesTotal           *prometheus.CounterVec
	ForksTotal             prometheus.Counter
	BlocksDeliveredTotal   prometheus.Counter
	BlocksIllTotal         prometheus.Counter
	DeliveryLatencySeconds prometheus.Histogram
	CandidatesGenerated    *prometheus.CounterVec
	FinalizationsTotal     prometheus.Counter
	SyncRequestsTotal      *prometheus.CounterVec
}

// NewSet registers a new Set with reg and returns it. Registration errors
// are aggregated and returned so the caller can decide whether a
// duplicate-registration is fatal.
func NewSet(reg prometheus.Registerer) (*Set, error) {
	s := &Set{
		BlamesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catchain_blames_total",
			Help: "Number of sources blamed, by source index.",
		}, []string{"source"}),
		ForksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catchain_forks_total",
			Help: "Number of fork proofs synthesized.",
		}),
		BlocksDeliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catchain_blocks_delivered_total",
			Help: "Number of blocks delivered to the consensus layer.",
		}),
		BlocksIllTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catchain_blocks_ill_total",
			Help: "Number of blocks marked ill.",
		}),
		DeliveryLatencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catchain_delivery_latency_seconds",
			Help:    "Time from block admission to delivery.",
			Buckets: prometheus.DefBuckets,
		}),
		CandidatesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consensus_candidates_generated_total",
			Help: "Candidates generated, by variant (full/empty).",
		}, []string{"variant"}),
		FinalizationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "consensus_finalizations_total",
			Help: "Number of candidates finalized.",
		}),
		SyncRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catchain_sync_requests_total",
			Help: "Sync requests issued, by kind.",
		}, []string{"kind"}),
	}

	collectors := []prometheus.Collector{
		s.BlamesTotal, s.ForksTotal, s.BlocksDeliveredTotal, s.BlocksIllTotal,
		s.DeliveryLatencySeconds, s.CandidatesGenerated, s.FinalizationsTotal,
		s.SyncRequestsTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewNopSet returns a Set registered against a private registry, for tests
// and for callers that don't want to wire a real Prometheus endpoint.
func NewNopSet() *Set {
	s, err := NewSet(prometheus.NewRegistry())
	if err != nil {
		panic(err)
	}
	return s
}
