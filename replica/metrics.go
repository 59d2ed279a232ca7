// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replica

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/neobft/metrics"
)

// Metrics holds the replica-specific gauges layered on top of the
// teacher's adapted Averager/Counter machinery
// (metrics/metric.go). Grounded on SPEC_FULL.md supplemented feature #2
// (original_source/neo4/src/neo.rs::Drop's shutdown stats).
type Metrics struct {
	speculativeWindow metrics.Averager
	signatureBatch    metrics.Averager
	queriesSent       metrics.Counter
	queriesReceived   metrics.Counter
}

// NewMetrics registers the replica's gauges against reg. reg may be nil,
// in which case a private, unregistered prometheus.Registry is used —
// convenient for tests that don't care about export.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	speculative, err := metrics.NewAverager(
		"neo_replica_avg_speculative_window",
		"entries committed per speculative_commit call",
		reg,
	)
	if err != nil {
		speculative = noopAverager{}
	}
	signature, err := metrics.NewAverager(
		"neo_replica_signature_batch_size",
		"log entries per network-signed packet",
		reg,
	)
	if err != nil {
		signature = noopAverager{}
	}
	return &Metrics{
		speculativeWindow: speculative,
		signatureBatch:    signature,
		queriesSent:       metrics.NewCounter(),
		queriesReceived:   metrics.NewCounter(),
	}
}

// ObserveSpeculativeWindow records the size of a speculative_commit range.
func (m *Metrics) ObserveSpeculativeWindow(size float64) {
	m.speculativeWindow.Observe(size)
}

// ObserveSignatureBatch records how many log entries one network signature
// covered (spec §4.2's batching).
func (m *Metrics) ObserveSignatureBatch(size float64) {
	m.signatureBatch.Observe(size)
}

type noopAverager struct{}

func (noopAverager) Observe(float64) {}
func (noopAverager) Read() float64   { return 0 }
