// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sequencer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/neobft/metrics"
)

// Metrics holds the sequencer's gauges, layered on the same adapted
// Averager/Counter machinery as replica.Metrics (metrics/metric.go).
type Metrics struct {
	sequenced      metrics.Counter
	signatureBatch metrics.Averager
}

// NewMetrics registers the sequencer's gauges against reg, falling back to
// a private unregistered registry when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	batch, err := metrics.NewAverager(
		"neo_sequencer_signature_batch_size",
		"requests per network-signed packet emitted",
		reg,
	)
	if err != nil {
		batch = noopAverager{}
	}
	return &Metrics{
		sequenced:      metrics.NewCounter(),
		signatureBatch: batch,
	}
}

// ObserveSignatureBatch records how many requests one signed packet covers.
func (m *Metrics) ObserveSignatureBatch(size float64) {
	m.signatureBatch.Observe(size)
}

type noopAverager struct{}

func (noopAverager) Observe(float64) {}
func (noopAverager) Read() float64   { return 0 }
