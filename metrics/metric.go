// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics holds the two Prometheus-backed primitives replica and
// sequencer need for their per-protocol-event counters: a running average
// (speculative-commit window size, signature-batch size) and a plain
// monotonic counter (queries sent/received, requests sequenced). Neither
// component needs labels, gauges, or a name-keyed registry on top of
// Prometheus's own — so this package stays to exactly those two shapes
// rather than carrying a general metrics toolkit.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Averager tracks the running mean of a per-event size — how many log
// entries one speculative_commit call covered, how many requests one
// network signature batched.
type Averager interface {
	Observe(value float64)
	Read() float64
}

type averager struct {
	mu    sync.RWMutex
	sum   float64
	count float64

	promSum   prometheus.Gauge
	promCount prometheus.Counter
}

// NewAverager registers a <name>_sum Gauge and a <name>_count Counter
// against reg and returns an Averager backed by both. help describes the
// observed quantity, e.g. "entries committed per speculative_commit call".
func NewAverager(name, help string, reg prometheus.Registerer) (Averager, error) {
	sum := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name + "_sum",
		Help: "Sum of " + help,
	})
	count := prometheus.NewCounter(prometheus.CounterOpts{
		Name: name + "_count",
		Help: "Total # of observations of " + help,
	})
	if err := reg.Register(sum); err != nil {
		return nil, err
	}
	if err := reg.Register(count); err != nil {
		return nil, err
	}
	return &averager{promSum: sum, promCount: count}, nil
}

func (a *averager) Observe(value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sum += value
	a.count++
	a.promSum.Add(value)
	a.promCount.Inc()
}

func (a *averager) Read() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.count == 0 {
		return 0
	}
	return a.sum / a.count
}

// Counter is a plain monotonic event count (queries sent, requests
// sequenced) that doesn't need a running average.
type Counter interface {
	Inc()
	Add(delta int64)
	Read() int64
}

type counter struct {
	mu    sync.RWMutex
	value int64
}

// NewCounter returns a process-local Counter. Unlike Averager it isn't
// exported to Prometheus — callers that need export wrap a
// prometheus.Counter directly instead.
func NewCounter() Counter {
	return &counter{}
}

func (c *counter) Inc() {
	c.Add(1)
}

func (c *counter) Add(delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value += delta
}

func (c *counter) Read() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}
