// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replica

import "go.uber.org/zap"

// Stats is a point-in-time snapshot of the counters original_source's
// `impl Drop for Replica` prints on shutdown. Grounded on
// neo.rs::Drop::drop and SPEC_FULL.md supplemented feature #2.
type Stats struct {
	AverageSpeculativeWindow float64
	QueriesTriggered         uint32
	QueriesSent              uint32
	SignatureBatchSize       float64 // only meaningful when IsPrimary is true
	IsPrimary                bool
	LogLength                int
}

// Snapshot computes the current Stats.
func (r *Replica) Snapshot() Stats {
	avg := 0.0
	if r.nSpeculative > 0 {
		avg = float64(r.speculativeNumber) / float64(r.nSpeculative)
	}
	isPrimary := r.id == r.PrimaryReplica()
	var signatureBatch float64
	if isPrimary && len(r.entries) > 0 {
		signed := 0
		for _, e := range r.entries {
			if len(e.Request.NetworkSignature) > 0 {
				signed++
			}
		}
		if signed > 0 {
			signatureBatch = float64(len(r.entries)) / float64(signed)
		}
	}
	return Stats{
		AverageSpeculativeWindow: avg,
		QueriesTriggered:         r.nQuery,
		QueriesSent:              r.nSendQuery.Load(),
		SignatureBatchSize:       signatureBatch,
		IsPrimary:                isPrimary,
		LogLength:                len(r.entries),
	}
}

// LogShutdownStats emits the same counters the source prints via Drop, as
// structured log fields instead of stdout prints.
func (r *Replica) LogShutdownStats() {
	s := r.Snapshot()
	fields := []zap.Field{
		zap.Float64("average_speculative_window", s.AverageSpeculativeWindow),
		zap.Uint32("queries_triggered", s.QueriesTriggered),
		zap.Uint32("queries_sent", s.QueriesSent),
		zap.Int("log_length", s.LogLength),
	}
	if s.IsPrimary {
		fields = append(fields, zap.Float64("signature_batch_size", s.SignatureBatchSize))
	}
	r.log.Info("replica shutdown stats", fields...)
}
