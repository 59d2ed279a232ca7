// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replica

import (
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/neobft/affinity"
	"github.com/luxfi/neobft/wire"
)

// RunQueryPacer drives gap-recovery queries at a fixed cadence (spec §4.5).
// original_source/neo4/src/neo.rs runs this as a busy-spin thread comparing
// query_number against n_send_query on every iteration; a time.Ticker gets
// the same cadence without pegging a core, and affinity.Pin still claims the
// configured PacerCore so the goroutine doesn't migrate under load. Call in
// its own goroutine; it returns when stop is closed.
func (r *Replica) RunQueryPacer(stop <-chan struct{}, core int) {
	if err := affinity.Pin(core); err != nil {
		r.log.Warn("query pacer affinity pin failed", zap.Error(err))
	}

	interval := r.cfg.QueryInterval
	if interval <= 0 {
		interval = 40 * time.Microsecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSent uint32
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			qn := r.queryNumber.Load()
			if qn == 0 || qn == lastSent {
				continue
			}
			r.sendQuery(qn)
			lastSent = qn
		}
	}
}

// sendQuery broadcasts a gap-recovery Query for sequence number qn to every
// peer replica and records the send in the replica's pacer-shared counters.
// Grounded on neo.rs::Replica's pacer-thread send path.
func (r *Replica) sendQuery(qn uint32) {
	query := wire.Query{SequenceNumber: qn, ReplicaID: r.id}
	r.sender.BroadcastToReplicas(wire.EncodeQuery(query))
	r.nSendQuery.Add(1)
	r.metrics.queriesSent.Inc()
}
