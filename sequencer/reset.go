// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sequencer

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/neobft/config"
)

// ResetListener listens on the multicast group's IP at
// config.MulticastControlResetPort for the zero-length datagram a starting
// replica fires (original_source/neo4/src/neo.rs::Replica::new) and zeros
// the wired Sequencer's counter in response. Supplements §6's already-named
// control port with the client side spec.md's distillation never wired up.
type ResetListener struct {
	conn *net.UDPConn
	seq  *Sequencer
	log  *zap.Logger
}

// NewResetListener joins the multicast group at multicastAddr.IP on
// config.MulticastControlResetPort and returns a ResetListener that
// resets seq on every datagram received. Run must be called to start
// listening.
func NewResetListener(multicastAddr *net.UDPAddr, seq *Sequencer, logger *zap.Logger) (*ResetListener, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := &net.UDPAddr{IP: multicastAddr.IP, Port: config.MulticastControlResetPort}
	conn, err := net.ListenMulticastUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	return &ResetListener{conn: conn, seq: seq, log: logger}, nil
}

// Run blocks, resetting seq on every received datagram, until ctx is
// cancelled.
func (r *ResetListener) Run(ctx context.Context) {
	buf := make([]byte, 1)
	for {
		if ctx.Err() != nil {
			return
		}
		r.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			r.log.Warn("reset listener read failed", zap.Error(err))
			continue
		}
		r.seq.Reset()
		r.log.Info("sequencer counter reset")
	}
}

// Close releases the listener's socket.
func (r *ResetListener) Close() error {
	return r.conn.Close()
}
