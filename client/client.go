// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package client implements the Neo client state machine (spec §4.6): one
// outstanding request at a time, a tick-driven resend timer, and a
// 2f+1-matching-reply quorum. Grounded on
// original_source/neo4/src/neo.rs::Client.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/neobft/config"
	"github.com/luxfi/neobft/wire"
)

// ErrClientGiveUp is returned once the client has resent a request too many
// times without assembling a quorum. The reference implementation instead
// asserts ticked != 100 and panics; see DESIGN.md Open Question resolution
// #2 for why this build escalates with an error instead.
var ErrClientGiveUp = errors.New("client: gave up waiting for a quorum of matching replies")

// maxResends bounds how many times Invoke will resend an unanswered
// request before giving up, mirroring the reference's ticked != 100
// assertion threshold (ResendTicks ticks per resend attempt).
const maxResends = 100

// Sender is the one outbound capability a client needs: unicasting its
// Request to the sequencer's ingress address.
type Sender interface {
	SendToSequencer(data []byte)
}

// Client drives a single logical caller's request/reply cycle. Safe for
// concurrent use: Invoke serializes itself with a mutex (the spec's "at
// most one outstanding request" invariant), and HandleReply may be called
// concurrently from a transport receive goroutine.
type Client struct {
	id     wire.ClientID
	cfg    config.NetworkConfig
	sender Sender
	log    *zap.Logger

	invokeMu sync.Mutex

	stateMu       sync.Mutex
	requestNumber uint32
	incoming      chan wire.Reply
}

// New constructs a Client identified by id, issuing requests through
// sender per cfg's tick/resend cadence.
func New(id wire.ClientID, cfg config.NetworkConfig, sender Sender, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{id: id, cfg: cfg, sender: sender, log: logger}
}

// Invoke sends op to the sequencer and blocks until either a 2f+1 quorum of
// replicas returns a matching result, ctx is cancelled, or the client gives
// up after maxResends resend attempts. Only one Invoke may run at a time.
func (c *Client) Invoke(ctx context.Context, op []byte) ([]byte, error) {
	c.invokeMu.Lock()
	defer c.invokeMu.Unlock()

	c.stateMu.Lock()
	c.requestNumber++
	requestNumber := c.requestNumber
	incoming := make(chan wire.Reply, c.cfg.N+1)
	c.incoming = incoming
	c.stateMu.Unlock()
	defer func() {
		c.stateMu.Lock()
		c.incoming = nil
		c.stateMu.Unlock()
	}()

	req := wire.Request{ClientID: c.id, RequestNumber: requestNumber, Op: op}
	data := wire.EncodeRequest(req)
	c.sender.SendToSequencer(data)

	interval := c.cfg.TickInterval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	resendTicks := c.cfg.ResendTicks
	if resendTicks <= 0 {
		resendTicks = 99
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	replies := make(map[uint8]wire.Reply)
	ticked := 0
	resends := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case reply := <-incoming:
			if reply.RequestNumber != requestNumber {
				continue // stale reply from a superseded invocation
			}
			if result, ok := accept(replies, reply, 2*c.cfg.F+1); ok {
				return result, nil
			}
		case <-ticker.C:
			ticked++
			if ticked < resendTicks {
				continue
			}
			ticked = 0
			resends++
			if resends >= maxResends {
				return nil, ErrClientGiveUp
			}
			c.log.Warn("resending request", zap.Uint32("request_number", requestNumber), zap.Int("attempt", resends))
			c.sender.SendToSequencer(data)
		}
	}
}

// accept records reply and reports whether the replies collected so far
// contain a result value shared by at least needed distinct replicas.
func accept(replies map[uint8]wire.Reply, reply wire.Reply, needed int) ([]byte, bool) {
	replies[reply.ReplicaID] = reply
	counts := make(map[string]int, len(replies))
	for _, r := range replies {
		key := string(r.Result)
		counts[key]++
		if counts[key] >= needed {
			return r.Result, true
		}
	}
	return nil, false
}

// HandleReply delivers a Reply decoded off the wire to whatever Invoke call
// is currently outstanding. Replies for a different or absent invocation
// are dropped silently, matching the reference's "drop if no outstanding
// request or request_num mismatch" rule.
func (c *Client) HandleReply(reply wire.Reply) {
	c.stateMu.Lock()
	ch := c.incoming
	expected := c.requestNumber
	c.stateMu.Unlock()

	if ch == nil || reply.RequestNumber != expected {
		return
	}
	select {
	case ch <- reply:
	default:
		// Buffer sized to cfg.N+1; a full buffer means we've already seen
		// every replica's reply for this request, so dropping is safe.
	}
}

// ID returns the client's identity.
func (c *Client) ID() wire.ClientID { return c.id }
