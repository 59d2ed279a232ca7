// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport implements the UDP send/receive pipelines (spec §4.7,
// C3/C7): unicast to replicas/clients/the sequencer, a separate multicast
// listener for the fast-path ordered requests, and a worker pool that
// verifies ECDSA-signed multicast headers (P256 variant) off the receive
// path; SipHash MAC sets are checked inline on the receive goroutine.
// Grounded on
// original_source/dsys/src/udp.rs's Rx/Tx split and
// original_source/neo4/src/transport.rs's Transport::run event loop, with
// Tokio's select! loop over one socket replaced by one goroutine per
// socket feeding a shared channel (see Run).
package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/luxfi/neobft/config"
	"github.com/luxfi/neobft/wire"
)

// sequencerKeyID is the reserved replica-index slot DeterministicKey uses to
// derive the sequencer's ECDSA identity in the P256 variant — the
// sequencer is not itself one of the n replicas, so it needs an index
// outside cfg.Replicas' range.
const sequencerKeyID = 0xFF

// Envelope is one verified, decoded inbound message handed to the caller's
// single-threaded event loop (spec §5's replica loop, or a client's Invoke
// goroutine).
type Envelope struct {
	Tag     wire.Tag
	Message any
	Remote  *net.UDPAddr
}

// Transport owns the sockets for one participant (replica, client, or
// sequencer) and implements both replica.Sender and client.Sender.
type Transport struct {
	cfg       config.NetworkConfig
	selfID    *uint8 // nil for a client or the sequencer
	unicast   *net.UDPConn
	multicast *net.UDPConn
	pool      *Pool
	log       *zap.Logger

	macKey          wire.MACKey
	sequencerPubKey *secp256k1.PublicKey
}

// Option configures optional Transport behavior.
type Option func(*Transport)

// WithWorkerPool bounds multicast verification concurrency to n goroutines.
func WithWorkerPool(n int) Option {
	return func(t *Transport) { t.pool = NewPool(n) }
}

// WithMACKey overrides the default SipHash MAC key (tests only; production
// deployments share a key out of band).
func WithMACKey(key wire.MACKey) Option {
	return func(t *Transport) { t.macKey = key }
}

// New binds unicastAddr for both sending and receiving, optionally joins
// the configured multicast group when listen is true (replicas only — a
// client or the sequencer never listens on it), and returns a Transport
// identified as replica selfID when selfID != nil.
func New(cfg config.NetworkConfig, unicastAddr *net.UDPAddr, selfID *uint8, listenMulticast bool, logger *zap.Logger, opts ...Option) (*Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := net.ListenUDP("udp", unicastAddr)
	if err != nil {
		return nil, err
	}
	t := &Transport{
		cfg:             cfg,
		selfID:          selfID,
		unicast:         conn,
		pool:            NewPool(0),
		log:             logger,
		macKey:          wire.DefaultMACKey,
		sequencerPubKey: wire.DeterministicKey(sequencerKeyID).PubKey(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if listenMulticast {
		if cfg.Multicast == nil {
			conn.Close()
			return nil, errors.New("transport: multicast listen requested but cfg.Multicast is nil")
		}
		mconn, err := net.ListenMulticastUDP("udp", nil, cfg.Multicast)
		if err != nil {
			conn.Close()
			return nil, err
		}
		t.multicast = mconn
	}
	return t, nil
}

// Close releases both sockets.
func (t *Transport) Close() error {
	var err error
	if t.multicast != nil {
		err = t.multicast.Close()
	}
	if cerr := t.unicast.Close(); err == nil {
		err = cerr
	}
	return err
}

// --- outbound: replica.Sender ------------------------------------------

// SendToReplica unicasts data to the replica at replicaID.
func (t *Transport) SendToReplica(replicaID uint8, data []byte) {
	if int(replicaID) >= len(t.cfg.Replicas) {
		t.log.Warn("send to unknown replica", zap.Uint8("replica_id", replicaID))
		return
	}
	t.writeTo(t.cfg.Replicas[replicaID], data)
}

// SendToClient unicasts data to id's socket address.
func (t *Transport) SendToClient(id wire.ClientID, data []byte) {
	if id.Addr == nil {
		return
	}
	t.writeTo(id.Addr, data)
}

// BroadcastToReplicas unicasts data to every configured replica other than
// self, mirroring original_source/neo4/src/transport.rs's
// Destination::ToAll (which skips the local address rather than relying on
// a loopback check).
func (t *Transport) BroadcastToReplicas(data []byte) {
	for i, addr := range t.cfg.Replicas {
		if t.selfID != nil && uint8(i) == *t.selfID {
			continue
		}
		t.writeTo(addr, data)
	}
}

// --- outbound: client.Sender / sequencer ingress ------------------------

// SendToSequencer unicasts data to the configured sequencer address.
func (t *Transport) SendToSequencer(data []byte) {
	if t.cfg.Sequencer == nil {
		t.log.Warn("send to sequencer requested but cfg.Sequencer is nil")
		return
	}
	t.writeTo(t.cfg.Sequencer, data)
}

// SendMulticast emits data (already including a 100-byte wire.Header
// prefix) to the configured multicast group. Used by the sequencer, which
// is the only participant that ever constructs a Header.
func (t *Transport) SendMulticast(data []byte) {
	if t.cfg.Multicast == nil {
		t.log.Warn("multicast send requested but cfg.Multicast is nil")
		return
	}
	t.writeTo(t.cfg.Multicast, data)
}

// SendReset fires the zero-length startup datagram at
// config.MulticastControlResetPort on the configured multicast group's IP,
// telling a stateful sequencer to zero its sequence counter. Mirrors
// original_source/neo4/src/neo.rs::Replica::new's one-shot timer; callers
// invoke this once, on replica startup.
func (t *Transport) SendReset() {
	if t.cfg.Multicast == nil {
		t.log.Warn("reset send requested but cfg.Multicast is nil")
		return
	}
	addr := &net.UDPAddr{IP: t.cfg.Multicast.IP, Port: config.MulticastControlResetPort}
	t.writeTo(addr, nil)
}

func (t *Transport) writeTo(addr *net.UDPAddr, data []byte) {
	if _, err := t.unicast.WriteToUDP(data, addr); err != nil {
		t.log.Warn("udp write failed", zap.Stringer("addr", addr), zap.Error(err))
	}
}

// --- inbound -------------------------------------------------------------

// Run starts the receive goroutines and returns the channel verified,
// decoded messages arrive on. Exits both goroutines when ctx is cancelled.
func (t *Transport) Run(ctx context.Context) <-chan Envelope {
	out := make(chan Envelope, 1024)
	go t.receiveLoop(ctx, t.unicast, out, false)
	if t.multicast != nil {
		go t.receiveLoop(ctx, t.multicast, out, true)
	}
	return out
}

func (t *Transport) receiveLoop(ctx context.Context, conn *net.UDPConn, out chan<- Envelope, multicast bool) {
	buf := make([]byte, 64<<10)
	for {
		if ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			t.log.Warn("udp read failed", zap.Error(err))
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		deliver := func() {
			env, ok := t.decode(data, multicast, remote)
			if !ok {
				return
			}
			select {
			case out <- env:
			case <-ctx.Done():
			}
		}
		// Spec §4.3 only asks for the ECDSA link-hash signature check to
		// run off the hot path; that's the P256 variant's multicast
		// verification. The SipHash MAC-window check and every unicast
		// message are cheap enough to decode inline on this goroutine
		// without paying for a pool handoff.
		if multicast && t.cfg.Crypto == config.P256 {
			t.pool.Submit(deliver)
		} else {
			deliver()
		}
	}
}

func (t *Transport) decode(data []byte, multicast bool, remote *net.UDPAddr) (Envelope, bool) {
	if multicast {
		return t.decodeMulticast(data, remote)
	}
	tag, msg, err := wire.DecodeMessage(data)
	if err != nil {
		t.log.Warn("malformed unicast packet", zap.Stringer("remote", remote), zap.Error(err))
		return Envelope{}, false
	}
	return Envelope{Tag: tag, Message: msg, Remote: remote}, true
}

// decodeMulticast verifies the fixed Header prefix (spec §4.2's C1) before
// decoding the OrderedRequest body; packets with an invalid MAC or ECDSA
// signature never reach the replica loop.
func (t *Transport) decodeMulticast(data []byte, remote *net.UDPAddr) (Envelope, bool) {
	if len(data) < wire.BodyOffset {
		t.log.Warn("multicast packet shorter than header", zap.Int("len", len(data)))
		return Envelope{}, false
	}
	variant := wire.VariantHalfSipHash
	if t.cfg.Crypto == config.P256 {
		variant = wire.VariantK256
	}
	header, err := wire.DecodeHeader(data[:wire.BodyOffset], variant)
	if err != nil {
		t.log.Warn("bad multicast header", zap.Error(err))
		return Envelope{}, false
	}
	tag, msg, err := wire.DecodeMessage(data[wire.BodyOffset:])
	if err != nil || tag != wire.TagOrderedRequest {
		t.log.Warn("bad multicast body", zap.Error(err))
		return Envelope{}, false
	}
	req := msg.(wire.OrderedRequest)

	if err := t.verifyHeader(header, req); err != nil {
		t.log.Warn("multicast packet rejected", zap.Error(err), zap.Uint32("sequence_number", req.SequenceNumber))
		return Envelope{}, false
	}
	return Envelope{Tag: tag, Message: req, Remote: remote}, true
}

// verifyHeader authenticates a non-link-only packet against this
// transport's crypto variant. Link-only packets (no network signature yet)
// authenticate later, inside replica.verifyOrderedRequest's link-hash
// chain check.
func (t *Transport) verifyHeader(header *wire.Header, req wire.OrderedRequest) error {
	if len(req.NetworkSignature) == 0 {
		return nil
	}
	switch t.cfg.Crypto {
	case config.SipHash:
		if t.selfID == nil || !header.CoversReplica(*t.selfID) {
			return nil // outside our MAC window; link-hash chaining still applies
		}
		return wire.VerifyMAC(header, t.macKey, *t.selfID, req.OrderingState[:])
	case config.P256:
		if header.IsLinkOnly() {
			return nil
		}
		return wire.VerifyOrderingState(t.sequencerPubKey, req.OrderingState, header.Sig)
	default:
		return nil
	}
}
