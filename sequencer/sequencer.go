// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sequencer implements C2: the single point of total order. Every
// client Request arrives here over unicast; the sequencer stamps a
// sequence number, folds it and the request's digest into the running
// link-hash chain, and emits a multicast packet that is either link-only
// (cheap, unsigned — the common case) or network-signed (promotes the
// whole outstanding prefix to the replicas' voting/speculative-commit
// path). Grounded on original_source/neo100/src/seq.rs::Sequencer/SipHash/
// P256, adapted to use wire.OrderingState as the one canonical chaining
// formula (see DESIGN.md) instead of seq.rs's raw sha256(buf[..64]), since
// that formula is also what replica.verifyOrderedRequest expects for its
// fast-path link-hash comparison.
package sequencer

import (
	"crypto/sha256"

	"go.uber.org/zap"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/luxfi/neobft/config"
	"github.com/luxfi/neobft/wire"
)

// sequencerKeyID mirrors transport.sequencerKeyID: the reserved
// key-derivation slot for the sequencer's own identity, outside the 0..n
// replica index range.
const sequencerKeyID = 0xFF

// Sender is the one outbound capability the sequencer needs.
type Sender interface {
	SendMulticast(data []byte)
}

// Sequencer assigns total order to client requests. Not safe for
// concurrent use — like replica.Replica, it is meant to be driven by a
// single goroutine reading off one channel of inbound Requests (spec §5's
// "core 0 poll, cores 1..K signing/emit" discipline lives in the
// transport/worker layer, not here).
type Sequencer struct {
	cfg        config.NetworkConfig
	sender     Sender
	privateKey *secp256k1.PrivateKey
	log        *zap.Logger
	metrics    *Metrics

	seq      uint32
	linkHash [32]byte

	// linkOnlyPeriod batches cfg.BatchSize-1 link-only packets between
	// every network-signed packet, the periodic-signing analogue of
	// spec §4.2 step 4's packet-rate threshold. A period of 1 means every
	// packet is signed (voting disabled entirely never applies here; this
	// only controls promotion cadence).
	linkOnlyPeriod int
}

// New constructs a Sequencer. Its private key is always derived
// deterministically with wire.DeterministicKey(sequencerKeyID), so every
// replica can verify without a PKI.
func New(cfg config.NetworkConfig, sender Sender, logger *zap.Logger, metrics *Metrics) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	period := cfg.BatchSize
	if period <= 0 {
		period = 1
	}
	return &Sequencer{
		cfg:            cfg,
		sender:         sender,
		privateKey:     wire.DeterministicKey(sequencerKeyID),
		log:            logger,
		metrics:        metrics,
		linkOnlyPeriod: period,
	}
}

// HandleRequest stamps req with the next sequence number, advances the
// link-hash chain, and multicasts the resulting OrderedRequest — signed
// every linkOnlyPeriod-th call, link-only otherwise. Grounded on
// neo100/src/seq.rs::Sequencer::update plus its SipHash/P256 emit stages.
func (s *Sequencer) HandleRequest(req wire.Request) {
	s.seq++
	linked := s.linkHash
	digest := sha256.Sum256(wire.EncodeRequest(req))
	state := wire.OrderingState(linked, digest, s.seq)
	s.linkHash = state

	signed := s.seq%uint32(s.linkOnlyPeriod) == 0

	ordered := wire.OrderedRequest{
		ClientID:       req.ClientID,
		RequestNumber:  req.RequestNumber,
		Op:             req.Op,
		SequenceNumber: s.seq,
		OrderingState:  state,
		LinkHash:       linked,
	}

	header := &wire.Header{SeqNum: s.seq}
	switch s.cfg.Crypto {
	case config.SipHash:
		header.Variant = wire.VariantHalfSipHash
		if signed {
			// The MAC window itself lives in the Header (verified by
			// transport at the receiving replica); NetworkSignature here is
			// only the promote-to-voting marker replica.verifyOrderedRequest
			// checks for non-emptiness.
			ordered.NetworkSignature = []byte{0x01}
			s.metrics.ObserveSignatureBatch(float64(s.linkOnlyPeriod))
		}
		s.emitSipHash(header, ordered)
	case config.P256:
		header.Variant = wire.VariantK256
		header.Linked = linked
		if signed {
			sig := wire.SignOrderingState(s.privateKey, state)
			ordered.NetworkSignature = sig[:]
			header.Sig = sig
			s.metrics.ObserveSignatureBatch(float64(s.linkOnlyPeriod))
		}
		s.send(header, ordered)
	}
	s.metrics.sequenced.Inc()
}

// emitSipHash fans the packet out in ceil(n/4) copies, one per 4-replica
// MAC window, exactly mirroring neo100/src/seq.rs::SipHash::update.
func (s *Sequencer) emitSipHash(header *wire.Header, ordered wire.OrderedRequest) {
	body := wire.EncodeOrderedRequest(ordered)
	for base := 0; base < s.cfg.N; base += 4 {
		h := *header
		h.MACBaseIndex = uint8(base)
		for j := base; j < base+4 && j < s.cfg.N; j++ {
			h.MACs[j-base] = wire.ComputeMAC(wire.DefaultMACKey, uint8(j), ordered.OrderingState[:])
		}
		s.sender.SendMulticast(append(h.Encode(), body...))
	}
}

func (s *Sequencer) send(header *wire.Header, ordered wire.OrderedRequest) {
	s.sender.SendMulticast(append(header.Encode(), wire.EncodeOrderedRequest(ordered)...))
}

// SequenceNumber returns the most recently assigned sequence number.
func (s *Sequencer) SequenceNumber() uint32 { return s.seq }

// Reset zeros the sequence counter and link-hash chain, in response to the
// zero-length datagram a newly started replica fires at
// config.MulticastControlResetPort. Grounded on
// original_source/neo4/src/neo.rs::Replica::new, which fires this signal
// unconditionally on startup so a sequencer surviving a replica restart
// doesn't keep handing out sequence numbers the restarted replica has
// never seen.
func (s *Sequencer) Reset() {
	s.seq = 0
	s.linkHash = [32]byte{}
}
