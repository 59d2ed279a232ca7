// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package system wires a sequencer, a set of replicas, and one or more
// clients together in a single process, without real sockets, for
// end-to-end protocol tests. Grounded on
// original_source/neo4/src/neo.rs::tests::System plus
// transport::simulated::{Network,BasicSwitch}: the real transport's
// send/receive split is replaced by direct, synchronous dispatch into the
// addressed peer's Handle* method, after the same header authentication
// transport.verifyHeader would have performed. Loss is simulated
// explicitly (DropMulticast/DropNextClientRequest) rather than by a
// random-drop switch, so every scenario here is deterministic.
package system

import (
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/luxfi/neobft/app"
	"github.com/luxfi/neobft/client"
	"github.com/luxfi/neobft/config"
	"github.com/luxfi/neobft/replica"
	"github.com/luxfi/neobft/sequencer"
	"github.com/luxfi/neobft/wire"
)

// sequencerKeyID mirrors transport.sequencerKeyID and sequencer.sequencerKeyID:
// the reserved key-derivation slot for the sequencer's own P256 identity.
const sequencerKeyID = 0xFF

// Network is the in-process stand-in for every participant's
// *transport.Transport.
type Network struct {
	cfg config.NetworkConfig

	mu       sync.Mutex
	replicas []*replica.Replica
	seq      *sequencer.Sequencer
	clients  map[wire.ClientID]*client.Client

	sequencerPub *secp256k1.PublicKey

	dropMulticastTo map[int]int
	dropNextRequest bool
}

// NewNetwork builds an empty Network for cfg. Call AddReplica/SetSequencer/
// AddClient to populate it before any traffic flows.
func NewNetwork(cfg config.NetworkConfig) *Network {
	return &Network{
		cfg:             cfg,
		clients:         make(map[wire.ClientID]*client.Client),
		dropMulticastTo: make(map[int]int),
		sequencerPub:    wire.DeterministicKey(sequencerKeyID).PubKey(),
	}
}

// replicaSender is the per-replica adapter implementing replica.Sender; it
// closes over the replica's own index so BroadcastToReplicas can skip it,
// exactly as transport.Transport.selfID does.
type replicaSender struct {
	net *Network
	id  uint8
}

// NewReplica constructs a replica.Replica wired to this network under id
// and registers it. Must be called in id order, 0..cfg.N-1.
func (n *Network) NewReplica(id uint8, application app.App) *replica.Replica {
	r := replica.New(id, n.cfg, application, replicaSender{net: n, id: id}, nil, replica.NewMetrics(nil))
	n.replicas = append(n.replicas, r)
	return r
}

// NewSequencer constructs the single sequencer.Sequencer wired to this
// network.
func (n *Network) NewSequencer() *sequencer.Sequencer {
	s := sequencer.New(n.cfg, n, nil, sequencer.NewMetrics(nil))
	n.seq = s
	return s
}

// NewClient constructs a client.Client wired to this network and registers
// it under its ClientID so replies can be routed back.
func (n *Network) NewClient(id wire.ClientID) *client.Client {
	c := client.New(id, n.cfg, n, nil)
	n.mu.Lock()
	n.clients[id] = c
	n.mu.Unlock()
	return c
}

// DropMulticast causes the next count multicast deliveries to replica idx
// to be silently discarded, simulating packet loss for gap-recovery tests.
func (n *Network) DropMulticast(idx, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropMulticastTo[idx] = count
}

// DropNextClientRequest discards the next unicast Request a client sends to
// the sequencer, simulating a lost first broadcast for client-retry tests.
func (n *Network) DropNextClientRequest() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropNextRequest = true
}

// --- sequencer.Sender ----------------------------------------------------

// SendMulticast fans data out to every registered replica, honoring any
// pending DropMulticast counters.
func (n *Network) SendMulticast(data []byte) {
	for i, r := range n.replicas {
		n.mu.Lock()
		remaining := n.dropMulticastTo[i]
		if remaining > 0 {
			n.dropMulticastTo[i] = remaining - 1
			n.mu.Unlock()
			continue
		}
		n.mu.Unlock()
		n.deliverMulticast(r, uint8(i), data)
	}
}

func (n *Network) deliverMulticast(r *replica.Replica, replicaID uint8, data []byte) {
	variant := wire.VariantHalfSipHash
	if n.cfg.Crypto == config.P256 {
		variant = wire.VariantK256
	}
	if len(data) < wire.BodyOffset {
		return
	}
	header, err := wire.DecodeHeader(data[:wire.BodyOffset], variant)
	if err != nil {
		return
	}
	tag, msg, err := wire.DecodeMessage(data[wire.BodyOffset:])
	if err != nil || tag != wire.TagOrderedRequest {
		return
	}
	req := msg.(wire.OrderedRequest)
	if err := n.verifyHeader(header, req, replicaID); err != nil {
		return
	}
	r.HandleOrderedRequest(req)
}

// verifyHeader reproduces transport.Transport.verifyHeader's authentication
// split: link-only packets authenticate later via the replica's own
// link-hash chain check, signed packets are checked here.
func (n *Network) verifyHeader(header *wire.Header, req wire.OrderedRequest, replicaID uint8) error {
	if len(req.NetworkSignature) == 0 {
		return nil
	}
	switch n.cfg.Crypto {
	case config.SipHash:
		if !header.CoversReplica(replicaID) {
			return nil
		}
		return wire.VerifyMAC(header, wire.DefaultMACKey, replicaID, req.OrderingState[:])
	case config.P256:
		if header.IsLinkOnly() {
			return nil
		}
		return wire.VerifyOrderingState(n.sequencerPub, req.OrderingState, header.Sig)
	default:
		return nil
	}
}

// --- replica.Sender (per-replica, via replicaSender) ---------------------

func (s replicaSender) SendToReplica(replicaID uint8, data []byte) {
	n := s.net
	if int(replicaID) >= len(n.replicas) {
		return
	}
	tag, msg, err := wire.DecodeMessage(data)
	if err != nil {
		return
	}
	switch tag {
	case wire.TagQuery:
		n.replicas[replicaID].HandleQuery(msg.(wire.Query))
	case wire.TagQueryReply:
		n.replicas[replicaID].HandleQueryReply(msg.(wire.QueryReply))
	}
}

func (s replicaSender) SendToClient(id wire.ClientID, data []byte) {
	n := s.net
	n.mu.Lock()
	c, ok := n.clients[id]
	n.mu.Unlock()
	if !ok {
		return
	}
	_, msg, err := wire.DecodeMessage(data)
	if err != nil {
		return
	}
	if reply, ok := msg.(wire.Reply); ok {
		c.HandleReply(reply)
	}
}

func (s replicaSender) BroadcastToReplicas(data []byte) {
	n := s.net
	tag, msg, err := wire.DecodeMessage(data)
	if err != nil || tag != wire.TagMulticastVote {
		return
	}
	vote := msg.(wire.MulticastVote)
	for i, r := range n.replicas {
		if uint8(i) == s.id {
			continue
		}
		r.HandleMulticastVote(vote)
	}
}

// --- client.Sender ---------------------------------------------------------

// SendToSequencer decodes data back into a wire.Request and hands it to
// the registered sequencer, honoring DropNextClientRequest.
func (n *Network) SendToSequencer(data []byte) {
	n.mu.Lock()
	drop := n.dropNextRequest
	if drop {
		n.dropNextRequest = false
	}
	n.mu.Unlock()
	if drop {
		return
	}
	if n.seq == nil {
		return
	}
	tag, msg, err := wire.DecodeMessage(data)
	if err != nil || tag != wire.TagRequest {
		return
	}
	n.seq.HandleRequest(msg.(wire.Request))
}
