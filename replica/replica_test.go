// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replica

import (
	"net"
	"testing"

	"github.com/luxfi/neobft/app"
	"github.com/luxfi/neobft/config"
	"github.com/luxfi/neobft/wire"
)

type fakeSender struct {
	toReplica  map[uint8][][]byte
	toClient   map[string][][]byte
	broadcasts [][]byte
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		toReplica: make(map[uint8][][]byte),
		toClient:  make(map[string][][]byte),
	}
}

func (f *fakeSender) SendToReplica(replicaID uint8, data []byte) {
	f.toReplica[replicaID] = append(f.toReplica[replicaID], data)
}

func (f *fakeSender) SendToClient(id wire.ClientID, data []byte) {
	f.toClient[id.Key()] = append(f.toClient[id.Key()], data)
}

func (f *fakeSender) BroadcastToReplicas(data []byte) {
	f.broadcasts = append(f.broadcasts, data)
}

func testConfig(enableVote bool) config.NetworkConfig {
	cfg := config.DefaultNetworkConfig()
	cfg.N = 4
	cfg.F = 1
	cfg.EnableVote = enableVote
	cfg.BatchSize = 1
	cfg.GapThreshold = 50
	for i := 0; i < cfg.N; i++ {
		addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:500")
		cfg.Replicas = append(cfg.Replicas, addr)
	}
	return cfg
}

func testClientID() wire.ClientID {
	addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:9000")
	return wire.ClientID{Addr: addr, Salt: 1}
}

func TestFastPathAppendsLinkOnlyEntry(t *testing.T) {
	sender := newFakeSender()
	r := New(0, testConfig(false), app.Echo{}, sender, nil, nil)

	req := wire.OrderedRequest{
		ClientID:       testClientID(),
		RequestNumber:  1,
		Op:             []byte("hello"),
		SequenceNumber: 1,
		LinkHash:       [32]byte{}, // matches the zero-value lastOrderingState
	}
	r.HandleOrderedRequest(req)

	if r.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Len())
	}
	if r.entries[0].Status != FastVerifying {
		t.Fatalf("expected FastVerifying, got %v", r.entries[0].Status)
	}
	if len(sender.toClient) != 0 {
		t.Fatalf("fast-path-only entry should not yet reply to the client")
	}
}

func TestNetworkSignedPromotesAndSpeculativeCommitsWithoutVoting(t *testing.T) {
	sender := newFakeSender()
	r := New(0, testConfig(false), app.Echo{}, sender, nil, nil)

	req := wire.OrderedRequest{
		ClientID:         testClientID(),
		RequestNumber:    1,
		Op:               []byte("hello"),
		SequenceNumber:   1,
		NetworkSignature: []byte{0x01}, // non-empty marks this network-signed
	}
	r.HandleOrderedRequest(req)

	if r.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Len())
	}
	if r.entries[0].Status != SpeculativeCommitted {
		t.Fatalf("expected SpeculativeCommitted, got %v", r.entries[0].Status)
	}
	replies := sender.toClient[testClientID().Key()]
	if len(replies) != 1 {
		t.Fatalf("expected exactly 1 reply to the client, got %d", len(replies))
	}
}

func TestQuarantineOnLinkHashMismatch(t *testing.T) {
	sender := newFakeSender()
	r := New(0, testConfig(false), app.Echo{}, sender, nil, nil)

	req := wire.OrderedRequest{
		ClientID:       testClientID(),
		RequestNumber:  1,
		Op:             []byte("hello"),
		SequenceNumber: 1,
		LinkHash:       [32]byte{0xFF}, // does not match the zero-value expected hash
	}
	r.HandleOrderedRequest(req)

	if r.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Len())
	}
	if r.entries[0].Status != Quarantined {
		t.Fatalf("expected Quarantined, got %v", r.entries[0].Status)
	}
	if !r.NeedsReconciliation() {
		t.Fatalf("expected NeedsReconciliation to be true after a link mismatch")
	}
}

func TestHandleMulticastVoteReachesQuorumAndCommits(t *testing.T) {
	sender := newFakeSender()
	r := New(0, testConfig(true), app.Echo{}, sender, nil, nil)

	req := wire.OrderedRequest{
		ClientID:         testClientID(),
		RequestNumber:    1,
		Op:               []byte("hello"),
		SequenceNumber:   1,
		NetworkSignature: []byte{0x01},
	}
	r.HandleOrderedRequest(req)
	if r.entries[0].Status != Voting {
		t.Fatalf("expected Voting before quorum, got %v", r.entries[0].Status)
	}

	state := r.entries[0].Request.OrderingState
	// F=1 requires 2F=2 distinct replica votes before a quorum value is
	// derived; replica 0's own verify_number already counts as its implicit
	// vote within quorumSequenceNumber.
	r.HandleMulticastVote(wire.MulticastVote{SequenceNumber: 1, OrderingState: state, ReplicaID: 1})
	if r.entries[0].Status == SpeculativeCommitted {
		t.Fatalf("should not commit on a single vote")
	}
	r.HandleMulticastVote(wire.MulticastVote{SequenceNumber: 1, OrderingState: state, ReplicaID: 2})

	if r.entries[0].Status != SpeculativeCommitted {
		t.Fatalf("expected SpeculativeCommitted after quorum, got %v", r.entries[0].Status)
	}
	replies := sender.toClient[testClientID().Key()]
	if len(replies) != 1 {
		t.Fatalf("expected exactly 1 reply to the client, got %d", len(replies))
	}
}

// S4 — Byzantine vote: a vote whose ordering_state doesn't match the
// replica's own entry is dropped outright; quorum is still reached once
// enough legitimate votes arrive. Grounded on neo.rs's
// handle_multicast_vote mismatched-state check.
func TestHandleMulticastVoteDropsMismatchedVote(t *testing.T) {
	sender := newFakeSender()
	r := New(0, testConfig(true), app.Echo{}, sender, nil, nil)

	req := wire.OrderedRequest{
		ClientID:         testClientID(),
		RequestNumber:    1,
		Op:               []byte("hello"),
		SequenceNumber:   1,
		NetworkSignature: []byte{0x01},
	}
	r.HandleOrderedRequest(req)

	state := r.entries[0].Request.OrderingState
	badState := state
	badState[0] ^= 0xFF

	r.HandleMulticastVote(wire.MulticastVote{SequenceNumber: 1, OrderingState: badState, ReplicaID: 1})
	r.HandleMulticastVote(wire.MulticastVote{SequenceNumber: 1, OrderingState: state, ReplicaID: 2})
	if r.entries[0].Status == SpeculativeCommitted {
		t.Fatalf("should not commit: only one legitimate vote recorded (the bad one was dropped)")
	}
	r.HandleMulticastVote(wire.MulticastVote{SequenceNumber: 1, OrderingState: state, ReplicaID: 3})

	if r.entries[0].Status != SpeculativeCommitted {
		t.Fatalf("expected SpeculativeCommitted once 2 legitimate votes arrived, got %v", r.entries[0].Status)
	}
	if _, rejected := r.votes[1]; rejected {
		t.Fatalf("the mismatched vote from replica 1 should never have been recorded")
	}
}

func TestHandleQueryRespondsWithCachedEntry(t *testing.T) {
	sender := newFakeSender()
	r := New(0, testConfig(false), app.Echo{}, sender, nil, nil)

	req := wire.OrderedRequest{
		ClientID:         testClientID(),
		RequestNumber:    1,
		Op:               []byte("hello"),
		SequenceNumber:   1,
		NetworkSignature: []byte{0x01},
	}
	r.HandleOrderedRequest(req)

	r.HandleQuery(wire.Query{SequenceNumber: 1, ReplicaID: 3})

	replies := sender.toReplica[3]
	if len(replies) != 1 {
		t.Fatalf("expected exactly 1 reply to replica 3, got %d", len(replies))
	}
	tag, decoded, err := wire.DecodeMessage(replies[0])
	if err != nil {
		t.Fatalf("decode query reply: %v", err)
	}
	if tag != wire.TagQueryReply {
		t.Fatalf("expected TagQueryReply, got %v", tag)
	}
	qr := decoded.(wire.QueryReply)
	if qr.OrderedRequest.SequenceNumber != 1 {
		t.Fatalf("expected sequence number 1, got %d", qr.OrderedRequest.SequenceNumber)
	}
}

func TestHandleQueryIgnoresUnknownSequenceNumber(t *testing.T) {
	sender := newFakeSender()
	r := New(0, testConfig(false), app.Echo{}, sender, nil, nil)

	r.HandleQuery(wire.Query{SequenceNumber: 99, ReplicaID: 3})

	if len(sender.toReplica[3]) != 0 {
		t.Fatalf("expected no reply for an unknown sequence number")
	}
}

// S5 — gap query: a QueryReply re-enters the ordinary ordered-request
// path, filling the gap the reorder buffer was blocked on. Grounded on
// neo.rs::handle_query_reply.
func TestHandleQueryReplyFillsReorderGap(t *testing.T) {
	sender := newFakeSender()
	r := New(1, testConfig(false), app.Echo{}, sender, nil, nil)

	second := wire.OrderedRequest{
		ClientID:         testClientID(),
		RequestNumber:    2,
		Op:               []byte("second"),
		SequenceNumber:   2,
		NetworkSignature: []byte{0x01},
	}
	r.HandleOrderedRequest(second)
	if r.Len() != 0 {
		t.Fatalf("expected the log to stay empty while sequence 1 is missing, got length %d", r.Len())
	}

	first := wire.OrderedRequest{
		ClientID:         testClientID(),
		RequestNumber:    1,
		Op:               []byte("first"),
		SequenceNumber:   1,
		NetworkSignature: []byte{0x01},
	}
	r.HandleQueryReply(wire.QueryReply{OrderedRequest: first})

	if r.Len() != 2 {
		t.Fatalf("expected the buffer to drain to length 2, got %d", r.Len())
	}
}

func TestSnapshotReflectsSpeculativeWindow(t *testing.T) {
	sender := newFakeSender()
	r := New(0, testConfig(false), app.Echo{}, sender, nil, nil)

	req := wire.OrderedRequest{
		ClientID:         testClientID(),
		RequestNumber:    1,
		Op:               []byte("hello"),
		SequenceNumber:   1,
		NetworkSignature: []byte{0x01},
	}
	r.HandleOrderedRequest(req)

	stats := r.Snapshot()
	if stats.LogLength != 1 {
		t.Fatalf("expected log length 1, got %d", stats.LogLength)
	}
	if stats.AverageSpeculativeWindow != 1 {
		t.Fatalf("expected average speculative window 1, got %v", stats.AverageSpeculativeWindow)
	}
}
