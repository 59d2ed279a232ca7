// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package replica implements the Neo replica state machine: fast-path
// ordering via link-hash chaining, optional slow-path voting with an
// (f+1)-th-smallest quorum rule, speculative execution, and peer gap
// recovery. Grounded line-by-line on
// original_source/neo4/src/neo.rs::Replica. The state machine is meant to
// be driven by a single goroutine (spec §5); nothing here is safe for
// concurrent access except the query-number counter shared with the pacer
// goroutine (querypacer.go), which uses atomics exactly as the source
// shares query_number/n_send_query with its pacer thread.
package replica

import (
	"fmt"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/luxfi/neobft/app"
	"github.com/luxfi/neobft/config"
	"github.com/luxfi/neobft/reorder"
	"github.com/luxfi/neobft/wire"
)

// Sender is the subset of the transport this package needs: unicast to a
// specific replica or client, and broadcast to every other replica.
// Grounded on original_source/neo4/src/transport.rs's
// Transport::send_message Destination variants (To, ToReplica, ToAll);
// ToMulticast and ToSelf are transport-internal and never issued by
// Replica directly.
type Sender interface {
	SendToReplica(replicaID uint8, data []byte)
	SendToClient(id wire.ClientID, data []byte)
	BroadcastToReplicas(data []byte)
}

// Replica is one participant in the ordered-multicast BFT core.
type Replica struct {
	id         uint8
	viewNumber uint8
	cfg        config.NetworkConfig
	app        app.App
	clients    *ClientTable
	privateKey *secp256k1.PrivateKey
	sender     Sender
	log        *zap.Logger
	metrics    *Metrics

	entries           []Entry
	verifyNumber      uint32
	voteNumber        uint32
	speculativeNumber uint32
	nSpeculative      uint32

	queryNumber  atomic.Uint32
	nQuery       uint32
	nSendQuery   atomic.Uint32
	needsReconciliation bool

	reorderBuf *reorder.Buffer[wire.OrderedRequest]

	votes        map[uint8]wire.MulticastVote
	pendingVotes map[uint32][]wire.MulticastVote
}

// New constructs a Replica. id is this replica's index into cfg.Replicas.
func New(id uint8, cfg config.NetworkConfig, application app.App, sender Sender, logger *zap.Logger, metrics *Metrics) *Replica {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	r := &Replica{
		id:           id,
		cfg:          cfg,
		app:          application,
		clients:      NewClientTable(),
		privateKey:   wire.DeterministicKey(id),
		sender:       sender,
		log:          logger,
		metrics:      metrics,
		entries:      make([]Entry, 0, 1<<16),
		reorderBuf:   reorder.New[wire.OrderedRequest](1),
		votes:        make(map[uint8]wire.MulticastVote),
		pendingVotes: make(map[uint32][]wire.MulticastVote),
	}
	return r
}

// pendingNumber is the next sequence number not yet appended to the log.
func (r *Replica) pendingNumber() uint32 {
	return uint32(len(r.entries)) + 1
}

// HandleOrderedRequest is the entry point for a (possibly out-of-order)
// OrderedRequest delivered by the transport, whether it arrived
// link-only/fast-path or already network-signed. Grounded on
// neo.rs::handle_ordered_request.
func (r *Replica) HandleOrderedRequest(req wire.OrderedRequest) {
	if req.SequenceNumber < r.pendingNumber() {
		return // already resolved, e.g. by a prior query
	}

	ordered, ok := r.reorderBuf.Insert(req.SequenceNumber, req)
	for ok {
		r.verifyOrderedRequest(ordered)
		ordered, ok = r.reorderBuf.ExpectNext()
	}

	if r.reorderBuf.Len() > r.cfg.GapThreshold {
		pn := r.pendingNumber()
		prev := r.queryNumber.Swap(pn)
		if prev != pn {
			r.nQuery++
		}
	} else {
		r.queryNumber.Store(0)
	}
}

func (r *Replica) lastOrderingState() [32]byte {
	if len(r.entries) == 0 {
		return [32]byte{}
	}
	return r.entries[len(r.entries)-1].Request.OrderingState
}

// verifyOrderedRequest appends req to the log as FastVerifying (link-only
// fast path) or Voting (network-signed, promoting any pending
// FastVerifying prefix), driving the vote-sending and speculative-commit
// decisions that follow. Grounded on neo.rs::verify_ordered_request.
func (r *Replica) verifyOrderedRequest(req wire.OrderedRequest) {
	linkHash := r.lastOrderingState()

	if len(req.NetworkSignature) == 0 {
		if req.LinkHash == linkHash {
			r.entries = append(r.entries, Entry{Status: FastVerifying, Request: req})
			return
		}
		r.quarantine(req, linkHash)
		return
	}

	if r.verifyNumber < req.SequenceNumber-1 {
		for i := r.verifyNumber; i < uint32(len(r.entries)); i++ {
			if r.entries[i].Status == FastVerifying {
				r.entries[i].Status = Voting
			}
		}
	}
	r.verifyNumber = req.SequenceNumber
	r.entries = append(r.entries, Entry{Status: Voting, Request: req})

	if !r.cfg.EnableVote {
		if err := r.speculativeCommit(r.verifyNumber); err != nil {
			r.log.Warn("speculative commit failed", zap.Error(err))
		}
		return
	}

	if r.cfg.Crypto == config.SipHash {
		last := &r.entries[len(r.entries)-1]
		last.Request.LinkHash = linkHash
		digest := last.Request.RequestDigest()
		last.Request.OrderingState = wire.OrderingState(linkHash, digest, last.Request.SequenceNumber)
	}

	if r.speculativeNumber == r.voteNumber || r.verifyNumber >= r.voteNumber+uint32(r.cfg.BatchSize) {
		r.sendVote(r.verifyNumber)
	}

	if pending, ok := r.pendingVotes[r.verifyNumber]; ok {
		delete(r.pendingVotes, r.verifyNumber)
		for _, vote := range pending {
			r.HandleMulticastVote(vote)
		}
	}
}

// quarantine implements the Open Question #1 resolution: on a link-hash
// mismatch, mark the trailing run of FastVerifying entries (and the
// offending request itself) Quarantined and flag that this replica needs
// out-of-band reconciliation before it can make further progress.
func (r *Replica) quarantine(req wire.OrderedRequest, computedLinkHash [32]byte) {
	for i := len(r.entries) - 1; i >= 0 && r.entries[i].Status == FastVerifying; i-- {
		r.entries[i].Status = Quarantined
	}
	r.entries = append(r.entries, Entry{Status: Quarantined, Request: req})
	r.needsReconciliation = true
	r.log.Warn("link hash mismatch, quarantining log suffix",
		zap.Uint32("sequence_number", req.SequenceNumber),
		zap.Binary("claimed_link_hash", req.LinkHash[:]),
		zap.Binary("computed_link_hash", computedLinkHash[:]),
	)
}

// NeedsReconciliation reports whether the log has an unresolved
// quarantined region.
func (r *Replica) NeedsReconciliation() bool {
	return r.needsReconciliation
}

// HandleMulticastVote processes a vote from a peer replica, deriving an
// (f+1)-th-smallest quorum value and speculatively committing up to it
// once found. Grounded on neo.rs::handle_multicast_vote. The caller is
// responsible for having already authenticated message (transport's
// InboundAction::VerifyReplica policy) before calling this.
func (r *Replica) HandleMulticastVote(message wire.MulticastVote) {
	if !r.cfg.EnableVote {
		r.log.Error("received vote while voting disabled")
		return
	}
	if message.SequenceNumber <= r.speculativeNumber {
		return
	}

	idx := int(message.SequenceNumber) - 1
	if idx >= len(r.entries) {
		r.pendingVotes[message.SequenceNumber] = append(r.pendingVotes[message.SequenceNumber], message)
		return
	}
	entry := r.entries[idx]
	if entry.Request.OrderingState != message.OrderingState {
		r.log.Warn("mismatched ordering state in vote", zap.Uint8("replica_id", message.ReplicaID))
		return
	}

	r.votes[message.ReplicaID] = message
	if len(r.votes) < 2*r.cfg.F {
		return
	}

	votedNumber := r.quorumSequenceNumber()
	if votedNumber < r.speculativeNumber {
		r.log.Error("quorum sequence number below speculative number", zap.Uint32("voted", votedNumber))
		return
	}
	if votedNumber == r.speculativeNumber {
		return
	}

	if r.voteNumber < r.verifyNumber {
		r.sendVote(r.verifyNumber)
	}
	if err := r.speculativeCommit(votedNumber); err != nil {
		r.log.Warn("speculative commit failed", zap.Error(err))
	}
}

// quorumSequenceNumber selects the (f+1)-th smallest sequence number
// across every collected vote plus this replica's own verify_number,
// zero-padded to 3f+1 entries. Go analogue of
// neo.rs::handle_multicast_vote's select_nth_unstable(f) call — full sort
// instead of a partial quickselect, since 3f+1 is tiny in any real
// deployment.
func (r *Replica) quorumSequenceNumber() uint32 {
	numbers := make([]uint32, 0, len(r.votes)+1)
	for _, vote := range r.votes {
		numbers = append(numbers, vote.SequenceNumber)
	}
	numbers = append(numbers, r.verifyNumber)

	for len(numbers) < 3*r.cfg.F+1 {
		numbers = append(numbers, 0)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers[r.cfg.F]
}

// speculativeCommit executes every entry from the current speculative
// number up through target, replying to clients (or resending a cached
// reply for an at-most-once duplicate), and advances speculativeNumber.
// Grounded on neo.rs::speculative_commit.
func (r *Replica) speculativeCommit(target uint32) error {
	r.nSpeculative++
	if target == 0 || int(target-1) >= len(r.entries) || r.entries[target-1].Status != Voting {
		return fmt.Errorf("replica: missing ordered requests up to sequence %d", target)
	}

	for i := r.speculativeNumber; i <= target-1; i++ {
		entry := &r.entries[i]
		if entry.Status != Voting {
			return fmt.Errorf("replica: entry %d not in Voting status", i+1)
		}
		entry.Status = SpeculativeCommitted
		r.commit(entry)
	}
	window := target - r.speculativeNumber
	r.speculativeNumber = target
	r.metrics.ObserveSpeculativeWindow(float64(window))
	return nil
}

func (r *Replica) commit(entry *Entry) {
	req := entry.Request
	if cached, execute := r.clients.Prepare(req.ClientID, req.RequestNumber); !execute {
		if cached != nil {
			r.sender.SendToClient(req.ClientID, wire.EncodeReply(*cached))
		}
		return
	}

	result := r.app.Execute(req.SequenceNumber, req.Op)
	reply := wire.Reply{
		RequestNumber:  req.RequestNumber,
		SequenceNumber: req.SequenceNumber,
		ReplicaID:      r.id,
		Result:         result,
	}
	r.clients.Commit(req.ClientID, req.RequestNumber, reply)
	r.sender.SendToClient(req.ClientID, wire.EncodeReply(reply))
}

// sendVote broadcasts a MulticastVote for voteNumber, signed with this
// replica's key over the vote's ordering state. Grounded on
// neo.rs::send_vote.
func (r *Replica) sendVote(voteNumber uint32) {
	state := r.entries[r.verifyNumber-1].Request.OrderingState
	vote := wire.MulticastVote{
		ViewNumber:     r.viewNumber,
		SequenceNumber: voteNumber,
		OrderingState:  state,
		ReplicaID:      r.id,
	}
	vote.Signature = wire.SignOrderingState(r.privateKey, state)
	r.sender.BroadcastToReplicas(wire.EncodeMulticastVote(vote))
	r.voteNumber = voteNumber
}

// HandleQuery answers a peer's gap-recovery request if this replica still
// has the requested sequence number logged. Grounded on
// neo.rs::handle_query.
func (r *Replica) HandleQuery(message wire.Query) {
	r.metrics.queriesReceived.Inc()
	idx := int(message.SequenceNumber) - 1
	if idx < 0 || idx >= len(r.entries) {
		return
	}
	reply := wire.QueryReply{OrderedRequest: r.entries[idx].Request}
	r.sender.SendToReplica(message.ReplicaID, wire.EncodeQueryReply(reply))
}

// HandleQueryReply feeds a peer's answer to a gap query back through the
// ordinary ordered-request path: the reorder buffer slots it into place
// exactly like a multicast delivery, resolving the gap that drove
// NeedsReconciliation/queryNumber in the first place. Grounded on
// neo.rs::handle_query_reply, which likewise just re-dispatches to
// handle_ordered_request.
func (r *Replica) HandleQueryReply(message wire.QueryReply) {
	r.HandleOrderedRequest(message.OrderedRequest)
}

// ID returns this replica's index.
func (r *Replica) ID() uint8 { return r.id }

// Len returns the number of log entries appended so far.
func (r *Replica) Len() int { return len(r.entries) }

// PrimaryReplica returns the primary for the replica's own view.
func (r *Replica) PrimaryReplica() uint8 {
	return r.cfg.Primary(r.viewNumber)
}
