// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replica

import "github.com/luxfi/neobft/wire"

// Status is a log entry's position in the fast-path/voting/commit pipeline.
// Grounded on original_source/neo4/src/neo.rs::LogStatus, plus Quarantined
// (see DESIGN.md Open Question resolution #1).
type Status uint8

const (
	// FastVerifying entries arrived link-only and matched the expected
	// link hash; they are tentatively ordered but not yet network-signed.
	FastVerifying Status = iota
	// Voting entries have been promoted by a network-signed packet and are
	// eligible to be voted on (or, with voting disabled, speculatively
	// committed immediately).
	Voting
	// SpeculativeCommitted entries have executed against the application
	// and replied to the client, but could still in principle be reverted
	// by a view change (stubbed — see spec.md Non-goals).
	SpeculativeCommitted
	// Committed is reserved for a future checkpoint/stable-commit notion;
	// this build never transitions an entry past SpeculativeCommitted.
	Committed
	// Quarantined marks a prefix of FastVerifying entries invalidated by a
	// link-hash mismatch. The replica halts speculative progress past a
	// quarantined entry until out-of-band reconciliation — see DESIGN.md
	// Open Question resolution #1.
	Quarantined
)

// Entry is one slot in the replica's ordered log. Log index i (0-based)
// always corresponds to sequence number i+1.
type Entry struct {
	Status  Status
	Request wire.OrderedRequest
}
