// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package app defines the upcall boundary between the replica's log and
// the state machine it drives, plus a trivial echo implementation used by
// tests and local demos. Grounded on original_source/neo4/src/common.rs's
// App trait and TestApp.
package app

import "fmt"

// App executes committed operations in sequence-number order. Replica
// calls Execute exactly once per committed log entry, in increasing
// OpNumber order (spec §4.7's speculative_commit loop).
type App interface {
	Execute(opNumber uint32, op []byte) []byte
}

// Echo is the reference test application: it returns "[<op number>] <op>",
// matching original_source/neo4/src/neo.rs's single_op test expectation
// ("[1] hello").
type Echo struct{}

// Execute implements App.
func (Echo) Execute(opNumber uint32, op []byte) []byte {
	return []byte(fmt.Sprintf("[%d] %s", opNumber, op))
}
