// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replica

import (
	"github.com/luxfi/neobft/wire"
)

// clientRecord tracks the highest request number seen from a client and,
// once available, the cached reply for it — enough to answer a retransmit
// at-most-once without re-executing the operation.
type clientRecord struct {
	requestNumber uint32
	reply         *wire.Reply
}

// ClientTable implements at-most-once semantics across client requests.
// Grounded on original_source/neo4/src/common.rs::ClientTable.
type ClientTable struct {
	records map[string]clientRecord
}

// NewClientTable returns an empty table.
func NewClientTable() *ClientTable {
	return &ClientTable{records: make(map[string]clientRecord)}
}

// Prepare registers that requestNumber from id is about to be processed.
// It returns (cachedReply, false) when the caller should skip execution
// entirely — cachedReply is non-nil only when a previous identical request
// already completed and should be resent — or (nil, true) when the caller
// should proceed to execute the operation. Mirrors
// ClientTable::insert_prepare's three-way saved/request comparison.
func (t *ClientTable) Prepare(id wire.ClientID, requestNumber uint32) (*wire.Reply, bool) {
	key := id.Key()
	rec, ok := t.records[key]
	if !ok {
		t.records[key] = clientRecord{requestNumber: requestNumber}
		return nil, true
	}
	switch {
	case rec.requestNumber > requestNumber:
		// Stale retransmit of an already-superseded request: drop silently.
		return nil, false
	case rec.requestNumber == requestNumber:
		return rec.reply, false
	default: // rec.requestNumber < requestNumber
		t.records[key] = clientRecord{requestNumber: requestNumber}
		return nil, true
	}
}

// Commit caches the reply for (id, requestNumber), once execution completes.
func (t *ClientTable) Commit(id wire.ClientID, requestNumber uint32, reply wire.Reply) {
	key := id.Key()
	if rec, ok := t.records[key]; ok && rec.requestNumber > requestNumber {
		return // superseded while we were executing; drop the stale result
	}
	t.records[key] = clientRecord{requestNumber: requestNumber, reply: &reply}
}
