// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reorder implements the sequence-number reorder buffer used by
// the Neo replica to hold ordered requests that arrive out of sequence
// until their predecessors show up. Grounded line-for-line on
// original_source/neo4/src/common.rs::Reorder.
package reorder

// Buffer holds messages keyed by sequence number until Expected catches
// up to them. Not safe for concurrent use — intended to be owned
// exclusively by one replica event loop.
type Buffer[M any] struct {
	expected uint32
	messages map[uint32]M
}

// New returns a Buffer that expects sequence number `expected` next.
func New[M any](expected uint32) *Buffer[M] {
	return &Buffer[M]{
		expected: expected,
		messages: make(map[uint32]M),
	}
}

// Insert records message at sequence number order. If order is exactly the
// next expected sequence number, the message is returned immediately
// (ok=true) instead of being buffered, matching insert_reorder's fast
// path. order must be >= the buffer's expected sequence number; callers
// are responsible for discarding stale (order < expected) messages
// themselves, just as neo.rs::handle_ordered_request does before calling
// insert_reorder.
func (b *Buffer[M]) Insert(order uint32, message M) (M, bool) {
	if order != b.expected {
		b.messages[order] = message
		var zero M
		return zero, false
	}
	return message, true
}

// ExpectNext advances the expected sequence number by one and returns the
// message waiting at the new expected number, if any.
func (b *Buffer[M]) ExpectNext() (M, bool) {
	b.expected++
	m, ok := b.messages[b.expected]
	if ok {
		delete(b.messages, b.expected)
	}
	return m, ok
}

// Expected returns the next sequence number the buffer is waiting for.
func (b *Buffer[M]) Expected() uint32 {
	return b.expected
}

// Len reports how many out-of-order messages are currently buffered —
// the gap-recovery trigger in spec §4.4 fires once this exceeds the
// configured threshold.
func (b *Buffer[M]) Len() int {
	return len(b.messages)
}
