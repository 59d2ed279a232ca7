// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package timer implements a single-threaded timer table for an event loop
// with one owning goroutine: create/reset/cancel by id, with the
// caller driving a nearest-deadline wait each iteration. Grounded on
// original_source/neo4/src/transport.rs's Timer/timer_table/timer_closest
// machinery (create_timer, reset_timer, cancel_timer, update_closest), with
// the sentinel +1h timer from Transport::new carried over so a caller
// always has a deadline to select on.
package timer

import "time"

// ID identifies an outstanding timer.
type ID uint32

// sentinelID never collides with a real timer because Wheel's ids start
// at 1 and count up.
const sentinelID ID = 0

// sentinelDuration matches the source's "you forgot to shut down the
// benchmark for an hour" guard.
const sentinelDuration = time.Hour

type entry struct {
	deadline time.Time
	duration time.Duration
	fire     func()
}

// Wheel is a single-owner timer table. It is not safe for concurrent use;
// it is meant to be driven exclusively from one event loop goroutine,
// matching the replica/client's single-threaded design (spec §5).
type Wheel struct {
	now     func() time.Time
	entries map[ID]*entry
	nextID  ID
	closest ID
}

// New returns a Wheel seeded with the sentinel timer.
func New() *Wheel {
	return newWheel(time.Now)
}

// newWheel lets tests substitute a deterministic clock.
func newWheel(now func() time.Time) *Wheel {
	w := &Wheel{
		now:     now,
		entries: make(map[ID]*entry),
	}
	w.entries[sentinelID] = &entry{
		deadline: now().Add(sentinelDuration),
		duration: sentinelDuration,
		fire:     func() { panic("timer: sentinel fired — event loop idle for an hour") },
	}
	w.closest = sentinelID
	return w
}

// Create arms a new timer and returns its id.
func (w *Wheel) Create(d time.Duration, fire func()) ID {
	w.nextID++
	id := w.nextID
	e := &entry{deadline: w.now().Add(d), duration: d, fire: fire}
	w.entries[id] = e
	if e.deadline.Before(w.entries[w.closest].deadline) {
		w.closest = id
	}
	return id
}

// Reset rearms an existing timer for its original duration, starting now.
func (w *Wheel) Reset(id ID) {
	e, ok := w.entries[id]
	if !ok {
		return
	}
	e.deadline = w.now().Add(e.duration)
	if id == w.closest {
		w.updateClosest()
	} else if e.deadline.Before(w.entries[w.closest].deadline) {
		w.closest = id
	}
}

// Cancel removes a timer. Canceling an unknown or already-fired id is a
// no-op.
func (w *Wheel) Cancel(id ID) {
	if id == sentinelID {
		return
	}
	delete(w.entries, id)
	if id == w.closest {
		w.updateClosest()
	}
}

func (w *Wheel) updateClosest() {
	closest := sentinelID
	closestDeadline := w.entries[sentinelID].deadline
	for id, e := range w.entries {
		if e.deadline.Before(closestDeadline) {
			closest = id
			closestDeadline = e.deadline
		}
	}
	w.closest = closest
}

// NextDeadline returns the nearest pending deadline, for the caller's event
// loop to select/wait on alongside its network channel.
func (w *Wheel) NextDeadline() time.Time {
	return w.entries[w.closest].deadline
}

// Fire invokes and removes every timer whose deadline has passed (as of
// Wheel's clock), then recomputes the closest deadline. Call this once
// per event loop iteration after NextDeadline has elapsed.
func (w *Wheel) Fire() {
	now := w.now()
	var expired []ID
	for id, e := range w.entries {
		if id == sentinelID {
			continue
		}
		if !e.deadline.After(now) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		e := w.entries[id]
		delete(w.entries, id)
		e.fire()
	}
	if len(expired) > 0 {
		w.updateClosest()
	}
}

// Len reports the number of live timers, excluding the sentinel.
func (w *Wheel) Len() int {
	return len(w.entries) - 1
}
