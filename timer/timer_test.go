// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWheelSentinelIsInitialClosest(t *testing.T) {
	clock := time.Unix(0, 0)
	w := newWheel(func() time.Time { return clock })
	assert.Equal(t, clock.Add(sentinelDuration), w.NextDeadline())
	assert.Equal(t, 0, w.Len())
}

func TestWheelCreateTracksClosest(t *testing.T) {
	clock := time.Unix(0, 0)
	w := newWheel(func() time.Time { return clock })

	far := w.Create(50*time.Minute, func() {})
	near := w.Create(10*time.Millisecond, func() {})
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, clock.Add(10*time.Millisecond), w.NextDeadline())

	w.Cancel(near)
	assert.Equal(t, clock.Add(50*time.Minute), w.NextDeadline())
	w.Cancel(far)
	assert.Equal(t, clock.Add(sentinelDuration), w.NextDeadline())
}

func TestWheelFireInvokesExpiredOnly(t *testing.T) {
	clock := time.Unix(0, 0)
	w := newWheel(func() time.Time { return clock })

	var fired []string
	w.Create(5*time.Millisecond, func() { fired = append(fired, "a") })
	w.Create(50*time.Millisecond, func() { fired = append(fired, "b") })

	clock = clock.Add(10 * time.Millisecond)
	w.Fire()
	require.Equal(t, []string{"a"}, fired)
	assert.Equal(t, 1, w.Len())

	clock = clock.Add(100 * time.Millisecond)
	w.Fire()
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 0, w.Len())
}

func TestWheelReset(t *testing.T) {
	clock := time.Unix(0, 0)
	w := newWheel(func() time.Time { return clock })

	id := w.Create(10*time.Millisecond, func() {})
	clock = clock.Add(9 * time.Millisecond)
	w.Reset(id)
	assert.Equal(t, clock.Add(10*time.Millisecond), w.NextDeadline())
}

func TestWheelCancelUnknownIsNoop(t *testing.T) {
	w := New()
	w.Cancel(ID(9999))
	assert.Equal(t, 0, w.Len())
}
