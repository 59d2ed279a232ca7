// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/luxfi/neobft/config"
	"github.com/luxfi/neobft/wire"
)

type fakeSender struct {
	sent [][]byte
}

func (f *fakeSender) SendToSequencer(data []byte) {
	f.sent = append(f.sent, data)
}

func testClient(cfg config.NetworkConfig) (*Client, *fakeSender) {
	addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:9100")
	id := wire.ClientID{Addr: addr, Salt: 1}
	sender := &fakeSender{}
	return New(id, cfg, sender, nil), sender
}

func testConfig() config.NetworkConfig {
	cfg := config.DefaultNetworkConfig()
	cfg.N = 4
	cfg.F = 1
	cfg.TickInterval = time.Millisecond
	cfg.ResendTicks = 3
	return cfg
}

func TestInvokeResolvesOnQuorum(t *testing.T) {
	cfg := testConfig()
	// Keep the resend timer out of the 5ms window checked below.
	cfg.ResendTicks = 1000
	c, sender := testClient(cfg)

	done := make(chan struct{})
	var result []byte
	var err error
	go func() {
		result, err = c.Invoke(context.Background(), []byte("hello"))
		close(done)
	}()

	// Give Invoke a moment to register its current request number.
	time.Sleep(5 * time.Millisecond)
	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly 1 sent request, got %d", len(sender.sent))
	}

	for replicaID := uint8(0); replicaID < 3; replicaID++ {
		c.HandleReply(wire.Reply{RequestNumber: 1, SequenceNumber: 1, ReplicaID: replicaID, Result: []byte("echo")})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Invoke did not return in time")
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != "echo" {
		t.Fatalf("expected result %q, got %q", "echo", result)
	}
}

func TestInvokeIgnoresMismatchedResults(t *testing.T) {
	c, _ := testClient(testConfig())

	done := make(chan struct{})
	var result []byte
	var err error
	go func() {
		result, err = c.Invoke(context.Background(), []byte("hello"))
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)

	// One replica disagrees; the other three form the 2f+1 quorum on "good".
	c.HandleReply(wire.Reply{RequestNumber: 1, ReplicaID: 0, Result: []byte("bad")})
	c.HandleReply(wire.Reply{RequestNumber: 1, ReplicaID: 1, Result: []byte("good")})
	c.HandleReply(wire.Reply{RequestNumber: 1, ReplicaID: 2, Result: []byte("good")})
	c.HandleReply(wire.Reply{RequestNumber: 1, ReplicaID: 3, Result: []byte("good")})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Invoke did not return in time")
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != "good" {
		t.Fatalf("expected result %q, got %q", "good", result)
	}
}

func TestInvokeResendsOnTimeout(t *testing.T) {
	c, sender := testClient(testConfig())

	done := make(chan struct{})
	go func() {
		c.Invoke(context.Background(), []byte("hello"))
		close(done)
	}()
	defer func() {
		c.HandleReply(wire.Reply{RequestNumber: 1, ReplicaID: 0, Result: []byte("x")})
		c.HandleReply(wire.Reply{RequestNumber: 1, ReplicaID: 1, Result: []byte("x")})
		c.HandleReply(wire.Reply{RequestNumber: 1, ReplicaID: 2, Result: []byte("x")})
		<-done
	}()

	// resendTicks=3 ticks of 1ms; wait long enough for at least one resend.
	time.Sleep(20 * time.Millisecond)

	if len(sender.sent) < 2 {
		t.Fatalf("expected at least one resend, got %d total sends", len(sender.sent))
	}
}

func TestHandleReplyDropsStaleRequestNumber(t *testing.T) {
	c, _ := testClient(testConfig())

	// No Invoke in flight: requestNumber is 0, so any reply is stale.
	c.HandleReply(wire.Reply{RequestNumber: 1, ReplicaID: 0, Result: []byte("x")})
	// Must not panic or block; nothing to assert beyond that.
}

func TestInvokeRespectsContextCancellation(t *testing.T) {
	c, _ := testClient(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var err error
	go func() {
		_, err = c.Invoke(ctx, []byte("hello"))
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Invoke did not return after cancellation")
	}
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
