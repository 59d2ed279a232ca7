// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

// Pool is a bounded worker pool for CPU-bound packet verification, the Go
// analogue of original_source/neo4/src/crypto.rs's Executor::Rayon variant
// (a thread pool that signs/verifies off the receive path) sized instead by
// a simple semaphore over goroutines, since Go's scheduler — unlike
// Rayon's — already multiplexes goroutines onto OS threads for us.
type Pool struct {
	sem chan struct{}
}

// NewPool returns a Pool that runs at most n submitted functions
// concurrently. n <= 0 means unbounded (Executor::Inline equivalent —
// every submission gets its own goroutine immediately).
func NewPool(n int) *Pool {
	if n <= 0 {
		return &Pool{}
	}
	return &Pool{sem: make(chan struct{}, n)}
}

// Submit runs fn on its own goroutine, blocking only long enough to acquire
// a slot if the pool is bounded.
func (p *Pool) Submit(fn func()) {
	if p.sem == nil {
		go fn()
		return
	}
	p.sem <- struct{}{}
	go func() {
		defer func() { <-p.sem }()
		fn()
	}()
}
