// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package affinity pins the calling goroutine's OS thread to one or more
// CPU cores, the Go analogue of original_source's pervasive
// nix::sched::sched_setaffinity calls (e.g. neo4/src/neo.rs's pacer
// thread, dsys/src/udp.rs's poll thread). Go does not let a goroutine pin
// itself directly — the caller must runtime.LockOSThread() first so the
// scheduler never migrates it back onto an unpinned thread.
//
// This file builds on linux, where golang.org/x/sys/unix exposes
// SchedSetaffinity; see affinity_other.go for the no-op fallback used on
// every other GOOS.
//go:build linux

package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to its current OS thread and restricts
// that thread to the given core. The caller must not have returned from
// the goroutine that calls Pin before the pinned work finishes — typically
// Pin is the first statement inside a dedicated goroutine's function body.
//
// On platforms without SchedSetaffinity (anything but linux/{386,amd64,
// arm,arm64,...}), Pin is a no-op: the spec's affinity plan is a
// performance optimization, not a correctness requirement, so builds for
// other GOOS values simply run unpinned.
func Pin(core int) error {
	runtime.LockOSThread()
	if core < 0 {
		return fmt.Errorf("affinity: invalid core %d", core)
	}

	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity core %d: %w", core, err)
	}
	return nil
}

// PinSet restricts the calling (already-locked) OS thread to any of the
// given cores, used for the worker pool that shares a range of cores
// (spec §5's "remaining cores for crypto/transmit workers").
func PinSet(cores []int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	for _, c := range cores {
		set.Set(c)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity cores %v: %w", cores, err)
	}
	return nil
}

// Available reports the number of usable cores, mirroring the source's
// reliance on std::thread::available_parallelism for deriving defaults.
func Available() int {
	return runtime.NumCPU()
}
