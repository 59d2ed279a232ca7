// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build !linux

package affinity

import "runtime"

// Pin is a no-op outside linux: the affinity plan is a performance
// optimization, not a correctness requirement, so non-linux builds simply
// run unpinned.
func Pin(core int) error {
	return nil
}

// PinSet is a no-op outside linux, see Pin.
func PinSet(cores []int) error {
	return nil
}

// Available reports the number of usable cores.
func Available() int {
	return runtime.NumCPU()
}
