// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package affinity

import "testing"

func TestAvailableIsPositive(t *testing.T) {
	if Available() <= 0 {
		t.Fatalf("expected at least one core, got %d", Available())
	}
}

func TestPinDoesNotPanicOnCurrentCore(t *testing.T) {
	// Pinning to core 0 must always be a legal request, regardless of
	// whether the sandbox running this test permits the syscall itself;
	// we only assert the call returns without panicking, matching how
	// the replica's query pacer treats a Pin failure as a logged warning,
	// not a fatal error.
	_ = Pin(0)
}
