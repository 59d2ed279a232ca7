// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// MACKey is the per-deployment keying material for the HalfSipHash variant.
// Grounded on original_source/neo100/src/seq.rs::SipHash, which keys a
// SipHasher per receiving replica via SipHasher::new_with_keys(u64::MAX,
// replica_index). We substitute cespare/xxhash/v2 (already a transitive
// dependency of the teacher's stack) for the unavailable SipHasher,
// preserving the "one fast keyed hash per receiver, truncated to 4 bytes"
// shape rather than a cryptographic MAC (see DESIGN.md C1 — this scheme is
// explicitly not meant to resist a adversary with hash-collision budget,
// only to gate a trusted-switch fast path).
type MACKey uint64

// DefaultMACKey mirrors the reference's u64::MAX first key.
const DefaultMACKey MACKey = ^MACKey(0)

// ComputeMAC derives the 4-byte MAC code for replicaIndex over data, the
// way the sequencer computes one code per receiver in
// SipHash::update before writing it into the packet's signature region.
func ComputeMAC(key MACKey, replicaIndex uint8, data []byte) [4]byte {
	seed := uint64(key) ^ (uint64(replicaIndex) * 0x9E3779B97F4A7C15)
	d := xxhash.NewWithSeed(seed)
	_, _ = d.Write(data)
	sum := d.Sum64()

	var out [4]byte
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], sum)
	copy(out[:], b[:4])
	return out
}

// VerifyMAC recomputes the MAC for replicaIndex and compares it against the
// code carried in h's window. Returns ErrBadSignature on mismatch and
// ErrMalformed if replicaIndex falls outside h's window.
func VerifyMAC(h *Header, key MACKey, replicaIndex uint8, data []byte) error {
	if !h.CoversReplica(replicaIndex) {
		return ErrMalformed
	}
	want := h.MACFor(replicaIndex)
	got := ComputeMAC(key, replicaIndex, data)
	if want != got {
		return ErrBadSignature
	}
	return nil
}
