// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// OrderingState computes the 32-byte digest that gets signed (or
// link-hash-chained) for a multicast packet: the 52-byte buffer of
// `linked || (messageDigest XOR-folded into bytes 16..48) || seqNum`,
// SHA-256'd. Byte-for-byte grounded on
// original_source/neo4/src/neo.rs::Message::ordering_state.
func OrderingState(linked [32]byte, messageDigest [32]byte, seqNum uint32) [32]byte {
	var state [52]byte
	copy(state[0:32], linked[:])
	for i := 0; i < 32; i++ {
		state[16+i] ^= messageDigest[i]
	}
	binary.BigEndian.PutUint32(state[48:52], seqNum)
	return sha256.Sum256(state[:])
}

// DeterministicKey derives a fixed, reproducible secp256k1 key pair for
// replica id, grounded on original_source/neo4/src/meta.rs::Config::gen_keys
// (`seckey = [(i+1) as u8; 32]`) — used by tests and local multi-process
// deployments where every replica's public key must be known in advance by
// every other participant, without a PKI.
func DeterministicKey(replicaID uint8) *secp256k1.PrivateKey {
	var seed [32]byte
	for i := range seed {
		seed[i] = replicaID + 1
	}
	return secp256k1.PrivKeyFromBytes(seed[:])
}

// SignOrderingState signs state with priv, returning the 64-byte
// R||S compact signature that occupies the header's signature region.
func SignOrderingState(priv *secp256k1.PrivateKey, state [32]byte) [SigLen]byte {
	compact := ecdsa.SignCompact(priv, state[:], false)
	var out [SigLen]byte
	// compact[0] is the recovery/header byte; we don't need public key
	// recovery since every replica already knows every other's public key.
	copy(out[:], compact[1:])
	return out
}

// VerifyOrderingState verifies a 64-byte R||S compact signature against
// state and pub.
func VerifyOrderingState(pub *secp256k1.PublicKey, state [32]byte, sig [SigLen]byte) error {
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return ErrBadSignature
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return ErrBadSignature
	}
	signature := ecdsa.NewSignature(&r, &s)
	if !signature.Verify(state[:], pub) {
		return ErrBadSignature
	}
	return nil
}
