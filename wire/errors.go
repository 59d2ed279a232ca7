// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import "errors"

var (
	// ErrMalformed means a packet is shorter than the fixed header, a field
	// is truncated or cannot be parsed, or a replica index falls outside the
	// MAC window. An unknown message tag is ErrUnknownVariant instead.
	ErrMalformed = errors.New("wire: malformed packet")
	// ErrBadSignature means a HalfSipHash MAC or secp256k1 signature failed
	// to verify.
	ErrBadSignature = errors.New("wire: signature verification failed")
	// ErrLinkMismatch means the recomputed link hash does not match the
	// packet's claimed linked field on a link-only (unsigned) packet.
	ErrLinkMismatch = errors.New("wire: link hash mismatch")
	// ErrUnknownVariant means a crypto variant or message tag byte is not
	// one this build recognizes.
	ErrUnknownVariant = errors.New("wire: unknown variant")
)
