// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire implements the ordered-multicast packet format: a 100-byte
// fixed header (sequence number, signature region, link hash) in front of a
// manually encoded body, plus the two crypto variants that can occupy the
// signature region (a per-receiver MAC set, or a secp256k1 ECDSA
// signature/link-hash chain).
//
// Layout is grounded on original_source/src/context/ordered_multicast.rs
// (OrderedMulticast<M>{seq_num, signature, linked, inner}) and
// original_source/neo100/src/seq.rs (the sequencer's in-place patching of
// the same offsets). Exact byte offsets matter because the sequencer
// rewrites this header in place at line rate; that rules out a
// reflection-based codec (see DESIGN.md C1).
package wire

import "encoding/binary"

const (
	// HeaderSize is the fixed prefix in front of every multicast body.
	HeaderSize = SeqLen + SigLen + LinkLen

	SeqOffset = 0
	SeqLen    = 4

	SigOffset = SeqOffset + SeqLen
	SigLen    = 64

	LinkOffset = SigOffset + SigLen
	LinkLen    = 32

	BodyOffset = LinkOffset + LinkLen
)

// Sub-layout of the 64-byte signature region when Variant is HalfSipHash:
// one byte giving the base replica index of this packet's 4-wide MAC
// window, then four 4-byte MAC codes. Grounded on
// original_source/neo100/src/seq.rs::SipHash::update (buf[4]=index,
// buf[5..21]=codes).
const (
	macBaseIndexLen = 1
	macCodeLen      = 4
	macWindowWidth  = 4
)

// Variant selects which crypto scheme occupies the signature region.
type Variant uint8

const (
	VariantHalfSipHash Variant = iota
	VariantK256
)

// Header is the decoded form of the fixed 100-byte prefix.
type Header struct {
	SeqNum  uint32
	Variant Variant

	// HalfSipHash fields.
	MACBaseIndex uint8
	MACs         [macWindowWidth][macCodeLen]byte

	// K256 fields. Sig is all-zero for a link-only ("K256Linked") packet.
	Sig [SigLen]byte

	Linked [LinkLen]byte
}

// Encode serializes h into a HeaderSize-byte prefix, suitable for
// concatenation with an encoded body.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[SeqOffset:SeqOffset+SeqLen], h.SeqNum)

	switch h.Variant {
	case VariantHalfSipHash:
		sig := buf[SigOffset : SigOffset+SigLen]
		sig[0] = h.MACBaseIndex
		for i, code := range h.MACs {
			off := macBaseIndexLen + i*macCodeLen
			copy(sig[off:off+macCodeLen], code[:])
		}
	case VariantK256:
		copy(buf[SigOffset:SigOffset+SigLen], h.Sig[:])
	}

	copy(buf[LinkOffset:LinkOffset+LinkLen], h.Linked[:])
	return buf
}

// DecodeHeader parses the fixed prefix of buf according to variant. buf must
// be at least HeaderSize bytes; the caller slices off BodyOffset: for the
// remaining body bytes.
func DecodeHeader(buf []byte, variant Variant) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, ErrMalformed
	}
	h := &Header{
		SeqNum:  binary.BigEndian.Uint32(buf[SeqOffset : SeqOffset+SeqLen]),
		Variant: variant,
	}
	sig := buf[SigOffset : SigOffset+SigLen]
	switch variant {
	case VariantHalfSipHash:
		h.MACBaseIndex = sig[0]
		for i := range h.MACs {
			off := macBaseIndexLen + i*macCodeLen
			copy(h.MACs[i][:], sig[off:off+macCodeLen])
		}
	case VariantK256:
		copy(h.Sig[:], sig)
	default:
		return nil, ErrUnknownVariant
	}
	copy(h.Linked[:], buf[LinkOffset:LinkOffset+LinkLen])
	return h, nil
}

// IsLinkOnly reports whether a K256-variant header carries no network
// signature yet (the "K256Linked" case in
// original_source/src/context/ordered_multicast.rs): the whole signature
// region is zero and only the link hash chains forward.
func (h *Header) IsLinkOnly() bool {
	if h.Variant != VariantK256 {
		return false
	}
	for _, b := range h.Sig {
		if b != 0 {
			return false
		}
	}
	return true
}

// CoversReplica reports whether this packet's MAC window includes
// replicaIndex, for the HalfSipHash variant's ceil(n/4)-packets-per-message
// batching (spec §4.2 step 6).
func (h *Header) CoversReplica(replicaIndex uint8) bool {
	if h.Variant != VariantHalfSipHash {
		return false
	}
	delta := replicaIndex - h.MACBaseIndex
	return delta < macWindowWidth
}

// MACFor returns the MAC code for replicaIndex within this packet's window.
// The caller must have checked CoversReplica first.
func (h *Header) MACFor(replicaIndex uint8) [macCodeLen]byte {
	return h.MACs[replicaIndex-h.MACBaseIndex]
}
