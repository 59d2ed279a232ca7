// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderHalfSipHashRoundTrip(t *testing.T) {
	h := &Header{
		SeqNum:       7,
		Variant:      VariantHalfSipHash,
		MACBaseIndex: 4,
	}
	h.MACs[0] = [4]byte{1, 2, 3, 4}
	h.MACs[3] = [4]byte{9, 9, 9, 9}
	h.Linked = [32]byte{0xAB}

	buf := h.Encode()
	require.Len(t, buf, HeaderSize)

	decoded, err := DecodeHeader(buf, VariantHalfSipHash)
	require.NoError(t, err)
	assert.Equal(t, h.SeqNum, decoded.SeqNum)
	assert.Equal(t, h.MACBaseIndex, decoded.MACBaseIndex)
	assert.Equal(t, h.MACs, decoded.MACs)
	assert.Equal(t, h.Linked, decoded.Linked)

	assert.True(t, decoded.CoversReplica(4))
	assert.True(t, decoded.CoversReplica(7))
	assert.False(t, decoded.CoversReplica(3))
	assert.False(t, decoded.CoversReplica(8))
	assert.Equal(t, [4]byte{1, 2, 3, 4}, decoded.MACFor(4))
}

func TestHeaderK256LinkOnly(t *testing.T) {
	h := &Header{SeqNum: 1, Variant: VariantK256}
	buf := h.Encode()
	decoded, err := DecodeHeader(buf, VariantK256)
	require.NoError(t, err)
	assert.True(t, decoded.IsLinkOnly())

	decoded.Sig[0] = 1
	assert.False(t, decoded.IsLinkOnly())
}

func TestDecodeHeaderMalformed(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1), VariantK256)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestComputeAndVerifyMAC(t *testing.T) {
	data := []byte("ordered-multicast-payload")
	h := &Header{Variant: VariantHalfSipHash, MACBaseIndex: 0}
	for i := range h.MACs {
		h.MACs[i] = ComputeMAC(DefaultMACKey, uint8(i), data)
	}

	for i := uint8(0); i < 4; i++ {
		assert.NoError(t, VerifyMAC(h, DefaultMACKey, i, data))
	}

	// A foreign key must not validate.
	assert.Error(t, VerifyMAC(h, MACKey(123), 0, data))
	// An index outside the window is rejected outright.
	assert.ErrorIs(t, VerifyMAC(h, DefaultMACKey, 5, data), ErrMalformed)
}

func TestRequestEncodeDecodeRoundTrip(t *testing.T) {
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:9000")
	require.NoError(t, err)

	req := Request{
		ClientID:      ClientID{Addr: addr, Salt: 42},
		RequestNumber: 5,
		Op:            []byte("hello"),
	}
	encoded := EncodeRequest(req)
	tag, decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, TagRequest, tag)

	got, ok := decoded.(Request)
	require.True(t, ok)
	assert.Equal(t, req.RequestNumber, got.RequestNumber)
	assert.Equal(t, req.Op, got.Op)
	assert.Equal(t, req.ClientID.Salt, got.ClientID.Salt)
	assert.Equal(t, addr.String(), got.ClientID.Addr.String())
}

func TestOrderedRequestEncodeDecodeRoundTrip(t *testing.T) {
	m := OrderedRequest{
		ClientID:         ClientID{Salt: 1},
		RequestNumber:    3,
		Op:               []byte("op"),
		SequenceNumber:   10,
		OrderingState:    [32]byte{1, 2, 3},
		NetworkSignature: []byte{0xAA, 0xBB},
		LinkHash:         [32]byte{4, 5, 6},
	}
	encoded := EncodeOrderedRequest(m)
	tag, decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, TagOrderedRequest, tag)

	got, ok := decoded.(OrderedRequest)
	require.True(t, ok)
	assert.Equal(t, m.SequenceNumber, got.SequenceNumber)
	assert.Equal(t, m.OrderingState, got.OrderingState)
	assert.Equal(t, m.NetworkSignature, got.NetworkSignature)
	assert.Equal(t, m.LinkHash, got.LinkHash)
}

func TestMulticastVoteEncodeDecodeRoundTrip(t *testing.T) {
	v := MulticastVote{
		ViewNumber:     0,
		SequenceNumber: 99,
		OrderingState:  [32]byte{7, 7, 7},
		ReplicaID:      2,
		Signature:      [SigLen]byte{1},
	}
	encoded := EncodeMulticastVote(v)
	tag, decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, TagMulticastVote, tag)
	got := decoded.(MulticastVote)
	assert.Equal(t, v, got)
}

func TestQueryAndQueryReplyRoundTrip(t *testing.T) {
	q := Query{SequenceNumber: 55, ReplicaID: 3}
	encoded := EncodeQuery(q)
	tag, decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, TagQuery, tag)
	assert.Equal(t, q, decoded.(Query))

	qr := QueryReply{OrderedRequest: OrderedRequest{SequenceNumber: 55, Op: []byte("x")}}
	encodedQR := EncodeQueryReply(qr)
	tag, decoded, err = DecodeMessage(encodedQR)
	require.NoError(t, err)
	assert.Equal(t, TagQueryReply, tag)
	assert.Equal(t, qr.OrderedRequest.SequenceNumber, decoded.(QueryReply).OrderedRequest.SequenceNumber)
}

func TestReplyEncodeDecodeRoundTrip(t *testing.T) {
	rep := Reply{
		RequestNumber:  1,
		SequenceNumber: 2,
		ReplicaID:      3,
		Result:         []byte("ok"),
		Signature:      [SigLen]byte{9},
	}
	encoded := EncodeReply(rep)
	tag, decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, TagReply, tag)
	assert.Equal(t, rep, decoded.(Reply))
}

func TestMulticastGenericEncodeDecodeRoundTrip(t *testing.T) {
	mg := MulticastGeneric{Votes: []MulticastVote{
		{SequenceNumber: 1, ReplicaID: 0},
		{SequenceNumber: 2, ReplicaID: 1},
	}}
	encoded := EncodeMulticastGeneric(mg)
	tag, decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, TagMulticastGeneric, tag)
	got := decoded.(MulticastGeneric)
	require.Len(t, got.Votes, 2)
	assert.Equal(t, uint32(1), got.Votes[0].SequenceNumber)
	assert.Equal(t, uint32(2), got.Votes[1].SequenceNumber)
}

func TestDecodeMessageUnknownTag(t *testing.T) {
	_, _, err := DecodeMessage([]byte{0xFF})
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestDecodeMessageEmpty(t *testing.T) {
	_, _, err := DecodeMessage(nil)
	assert.ErrorIs(t, err, ErrMalformed)
}
