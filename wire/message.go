// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// ClientID identifies a client by its socket address plus a random salt
// byte, grounded on original_source/neo4/src/meta.rs::ClientId — the salt
// disambiguates two client processes that happen to reuse the same
// ephemeral port across restarts.
type ClientID struct {
	Addr *net.UDPAddr
	Salt uint8
}

func (c ClientID) String() string {
	if c.Addr == nil {
		return "<nil>"
	}
	return c.Addr.String()
}

// Key returns a comparable map key for c, since *net.UDPAddr itself is not
// safe to use as a map key (pointer identity, not value equality).
func (c ClientID) Key() string {
	addr := ""
	if c.Addr != nil {
		addr = c.Addr.String()
	}
	return fmt.Sprintf("%s#%d", addr, c.Salt)
}

// Tag identifies which concrete message a decoded unicast packet carries.
// Grounded on original_source/neo4/src/neo.rs's Message enum
// discriminants, in declaration order.
type Tag uint8

const (
	TagRequest Tag = iota
	TagOrderedRequest
	TagMulticastGeneric
	TagMulticastVote
	TagReply
	TagQuery
	TagQueryReply
)

// Request is sent by a client to invoke an operation.
type Request struct {
	ClientID      ClientID
	RequestNumber uint32
	Op            []byte
}

// OrderedRequest is a Request plus the ordering metadata the sequencer (or,
// on the slow path, the replica itself) attaches: sequence number, the
// signed/unsigned ordering digest, and the link hash it chains from.
// Grounded on neo.rs::OrderedRequest.
type OrderedRequest struct {
	ClientID         ClientID
	RequestNumber    uint32
	Op               []byte
	SequenceNumber   uint32
	OrderingState    [32]byte
	NetworkSignature []byte // empty on a link-only (unsigned) packet
	LinkHash         [32]byte
}

// MulticastVote is a replica's vote for a sequence number once it has seen
// a network-signed (or batch-verified) ordered request. Grounded on
// neo.rs::MulticastVote.
type MulticastVote struct {
	ViewNumber     uint8
	SequenceNumber uint32
	OrderingState  [32]byte
	ReplicaID      uint8
	Signature      [SigLen]byte
}

// MulticastGeneric batches several votes into one packet. Present in the
// wire format per DESIGN.md's Open Question resolution #3 but not
// produced or consumed by replica in this build.
type MulticastGeneric struct {
	Votes []MulticastVote
}

// Reply carries a replica's result for a client request.
type Reply struct {
	RequestNumber  uint32
	SequenceNumber uint32
	ReplicaID      uint8
	Result         []byte
	Signature      [SigLen]byte
}

// Query asks a peer replica (or the primary) to resend the ordered request
// at SequenceNumber, used for gap recovery (spec §4.4).
type Query struct {
	SequenceNumber uint32
	ReplicaID      uint8
}

// QueryReply answers a Query with the cached OrderedRequest, if the
// responder still has it in its log.
type QueryReply struct {
	OrderedRequest OrderedRequest
}

// --- encoding helpers -------------------------------------------------
//
// Manual length-prefixed binary encoding, not a reflection-based codec:
// unlike the header (which the sequencer patches in place), the body never
// needs a fixed byte offset, but it does need to round-trip exactly the
// same tagged-union shape as original_source/neo4/src/neo.rs's Message
// enum, which the teacher's JSON codec (codec/codec.go) cannot express as
// compactly or as predictably under fuzzing.

func putBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func getBytes(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, ErrMalformed
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	out := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, ErrMalformed
		}
	}
	return out, nil
}

func putClientID(buf *bytes.Buffer, c ClientID) {
	addr := ""
	if c.Addr != nil {
		addr = c.Addr.String()
	}
	putBytes(buf, []byte(addr))
	buf.WriteByte(c.Salt)
}

func getClientID(r *bytes.Reader) (ClientID, error) {
	addrBytes, err := getBytes(r)
	if err != nil {
		return ClientID{}, err
	}
	var salt [1]byte
	if _, err := io.ReadFull(r, salt[:]); err != nil {
		return ClientID{}, ErrMalformed
	}
	var addr *net.UDPAddr
	if len(addrBytes) > 0 {
		addr, err = net.ResolveUDPAddr("udp", string(addrBytes))
		if err != nil {
			return ClientID{}, ErrMalformed
		}
	}
	return ClientID{Addr: addr, Salt: salt[0]}, nil
}

// EncodeRequest serializes a Request body (no wire header; Request travels
// client-to-sequencer/primary as a plain unicast packet, tagged by Tag).
func EncodeRequest(m Request) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(TagRequest))
	putClientID(&buf, m.ClientID)
	var rn [4]byte
	binary.BigEndian.PutUint32(rn[:], m.RequestNumber)
	buf.Write(rn[:])
	putBytes(&buf, m.Op)
	return buf.Bytes()
}

// DecodeMessage dispatches on the leading tag byte and decodes the
// matching struct, returned as `any` for the caller to type-switch on.
func DecodeMessage(data []byte) (Tag, any, error) {
	if len(data) < 1 {
		return 0, nil, ErrMalformed
	}
	tag := Tag(data[0])
	r := bytes.NewReader(data[1:])
	switch tag {
	case TagRequest:
		m, err := decodeRequest(r)
		return tag, m, err
	case TagOrderedRequest:
		m, err := decodeOrderedRequest(r)
		return tag, m, err
	case TagMulticastVote:
		m, err := decodeMulticastVote(r)
		return tag, m, err
	case TagMulticastGeneric:
		m, err := decodeMulticastGeneric(r)
		return tag, m, err
	case TagReply:
		m, err := decodeReply(r)
		return tag, m, err
	case TagQuery:
		m, err := decodeQuery(r)
		return tag, m, err
	case TagQueryReply:
		m, err := decodeQueryReply(r)
		return tag, m, err
	default:
		return 0, nil, ErrUnknownVariant
	}
}

func decodeRequest(r *bytes.Reader) (Request, error) {
	cid, err := getClientID(r)
	if err != nil {
		return Request{}, err
	}
	var rn [4]byte
	if _, err := io.ReadFull(r, rn[:]); err != nil {
		return Request{}, ErrMalformed
	}
	op, err := getBytes(r)
	if err != nil {
		return Request{}, err
	}
	return Request{ClientID: cid, RequestNumber: binary.BigEndian.Uint32(rn[:]), Op: op}, nil
}

// EncodeOrderedRequest serializes the request-with-ordering-metadata body
// that rides behind the 100-byte multicast Header.
func EncodeOrderedRequest(m OrderedRequest) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(TagOrderedRequest))
	putClientID(&buf, m.ClientID)
	var scratch [4]byte
	binary.BigEndian.PutUint32(scratch[:], m.RequestNumber)
	buf.Write(scratch[:])
	putBytes(&buf, m.Op)
	binary.BigEndian.PutUint32(scratch[:], m.SequenceNumber)
	buf.Write(scratch[:])
	buf.Write(m.OrderingState[:])
	putBytes(&buf, m.NetworkSignature)
	buf.Write(m.LinkHash[:])
	return buf.Bytes()
}

func decodeOrderedRequest(r *bytes.Reader) (OrderedRequest, error) {
	var m OrderedRequest
	var err error
	m.ClientID, err = getClientID(r)
	if err != nil {
		return m, err
	}
	var scratch [4]byte
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return m, ErrMalformed
	}
	m.RequestNumber = binary.BigEndian.Uint32(scratch[:])
	m.Op, err = getBytes(r)
	if err != nil {
		return m, err
	}
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return m, ErrMalformed
	}
	m.SequenceNumber = binary.BigEndian.Uint32(scratch[:])
	if _, err := io.ReadFull(r, m.OrderingState[:]); err != nil {
		return m, ErrMalformed
	}
	m.NetworkSignature, err = getBytes(r)
	if err != nil {
		return m, err
	}
	if _, err := io.ReadFull(r, m.LinkHash[:]); err != nil {
		return m, ErrMalformed
	}
	return m, nil
}

// RequestDigest returns the digest of the underlying Request carried by an
// OrderedRequest — the same digest the sequencer folds into OrderingState
// (clients do not sign requests) and the one OrderingState's messageDigest
// argument must match. Grounded on
// neo.rs::Message::digest's OrderedRequest arm, which re-wraps the fields
// into a Request before hashing.
func (m OrderedRequest) RequestDigest() [32]byte {
	req := Request{ClientID: m.ClientID, RequestNumber: m.RequestNumber, Op: m.Op}
	return sha256.Sum256(EncodeRequest(req))
}

func EncodeMulticastVote(m MulticastVote) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(TagMulticastVote))
	buf.WriteByte(m.ViewNumber)
	var scratch [4]byte
	binary.BigEndian.PutUint32(scratch[:], m.SequenceNumber)
	buf.Write(scratch[:])
	buf.Write(m.OrderingState[:])
	buf.WriteByte(m.ReplicaID)
	buf.Write(m.Signature[:])
	return buf.Bytes()
}

func decodeMulticastVote(r *bytes.Reader) (MulticastVote, error) {
	var m MulticastVote
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return m, ErrMalformed
	}
	m.ViewNumber = b[0]
	var scratch [4]byte
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return m, ErrMalformed
	}
	m.SequenceNumber = binary.BigEndian.Uint32(scratch[:])
	if _, err := io.ReadFull(r, m.OrderingState[:]); err != nil {
		return m, ErrMalformed
	}
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return m, ErrMalformed
	}
	m.ReplicaID = b[0]
	if _, err := io.ReadFull(r, m.Signature[:]); err != nil {
		return m, ErrMalformed
	}
	return m, nil
}

func EncodeMulticastGeneric(m MulticastGeneric) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(TagMulticastGeneric))
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(m.Votes)))
	buf.Write(n[:])
	for _, v := range m.Votes {
		putBytes(&buf, EncodeMulticastVote(v)[1:]) // strip nested tag byte
	}
	return buf.Bytes()
}

func decodeMulticastGeneric(r *bytes.Reader) (MulticastGeneric, error) {
	var m MulticastGeneric
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return m, ErrMalformed
	}
	count := binary.BigEndian.Uint32(n[:])
	m.Votes = make([]MulticastVote, 0, count)
	for i := uint32(0); i < count; i++ {
		raw, err := getBytes(r)
		if err != nil {
			return m, err
		}
		v, err := decodeMulticastVote(bytes.NewReader(raw))
		if err != nil {
			return m, err
		}
		m.Votes = append(m.Votes, v)
	}
	return m, nil
}

func EncodeReply(m Reply) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(TagReply))
	var scratch [4]byte
	binary.BigEndian.PutUint32(scratch[:], m.RequestNumber)
	buf.Write(scratch[:])
	binary.BigEndian.PutUint32(scratch[:], m.SequenceNumber)
	buf.Write(scratch[:])
	buf.WriteByte(m.ReplicaID)
	putBytes(&buf, m.Result)
	buf.Write(m.Signature[:])
	return buf.Bytes()
}

func decodeReply(r *bytes.Reader) (Reply, error) {
	var m Reply
	var scratch [4]byte
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return m, ErrMalformed
	}
	m.RequestNumber = binary.BigEndian.Uint32(scratch[:])
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return m, ErrMalformed
	}
	m.SequenceNumber = binary.BigEndian.Uint32(scratch[:])
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return m, ErrMalformed
	}
	m.ReplicaID = b[0]
	result, err := getBytes(r)
	if err != nil {
		return m, err
	}
	m.Result = result
	if _, err := io.ReadFull(r, m.Signature[:]); err != nil {
		return m, ErrMalformed
	}
	return m, nil
}

func EncodeQuery(m Query) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(TagQuery))
	var scratch [4]byte
	binary.BigEndian.PutUint32(scratch[:], m.SequenceNumber)
	buf.Write(scratch[:])
	buf.WriteByte(m.ReplicaID)
	return buf.Bytes()
}

func decodeQuery(r *bytes.Reader) (Query, error) {
	var m Query
	var scratch [4]byte
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return m, ErrMalformed
	}
	m.SequenceNumber = binary.BigEndian.Uint32(scratch[:])
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return m, ErrMalformed
	}
	m.ReplicaID = b[0]
	return m, nil
}

func EncodeQueryReply(m QueryReply) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(TagQueryReply))
	putBytes(&buf, EncodeOrderedRequest(m.OrderedRequest)[1:])
	return buf.Bytes()
}

func decodeQueryReply(r *bytes.Reader) (QueryReply, error) {
	var m QueryReply
	raw, err := getBytes(r)
	if err != nil {
		return m, err
	}
	m.OrderedRequest, err = decodeOrderedRequest(bytes.NewReader(raw))
	return m, err
}
