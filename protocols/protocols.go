// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package protocols is a deliberately thin stub: it demonstrates that the
// unreplicated baseline, PBFT, Zyzzyva, HotStuff, and MinBFT variants this
// repository's source tree also contains can all ride the same
// transport/wire substrate as Neo, without reimplementing any of their own
// consensus logic (out of scope — spec.md names these as external
// collaborators specified only at their interface boundary). Grounded on
// original_source's per-protocol modules (unreplicated.rs, pbft.rs,
// zyzzyva.rs, hotstuff.rs, minbft.rs), each of which is a `Node` that
// differs only in receive_message/inbound_action logic, never in how
// packets reach it.
package protocols

import "github.com/luxfi/neobft/wire"

// Kind names a protocol variant sharing this substrate. Neo itself is
// implemented in full by the replica/sequencer/client packages; the rest
// are named here only so a future Node implementation has somewhere to
// register.
type Kind uint8

const (
	Unreplicated Kind = iota
	PBFT
	Zyzzyva
	HotStuff
	MinBFT
	Neo
)

func (k Kind) String() string {
	switch k {
	case Unreplicated:
		return "unreplicated"
	case PBFT:
		return "pbft"
	case Zyzzyva:
		return "zyzzyva"
	case HotStuff:
		return "hotstuff"
	case MinBFT:
		return "minbft"
	case Neo:
		return "neo"
	default:
		return "unknown"
	}
}

// Node is the minimal shape every protocol variant implements against the
// shared transport: accept a raw decoded message and, separately, accept a
// client Request. A real PBFT/Zyzzyva/HotStuff/MinBFT Node would carry its
// own view-change and quorum-certificate logic behind this interface; none
// of that is implemented here, matching spec.md's Non-goals.
type Node interface {
	// ReceiveMessage handles one message already decoded by
	// wire.DecodeMessage and authenticated by transport, exactly like
	// replica.Replica's Handle* methods.
	ReceiveMessage(tag wire.Tag, message any)
	// ReceiveRequest handles a client-originated Request.
	ReceiveRequest(req wire.Request)
}

// Unimplemented is the stub Node every non-Neo Kind resolves to: it proves
// the interface is satisfiable by the shared wire types without pulling in
// any protocol-specific logic.
type Unimplemented struct {
	Kind Kind
}

func (u Unimplemented) ReceiveMessage(wire.Tag, any) {}
func (u Unimplemented) ReceiveRequest(wire.Request)  {}
