// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package ruft

// EventKind discriminates connection events.
type EventKind int

const (
	// EventMessage carries one in-order payload from the peer.
	EventMessage EventKind = iota
	// EventPeerDisconnected reports a graceful close by the peer. It is the
	// last event on the stream.
	EventPeerDisconnected
	// EventError reports a terminal connection failure. It is the last
	// event on the stream.
	EventError
)

var eventKindNames = []string{"Message", "PeerDisconnected", "Error"}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "Unknown"
}

// Event is one entry on a connection's inbound event stream. Individual
// packet loss never appears here; only whole messages and terminal
// lifecycle changes do.
type Event struct {
	Kind EventKind
	// Data is set for EventMessage.
	Data []byte
	// Err is set for EventError.
	Err error
}
