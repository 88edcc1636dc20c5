// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package arq

import "errors"

// Errors surfaced by the transport. Individual packet loss, duplication and
// reordering are recovered internally and never show up here.
var (
	// ErrCorruptPacket means a datagram failed checksum verification. Callers
	// drop the datagram; the peer's retransmission timer covers the loss.
	ErrCorruptPacket = errors.New("arq: packet checksum mismatch")

	// ErrProtocolViolation means a datagram was structurally or semantically
	// malformed (truncated header, bad SACK extension, payload on a SYN).
	ErrProtocolViolation = errors.New("arq: protocol violation")

	// ErrHandshakeTimeout means the SYN retry budget was exhausted without
	// completing the three-way handshake.
	ErrHandshakeTimeout = errors.New("arq: handshake timed out")

	// ErrConnectionLost means a packet exhausted its retransmission budget
	// and the connection was torn down.
	ErrConnectionLost = errors.New("arq: connection lost (retry budget exhausted)")

	// ErrConnectionReset means the peer aborted the connection with RST.
	ErrConnectionReset = errors.New("arq: connection reset by peer")

	// ErrPeerClosed means the peer completed a graceful FIN teardown.
	ErrPeerClosed = errors.New("arq: connection closed by peer")

	// ErrNotConnected is returned by Send on a connection that is not
	// established.
	ErrNotConnected = errors.New("arq: not connected")

	// ErrClosed is returned for operations on a closed connection or mux.
	ErrClosed = errors.New("arq: connection closed")

	// ErrSendBufferFull is returned by Send when the pending-segment queue
	// cannot absorb any more data. Data already accepted is unaffected.
	ErrSendBufferFull = errors.New("arq: send buffer full")
)
