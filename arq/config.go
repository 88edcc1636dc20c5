// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package arq

import "time"

// Config tunes one endpoint. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	// MaxPayload is the largest payload placed in a single packet. Larger
	// sends are segmented. Should stay under the path MTU minus header
	// overhead or the datagrams will fragment.
	MaxPayload int

	// WindowSize is the receive-side capacity in packets: reorder buffer
	// plus delivery queue. It bounds the window advertised to the peer.
	WindowSize int

	// MaxFlight caps the number of unacknowledged packets in flight
	// regardless of what the peer advertises.
	MaxFlight int

	// SendQueueLimit bounds the pending-segment queue (segments accepted by
	// Send but not yet admitted to the window). Send fails with
	// ErrSendBufferFull beyond it.
	SendQueueLimit int

	// InitialRTO is the retransmission timeout used before the first RTT
	// sample, and the handshake retransmission interval.
	InitialRTO time.Duration

	// MinRTO and MaxRTO clamp the estimator output. MaxRTO also caps
	// exponential backoff.
	MinRTO time.Duration
	MaxRTO time.Duration

	// MaxRetries is the per-packet retransmission budget; exceeding it
	// declares the connection lost.
	MaxRetries int

	// HandshakeRetries bounds SYN (and SYN-ACK) retransmissions.
	HandshakeRetries int

	// IdleTimeout reaps connections with no inbound traffic. Zero disables
	// reaping.
	IdleTimeout time.Duration
}

// DefaultConfig returns the tuning used when the caller supplies nothing.
func DefaultConfig() Config {
	return Config{
		MaxPayload:       1400,
		WindowSize:       256,
		MaxFlight:        128,
		SendQueueLimit:   1024,
		InitialRTO:       time.Second,
		MinRTO:           200 * time.Millisecond,
		MaxRTO:           60 * time.Second,
		MaxRetries:       8,
		HandshakeRetries: 5,
		IdleTimeout:      5 * time.Minute,
	}
}

// withDefaults fills zero fields from DefaultConfig so partially-populated
// configs behave sensibly.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPayload <= 0 {
		c.MaxPayload = d.MaxPayload
	}
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.MaxFlight <= 0 {
		c.MaxFlight = d.MaxFlight
	}
	if c.SendQueueLimit <= 0 {
		c.SendQueueLimit = d.SendQueueLimit
	}
	if c.InitialRTO <= 0 {
		c.InitialRTO = d.InitialRTO
	}
	if c.MinRTO <= 0 {
		c.MinRTO = d.MinRTO
	}
	if c.MaxRTO <= 0 {
		c.MaxRTO = d.MaxRTO
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.HandshakeRetries <= 0 {
		c.HandshakeRetries = d.HandshakeRetries
	}
	return c
}
