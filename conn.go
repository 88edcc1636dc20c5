// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package ruft

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/ruftio/ruft-go/arq"
)

// Conn is one established RUFT connection. Outbound messages go through
// Send, which never blocks; inbound traffic and lifecycle changes arrive on
// the Events stream. The stream ends with EventPeerDisconnected or
// EventError, or silently after a local Close.
type Conn struct {
	sm *socketManager
	ac *arq.Conn

	events chan Event
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func newConn(sm *socketManager, ac *arq.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		sm:     sm,
		ac:     ac,
		events: make(chan Event),
		cancel: cancel,
	}
	go c.pump(ctx)
	return c
}

// pump converts the transport's delivery queue into the event stream. Its
// send blocks when the application stops reading; the bounded delivery
// queue then fills and the advertised window closes, which is exactly the
// flow-control backpressure the peer expects.
func (c *Conn) pump(ctx context.Context) {
	defer close(c.events)
	for {
		payload, err := c.ac.Receive(ctx)
		if err != nil {
			var terminal *Event
			switch {
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return
			case errors.Is(err, arq.ErrPeerClosed):
				terminal = &Event{Kind: EventPeerDisconnected}
			case errors.Is(err, arq.ErrClosed):
				// local close; the stream just ends
				return
			default:
				terminal = &Event{Kind: EventError, Err: err}
			}
			select {
			case c.events <- *terminal:
			case <-ctx.Done():
			}
			return
		}
		select {
		case c.events <- Event{Kind: EventMessage, Data: payload}:
		case <-ctx.Done():
			return
		}
	}
}

// Send queues payload for reliable in-order delivery to the peer. It
// returns ErrNotConnected when the connection is not established and never
// blocks on the network; delivery is observed only through the peer's
// acknowledgments.
func (c *Conn) Send(payload []byte) error {
	return c.ac.Send(payload)
}

// Events returns the inbound event stream. Read it promptly; an unread
// stream throttles the peer via the advertised window rather than buffering
// without bound.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Close starts a graceful teardown (FIN) and releases this connection's
// reference on the underlying socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		err := c.ac.Close()
		// let the teardown run; the event pump stops on its own when the
		// transport reports closure
		c.cancel()
		if derr := c.sm.decref(); err == nil {
			err = derr
		}
		c.closeErr = err
	})
	return c.closeErr
}

// Done is closed once the connection is fully torn down.
func (c *Conn) Done() <-chan struct{} { return c.ac.Done() }

// ConnID returns the server-assigned connection identifier.
func (c *Conn) ConnID() uint32 { return c.ac.ID() }

// LocalAddr returns the local UDP address.
func (c *Conn) LocalAddr() net.Addr { return c.sm.udpSocket.LocalAddr() }

// RemoteAddr returns the peer's UDP address.
func (c *Conn) RemoteAddr() net.Addr { return c.ac.RemoteAddr() }
