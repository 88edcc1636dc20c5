// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package arq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/ruftio/ruft-go/buffers"
)

// State is the connection lifecycle state.
type State int32

const (
	StateHandshaking State = iota
	StateEstablished
	StateClosing
	StateClosed
)

var stateNames = []string{"Handshaking", "Established", "Closing", "Closed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// TransmitFunc puts one encoded datagram on the wire. Implementations must
// not block beyond what a UDP send does.
type TransmitFunc func(data []byte, addr *net.UDPAddr) error

// Conn is one logical connection: a sender, a receiver, and the lifecycle
// state machine binding them. All mutable state is guarded by mu; the only
// two mutation paths are the mux's packet dispatch and this connection's own
// timer goroutine, exactly one exclusive execution context per connection.
type Conn struct {
	cfg Config
	log logr.Logger

	mu     sync.Mutex
	state  State
	server bool
	connID uint32
	remote *net.UDPAddr

	snd *sender
	rcv *receiver

	transmit TransmitFunc

	// handshake/teardown bookkeeping
	localFinSeq  uint32
	localFinSent bool
	peerFinSeq   uint32
	peerFinSeen  bool
	localClosed  bool

	lastActivity time.Time

	// established is closed when the handshake completes; done when the
	// connection reaches StateClosed.
	established chan struct{}
	done        chan struct{}
	termErr     error

	// wake nudges the timer goroutine after new deadlines appear.
	wake chan struct{}

	// mux hooks
	onEstablished func(*Conn)
	onTerminated  func(*Conn)
}

func newConn(cfg Config, log logr.Logger, server bool, connID uint32, remote *net.UDPAddr, transmit TransmitFunc) *Conn {
	c := &Conn{
		cfg:          cfg,
		log:          log,
		state:        StateHandshaking,
		server:       server,
		connID:       connID,
		remote:       remote,
		snd:          newSender(cfg, log),
		rcv:          newReceiver(cfg, log),
		transmit:     transmit,
		lastActivity: time.Now(),
		established:  make(chan struct{}),
		done:         make(chan struct{}),
		wake:         make(chan struct{}, 1),
	}
	go c.timerLoop()
	return c
}

// ID returns the connection ID (zero on a client until the server assigns one).
func (c *Conn) ID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// RemoteAddr returns the peer's UDP address.
func (c *Conn) RemoteAddr() *net.UDPAddr { return c.remote }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the connection reaches StateClosed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err reports why the connection terminated; nil before termination, and on
// teardown one of ErrClosed, ErrPeerClosed, ErrConnectionReset,
// ErrConnectionLost or ErrHandshakeTimeout (possibly wrapped).
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.termErr
}

// startConnect begins the client side of the handshake: SYN with the
// placeholder connection ID 0, retransmitted on the handshake budget.
func (c *Conn) startConnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.snd.admit(nil, FlagSYN, time.Now())
	c.sendEntryLocked(e)
	c.wakeTimers()
}

// startAccept begins the server side: the inbound SYN consumed the peer's
// sequence 0, and our SYN-ACK consumes ours. The SYN-ACK rides the
// retransmission machinery like any other packet.
func (c *Conn) startAccept() {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.snd.admit(nil, FlagSYN|FlagACK, time.Now())
	c.sendEntryLocked(e)
	c.wakeTimers()
}

// WaitEstablished blocks until the handshake completes or fails.
func (c *Conn) WaitEstablished(ctx context.Context) error {
	select {
	case <-c.established:
		return nil
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send queues payload for reliable, in-order delivery. It never blocks:
// segments beyond the send window wait in the pending queue until acks open
// capacity. Delivery is observed only through the peer's acks.
func (c *Conn) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateEstablished {
		if c.state == StateClosed && c.termErr != nil && !errors.Is(c.termErr, ErrClosed) {
			return c.termErr
		}
		return ErrNotConnected
	}
	if err := c.snd.enqueue(payload); err != nil {
		return err
	}
	for _, e := range c.snd.fillWindow(time.Now()) {
		c.sendEntryLocked(e)
	}
	c.wakeTimers()
	return nil
}

// Receive returns the next in-order payload, blocking until data arrives,
// ctx is done, or the connection terminates. Buffered data remains readable
// after a graceful teardown; once drained, Receive returns the terminal
// error (ErrPeerClosed for a peer-initiated close).
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	wasFull := c.rcv.window() == 0
	c.mu.Unlock()
	payload, err := c.rcv.delivery.PopContext(ctx)
	if err != nil {
		if errors.Is(err, buffers.ErrClosed) {
			if terr := c.Err(); terr != nil {
				return nil, terr
			}
			return nil, ErrClosed
		}
		return nil, err
	}
	if wasFull {
		// the advertised window just reopened; tell the peer or it may
		// stall forever with nothing in flight to draw an ack
		c.mu.Lock()
		if c.state == StateEstablished || c.state == StateClosing {
			c.sendAckLocked()
		}
		c.mu.Unlock()
	}
	return payload, nil
}

// Close starts a graceful teardown: FIN, wait for its ack. During a
// handshake it aborts with RST instead. Close returns immediately; Done
// signals completion.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localClosed = true
	switch c.state {
	case StateClosed:
		return nil
	case StateClosing:
		return nil
	case StateHandshaking:
		c.sendRSTLocked()
		c.terminateLocked(ErrClosed)
		return nil
	}
	e := c.snd.admit(nil, FlagFIN, time.Now())
	c.localFinSeq = e.seq
	c.localFinSent = true
	c.state = StateClosing
	c.sendEntryLocked(e)
	c.wakeTimers()
	return nil
}

// abort force-closes with an RST, discarding all state.
func (c *Conn) abort(reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.sendRSTLocked()
	c.terminateLocked(reason)
}

// handlePacket is the single inbound mutation path; the mux calls it for
// every datagram routed to this connection.
func (c *Conn) handlePacket(p *Packet) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}
	c.lastActivity = now

	if p.Flags&FlagRST != 0 {
		if c.state == StateClosing && c.localFinSent {
			// the peer consumed our FIN, tore down, and forgot the
			// connection; its RST to a retransmitted FIN ends the teardown
			// normally
			c.log.V(1).Info("reset after FIN completes close", "conn", c.connID)
			c.terminateLocked(ErrClosed)
			return
		}
		c.log.V(1).Info("connection reset by peer", "conn", c.connID)
		c.terminateLocked(ErrConnectionReset)
		return
	}

	if c.state == StateHandshaking {
		c.handleHandshakeLocked(p, now)
		if c.state != StateEstablished {
			return
		}
		if p.Flags&FlagSYN != 0 {
			// the SYN-ACK that just completed the handshake is already acked
			return
		}
		// a data-bearing packet can complete the handshake and carry
		// payload at once; fall through and process the rest of it
	}

	if p.Flags&FlagSYN != 0 {
		// retransmitted SYN-ACK: our handshake ACK was lost. Answer with a
		// fresh one so the server can finish establishing.
		c.snd.handleAck(p.Ack, p.Sacks, p.Window, now)
		c.sendAckLocked()
		return
	}

	ackSent := false
	if p.Flags&FlagACK != 0 {
		c.snd.handleAck(p.Ack, p.Sacks, p.Window, now)
		for _, e := range c.snd.fillWindow(now) {
			c.sendEntryLocked(e)
		}
		c.wakeTimers()
		if c.state == StateClosing && c.localFinSent && seqLEq(c.localFinSeq, p.Ack) {
			// our FIN is acked; teardown complete
			c.terminateLocked(ErrClosed)
			return
		}
	}

	if p.Flags&FlagFIN != 0 {
		c.peerFinSeen = true
		c.peerFinSeq = p.Seq
	}

	if len(p.Payload) > 0 {
		res := c.rcv.handleData(p.Seq, p.Payload)
		switch res {
		case rcvDuplicate:
			c.log.V(2).Info("duplicate packet re-acked", "conn", c.connID, "seq", p.Seq)
		case rcvWindowFull:
			c.log.V(1).Info("receive window full, dropping", "conn", c.connID, "seq", p.Seq)
		}
		c.sendAckLocked()
		ackSent = true
	}

	if c.peerFinSeen {
		c.consumeFinLocked(&ackSent)
	}
}

// handleHandshakeLocked advances the three-way handshake.
func (c *Conn) handleHandshakeLocked(p *Packet, now time.Time) {
	if !c.server {
		// expecting SYN-ACK with the server-assigned connection ID
		if p.Flags&FlagSYN == 0 || p.Flags&FlagACK == 0 {
			return
		}
		c.connID = p.ConnID
		c.snd.handleAck(p.Ack, p.Sacks, p.Window, now)
		c.becomeEstablishedLocked()
		c.sendAckLocked()
		return
	}

	// server side
	if p.Flags&FlagSYN != 0 && p.Flags&FlagACK == 0 {
		// duplicate SYN: idempotently re-send the SYN-ACK
		if e, ok := c.snd.inFlight[0]; ok {
			c.sendEntryLocked(e)
		}
		return
	}
	if p.Flags&FlagACK != 0 {
		c.snd.handleAck(p.Ack, p.Sacks, p.Window, now)
		if _, stillWaiting := c.snd.inFlight[0]; !stillWaiting {
			c.becomeEstablishedLocked()
		}
	}
}

func (c *Conn) becomeEstablishedLocked() {
	c.state = StateEstablished
	close(c.established)
	c.log.Info("connection established", "conn", c.connID, "remote", c.remote.String())
	if c.onEstablished != nil {
		// release the lock for the hook; it may call back into Conn
		cb := c.onEstablished
		c.mu.Unlock()
		cb(c)
		c.mu.Lock()
	}
}

// consumeFinLocked advances past the peer's FIN once every sequence before
// it has been delivered, then completes the teardown.
func (c *Conn) consumeFinLocked(ackSent *bool) {
	if !c.peerFinSeen {
		return
	}
	if seqLess(c.peerFinSeq, c.rcv.expected) {
		// already consumed; a duplicate FIN just needs a fresh ack
		if !*ackSent {
			c.sendAckLocked()
			*ackSent = true
		}
		return
	}
	if c.peerFinSeq != c.rcv.expected {
		// data before the FIN is still missing; the reorder machinery will
		// get us there
		return
	}
	c.rcv.expected++
	c.sendAckLocked()
	*ackSent = true
	c.log.Info("peer closed connection", "conn", c.connID)
	c.terminateLocked(ErrPeerClosed)
}

// onTimersLocked services fired retransmission deadlines and the idle
// timeout. Firing never blocks on anything but the UDP send itself.
func (c *Conn) onTimers(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}

	if c.cfg.IdleTimeout > 0 && now.Sub(c.lastActivity) > c.cfg.IdleTimeout {
		c.log.Info("idle timeout", "conn", c.connID)
		c.sendRSTLocked()
		c.terminateLocked(fmt.Errorf("%w: idle timeout", ErrConnectionLost))
		return
	}

	for _, seq := range c.snd.timers.popDue(now) {
		e, err := c.snd.expire(seq, now)
		if err != nil {
			c.log.Info("retry budget exhausted", "conn", c.connID, "seq", seq, "err", err)
			c.sendRSTLocked()
			c.terminateLocked(err)
			return
		}
		if e != nil {
			c.sendEntryLocked(e)
		}
	}
}

// terminateLocked is the single exit path: it cancels all timers and
// discards in-flight and reorder state atomically with the transition to
// StateClosed.
func (c *Conn) terminateLocked(reason error) {
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	c.termErr = reason
	c.snd.release()
	c.rcv.release()
	close(c.done)
	c.wakeTimers()
	if c.onTerminated != nil {
		cb := c.onTerminated
		c.mu.Unlock()
		cb(c)
		c.mu.Lock()
	}
}

// sendEntryLocked encodes and transmits one in-flight entry, piggybacking
// current ack state on everything except the client's initial SYN (which
// has nothing to acknowledge yet).
func (c *Conn) sendEntryLocked(e *flightEntry) {
	p := &Packet{
		Version: ProtocolVersion,
		Flags:   e.flags,
		ConnID:  c.connID,
		Seq:     e.seq,
		Payload: e.payload,
	}
	if !(e.flags&FlagSYN != 0 && !c.server) {
		p.Flags |= FlagACK
		p.Ack = c.rcv.cumAck()
		p.Sacks = c.rcv.sackBlocks()
	}
	p.Window = c.rcv.window()
	c.sendPacketLocked(p)
}

// sendAckLocked emits a bare ACK: cumulative ack, SACK blocks for whatever
// sits in the reorder buffer, and the current advertised window.
func (c *Conn) sendAckLocked() {
	c.sendPacketLocked(&Packet{
		Version: ProtocolVersion,
		Flags:   FlagACK,
		ConnID:  c.connID,
		Seq:     c.snd.nextSeq,
		Ack:     c.rcv.cumAck(),
		Window:  c.rcv.window(),
		Sacks:   c.rcv.sackBlocks(),
	})
}

func (c *Conn) sendRSTLocked() {
	c.sendPacketLocked(&Packet{
		Version: ProtocolVersion,
		Flags:   FlagRST,
		ConnID:  c.connID,
		Seq:     c.snd.nextSeq,
	})
}

func (c *Conn) sendPacketLocked(p *Packet) {
	data, err := p.Encode()
	if err != nil {
		c.log.Error(err, "dropping unencodable packet", "packet", p.String())
		return
	}
	c.log.V(2).Info("send", "conn", c.connID, "packet", p.String())
	if err := c.transmit(data, c.remote); err != nil {
		// UDP send failures are treated like loss; retransmission covers us
		c.log.V(1).Info("transmit failed", "conn", c.connID, "err", err.Error())
	}
}

func (c *Conn) wakeTimers() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// timerLoop is the connection's own execution context for scheduled events.
// It polls the retransmission queue's earliest deadline and the idle
// timeout; it never runs callbacks concurrently with packet dispatch since
// both paths take the connection mutex.
func (c *Conn) timerLoop() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			return
		}
		wait := c.cfg.InitialRTO
		if deadline, ok := c.snd.nextDeadline(); ok {
			wait = time.Until(deadline)
		} else if c.cfg.IdleTimeout > 0 {
			wait = time.Until(c.lastActivity.Add(c.cfg.IdleTimeout))
		}
		c.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-c.done:
			return
		case <-c.wake:
		case <-timer.C:
			c.onTimers(time.Now())
		}
	}
}
