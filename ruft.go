// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

// Package ruft implements RUFT, a reliable, ordered, flow-controlled message
// transport layered over UDP: Selective-Repeat ARQ with cumulative and
// selective acknowledgments, per-packet retransmission timers with RTT-based
// timeouts, and receiver-driven windowed flow control. The protocol state
// machines live in the arq subpackage; this package binds them to a real
// UDP socket and exposes a Dial/Listen API.
package ruft

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/ruftio/ruft-go/arq"
)

// Errors surfaced at the API boundary; arq sentinels pass through unchanged
// where they are already the right shape.
var (
	// ErrConnectFailed wraps any handshake failure out of Dial.
	ErrConnectFailed = errors.New("ruft: connect failed")

	// ErrNotConnected is returned by Send outside the Established state.
	ErrNotConnected = arq.ErrNotConnected

	// ErrClosed is returned for operations on closed connections/listeners.
	ErrClosed = arq.ErrClosed
)

const defaultAcceptBacklog = 16

// ResolveAddr parses address for the given RUFT network ("ruft", "ruft4",
// "ruft6") into the underlying UDP address.
func ResolveAddr(network, address string) (*net.UDPAddr, error) {
	udpNetwork, err := udpNetworkFor(network)
	if err != nil {
		return nil, err
	}
	return net.ResolveUDPAddr(udpNetwork, address)
}

func udpNetworkFor(network string) (string, error) {
	switch network {
	case "ruft", "ruft4", "ruft6":
		return "udp" + network[4:], nil
	}
	return "", net.UnknownNetworkError(network)
}

// Dial establishes a RUFT connection to address, blocking until the
// three-way handshake completes, ctx is done, or the SYN retry budget is
// exhausted.
func Dial(ctx context.Context, network, address string, options ...ConnectOption) (*Conn, error) {
	opts := defaultConnectOptions()
	for _, o := range options {
		o.apply(&opts)
	}
	rAddr, err := ResolveAddr(network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	sm, err := newSocketManager(network, nil, opts, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	sm.start()

	ac, err := sm.mux.Connect(rAddr)
	if err != nil {
		_ = sm.decref()
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	if err := ac.WaitEstablished(ctx); err != nil {
		ac.Close()
		_ = sm.decref()
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	return newConn(sm, ac), nil
}

// Listen binds a RUFT endpoint accepting inbound connections on address.
func Listen(network, address string, options ...ConnectOption) (*Listener, error) {
	opts := defaultConnectOptions()
	for _, o := range options {
		o.apply(&opts)
	}
	lAddr, err := ResolveAddr(network, address)
	if err != nil {
		return nil, err
	}
	sm, err := newSocketManager(network, lAddr, opts, opts.backlog)
	if err != nil {
		return nil, err
	}
	sm.start()
	return &Listener{sm: sm}, nil
}

// Listener accepts inbound RUFT connections.
type Listener struct {
	sm        *socketManager
	closeOnce sync.Once
	closeErr  error
}

// Accept returns the next established inbound connection.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	select {
	case ac, ok := <-l.sm.mux.Accepted():
		if !ok {
			return nil, net.ErrClosed
		}
		l.sm.incref()
		return newConn(l.sm, ac), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr returns the listener's bound UDP address.
func (l *Listener) Addr() net.Addr {
	return l.sm.udpSocket.LocalAddr()
}

// Close stops accepting and aborts connections that have not been accepted
// yet. Already-accepted connections live until their own Close.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.sm.decref()
	})
	return l.closeErr
}

// socketManager owns one UDP socket: a single reader goroutine feeds the
// mux, and all sends from any connection's context funnel through one
// serialized send path. It is reference-counted across the listener and its
// accepted connections and tears down when the last reference drops.
type socketManager struct {
	log logr.Logger
	mux *arq.Mux

	udpSocket *net.UDPConn

	sendMu sync.Mutex

	group *errgroup.Group

	refMu    sync.Mutex
	refCount int
	closing  bool
	closeErr error
}

func newSocketManager(network string, lAddr *net.UDPAddr, opts connectOptions, backlog int) (*socketManager, error) {
	udpNetwork, err := udpNetworkFor(network)
	if err != nil {
		op := "dial"
		if lAddr != nil {
			op = "listen"
		}
		return nil, &net.OpError{Op: op, Net: network, Addr: lAddr, Err: err}
	}
	udpSocket, err := net.ListenUDP(udpNetwork, lAddr)
	if err != nil {
		return nil, err
	}

	sm := &socketManager{
		log:       opts.logger,
		udpSocket: udpSocket,
		refCount:  1,
	}
	if err := systemSetupUDPSocket(sm); err != nil {
		_ = udpSocket.Close()
		return nil, err
	}

	cfg := opts.cfg
	if maxPayload := int(GetUDPMTU(udpSocket.LocalAddr().(*net.UDPAddr))) - arq.HeaderSize - arq.MaxSackBlocks*arq.SackBlockSize; cfg.MaxPayload > maxPayload {
		// keep datagrams under the path MTU; fragmentation would defeat
		// the per-packet loss recovery model
		cfg.MaxPayload = maxPayload
	}
	sm.mux = arq.NewMux(cfg, opts.logger.WithName("mux"), sm.transmit, backlog)
	sm.group = new(errgroup.Group)
	return sm, nil
}

func (sm *socketManager) start() {
	sm.group.Go(sm.readLoop)
}

// readLoop is the socket I/O loop: it owns all reads from the UDP socket
// and demultiplexes by connection ID via the mux. Payload bytes are copied
// out during decode, so the read buffer is reused.
func (sm *socketManager) readLoop() error {
	buf := make([]byte, 65535)
	for {
		n, from, err := sm.udpSocket.ReadFromUDP(buf)
		if err != nil {
			if sm.isClosing() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			sm.log.V(1).Info("udp read error", "err", err.Error())
			continue
		}
		sm.mux.HandleDatagram(buf[:n], from)
	}
}

// transmit is the single raw send path; connections call it concurrently.
func (sm *socketManager) transmit(data []byte, addr *net.UDPAddr) error {
	sm.sendMu.Lock()
	defer sm.sendMu.Unlock()
	_, err := sm.udpSocket.WriteToUDP(data, addr)
	return err
}

func (sm *socketManager) isClosing() bool {
	sm.refMu.Lock()
	defer sm.refMu.Unlock()
	return sm.closing
}

func (sm *socketManager) incref() {
	sm.refMu.Lock()
	sm.refCount++
	sm.refMu.Unlock()
}

func (sm *socketManager) decref() error {
	sm.refMu.Lock()
	sm.refCount--
	last := sm.refCount == 0
	if last {
		sm.closing = true
	}
	sm.refMu.Unlock()
	if !last {
		return nil
	}

	sm.mux.Close()
	err := sm.udpSocket.Close()
	if werr := sm.group.Wait(); werr != nil && err == nil {
		err = werr
	}
	sm.refMu.Lock()
	sm.closeErr = err
	sm.refMu.Unlock()
	return err
}
