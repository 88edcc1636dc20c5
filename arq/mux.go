// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package arq

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"net"
	"sync"

	"github.com/go-logr/logr"
)

// Mux routes inbound datagrams to connections by connection ID. It is the
// arena for all live connection state on one UDP endpoint: connections enter
// on handshake and leave on teardown, and there is no state outside the
// arena. The mux never holds its own lock while dispatching into a
// connection, so distinct connections are processed in parallel.
type Mux struct {
	cfg      Config
	log      logr.Logger
	transmit TransmitFunc

	mu sync.Mutex
	// conns is keyed by connection ID. Client connections appear here only
	// after they adopt the server-assigned ID.
	conns map[uint32]*Conn
	// handshaking is keyed by remote address, covering the window where a
	// connection has no usable ID yet (client before SYN-ACK) and server
	// SYN dedup.
	handshaking map[string]*Conn
	closed      bool

	// accepted receives server connections once their handshake completes;
	// nil on a client-only mux, in which case inbound SYNs are dropped.
	accepted chan *Conn
}

// NewMux creates a mux over transmit. backlog > 0 enables accepting inbound
// connections with that many completed handshakes buffered.
func NewMux(cfg Config, log logr.Logger, transmit TransmitFunc, backlog int) *Mux {
	m := &Mux{
		cfg:         cfg.withDefaults(),
		log:         log,
		transmit:    transmit,
		conns:       make(map[uint32]*Conn),
		handshaking: make(map[string]*Conn),
	}
	if backlog > 0 {
		m.accepted = make(chan *Conn, backlog)
	}
	return m
}

// Accepted yields inbound connections whose handshake has completed.
func (m *Mux) Accepted() <-chan *Conn { return m.accepted }

// Connect creates a client connection to remote and starts its handshake.
// The caller waits on WaitEstablished.
func (m *Mux) Connect(remote *net.UDPAddr) (*Conn, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	key := remote.String()
	if _, busy := m.handshaking[key]; busy {
		m.mu.Unlock()
		return nil, errors.New("arq: handshake to this address already in progress")
	}
	c := newConn(m.cfg, m.log.WithName("conn"), false, 0, remote, m.transmit)
	c.onTerminated = m.remove
	m.handshaking[key] = c
	m.mu.Unlock()

	c.startConnect()
	return c, nil
}

// HandleDatagram decodes and routes one inbound datagram. Undecodable
// datagrams are dropped: a checksum mismatch is indistinguishable from loss
// and the sender's timer will cover it.
func (m *Mux) HandleDatagram(data []byte, from *net.UDPAddr) {
	p, err := Decode(data)
	if err != nil {
		m.log.V(1).Info("dropping datagram", "from", from.String(), "err", err.Error())
		return
	}

	if p.Flags&FlagSYN != 0 && p.Flags&FlagACK == 0 {
		m.handleSYN(p, from)
		return
	}

	if p.Flags&FlagSYN != 0 {
		// SYN-ACK: routed by address while the client has no usable ID yet.
		// Once established, the client leaves the address map, but the
		// server keeps retransmitting the SYN-ACK until its own handshake
		// completes; those retransmissions route by connection ID.
		m.mu.Lock()
		c := m.handshaking[from.String()]
		if c == nil {
			c = m.conns[p.ConnID]
		}
		m.mu.Unlock()
		if c == nil {
			return
		}
		c.handlePacket(p)
		if c.State() == StateEstablished {
			m.mu.Lock()
			delete(m.handshaking, from.String())
			m.conns[c.ID()] = c
			m.mu.Unlock()
		}
		return
	}

	m.mu.Lock()
	c := m.conns[p.ConnID]
	m.mu.Unlock()
	if c != nil {
		c.handlePacket(p)
		return
	}

	// Unknown connection ID. Data-bearing packets from stale connections
	// get an RST so the peer stops retrying; anything else is dropped.
	if p.Flags&FlagRST == 0 && (len(p.Payload) > 0 || p.Flags&FlagFIN != 0) {
		m.sendRST(p.ConnID, from)
	}
}

// handleSYN runs the server accept path.
func (m *Mux) handleSYN(p *Packet, from *net.UDPAddr) {
	m.mu.Lock()
	if m.closed || m.accepted == nil {
		m.mu.Unlock()
		return
	}
	key := from.String()
	if c := m.handshaking[key]; c != nil {
		// duplicate SYN for an in-progress handshake
		m.mu.Unlock()
		c.handlePacket(p)
		return
	}
	id, err := m.newConnIDLocked()
	if err != nil {
		m.mu.Unlock()
		m.log.Error(err, "could not allocate connection ID")
		return
	}
	c := newConn(m.cfg, m.log.WithName("conn"), true, id, from, m.transmit)
	c.onTerminated = m.remove
	c.onEstablished = m.deliverAccepted
	m.conns[id] = c
	m.handshaking[key] = c
	m.mu.Unlock()

	m.log.Info("new inbound handshake", "conn", id, "remote", key)
	c.startAccept()
}

// deliverAccepted hands a freshly established server connection to Accept,
// or aborts it when the backlog is full.
func (m *Mux) deliverAccepted(c *Conn) {
	m.mu.Lock()
	delete(m.handshaking, c.RemoteAddr().String())
	accepted := m.accepted
	closed := m.closed
	m.mu.Unlock()
	if closed {
		c.abort(ErrClosed)
		return
	}
	select {
	case accepted <- c:
	default:
		m.log.Info("accept backlog full, rejecting connection", "conn", c.ID())
		c.abort(ErrClosed)
	}
}

// remove drops a terminated connection from the arena.
func (m *Mux) remove(c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur := m.conns[c.ID()]; cur == c {
		delete(m.conns, c.ID())
	}
	key := c.RemoteAddr().String()
	if cur := m.handshaking[key]; cur == c {
		delete(m.handshaking, key)
	}
}

// Close aborts every connection and stops accepting new ones.
func (m *Mux) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conns := make([]*Conn, 0, len(m.conns)+len(m.handshaking))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	for _, c := range m.handshaking {
		conns = append(conns, c)
	}
	accepted := m.accepted
	m.mu.Unlock()

	for _, c := range conns {
		c.abort(ErrClosed)
	}
	if accepted != nil {
		close(accepted)
	}
}

// NumConns reports the number of live connections, handshaking included.
// Server-side handshakes sit in both maps; client handshakes have no ID yet
// and live only in the address map.
func (m *Mux) NumConns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.conns)
	for _, c := range m.handshaking {
		if _, ok := m.conns[c.connID]; !ok {
			n++
		}
	}
	return n
}

func (m *Mux) sendRST(connID uint32, to *net.UDPAddr) {
	p := &Packet{Version: ProtocolVersion, Flags: FlagRST, ConnID: connID}
	data, err := p.Encode()
	if err != nil {
		return
	}
	_ = m.transmit(data, to)
}

// newConnIDLocked picks a fresh nonzero connection ID; zero is the client's
// pre-handshake placeholder and must never be assigned.
func (m *Mux) newConnIDLocked() (uint32, error) {
	var buf [4]byte
	for i := 0; i < 32; i++ {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		id := binary.BigEndian.Uint32(buf[:])
		if id == 0 {
			continue
		}
		if _, taken := m.conns[id]; !taken {
			return id, nil
		}
	}
	return 0, errors.New("arq: could not find a free connection ID")
}
