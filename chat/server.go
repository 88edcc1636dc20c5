// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	ruft "github.com/ruftio/ruft-go"
)

// Transport is the slice of a ruft connection the chat layer needs. It is
// satisfied by *ruft.Conn; tests substitute an in-process fake.
type Transport interface {
	Send(payload []byte) error
	Events() <-chan ruft.Event
	Close() error
}

// Server is a room-based chat server. One session goroutine per client
// consumes that client's transport events; shared state (nicknames, room
// membership) lives behind a single mutex, which is fine at chat scale.
type Server struct {
	log logr.Logger

	mu    sync.Mutex
	nicks map[string]*session
	rooms map[string]map[*session]bool

	sessions sync.WaitGroup
}

func NewServer(log logr.Logger) *Server {
	return &Server{
		log:   log,
		nicks: make(map[string]*session),
		rooms: make(map[string]map[*session]bool),
	}
}

// Serve accepts connections until ctx is done or the listener fails, then
// waits for the remaining sessions to drain.
func (s *Server) Serve(ctx context.Context, l *ruft.Listener) error {
	defer s.sessions.Wait()
	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "chat: accept")
		}
		s.Handle(conn)
	}
}

// Handle starts a session for one client transport. Exposed separately from
// Serve so tests can drive the server without a UDP listener.
func (s *Server) Handle(t Transport) {
	sess := &session{
		srv:    s,
		t:      t,
		framer: NewFramer(),
		rooms:  make(map[string]bool),
	}
	s.sessions.Add(1)
	go sess.run()
}

type session struct {
	srv    *Server
	t      Transport
	framer *Framer

	// owned by the session goroutine except where noted
	nick  string
	rooms map[string]bool // guarded by srv.mu
}

func (c *session) run() {
	defer c.srv.sessions.Done()
	defer c.srv.dropSession(c)
	defer c.t.Close()

	for ev := range c.t.Events() {
		switch ev.Kind {
		case ruft.EventMessage:
			if err := c.consume(ev.Data); err != nil {
				c.srv.log.V(1).Info("dropping chat session", "nick", c.nick, "err", err.Error())
				return
			}
		case ruft.EventPeerDisconnected:
			return
		case ruft.EventError:
			c.srv.log.V(1).Info("chat session transport error", "nick", c.nick, "err", ev.Err.Error())
			return
		}
	}
}

func (c *session) consume(chunk []byte) error {
	if err := c.framer.Push(chunk); err != nil {
		return err
	}
	for {
		line, ok, err := c.framer.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if quit := c.handleLine(line); quit {
			return errors.New("client quit")
		}
	}
}

func (c *session) handleLine(line string) (quit bool) {
	cmd, err := ParseCommand(line)
	if err != nil {
		c.reply(Reply{Verb: VerbErr, Code: CodeBadCommand, Text: err.Error()})
		return false
	}
	switch cmd.Verb {
	case VerbNick:
		c.handleNick(cmd.Name)
	case VerbJoin:
		c.handleJoin(cmd.Room)
	case VerbLeave:
		c.handleLeave(cmd.Room)
	case VerbMsg:
		c.handleMsg(cmd.Room, cmd.Text)
	case VerbWho:
		c.handleWho(cmd.Room)
	case VerbQuit:
		c.reply(Reply{Verb: VerbOK, Text: "bye"})
		return true
	}
	return false
}

func (c *session) handleNick(name string) {
	c.srv.mu.Lock()
	if other, taken := c.srv.nicks[name]; taken && other != c {
		c.srv.mu.Unlock()
		c.reply(Reply{Verb: VerbErr, Code: CodeNickTaken, Text: name})
		return
	}
	if c.nick != "" {
		delete(c.srv.nicks, c.nick)
	}
	c.srv.nicks[name] = c
	c.nick = name
	c.srv.mu.Unlock()
	c.reply(Reply{Verb: VerbOK, Text: "nick " + name})
}

func (c *session) handleJoin(room string) {
	if c.nick == "" {
		c.reply(Reply{Verb: VerbErr, Code: CodeNoNick, Text: "set a nickname first"})
		return
	}
	c.srv.mu.Lock()
	members := c.srv.rooms[room]
	if members == nil {
		members = make(map[*session]bool)
		c.srv.rooms[room] = members
	}
	if !members[c] {
		members[c] = true
		c.rooms[room] = true
		c.srv.broadcastLocked(room, c, Reply{Verb: VerbJoined, Room: room, Nick: c.nick})
	}
	c.srv.mu.Unlock()
	c.reply(Reply{Verb: VerbOK, Text: "joined " + room})
}

func (c *session) handleLeave(room string) {
	c.srv.mu.Lock()
	if !c.rooms[room] {
		c.srv.mu.Unlock()
		c.reply(Reply{Verb: VerbErr, Code: CodeNotInRoom, Text: room})
		return
	}
	c.srv.leaveLocked(c, room)
	c.srv.mu.Unlock()
	c.reply(Reply{Verb: VerbOK, Text: "left " + room})
}

func (c *session) handleMsg(room, text string) {
	c.srv.mu.Lock()
	if !c.rooms[room] {
		c.srv.mu.Unlock()
		c.reply(Reply{Verb: VerbErr, Code: CodeNotInRoom, Text: room})
		return
	}
	c.srv.broadcastLocked(room, c, Reply{Verb: VerbMsg, Room: room, Nick: c.nick, Text: text})
	c.srv.mu.Unlock()
}

func (c *session) handleWho(room string) {
	c.srv.mu.Lock()
	members, known := c.srv.rooms[room]
	if !known {
		c.srv.mu.Unlock()
		c.reply(Reply{Verb: VerbErr, Code: CodeNoSuchRoom, Text: room})
		return
	}
	nicks := make([]string, 0, len(members))
	for m := range members {
		nicks = append(nicks, m.nick)
	}
	c.srv.mu.Unlock()
	sort.Strings(nicks)
	c.reply(Reply{Verb: VerbUsers, Room: room, Users: nicks})
}

func (c *session) reply(r Reply) {
	if err := c.t.Send([]byte(r.String() + "\n")); err != nil {
		c.srv.log.V(1).Info("chat send failed", "nick", c.nick, "err", err.Error())
	}
}

// broadcastLocked fans a reply out to every room member but from. Sends go
// through the transport's non-blocking queue, so holding the mutex across
// the loop is safe.
func (s *Server) broadcastLocked(room string, from *session, r Reply) {
	line := []byte(r.String() + "\n")
	for m := range s.rooms[room] {
		if m == from {
			continue
		}
		if err := m.t.Send(line); err != nil {
			s.log.V(1).Info("chat broadcast send failed", "nick", m.nick, "err", err.Error())
		}
	}
}

// leaveLocked removes the session from one room and tells the others.
func (s *Server) leaveLocked(c *session, room string) {
	delete(s.rooms[room], c)
	delete(c.rooms, room)
	if len(s.rooms[room]) == 0 {
		delete(s.rooms, room)
		return
	}
	s.broadcastLocked(room, c, Reply{Verb: VerbLeft, Room: room, Nick: c.nick})
}

// dropSession runs on every session exit path: presence fan-out to the
// rooms the client was in, then registry cleanup.
func (s *Server) dropSession(c *session) {
	s.mu.Lock()
	for room := range c.rooms {
		s.leaveLocked(c, room)
	}
	if c.nick != "" {
		delete(s.nicks, c.nick)
	}
	s.mu.Unlock()
}
