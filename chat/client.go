// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	ruft "github.com/ruftio/ruft-go"
)

// Client is an interactive chat session: it merges lines typed by the user
// with events from the transport and renders server replies to out.
//
// Input lines starting with "/" are commands (/nick, /join, /leave, /who,
// /quit); anything else is sent as a message to the current room, which is
// the last room joined.
type Client struct {
	log    logr.Logger
	t      Transport
	framer *Framer
	out    io.Writer

	room string
}

func NewClient(log logr.Logger, t Transport, out io.Writer) *Client {
	return &Client{log: log, t: t, framer: NewFramer(), out: out}
}

// Run drives the session until the user quits, the peer disconnects, ctx is
// done, or the input stream ends.
func (c *Client) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return errors.Wrap(err, "chat: read input")
		case line := <-lines:
			quit, err := c.handleInput(line)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		case ev, ok := <-c.t.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case ruft.EventMessage:
				if err := c.consume(ev.Data); err != nil {
					return err
				}
			case ruft.EventPeerDisconnected:
				fmt.Fprintln(c.out, "* server closed the connection")
				return nil
			case ruft.EventError:
				return errors.Wrap(ev.Err, "chat: transport")
			}
		}
	}
}

func (c *Client) handleInput(line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	cmd, perr := c.parseInput(line)
	if perr != nil {
		fmt.Fprintf(c.out, "* %v\n", perr)
		return false, nil
	}
	if err := c.send(cmd); err != nil {
		return false, err
	}
	return cmd.Verb == VerbQuit, nil
}

// parseInput turns a typed line into a protocol command.
func (c *Client) parseInput(line string) (Command, error) {
	if !strings.HasPrefix(line, "/") {
		if c.room == "" {
			return Command{}, errors.New("join a room first (/join <room>)")
		}
		return Command{Verb: VerbMsg, Room: c.room, Text: line}, nil
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	switch name {
	case "nick":
		return ParseCommand(VerbNick + " " + rest)
	case "join":
		cmd, err := ParseCommand(VerbJoin + " " + rest)
		if err == nil {
			c.room = cmd.Room
		}
		return cmd, err
	case "leave":
		cmd, err := ParseCommand(VerbLeave + " " + rest)
		if err == nil && cmd.Room == c.room {
			c.room = ""
		}
		return cmd, err
	case "who":
		room := rest
		if room == "" {
			room = c.room
		}
		return ParseCommand(VerbWho + " " + room)
	case "quit":
		return Command{Verb: VerbQuit}, nil
	}
	return Command{}, errors.Errorf("unknown command /%s", name)
}

func (c *Client) send(cmd Command) error {
	return errors.Wrap(c.t.Send([]byte(cmd.String()+"\n")), "chat: send")
}

func (c *Client) consume(chunk []byte) error {
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
		c.render(line)
	}
}

// render prints one server line in a human shape; unparseable lines are
// shown raw rather than hidden.
func (c *Client) render(line string) {
	r, err := ParseReply(line)
	if err != nil {
		fmt.Fprintf(c.out, "? %s\n", line)
		return
	}
	switch r.Verb {
	case VerbOK:
		fmt.Fprintf(c.out, "* %s\n", r.Text)
	case VerbErr:
		fmt.Fprintf(c.out, "! %s: %s\n", r.Code, r.Text)
	case VerbMsg:
		fmt.Fprintf(c.out, "[%s] <%s> %s\n", r.Room, r.Nick, r.Text)
	case VerbJoined:
		fmt.Fprintf(c.out, "[%s] * %s joined\n", r.Room, r.Nick)
	case VerbLeft:
		fmt.Fprintf(c.out, "[%s] * %s left\n", r.Room, r.Nick)
	case VerbUsers:
		fmt.Fprintf(c.out, "[%s] users: %s\n", r.Room, strings.Join(r.Users, ", "))
	}
}
