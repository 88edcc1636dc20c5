// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

// Package chat implements a small room-based chat protocol on top of the
// ruft transport: newline-terminated UTF-8 command lines from client to
// server, and event lines back. The transport delivers opaque message
// payloads; Framer reassembles them into lines, and this file defines the
// line grammar.
package chat

import (
	"strings"

	"github.com/pkg/errors"
)

// Client-to-server verbs.
const (
	VerbNick  = "NICK"
	VerbJoin  = "JOIN"
	VerbLeave = "LEAVE"
	VerbMsg   = "MSG"
	VerbWho   = "WHO"
	VerbQuit  = "QUIT"
)

// Server-to-client verbs.
const (
	VerbOK     = "OK"
	VerbErr    = "ERR"
	VerbJoined = "JOINED"
	VerbLeft   = "LEFT"
	VerbUsers  = "USERS"
)

// Error codes carried in ERR lines.
const (
	CodeBadCommand = "bad-command"
	CodeNickTaken  = "nick-taken"
	CodeBadName    = "bad-name"
	CodeNoNick     = "no-nick"
	CodeNotInRoom  = "not-in-room"
	CodeNoSuchRoom = "no-such-room"
)

const maxNameLen = 32

// Command is one parsed client-to-server line.
type Command struct {
	Verb string
	Room string // JOIN, LEAVE, MSG, WHO
	Name string // NICK
	Text string // MSG
}

// ParseCommand parses one client line. The text argument of MSG is the
// untouched remainder of the line, spaces included.
func ParseCommand(line string) (Command, error) {
	verb, rest, _ := strings.Cut(line, " ")
	switch verb {
	case VerbNick:
		if !validName(rest) {
			return Command{}, errors.Errorf("NICK needs a name of 1..%d characters without spaces", maxNameLen)
		}
		return Command{Verb: VerbNick, Name: rest}, nil
	case VerbJoin, VerbLeave, VerbWho:
		if !validName(rest) {
			return Command{}, errors.Errorf("%s needs a room name", verb)
		}
		return Command{Verb: verb, Room: rest}, nil
	case VerbMsg:
		room, text, ok := strings.Cut(rest, " ")
		if !ok || !validName(room) || text == "" {
			return Command{}, errors.New("MSG needs a room and a message")
		}
		return Command{Verb: VerbMsg, Room: room, Text: text}, nil
	case VerbQuit:
		if rest != "" {
			return Command{}, errors.New("QUIT takes no arguments")
		}
		return Command{Verb: VerbQuit}, nil
	}
	return Command{}, errors.Errorf("unknown command %q", verb)
}

// String renders the command back to its wire line (without the newline).
func (c Command) String() string {
	switch c.Verb {
	case VerbNick:
		return VerbNick + " " + c.Name
	case VerbJoin, VerbLeave, VerbWho:
		return c.Verb + " " + c.Room
	case VerbMsg:
		return VerbMsg + " " + c.Room + " " + c.Text
	default:
		return c.Verb
	}
}

// Reply is one server-to-client line. Which fields are meaningful depends on
// the verb; Users is only set for USERS.
type Reply struct {
	Verb  string
	Code  string // ERR
	Room  string
	Nick  string
	Text  string
	Users []string
}

// ParseReply parses one server line.
func ParseReply(line string) (Reply, error) {
	verb, rest, _ := strings.Cut(line, " ")
	switch verb {
	case VerbOK:
		return Reply{Verb: VerbOK, Text: rest}, nil
	case VerbErr:
		code, text, _ := strings.Cut(rest, " ")
		if code == "" {
			return Reply{}, errors.New("ERR without a code")
		}
		return Reply{Verb: VerbErr, Code: code, Text: text}, nil
	case VerbMsg:
		room, rest2, ok := strings.Cut(rest, " ")
		if !ok {
			return Reply{}, errors.New("malformed MSG")
		}
		nick, text, ok := strings.Cut(rest2, " ")
		if !ok {
			return Reply{}, errors.New("malformed MSG")
		}
		return Reply{Verb: VerbMsg, Room: room, Nick: nick, Text: text}, nil
	case VerbJoined, VerbLeft:
		room, nick, ok := strings.Cut(rest, " ")
		if !ok {
			return Reply{}, errors.Errorf("malformed %s", verb)
		}
		return Reply{Verb: verb, Room: room, Nick: nick}, nil
	case VerbUsers:
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return Reply{}, errors.New("USERS without a room")
		}
		return Reply{Verb: VerbUsers, Room: fields[0], Users: fields[1:]}, nil
	}
	return Reply{}, errors.Errorf("unknown reply %q", verb)
}

// String renders the reply back to its wire line (without the newline).
func (r Reply) String() string {
	switch r.Verb {
	case VerbOK:
		return VerbOK + " " + r.Text
	case VerbErr:
		return VerbErr + " " + r.Code + " " + r.Text
	case VerbMsg:
		return VerbMsg + " " + r.Room + " " + r.Nick + " " + r.Text
	case VerbJoined, VerbLeft:
		return r.Verb + " " + r.Room + " " + r.Nick
	case VerbUsers:
		return VerbUsers + " " + r.Room + " " + strings.Join(r.Users, " ")
	default:
		return r.Verb
	}
}

func validName(s string) bool {
	if s == "" || len(s) > maxNameLen {
		return false
	}
	return !strings.ContainsAny(s, " \t\r\n")
}
