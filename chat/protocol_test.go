// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("NICK alice")
	require.NoError(t, err)
	assert.Equal(t, Command{Verb: VerbNick, Name: "alice"}, cmd)

	cmd, err = ParseCommand("JOIN lobby")
	require.NoError(t, err)
	assert.Equal(t, Command{Verb: VerbJoin, Room: "lobby"}, cmd)

	cmd, err = ParseCommand("MSG lobby hello there, everyone")
	require.NoError(t, err)
	assert.Equal(t, Command{Verb: VerbMsg, Room: "lobby", Text: "hello there, everyone"}, cmd)

	cmd, err = ParseCommand("QUIT")
	require.NoError(t, err)
	assert.Equal(t, Command{Verb: VerbQuit}, cmd)
}

func TestParseCommandErrors(t *testing.T) {
	for _, line := range []string{
		"",
		"BOGUS x",
		"NICK",
		"NICK two words",
		"NICK " + strings.Repeat("x", 64),
		"JOIN",
		"MSG lobby",
		"MSG",
		"QUIT now",
	} {
		_, err := ParseCommand(line)
		assert.Error(t, err, "line %q must not parse", line)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	for _, cmd := range []Command{
		{Verb: VerbNick, Name: "bob"},
		{Verb: VerbJoin, Room: "ops"},
		{Verb: VerbLeave, Room: "ops"},
		{Verb: VerbMsg, Room: "ops", Text: "deploy at  noon"},
		{Verb: VerbWho, Room: "ops"},
		{Verb: VerbQuit},
	} {
		got, err := ParseCommand(cmd.String())
		require.NoError(t, err, "command %q", cmd.String())
		assert.Equal(t, cmd, got)
	}
}

func TestParseReply(t *testing.T) {
	r, err := ParseReply("MSG lobby alice good morning")
	require.NoError(t, err)
	assert.Equal(t, Reply{Verb: VerbMsg, Room: "lobby", Nick: "alice", Text: "good morning"}, r)

	r, err = ParseReply("ERR nick-taken alice")
	require.NoError(t, err)
	assert.Equal(t, Reply{Verb: VerbErr, Code: CodeNickTaken, Text: "alice"}, r)

	r, err = ParseReply("USERS lobby alice bob carol")
	require.NoError(t, err)
	assert.Equal(t, Reply{Verb: VerbUsers, Room: "lobby", Users: []string{"alice", "bob", "carol"}}, r)

	r, err = ParseReply("JOINED lobby dave")
	require.NoError(t, err)
	assert.Equal(t, Reply{Verb: VerbJoined, Room: "lobby", Nick: "dave"}, r)
}

func TestParseReplyErrors(t *testing.T) {
	for _, line := range []string{
		"",
		"NOPE",
		"ERR",
		"MSG lobby",
		"JOINED lobby",
		"USERS",
	} {
		_, err := ParseReply(line)
		assert.Error(t, err, "line %q must not parse", line)
	}
}

func TestReplyRoundTrip(t *testing.T) {
	for _, r := range []Reply{
		{Verb: VerbOK, Text: "joined lobby"},
		{Verb: VerbErr, Code: CodeNotInRoom, Text: "lobby"},
		{Verb: VerbMsg, Room: "lobby", Nick: "eve", Text: "anyone here?"},
		{Verb: VerbLeft, Room: "lobby", Nick: "eve"},
		{Verb: VerbUsers, Room: "lobby", Users: []string{"a", "b"}},
	} {
		got, err := ParseReply(r.String())
		require.NoError(t, err, "reply %q", r.String())
		assert.Equal(t, r, got)
	}
}
