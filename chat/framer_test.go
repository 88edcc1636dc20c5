// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, f *Framer) []string {
	t.Helper()
	var lines []string
	for {
		line, ok, err := f.Next()
		require.NoError(t, err)
		if !ok {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestFramerWholeLines(t *testing.T) {
	f := NewFramer()
	require.NoError(t, f.Push([]byte("NICK alice\nJOIN lobby\n")))
	assert.Equal(t, []string{"NICK alice", "JOIN lobby"}, collect(t, f))
}

func TestFramerFragmentedLine(t *testing.T) {
	f := NewFramer()
	require.NoError(t, f.Push([]byte("MSG lob")))
	assert.Empty(t, collect(t, f), "no newline, no line")

	require.NoError(t, f.Push([]byte("by hel")))
	assert.Empty(t, collect(t, f))

	require.NoError(t, f.Push([]byte("lo\nWHO")))
	assert.Equal(t, []string{"MSG lobby hello"}, collect(t, f))

	require.NoError(t, f.Push([]byte(" lobby\n")))
	assert.Equal(t, []string{"WHO lobby"}, collect(t, f))
}

func TestFramerCRLF(t *testing.T) {
	f := NewFramer()
	require.NoError(t, f.Push([]byte("QUIT\r\n")))
	assert.Equal(t, []string{"QUIT"}, collect(t, f))
}

func TestFramerEmptyLines(t *testing.T) {
	f := NewFramer()
	require.NoError(t, f.Push([]byte("\n\nJOIN a\n")))
	assert.Equal(t, []string{"", "", "JOIN a"}, collect(t, f))
}

func TestFramerLineTooLong(t *testing.T) {
	f := NewFramer()
	require.NoError(t, f.Push([]byte(strings.Repeat("x", maxLineLen+1))))
	_, _, err := f.Next()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestFramerOverflow(t *testing.T) {
	f := NewFramer()
	require.NoError(t, f.Push(make([]byte, framerCapacity)))
	assert.ErrorIs(t, f.Push([]byte("x")), ErrLineTooLong)
}
