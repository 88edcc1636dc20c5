// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package chat

import (
	"github.com/pkg/errors"
	"github.com/smallnest/ringbuffer"
)

const (
	framerCapacity = 64 * 1024
	maxLineLen     = 8 * 1024
)

// ErrLineTooLong is returned when a peer never terminates a line; the
// session should be dropped, there is no way to resynchronize.
var ErrLineTooLong = errors.New("chat: line exceeds maximum length")

// Framer reassembles the transport's message payloads into newline-framed
// lines. The transport guarantees ordered delivery but says nothing about
// message boundaries lining up with lines; a payload may hold a fragment of
// a line or several lines at once.
//
// Not safe for concurrent use; each session owns one Framer.
type Framer struct {
	buf     *ringbuffer.RingBuffer
	partial []byte
}

func NewFramer() *Framer {
	return &Framer{buf: ringbuffer.New(framerCapacity)}
}

// Push appends one transport payload to the framer.
func (f *Framer) Push(chunk []byte) error {
	if f.buf.Free() < len(chunk) {
		// a cooperating peer is throttled by the transport window long
		// before this fills; overflow means the session stopped draining
		return ErrLineTooLong
	}
	_, err := f.buf.Write(chunk)
	return errors.Wrap(err, "chat: framer push")
}

// Next returns the next complete line without its terminator, or ok=false
// when no full line is buffered yet. A trailing carriage return is stripped.
func (f *Framer) Next() (line string, ok bool, err error) {
	for !f.buf.IsEmpty() {
		b, err := f.buf.ReadByte()
		if err != nil {
			return "", false, errors.Wrap(err, "chat: framer read")
		}
		if b == '\n' {
			l := f.partial
			f.partial = nil
			if n := len(l); n > 0 && l[n-1] == '\r' {
				l = l[:n-1]
			}
			return string(l), true, nil
		}
		f.partial = append(f.partial, b)
		if len(f.partial) > maxLineLen {
			return "", false, ErrLineTooLong
		}
	}
	return "", false, nil
}
