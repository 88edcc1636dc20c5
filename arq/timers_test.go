// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package arq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerQueueOrdering(t *testing.T) {
	q := newTimerQueue()
	base := time.Now()

	q.schedule(3, base.Add(30*time.Millisecond))
	q.schedule(1, base.Add(10*time.Millisecond))
	q.schedule(2, base.Add(20*time.Millisecond))

	when, ok := q.next()
	require.True(t, ok)
	assert.Equal(t, base.Add(10*time.Millisecond), when)

	due := q.popDue(base.Add(25 * time.Millisecond))
	assert.Equal(t, []uint32{1, 2}, due)
	assert.Equal(t, 1, q.len())

	due = q.popDue(base.Add(time.Second))
	assert.Equal(t, []uint32{3}, due)
	assert.Equal(t, 0, q.len())
}

func TestTimerQueueReschedule(t *testing.T) {
	q := newTimerQueue()
	base := time.Now()

	q.schedule(7, base.Add(10*time.Millisecond))
	q.schedule(7, base.Add(50*time.Millisecond))
	require.Equal(t, 1, q.len(), "reschedule replaces, never duplicates")

	assert.Empty(t, q.popDue(base.Add(20*time.Millisecond)))
	assert.Equal(t, []uint32{7}, q.popDue(base.Add(time.Minute)))
}

func TestTimerQueueCancel(t *testing.T) {
	q := newTimerQueue()
	base := time.Now()

	q.schedule(1, base)
	q.schedule(2, base.Add(time.Millisecond))
	q.cancel(1)
	q.cancel(99) // unknown seq is a no-op

	assert.Equal(t, []uint32{2}, q.popDue(base.Add(time.Second)))

	_, ok := q.next()
	assert.False(t, ok)
}

func TestTimerQueueSameDeadline(t *testing.T) {
	q := newTimerQueue()
	when := time.Now()
	q.schedule(10, when)
	q.schedule(5, when)
	assert.Equal(t, []uint32{5, 10}, q.popDue(when), "ties break by sequence")
}

func TestTimerQueueReset(t *testing.T) {
	q := newTimerQueue()
	q.schedule(1, time.Now())
	q.schedule(2, time.Now())
	q.reset()
	assert.Equal(t, 0, q.len())
	assert.Empty(t, q.popDue(time.Now().Add(time.Hour)))
}
