// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package arq

import (
	"time"

	"github.com/google/btree"
)

// timerQueue schedules per-packet retransmission deadlines. It is a plain
// priority queue (btree ordered by deadline, then sequence number) polled by
// the connection's timer goroutine; entries never execute callbacks on their
// own, so expiry can only happen under the connection lock.
type timerQueue struct {
	tree *btree.BTreeG[timerEntry]
	// deadlines mirrors the tree for O(log n) cancellation by sequence.
	deadlines map[uint32]time.Time
}

type timerEntry struct {
	when time.Time
	seq  uint32
}

func timerEntryLess(a, b timerEntry) bool {
	if !a.when.Equal(b.when) {
		return a.when.Before(b.when)
	}
	return seqLess(a.seq, b.seq)
}

func newTimerQueue() *timerQueue {
	return &timerQueue{
		tree:      btree.NewG[timerEntry](8, timerEntryLess),
		deadlines: make(map[uint32]time.Time),
	}
}

// schedule sets or replaces the deadline for seq.
func (q *timerQueue) schedule(seq uint32, when time.Time) {
	if prev, ok := q.deadlines[seq]; ok {
		q.tree.Delete(timerEntry{when: prev, seq: seq})
	}
	q.deadlines[seq] = when
	q.tree.ReplaceOrInsert(timerEntry{when: when, seq: seq})
}

// cancel removes the deadline for seq, if any.
func (q *timerQueue) cancel(seq uint32) {
	when, ok := q.deadlines[seq]
	if !ok {
		return
	}
	delete(q.deadlines, seq)
	q.tree.Delete(timerEntry{when: when, seq: seq})
}

// next returns the earliest pending deadline.
func (q *timerQueue) next() (time.Time, bool) {
	e, ok := q.tree.Min()
	if !ok {
		return time.Time{}, false
	}
	return e.when, true
}

// popDue removes and returns every sequence whose deadline is at or before
// now, earliest first.
func (q *timerQueue) popDue(now time.Time) []uint32 {
	var due []uint32
	for {
		e, ok := q.tree.Min()
		if !ok || e.when.After(now) {
			return due
		}
		q.tree.DeleteMin()
		delete(q.deadlines, e.seq)
		due = append(due, e.seq)
	}
}

// reset discards all pending deadlines.
func (q *timerQueue) reset() {
	q.tree.Clear(false)
	q.deadlines = make(map[uint32]time.Time)
}

func (q *timerQueue) len() int {
	return q.tree.Len()
}
