// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package buffers

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned once the queue has been closed and drained.
	ErrClosed = errors.New("sync queue is closed")

	// ErrFull is returned by TryPush when the queue is at capacity.
	ErrFull = errors.New("sync queue is full")
)

// SyncQueue is a bounded FIFO of byte slices, safe for concurrent use.
//
// Producers use TryPush and never block; they observe ErrFull and apply
// their own policy (the transport queues against its send window, so a full
// queue there is backpressure, not data loss). A single consumer blocks in
// PopContext; a waiter channel is parked when the queue is empty and
// signaled on the next push or on Close.
type SyncQueue struct {
	mu     sync.Mutex
	items  [][]byte
	limit  int
	closed bool

	// popWaiter is non-nil while a consumer is parked in PopContext. It has
	// capacity 1 and is signaled by the next push or Close.
	popWaiter chan struct{}
}

// NewSyncQueue returns a queue holding at most limit items.
func NewSyncQueue(limit int) *SyncQueue {
	return &SyncQueue{limit: limit}
}

// TryPush appends item without blocking.
func (q *SyncQueue) TryPush(item []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if len(q.items) >= q.limit {
		return ErrFull
	}
	q.items = append(q.items, item)
	if q.popWaiter != nil {
		select {
		case q.popWaiter <- struct{}{}:
		default:
		}
	}
	return nil
}

// TryPop removes and returns the head of the queue without blocking.
func (q *SyncQueue) TryPop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *SyncQueue) popLocked() ([]byte, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return item, true
}

// PopContext removes and returns the head of the queue, blocking until an
// item arrives, ctx is done, or the queue is closed and empty. Only one
// consumer may wait at a time.
func (q *SyncQueue) PopContext(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if item, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		waiter := make(chan struct{}, 1)
		q.popWaiter = waiter
		q.mu.Unlock()

		select {
		case <-waiter:
		case <-ctx.Done():
			q.clearWaiter(waiter)
			return nil, ctx.Err()
		}
		q.clearWaiter(waiter)
	}
}

func (q *SyncQueue) clearWaiter(waiter chan struct{}) {
	q.mu.Lock()
	if q.popWaiter == waiter {
		q.popWaiter = nil
	}
	q.mu.Unlock()
}

// Len returns the number of queued items.
func (q *SyncQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the queue's capacity.
func (q *SyncQueue) Cap() int {
	return q.limit
}

// Close marks the queue closed. Queued items remain poppable; once drained,
// PopContext returns ErrClosed. Further pushes fail immediately.
func (q *SyncQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	if q.popWaiter != nil {
		select {
		case q.popWaiter <- struct{}{}:
		default:
		}
	}
}

// Reset discards all queued items. The queue stays usable unless closed.
func (q *SyncQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
