// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package arq

import (
	"sort"

	"github.com/go-logr/logr"

	"github.com/ruftio/ruft-go/buffers"
)

// rcvResult classifies what happened to an inbound data packet.
type rcvResult int

const (
	rcvDelivered  rcvResult = iota // in order; delivered (plus any drained run)
	rcvBuffered                    // ahead of expected; parked in the reorder buffer
	rcvDuplicate                   // already delivered or already buffered
	rcvWindowFull                  // no room; dropped, window unchanged
)

// receiver runs the receive side for one connection: the reorder buffer, the
// cumulative/selective ack state and the in-order delivery queue. Methods
// are called under the owning connection's mutex; the delivery queue's far
// end is drained by the application's event loop.
type receiver struct {
	log logr.Logger
	cfg Config

	// expected is the next in-order sequence to deliver. The peer's SYN
	// consumes sequence 0, so data starts at 1.
	expected uint32

	// reorder holds payloads received ahead of expected. Invariant: every
	// key is > expected (in sequence space), and
	// len(reorder) + delivery.Len() <= cfg.WindowSize.
	reorder map[uint32][]byte

	// delivery is the in-order handoff to the application. Its occupancy
	// counts against the advertised window, so a slow consumer throttles
	// the peer instead of ballooning memory.
	delivery *buffers.SyncQueue
}

func newReceiver(cfg Config, log logr.Logger) *receiver {
	return &receiver{
		log:      log,
		cfg:      cfg,
		expected: 1,
		reorder:  make(map[uint32][]byte),
		delivery: buffers.NewSyncQueue(cfg.WindowSize),
	}
}

// window is the receive capacity, in packets, to advertise to the peer.
func (r *receiver) window() uint16 {
	free := r.cfg.WindowSize - len(r.reorder) - r.delivery.Len()
	if free < 0 {
		free = 0
	}
	if free > 0xFFFF {
		free = 0xFFFF
	}
	return uint16(free)
}

// handleData processes one data packet that already passed checksum and
// structural validation. Duplicates are dropped but still deserve an ack;
// the caller always acks after calling this.
func (r *receiver) handleData(seq uint32, payload []byte) rcvResult {
	if seqLess(seq, r.expected) {
		// duplicate of already-delivered data; the peer missed our ack
		return rcvDuplicate
	}
	if _, ok := r.reorder[seq]; ok {
		return rcvDuplicate
	}

	if seq == r.expected {
		if r.delivery.TryPush(payload) != nil {
			return rcvWindowFull
		}
		r.expected++
		r.drain()
		return rcvDelivered
	}

	// ahead of expected: buffer iff within the window
	if seqDiff(seq, r.expected) >= int32(r.cfg.WindowSize) || r.window() == 0 {
		return rcvWindowFull
	}
	r.reorder[seq] = payload
	return rcvBuffered
}

// drain moves the maximal contiguous run starting at expected out of the
// reorder buffer into the delivery queue. Space is guaranteed: draining
// moves items between the two window-accounted pools.
func (r *receiver) drain() {
	for {
		payload, ok := r.reorder[r.expected]
		if !ok {
			return
		}
		if r.delivery.TryPush(payload) != nil {
			return
		}
		delete(r.reorder, r.expected)
		r.expected++
	}
}

// cumAck is the cumulative acknowledgment: the highest sequence received
// with no gaps before it.
func (r *receiver) cumAck() uint32 {
	return r.expected - 1
}

// sackBlocks reports up to MaxSackBlocks ranges of non-contiguous sequences
// sitting in the reorder buffer. When more ranges exist than fit, the
// longest ranges win, ties going to the higher (most recent) start; the
// survivors are emitted in ascending sequence order.
func (r *receiver) sackBlocks() []SackBlock {
	if len(r.reorder) == 0 {
		return nil
	}
	offsets := make([]int32, 0, len(r.reorder))
	for seq := range r.reorder {
		offsets = append(offsets, seqDiff(seq, r.expected))
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	var blocks []SackBlock
	start := offsets[0]
	prev := offsets[0]
	for _, off := range offsets[1:] {
		if off == prev+1 {
			prev = off
			continue
		}
		blocks = append(blocks, SackBlock{Start: r.expected + uint32(start), End: r.expected + uint32(prev)})
		start, prev = off, off
	}
	blocks = append(blocks, SackBlock{Start: r.expected + uint32(start), End: r.expected + uint32(prev)})

	if len(blocks) > MaxSackBlocks {
		sort.SliceStable(blocks, func(i, j int) bool {
			li := seqDiff(blocks[i].End, blocks[i].Start)
			lj := seqDiff(blocks[j].End, blocks[j].Start)
			if li != lj {
				return li > lj
			}
			return seqLess(blocks[j].Start, blocks[i].Start)
		})
		blocks = blocks[:MaxSackBlocks]
		sort.Slice(blocks, func(i, j int) bool { return seqLess(blocks[i].Start, blocks[j].Start) })
	}
	return blocks
}

// release tears down receive state; queued-but-undelivered data is dropped.
func (r *receiver) release() {
	r.reorder = make(map[uint32][]byte)
	r.delivery.Close()
}
