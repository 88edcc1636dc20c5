// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package arq

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/ruftio/ruft-go/buffers"
)

// flightEntry is one transmitted, not-yet-acknowledged packet. Entries leave
// inFlight only through acknowledgment (cumulative or selective) or
// connection teardown.
type flightEntry struct {
	seq     uint32
	payload []byte
	flags   PacketFlag
	sentAt  time.Time
	retries int
}

// sender runs the Selective-Repeat send side for one connection: it owns the
// send window, the in-flight map, the pending-segment queue and the RTO
// estimator. It holds no lock of its own; every method is called under the
// owning connection's mutex.
type sender struct {
	log logr.Logger
	cfg Config

	nextSeq uint32 // next sequence number to assign
	base    uint32 // oldest unacknowledged sequence

	inFlight map[uint32]*flightEntry
	timers   *timerQueue

	// pending holds segments accepted by Send but not yet admitted to the
	// window, oldest first.
	pending *buffers.SyncQueue

	// peerWindow is the receive window most recently advertised by the
	// peer, in packets. Until the handshake completes only the handshake
	// packet itself may be in flight.
	peerWindow uint16

	rto rtoEstimator
}

func newSender(cfg Config, log logr.Logger) *sender {
	return &sender{
		log:        log,
		cfg:        cfg,
		inFlight:   make(map[uint32]*flightEntry),
		timers:     newTimerQueue(),
		pending:    buffers.NewSyncQueue(cfg.SendQueueLimit),
		peerWindow: 1,
		rto:        newRTOEstimator(cfg),
	}
}

// windowLimit is the number of packets allowed in flight right now.
func (s *sender) windowLimit() int {
	limit := int(s.peerWindow)
	if limit > s.cfg.MaxFlight {
		limit = s.cfg.MaxFlight
	}
	return limit
}

func (s *sender) hasCapacity() bool {
	return len(s.inFlight) < s.windowLimit()
}

// admit assigns the next sequence number to payload, tracks it in flight and
// starts its retransmission timer. The caller transmits the returned entry.
func (s *sender) admit(payload []byte, flags PacketFlag, now time.Time) *flightEntry {
	e := &flightEntry{
		seq:     s.nextSeq,
		payload: payload,
		flags:   flags,
		sentAt:  now,
	}
	s.nextSeq++
	s.inFlight[e.seq] = e
	s.timers.schedule(e.seq, now.Add(s.rto.rto()))
	return e
}

// enqueue splits payload into segments and queues them for admission. It
// does not transmit; the caller follows up with fillWindow. Queue exhaustion
// surfaces as ErrSendBufferFull with none of the payload accepted.
func (s *sender) enqueue(payload []byte) error {
	segments := (len(payload) + s.cfg.MaxPayload - 1) / s.cfg.MaxPayload
	if s.pending.Len()+segments > s.pending.Cap() {
		return ErrSendBufferFull
	}
	for off := 0; off < len(payload); off += s.cfg.MaxPayload {
		end := off + s.cfg.MaxPayload
		if end > len(payload) {
			end = len(payload)
		}
		seg := make([]byte, end-off)
		copy(seg, payload[off:end])
		if err := s.pending.TryPush(seg); err != nil {
			// capacity was checked above; only a concurrent Close gets here
			return err
		}
	}
	return nil
}

// fillWindow admits queued segments, oldest first, while the window has
// room, returning the entries to transmit.
func (s *sender) fillWindow(now time.Time) []*flightEntry {
	var out []*flightEntry
	for s.hasCapacity() {
		seg, ok := s.pending.TryPop()
		if !ok {
			break
		}
		out = append(out, s.admit(seg, 0, now))
	}
	return out
}

// handleAck processes a cumulative ack plus optional SACK blocks. Every
// covered in-flight entry is released and its timer canceled; the send
// window base advances to the lowest remaining unacknowledged sequence. The
// RTT estimator is fed from the earliest newly-resolved entry that was never
// retransmitted.
func (s *sender) handleAck(ack uint32, sacks []SackBlock, window uint16, now time.Time) (acked int) {
	s.peerWindow = window

	var sample time.Duration
	var sampleSeq uint32
	haveSample := false

	covered := func(seq uint32) bool {
		if seqLEq(seq, ack) {
			return true
		}
		for _, b := range sacks {
			if seqLEq(b.Start, seq) && seqLEq(seq, b.End) {
				return true
			}
		}
		return false
	}

	for seq, e := range s.inFlight {
		if !covered(seq) {
			continue
		}
		if e.retries == 0 && (!haveSample || seqLess(seq, sampleSeq)) {
			sample = now.Sub(e.sentAt)
			sampleSeq = seq
			haveSample = true
		}
		delete(s.inFlight, seq)
		s.timers.cancel(seq)
		acked++
	}

	if haveSample {
		s.rto.observe(sample)
	}
	s.advanceBase()
	return acked
}

// advanceBase moves base to the lowest outstanding sequence, or to nextSeq
// when nothing is in flight.
func (s *sender) advanceBase() {
	if len(s.inFlight) == 0 {
		s.base = s.nextSeq
		return
	}
	first := true
	for seq := range s.inFlight {
		if first || seqLess(seq, s.base) {
			s.base = seq
			first = false
		}
	}
}

// retryBudget returns the retransmission budget for an entry: handshake
// packets run on the (shorter) handshake budget.
func (s *sender) retryBudget(e *flightEntry) (budget int, exhausted error) {
	if e.flags&FlagSYN != 0 {
		return s.cfg.HandshakeRetries, ErrHandshakeTimeout
	}
	return s.cfg.MaxRetries, ErrConnectionLost
}

// expire handles one fired retransmission timer. It retransmits exactly the
// one packet (never the rest of the window), with exponentially backed-off
// rescheduling. When the budget is exhausted it returns the terminal error
// for the connection.
func (s *sender) expire(seq uint32, now time.Time) (*flightEntry, error) {
	e, ok := s.inFlight[seq]
	if !ok {
		// acked between firing and processing
		return nil, nil
	}
	budget, exhausted := s.retryBudget(e)
	if e.retries >= budget {
		return nil, exhausted
	}
	e.retries++
	e.sentAt = now
	s.timers.schedule(seq, now.Add(s.rto.backoff(e.retries)))
	s.log.V(1).Info("retransmitting", "seq", seq, "retries", e.retries)
	return e, nil
}

// nextDeadline exposes the earliest pending retransmission deadline.
func (s *sender) nextDeadline() (time.Time, bool) {
	return s.timers.next()
}

// release discards all send-side state; used on teardown.
func (s *sender) release() {
	s.timers.reset()
	s.inFlight = make(map[uint32]*flightEntry)
	s.pending.Close()
}
