// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package arq

import (
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSenderConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxPayload = 10
	cfg.SendQueueLimit = 8
	cfg.MaxFlight = 4
	cfg.MaxRetries = 3
	cfg.HandshakeRetries = 2
	return cfg
}

// newTestSender returns a sender positioned after the handshake: sequence 0
// is spent and the peer has advertised a window.
func newTestSender(cfg Config, window uint16) *sender {
	s := newSender(cfg, logr.Discard())
	s.nextSeq = 1
	s.base = 1
	s.peerWindow = window
	return s
}

func TestSenderSegmentation(t *testing.T) {
	s := newTestSender(testSenderConfig(), 16)
	require.NoError(t, s.enqueue(make([]byte, 25))) // 10 + 10 + 5
	assert.Equal(t, 3, s.pending.Len())

	entries := s.fillWindow(time.Now())
	require.Len(t, entries, 3)
	assert.Equal(t, uint32(1), entries[0].seq)
	assert.Equal(t, uint32(3), entries[2].seq)
	assert.Len(t, entries[0].payload, 10)
	assert.Len(t, entries[2].payload, 5)
}

func TestSenderQueueLimitAllOrNothing(t *testing.T) {
	s := newTestSender(testSenderConfig(), 0) // closed window, nothing admitted
	require.NoError(t, s.enqueue(make([]byte, 60))) // 6 segments
	assert.ErrorIs(t, s.enqueue(make([]byte, 30)), ErrSendBufferFull)
	assert.Equal(t, 6, s.pending.Len(), "rejected payload leaves the queue untouched")
	require.NoError(t, s.enqueue(make([]byte, 20))) // 2 segments still fit
}

func TestSenderRespectsWindow(t *testing.T) {
	s := newTestSender(testSenderConfig(), 2)
	require.NoError(t, s.enqueue(make([]byte, 80)))

	entries := s.fillWindow(time.Now())
	assert.Len(t, entries, 2, "peer window of 2 admits 2 packets")
	assert.Empty(t, s.fillWindow(time.Now()), "no capacity until acked")

	// the ack opens the window and fillWindow admits the next batch
	s.handleAck(2, nil, 2, time.Now())
	entries = s.fillWindow(time.Now())
	assert.Len(t, entries, 2)
	assert.Equal(t, uint32(3), entries[0].seq)
}

func TestSenderMaxFlightCapsPeerWindow(t *testing.T) {
	s := newTestSender(testSenderConfig(), 1000)
	require.NoError(t, s.enqueue(make([]byte, 80)))
	entries := s.fillWindow(time.Now())
	assert.Len(t, entries, 4, "MaxFlight caps a generous peer window")
}

func TestSenderSelectiveAck(t *testing.T) {
	// classic scenario: packets 1..5 in flight, 3 is lost; the ack carries
	// cumulative 2 plus SACK [4,5], leaving exactly 3 outstanding
	cfg := testSenderConfig()
	cfg.MaxFlight = 8
	s := newTestSender(cfg, 8)
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.admit([]byte{byte(i)}, 0, now)
	}
	require.Len(t, s.inFlight, 5)

	acked := s.handleAck(2, []SackBlock{{Start: 4, End: 5}}, 8, now.Add(50*time.Millisecond))
	assert.Equal(t, 4, acked)
	require.Len(t, s.inFlight, 1)
	_, ok := s.inFlight[3]
	assert.True(t, ok, "only the lost packet remains in flight")
	assert.Equal(t, uint32(3), s.base)
	assert.Equal(t, 1, s.timers.len(), "acked packets lose their timers")
}

func TestSenderBaseAdvancesPastFlight(t *testing.T) {
	s := newTestSender(testSenderConfig(), 8)
	now := time.Now()
	s.admit([]byte("a"), 0, now)
	s.admit([]byte("b"), 0, now)
	s.handleAck(2, nil, 8, now)
	assert.Empty(t, s.inFlight)
	assert.Equal(t, s.nextSeq, s.base)
}

func TestSenderRTTSampleFromEarliestAck(t *testing.T) {
	s := newTestSender(testSenderConfig(), 8)
	base := time.Now()
	s.admit([]byte("a"), 0, base)                         // seq 1
	s.admit([]byte("b"), 0, base.Add(10*time.Millisecond)) // seq 2

	s.handleAck(2, nil, 8, base.Add(100*time.Millisecond))
	require.True(t, s.rto.sampled)
	assert.Equal(t, 100*time.Millisecond, s.rto.srtt, "sample comes from the earliest acked packet")
}

func TestSenderKarnExclusion(t *testing.T) {
	s := newTestSender(testSenderConfig(), 8)
	now := time.Now()
	s.admit([]byte("a"), 0, now)

	e, err := s.expire(1, now.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1, e.retries)

	// the ack may be for either transmission; no sample may be taken
	s.handleAck(1, nil, 8, now.Add(1200*time.Millisecond))
	assert.False(t, s.rto.sampled, "retransmitted packets never feed the estimator")
	assert.Empty(t, s.inFlight)
}

func TestSenderExpireBacksOff(t *testing.T) {
	s := newTestSender(testSenderConfig(), 8)
	now := time.Now()
	s.admit([]byte("a"), 0, now)

	e, err := s.expire(1, now.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, e)

	deadline, ok := s.timers.next()
	require.True(t, ok)
	// first retry reschedules at rto*2 past the expiry
	assert.Equal(t, now.Add(time.Second).Add(2*s.rto.rto()), deadline)
}

func TestSenderRetryBudgetExhaustion(t *testing.T) {
	s := newTestSender(testSenderConfig(), 8)
	now := time.Now()
	s.admit([]byte("a"), 0, now)

	var err error
	for i := 0; i < testSenderConfig().MaxRetries; i++ {
		_, err = s.expire(1, now)
		require.NoError(t, err)
	}
	_, err = s.expire(1, now)
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestSenderHandshakeBudget(t *testing.T) {
	cfg := testSenderConfig()
	s := newSender(cfg, logr.Discard())
	s.peerWindow = 1
	s.admit(nil, FlagSYN, time.Now()) // seq 0

	var err error
	for i := 0; i < cfg.HandshakeRetries; i++ {
		_, err = s.expire(0, time.Now())
		require.NoError(t, err)
	}
	_, err = s.expire(0, time.Now())
	assert.ErrorIs(t, err, ErrHandshakeTimeout)
}

func TestSenderExpireAfterAckIsNoop(t *testing.T) {
	s := newTestSender(testSenderConfig(), 8)
	now := time.Now()
	s.admit([]byte("a"), 0, now)
	s.handleAck(1, nil, 8, now)

	e, err := s.expire(1, now.Add(time.Hour))
	assert.NoError(t, err)
	assert.Nil(t, e)
}
