// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package arq

import "time"

// rtoEstimator derives the retransmission timeout from smoothed RTT
// measurements, RFC 6298 style: SRTT and RTTVAR with 1/8 and 1/4 gains,
// RTO = SRTT + 4*RTTVAR clamped to [min, max].
//
// Samples from retransmitted packets must never be fed in (Karn's
// algorithm); the caller enforces that, since only it knows a packet's
// transmission count.
type rtoEstimator struct {
	srtt    time.Duration
	rttvar  time.Duration
	sampled bool

	initial time.Duration
	min     time.Duration
	max     time.Duration
}

func newRTOEstimator(cfg Config) rtoEstimator {
	return rtoEstimator{
		initial: cfg.InitialRTO,
		min:     cfg.MinRTO,
		max:     cfg.MaxRTO,
	}
}

// observe folds one RTT measurement into the estimate.
func (e *rtoEstimator) observe(rtt time.Duration) {
	if rtt <= 0 {
		return
	}
	if !e.sampled {
		e.srtt = rtt
		e.rttvar = rtt / 2
		e.sampled = true
		return
	}
	delta := rtt - e.srtt
	if delta < 0 {
		delta = -delta
	}
	e.rttvar += (delta - e.rttvar) / 4
	e.srtt += (rtt - e.srtt) / 8
}

// rto returns the current base retransmission timeout.
func (e *rtoEstimator) rto() time.Duration {
	if !e.sampled {
		return e.clamp(e.initial)
	}
	return e.clamp(e.srtt + 4*e.rttvar)
}

// backoff returns the timeout for a packet that has already been
// retransmitted retries times: rto * 2^retries, capped at max.
func (e *rtoEstimator) backoff(retries int) time.Duration {
	d := e.rto()
	for i := 0; i < retries; i++ {
		d *= 2
		if d >= e.max {
			return e.max
		}
	}
	return d
}

func (e *rtoEstimator) clamp(d time.Duration) time.Duration {
	if d < e.min {
		return e.min
	}
	if d > e.max {
		return e.max
	}
	return d
}
