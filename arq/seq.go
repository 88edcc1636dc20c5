// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package arq

// Sequence numbers are 32 bits and wrap. All comparisons in this package go
// through these helpers; plain < or > on two sequence numbers is a bug once
// a connection crosses the 2^32 boundary.

// seqLess reports whether a precedes b in sequence space.
func seqLess(a, b uint32) bool {
	return int32(a-b) < 0
}

// seqLEq reports whether a precedes or equals b in sequence space.
func seqLEq(a, b uint32) bool {
	return int32(a-b) <= 0
}

// seqDiff returns the signed distance from b to a. The result is only
// meaningful when the two sequence numbers are within 2^31 of each other,
// which window bounds guarantee everywhere this is used.
func seqDiff(a, b uint32) int32 {
	return int32(a - b)
}
