// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package arq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	p := &Packet{
		Version: ProtocolVersion,
		Flags:   FlagACK,
		ConnID:  0xdeadbeef,
		Seq:     42,
		Ack:     41,
		Window:  128,
		Sacks:   []SackBlock{{Start: 44, End: 45}, {Start: 48, End: 48}},
		Payload: []byte("hello over an unreliable wire"),
	}
	data, err := p.Encode()
	require.NoError(t, err)
	require.Len(t, data, HeaderSize+2*SackBlockSize+len(p.Payload))

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, p.Flags, got.Flags)
	assert.Equal(t, p.ConnID, got.ConnID)
	assert.Equal(t, p.Seq, got.Seq)
	assert.Equal(t, p.Ack, got.Ack)
	assert.Equal(t, p.Window, got.Window)
	assert.Equal(t, p.Sacks, got.Sacks)
	assert.Equal(t, p.Payload, got.Payload)
}

func TestPacketRoundTripAtWrap(t *testing.T) {
	p := &Packet{
		Version: ProtocolVersion,
		Flags:   FlagACK,
		ConnID:  7,
		Seq:     0xffffffff,
		Ack:     0xfffffffe,
		Window:  1,
		Sacks:   []SackBlock{{Start: 0xffffffff, End: 0x00000001}},
		Payload: []byte{0x00},
	}
	data, err := p.Encode()
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, p.Seq, got.Seq)
	assert.Equal(t, p.Sacks, got.Sacks)
}

func TestPacketBareHeader(t *testing.T) {
	p := &Packet{Version: ProtocolVersion, Flags: FlagRST, ConnID: 3, Seq: 9}
	data, err := p.Encode()
	require.NoError(t, err)
	require.Len(t, data, HeaderSize)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Nil(t, got.Payload)
	assert.Nil(t, got.Sacks)
}

func TestDecodeCorruption(t *testing.T) {
	p := &Packet{Version: ProtocolVersion, Flags: FlagACK, ConnID: 1, Seq: 2, Ack: 1, Payload: []byte("xyz")}
	data, err := p.Encode()
	require.NoError(t, err)

	for i := range data {
		flipped := append([]byte(nil), data...)
		flipped[i] ^= 0x40
		_, err := Decode(flipped)
		assert.Error(t, err, "bit flip at byte %d must not decode", i)
	}
}

func TestDecodeViolations(t *testing.T) {
	encode := func(p *Packet) []byte {
		data, err := p.Encode()
		require.NoError(t, err)
		return data
	}
	// checksum is recomputed after each structural mangle so the error is
	// the structural one, not ErrCorruptPacket
	resum := func(data []byte) []byte {
		data[18], data[19] = 0, 0
		s := checksum(data)
		data[18], data[19] = byte(s>>8), byte(s)
		return data
	}

	t.Run("short header", func(t *testing.T) {
		_, err := Decode(make([]byte, HeaderSize-1))
		assert.ErrorIs(t, err, ErrProtocolViolation)
	})

	t.Run("bad version", func(t *testing.T) {
		data := encode(&Packet{Version: ProtocolVersion, Flags: FlagACK})
		data[0] = 2
		_, err := Decode(resum(data))
		assert.ErrorIs(t, err, ErrProtocolViolation)
	})

	t.Run("trailing bytes without ACK", func(t *testing.T) {
		data := encode(&Packet{Version: ProtocolVersion, Seq: 1, Payload: []byte("abc")})
		// shrink the length field so 3 payload bytes look like trailers
		data[16], data[17] = 0, 0
		_, err := Decode(resum(data))
		assert.ErrorIs(t, err, ErrProtocolViolation)
	})

	t.Run("ragged SACK extension", func(t *testing.T) {
		data := encode(&Packet{Version: ProtocolVersion, Flags: FlagACK})
		data = append(data, 1, 2, 3)
		_, err := Decode(resum(data))
		assert.ErrorIs(t, err, ErrProtocolViolation)
	})

	t.Run("too many SACK blocks", func(t *testing.T) {
		data := encode(&Packet{Version: ProtocolVersion, Flags: FlagACK})
		data = append(data, make([]byte, (MaxSackBlocks+1)*SackBlockSize)...)
		_, err := Decode(resum(data))
		assert.ErrorIs(t, err, ErrProtocolViolation)
	})

	t.Run("inverted SACK block", func(t *testing.T) {
		data := encode(&Packet{
			Version: ProtocolVersion,
			Flags:   FlagACK,
			Sacks:   []SackBlock{{Start: 10, End: 10}},
		})
		// swap start and end on the wire
		copy(data[HeaderSize:HeaderSize+4], []byte{0, 0, 0, 10})
		copy(data[HeaderSize+4:HeaderSize+8], []byte{0, 0, 0, 5})
		_, err := Decode(resum(data))
		assert.ErrorIs(t, err, ErrProtocolViolation)
	})

	t.Run("length beyond datagram", func(t *testing.T) {
		data := encode(&Packet{Version: ProtocolVersion, Seq: 1})
		data[16], data[17] = 0xff, 0xff
		_, err := Decode(resum(data))
		assert.ErrorIs(t, err, ErrProtocolViolation)
	})

	t.Run("payload on SYN", func(t *testing.T) {
		data := encode(&Packet{Version: ProtocolVersion, Flags: FlagACK, Payload: []byte("x")})
		data[1] = byte(FlagSYN | FlagACK)
		_, err := Decode(resum(data))
		assert.ErrorIs(t, err, ErrProtocolViolation)
	})
}

func TestEncodeRefusals(t *testing.T) {
	_, err := (&Packet{Version: ProtocolVersion, Sacks: []SackBlock{{Start: 1, End: 1}}}).Encode()
	assert.ErrorIs(t, err, ErrProtocolViolation)

	tooMany := make([]SackBlock, MaxSackBlocks+1)
	_, err = (&Packet{Version: ProtocolVersion, Flags: FlagACK, Sacks: tooMany}).Encode()
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestFlagString(t *testing.T) {
	assert.Equal(t, "DATA", PacketFlag(0).String())
	assert.Equal(t, "SYN|ACK", (FlagSYN | FlagACK).String())
	assert.Equal(t, "FIN|RST", (FlagFIN | FlagRST).String())
}
