// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package arq

import (
	"encoding/binary"
	"fmt"
)

// Wire format: a 20-byte fixed header in network byte order, then an optional
// SACK extension (present iff the ACK flag is set; 0 to 4 blocks of 8 bytes
// each), then the payload.
//
//	offset  size  field
//	0       1     version (currently 1)
//	1       1     flags (SYN/ACK/FIN/RST bitmask)
//	2       4     connection ID
//	6       4     sequence number
//	10      4     cumulative ack (highest contiguous sequence received)
//	14      2     advertised receive window, in packets
//	16      2     payload length in bytes
//	18      2     checksum over the whole datagram (checksum field zeroed)

const (
	// ProtocolVersion is the only wire version this implementation speaks.
	ProtocolVersion = 1

	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 20

	// SackBlockSize is the encoded size of one SACK block.
	SackBlockSize = 8

	// MaxSackBlocks bounds the SACK extension; with more non-contiguous
	// ranges outstanding the receiver picks per sackBlocks' policy.
	MaxSackBlocks = 4
)

// PacketFlag is the header flags bitmask.
type PacketFlag uint8

const (
	FlagSYN PacketFlag = 0x01
	FlagACK PacketFlag = 0x02
	FlagFIN PacketFlag = 0x04
	FlagRST PacketFlag = 0x08
)

var flagNames = []struct {
	flag PacketFlag
	name string
}{
	{FlagSYN, "SYN"},
	{FlagACK, "ACK"},
	{FlagFIN, "FIN"},
	{FlagRST, "RST"},
}

func (f PacketFlag) String() string {
	if f == 0 {
		return "DATA"
	}
	s := ""
	for _, fn := range flagNames {
		if f&fn.flag == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += fn.name
	}
	return s
}

// SackBlock is one selectively-acknowledged range; both ends inclusive.
type SackBlock struct {
	Start uint32
	End   uint32
}

// Packet is one decoded datagram. Immutable once handed to Encode.
type Packet struct {
	Version uint8
	Flags   PacketFlag
	ConnID  uint32
	Seq     uint32
	Ack     uint32
	Window  uint16
	Sacks   []SackBlock
	Payload []byte
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s conn=%d seq=%d ack=%d wnd=%d len=%d sacks=%v",
		p.Flags, p.ConnID, p.Seq, p.Ack, p.Window, len(p.Payload), p.Sacks)
}

// checksum computes the 16-bit Internet checksum (RFC 1071) over data.
func checksum(data []byte) uint16 {
	var sum uint32
	n := len(data) &^ 1
	for i := 0; i < n; i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	if len(data)%2 == 1 {
		sum += uint32(data[len(data)-1]) << 8
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// Encode serializes the packet with a freshly computed checksum. The SACK
// extension is only emitted when the ACK flag is set; Encode refuses to
// encode blocks without it rather than silently producing an undecodable
// datagram.
func (p *Packet) Encode() ([]byte, error) {
	if len(p.Sacks) > MaxSackBlocks {
		return nil, fmt.Errorf("%w: %d SACK blocks (max %d)", ErrProtocolViolation, len(p.Sacks), MaxSackBlocks)
	}
	if len(p.Sacks) > 0 && p.Flags&FlagACK == 0 {
		return nil, fmt.Errorf("%w: SACK blocks without ACK flag", ErrProtocolViolation)
	}
	if len(p.Payload) > 0xFFFF {
		return nil, fmt.Errorf("%w: payload of %d bytes overflows length field", ErrProtocolViolation, len(p.Payload))
	}

	buf := make([]byte, HeaderSize+len(p.Sacks)*SackBlockSize+len(p.Payload))
	buf[0] = p.Version
	buf[1] = byte(p.Flags)
	binary.BigEndian.PutUint32(buf[2:6], p.ConnID)
	binary.BigEndian.PutUint32(buf[6:10], p.Seq)
	binary.BigEndian.PutUint32(buf[10:14], p.Ack)
	binary.BigEndian.PutUint16(buf[14:16], p.Window)
	binary.BigEndian.PutUint16(buf[16:18], uint16(len(p.Payload)))
	// checksum field stays zero while summing

	off := HeaderSize
	for _, b := range p.Sacks {
		binary.BigEndian.PutUint32(buf[off:off+4], b.Start)
		binary.BigEndian.PutUint32(buf[off+4:off+8], b.End)
		off += SackBlockSize
	}
	copy(buf[off:], p.Payload)

	binary.BigEndian.PutUint16(buf[18:20], checksum(buf))
	return buf, nil
}

// Decode parses and verifies one datagram. It returns ErrCorruptPacket on a
// checksum mismatch and ErrProtocolViolation for structural problems; in
// both cases the caller should drop the datagram.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d-byte datagram shorter than header", ErrProtocolViolation, len(data))
	}
	// A correct datagram checksums to zero when the stored checksum is
	// included in the sum.
	if checksum(data) != 0 {
		return nil, ErrCorruptPacket
	}

	p := &Packet{
		Version: data[0],
		Flags:   PacketFlag(data[1]),
		ConnID:  binary.BigEndian.Uint32(data[2:6]),
		Seq:     binary.BigEndian.Uint32(data[6:10]),
		Ack:     binary.BigEndian.Uint32(data[10:14]),
		Window:  binary.BigEndian.Uint16(data[14:16]),
	}
	if p.Version != ProtocolVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrProtocolViolation, p.Version)
	}

	payloadLen := int(binary.BigEndian.Uint16(data[16:18]))
	rest := len(data) - HeaderSize
	sackBytes := rest - payloadLen
	if sackBytes < 0 {
		return nil, fmt.Errorf("%w: length field %d exceeds datagram", ErrProtocolViolation, payloadLen)
	}
	if p.Flags&FlagACK == 0 {
		if sackBytes != 0 {
			return nil, fmt.Errorf("%w: %d trailing bytes on non-ACK packet", ErrProtocolViolation, sackBytes)
		}
	} else {
		if sackBytes%SackBlockSize != 0 || sackBytes > MaxSackBlocks*SackBlockSize {
			return nil, fmt.Errorf("%w: bad SACK extension length %d", ErrProtocolViolation, sackBytes)
		}
	}

	off := HeaderSize
	for i := 0; i < sackBytes/SackBlockSize; i++ {
		b := SackBlock{
			Start: binary.BigEndian.Uint32(data[off : off+4]),
			End:   binary.BigEndian.Uint32(data[off+4 : off+8]),
		}
		if seqLess(b.End, b.Start) {
			return nil, fmt.Errorf("%w: inverted SACK block [%d,%d]", ErrProtocolViolation, b.Start, b.End)
		}
		p.Sacks = append(p.Sacks, b)
		off += SackBlockSize
	}

	if payloadLen > 0 {
		p.Payload = make([]byte, payloadLen)
		copy(p.Payload, data[off:])
	}

	// A SYN carries no data; anything else piggybacked on it is a peer bug
	// or an attack, not something to guess our way around.
	if p.Flags&FlagSYN != 0 && payloadLen > 0 {
		return nil, fmt.Errorf("%w: %d payload bytes on SYN", ErrProtocolViolation, payloadLen)
	}

	return p, nil
}
