package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/net/ipv4"
)

const (
	// PacketSize is the size in bytes of every echo request sent.
	PacketSize = 64

	// HeaderSize is the size of the ICMP echo header, also the minimum size of a reply.
	HeaderSize = 8

	timestampSize = 8

	echoCode = 0
)

// ErrTooShort is returned when a buffer cannot hold an ICMP echo header.
var ErrTooShort = errors.New("icmp packet too short")

// EchoPacket is the decoded form of an ICMP echo request or reply.
type EchoPacket struct {
	Type     ipv4.ICMPType
	Code     uint8
	Checksum uint16
	ID       uint16
	Seq      uint16

	// Timestamp is the send time embedded after the header, zero if the packet
	// carries no timestamp.
	Timestamp time.Time

	// Payload is everything after the header, timestamp included.
	Payload []byte
}

// IsEchoReply returns whether the packet is an ICMP echo reply.
func (p *EchoPacket) IsEchoReply() bool {
	return p.Type == ipv4.ICMPTypeEchoReply && p.Code == echoCode
}

// EncodeEchoRequest builds a PacketSize bytes echo request carrying ts, with its checksum set.
func EncodeEchoRequest(id, seq uint16, ts time.Time) []byte {
	b := make([]byte, PacketSize)

	b[0] = byte(ipv4.ICMPTypeEcho)
	b[1] = echoCode
	binary.BigEndian.PutUint16(b[4:6], id)
	binary.BigEndian.PutUint16(b[6:8], seq)
	binary.BigEndian.PutUint64(b[HeaderSize:HeaderSize+timestampSize], uint64(ts.UnixNano()))

	setChecksum(b)
	return b
}

// setChecksum zeroes the checksum field of an ICMP message and writes the
// checksum of the whole buffer back into it.
func setChecksum(b []byte) {
	b[2], b[3] = 0, 0
	binary.BigEndian.PutUint16(b[2:4], Checksum(b))
}

// DecodeEchoPacket parses an ICMP echo message whose IP header was already
// stripped. The checksum is returned as read and is not verified.
func DecodeEchoPacket(b []byte) (*EchoPacket, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes received of min %d", ErrTooShort, len(b), HeaderSize)
	}

	p := &EchoPacket{
		Type:     ipv4.ICMPType(b[0]),
		Code:     b[1],
		Checksum: binary.BigEndian.Uint16(b[2:4]),
		ID:       binary.BigEndian.Uint16(b[4:6]),
		Seq:      binary.BigEndian.Uint16(b[6:8]),
		Payload:  b[HeaderSize:],
	}

	if len(p.Payload) >= timestampSize {
		nsec := int64(binary.BigEndian.Uint64(p.Payload[:timestampSize]))
		p.Timestamp = time.Unix(0, nsec)
	}

	return p, nil
}
