package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
)

// recvBufferSize is the size of the buffer datagrams are read into.
const recvBufferSize = 4096

// Raw datagram read from the connection
type rawPacket struct {
	content    []byte
	src        net.Addr
	receivedAt time.Time
}

// recvLoop reads datagrams until ctx is done, turning the ones replying to
// this session into round trips.
func (s *Session) recvLoop(ctx context.Context) error {
	buffer := make([]byte, recvBufferSize)

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Receiver stopped")
			return nil
		default:
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(s.readWait)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("error while setting read deadline: %w", err)
		}

		length, src, err := s.conn.ReadFrom(buffer)
		if err != nil {
			switch {
			case isTimeout(err):
				s.logger.Trace("Read deadline has expired, trying again")
			case errors.Is(err, syscall.EINTR):
			case errors.Is(err, net.ErrClosed):
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("error while reading from connection: %w", err)
			default:
				s.logger.Errorf("Could not read from connection: %s", err)
			}
			continue
		}

		raw := &rawPacket{content: buffer[:length], src: src, receivedAt: time.Now()}
		s.handleRawPacket(raw)
	}
}

// handleRawPacket processes a datagram and calls the round trip handlers if
// it is a reply to this session.
func (s *Session) handleRawPacket(raw *rawPacket) {
	s.logger.Tracef("Raw packet received: %x", raw.content)

	s.setLastPeer(raw.src)

	rt, err := s.preProcessRawPacket(raw)
	if err != nil {
		s.logger.Debugf("Discarding raw packet: %s", err)
		return
	}

	if rt == nil {
		return
	}

	s.Stats.EchoReplied(rt.Time)

	for _, f := range s.rtHandlers {
		f(s, rt)
	}

	s.markReplied()
}

// preProcessRawPacket strips the IPv4 header of raw and returns the round trip
// it completes. Packets that are not replies to this session yield nil.
func (s *Session) preProcessRawPacket(raw *rawPacket) (*RoundTrip, error) {
	header, err := ipv4.ParseHeader(raw.content)
	if err != nil {
		return nil, fmt.Errorf("error parsing IPv4 header: %w", err)
	}

	payload := raw.content[header.Len:]
	if len(payload) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes received of min %d", ErrTooShort, len(payload), HeaderSize)
	}

	if s.settings.VerifyChecksum && !ValidChecksum(payload) {
		s.logger.Debugf("Received ICMP message with invalid checksum from %s", raw.src)
		return nil, nil
	}

	pkt, err := DecodeEchoPacket(payload)
	if err != nil {
		return nil, err
	}

	rtt, res := matchReply(pkt, s.id, s.history, raw.receivedAt)
	if res != matched {
		s.logger.Debugf("Ignoring ICMP message type %d id %d seq %d: %s", pkt.Type, pkt.ID, pkt.Seq, res)
		return nil, nil
	}

	return &RoundTrip{
		TTL:  header.TTL,
		Seq:  pkt.Seq,
		Len:  len(payload),
		Src:  raw.src,
		Time: rtt,
	}, nil
}

// setLastPeer stores the source of the latest datagram for display purposes.
func (s *Session) setLastPeer(src net.Addr) {
	switch addr := src.(type) {
	case *net.IPAddr:
		s.lastPeer.Store(addr)
	case *net.UDPAddr:
		s.lastPeer.Store(&net.IPAddr{IP: addr.IP, Zone: addr.Zone})
	}
}
