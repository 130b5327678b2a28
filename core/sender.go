package core

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/net/icmp"
)

// sendLoop sends an echo request right away and then on every tick of the
// session interval. Send failures are logged and the tick is lost.
func (s *Session) sendLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		if err := s.sendEchoRequest(); err != nil {
			s.logger.Errorf("Could not send echo request: %s", err)
		}

		if s.isCountActive() && attempts >= s.settings.Count {
			s.logger.Info("Not firing more requests as we have reached the set count")
			return s.linger(ctx)
		}

		select {
		case <-ctx.Done():
			s.logger.Debug("Sender stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// linger waits for the replies of the requests still in flight.
func (s *Session) linger(ctx context.Context) error {
	s.logger.Infof("Waiting up to %s for outstanding replies", s.getTimeoutDuration())

	timeout := time.NewTimer(s.getTimeoutDuration())
	defer timeout.Stop()

	select {
	case <-ctx.Done():
	case <-s.allReplied:
	case <-timeout.C:
		s.logger.Info("Timed out waiting for outstanding replies")
	}
	return nil
}

// sendEchoRequest records the send time of the next sequence number, then
// writes its echo request to the destination.
func (s *Session) sendEchoRequest() error {
	seq := s.nextSequence()
	now := time.Now()

	s.history.record(seq, now)
	bytesmsg := EncodeEchoRequest(s.id, seq, now)

	s.logger.Tracef("Writing ICMP message %x to address %s", bytesmsg, s.dst)
	if _, err := s.conn.WriteTo(bytesmsg, s.dst); err != nil {
		return fmt.Errorf("error while sending echo request icmp_seq=%d: %w", seq, err)
	}

	s.Stats.EchoRequested()
	s.logger.Debugf("Sent echo request icmp_seq=%d, %d sent so far", seq, s.Stats.GetTotalSent())

	for _, f := range s.sendHandlers {
		f(s, seq)
	}
	return nil
}

// nextSequence returns the sequence number to use and advances the counter,
// wrapping to 0 after 65535.
func (s *Session) nextSequence() uint16 {
	seq := s.nextSeq
	s.nextSeq++
	return seq
}

// buildEchoRequest builds a sample of the next echo request, does not modify session's state.
func (s *Session) buildEchoRequest() *icmp.Message {
	msg, err := icmp.ParseMessage(icmpProtocol, EncodeEchoRequest(s.id, s.nextSeq, time.Now()))
	if err != nil {
		s.logger.WithError(err).Error("Could not build sample echo request")
		return nil
	}

	return msg
}
