package core

import "time"

// matchResult tells why a decoded packet was or was not taken as a reply.
type matchResult int

const (
	matched matchResult = iota
	notEchoReply
	foreignID
	staleSequence
)

func (r matchResult) String() string {
	switch r {
	case matched:
		return "matched"
	case notEchoReply:
		return "not an echo reply"
	case foreignID:
		return "identifier of another session"
	case staleSequence:
		return "no pending request for sequence"
	}
	return "unknown"
}

// matchReply correlates pkt to a request of the session identified by id and
// returns its round-trip time, measured up to receivedAt.
func matchReply(pkt *EchoPacket, id uint16, history *sendHistory, receivedAt time.Time) (time.Duration, matchResult) {
	if !pkt.IsEchoReply() {
		return 0, notEchoReply
	}

	if pkt.ID != id {
		return 0, foreignID
	}

	sentAt, ok := history.lookup(pkt.Seq)
	if !ok {
		return 0, staleSequence
	}

	return receivedAt.Sub(sentAt), matched
}
