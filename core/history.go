package core

import (
	"sync"
	"time"
)

// historySize is the number of send times remembered by a session.
const historySize = 5

type historySlot struct {
	seq    uint16
	sentAt time.Time
	used   bool
}

// sendHistory is a ring of the send times of the latest requests, indexed by
// sequence number modulo its size. It is written by the sender and read by
// the receiver.
type sendHistory struct {
	slots [historySize]historySlot
	rwm   sync.RWMutex
}

func newSendHistory() *sendHistory {
	return &sendHistory{}
}

// record stores the send time of seq, overwriting the previous occupant of its slot.
func (h *sendHistory) record(seq uint16, sentAt time.Time) {
	h.rwm.Lock()
	defer h.rwm.Unlock()

	h.slots[seq%historySize] = historySlot{seq: seq, sentAt: sentAt, used: true}
}

// lookup returns the send time of seq. It fails when the slot was never
// written or has since been taken by a newer sequence.
func (h *sendHistory) lookup(seq uint16) (time.Time, bool) {
	h.rwm.RLock()
	defer h.rwm.RUnlock()

	slot := h.slots[seq%historySize]
	if !slot.used || slot.seq != seq {
		return time.Time{}, false
	}

	return slot.sentAt, true
}
