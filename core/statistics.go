package core

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
)

// Statistics provides several functions to update and retrieve stats about a session
type Statistics interface {
	SessionStarted()
	SessionEnded()
	EchoRequested()
	EchoReplied(rtt time.Duration)

	GetStartTime() (time.Time, bool)
	GetEndTime() (time.Time, bool)

	GetTotalSent() uint32
	GetTotalRecv() uint32
	GetPktLoss() uint32

	GetRTTMax() time.Duration
	GetRTTMin() time.Duration
	GetRTTAvg() time.Duration
	GetRTTMDev() time.Duration

	Summary() Summary
}

// Summary is a snapshot of the statistics of a session. Counters are read one
// after the other and are not guaranteed to be taken at the same instant.
type Summary struct {
	Sent    uint32
	Recv    uint32
	Loss    uint32 // percentage
	Elapsed time.Duration

	RTTMin  time.Duration
	RTTAvg  time.Duration
	RTTMax  time.Duration
	RTTMDev time.Duration
}

// statistics aggregate stats about a session
type statistics struct {

	// totalSent is the total amount of echo requests successfully sent in this session.
	totalSent uint32

	// totalRecv is the total amount of matching echo replies received in this session.
	totalRecv uint32

	// rttsMutex controls updates to the rtt aggregates
	rttsMutex sync.RWMutex

	// rttsCount is the amount of round-trip times recorded.
	rttsCount uint64

	// rttsMin contains the smallest encountered rtt
	rttsMin time.Duration

	// rttsMax contains the largest encountered rtt
	rttsMax time.Duration

	// rttsSum is the sum of all rtts, in nanoseconds
	rttsSum float64

	// rttsSqSum is the sum of the squares of all rtts, in nanoseconds
	rttsSqSum float64

	// timeMutex controls updates to the times
	timeMutex sync.RWMutex

	// stTime contains the start time of the session
	stTime time.Time

	// started indicates whether the stTime has been initialized
	started bool

	// endTime contains the end time of the session
	endTime time.Time

	// ended indicates whether the endTime has been initialized
	ended bool
}

func (s *statistics) SessionStarted() {
	s.timeMutex.Lock()
	defer s.timeMutex.Unlock()

	s.stTime = time.Now()
	s.started = true
}

func (s *statistics) SessionEnded() {
	s.timeMutex.Lock()
	defer s.timeMutex.Unlock()

	s.endTime = time.Now()
	s.ended = true
}

func (s *statistics) EchoRequested() {
	atomic.AddUint32(&s.totalSent, 1)
}

func (s *statistics) EchoReplied(rtt time.Duration) {
	atomic.AddUint32(&s.totalRecv, 1)

	s.rttsMutex.Lock()
	defer s.rttsMutex.Unlock()

	s.rttsCount++
	s.rttsMax = max(s.rttsMax, rtt)
	s.rttsMin = min(s.rttsMin, rtt)
	s.rttsSum += float64(rtt)
	s.rttsSqSum += float64(rtt) * float64(rtt)
}

func (s *statistics) GetStartTime() (time.Time, bool) {
	s.timeMutex.RLock()
	defer s.timeMutex.RUnlock()

	return s.stTime, s.started
}

func (s *statistics) GetEndTime() (time.Time, bool) {
	s.timeMutex.RLock()
	defer s.timeMutex.RUnlock()

	return s.endTime, s.ended
}

func (s *statistics) GetTotalSent() uint32 {
	return atomic.LoadUint32(&s.totalSent)
}

func (s *statistics) GetTotalRecv() uint32 {
	return atomic.LoadUint32(&s.totalRecv)
}

func (s *statistics) GetPktLoss() uint32 {
	return LossPercent(s.GetTotalSent(), s.GetTotalRecv())
}

func (s *statistics) GetRTTMax() time.Duration {
	s.rttsMutex.RLock()
	defer s.rttsMutex.RUnlock()

	return s.rttsMax
}

func (s *statistics) GetRTTMin() time.Duration {
	s.rttsMutex.RLock()
	defer s.rttsMutex.RUnlock()

	return min(s.rttsMax, s.rttsMin)
}

func (s *statistics) GetRTTAvg() time.Duration {
	s.rttsMutex.RLock()
	defer s.rttsMutex.RUnlock()

	return s.rttAvg()
}

func (s *statistics) GetRTTMDev() time.Duration {
	s.rttsMutex.RLock()
	defer s.rttsMutex.RUnlock()

	if s.rttsCount == 0 {
		return 0
	}

	avg := s.rttsSum / float64(s.rttsCount)
	sqrd := s.rttsSqSum/float64(s.rttsCount) - avg*avg
	if sqrd <= 0 {
		return 0
	}
	return time.Duration(math.Sqrt(sqrd))
}

// rttAvg must be called with rttsMutex held.
func (s *statistics) rttAvg() time.Duration {
	if s.rttsCount == 0 {
		return 0
	}

	return time.Duration(s.rttsSum / float64(s.rttsCount))
}

// Summary takes a best-effort snapshot of the session statistics. If the
// session has not ended yet, the elapsed time is measured up to now.
func (s *statistics) Summary() Summary {
	sent, recv := s.GetTotalSent(), s.GetTotalRecv()

	var elapsed time.Duration
	if st, ok := s.GetStartTime(); ok {
		end, ended := s.GetEndTime()
		if !ended {
			end = time.Now()
		}
		elapsed = end.Sub(st)
	}

	return Summary{
		Sent:    sent,
		Recv:    recv,
		Loss:    LossPercent(sent, recv),
		Elapsed: elapsed,
		RTTMin:  s.GetRTTMin(),
		RTTAvg:  s.GetRTTAvg(),
		RTTMax:  s.GetRTTMax(),
		RTTMDev: s.GetRTTMDev(),
	}
}

// LossPercent returns the integer percentage of sent requests left without a
// reply. No requests sent means no loss.
func LossPercent(sent, recv uint32) uint32 {
	if sent == 0 || recv >= sent {
		return 0
	}

	return uint32(uint64(sent-recv) * 100 / uint64(sent))
}

// NewStatistics creates and initializes a Statistics struct.
func NewStatistics() Statistics {
	return &statistics{
		totalSent: 0,
		totalRecv: 0,
		rttsMax:   0,
		rttsMin:   math.MaxInt64,
		started:   false,
		ended:     false,
	}
}

// initStatsCb is a callback to be used when a session starts, initializing the start time.
func initStatsCb(s *Session, msg *icmp.Message) {
	s.Stats.SessionStarted()
}

// finishStatsCb is a callback to be used when a session ends, setting the end time.
func finishStatsCb(s *Session) {
	s.Stats.SessionEnded()
}
