package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/icmp"
	"golang.org/x/sync/errgroup"
)

const (
	icmpProtocol = 1

	// sendInterval is the fixed time between two echo requests.
	sendInterval = time.Second

	// readWait bounds every read so the receiver notices a stop request.
	readWait = 200 * time.Millisecond
)

var (
	// ErrNotIPv4 is returned when the destination is not an IPv4 address.
	ErrNotIPv4 = errors.New("destination is not an IPv4 address")

	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("session has already started")
)

// PacketConn is the raw ICMP socket a session sends to and receives from.
// Reads return whole IPv4 datagrams, header included. A *net.IPConn does not
// satisfy this contract as it strips the header.
type PacketConn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	WriteTo(b []byte, addr net.Addr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Session is an ICMP echo probe of a single destination
type Session struct {
	// Stats contain the overall statistics of the session
	Stats Statistics

	settings *Settings

	// id is the identifier put in every echo request, unique to this process.
	id uint16

	// nextSeq is the sequence number of the next echo request, only touched by the sender.
	nextSeq uint16

	// dst is the resolved IPv4 address of the target host
	dst *net.IPAddr

	// conn is the raw socket shared by the sender and the receiver, closed when Run returns
	conn PacketConn

	// history keeps the send times of the latest requests
	history *sendHistory

	// lastPeer is the source address of the latest datagram received
	lastPeer atomic.Pointer[net.IPAddr]

	// logger is an instance of logrus used to log activities related to this session
	logger *log.Logger

	// interval is the time between two echo requests
	interval time.Duration

	// readWait is the read deadline used by the receiver on every read
	readWait time.Duration

	// stop is closed when a stop of the session is requested
	stop     chan struct{}
	stopOnce sync.Once

	// allReplied is closed once every request of a limited session got its reply
	allReplied     chan struct{}
	allRepliedOnce sync.Once

	isStarted  atomic.Bool
	isFinished atomic.Bool

	// stHandlers are the callback functions called when the session starts.
	// The function parameters are the session and a sample first echo request.
	stHandlers []func(*Session, *icmp.Message)

	// sendHandlers are called after an echo request is written, with its sequence number.
	sendHandlers []func(*Session, uint16)

	// rtHandlers are the callback functions called when an echo request is replied.
	rtHandlers []func(*Session, *RoundTrip)

	// endHandlers are the callback functions called when the session ends.
	endHandlers []func(*Session)
}

// NewSession creates a new Session probing dst through conn. The session owns
// conn from now on and closes it when Run returns.
func NewSession(dst *net.IPAddr, conn PacketConn, settings *Settings) (*Session, error) {
	logger := NewLogger(settings.LoggingLevel)

	logger.Debug("Validating settings")
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	if dst == nil || !isIPv4(dst.IP) {
		return nil, fmt.Errorf("%w: %v", ErrNotIPv4, dst)
	}

	session := &Session{
		Stats:      NewStatistics(),
		settings:   settings,
		id:         processIdentifier(),
		nextSeq:    0,
		dst:        dst,
		conn:       conn,
		history:    newSendHistory(),
		logger:     logger,
		interval:   sendInterval,
		readWait:   readWait,
		stop:       make(chan struct{}),
		allReplied: make(chan struct{}),
	}

	session.AddOnStart(initStatsCb)
	session.AddOnFinish(finishStatsCb)

	logger.Infof("Created session with id %d, addr %s", session.id, dst)

	return session, nil
}

// Run sends echo requests and receives their replies until ctx is done, a
// stop is requested, or the configured count or deadline is reached. The
// finish handlers are called once both activities have returned, then the
// connection is closed.
func (s *Session) Run(ctx context.Context) error {
	if !s.isStarted.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer s.closeConn()

	if s.isDeadlineActive() {
		s.logger.Debugf("Setting deadline to %s", s.getDeadlineDuration())
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.getDeadlineDuration())
		defer cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-s.stop:
			s.logger.Info("Stop requested, cancelling session")
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("Calling start callbacks")
	msg := s.buildEchoRequest()
	for _, f := range s.stHandlers {
		f(s, msg)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// a sender done with its count ends the receiver too
		defer cancel()
		return s.sendLoop(gctx)
	})
	g.Go(func() error {
		return s.recvLoop(gctx)
	})

	err := g.Wait()
	if err != nil {
		s.logger.WithError(err).Error("Session ended with error")
	}

	s.logger.Info("Calling ending callbacks")
	for _, f := range s.endHandlers {
		f(s)
	}

	s.isFinished.Store(true)
	s.logger.Info("Session ended")
	return err
}

// RequestStop requests the stop the execution of the session. It may be
// called from any goroutine, any number of times.
func (s *Session) RequestStop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Requesting to end session")
		close(s.stop)
	})
}

// IsStarted returns whether this session is started
func (s *Session) IsStarted() bool {
	return s.isStarted.Load()
}

// IsFinished returns whether this session is finished
func (s *Session) IsFinished() bool {
	return s.isFinished.Load()
}

// Identifier is the ICMP identifier of the echo requests of this session
func (s *Session) Identifier() uint16 {
	return s.id
}

// Address is the resolved address of the target host in this session
func (s *Session) Address() net.Addr {
	return s.dst
}

// LastPeer is the source address of the latest datagram received, or the
// target address if nothing was received yet.
func (s *Session) LastPeer() net.Addr {
	if peer := s.lastPeer.Load(); peer != nil {
		return peer
	}
	return s.dst
}

// AddOnStart adds a handler function that will be called when the session starts
func (s *Session) AddOnStart(handler func(*Session, *icmp.Message)) {
	s.stHandlers = append(s.stHandlers, handler)
}

// AddOnSend adds a handler function that will be called after an echo request is sent
func (s *Session) AddOnSend(handler func(*Session, uint16)) {
	s.sendHandlers = append(s.sendHandlers, handler)
}

// AddOnRecv adds a handler function that will be called after an echo request is replied
func (s *Session) AddOnRecv(handler func(*Session, *RoundTrip)) {
	s.rtHandlers = append(s.rtHandlers, handler)
}

// AddOnFinish adds a handler function that will be called when the session ends
func (s *Session) AddOnFinish(handler func(*Session)) {
	s.endHandlers = append(s.endHandlers, handler)
}

func (s *Session) closeConn() {
	s.logger.Debug("Closing connection")
	if err := s.conn.Close(); err != nil {
		s.logger.WithError(err).Warn("Could not close connection")
	}
}

// Returns the deadline setting parsed as a duration in seconds.
func (s *Session) getDeadlineDuration() time.Duration {
	return time.Second * time.Duration(s.settings.Deadline)
}

// Returns the time to wait for outstanding replies after the last request.
func (s *Session) getTimeoutDuration() time.Duration {
	return time.Second * time.Duration(s.settings.Timeout)
}

// Returns whether the deadline setting is active.
func (s *Session) isDeadlineActive() bool {
	return s.settings.Deadline > 0
}

// Returns whether we should stop sending requests some time.
func (s *Session) isCountActive() bool {
	return s.settings.Count > 0
}

// markReplied closes allReplied once a limited session got all its replies.
func (s *Session) markReplied() {
	if !s.isCountActive() || s.Stats.GetTotalRecv() < uint32(s.settings.Count) {
		return
	}

	s.allRepliedOnce.Do(func() {
		s.logger.Info("All requests have been replied")
		close(s.allReplied)
	})
}
