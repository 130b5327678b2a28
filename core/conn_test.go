package core

import (
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

var loopback = &net.IPAddr{IP: net.IPv4(127, 0, 0, 1)}

// fakeConn is an in-memory PacketConn. When reply is set, every echo request
// written is answered by an IPv4 framed echo reply.
type fakeConn struct {
	reply    bool
	ttl      int
	writeErr error

	mu       sync.Mutex
	deadline time.Time
	readErrs []error
	writes   [][]byte

	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(reply bool) *fakeConn {
	return &fakeConn{
		reply:   reply,
		ttl:     64,
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

// queueReadErrors makes the next reads fail with errs, in order
func (c *fakeConn) queueReadErrors(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readErrs = append(c.readErrs, errs...)
}

func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	c.mu.Lock()
	deadline := c.deadline
	if len(c.readErrs) > 0 {
		err := c.readErrs[0]
		c.readErrs = c.readErrs[1:]
		c.mu.Unlock()
		return 0, nil, err
	}
	c.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-c.closed:
		return 0, nil, &net.OpError{Op: "read", Net: "ip4:icmp", Err: net.ErrClosed}
	case pkt := <-c.inbound:
		return copy(b, pkt), loopback, nil
	case <-timeout:
		return 0, nil, &net.OpError{Op: "read", Net: "ip4:icmp", Err: os.ErrDeadlineExceeded}
	}
}

func (c *fakeConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	select {
	case <-c.closed:
		return 0, &net.OpError{Op: "write", Net: "ip4:icmp", Err: net.ErrClosed}
	default:
	}

	if c.writeErr != nil {
		return 0, c.writeErr
	}

	c.mu.Lock()
	c.writes = append(c.writes, append([]byte(nil), b...))
	c.mu.Unlock()

	if c.reply {
		reply := append([]byte(nil), b...)
		reply[0] = byte(ipv4.ICMPTypeEchoReply)
		setChecksum(reply)
		c.deliver(frameIPv4(reply, c.ttl))
	}

	return len(b), nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deadline = t
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) deliver(datagram []byte) {
	select {
	case c.inbound <- datagram:
	default:
	}
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) totalWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.writes)
}

// frameIPv4 prepends an IPv4 header to an ICMP message
func frameIPv4(msg []byte, ttl int) []byte {
	h := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(msg),
		TTL:      ttl,
		Protocol: icmpProtocol,
		Src:      loopback.IP,
		Dst:      loopback.IP,
	}

	hb, err := h.Marshal()
	if err != nil {
		panic(err)
	}
	return append(hb, msg...)
}
