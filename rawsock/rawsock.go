//go:build linux || darwin

// Package rawsock provides the raw ICMP socket used by rawping. Unlike the
// net package IP connections, reads return whole IPv4 datagrams, header
// included, and interrupted system calls are reported to the caller.
package rawsock

import (
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

const network = "ip4:icmp"

// Conn is a raw IPv4 ICMP socket.
type Conn struct {
	fd     int
	closed atomic.Bool
}

// Open creates a raw ICMP socket sending with the given TTL. It needs
// CAP_NET_RAW or root.
func Open(ttl int) (*Conn, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_ICMP)
	if err != nil {
		return nil, fmt.Errorf("could not create raw ICMP socket: %w", os.NewSyscallError("socket", err))
	}

	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TTL, ttl); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("could not set TTL %d: %w", ttl, os.NewSyscallError("setsockopt", err))
	}

	return &Conn{fd: fd}, nil
}

// DropPrivileges sets the effective user id back to the real one, once the
// socket is open privileges are not needed anymore.
func DropPrivileges() error {
	if err := unix.Setuid(unix.Getuid()); err != nil {
		return fmt.Errorf("could not drop privileges: %w", os.NewSyscallError("setuid", err))
	}
	return nil
}

// ReadFrom reads a datagram, IPv4 header included, and returns its source.
// An expired read deadline is reported as os.ErrDeadlineExceeded.
func (c *Conn) ReadFrom(b []byte) (int, net.Addr, error) {
	if c.closed.Load() {
		return 0, nil, c.opError("read", net.ErrClosed)
	}

	n, from, err := unix.Recvfrom(c.fd, b, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil, c.opError("read", os.ErrDeadlineExceeded)
		}
		if c.closed.Load() {
			return 0, nil, c.opError("read", net.ErrClosed)
		}
		return 0, nil, c.opError("read", os.NewSyscallError("recvfrom", err))
	}

	return n, sockaddrToAddr(from), nil
}

// WriteTo sends b, an ICMP message, to addr which must be an IPv4 *net.IPAddr.
func (c *Conn) WriteTo(b []byte, addr net.Addr) (int, error) {
	if c.closed.Load() {
		return 0, c.opError("write", net.ErrClosed)
	}

	ipaddr, ok := addr.(*net.IPAddr)
	if !ok || ipaddr.IP.To4() == nil {
		return 0, c.opError("write", fmt.Errorf("invalid address %v", addr))
	}

	sa := &unix.SockaddrInet4{}
	copy(sa.Addr[:], ipaddr.IP.To4())

	if err := unix.Sendto(c.fd, b, 0, sa); err != nil {
		return 0, c.opError("write", os.NewSyscallError("sendto", err))
	}
	return len(b), nil
}

// SetReadDeadline bounds the next reads, a zero t blocks forever.
func (c *Conn) SetReadDeadline(t time.Time) error {
	if c.closed.Load() {
		return c.opError("set", net.ErrClosed)
	}

	var tv unix.Timeval
	if !t.IsZero() {
		d := time.Until(t)
		if d < time.Microsecond {
			d = time.Microsecond
		}
		tv = unix.NsecToTimeval(d.Nanoseconds())
	}

	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return c.opError("set", os.NewSyscallError("setsockopt", err))
	}
	return nil
}

// Close releases the socket. Only the first call closes the descriptor.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := unix.Close(c.fd); err != nil {
		return c.opError("close", os.NewSyscallError("close", err))
	}
	return nil
}

func (c *Conn) opError(op string, err error) error {
	return &net.OpError{Op: op, Net: network, Err: err}
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	if sa4, ok := sa.(*unix.SockaddrInet4); ok {
		return &net.IPAddr{IP: net.IPv4(sa4.Addr[0], sa4.Addr[1], sa4.Addr[2], sa4.Addr[3])}
	}
	return nil
}
