//go:build !linux && !darwin

package rawsock

import (
	"errors"
	"net"
	"time"
)

var errUnsupported = errors.New("raw ICMP sockets are not supported on this platform")

// Conn is a raw IPv4 ICMP socket.
type Conn struct{}

// Open always fails on this platform.
func Open(ttl int) (*Conn, error) {
	return nil, errUnsupported
}

// DropPrivileges is a no-op on this platform.
func DropPrivileges() error {
	return nil
}

func (c *Conn) ReadFrom(b []byte) (int, net.Addr, error) { return 0, nil, errUnsupported }

func (c *Conn) WriteTo(b []byte, addr net.Addr) (int, error) { return 0, errUnsupported }

func (c *Conn) SetReadDeadline(t time.Time) error { return errUnsupported }

func (c *Conn) Close() error { return nil }
