//go:build linux || darwin

package rawsock

import (
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// openOrSkip opens a raw socket, skipping the test when running unprivileged
func openOrSkip(t *testing.T) *Conn {
	conn, err := Open(64)
	if err != nil {
		t.Skipf("raw sockets unavailable: %s", err)
	}
	return conn
}

func TestSockaddrToAddr(t *testing.T) {
	addr := sockaddrToAddr(&unix.SockaddrInet4{Addr: [4]byte{192, 168, 0, 1}})
	require.IsType(t, &net.IPAddr{}, addr)
	assert.True(t, addr.(*net.IPAddr).IP.Equal(net.IPv4(192, 168, 0, 1)))

	assert.Nil(t, sockaddrToAddr(&unix.SockaddrInet6{}))
}

// TestReadDeadline verifies that an expired deadline is reported as a timeout
func TestReadDeadline(t *testing.T) {
	conn := openOrSkip(t)
	defer conn.Close()

	// filter everything out by reading right after a tiny deadline; a stray
	// ICMP message on the host would make the read succeed, so retry a few times
	for i := 0; i < 5; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Millisecond)))
		_, _, err := conn.ReadFrom(make([]byte, 1500))
		if err != nil {
			assert.True(t, errors.Is(err, os.ErrDeadlineExceeded))
			return
		}
	}
}

// TestCloseTwice verifies that closing is idempotent and later calls fail
func TestCloseTwice(t *testing.T) {
	conn := openOrSkip(t)

	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())

	_, _, err := conn.ReadFrom(make([]byte, 16))
	assert.True(t, errors.Is(err, net.ErrClosed))

	_, err = conn.WriteTo([]byte{8, 0, 0, 0}, &net.IPAddr{IP: net.IPv4(127, 0, 0, 1)})
	assert.True(t, errors.Is(err, net.ErrClosed))

	assert.True(t, errors.Is(conn.SetReadDeadline(time.Now()), net.ErrClosed))
}

// TestWriteToRejectsIPv6 verifies that only IPv4 destinations are accepted
func TestWriteToRejectsIPv6(t *testing.T) {
	conn := openOrSkip(t)
	defer conn.Close()

	_, err := conn.WriteTo([]byte{8, 0, 0, 0}, &net.IPAddr{IP: net.ParseIP("::1")})
	assert.Error(t, err)
}
