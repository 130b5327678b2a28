package core

import (
	"errors"
	"net"
	"os"
)

func isIPv4(ip net.IP) bool {
	return ip.To4() != nil
}

// isTimeout returns whether err is the expiration of a read deadline.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var neterr net.Error
	return errors.As(err, &neterr) && neterr.Timeout()
}

// processIdentifier truncates the pid to the 16 bits of the ICMP identifier field.
func processIdentifier() uint16 {
	return uint16(os.Getpid() & 0xffff)
}
