package core

import (
	"net"
	"time"
)

// RoundTrip is the result of an echo request that received its matching reply
type RoundTrip struct {
	TTL  int           // time-to-live of the reply
	Seq  uint16        // seq of the reply
	Len  int           // len of the ICMP part of the reply
	Src  net.Addr      // src of reply
	Time time.Duration // rtt
}
