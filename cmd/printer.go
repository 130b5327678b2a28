package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mikaelmello/rawping/core"
	"golang.org/x/net/icmp"
)

// printer writes the ping output of a session
type printer struct {
	out  io.Writer
	name string
	mu   sync.Mutex
}

func newPrinter(out io.Writer, name string) *printer {
	return &printer{out: out, name: name}
}

func (p *printer) printOnStart(s *core.Session, msg *icmp.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	size := core.PacketSize
	if msg != nil {
		if msgbytes, err := msg.Marshal(nil); err == nil {
			size = len(msgbytes)
		}
	}

	fmt.Fprintf(p.out, "PING %s (%s): %d bytes data in ICMP packets.\n", p.name, s.Address(), size)
}

func (p *printer) printOnRoundTrip(s *core.Session, rt *core.RoundTrip) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%d bytes from %s: icmp_seq=%d ttl=%d time=%.2f ms\n",
		rt.Len, rt.Src, rt.Seq, rt.TTL, toMillis(rt.Time))
}

func (p *printer) printOnEnd(s *core.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sum := s.Stats.Summary()

	fmt.Fprintf(p.out, "\n--- %s ping statistics ---\n", s.LastPeer())
	fmt.Fprintf(p.out, "%d packets transmitted, %d received, %d%% packet loss, time %dms\n",
		sum.Sent, sum.Recv, sum.Loss, sum.Elapsed.Milliseconds())

	if sum.Recv > 0 {
		fmt.Fprintf(p.out, "rtt min/avg/max/mdev = %.3f/%.3f/%.3f/%.3f ms\n",
			toMillis(sum.RTTMin), toMillis(sum.RTTAvg), toMillis(sum.RTTMax), toMillis(sum.RTTMDev))
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
