package cmd

import (
	"fmt"
	"net"
	"strings"
)

// target is the resolved destination of a run
type target struct {
	name string      // name shown in the banner
	addr *net.IPAddr // IPv4 address probed
}

// resolveTarget resolves host, an IPv4 literal or a hostname, to an IPv4
// address. IP literals are named after their reverse lookup when there is one.
func resolveTarget(host string) (*target, error) {
	addr, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return nil, fmt.Errorf("error while resolving address %s: %w", host, err)
	}

	name := host
	if net.ParseIP(host) != nil {
		if names, err := net.LookupAddr(host); err == nil && len(names) > 0 {
			name = strings.TrimSuffix(names[0], ".")
		}
	}

	return &target{name: name, addr: addr}, nil
}
