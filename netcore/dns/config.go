// SPDX-License-Identifier: GPL-3.0-or-later

package dns

import (
	"net/netip"
	"time"
)

// DefaultServers is the default round-robin server list: six well-known
// public IPv4 resolvers, per spec.md §6's `net.dns.resolver.servers`.
var DefaultServers = []netip.AddrPort{
	netip.MustParseAddrPort("8.8.8.8:53"),
	netip.MustParseAddrPort("8.8.4.4:53"),
	netip.MustParseAddrPort("1.1.1.1:53"),
	netip.MustParseAddrPort("1.0.0.1:53"),
	netip.MustParseAddrPort("9.9.9.9:53"),
	netip.MustParseAddrPort("149.112.112.112:53"),
}

// ResolverOptions configures a [*Resolver], the Go transcription of
// spec.md §6's `net.dns.*` configuration surface.
type ResolverOptions struct {
	// Servers is the round-robin list of DNS servers to query. Defaults
	// to [DefaultServers].
	Servers []netip.AddrPort

	// Timeout bounds a single resolution (all retries included). Defaults
	// to 10s.
	Timeout time.Duration

	// SendRate is the minimum spacing between consecutive query sends
	// within a burst. Defaults to 60ms.
	SendRate time.Duration

	// SendBurst bounds the number of queries that may be in flight
	// (across retries and servers) at once. Defaults to 8.
	SendBurst int

	// RetryMax bounds the number of retransmissions after the first send
	// before giving up with [ErrExhaustedRetries]. Defaults to 4.
	RetryMax int

	// MinTTL floors the TTL used to compute a cache entry's absolute
	// expiry, so a server advertising an implausibly low or zero TTL
	// doesn't thrash the cache. Defaults to 900s.
	MinTTL time.Duration

	// ClearNXDomain is the TTL applied to a cached NXDOMAIN result.
	// Defaults to 43200s (12h).
	ClearNXDomain time.Duration

	// EnableIPv6 controls whether AAAA queries are issued as part of
	// hostname resolution. Defaults to true.
	EnableIPv6 bool

	// NXDomainExceptions, when true, surfaces NXDOMAIN as [ErrNXDomain]
	// instead of silently falling back (SRV→A) or returning an empty
	// result set.
	NXDomainExceptions bool
}

// DefaultResolverOptions returns spec.md §6's documented defaults.
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		Servers:       DefaultServers,
		Timeout:       10 * time.Second,
		SendRate:      60 * time.Millisecond,
		SendBurst:     8,
		RetryMax:      4,
		MinTTL:        900 * time.Second,
		ClearNXDomain: 43200 * time.Second,
		EnableIPv6:    true,
	}
}
