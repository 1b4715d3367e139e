// SPDX-License-Identifier: GPL-3.0-or-later

package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/federationcore/fedcore"
)

// Resolver resolves hostnames to A/AAAA/SRV records over DNS-over-UDP
// (falling back to TCP on a truncated response), with a TTL-bounded
// cache and a round-robin server list, per spec.md §4.2.
//
// Construct with [NewResolver]. A *Resolver is safe for concurrent use.
type Resolver struct {
	opts   ResolverOptions
	cfg    *fedcore.Config
	logger fedcore.SLogger
	cache  *Cache

	mu   sync.Mutex
	next int // round-robin cursor into opts.Servers

	burst chan struct{} // sized opts.SendBurst, bounds in-flight queries
}

// NewResolver returns a new [*Resolver]. An empty Servers list and any
// zero or negative numeric field in opts are filled from
// [DefaultResolverOptions]; the boolean fields (EnableIPv6,
// NXDomainExceptions) are used as given.
func NewResolver(opts ResolverOptions, cfg *fedcore.Config, logger fedcore.SLogger) *Resolver {
	defaults := DefaultResolverOptions()
	if len(opts.Servers) == 0 {
		opts.Servers = defaults.Servers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.SendRate <= 0 {
		opts.SendRate = defaults.SendRate
	}
	if opts.SendBurst <= 0 {
		opts.SendBurst = defaults.SendBurst
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = defaults.RetryMax
	}
	if opts.MinTTL <= 0 {
		opts.MinTTL = defaults.MinTTL
	}
	if opts.ClearNXDomain <= 0 {
		opts.ClearNXDomain = defaults.ClearNXDomain
	}
	return &Resolver{
		opts:   opts,
		cfg:    cfg,
		logger: logger,
		cache:  NewCache(opts.MinTTL, opts.ClearNXDomain, cfg.TimeNow),
		burst:  make(chan struct{}, opts.SendBurst),
	}
}

// Cache exposes the resolver's cache, e.g. for a peer layer that wants to
// check remaining TTL without issuing a query.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// ResolveA resolves name to its A records, using the cache when possible.
func (r *Resolver) ResolveA(ctx context.Context, name string) (*Answer, error) {
	return r.resolve(ctx, name, dns.TypeA)
}

// ResolveAAAA resolves name to its AAAA records, using the cache when
// possible.
func (r *Resolver) ResolveAAAA(ctx context.Context, name string) (*Answer, error) {
	return r.resolve(ctx, name, dns.TypeAAAA)
}

// ResolveSRV resolves name to its SRV records, using the cache when
// possible.
func (r *Resolver) ResolveSRV(ctx context.Context, name string) (*Answer, error) {
	return r.resolve(ctx, name, dns.TypeSRV)
}

// ResolveHostPort resolves hostport (a "host" or "host:port" or SRV
// service name) to a list of dialable addresses, implementing spec.md's
// edge case S6: if hostport names a service with no explicit port, issue
// an SRV query first; on NXDOMAIN with NXDomainExceptions unset, fall
// back to A (and AAAA if enabled) on the bare host. A literal IP address
// is returned immediately without touching the network.
func (r *Resolver) ResolveHostPort(ctx context.Context, hostport string, port uint16) ([]netip.AddrPort, error) {
	if host, portStr, err := net.SplitHostPort(hostport); err == nil {
		if p, perr := strconv.Atoi(portStr); perr == nil {
			hostport, port = host, uint16(p)
		}
	}

	if addr, err := netip.ParseAddr(hostport); err == nil {
		return []netip.AddrPort{netip.AddrPortFrom(addr, port)}, nil
	}

	if port == 0 {
		srvAnswer, err := r.ResolveSRV(ctx, hostport)
		switch {
		case err == nil && len(srvAnswer.SRV) > 0:
			return r.resolveSRVTargets(ctx, srvAnswer.SRV)
		case errors.Is(err, ErrNXDomain) && r.opts.NXDomainExceptions:
			return nil, err
		}
		// Fall through to a bare A/AAAA lookup on the original host,
		// per spec.md's S6 edge case.
	}

	return r.resolveAddrs(ctx, hostport, port)
}

func (r *Resolver) resolveSRVTargets(ctx context.Context, targets []SRVTarget) ([]netip.AddrPort, error) {
	var out []netip.AddrPort
	for _, t := range targets {
		addrs, err := r.resolveAddrs(ctx, strings.TrimSuffix(t.Target, "."), t.Port)
		if err != nil {
			continue
		}
		out = append(out, addrs...)
	}
	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	return out, nil
}

func (r *Resolver) resolveAddrs(ctx context.Context, host string, port uint16) ([]netip.AddrPort, error) {
	var out []netip.AddrPort

	aAnswer, aErr := r.ResolveA(ctx, host)
	if aErr == nil {
		for _, ip := range aAnswer.A {
			if addr, ok := netip.AddrFromSlice(ip.To4()); ok {
				out = append(out, netip.AddrPortFrom(addr, port))
			}
		}
	}

	if r.opts.EnableIPv6 {
		aaaaAnswer, err := r.ResolveAAAA(ctx, host)
		if err == nil {
			for _, ip := range aaaaAnswer.AAAA {
				if addr, ok := netip.AddrFromSlice(ip.To16()); ok {
					out = append(out, netip.AddrPortFrom(addr, port))
				}
			}
		}
	}

	if len(out) == 0 {
		if aErr != nil {
			return nil, aErr
		}
		return nil, ErrNoRecords
	}
	return out, nil
}

// resolve is the core single-qtype query: cache lookup, then a
// round-robin UDP exchange (TCP fallback on truncation) with retry/
// timeout per opts, then a cache update.
func (r *Resolver) resolve(ctx context.Context, name string, qtype uint16) (*Answer, error) {
	if cached, isNX, ok := r.cache.Get(name, qtype); ok {
		if isNX {
			if r.opts.NXDomainExceptions {
				return nil, ErrNXDomain
			}
			return nil, ErrNoRecords
		}
		return cached, nil
	}

	if len(r.opts.Servers) == 0 {
		return nil, ErrNoServers
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	query, err := buildQuery(name, qtype)
	if err != nil {
		return nil, err
	}

	reply, err := r.exchangeWithRetries(ctx, query)
	if err != nil {
		return nil, err
	}

	if reply.Rcode == dns.RcodeNameError {
		r.cache.PutNXDomain(name, qtype)
		if r.opts.NXDomainExceptions {
			return nil, ErrNXDomain
		}
		return nil, ErrNoRecords
	}
	if reply.Rcode != dns.RcodeSuccess {
		return nil, ErrServerFailure
	}

	answer := decodeAnswer(reply, qtype)
	if len(answer.A) == 0 && len(answer.AAAA) == 0 && len(answer.SRV) == 0 {
		return nil, ErrNoRecords
	}
	r.cache.Put(name, qtype, answer)
	return answer, nil
}

// exchangeWithRetries walks the round-robin server list, retrying up to
// opts.RetryMax times total, pacing sends by opts.SendRate and bounding
// in-flight queries by opts.SendBurst. A truncated UDP reply triggers an
// immediate TCP retry against the same server (not counted against
// RetryMax), per the supplemented UDP→TCP fallback behavior.
func (r *Resolver) exchangeWithRetries(ctx context.Context, query *dns.Msg) (*dns.Msg, error) {
	var lastErr error
	ticker := time.NewTicker(r.opts.SendRate)
	defer ticker.Stop()

	for attempt := 0; attempt <= r.opts.RetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
			}
		}

		select {
		case r.burst <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		reply, err := r.exchangeOnce(ctx, query)
		<-r.burst

		if err == nil {
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrExhaustedRetries, lastErr)
}

func (r *Resolver) exchangeOnce(ctx context.Context, query *dns.Msg) (*dns.Msg, error) {
	server := r.nextServer()

	reply, err := exchangeUDP(ctx, r.cfg, r.logger, server, query)
	if err != nil {
		return nil, err
	}
	if reply.Truncated {
		return exchangeTCP(ctx, r.cfg, r.logger, server, query)
	}
	return reply, nil
}

func (r *Resolver) nextServer() netip.AddrPort {
	r.mu.Lock()
	defer r.mu.Unlock()
	server := r.opts.Servers[r.next%len(r.opts.Servers)]
	r.next++
	return server
}
