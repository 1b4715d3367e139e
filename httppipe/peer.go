// SPDX-License-Identifier: GPL-3.0-or-later

package httppipe

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/federationcore/fedcore"
	"github.com/federationcore/fedcore/netcore/dns"
	"github.com/federationcore/fedcore/taskengine"
)

// Peer is one remote origin's pooled collection of [Link]s, the Go
// transcription of spec.md §4.3's "Peer" entity. A Peer is created
// lazily by [Pipeliner.Submit] and kept in the pipeliner's registry,
// keyed by canonical hostname.
type Peer struct {
	hostname string
	port     string
	opts     PeerOptions
	cfg      *fedcore.Config
	logger   fedcore.SLogger
	resolver *dns.Resolver

	mu               sync.Mutex
	links            []*Link
	nextLink         uint64
	errLatched       bool
	errAt            time.Time
	lastErr          error
	serverHeaderSeen bool
	serverHeader     string

	resolvedAt time.Time
	resolved   []netip.AddrPort
}

func newPeer(hostname, port string, opts PeerOptions, cfg *fedcore.Config, logger fedcore.SLogger, resolver *dns.Resolver) *Peer {
	return &Peer{
		hostname: hostname,
		port:     port,
		opts:     opts,
		cfg:      cfg,
		logger:   logger,
		resolver: resolver,
	}
}

// ServerHeader returns the first non-empty `Server:` response header
// this peer has observed, or "" if none has arrived yet.
func (p *Peer) ServerHeader() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.serverHeader
}

func (p *Peer) nextLinkID() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextLink++
	return p.nextLink
}

// latched reports whether the peer's error latch is still within its
// cool-down window, per spec.md §4.3's upstream-failure back-off.
func (p *Peer) latched() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.errLatched {
		return false, nil
	}
	if p.cfg.TimeNow().Sub(p.errAt) >= p.opts.ErrorClearDefault {
		p.errLatched = false
		return false, nil
	}
	return true, p.lastErr
}

func (p *Peer) latch(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errLatched = true
	p.errAt = p.cfg.TimeNow()
	p.lastErr = err
}

// onResponseStatus applies spec.md §4.3's status-driven error latch (a
// response in {502, 504, 520, 522, 524} latches the peer regardless of
// which link or tag carried it) and captures the peer's `Server:`
// response header the first time it is seen, per SPEC_FULL.md's
// supplemented one-time `ServerHeader` capture.
func (p *Peer) onResponseStatus(resp *Response) {
	if errorStatusLatches[resp.Status] {
		p.latch(fmt.Errorf("%w: upstream status %d", ErrUnavailable, resp.Status))
	}
	p.captureServerHeader(resp)
}

func (p *Peer) captureServerHeader(resp *Response) {
	server := resp.Header.Get("Server")
	if server == "" {
		return
	}
	p.mu.Lock()
	if p.serverHeaderSeen {
		p.mu.Unlock()
		return
	}
	p.serverHeaderSeen = true
	p.serverHeader = server
	p.mu.Unlock()

	p.logger.Info("httpPeerServerHeader",
		slog.String("hostname", p.hostname),
		slog.String("server", server),
	)
}

// onLinkClosed drops l from the peer's link list and, if err is non-nil
// and l was the peer's last remaining link, latches the peer error.
// Whether l ever completed a tag is not checked.
func (p *Peer) onLinkClosed(l *Link, err error) {
	p.mu.Lock()
	for i, candidate := range p.links {
		if candidate == l {
			p.links = append(p.links[:i], p.links[i+1:]...)
			break
		}
	}
	soleSurvivor := len(p.links) == 0
	p.mu.Unlock()

	if err != nil && soleSurvivor {
		p.latch(err)
	}
}

// resubmit re-homes an uncommitted tag orphaned by its link's closure
// onto another (or a new) link, returning false if none is available.
func (p *Peer) resubmit(t *tag) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Open.ConnectTimeout+p.opts.Open.HandshakeTimeout)
	defer cancel()
	link, err := p.selectLink(ctx)
	if err != nil {
		return false
	}
	t.link = link
	link.mu.Lock()
	t.id = link.nextTagIDLocked()
	link.mu.Unlock()
	link.enqueue(t)
	return true
}

// Submit resolves hostport, applies the peer error latch, selects or
// opens a suitable link per spec.md §4.3's link-selection rules, and
// enqueues req on it. The returned [*RequestHandle] resolves its
// future once the response (or a cancellation/failure) completes.
func (p *Peer) Submit(ctx context.Context, req *Request) (*RequestHandle, error) {
	if latched, err := p.latched(); latched {
		return nil, err
	}

	link, err := p.selectLink(ctx)
	if err != nil {
		return nil, err
	}

	future, promise := taskengine.NewFuture[*Response]()
	link.mu.Lock()
	id := link.nextTagIDLocked()
	link.mu.Unlock()
	t := newTag(id, link, req, promise)
	link.enqueue(t)

	return &RequestHandle{future: future, tag: t}, nil
}

// selectLink implements spec.md §4.3's link-selection algorithm: skip
// closing/saturated links, prefer least pending write bytes (ties
// broken by least pending read bytes, then fewest queued tags); open a
// new link if none qualifies and the peer is under LinkMax. If the
// best candidate already has a committed tag, a fresh dedicated link
// is opened instead when under LinkMax ("priority min").
func (p *Peer) selectLink(ctx context.Context) (*Link, error) {
	p.mu.Lock()
	var candidates []*Link
	for _, l := range p.links {
		if l.isClosed() || l.saturated(p.opts.TagCommitMax) {
			continue
		}
		candidates = append(candidates, l)
	}
	openCount := len(p.links)
	p.mu.Unlock()

	best := pickBestLink(candidates)

	if best == nil || (best.hasCommittedTag() && openCount < p.opts.LinkMax) {
		if openCount < p.opts.LinkMax {
			if l, err := p.openNewLink(ctx); err == nil {
				return l, nil
			} else if best == nil {
				return nil, err
			}
		}
	}
	if best == nil {
		return nil, ErrUnavailable
	}
	return best, nil
}

func pickBestLink(candidates []*Link) *Link {
	var best *Link
	var bestWrite, bestRead, bestCount int
	for _, l := range candidates {
		w, r, c := l.pendingWriteBytes(), l.pendingReadBytes(), l.tagCount()
		if best == nil || w < bestWrite ||
			(w == bestWrite && r < bestRead) ||
			(w == bestWrite && r == bestRead && c < bestCount) {
			best, bestWrite, bestRead, bestCount = l, w, r, c
		}
	}
	return best
}

func (p *Peer) openNewLink(ctx context.Context) (*Link, error) {
	addr, err := p.resolveAddress(ctx)
	if err != nil {
		return nil, err
	}
	link, err := openLink(ctx, p, addr)
	if err != nil {
		p.latch(err)
		return nil, err
	}
	p.mu.Lock()
	p.links = append(p.links, link)
	p.mu.Unlock()
	return link, nil
}

// resolveAddress returns an address to dial, honoring spec.md §6's
// `server.peer.remote.ttl.{min,max}` window: a cached resolution is
// reused until RemoteTTLMax elapses, at which point a fresh lookup is
// forced regardless of the underlying resolver cache's own TTL. IPv6
// results are dropped first when EnableIPv6 is false.
func (p *Peer) resolveAddress(ctx context.Context) (netip.AddrPort, error) {
	p.mu.Lock()
	stale := p.resolvedAt.IsZero() || p.cfg.TimeNow().Sub(p.resolvedAt) >= p.opts.RemoteTTLMax
	cached := p.resolved
	p.mu.Unlock()

	if !stale && len(cached) > 0 {
		return cached[0], nil
	}

	port, err := strconv.ParseUint(p.port, 10, 16)
	if err != nil {
		return netip.AddrPort{}, ErrUnavailable
	}
	addrs, err := p.resolver.ResolveHostPort(ctx, p.hostname, uint16(port))
	if err != nil {
		return netip.AddrPort{}, err
	}
	if !p.opts.EnableIPv6 {
		addrs = filterIPv6(addrs)
	}
	if len(addrs) == 0 {
		return netip.AddrPort{}, ErrUnavailable
	}

	p.mu.Lock()
	p.resolved = addrs
	p.resolvedAt = p.cfg.TimeNow()
	p.mu.Unlock()
	return addrs[0], nil
}

func filterIPv6(addrs []netip.AddrPort) []netip.AddrPort {
	out := addrs[:0:0]
	for _, a := range addrs {
		if !a.Addr().Is6() {
			out = append(out, a)
		}
	}
	return out
}

// trimIdleLinks closes any link beyond LinkMin that has no pending
// work, per spec.md §4.3's idle-link reclamation.
func (p *Peer) trimIdleLinks(ctx context.Context) {
	p.mu.Lock()
	var idle []*Link
	kept := 0
	for _, l := range p.links {
		if l.tagCount() == 0 && kept >= p.opts.LinkMin {
			idle = append(idle, l)
			continue
		}
		kept++
	}
	p.mu.Unlock()

	for _, l := range idle {
		l.close(ctx)
	}
}
