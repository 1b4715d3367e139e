// SPDX-License-Identifier: GPL-3.0-or-later

package httppipe

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/federationcore/fedcore"
	"github.com/federationcore/fedcore/netcore/dns"
)

// Pipeliner is the package's entry point: a registry of [Peer]s, one
// per destination hostname, each lazily created on first use. This is
// the Go transcription of spec.md §4.3's top-level pipeliner that a
// federation server's request-sending code submits requests through.
//
// A *Pipeliner is safe for concurrent use.
type Pipeliner struct {
	opts     PeerOptions
	cfg      *fedcore.Config
	logger   fedcore.SLogger
	resolver *dns.Resolver

	mu    sync.Mutex
	peers map[string]*Peer
}

// NewPipeliner returns a new [*Pipeliner]. A zero-valued opts is
// replaced with [DefaultPeerOptions].
func NewPipeliner(opts PeerOptions, cfg *fedcore.Config, logger fedcore.SLogger, resolver *dns.Resolver) *Pipeliner {
	if opts.LinkMax <= 0 {
		opts = DefaultPeerOptions()
	}
	if logger == nil {
		logger = fedcore.DefaultSLogger()
	}
	return &Pipeliner{
		opts:     opts,
		cfg:      cfg,
		logger:   logger,
		resolver: resolver,
		peers:    make(map[string]*Peer),
	}
}

// Submit sends req to hostport (a "host" or "host:port", defaulting to
// port 443), creating the destination's [Peer] on first use. The
// returned [*RequestHandle]'s future resolves with the parsed
// [*Response] once it completes.
func (p *Pipeliner) Submit(ctx context.Context, hostport string, req *Request) (*RequestHandle, error) {
	peer := p.peerFor(hostport)
	return peer.Submit(ctx, req)
}

func (p *Pipeliner) peerFor(hostport string) *Peer {
	host, port := splitHostPort(hostport)
	key := strings.ToLower(host) + ":" + port

	p.mu.Lock()
	defer p.mu.Unlock()
	if peer, ok := p.peers[key]; ok {
		return peer
	}
	peer := newPeer(strings.ToLower(host), port, p.opts, p.cfg, p.logger, p.resolver)
	p.peers[key] = peer
	return peer
}

// splitHostPort splits hostport into a host and a port, defaulting the
// port to "443" when hostport carries none (the federation server's
// requests are always HTTPS).
func splitHostPort(hostport string) (host, port string) {
	if h, p, err := net.SplitHostPort(hostport); err == nil {
		return h, p
	}
	return hostport, "443"
}
