// SPDX-License-Identifier: GPL-3.0-or-later

package httppipe

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/federationcore/fedcore"
	"github.com/federationcore/fedcore/netcore"
	"github.com/federationcore/fedcore/taskengine"
)

func newTestPeer(t *testing.T, opts PeerOptions, now time.Time) *Peer {
	t.Helper()
	cfg := fedcore.NewConfig()
	cfg.TimeNow = func() time.Time { return now }
	return newPeer("example.com", "443", opts, cfg, fedcore.DefaultSLogger(), nil)
}

// attachPipeLink gives peer a ready-to-use [Link] backed by a [net.Pipe],
// without going through DNS resolution or a real dial.
func attachPipeLink(t *testing.T, peer *Peer) (*Link, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	socket := netcore.NewSocket(client, "tcp", peer.cfg, peer.logger)
	l := &Link{peer: peer, id: peer.nextLinkID(), socket: socket, dock: taskengine.NewDock()}
	ctx := context.Background()
	l.writer = taskengine.Spawn(ctx, taskengine.SpawnOptions{Name: "test-link-writer"}, l.writeLoop)
	l.reader = taskengine.Spawn(ctx, taskengine.SpawnOptions{Name: "test-link-reader"}, l.readLoop)
	peer.links = append(peer.links, l)
	return l, server
}

func TestPeerLatchBlocksSubmissionDuringCooldown(t *testing.T) {
	now := time.Now()
	peer := newTestPeer(t, DefaultPeerOptions(), now)
	peer.latch(ErrUnavailable)

	latched, err := peer.latched()
	require.True(t, latched)
	require.ErrorIs(t, err, ErrUnavailable)

	peer.cfg.TimeNow = func() time.Time { return now.Add(peer.opts.ErrorClearDefault) }
	latched, err = peer.latched()
	assert.False(t, latched)
	assert.NoError(t, err)
}

func TestPeerOnResponseStatusLatchesOnUpstreamFailureCodes(t *testing.T) {
	peer := newTestPeer(t, DefaultPeerOptions(), time.Now())
	peer.onResponseStatus(&Response{Status: 200})
	latched, _ := peer.latched()
	assert.False(t, latched)

	peer.onResponseStatus(&Response{Status: 502})
	latched, err := peer.latched()
	assert.True(t, latched)
	assert.Error(t, err)
}

func TestPeerOnLinkClosedLatchesOnlyWhenSoleSurvivorFails(t *testing.T) {
	peer := newTestPeer(t, DefaultPeerOptions(), time.Now())
	l1, s1 := attachPipeLink(t, peer)
	defer s1.Close()
	l2, s2 := attachPipeLink(t, peer)
	defer s2.Close()

	peer.onLinkClosed(l1, assertErr)
	latched, _ := peer.latched()
	assert.False(t, latched, "a second surviving link means no latch yet")
	assert.Len(t, peer.links, 1)

	peer.onLinkClosed(l2, assertErr)
	latched, err := peer.latched()
	assert.True(t, latched, "losing the last link on a failure latches the peer")
	assert.ErrorIs(t, err, assertErr)
}

var assertErr = ErrUnavailable

func TestPeerSubmitUsesExistingLinkWithoutOpeningANewOne(t *testing.T) {
	peer := newTestPeer(t, DefaultPeerOptions(), time.Now())
	_, server := attachPipeLink(t, peer)
	defer server.Close()

	handle, err := peer.Submit(context.Background(), &Request{Method: "GET", Target: "/"})
	require.NoError(t, err)
	require.Len(t, peer.links, 1)
	require.Equal(t, 1, peer.links[0].tagCount())

	buf := make([]byte, len("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	_, err = readFull(server, buf)
	require.NoError(t, err)
	_, err = server.Write([]byte("HTTP/1.1 204 No Content\r\n\r\n"))
	require.NoError(t, err)

	resp, err := handle.Future().Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 204, resp.Status)
}

func TestPeerSubmitRefusesWhileLatched(t *testing.T) {
	peer := newTestPeer(t, DefaultPeerOptions(), time.Now())
	peer.latch(ErrUnavailable)

	_, err := peer.Submit(context.Background(), &Request{Method: "GET", Target: "/"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestPeerSelectLinkSkipsSaturatedAndClosingLinks(t *testing.T) {
	opts := DefaultPeerOptions()
	opts.TagCommitMax = 1
	peer := newTestPeer(t, opts, time.Now())

	saturated, s1 := attachPipeLink(t, peer)
	defer s1.Close()
	saturated.mu.Lock()
	saturated.committedCount = 1
	saturated.fifo = []*tag{{}}
	saturated.mu.Unlock()

	closing, s2 := attachPipeLink(t, peer)
	defer s2.Close()
	closing.close(context.Background())

	fresh, s3 := attachPipeLink(t, peer)
	defer s3.Close()

	link, err := peer.selectLink(context.Background())
	require.NoError(t, err)
	assert.Same(t, fresh, link)
}

func TestPeerResubmitReHomesUncommittedTagOntoAnotherLink(t *testing.T) {
	peer := newTestPeer(t, DefaultPeerOptions(), time.Now())
	_, server := attachPipeLink(t, peer)
	defer server.Close()

	future, promise := taskengine.NewFuture[*Response]()
	placeholder := &Link{peer: peer}
	orphan := newTag(99, placeholder, &Request{Method: "GET", Target: "/orphan"}, promise)

	ok := peer.resubmit(orphan)
	require.True(t, ok)
	require.Same(t, peer.links[0], orphan.link)

	buf := make([]byte, len("GET /orphan HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	_, err := readFull(server, buf)
	require.NoError(t, err)
	_, err = server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	require.NoError(t, err)

	_, err = future.Get(context.Background())
	require.NoError(t, err)
}

func TestPeerCapturesServerHeaderOnce(t *testing.T) {
	peer := newTestPeer(t, DefaultPeerOptions(), time.Now())
	_, server := attachPipeLink(t, peer)
	defer server.Close()

	assert.Equal(t, "", peer.ServerHeader())

	handle, err := peer.Submit(context.Background(), &Request{Method: "GET", Target: "/"})
	require.NoError(t, err)

	buf := make([]byte, len("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	_, err = readFull(server, buf)
	require.NoError(t, err)
	_, err = server.Write([]byte("HTTP/1.1 200 OK\r\nServer: nginx\r\nContent-Length: 0\r\n\r\n"))
	require.NoError(t, err)

	_, err = handle.Future().Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "nginx", peer.ServerHeader())

	handle2, err := peer.Submit(context.Background(), &Request{Method: "GET", Target: "/again"})
	require.NoError(t, err)

	buf2 := make([]byte, len("GET /again HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	_, err = readFull(server, buf2)
	require.NoError(t, err)
	_, err = server.Write([]byte("HTTP/1.1 200 OK\r\nServer: apache\r\nContent-Length: 0\r\n\r\n"))
	require.NoError(t, err)

	_, err = handle2.Future().Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "nginx", peer.ServerHeader(), "first Server header wins and is never overwritten")
}

func TestPeerCaptureServerHeaderIgnoresEmptyHeader(t *testing.T) {
	peer := newTestPeer(t, DefaultPeerOptions(), time.Now())
	peer.captureServerHeader(&Response{Header: make(http.Header)})
	assert.Equal(t, "", peer.ServerHeader())
}

func TestPeerResolveAddressReusesCacheWithinTTLMax(t *testing.T) {
	now := time.Now()
	peer := newTestPeer(t, DefaultPeerOptions(), now)
	cached := netip.MustParseAddrPort("203.0.113.1:443")
	peer.resolved = []netip.AddrPort{cached}
	peer.resolvedAt = now

	// resolver is nil: if resolveAddress tried a fresh lookup here it
	// would panic, proving the cached address was reused instead.
	peer.cfg.TimeNow = func() time.Time { return now.Add(peer.opts.RemoteTTLMax - time.Second) }
	addr, err := peer.resolveAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cached, addr)
}

func TestFilterIPv6DropsV6AddressesOnly(t *testing.T) {
	v4 := netip.MustParseAddrPort("203.0.113.1:443")
	v6 := netip.MustParseAddrPort("[2001:db8::1]:443")
	out := filterIPv6([]netip.AddrPort{v4, v6})
	assert.Equal(t, []netip.AddrPort{v4}, out)
}

func TestPeerTrimIdleLinksKeepsLinkMinAndClosesTheRest(t *testing.T) {
	opts := DefaultPeerOptions()
	opts.LinkMin = 1
	peer := newTestPeer(t, opts, time.Now())

	kept, s1 := attachPipeLink(t, peer)
	defer s1.Close()
	extra, s2 := attachPipeLink(t, peer)
	defer s2.Close()

	peer.trimIdleLinks(context.Background())

	assert.False(t, kept.isClosed())
	require.Eventually(t, func() bool { return extra.isClosed() }, time.Second, time.Millisecond)
}
