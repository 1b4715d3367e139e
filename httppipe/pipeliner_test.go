// SPDX-License-Identifier: GPL-3.0-or-later

package httppipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/federationcore/fedcore"
)

func newTestPipeliner(t *testing.T) *Pipeliner {
	t.Helper()
	return NewPipeliner(DefaultPeerOptions(), fedcore.NewConfig(), fedcore.DefaultSLogger(), nil)
}

func TestPipelinerPeerForReusesSameHostCaseInsensitively(t *testing.T) {
	p := newTestPipeliner(t)
	a := p.peerFor("Example.com:443")
	b := p.peerFor("example.COM:443")
	assert.Same(t, a, b)
}

func TestPipelinerPeerForDefaultsToPort443(t *testing.T) {
	p := newTestPipeliner(t)
	withDefault := p.peerFor("example.com")
	explicit := p.peerFor("example.com:443")
	assert.Same(t, withDefault, explicit)
	assert.Equal(t, "443", withDefault.port)
}

func TestPipelinerPeerForPreservesExplicitNonDefaultPort(t *testing.T) {
	p := newTestPipeliner(t)
	a := p.peerFor("example.com:8443")
	b := p.peerFor("example.com:443")
	require.NotSame(t, a, b)
	assert.Equal(t, "8443", a.port)
	assert.Equal(t, "443", b.port)
}

func TestSplitHostPortFallsBackToBareHostOn443(t *testing.T) {
	host, port := splitHostPort("example.com")
	assert.Equal(t, "example.com", host)
	assert.Equal(t, "443", port)

	host, port = splitHostPort("example.com:8080")
	assert.Equal(t, "example.com", host)
	assert.Equal(t, "8080", port)
}
