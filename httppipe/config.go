// SPDX-License-Identifier: GPL-3.0-or-later

package httppipe

import (
	"time"

	"github.com/federationcore/fedcore/netcore"
)

// PeerOptions configures a [Peer] and the [Link]s it opens, the Go
// transcription of spec.md §6's `server.peer.*`/`server.link.*`
// configuration surface.
type PeerOptions struct {
	// LinkMin is the minimum number of links a peer keeps open while it
	// has pending work, even if idle. Defaults to 1.
	LinkMin int

	// LinkMax bounds the number of concurrent links a peer may open.
	// Defaults to 4.
	LinkMax int

	// TagCommitMax bounds the number of committed (in-flight, bytes
	// already written) tags a single link may hold at once. Defaults to 3.
	TagCommitMax int

	// TagMax bounds the total FIFO depth (committed + queued) of a
	// single link. Defaults to 16384.
	TagMax int

	// RemoteTTLMax bounds how long a peer reuses its last resolved
	// address before forcing a fresh lookup, regardless of the DNS
	// resolver's own cache TTL. RemoteTTLMin is the floor below which a
	// cached address is never considered stale, i.e. it is kept even if
	// some other signal would otherwise trigger a refresh sooner; this
	// implementation has no such earlier signal, so RemoteTTLMin acts as
	// pure documentation of the window's lower bound for now. Defaults to
	// 21600s/259200s.
	RemoteTTLMin time.Duration
	RemoteTTLMax time.Duration

	// ErrorClearDefault is the cool-down duration after a peer's error
	// latch before new submissions are retried. Defaults to 305s.
	ErrorClearDefault time.Duration

	// Open is the connect/handshake policy used to open each link.
	Open netcore.OpenOptions

	// EnableIPv6 mirrors net.enable_ipv6 for the peer's own resolution.
	EnableIPv6 bool
}

// DefaultPeerOptions returns spec.md §5/§6's documented defaults.
func DefaultPeerOptions() PeerOptions {
	return PeerOptions{
		LinkMin:           1,
		LinkMax:           4,
		TagCommitMax:      3,
		TagMax:            16384,
		RemoteTTLMin:      21600 * time.Second,
		RemoteTTLMax:      259200 * time.Second,
		ErrorClearDefault: 305 * time.Second,
		Open:              netcore.DefaultOpenOptions(),
		EnableIPv6:        true,
	}
}

// errorStatusLatches is the set of response status codes that latch a
// peer error on receipt, per spec.md §4.3's "upstream/CDN failure" list.
var errorStatusLatches = map[int]bool{
	502: true,
	504: true,
	520: true,
	522: true,
	524: true,
}
