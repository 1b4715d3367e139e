// SPDX-License-Identifier: GPL-3.0-or-later

package httppipe

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"

	"github.com/bassosimone/sud"
	"golang.org/x/net/http2"
)

// negotiatedALPN reports the ALPN protocol negotiated on conn, or "" if
// conn is not a TLS connection or negotiated none, using the same
// type-assertion idiom a teacher round-tripper uses to pick a
// transport. httppipe's own engine never varies by ALPN — it always
// speaks HTTP/1.1 — so this exists purely to let a link log what a
// peer advertised (see probeAndDiscardH2).
func negotiatedALPN(conn net.Conn) string {
	type connectionStater interface {
		ConnectionState() tls.ConnectionState
	}
	if csp, ok := conn.(connectionStater); ok {
		return csp.ConnectionState().NegotiatedProtocol
	}
	return ""
}

// probeAndDiscardH2 handles the one case where a link's TLS handshake
// negotiates "h2". This package sets no ALPN protocols itself, so that
// happens only when the TLSConfig in [PeerOptions.Open] offers "h2" in its
// NextProtos. Such a connection cannot be handed to the link's
// byte-oriented HTTP/1.1 reader/writer (an h2 connection preface would
// desync its parser), so instead a single opportunistic HTTP/2 HEAD
// round trip is performed over it — just enough to confirm the peer
// is live and to log its advertised settings — and the connection is
// then always closed, never reused for the caller's Link.
//
// This is the opportunistic h2 metadata path: conn is single-use by
// construction ([sud.NewSingleUseDialer]), so there is no risk of a
// real request's bytes ever taking this path instead of the FIFO
// pipeline.
func probeAndDiscardH2(ctx context.Context, conn net.Conn, hostname string) error {
	dialer := sud.NewSingleUseDialer(conn)
	txp := &http2.Transport{
		DialTLSContext:     dialer.DialTLSContext,
		DisableCompression: true,
	}
	defer txp.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+hostname+"/", nil)
	if err != nil {
		return err
	}
	resp, err := txp.RoundTrip(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
