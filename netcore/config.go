// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import (
	"crypto/tls"
	"time"
)

// OpenOptions configures [Socket.Connect]: dial target, SNI/certificate
// verification policy, and timeouts. It is the Go transcription of
// spec.md's `open_opts` struct (§4.2).
type OpenOptions struct {
	// HostPort is the name used for SNI (Server Name Indication) and, when
	// CommonName is empty, for certificate common-name verification.
	HostPort string

	// CommonName overrides HostPort for certificate verification purposes
	// (used when the dialed IP:port and the certificate's expected name
	// differ, e.g. when resolving through a fronting IP).
	CommonName string

	// SendSNI controls whether the TLS ClientHello carries a server_name
	// extension. Defaults to true.
	SendSNI bool

	// Handshake controls whether a TLS handshake is performed at all after
	// connecting. Defaults to true; set false for plaintext sockets.
	Handshake bool

	// VerifyCertificate controls whether the certificate chain is checked
	// against the policy below at all. Defaults to true.
	VerifyCertificate bool

	// AllowSelfSigned permits a self-signed leaf certificate (chain depth 0).
	AllowSelfSigned bool

	// AllowSelfChain permits a self-signed certificate anywhere in the
	// issuer chain (not just the leaf).
	AllowSelfChain bool

	// AllowExpired permits an expired certificate.
	AllowExpired bool

	// VerifyCommonName controls whether hostname-in-certificate
	// verification (subjectAltName or CN) is performed. Defaults to true.
	VerifyCommonName bool

	// VerifySelfSignedCommonName additionally verifies the hostname on an
	// otherwise-allowed self-signed certificate.
	VerifySelfSignedCommonName bool

	// ConnectTimeout bounds the TCP connect step. Defaults to 7500ms.
	ConnectTimeout time.Duration

	// HandshakeTimeout bounds the TLS handshake step. Defaults to 7500ms.
	HandshakeTimeout time.Duration

	// TLSConfig is the base [*tls.Config] to clone before handshaking; the
	// clone gets ServerName when SendSNI is set and the package's own
	// certificate verification when VerifyCertificate is set. NextProtos is
	// used as given. A nil value uses an empty config.
	TLSConfig *tls.Config
}

// DefaultOpenOptions returns the spec's documented defaults.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		SendSNI:           true,
		Handshake:         true,
		VerifyCertificate: true,
		VerifyCommonName:  true,
		ConnectTimeout:    7500 * time.Millisecond,
		HandshakeTimeout:  7500 * time.Millisecond,
	}
}

// CloseKind selects the style of orderly shutdown [Socket.Disconnect]
// performs, mirroring spec.md's `close_opts.type` enumeration.
type CloseKind int

const (
	// CloseReset aborts the connection with TCP RST (via SO_LINGER 0).
	CloseReset CloseKind = iota
	// CloseFIN performs a full bidirectional close.
	CloseFIN
	// CloseFINSend half-closes the write side only.
	CloseFINSend
	// CloseFINRecv half-closes the read side only.
	CloseFINRecv
	// CloseSSLNotify sends a TLS close_notify before closing the transport.
	CloseSSLNotify
)

// CloseOptions configures [Socket.Disconnect].
type CloseOptions struct {
	// Type selects the shutdown style.
	Type CloseKind

	// Timeout, when positive, sets a deadline on the context Disconnect
	// derives; none of Disconnect's close calls observe that context, so
	// Timeout does not bound how long the close takes.
	Timeout time.Duration
}

// AcceptorOptions configures a TLS-terminating [Acceptor], the Go
// transcription of spec.md's JSON-shaped acceptor option bag (§4.2).
type AcceptorOptions struct {
	// CommonName is the acceptor's configured identity, matched against
	// the client_hello's requested server name by the SNI callback.
	CommonName string

	// Certificates is the server's certificate chain plus private key,
	// already parsed. Populate via [tls.LoadX509KeyPair] or equivalent;
	// the acceptor does not itself read PEM files from disk.
	Certificates []tls.Certificate

	// CipherSuites restricts negotiation to this list; nil means "use
	// Go's default preference order".
	CipherSuites []uint16

	// CurvePreferences restricts key-exchange curve negotiation.
	CurvePreferences []tls.CurveID

	// MinVersion / MaxVersion bound the negotiated protocol version
	// (the Go transcription of the "disable sslv2/3, tlsv1.0/1.1..." flag
	// set: set MinVersion to exclude the legacy versions directly, since
	// crypto/tls has not implemented SSLv2/v3 or supported disabling
	// individual legacy versions piecemeal since Go 1.18).
	MinVersion uint16
	MaxVersion uint16

	// ALPNProtocols is the list the acceptor advertises as acceptable via
	// its ALPN callback; nil means "no ALPN negotiation" (the spec's
	// documented default).
	ALPNProtocols []string

	// HandshakingMax bounds the number of concurrent handshakes across the
	// whole acceptor. Defaults to 64. Exceeding it resets the new connection.
	HandshakingMax int

	// HandshakingMaxPerPeer bounds concurrent handshakes from a single
	// remote IP. Defaults to 16.
	HandshakingMaxPerPeer int
}

// DefaultAcceptorOptions returns the spec's documented defaults.
func DefaultAcceptorOptions() AcceptorOptions {
	return AcceptorOptions{
		HandshakingMax:        64,
		HandshakingMaxPerPeer: 16,
	}
}
