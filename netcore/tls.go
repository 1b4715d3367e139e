//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/tlsdialer.go
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/tls.go
//

package netcore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"

	"github.com/federationcore/fedcore"
)

// TLSEngine is the engine used to create a new [TLSConn].
type TLSEngine interface {
	// Client builds a new client [TLSConn].
	Client(conn net.Conn, config *tls.Config) TLSConn

	// Name returns the engine name.
	Name() string

	// Parrot returns the configured TLS parrot (fingerprint mimicry
	// profile) or an empty string.
	Parrot() string
}

// TLSEngineStdlib implements [TLSEngine] using [crypto/tls].
//
// The zero value is ready to use.
type TLSEngineStdlib struct{}

var _ TLSEngine = TLSEngineStdlib{}

// Client implements [TLSEngine] using [tls.Client].
func (TLSEngineStdlib) Client(conn net.Conn, config *tls.Config) TLSConn {
	return tls.Client(conn, config)
}

// Name implements [TLSEngine]; it returns "stdlib".
func (TLSEngineStdlib) Name() string {
	return "stdlib"
}

// Parrot implements [TLSEngine]; it returns "" (no fingerprint mimicry).
func (TLSEngineStdlib) Parrot() string {
	return ""
}

// TLSConn abstracts over [*tls.Conn] so alternative TLS implementations
// (e.g. a parroting engine) can be substituted.
type TLSConn interface {
	// ConnectionState returns the negotiated connection state.
	ConnectionState() tls.ConnectionState

	// HandshakeContext performs the handshake unless interrupted by ctx.
	HandshakeContext(ctx context.Context) error

	net.Conn
}

// NewTLSHandshakeFunc returns a new [*TLSHandshakeFunc] using tlsConfig.
//
// cfg supplies the ambient error classifier and clock; logger is the
// [fedcore.SLogger] used for structured logging.
func NewTLSHandshakeFunc(cfg *fedcore.Config, tlsConfig *tls.Config, logger fedcore.SLogger) *TLSHandshakeFunc {
	runtimex.Assert(tlsConfig != nil)
	return &TLSHandshakeFunc{
		Config:        tlsConfig,
		Engine:        TLSEngineStdlib{},
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// TLSHandshakeFunc performs a TLS handshake over an already-connected
// [net.Conn]; it implements [fedcore.Func][net.Conn, TLSConn].
//
// Fields are safe to modify after construction but before first use;
// they must not be mutated concurrently with [TLSHandshakeFunc.Call].
type TLSHandshakeFunc struct {
	// Config is the [*tls.Config] to clone and use for each handshake.
	Config *tls.Config

	// Engine performs the actual handshake; set to [TLSEngineStdlib] by
	// [NewTLSHandshakeFunc].
	Engine TLSEngine

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier fedcore.ErrClassifier

	// Logger is the [fedcore.SLogger] to use.
	Logger fedcore.SLogger

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

var _ fedcore.Func[net.Conn, TLSConn] = &TLSHandshakeFunc{}

// Call performs the handshake. Per the resource-cleanup contract
// documented on [fedcore.Func], it closes conn on handshake failure.
func (op *TLSHandshakeFunc) Call(ctx context.Context, conn net.Conn) (TLSConn, error) {
	config := op.tlsConfig()
	tconn := op.Engine.Client(conn, config)
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logHandshakeStart(op.Engine, conn, t0, deadline, config)
	err := tconn.HandshakeContext(ctx)
	state := tconn.ConnectionState()
	op.logHandshakeDone(op.Engine, conn, t0, deadline, config, err, state)
	return op.finish(tconn, err)
}

func (op *TLSHandshakeFunc) finish(conn TLSConn, err error) (TLSConn, error) {
	if err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (op *TLSHandshakeFunc) tlsConfig() *tls.Config {
	runtimex.Assert(op.Config != nil)
	config := op.Config.Clone()
	config.Time = op.TimeNow
	return config
}

func (op *TLSHandshakeFunc) logHandshakeStart(engine TLSEngine,
	conn net.Conn, t0 time.Time, deadline time.Time, config *tls.Config) {
	op.Logger.Info(
		"tlsHandshakeStart",
		slog.Time("deadline", deadline),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.Time("t", t0),
		slog.String("tlsEngineName", engine.Name()),
		slog.String("tlsParrot", engine.Parrot()),
		slog.Any("tlsOfferedProtocols", config.NextProtos),
		slog.String("tlsServerName", config.ServerName),
		slog.Bool("tlsSkipVerify", config.InsecureSkipVerify),
	)
}

func (op *TLSHandshakeFunc) logHandshakeDone(engine TLSEngine,
	conn net.Conn, t0 time.Time, deadline time.Time, config *tls.Config, err error, state tls.ConnectionState) {
	op.Logger.Info(
		"tlsHandshakeDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
		slog.String("tlsCipherSuite", tls.CipherSuiteName(state.CipherSuite)),
		slog.String("tlsEngineName", engine.Name()),
		slog.String("tlsParrot", engine.Parrot()),
		slog.String("tlsNegotiatedProtocol", state.NegotiatedProtocol),
		slog.Any("tlsOfferedProtocols", config.NextProtos),
		slog.Any("tlsPeerCerts", op.peerCerts(state, err)),
		slog.String("tlsServerName", config.ServerName),
		slog.Bool("tlsSkipVerify", config.InsecureSkipVerify),
		slog.String("tlsVersion", tls.VersionName(state.Version)),
	)
}

func (op *TLSHandshakeFunc) peerCerts(state tls.ConnectionState, err error) (out [][]byte) {
	out = [][]byte{}

	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		out = append(out, hostnameErr.Certificate.Raw)
		return
	}

	var unknownAuthorityErr x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthorityErr) {
		out = append(out, unknownAuthorityErr.Cert.Raw)
		return
	}

	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &invalidErr) {
		out = append(out, invalidErr.Cert.Raw)
		return
	}

	for _, cert := range state.PeerCertificates {
		out = append(out, cert.Raw)
	}
	return
}
