// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"

	"github.com/federationcore/fedcore"
)

// Acceptor is a TLS-terminating listener with SNI-based logging, ALPN
// protocol selection, and a cap on concurrently in-progress handshakes
// (globally and per remote IP), per spec.md §4.2.
//
// Construct with [NewAcceptor], then call [Acceptor.Serve].
type Acceptor struct {
	inner  net.Listener
	opts   AcceptorOptions
	cfg    *fedcore.Config
	logger fedcore.SLogger

	tlsConfig *tls.Config

	mu          sync.Mutex
	globalCount int
	perPeer     map[string]int

	wg sync.WaitGroup
}

// NewAcceptor wraps inner (typically a [*net.TCPListener]) with TLS
// termination according to opts.
func NewAcceptor(inner net.Listener, opts AcceptorOptions, cfg *fedcore.Config, logger fedcore.SLogger) *Acceptor {
	if opts.HandshakingMax <= 0 {
		opts.HandshakingMax = 64
	}
	if opts.HandshakingMaxPerPeer <= 0 {
		opts.HandshakingMaxPerPeer = 16
	}
	a := &Acceptor{
		inner:   inner,
		opts:    opts,
		cfg:     cfg,
		logger:  logger,
		perPeer: make(map[string]int),
	}
	a.tlsConfig = &tls.Config{
		Certificates:      opts.Certificates,
		CipherSuites:      opts.CipherSuites,
		CurvePreferences:  opts.CurvePreferences,
		MinVersion:        opts.MinVersion,
		MaxVersion:        opts.MaxVersion,
		NextProtos:        opts.ALPNProtocols,
		Time:              cfg.TimeNow,
		GetConfigForClient: a.getConfigForClient,
	}
	return a
}

// getConfigForClient implements the SNI callback: it never rejects based on
// server name alone (spec.md only requires a warning on mismatch), but logs
// when the client's requested name does not match the acceptor's identity.
func (a *Acceptor) getConfigForClient(hello *tls.ClientHelloInfo) (*tls.Config, error) {
	if a.opts.CommonName != "" && hello.ServerName != "" && hello.ServerName != a.opts.CommonName {
		a.logger.Info(
			"acceptorSNIMismatch",
			slog.String("requestedServerName", hello.ServerName),
			slog.String("configuredCommonName", a.opts.CommonName),
			slog.String("remoteAddr", hello.Conn.RemoteAddr().String()),
		)
	}
	return nil, nil
}

// Serve accepts connections until ctx is done or the underlying listener
// returns a permanent error. Each successfully handshaked connection is
// delivered to onAccept as a [*Socket]; onAccept is called synchronously
// from a per-connection goroutine, so it must not block indefinitely.
//
// On return (including via ctx cancellation), Serve waits for all
// in-flight handshakes to drain before returning, per spec.md's shutdown
// contract.
func (a *Acceptor) Serve(ctx context.Context, onAccept func(*Socket)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		a.inner.Close()
	}()

	var serveErr error
	for {
		conn, err := a.inner.Accept()
		if err != nil {
			if ctx.Err() != nil {
				serveErr = nil
			} else {
				serveErr = err
			}
			break
		}
		a.wg.Add(1)
		go a.handle(ctx, conn, onAccept)
	}
	a.wg.Wait()
	return serveErr
}

func (a *Acceptor) handle(ctx context.Context, conn net.Conn, onAccept func(*Socket)) {
	defer a.wg.Done()

	peerIP := remoteIP(conn)
	if !a.acquireHandshakeSlot(peerIP) {
		a.logger.Info("acceptorHandshakeLimitExceeded", slog.String("remoteAddr", peerIP))
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetLinger(0)
		}
		conn.Close()
		return
	}
	defer a.releaseHandshakeSlot(peerIP)

	tlsConn := tls.Server(conn, a.tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		a.logger.Info("acceptorHandshakeFailed", slog.String("remoteAddr", peerIP), slog.Any("err", err))
		conn.Close()
		return
	}

	socket := NewSocket(tlsConn, "tcp", a.cfg, a.logger)
	socket.tlsConn = tlsConn
	onAccept(socket)
}

func (a *Acceptor) acquireHandshakeSlot(peerIP string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.globalCount >= a.opts.HandshakingMax {
		return false
	}
	if a.perPeer[peerIP] >= a.opts.HandshakingMaxPerPeer {
		return false
	}
	a.globalCount++
	a.perPeer[peerIP]++
	return true
}

func (a *Acceptor) releaseHandshakeSlot(peerIP string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.globalCount--
	a.perPeer[peerIP]--
	if a.perPeer[peerIP] <= 0 {
		delete(a.perPeer, peerIP)
	}
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
