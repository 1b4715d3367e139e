// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/federationcore/fedcore"
	"github.com/federationcore/fedcore/taskengine"
)

// Readiness is a bitmask of I/O readiness classes, the Go transcription of
// spec.md §4.2's READ/WRITE/ERROR wait classes.
type Readiness uint8

const (
	ReadinessRead Readiness = 1 << iota
	ReadinessWrite
	ReadinessError
)

// WaitOptions configures [Socket.Wait].
type WaitOptions struct {
	// Readiness selects which condition to wait for.
	Readiness Readiness

	// Timeout bounds the wait; zero means "use ctx's deadline, or block
	// indefinitely if ctx has none".
	Timeout time.Duration

	// CancelOnInterrupt, when true, makes Wait check
	// [taskengine.InterruptionPoint] before blocking so a task interrupted
	// before the call need not touch the network at all. An interrupt
	// delivered while already blocked in the underlying read is observed
	// only at the next Wait/Read call, not by aborting the in-flight
	// syscall — only ctx cancellation and Timeout do that immediately.
	CancelOnInterrupt bool
}

// Socket wraps a TCP [net.Conn] and, once [Socket.Connect] completes a
// handshake, the [TLSConn] layered on top of it. It exposes spec.md §4.2's
// wait/read/write primitives without prescribing a kernel reactor
// mechanism: [Socket.Wait] is built on Go's deadline-driven blocking I/O,
// which the runtime itself schedules through its netpoller (epoll, kqueue,
// or whatever GOOS provides).
type Socket struct {
	mu       sync.Mutex
	conn     net.Conn
	tlsConn  TLSConn
	br       *bufio.Reader
	closed   bool
	network  string
	cfg      *fedcore.Config
	logger   fedcore.SLogger
	observed bool
}

// NewSocket wraps an already-established conn. Use [Socket.Connect] instead
// to have the socket dial and optionally handshake itself.
func NewSocket(conn net.Conn, network string, cfg *fedcore.Config, logger fedcore.SLogger) *Socket {
	return &Socket{
		conn:    conn,
		br:      bufio.NewReader(conn),
		network: network,
		cfg:     cfg,
		logger:  logger,
	}
}

// Conn returns the current innermost I/O layer (TLS conn if handshaked,
// otherwise the raw conn), for callers that need direct access (logging,
// address inspection).
func (s *Socket) Conn() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Connect dials address and, if opts.Handshake, performs a TLS handshake
// with the certificate verification policy described by opts. On any
// failure the partially established connection is closed before returning.
func (s *Socket) Connect(ctx context.Context, address netip.AddrPort, opts OpenOptions) error {
	connectCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	connectFn := NewConnectFunc(s.cfg, s.network, s.logger)
	conn, err := connectFn.Call(connectCtx, address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.br = bufio.NewReader(conn)
	s.mu.Unlock()

	if !opts.Handshake {
		return nil
	}

	tlsConfig := opts.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	tlsConfig = tlsConfig.Clone()
	if opts.SendSNI {
		name := opts.HostPort
		if opts.CommonName != "" {
			name = opts.CommonName
		}
		tlsConfig.ServerName = name
	}
	if opts.VerifyCertificate {
		tlsConfig.InsecureSkipVerify = true
		verifier := &certVerifier{opts: opts, now: s.cfg.TimeNow}
		tlsConfig.VerifyPeerCertificate = verifier.verify
	}

	handshakeCtx := ctx
	if opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		handshakeCtx, cancel = context.WithTimeout(ctx, opts.HandshakeTimeout)
		defer cancel()
	}

	handshakeFn := NewTLSHandshakeFunc(s.cfg, tlsConfig, s.logger)
	tconn, err := handshakeFn.Call(handshakeCtx, conn)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = tconn
	s.tlsConn = tconn
	s.br = bufio.NewReader(tconn)
	s.mu.Unlock()
	return nil
}

// Wait suspends until the requested [Readiness] holds on the socket, or
// opts.Timeout/ctx's deadline elapses, or ctx is otherwise cancelled.
//
// Waiting for READ accounts for bytes the TLS layer (or our own read
// buffer) has already decoded: if data is already buffered, Wait returns
// immediately without touching the network, which is what spec.md's
// "the READ wait must account for bytes already buffered" requirement
// describes.
func (s *Socket) Wait(ctx context.Context, opts WaitOptions) error {
	if opts.CancelOnInterrupt {
		if err := taskengine.InterruptionPoint(ctx); err != nil {
			return err
		}
	}
	if opts.Readiness&ReadinessRead != 0 {
		return s.waitRead(ctx, opts.Timeout)
	}
	// Write readiness is approximated as always-ready: kernel send buffers
	// are large enough in practice that this model's blocking Write calls
	// observe backpressure directly, rather than through a separate poll
	// step. See doc.go for the broader reactor-portability rationale.
	return nil
}

func (s *Socket) waitRead(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	br, conn := s.br, s.conn
	s.mu.Unlock()
	if br.Buffered() > 0 {
		return nil
	}

	deadline, hasDeadline := s.effectiveDeadline(ctx, timeout)
	if hasDeadline {
		conn.SetReadDeadline(deadline)
		defer conn.SetReadDeadline(time.Time{})
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Unix(0, 1))
	})
	defer stop()

	_, err := br.Peek(1)
	if err == nil {
		return nil
	}
	if isTimeoutErr(err) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTimeout
	}
	return err
}

func (s *Socket) effectiveDeadline(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	var deadline time.Time
	if timeout > 0 {
		deadline = s.cfg.TimeNow().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok {
		if deadline.IsZero() || d.Before(deadline) {
			deadline = d
		}
	}
	return deadline, !deadline.IsZero()
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ReadAll suspends until every buf is full or the connection reaches EOF.
// On EOF with zero cumulative progress it returns [io.EOF]-compatible
// behavior via [ErrShortRead]'s sibling semantics: zero progress is
// reported as the raw EOF error, any partial progress as [ErrShortRead].
func (s *Socket) ReadAll(ctx context.Context, bufs ...[]byte) (int, error) {
	var total int
	for _, buf := range bufs {
		for off := 0; off < len(buf); {
			n, err := s.ReadFew(ctx, buf[off:])
			total += n
			off += n
			if err != nil {
				if errors.Is(err, net.ErrClosed) || isEOF(err) {
					if total == 0 {
						return 0, err
					}
					return total, ErrShortRead
				}
				return total, err
			}
		}
	}
	return total, nil
}

func isEOF(err error) bool {
	return err != nil && err.Error() == "EOF"
}

// ReadFew suspends until at least one byte has arrived, then returns
// whatever is immediately available (never more than len(buf)).
func (s *Socket) ReadFew(ctx context.Context, buf []byte) (int, error) {
	if err := s.Wait(ctx, WaitOptions{Readiness: ReadinessRead}); err != nil {
		return 0, err
	}
	s.mu.Lock()
	br := s.br
	s.mu.Unlock()
	return br.Read(buf)
}

// ReadOne performs a single non-blocking read attempt: it never suspends.
// A zero-byte, nil-error return means "nothing available right now".
func (s *Socket) ReadOne(buf []byte) (int, error) {
	s.mu.Lock()
	br, conn := s.br, s.conn
	s.mu.Unlock()
	if br.Buffered() > 0 {
		return br.Read(buf)
	}
	conn.SetReadDeadline(time.Unix(0, 1))
	n, err := br.Read(buf)
	conn.SetReadDeadline(time.Time{})
	if isTimeoutErr(err) {
		return 0, nil
	}
	return n, err
}

// ReadAny drains as much as is immediately available into buf without
// suspending; a zero-byte, nil-error return means EAGAIN (nothing ready).
func (s *Socket) ReadAny(buf []byte) (int, error) {
	var total int
	for total < len(buf) {
		n, err := s.ReadOne(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// WriteAll suspends until the entire buf has been written.
func (s *Socket) WriteAll(ctx context.Context, buf []byte) (int, error) {
	var total int
	for total < len(buf) {
		n, err := s.WriteFew(ctx, buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteFew suspends until at least one byte has been written.
func (s *Socket) WriteFew(ctx context.Context, buf []byte) (int, error) {
	if err := s.Wait(ctx, WaitOptions{Readiness: ReadinessWrite}); err != nil {
		return 0, err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return conn.Write(buf)
}

// WriteOne performs a single non-blocking write attempt: it never suspends.
func (s *Socket) WriteOne(buf []byte) (int, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	conn.SetWriteDeadline(time.Unix(0, 1))
	n, err := conn.Write(buf)
	conn.SetWriteDeadline(time.Time{})
	if isTimeoutErr(err) {
		return n, nil
	}
	return n, err
}

// WriteAny writes as much of buf as is immediately acceptable without
// suspending.
func (s *Socket) WriteAny(buf []byte) (int, error) {
	return s.WriteOne(buf)
}

// Check is a non-blocking readiness probe; it never suspends regardless of
// the caller's context.
func (s *Socket) Check(readiness Readiness) error {
	if readiness&ReadinessRead != 0 {
		s.mu.Lock()
		br := s.br
		s.mu.Unlock()
		if br.Buffered() > 0 {
			return nil
		}
		_, err := s.ReadOne(make([]byte, 0))
		return err
	}
	return nil
}

// Disconnect performs an orderly close per opts.Type. The close calls do
// not observe ctx or opts.Timeout, so neither bounds how long they take.
func (s *Socket) Disconnect(ctx context.Context, opts CloseOptions) error {
	s.mu.Lock()
	conn, tlsConn, closed := s.conn, s.tlsConn, s.closed
	s.closed = true
	s.mu.Unlock()
	if closed {
		return nil
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	switch opts.Type {
	case CloseReset:
		if tcpConn, ok := underlyingTCPConn(conn); ok {
			tcpConn.SetLinger(0)
		}
	case CloseSSLNotify:
		// *tls.Conn.Close() already sends close_notify before closing the
		// transport; there is no separate notify-then-keep-reading step
		// exposed by the [TLSConn] interface, so this falls through to the
		// ordinary Close below.
		_ = tlsConn
	case CloseFINSend:
		if tcpConn, ok := underlyingTCPConn(conn); ok {
			return tcpConn.CloseWrite()
		}
	case CloseFINRecv:
		if tcpConn, ok := underlyingTCPConn(conn); ok {
			return tcpConn.CloseRead()
		}
	case CloseFIN:
		// fall through to Close below.
	}
	return conn.Close()
}

func underlyingTCPConn(conn net.Conn) (*net.TCPConn, bool) {
	for {
		switch c := conn.(type) {
		case *net.TCPConn:
			return c, true
		case interface{ NetConn() net.Conn }:
			// *tls.Conn (Go 1.21+) implements this; unwrap to reach the
			// raw TCP connection for RST/half-close handling.
			conn = c.NetConn()
		default:
			return nil, false
		}
	}
}
