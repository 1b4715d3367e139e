// SPDX-License-Identifier: GPL-3.0-or-later

package dns

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/safeconn"
	"github.com/miekg/dns"

	"github.com/federationcore/fedcore"
)

// exchangeUDP sends query to server over UDP and returns the parsed reply,
// bounded by ctx. It logs dnsExchangeStart/dnsExchangeDone the way the
// teacher's DNSOverUDPConn.Exchange does.
func exchangeUDP(ctx context.Context, cfg *fedcore.Config, logger fedcore.SLogger,
	server netip.AddrPort, query *dns.Msg) (*dns.Msg, error) {
	raw, err := query.Pack()
	if err != nil {
		return nil, err
	}

	dialer := cfg.Dialer
	conn, err := dialer.DialContext(ctx, "udp", server.String())
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	t0 := cfg.TimeNow()
	deadline, _ := ctx.Deadline()
	logDNSExchangeStart(logger, conn, "udp", t0, deadline)

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	_, err = conn.Write(raw)
	if err != nil {
		logDNSExchangeDone(logger, cfg, conn, "udp", t0, deadline, err)
		return nil, err
	}

	buf := make([]byte, 65535)
	n, err := conn.Read(buf)
	logDNSExchangeDone(logger, cfg, conn, "udp", t0, deadline, err)
	if err != nil {
		return nil, err
	}

	return parseReply(buf[:n])
}

// exchangeTCP sends query to server over TCP using RFC 1035 §4.2.2's
// two-byte length-prefix framing, for the UDP→TCP fallback on a
// truncated response.
func exchangeTCP(ctx context.Context, cfg *fedcore.Config, logger fedcore.SLogger,
	server netip.AddrPort, query *dns.Msg) (*dns.Msg, error) {
	raw, err := query.Pack()
	if err != nil {
		return nil, err
	}

	dialer := cfg.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", server.String())
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	t0 := cfg.TimeNow()
	deadline, _ := ctx.Deadline()
	logDNSExchangeStart(logger, conn, "tcp", t0, deadline)

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	err = writeTCPFramed(conn, raw)
	if err != nil {
		logDNSExchangeDone(logger, cfg, conn, "tcp", t0, deadline, err)
		return nil, err
	}

	reply, err := readTCPFramed(conn)
	logDNSExchangeDone(logger, cfg, conn, "tcp", t0, deadline, err)
	if err != nil {
		return nil, err
	}

	return parseReply(reply)
}

func writeTCPFramed(conn net.Conn, raw []byte) error {
	var lenPrefix [2]byte
	binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(raw)))
	if _, err := conn.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := conn.Write(raw)
	return err
}

func readTCPFramed(conn net.Conn) ([]byte, error) {
	var lenPrefix [2]byte
	if _, err := io.ReadFull(conn, lenPrefix[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint16(lenPrefix[:])
	buf := make([]byte, size)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func logDNSExchangeStart(logger fedcore.SLogger, conn net.Conn, serverProtocol string, t0, deadline time.Time) {
	logger.Info(
		"dnsExchangeStart",
		slog.Time("deadline", deadline),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.String("serverProtocol", serverProtocol),
		slog.Time("t", t0),
	)
}

func logDNSExchangeDone(logger fedcore.SLogger, cfg *fedcore.Config, conn net.Conn,
	serverProtocol string, t0, deadline time.Time, err error) {
	logger.Info(
		"dnsExchangeDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", cfg.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.String("serverProtocol", serverProtocol),
		slog.Time("t0", t0),
		slog.Time("t", cfg.TimeNow()),
	)
}
