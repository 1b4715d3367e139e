// SPDX-License-Identifier: GPL-3.0-or-later

// Package netcore implements the TCP+TLS network layer: a [Socket] type
// exposing wait/read/write primitives over a plain or TLS-wrapped
// connection, connect/handshake/disconnect with timeouts and certificate
// verification, and a TLS-terminating [Acceptor] with SNI/ALPN dispatch
// and handshake concurrency caps.
//
// The connect, TLS-handshake, observe and cancel-watch stages are built
// as composable [fedcore.Func]s, in the same style as the pipeline stages
// this package is adapted from, so callers assemble a connection the same
// way they assemble any other fedcore pipeline ([Socket] and [Acceptor]
// themselves expose plain methods):
//
//	connect := netcore.NewConnectFunc(cfg, "tcp", logger)
//	handshake := netcore.NewTLSHandshakeFunc(cfg, tlsConfig, logger)
//	pipeline := fedcore.Compose2[netip.AddrPort, net.Conn, netcore.TLSConn](connect, handshake)
//
// The package does not prescribe a kernel-level readiness mechanism
// (epoll/kqueue/poll/select); [Socket.Wait] is built entirely on Go's
// runtime-integrated netpoller via blocking I/O with deadlines, so the
// underlying reactor is whatever `GOOS`-specific poller the Go runtime
// already uses. See [Socket.Wait] for how TLS-buffered application data
// is accounted for.
package netcore
