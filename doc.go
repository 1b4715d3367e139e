// SPDX-License-Identifier: GPL-3.0-or-later

// Package fedcore provides the ambient stack shared by the three layers of
// a TLS-secured HTTP federation client: [taskengine] (cooperative task
// scheduling and synchronization primitives), [netcore] (TCP+TLS sockets,
// a TLS-terminating listener, and a caching DNS resolver), and [httppipe]
// (an HTTP/1.1 pipelining client organized around per-destination peers).
//
// # Layering
//
// httppipe depends on netcore, which depends on taskengine. Nothing in
// taskengine knows about sockets; nothing in netcore knows about HTTP.
// This package sits below all three and holds only the configuration,
// logging, and error-classification types they share:
//
//   - [Config]: the base dialer, clock, and error classifier thread
//     through to every layer.
//   - [SLogger]: a minimal structured-logging interface compatible with
//     [log/slog], defaulting to a no-op discard logger.
//   - [ErrClassifier]: maps an error to a short label ("ETIMEDOUT",
//     "ECONNRESET", ...) for log-based analysis, via [DefaultErrClassifier].
//   - [NewSpanID]: a UUIDv7 span identifier correlating the log events of
//     one connect/handshake/exchange/round-trip across a pipeline.
//   - [Func] and [Compose2] through [Compose8]: a generic, type-safe way
//     to chain single-input/single-output operations; netcore's dial and
//     handshake steps are expressed this way.
//
// # Observability
//
// All three layers emit structured log events through [SLogger]: Info for
// lifecycle events (connect, handshake, accept, DNS exchange, tag
// start) and Debug for per-I/O events (read, write, deadline
// changes). Logging is opt-in; the zero-value logger discards everything.
//
// # Concurrency model
//
// taskengine runs every spawned task on its own goroutine, so tasks may
// run in parallel; there is no single scheduler goroutine. Shared state
// such as netcore's DNS cache and httppipe's peers and links is guarded
// by mutexes and is safe for concurrent use. [taskengine.Offload] runs a
// blocking closure on a separate goroutine while the calling task waits
// for it.
package fedcore
