// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import "errors"

// ErrHandshakeLimitExceeded names the condition of a new connection that
// would exceed the configured global or per-peer concurrent-handshake cap.
// [Acceptor] does not return it: it resets such a connection immediately
// rather than queuing it, and logs an acceptorHandshakeLimitExceeded event.
var ErrHandshakeLimitExceeded = errors.New("netcore: handshake concurrency limit exceeded")

// ErrSNIMismatch names the non-fatal condition of a client_hello whose
// requested server name does not match the acceptor's configured common
// name. [Acceptor] does not return it: it logs an acceptorSNIMismatch
// event and goes on with the handshake.
var ErrSNIMismatch = errors.New("netcore: SNI did not match configured common name")

// ErrCertificateRejected is returned by the certificate verification policy
// when a chain fails every applicable exception (self-signed, expired, CN
// mismatch) the caller's [OpenOptions] allow.
var ErrCertificateRejected = errors.New("netcore: certificate chain rejected by verification policy")

// ErrSocketClosed names the closed-socket condition. [Socket] I/O methods
// do not return it; after [Socket.Disconnect] they return whatever error
// the underlying connection reports.
var ErrSocketClosed = errors.New("netcore: socket is closed")

// ErrShortRead is returned by [Socket.ReadAll] when the underlying connection
// reaches EOF before the destination buffers are full.
var ErrShortRead = errors.New("netcore: connection closed before buffers were full")

// ErrTimeout is returned by [Socket.Wait] and the blocking read/write
// variants when the operation's deadline elapses before progress is made.
var ErrTimeout = errors.New("netcore: operation timed out")
