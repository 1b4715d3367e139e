// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import (
	"context"
	"net"

	"github.com/federationcore/fedcore"
)

// NewCancelWatchFunc returns a new [*CancelWatchFunc].
func NewCancelWatchFunc() *CancelWatchFunc {
	return &CancelWatchFunc{}
}

// CancelWatchFunc arranges for a connection to be closed when its context
// is done, giving responsive cleanup on external cancellation (e.g. a
// peer-level interrupt) instead of waiting for the next per-operation
// timeout to expire.
//
// The returned connection wraps the input: closing it unregisters the
// watcher and closes the underlying connection, so no goroutine leaks even
// if the context is never cancelled.
type CancelWatchFunc struct{}

var _ fedcore.Func[net.Conn, net.Conn] = &CancelWatchFunc{}

// Call registers a watcher via [context.AfterFunc] that closes conn when
// ctx is done.
func (op *CancelWatchFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	return &cancelWatchedConn{Conn: conn, stop: stop}, nil
}

// cancelWatchedConn wraps a [net.Conn] with a context cancellation watcher.
type cancelWatchedConn struct {
	net.Conn
	stop func() bool
}

// Close unregisters the context watcher and closes the underlying connection.
func (c *cancelWatchedConn) Close() error {
	c.stop()
	return c.Conn.Close()
}
