//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/dialer.go
//

package netcore

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/safeconn"

	"github.com/federationcore/fedcore"
)

// NewConnectFunc returns a new [*ConnectFunc] using cfg's dialer.
//
// network must be "tcp" or "udp"; logger is the [fedcore.SLogger] used for
// structured logging.
func NewConnectFunc(cfg *fedcore.Config, network string, logger fedcore.SLogger) *ConnectFunc {
	return &ConnectFunc{
		Dialer:        cfg.Dialer,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Network:       network,
		TimeNow:       cfg.TimeNow,
	}
}

// ConnectFunc dials a [netip.AddrPort] on a configured network. It
// implements [fedcore.Func][netip.AddrPort, net.Conn].
//
// Fields are safe to modify after construction but before first use; they
// must not be mutated concurrently with [ConnectFunc.Call].
type ConnectFunc struct {
	// Dialer performs the dial.
	Dialer fedcore.Dialer

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier fedcore.ErrClassifier

	// Logger is the [fedcore.SLogger] to use.
	Logger fedcore.SLogger

	// Network is "tcp" or "udp".
	Network string

	// TimeNow returns the current time.
	TimeNow func() time.Time
}

var _ fedcore.Func[netip.AddrPort, net.Conn] = &ConnectFunc{}

// Call dials address, returning either a [net.Conn] or an error, never both.
func (op *ConnectFunc) Call(ctx context.Context, address netip.AddrPort) (net.Conn, error) {
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logConnectStart(op.Network, address.String(), t0, deadline)
	conn, err := op.Dialer.DialContext(ctx, op.Network, address.String())
	op.logConnectDone(op.Network, address.String(), t0, deadline, conn, err)
	return conn, err
}

func (op *ConnectFunc) logConnectStart(network, address string, t0 time.Time, deadline time.Time) {
	op.Logger.Info(
		"connectStart",
		slog.Time("deadline", deadline),
		slog.String("protocol", network),
		slog.String("remoteAddr", address),
		slog.Time("t", t0),
	)
}

func (op *ConnectFunc) logConnectDone(
	network, address string, t0 time.Time, deadline time.Time, conn net.Conn, err error) {
	op.Logger.Info(
		"connectDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", network),
		slog.String("remoteAddr", address),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}
