// SPDX-License-Identifier: GPL-3.0-or-later

package httppipe

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/federationcore/fedcore/netcore"
	"github.com/federationcore/fedcore/taskengine"
)

// Link owns one TCP+TLS connection to a peer and the FIFO of [tag]s
// pipelined over it, the Go transcription of spec.md §4.3's "Link"
// entity. A link's reader and writer each run as their own
// [taskengine] task, synchronized over the link's FIFO by mu/dock
// rather than the source's `op_init`/`op_read`/`op_write` boolean flags
// — the equivalent state is observable here as "is the reader/writer
// task still running" plus the FIFO's contents.
type Link struct {
	peer    *Peer
	id      uint64
	address netip.AddrPort

	mu             sync.Mutex
	fifo           []*tag
	committedCount int
	nextTagID      uint64
	closed         bool

	socket *netcore.Socket
	dock   *taskengine.Dock

	writer *taskengine.Handle
	reader *taskengine.Handle
}

func openLink(ctx context.Context, peer *Peer, address netip.AddrPort) (*Link, error) {
	socket := netcore.NewSocket(nil, "tcp", peer.cfg, peer.logger)
	opts := peer.opts.Open
	opts.HostPort = peer.hostname
	if err := socket.Connect(ctx, address, opts); err != nil {
		return nil, err
	}

	if alpn := negotiatedALPN(socket.Conn()); alpn == "h2" {
		peer.logger.Info("httpLinkNegotiatedH2",
			slog.String("hostname", peer.hostname),
		)
		err := probeAndDiscardH2(ctx, socket.Conn(), peer.hostname)
		socket.Disconnect(ctx, netcore.CloseOptions{Type: netcore.CloseReset})
		if err != nil {
			return nil, err
		}
		return nil, ErrUnavailable
	}

	l := &Link{
		peer:    peer,
		id:      peer.nextLinkID(),
		address: address,
		socket:  socket,
		dock:    taskengine.NewDock(),
	}
	l.writer = taskengine.Spawn(ctx, taskengine.SpawnOptions{Name: "httppipe-link-writer"}, l.writeLoop)
	l.reader = taskengine.Spawn(ctx, taskengine.SpawnOptions{Name: "httppipe-link-reader"}, l.readLoop)
	return l, nil
}

// tagCount returns the link's current FIFO depth.
func (l *Link) tagCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fifo)
}

// pendingWriteBytes returns the sum of unsent out bytes across the
// FIFO, used by [Peer.submit]'s "least pending write bytes" tie-break.
func (l *Link) pendingWriteBytes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, t := range l.fifo {
		total += t.outstandingWrite()
	}
	return total
}

// pendingReadBytes approximates outstanding response bytes by the
// number of tags whose response head has not been parsed yet.
func (l *Link) pendingReadBytes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, t := range l.fifo {
		if !t.headParsed {
			total++
		}
	}
	return total
}

func (l *Link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// saturated reports whether this link is already at its committed-tag
// cap and so cannot accept another request without queuing behind it.
func (l *Link) saturated(commitMax int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committedCount >= commitMax && len(l.fifo) > 0
}

// hasCommittedTag reports whether the link currently has any tag that
// has started writing, used by the "priority min" dedicated-link rule.
func (l *Link) hasCommittedTag() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committedCount > 0
}

// enqueue appends t to the link's FIFO and wakes the writer.
func (l *Link) enqueue(t *tag) {
	l.mu.Lock()
	l.fifo = append(l.fifo, t)
	l.mu.Unlock()
	l.dock.NotifyAll()
}

func (l *Link) nextTagIDLocked() uint64 {
	l.nextTagID++
	return l.nextTagID
}

// writeLoop drains the FIFO in order: only the head uncommitted tag
// writes at a time, preserving spec.md §4.3's "link FIFO preservation"
// invariant on the send path.
func (l *Link) writeLoop(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return nil
		}
		t := l.nextWriteTagLocked()
		if t == nil {
			l.mu.Unlock()
			if err := l.dock.Wait(ctx); err != nil {
				return nil
			}
			continue
		}
		buf := t.makeWriteBuffer()
		l.mu.Unlock()

		if len(buf) == 0 {
			continue
		}
		n, err := l.socket.WriteFew(ctx, buf)
		if err != nil {
			l.onTransportError(err)
			return nil
		}

		l.mu.Lock()
		wasCommitted := t.committed()
		t.onWritten(n)
		if !wasCommitted && t.committed() {
			l.committedCount++
			l.logTagStarting(t)
		}
		l.mu.Unlock()
	}
}

// nextWriteTagLocked returns the first tag still accepting out bytes,
// honoring the per-link commit cap: once committedCount reaches the
// cap, writing pauses on any new (uncommitted) tag but an
// already-committed tag already in flight is allowed to finish.
func (l *Link) nextWriteTagLocked() *tag {
	for _, t := range l.fifo {
		if t.writeComplete() {
			continue
		}
		if !t.committed() && l.committedCount >= l.peer.opts.TagCommitMax {
			return nil
		}
		return t
	}
	return nil
}

func (l *Link) logTagStarting(t *tag) {
	l.peer.logger.Info("httpTagStarting",
		slog.Uint64("linkId", l.id),
		slog.Uint64("tagId", t.id),
		slog.String("httpMethod", t.req.Method),
		slog.String("httpTarget", t.req.Target),
	)
}

// readLoop reads whatever is available and feeds it to the FIFO's head
// tag, following pipelined responses across tag boundaries via the
// "overrun" slice each tag's consume returns.
func (l *Link) readLoop(ctx context.Context) error {
	buf := make([]byte, 64*1024)
	for {
		n, err := l.socket.ReadFew(ctx, buf)
		if err != nil {
			l.onTransportError(err)
			return nil
		}
		data := buf[:n]
		for len(data) > 0 {
			head, ok := l.peekFront()
			if !ok {
				break
			}
			overrun, completed, cerr := head.consume(data)
			if cerr != nil {
				l.onTransportError(cerr)
				return nil
			}
			if !completed {
				break
			}
			l.completeTag(head)
			data = overrun
		}
		l.dock.NotifyAll()
	}
}

func (l *Link) peekFront() (*tag, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.fifo) == 0 {
		return nil, false
	}
	return l.fifo[0], true
}

// completeTag pops the completed head tag and, unless it was canceled
// (in which case the response is simply discarded), notifies the peer
// so it can apply its error latch and Server-header capture before the
// tag's future is resolved. Idle-link trimming is not triggered here.
func (l *Link) completeTag(t *tag) {
	l.mu.Lock()
	if len(l.fifo) > 0 && l.fifo[0] == t {
		l.fifo = l.fifo[1:]
	}
	if t.committed() {
		l.committedCount--
	}
	allCanceled := len(l.fifo) > 0 && l.allCanceledLocked()
	l.mu.Unlock()

	if !t.canceled() {
		resp := t.response()
		l.peer.onResponseStatus(resp)
		if t.req.Opts.HTTPExceptions && resp.Status >= 300 {
			t.promise.SetError(fmt.Errorf("%w: status %d", ErrHTTPStatus, resp.Status))
		} else {
			t.promise.SetValue(resp)
		}
	}
	t.promise.Release()

	if allCanceled {
		l.closeReset(context.Background())
	}
}

func (l *Link) allCanceledLocked() bool {
	for _, t := range l.fifo {
		if !t.canceled() {
			return false
		}
	}
	return true
}

// cancelTag implements [RequestHandle.Cancel] for a tag on this link.
func (l *Link) cancelTag(t *tag) {
	l.mu.Lock()
	if !t.committed() {
		for i, candidate := range l.fifo {
			if candidate == t {
				l.fifo = append(l.fifo[:i], l.fifo[i+1:]...)
				break
			}
		}
		t.removed = true
		l.mu.Unlock()
		t.promise.SetError(ErrCanceled)
		t.promise.Release()
		l.dock.NotifyAll()
		return
	}
	t.cancelInternal()
	allCanceled := l.allCanceledLocked()
	l.mu.Unlock()

	t.promise.SetError(ErrCanceled)
	t.promise.Release()
	if allCanceled {
		l.closeReset(context.Background())
	}
	l.dock.NotifyAll()
}

// onTransportError implements spec.md §4.3's link-failure propagation:
// committed tags fail with the transport error, uncommitted tags are
// resubmitted elsewhere if possible (otherwise canceled), and the link
// closes.
func (l *Link) onTransportError(err error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	fifo := l.fifo
	l.fifo = nil
	l.mu.Unlock()

	for _, t := range fifo {
		if t.committed() {
			t.promise.SetError(fmt.Errorf("%w: %v", ErrLinkClosed, err))
			t.promise.Release()
			continue
		}
		if !l.peer.resubmit(t) {
			t.promise.SetError(ErrCanceled)
			t.promise.Release()
		}
	}

	l.socket.Disconnect(context.Background(), netcore.CloseOptions{Type: netcore.CloseReset})
	l.peer.onLinkClosed(l, err)
	l.dock.NotifyAll()
}

// closeReset aborts the connection immediately, used when every
// remaining tag in the pipeline has been canceled (spec.md §4.3: "If
// the entire pipeline contains only canceled tags, the link is closed
// to break out early").
func (l *Link) closeReset(ctx context.Context) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	l.socket.Disconnect(ctx, netcore.CloseOptions{Type: netcore.CloseReset})
	l.peer.onLinkClosed(l, nil)
	l.dock.NotifyAll()
}

// close shuts the link down from peer-driven idle-link trimming.
func (l *Link) close(ctx context.Context) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	l.socket.Disconnect(ctx, netcore.CloseOptions{Type: netcore.CloseFIN})
	l.dock.NotifyAll()
}
