// SPDX-License-Identifier: GPL-3.0-or-later

package taskengine

import (
	"context"
	"sync"
	"time"

	"github.com/bassosimone/runtimex"
)

// Queue is a single-producer/multi-consumer bounded FIFO. A capacity of 0
// means unbounded (Push never waits). The queue must be empty when
// dropped; see [Queue.Close].
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	closed   bool

	notEmpty *Dock
	notFull  *Dock
}

// NewQueue returns a [*Queue] bounded to capacity items (0 for
// unbounded).
func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{
		capacity: capacity,
		notEmpty: NewDock(),
		notFull:  NewDock(),
	}
}

// Push waits for room (if the queue is bounded and full) and enqueues v,
// notifying one waiting consumer. It is an interruption point.
func (q *Queue[T]) Push(ctx context.Context, v T) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		if q.capacity == 0 || len(q.items) < q.capacity {
			q.items = append(q.items, v)
			q.mu.Unlock()
			q.notEmpty.NotifyOne()
			return nil
		}
		q.mu.Unlock()
		if err := q.notFull.Wait(ctx); err != nil {
			return err
		}
	}
}

// Emplace is an alias of [Queue.Push] kept for contract parity with
// spec.md §4.1 ("push/emplace enqueues and notifies").
func (q *Queue[T]) Emplace(ctx context.Context, v T) error {
	return q.Push(ctx, v)
}

// Pop waits for an item to be available and dequeues it. It is an
// interruption point.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			q.notFull.NotifyOne()
			return v, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, ErrQueueClosed
		}
		q.mu.Unlock()
		if err := q.notEmpty.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
	}
}

// PopFor dequeues an item, returning [ErrTimeout] if none arrives within
// dur.
func (q *Queue[T]) PopFor(ctx context.Context, dur time.Duration) (T, error) {
	return q.popUntil(ctx, time.Now().Add(dur))
}

// PopUntil dequeues an item, returning [ErrTimeout] if none arrives by
// tp.
func (q *Queue[T]) PopUntil(ctx context.Context, tp time.Time) (T, error) {
	return q.popUntil(ctx, tp)
}

func (q *Queue[T]) popUntil(ctx context.Context, deadline time.Time) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			q.notFull.NotifyOne()
			return v, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, ErrQueueClosed
		}
		q.mu.Unlock()
		if err := q.notEmpty.WaitUntil(ctx, deadline); err != nil {
			var zero T
			return zero, err
		}
	}
}

// Len returns the number of items currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed, waking every waiter with [ErrQueueClosed].
// It asserts the queue is empty, matching the drop-time invariant in
// spec.md §3 ("Queue<T> ... Must be empty at drop").
func (q *Queue[T]) Close() {
	q.mu.Lock()
	runtimex.Assert(len(q.items) == 0)
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.NotifyAll()
	q.notFull.NotifyAll()
}
