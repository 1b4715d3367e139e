// SPDX-License-Identifier: GPL-3.0-or-later

package taskengine

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// wakeReason records why a waiter's channel was closed.
type wakeReason int32

const (
	wakeNotified wakeReason = iota
	wakeTimeout
	wakeInterrupted
	wakeCtxDone
)

// waiter is one entry in a [Dock]'s FIFO waiter list.
type waiter struct {
	done   chan struct{}
	once   sync.Once
	reason wakeReason
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

// signal wakes the waiter exactly once; the first reason wins.
func (w *waiter) signal(reason wakeReason) {
	w.once.Do(func() {
		w.reason = reason
		close(w.done)
	})
}

// Dock is a condition-variable-like primitive maintaining a FIFO list of
// parked tasks. notify_one wakes the longest-waiting task; notify_all
// wakes every current waiter at once. A dock outlives all of its waiters;
// callers are expected to verify an empty waiter list before dropping the
// enclosing primitive (see [Dock.Len]).
type Dock struct {
	mu      sync.Mutex
	waiters *list.List
}

// NewDock returns a ready-to-use [*Dock].
func NewDock() *Dock {
	return &Dock{waiters: list.New()}
}

// Len returns the number of tasks currently parked on the dock.
func (d *Dock) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waiters.Len()
}

// Wait suspends the current task until notified, interrupted, or until
// ctx is done. It is an interruption point.
func (d *Dock) Wait(ctx context.Context) error {
	return d.waitUntil(ctx, nil)
}

// WaitFor suspends until notified or until dur elapses, returning
// [ErrTimeout] on expiry.
func (d *Dock) WaitFor(ctx context.Context, dur time.Duration) error {
	deadline := time.Now().Add(dur)
	return d.waitUntil(ctx, &deadline)
}

// WaitUntil suspends until notified or until tp is reached, returning
// [ErrTimeout] on expiry.
func (d *Dock) WaitUntil(ctx context.Context, tp time.Time) error {
	return d.waitUntil(ctx, &tp)
}

// WaitPred suspends until pred() returns true, rechecking it after every
// wake (guards against spurious wakes). If the wait is abandoned via
// error (timeout, interruption, or context cancellation), WaitPred
// re-notifies one other waiter before returning, so that a single
// unwinding waiter cannot starve its peers.
func (d *Dock) WaitPred(ctx context.Context, pred func() bool) error {
	for !pred() {
		if err := d.Wait(ctx); err != nil {
			d.NotifyOne()
			return err
		}
	}
	return nil
}

// WaitForPred is the timed, predicate-rechecking form of [Dock.WaitFor].
func (d *Dock) WaitForPred(ctx context.Context, dur time.Duration, pred func() bool) error {
	deadline := time.Now().Add(dur)
	return d.waitUntilPred(ctx, &deadline, pred)
}

// WaitUntilPred is the timed, predicate-rechecking form of [Dock.WaitUntil].
func (d *Dock) WaitUntilPred(ctx context.Context, tp time.Time, pred func() bool) error {
	return d.waitUntilPred(ctx, &tp, pred)
}

func (d *Dock) waitUntilPred(ctx context.Context, deadline *time.Time, pred func() bool) error {
	for !pred() {
		if err := d.waitUntil(ctx, deadline); err != nil {
			d.NotifyOne()
			return err
		}
	}
	return nil
}

func (d *Dock) waitUntil(ctx context.Context, deadline *time.Time) error {
	if task := CurrentTask(ctx); task != nil {
		if err := task.checkInterrupt(); err != nil {
			return err
		}
	}

	w := newWaiter()
	d.mu.Lock()
	elem := d.waiters.PushBack(w)
	d.mu.Unlock()

	task := CurrentTask(ctx)
	if task != nil {
		task.park(func() { w.signal(wakeInterrupted) })
		defer task.unpark()
	}

	var timerC <-chan time.Time
	if deadline != nil {
		timer := time.NewTimer(time.Until(*deadline))
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case <-w.done:
		switch w.reason {
		case wakeInterrupted:
			d.remove(elem)
			return ErrInterrupted
		default:
			return nil
		}
	case <-timerC:
		d.remove(elem)
		w.signal(wakeTimeout)
		return ErrTimeout
	case <-ctx.Done():
		d.remove(elem)
		w.signal(wakeCtxDone)
		return ctx.Err()
	}
}

// remove drops elem from the waiter list if it is still present. It is
// safe to call even if a concurrent notify already removed it:
// [container/list.List.Remove] is a no-op when the element no longer
// belongs to the list.
func (d *Dock) remove(elem *list.Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waiters.Remove(elem)
}

// NotifyOne wakes the longest-waiting task, if any.
func (d *Dock) NotifyOne() {
	d.mu.Lock()
	front := d.waiters.Front()
	if front == nil {
		d.mu.Unlock()
		return
	}
	d.waiters.Remove(front)
	d.mu.Unlock()
	front.Value.(*waiter).signal(wakeNotified)
}

// Notify wakes one waiter without any additional fairness guarantee
// beyond FIFO order; it is distinguished from NotifyOne in the original
// design only by not yielding the caller's own turn, which has no
// separate meaning once tasks are goroutines.
func (d *Dock) Notify() {
	d.NotifyOne()
}

// NotifyAll wakes every task currently parked on the dock.
func (d *Dock) NotifyAll() {
	d.mu.Lock()
	var woken []*waiter
	for e := d.waiters.Front(); e != nil; e = e.Next() {
		woken = append(woken, e.Value.(*waiter))
	}
	d.waiters.Init()
	d.mu.Unlock()
	for _, w := range woken {
		w.signal(wakeNotified)
	}
}
