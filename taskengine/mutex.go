// SPDX-License-Identifier: GPL-3.0-or-later

package taskengine

import (
	"context"
	"sync"
	"time"

	"github.com/bassosimone/runtimex"
)

// Mutex is a non-recursive, cooperative mutual-exclusion lock. Unlike
// [sync.Mutex], it parks the calling task on a [Dock] rather than
// blocking an OS thread, and it asserts ownership on [Mutex.Unlock].
type Mutex struct {
	mu    sync.Mutex
	owner *Task
	dock  *Dock
}

// NewMutex returns an unlocked [*Mutex].
func NewMutex() *Mutex {
	return &Mutex{dock: NewDock()}
}

// Lock waits until the mutex has no owner, then acquires it. It is an
// interruption point.
func (m *Mutex) Lock(ctx context.Context) error {
	task := CurrentTask(ctx)
	for {
		m.mu.Lock()
		if m.owner == nil {
			m.owner = task
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()
		if err := m.dock.Wait(ctx); err != nil {
			return err
		}
	}
}

// TryLock acquires the mutex only if it is currently unowned.
func (m *Mutex) TryLock(ctx context.Context) bool {
	task := CurrentTask(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != nil {
		return false
	}
	m.owner = task
	return true
}

// TryLockFor attempts to acquire the mutex, giving up after dur.
func (m *Mutex) TryLockFor(ctx context.Context, dur time.Duration) (bool, error) {
	return m.tryLockUntil(ctx, time.Now().Add(dur))
}

// TryLockUntil attempts to acquire the mutex, giving up at tp.
func (m *Mutex) TryLockUntil(ctx context.Context, tp time.Time) (bool, error) {
	return m.tryLockUntil(ctx, tp)
}

func (m *Mutex) tryLockUntil(ctx context.Context, deadline time.Time) (bool, error) {
	task := CurrentTask(ctx)
	for {
		m.mu.Lock()
		if m.owner == nil {
			m.owner = task
			m.mu.Unlock()
			return true, nil
		}
		m.mu.Unlock()
		if err := m.dock.WaitUntil(ctx, deadline); err != nil {
			if err == ErrTimeout {
				return false, nil
			}
			return false, err
		}
	}
}

// Unlock releases the mutex and wakes the next waiter, if any. It
// asserts that the calling task is the current owner (invariant 4 in
// spec.md §8): calling Unlock without holding the lock is a programmer
// error, not a runtime condition to recover from.
func (m *Mutex) Unlock(ctx context.Context) {
	task := CurrentTask(ctx)
	m.mu.Lock()
	runtimex.Assert(m.owner == task)
	m.owner = nil
	m.mu.Unlock()
	m.dock.NotifyOne()
}

// Close asserts that the mutex has no owner and no waiters, matching the
// drop-time invariant in spec.md §3 ("Mutex / Shared-mutex ... Must have
// no holders or waiters at drop").
func (m *Mutex) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	runtimex.Assert(m.owner == nil)
	runtimex.Assert(m.dock.Len() == 0)
}
