// SPDX-License-Identifier: GPL-3.0-or-later

package taskengine

import (
	"context"
	"math"
	"sync"
)

// SharedMutex is a multi-reader, single-writer lock with an additional
// "upgrade" mode, matching spec.md §4.1's `s`/`u` state machine: s counts
// shared holders (s == [math.MinInt64] means exclusively locked), and u
// marks whether the upgrade lock is held.
type SharedMutex struct {
	mu   sync.Mutex
	s    int64
	u    bool
	dock *Dock
}

// NewSharedMutex returns an unlocked [*SharedMutex].
func NewSharedMutex() *SharedMutex {
	return &SharedMutex{dock: NewDock()}
}

// Lock acquires the exclusive lock: it waits until s == 0 && !u, then
// sets s to [math.MinInt64].
func (sm *SharedMutex) Lock(ctx context.Context) error {
	for {
		sm.mu.Lock()
		if sm.s == 0 && !sm.u {
			sm.s = math.MinInt64
			sm.mu.Unlock()
			return nil
		}
		sm.mu.Unlock()
		if err := sm.dock.Wait(ctx); err != nil {
			return err
		}
	}
}

// Unlock releases the exclusive lock.
func (sm *SharedMutex) Unlock() {
	sm.mu.Lock()
	sm.s = 0
	sm.mu.Unlock()
	sm.dock.NotifyAll()
}

// LockShared acquires a shared (reader) lock: it waits until s >= 0,
// then increments s.
func (sm *SharedMutex) LockShared(ctx context.Context) error {
	for {
		sm.mu.Lock()
		if sm.s >= 0 {
			sm.s++
			sm.mu.Unlock()
			return nil
		}
		sm.mu.Unlock()
		if err := sm.dock.Wait(ctx); err != nil {
			return err
		}
	}
}

// UnlockShared releases one shared lock.
func (sm *SharedMutex) UnlockShared() {
	sm.mu.Lock()
	sm.s--
	sm.mu.Unlock()
	sm.dock.NotifyAll()
}

// LockUpgrade acquires the upgrade lock: it waits until s >= 0 && !u,
// then sets u. The upgrade lock coexists with shared readers but not
// with another upgrade holder or the exclusive lock.
func (sm *SharedMutex) LockUpgrade(ctx context.Context) error {
	for {
		sm.mu.Lock()
		if sm.s >= 0 && !sm.u {
			sm.u = true
			sm.mu.Unlock()
			return nil
		}
		sm.mu.Unlock()
		if err := sm.dock.Wait(ctx); err != nil {
			return err
		}
	}
}

// UnlockUpgrade releases the upgrade lock.
func (sm *SharedMutex) UnlockUpgrade() {
	sm.mu.Lock()
	sm.u = false
	sm.mu.Unlock()
	sm.dock.NotifyAll()
}

// UnlockAndLockShared atomically downgrades an exclusive lock to a
// shared lock. Because the caller already holds exclusive access, no
// other task can observe the intermediate state, so this never blocks.
func (sm *SharedMutex) UnlockAndLockShared() {
	sm.mu.Lock()
	sm.s = 1
	sm.mu.Unlock()
	sm.dock.NotifyAll()
}

// UnlockAndLockUpgrade atomically downgrades an exclusive lock to an
// upgrade lock.
func (sm *SharedMutex) UnlockAndLockUpgrade() {
	sm.mu.Lock()
	sm.s = 0
	sm.u = true
	sm.mu.Unlock()
	sm.dock.NotifyAll()
}

// UnlockUpgradeAndLock atomically promotes an upgrade lock to the
// exclusive lock. Unlike the downgrades above, this can block: it must
// wait for any concurrent shared readers (s > 0) to drain.
func (sm *SharedMutex) UnlockUpgradeAndLock(ctx context.Context) error {
	for {
		sm.mu.Lock()
		if sm.s == 0 {
			sm.s = math.MinInt64
			sm.u = false
			sm.mu.Unlock()
			return nil
		}
		sm.mu.Unlock()
		if err := sm.dock.Wait(ctx); err != nil {
			return err
		}
	}
}

// UnlockUpgradeAndLockShared atomically downgrades an upgrade lock to a
// shared lock; this never blocks because the caller already counts as
// compatible with any existing readers.
func (sm *SharedMutex) UnlockUpgradeAndLockShared() {
	sm.mu.Lock()
	sm.s++
	sm.u = false
	sm.mu.Unlock()
	sm.dock.NotifyAll()
}
