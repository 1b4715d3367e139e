// SPDX-License-Identifier: GPL-3.0-or-later

// Package taskengine implements the cooperative execution engine (C1): task
// spawn/join, yield, interruption, and a family of synchronization
// primitives — [Dock] (a FIFO condition variable), [Mutex], [SharedMutex],
// [Queue], [Future]/[Promise], and a worker [Pool] — built on goroutines,
// channels, and [context.Context] rather than a hand-rolled stackful
// coroutine scheduler.
//
// # Suspension points
//
// A task may only suspend at well-defined points: [Yield], any Wait* call
// on a [Dock], [Mutex], [SharedMutex], [Queue], or [Future], and blocking
// socket operations in package netcore. Suspension is expressed as a
// regular goroutine block on a channel receive; the FIFO waiter-list
// discipline in [Dock] reproduces the ordering guarantees the original
// stackful scheduler provided (notify_one wakes the longest-waiting task;
// a mutex unlock wakes its longest-waiting task, which then competes for
// the lock again).
//
// # Task identity
//
// Every blocking call takes a [context.Context] carrying the calling
// [*Task], set by [Spawn]. This plays the role of the thread-local
// "current task" pointer: [CurrentTask] recovers it, [Interrupt] uses it
// to force-wake a parked task, and [InterruptionPoint] checks it.
//
// # Interruption and timeouts
//
// [Interrupt] requests cancellation of a task; it takes effect at the next
// suspension point or [InterruptionPoint] call, raising [ErrInterrupted].
// [Uninterruptible] defers a pending interruption until the scope exits.
// Timed waits return [ErrTimeout] on expiry rather than blocking forever;
// no primitive leaks a waiter from its dock on either exit path.
package taskengine
