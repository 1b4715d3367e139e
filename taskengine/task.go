// SPDX-License-Identifier: GPL-3.0-or-later

package taskengine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/bassosimone/runtimex"
)

type taskKeyType struct{}

var taskKey = taskKeyType{}

// Task is a cooperatively scheduled execution unit. The zero value is not
// usable; construct one with [Spawn].
type Task struct {
	name string

	interrupted atomic.Bool
	deferred    atomic.Bool // interruption arrived during an Uninterruptible scope

	mu         sync.Mutex
	uninterDep int
	onInterupt func() // force-wakes whatever the task is parked on, if anything

	done chan struct{}
	err  error
}

// SpawnOptions configures [Spawn]. StackSize is accepted for contract
// parity with the original stackful scheduler but is advisory only: the
// Go runtime grows goroutine stacks on demand, so this implementation
// treats it as a no-op (see DESIGN.md).
type SpawnOptions struct {
	// Name identifies the task in logs and panics.
	Name string

	// StackSize is advisory and ignored by this implementation.
	StackSize int
}

// Handle is a joinable reference to a spawned [Task]. If a [Handle] is
// dropped without calling [Handle.Join], the task runs to completion
// detached; its error, if any, is not observed by anyone.
type Handle struct {
	task *Task
}

// Task returns the underlying [*Task], e.g. to pass to [Interrupt].
func (h *Handle) Task() *Task { return h.task }

// Join blocks the calling goroutine (not a cooperative wait; Join is
// meant to be called from outside the engine, e.g. from main) until the
// task finishes, returning the error the task's function returned or a
// panic recovered from it.
func (h *Handle) Join() error {
	<-h.task.done
	return h.task.err
}

// Done returns a channel closed when the task finishes.
func (h *Handle) Done() <-chan struct{} { return h.task.done }

// Spawn starts fn on a new goroutine bound to a child [*Task] and returns
// a joinable [*Handle]. fn receives a context carrying the new task so
// that [CurrentTask], [InterruptionPoint], and every Wait* call inside fn
// resolve to it.
//
// A panic inside fn is recovered and surfaced as the task's error from
// [Handle.Join], so a single runaway task cannot take down the scheduler
// goroutine.
func Spawn(parent context.Context, opts SpawnOptions, fn func(ctx context.Context) error) *Handle {
	t := &Task{name: opts.Name, done: make(chan struct{})}
	ctx := context.WithValue(parent, taskKey, t)

	go func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("taskengine: task %q panicked: %v", t.name, r)
			}
		}()
		t.err = fn(ctx)
	}()

	return &Handle{task: t}
}

// CurrentTask returns the [*Task] bound to ctx by [Spawn], or nil if ctx
// carries none (e.g. the root scheduler context).
func CurrentTask(ctx context.Context) *Task {
	t, _ := ctx.Value(taskKey).(*Task)
	return t
}

// Yield re-enqueues the calling goroutine at the back of the Go
// scheduler's run queue, reproducing the fairness a cooperative
// scheduler's explicit yield provides. It is an interruption point.
func Yield(ctx context.Context) error {
	if err := InterruptionPoint(ctx); err != nil {
		return err
	}
	runtime.Gosched()
	return nil
}

// InterruptionPoint raises [ErrInterrupted] if the current task has a
// pending, non-deferred interruption request.
func InterruptionPoint(ctx context.Context) error {
	t := CurrentTask(ctx)
	if t == nil {
		return nil
	}
	return t.checkInterrupt()
}

// Interrupt requests that task stop at its next suspension point or
// [InterruptionPoint] call. If task is currently parked on a [Dock] (via
// Wait, a [Mutex], a [Queue], ...), it is force-woken immediately with
// [ErrInterrupted]; a deferred (uninterruptible) task is woken as soon as
// its uninterruptible scope exits.
func Interrupt(task *Task) {
	if task == nil {
		return
	}
	task.interrupted.Store(true)
	task.mu.Lock()
	cb := task.onInterupt
	uninterruptible := task.uninterDep > 0
	task.mu.Unlock()
	if uninterruptible {
		task.deferred.Store(true)
		return
	}
	if cb != nil {
		cb()
	}
}

// checkInterrupt is the shared implementation behind InterruptionPoint
// and every Wait* entry point.
func (t *Task) checkInterrupt() error {
	if t.uninterruptibleDepth() > 0 {
		return nil
	}
	if t.interrupted.CompareAndSwap(true, false) {
		return ErrInterrupted
	}
	return nil
}

func (t *Task) uninterruptibleDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uninterDep
}

// park records the callback a concurrent [Interrupt] should invoke to
// force-wake this task from whatever it is currently blocked on. unpark
// clears it. These are called only from inside [Dock.waitUntil].
func (t *Task) park(onInterrupt func()) {
	t.mu.Lock()
	t.onInterupt = onInterrupt
	t.mu.Unlock()
}

func (t *Task) unpark() {
	t.mu.Lock()
	t.onInterupt = nil
	t.mu.Unlock()
}

// Uninterruptible runs fn with interruption checks suppressed for the
// scope's duration. If an [Interrupt] request arrives during the scope,
// Uninterruptible returns [ErrInterrupted] once fn returns; otherwise it
// returns nil. Use [UninterruptibleNothrow] to swallow a deferred
// request instead.
func Uninterruptible(ctx context.Context, fn func(ctx context.Context)) error {
	t := CurrentTask(ctx)
	if t == nil {
		fn(ctx)
		return nil
	}
	t.enterUninterruptible()
	defer t.exitUninterruptible()
	fn(ctx)
	if t.deferred.CompareAndSwap(true, false) {
		return ErrInterrupted
	}
	return nil
}

// UninterruptibleNothrow is [Uninterruptible] but discards a deferred
// interruption request instead of returning it.
func UninterruptibleNothrow(ctx context.Context, fn func(ctx context.Context)) {
	t := CurrentTask(ctx)
	if t == nil {
		fn(ctx)
		return
	}
	t.enterUninterruptible()
	defer t.exitUninterruptible()
	fn(ctx)
	t.deferred.Store(false)
}

func (t *Task) enterUninterruptible() {
	t.mu.Lock()
	t.uninterDep++
	t.mu.Unlock()
}

func (t *Task) exitUninterruptible() {
	t.mu.Lock()
	t.uninterDep--
	runtimex.Assert(t.uninterDep >= 0)
	t.mu.Unlock()
}
