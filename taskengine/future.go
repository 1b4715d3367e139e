// SPDX-License-Identifier: GPL-3.0-or-later

package taskengine

import (
	"context"
	"sync"
)

type futureStatus int32

const (
	statusPending futureStatus = iota
	statusReady
	statusRetrieved
)

// futureState is the shared state a [Future] and its [Promise]s
// reference. It plays the role of the intrusive promise list described
// in spec.md §9: promiseCount tracks how many live [Promise] handles
// reference this state, and the last one to be released without a value
// resolves the future with [ErrBrokenPromise].
type futureState[T any] struct {
	mu           sync.Mutex
	dock         *Dock
	status       futureStatus
	value        T
	err          error
	promiseCount int
}

// Future is the read side of a single-shot value channel.
type Future[T any] struct {
	state *futureState[T]
}

// Promise is the write side. Promises support [Promise.Clone] to model
// the original's copyable, refcounted promise.
type Promise[T any] struct {
	state    *futureState[T]
	released bool
}

// NewFuture creates a linked [*Future]/[*Promise] pair with one
// outstanding promise reference.
func NewFuture[T any]() (*Future[T], *Promise[T]) {
	st := &futureState[T]{dock: NewDock(), promiseCount: 1}
	return &Future[T]{state: st}, &Promise[T]{state: st}
}

// Clone returns a new [*Promise] referencing the same shared state,
// modeling promise-copy semantics: the future is only broken once every
// clone has been released without a value.
func (p *Promise[T]) Clone() *Promise[T] {
	p.state.mu.Lock()
	p.state.promiseCount++
	p.state.mu.Unlock()
	return &Promise[T]{state: p.state}
}

// SetValue resolves the future with v, waking every [Future.Get] waiter.
// Calling SetValue or [Promise.SetError] more than once across a
// promise's clones is a programmer error.
func (p *Promise[T]) SetValue(v T) {
	p.resolve(v, nil)
}

// SetError resolves the future with err.
func (p *Promise[T]) SetError(err error) {
	var zero T
	p.resolve(zero, err)
}

func (p *Promise[T]) resolve(v T, err error) {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.status != statusPending {
		return
	}
	st.value, st.err, st.status = v, err, statusReady
	st.dock.NotifyAll()
}

// Release drops this promise reference. If it is the last live promise
// for this shared state and no value has been set, the future resolves
// with [ErrBrokenPromise]. Release is idempotent.
func (p *Promise[T]) Release() {
	if p.released {
		return
	}
	p.released = true
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()
	st.promiseCount--
	if st.promiseCount == 0 && st.status == statusPending {
		var zero T
		st.value, st.err, st.status = zero, ErrBrokenPromise, statusReady
		st.dock.NotifyAll()
	}
}

// Get waits for the future to resolve and returns its value or error.
// Calling Get a second time returns [ErrFutureAlreadyRetrieved]. It is
// an interruption point.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	st := f.state
	st.mu.Lock()
	if st.status == statusRetrieved {
		st.mu.Unlock()
		var zero T
		return zero, ErrFutureAlreadyRetrieved
	}
	for st.status == statusPending {
		st.mu.Unlock()
		if err := st.dock.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		st.mu.Lock()
	}
	st.status = statusRetrieved
	v, err := st.value, st.err
	st.mu.Unlock()
	return v, err
}

// Ready reports whether the future has resolved (value or error set),
// without consuming it.
func (f *Future[T]) Ready() bool {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	return f.state.status != statusPending
}
