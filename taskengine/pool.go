// SPDX-License-Identifier: GPL-3.0-or-later

package taskengine

import (
	"context"
	"sync"
	"sync/atomic"
)

// job is a unit of work posted to a [Pool].
type job struct {
	fn func(ctx context.Context)
}

// Pool is a dynamically resizable set of worker tasks draining a shared
// work queue, matching spec.md §4.1's Pool contract.
type Pool struct {
	queue *Queue[job]

	mu      sync.Mutex
	workers []*Handle
	min     int

	running atomic.Int32
	working atomic.Int32
}

// NewPool returns an empty, unstarted [*Pool]. Call [Pool.Add] to start
// workers.
func NewPool() *Pool {
	return &Pool{queue: NewQueue[job](0)}
}

// Running returns the current worker count.
func (p *Pool) Running() int { return int(p.running.Load()) }

// Working returns the number of workers currently executing a job.
func (p *Pool) Working() int { return int(p.working.Load()) }

// Add starts n additional worker tasks bound to ctx's task engine.
func (p *Pool) Add(ctx context.Context, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for range n {
		h := Spawn(ctx, SpawnOptions{Name: "pool-worker"}, p.workerLoop)
		p.workers = append(p.workers, h)
		p.running.Add(1)
	}
}

// Min sets the minimum worker count maintained by the pool. It does not
// itself start or stop workers; callers combine it with [Pool.Add]/[Pool.Del].
func (p *Pool) Min(n int) {
	p.mu.Lock()
	p.min = n
	p.mu.Unlock()
}

// Del requests that n workers exit after finishing their current job, by
// interrupting the n most recently added handles still running.
func (p *Pool) Del(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.workers) - 1; i >= 0 && n > 0; i-- {
		h := p.workers[i]
		select {
		case <-h.Done():
			continue
		default:
		}
		Interrupt(h.Task())
		n--
	}
}

// Terminate requests that every worker exit once idle.
func (p *Pool) Terminate() {
	p.mu.Lock()
	workers := append([]*Handle(nil), p.workers...)
	p.mu.Unlock()
	for _, h := range workers {
		Interrupt(h.Task())
	}
}

// Interrupt injects an interrupt into every running worker, including
// one that is mid-job.
func (p *Pool) Interrupt() {
	p.Terminate()
}

// Join waits for every worker started so far to exit.
func (p *Pool) Join() {
	p.mu.Lock()
	workers := append([]*Handle(nil), p.workers...)
	p.mu.Unlock()
	for _, h := range workers {
		h.Join()
		p.running.Add(-1)
	}
}

func (p *Pool) workerLoop(ctx context.Context) error {
	for {
		j, err := p.queue.Pop(ctx)
		if err != nil {
			return nil
		}
		p.working.Add(1)
		j.fn(ctx)
		p.working.Add(-1)
	}
}

// Async posts fn to the pool's queue and returns a [*Future] resolved by
// whichever worker dequeues it. The job itself is an interruption point
// only inside fn (fn must cooperate by threading ctx through to Wait*
// calls); the pool does not forcibly cancel fn mid-flight.
func Async[T any](p *Pool, ctx context.Context, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	future, promise := NewFuture[T]()
	err := p.queue.Push(ctx, job{fn: func(ctx context.Context) {
		v, err := fn(ctx)
		if err != nil {
			promise.SetError(err)
		} else {
			promise.SetValue(v)
		}
		promise.Release()
	}})
	if err != nil {
		promise.Release()
		return nil, err
	}
	return future, nil
}
