// SPDX-License-Identifier: GPL-3.0-or-later

package taskengine

import "context"

// Offload runs fn on a dedicated OS thread (a plain goroutine, which Go's
// runtime may schedule onto its own thread when fn blocks in a syscall)
// and suspends the calling task until it returns. Use this for
// genuinely blocking calls — a blocking DNS library call, a synchronous
// file-system operation — so that the calling task can stop waiting
// when ctx is done.
//
// If ctx is done before fn returns, Offload returns ctx.Err() immediately
// but fn continues running to completion in the background; Offload does
// not and cannot forcibly kill the underlying goroutine. Callers that
// need bounded resource usage should make fn itself respect a deadline.
func Offload[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
