// SPDX-License-Identifier: GPL-3.0-or-later

package taskengine

import "errors"

// ErrInterrupted is returned by a suspension point when the calling task
// was the target of a pending [Interrupt] request.
var ErrInterrupted = errors.New("taskengine: interrupted")

// ErrTimeout is returned by a timed Wait* call whose deadline elapsed
// before the wait was satisfied.
var ErrTimeout = errors.New("taskengine: timed out")

// ErrBrokenPromise is the error a [Future] resolves with when every
// [Promise] referencing its shared state is released without a value or
// error ever being set.
var ErrBrokenPromise = errors.New("taskengine: broken promise")

// ErrFutureAlreadyRetrieved is returned by a second call to [Future.Get].
var ErrFutureAlreadyRetrieved = errors.New("taskengine: future already retrieved")

// ErrQueueClosed is returned by [Queue.Push] and [Queue.Pop] once
// [Queue.Close] has been called.
var ErrQueueClosed = errors.New("taskengine: queue closed")
