// SPDX-License-Identifier: GPL-3.0-or-later

package taskengine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAsyncRunsOnWorker(t *testing.T) {
	ctx := context.Background()
	p := NewPool()
	p.Add(ctx, 2)
	assert.Equal(t, 2, p.Running())

	future, err := Async(p, ctx, func(ctx context.Context) (int, error) {
		return 41 + 1, nil
	})
	require.NoError(t, err)

	v, err := future.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	p.Terminate()
	p.Join()
	assert.Equal(t, 0, p.Running())
}

func TestPoolAsyncPropagatesError(t *testing.T) {
	ctx := context.Background()
	p := NewPool()
	p.Add(ctx, 1)

	sentinel := assert.AnError
	future, err := Async(p, ctx, func(ctx context.Context) (int, error) {
		return 0, sentinel
	})
	require.NoError(t, err)

	_, err = future.Get(ctx)
	assert.ErrorIs(t, err, sentinel)

	p.Terminate()
	p.Join()
}

func TestPoolWorkingTracksInFlightJobs(t *testing.T) {
	ctx := context.Background()
	p := NewPool()
	p.Add(ctx, 3)

	const n = 3
	release := make(chan struct{})
	var started atomic.Int32
	for range n {
		_, err := Async(p, ctx, func(ctx context.Context) (Unit, error) {
			started.Add(1)
			<-release
			return Unit{}, nil
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return started.Load() == n }, 2*time.Second, time.Millisecond)
	assert.Equal(t, n, p.Working())

	close(release)
	require.Eventually(t, func() bool { return p.Working() == 0 }, 2*time.Second, time.Millisecond)

	p.Terminate()
	p.Join()
}

func TestPoolDelStopsWorkers(t *testing.T) {
	ctx := context.Background()
	p := NewPool()
	p.Add(ctx, 4)
	assert.Equal(t, 4, p.Running())

	done := func(h *Handle) bool {
		select {
		case <-h.Done():
			return true
		default:
			return false
		}
	}
	p.Del(2)
	require.Eventually(t, func() bool { return done(p.workers[2]) && done(p.workers[3]) }, 2*time.Second, time.Millisecond)
	assert.False(t, done(p.workers[0]))
	assert.False(t, done(p.workers[1]))

	p.Terminate()
	p.Join()
	assert.Equal(t, 0, p.Running())
}
