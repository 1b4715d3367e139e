// SPDX-License-Identifier: GPL-3.0-or-later

package taskengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePushPopOrder(t *testing.T) {
	q := NewQueue[int](0)
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, q.Push(ctx, i))
	}
	for i := range 5 {
		v, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestQueueBoundedPushBlocksUntilRoom(t *testing.T) {
	q := NewQueue[int](1)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, 1))

	pushed := make(chan struct{})
	Spawn(ctx, SpawnOptions{}, func(ctx context.Context) error {
		if err := q.Push(ctx, 2); err != nil {
			return err
		}
		close(pushed)
		return nil
	})

	select {
	case <-pushed:
		t.Fatal("Push should have blocked: queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	v, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	select {
	case <-pushed:
	case <-time.After(2 * time.Second):
		t.Fatal("Push did not unblock after room freed")
	}
}

func TestQueuePopForTimesOut(t *testing.T) {
	q := NewQueue[int](0)
	ctx := context.Background()
	_, err := q.PopFor(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestQueueCloseAssertsEmpty(t *testing.T) {
	q := NewQueue[int](0)
	assert.NotPanics(t, func() { q.Close() })
}
