// SPDX-License-Identifier: GPL-3.0-or-later

package taskengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Dock wakes N waiters in the order they called Wait, for N sequential
// notify_one calls (spec.md §8 invariant 3).
func TestDockFIFOOrder(t *testing.T) {
	d := NewDock()
	const n = 5

	order := make(chan int, n)
	started := make(chan struct{}, n)
	for i := range n {
		i := i
		Spawn(context.Background(), SpawnOptions{}, func(ctx context.Context) error {
			started <- struct{}{}
			// Stagger registration so PushBack order is deterministic.
			if err := d.Wait(ctx); err != nil {
				return err
			}
			order <- i
			return nil
		})
		<-started
		// Give the goroutine time to reach d.Wait before spawning the next.
		for d.Len() <= i {
			time.Sleep(time.Millisecond)
		}
	}

	for range n {
		d.NotifyOne()
	}

	var got []int
	for range n {
		select {
		case v := <-order:
			got = append(got, v)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for waiter to wake")
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestDockWaitTimeout(t *testing.T) {
	d := NewDock()
	ctx := context.Background()
	err := d.WaitFor(ctx, 10*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, d.Len(), "waiter must be removed after timeout")
}

func TestDockNotifyAllWakesEveryone(t *testing.T) {
	d := NewDock()
	const n = 4
	done := make(chan struct{}, n)
	for range n {
		Spawn(context.Background(), SpawnOptions{}, func(ctx context.Context) error {
			if err := d.Wait(ctx); err != nil {
				return err
			}
			done <- struct{}{}
			return nil
		})
	}
	for d.Len() < n {
		time.Sleep(time.Millisecond)
	}
	d.NotifyAll()
	for range n {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("NotifyAll did not wake all waiters")
		}
	}
}

func TestDockWaitPredRenotifiesOnUnwind(t *testing.T) {
	d := NewDock()
	ctx := context.Background()

	other := make(chan error, 1)
	Spawn(ctx, SpawnOptions{}, func(ctx context.Context) error {
		other <- d.Wait(ctx)
		return nil
	})
	for d.Len() < 1 {
		time.Sleep(time.Millisecond)
	}

	err := d.WaitForPred(ctx, 10*time.Millisecond, func() bool { return false })
	require.ErrorIs(t, err, ErrTimeout)

	select {
	case err := <-other:
		assert.NoError(t, err, "the other waiter should have been re-notified, not left parked")
	case <-time.After(2 * time.Second):
		t.Fatal("WaitPred failed to re-notify the other waiter on timeout")
	}
}
