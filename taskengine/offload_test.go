// SPDX-License-Identifier: GPL-3.0-or-later

package taskengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffloadReturnsValue(t *testing.T) {
	ctx := context.Background()
	v, err := Offload(ctx, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestOffloadPropagatesError(t *testing.T) {
	ctx := context.Background()
	_, err := Offload(ctx, func() (int, error) {
		return 0, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestOffloadReturnsEarlyOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	unblock := make(chan struct{})

	resultCh := make(chan error, 1)
	go func() {
		_, err := Offload(ctx, func() (int, error) {
			close(started)
			<-unblock
			return 0, nil
		})
		resultCh <- err
	}()

	<-started
	cancel()

	select {
	case err := <-resultCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Offload did not return promptly after ctx was cancelled")
	}
	close(unblock)
}
