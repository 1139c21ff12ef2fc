package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(4)
	ctx := context.Background()

	var running, peak, done atomic.Int32
	for range 40 {
		_, err := p.Do(ctx, func(context.Context) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
			done.Add(1)
		})
		require.NoError(t, err)
	}
	p.Wait()

	assert.Equal(t, int32(40), done.Load())
	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.Zero(t, p.Num())
	assert.Equal(t, 4, p.Limit())
}

func TestPool_Closed(t *testing.T) {
	p := NewPool(0)
	assert.Equal(t, 10, p.Limit())
	p.Wait()

	_, err := p.Do(context.Background(), nil)
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_ContextCancelled(t *testing.T) {
	p := NewPool(1)
	release := make(chan struct{})
	_, err := p.Do(context.Background(), func(context.Context) { <-release })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Do(ctx, func(context.Context) {})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	p.Wait()
}
