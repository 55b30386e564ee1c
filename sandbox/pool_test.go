package sandbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingBackend struct {
	release chan struct{}
	active  atomic.Int64
	peak    atomic.Int64
}

func (b *blockingBackend) Name() string { return "blocking" }

func (b *blockingBackend) RunLoader(ctx context.Context, tc Toolchain, module string) (string, error) {
	return b.RunRunner(ctx, tc, module, "")
}

func (b *blockingBackend) RunRunner(ctx context.Context, _ Toolchain, _ string, _ string, _ ...string) (string, error) {
	n := b.active.Add(1)
	defer b.active.Add(-1)
	for {
		peak := b.peak.Load()
		if n <= peak || b.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	select {
	case <-b.release:
		return "done", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{})}
	pool := NewPool(backend, 2)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := pool.RunRunner(context.Background(), Toolchain{}, "/m", "f")
			assert.NoError(t, err)
			assert.Equal(t, "done", out)
		}()
	}

	require.Eventually(t, func() bool {
		s := pool.Stats()
		return s.InUse == 2 && s.Waiting == 4
	}, time.Second, 5*time.Millisecond)

	close(backend.release)
	wg.Wait()

	assert.Equal(t, int64(2), backend.peak.Load())
	stats := pool.Stats()
	assert.Equal(t, int64(6), stats.Served)
	assert.Equal(t, int64(0), stats.InUse)
	assert.Equal(t, "blocking", stats.Backend)
}

func TestPoolQueueTimeout(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{})}
	defer close(backend.release)
	pool := NewPool(backend, 1, WithQueueTimeout(50*time.Millisecond))

	go pool.RunLoader(context.Background(), Toolchain{}, "/m")
	require.Eventually(t, func() bool { return pool.Stats().InUse == 1 }, time.Second, 5*time.Millisecond)

	_, err := pool.RunLoader(context.Background(), Toolchain{}, "/m")
	assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
}

func TestPoolCallerCancellation(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{})}
	defer close(backend.release)
	pool := NewPool(backend, 1)

	go pool.RunLoader(context.Background(), Toolchain{}, "/m")
	require.Eventually(t, func() bool { return pool.Stats().InUse == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := pool.RunLoader(ctx, Toolchain{}, "/m")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}
