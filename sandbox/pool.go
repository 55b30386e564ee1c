package sandbox

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of concurrent invocations on a Backend. Callers
// that find every worker busy wait for a slot, honouring their context and
// the optional queue timeout.
type Pool struct {
	backend      Backend
	sem          *semaphore.Weighted
	size         int
	queueTimeout time.Duration

	inUse   atomic.Int64
	waiting atomic.Int64
	served  atomic.Int64
}

// PoolStats is a point-in-time view of pool usage.
type PoolStats struct {
	Backend string `json:"backend"`
	Size    int    `json:"size"`
	InUse   int64  `json:"in_use"`
	Waiting int64  `json:"waiting"`
	Served  int64  `json:"served"`
}

// NewPool wraps backend with at most size concurrent invocations.
func NewPool(backend Backend, size int, opts ...Option) *Pool {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if size < 1 {
		size = 1
	}
	return &Pool{
		backend:      backend,
		sem:          semaphore.NewWeighted(int64(size)),
		size:         size,
		queueTimeout: cfg.queueTimeout,
	}
}

// Name returns the wrapped backend's name.
func (p *Pool) Name() string { return p.backend.Name() }

// RunLoader runs the loader on a pooled worker.
func (p *Pool) RunLoader(ctx context.Context, tc Toolchain, module string) (string, error) {
	return p.do(ctx, func(ctx context.Context) (string, error) {
		return p.backend.RunLoader(ctx, tc, module)
	})
}

// RunRunner runs the runner on a pooled worker.
func (p *Pool) RunRunner(ctx context.Context, tc Toolchain, module, function string, args ...string) (string, error) {
	return p.do(ctx, func(ctx context.Context) (string, error) {
		return p.backend.RunRunner(ctx, tc, module, function, args...)
	})
}

// Stats reports pool usage.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Backend: p.backend.Name(),
		Size:    p.size,
		InUse:   p.inUse.Load(),
		Waiting: p.waiting.Load(),
		Served:  p.served.Load(),
	}
}

func (p *Pool) do(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	if err := p.acquire(ctx); err != nil {
		return "", err
	}
	p.inUse.Add(1)
	defer func() {
		p.inUse.Add(-1)
		p.served.Add(1)
		p.sem.Release(1)
	}()

	return fn(ctx)
}

func (p *Pool) acquire(ctx context.Context) error {
	p.waiting.Add(1)
	defer p.waiting.Add(-1)

	waitCtx := ctx
	if p.queueTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.queueTimeout)
		defer cancel()
	}

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: all %d workers busy", ErrUnavailable, p.size)
	}
	return nil
}
