package sandbox

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/dagline/dagline/pkg/models"
)

// PoolOptions configures the instance pool (spec §4.4 "Threading").
type PoolOptions struct {
	// Size is the number of pre-created instances. Defaults to
	// available parallelism.
	Size int
	// MaxSize bounds lazy growth beyond Size. Defaults to 4x Size.
	MaxSize int
	// LeaseWait bounds how long Lease blocks when the pool is empty
	// and already at MaxSize before returning ErrSandboxUnavailable.
	LeaseWait time.Duration
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.Size <= 0 {
		o.Size = runtime.GOMAXPROCS(0)
	}
	if o.MaxSize <= 0 {
		o.MaxSize = o.Size * 4
	}
	if o.LeaseWait <= 0 {
		o.LeaseWait = 2 * time.Second
	}
	return o
}

// Pool leases goja instances to callers under a bounded-wait,
// lazy-growth-to-a-cap policy, as spec §4.4 describes. Pool instances
// are never shared concurrently — every lease is exclusive.
type Pool struct {
	opts PoolOptions

	mu      sync.Mutex
	idle    []*instance
	created int
}

// NewPool builds and pre-fills a pool per opts.
func NewPool(opts PoolOptions) *Pool {
	opts = opts.withDefaults()
	p := &Pool{
		opts: opts,
		idle: make([]*instance, 0, opts.Size),
	}
	for i := 0; i < opts.Size; i++ {
		p.idle = append(p.idle, newInstance())
		p.created++
	}
	return p
}

// Lease is a borrowed instance; callers must call Release when done,
// even on error paths.
type Lease struct {
	pool *Pool
	inst *instance
}

// Acquire blocks until an instance is available, lazily creates one if
// under MaxSize, or fails with models.ErrSandboxUnavailable once
// LeaseWait elapses at capacity.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	deadline := time.Now().Add(p.opts.LeaseWait)
	for {
		p.mu.Lock()
		if n := len(p.idle); n > 0 {
			inst := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			return &Lease{pool: p, inst: inst}, nil
		}
		if p.created < p.opts.MaxSize {
			p.created++
			p.mu.Unlock()
			return &Lease{pool: p, inst: newInstance()}, nil
		}
		p.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: pool exhausted at capacity %d", models.ErrSandboxUnavailable, p.opts.MaxSize)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Release returns the leased instance to the idle pool.
func (l *Lease) Release() {
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()
	l.pool.idle = append(l.pool.idle, l.inst)
}

// Run leases an instance, runs source, and releases it — the common
// case for a script executor that doesn't need to hold a lease across
// multiple calls.
func (p *Pool) Run(ctx context.Context, source string, b Bindings, limits Limits) (*Result, error) {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return lease.inst.Run(source, b, limits)
}

// Size reports the current number of instances ever created by the
// pool (idle + leased), for metrics/tests.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Idle reports the number of currently idle instances.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
