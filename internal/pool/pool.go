// Package pool keeps a bounded set of reusable database client handles.
//
// Handles are created lazily up to Options.Max. A caller that finds every
// handle checked out waits until one is released, its context is done or
// the acquire timeout elapses. Handles are never health-checked; a handle
// the caller knows to be broken should be returned with Invalidate.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tasks-api/internal/metrics"
)

var (
	ErrClosed         = errors.New("pool: closed")
	ErrAcquireTimeout = errors.New("pool: acquire timed out")
)

// Factory creates and destroys pooled handles.
type Factory[T any] interface {
	Create(ctx context.Context) (T, error)
	Destroy(T) error
}

// FactoryFuncs adapts two plain functions to Factory.
type FactoryFuncs[T any] struct {
	CreateFunc  func(ctx context.Context) (T, error)
	DestroyFunc func(T) error
}

func (f FactoryFuncs[T]) Create(ctx context.Context) (T, error) { return f.CreateFunc(ctx) }

func (f FactoryFuncs[T]) Destroy(h T) error {
	if f.DestroyFunc == nil {
		return nil
	}
	return f.DestroyFunc(h)
}

type Options struct {
	// Name labels the pool in logs and metrics.
	Name string
	Min  int
	Max  int
	// ConnectTimeout bounds every Create call. Zero means no bound.
	ConnectTimeout time.Duration
	// AcquireTimeout bounds the wait for a free slot. Zero means wait until
	// the caller's context is done.
	AcquireTimeout time.Duration
}

type Stats struct {
	Size    int `json:"size"`
	Idle    int `json:"idle"`
	InUse   int `json:"inUse"`
	Waiting int `json:"waiting"`
}

type Pool[T any] struct {
	factory Factory[T]
	opts    Options
	log     logrus.FieldLogger

	// slots holds one token per checked-out or being-created handle.
	slots chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	idle    []T
	size    int
	waiting int
	closed  bool
}

// New builds a pool and eagerly creates Min handles. Creation failures are
// logged; the pool stays usable and retries on demand.
func New[T any](ctx context.Context, factory Factory[T], opts Options, log logrus.FieldLogger) *Pool[T] {
	if opts.Max < 1 {
		opts.Max = 1
	}
	if opts.Min > opts.Max {
		opts.Min = opts.Max
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	p := &Pool[T]{
		factory: factory,
		opts:    opts,
		log:     log.WithField("pool", opts.Name),
		slots:   make(chan struct{}, opts.Max),
		done:    make(chan struct{}),
	}

	// Idle handles hold no slot, so prefilling leaves every slot free.
	for i := 0; i < opts.Min; i++ {
		h, err := p.create(ctx)
		if err != nil {
			p.log.WithError(err).Warn("failed to prefill pool")
			break
		}
		p.mu.Lock()
		p.idle = append(p.idle, h)
		p.size++
		p.mu.Unlock()
	}
	p.report()
	return p
}

// Acquire lends a handle to the caller. Every successful Acquire must be
// paired with exactly one Release or Invalidate.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T
	start := time.Now()

	if p.isClosed() {
		return zero, ErrClosed
	}

	if err := p.takeSlot(ctx); err != nil {
		p.observe(start, "error")
		return zero, err
	}

	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		h := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		p.observe(start, "reused")
		p.report()
		return h, nil
	}
	p.mu.Unlock()

	h, err := p.create(ctx)
	if err != nil {
		<-p.slots
		p.observe(start, "error")
		return zero, fmt.Errorf("pool %s: create handle: %w", p.opts.Name, err)
	}

	p.mu.Lock()
	p.size++
	p.mu.Unlock()
	p.observe(start, "created")
	p.report()
	return h, nil
}

func (p *Pool[T]) takeSlot(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	default:
	}

	p.mu.Lock()
	p.waiting++
	p.mu.Unlock()
	p.report()
	defer func() {
		p.mu.Lock()
		p.waiting--
		p.mu.Unlock()
		p.report()
	}()

	var timeout <-chan time.Time
	if p.opts.AcquireTimeout > 0 {
		timer := time.NewTimer(p.opts.AcquireTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case p.slots <- struct{}{}:
		return nil
	case <-p.done:
		return ErrClosed
	case <-timeout:
		return ErrAcquireTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool[T]) create(ctx context.Context) (T, error) {
	if p.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.ConnectTimeout)
		defer cancel()
	}
	return p.factory.Create(ctx)
}

// Release returns h to the idle set for reuse.
func (p *Pool[T]) Release(h T) {
	p.mu.Lock()
	if p.closed {
		p.size--
		p.mu.Unlock()
		p.destroy(h)
		<-p.slots
		p.report()
		return
	}
	p.idle = append(p.idle, h)
	p.mu.Unlock()
	<-p.slots
	p.report()
}

// Invalidate destroys h instead of returning it to the idle set.
func (p *Pool[T]) Invalidate(h T) {
	p.mu.Lock()
	p.size--
	p.mu.Unlock()
	p.destroy(h)
	<-p.slots
	p.report()
}

// Close destroys idle handles and fails pending and future acquires.
// Handles still checked out are destroyed when they are released.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	idle := p.idle
	p.idle = nil
	p.size -= len(idle)
	p.mu.Unlock()

	for _, h := range idle {
		p.destroy(h)
	}
	p.report()
	p.log.Info("pool closed")
}

func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Size:    p.size,
		Idle:    len(p.idle),
		InUse:   p.size - len(p.idle),
		Waiting: p.waiting,
	}
}

func (p *Pool[T]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool[T]) destroy(h T) {
	if err := p.factory.Destroy(h); err != nil {
		p.log.WithError(err).Warn("failed to destroy handle")
	}
}

func (p *Pool[T]) observe(start time.Time, result string) {
	metrics.PoolAcquireSeconds.WithLabelValues(p.opts.Name, result).Observe(time.Since(start).Seconds())
}

func (p *Pool[T]) report() {
	s := p.Stats()
	metrics.PoolSize.WithLabelValues(p.opts.Name).Set(float64(s.Size))
	metrics.PoolInUse.WithLabelValues(p.opts.Name).Set(float64(s.InUse))
	metrics.PoolWaiting.WithLabelValues(p.opts.Name).Set(float64(s.Waiting))
}
