package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handle struct{ id int64 }

type countingFactory struct {
	created   atomic.Int64
	destroyed atomic.Int64
	fail      atomic.Bool
}

func (f *countingFactory) Create(ctx context.Context) (*handle, error) {
	if f.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return &handle{id: f.created.Add(1)}, nil
}

func (f *countingFactory) Destroy(*handle) error {
	f.destroyed.Add(1)
	return nil
}

func quietLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func TestNewPrefillsMin(t *testing.T) {
	f := &countingFactory{}
	p := New[*handle](context.Background(), f, Options{Name: "t", Min: 2, Max: 4}, quietLogger())
	defer p.Close()

	assert.EqualValues(t, 2, f.created.Load())
	assert.Equal(t, Stats{Size: 2, Idle: 2}, p.Stats())
}

func TestNewPrefillFailureIsNotFatal(t *testing.T) {
	f := &countingFactory{}
	f.fail.Store(true)
	log, hook := test.NewNullLogger()

	p := New[*handle](context.Background(), f, Options{Name: "t", Min: 1, Max: 2}, log)
	defer p.Close()

	assert.Equal(t, 0, p.Stats().Size)
	require.NotEmpty(t, hook.Entries)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	f.fail.Store(false)
	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(h)
}

func TestAcquireReusesReleasedHandle(t *testing.T) {
	f := &countingFactory{}
	p := New[*handle](context.Background(), f, Options{Name: "t", Max: 2}, quietLogger())
	defer p.Close()

	h1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Size: 1, InUse: 1}, p.Stats())
	p.Release(h1)

	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, h1, h2)
	assert.EqualValues(t, 1, f.created.Load())
	p.Release(h2)
}

func TestAcquireBlocksAtMax(t *testing.T) {
	f := &countingFactory{}
	p := New[*handle](context.Background(), f, Options{Name: "t", Max: 1}, quietLogger())
	defer p.Close()

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	got := make(chan *handle)
	go func() {
		h2, err := p.Acquire(context.Background())
		if err == nil {
			got <- h2
		}
	}()

	require.Eventually(t, func() bool { return p.Stats().Waiting == 1 }, time.Second, 5*time.Millisecond)
	select {
	case <-got:
		t.Fatal("acquire should wait while the only handle is checked out")
	default:
	}

	p.Release(h)
	select {
	case h2 := <-got:
		assert.Same(t, h, h2)
		p.Release(h2)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by release")
	}
	assert.EqualValues(t, 1, f.created.Load())
}

func TestAcquireNeverExceedsMax(t *testing.T) {
	f := &countingFactory{}
	p := New[*handle](context.Background(), f, Options{Name: "t", Max: 3}, quietLogger())
	defer p.Close()

	var (
		wg      sync.WaitGroup
		inUse   atomic.Int64
		maxSeen atomic.Int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := p.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			n := inUse.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inUse.Add(-1)
			p.Release(h)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int64(3))
	assert.LessOrEqual(t, f.created.Load(), int64(3))
}

func TestAcquireTimeout(t *testing.T) {
	p := New[*handle](context.Background(), &countingFactory{}, Options{Name: "t", Max: 1, AcquireTimeout: 20 * time.Millisecond}, quietLogger())
	defer p.Close()

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(h)

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrAcquireTimeout)
}

func TestAcquireContextCanceled(t *testing.T) {
	p := New[*handle](context.Background(), &countingFactory{}, Options{Name: "t", Max: 1}, quietLogger())
	defer p.Close()

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(h)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, p.Stats().Waiting)
}

func TestCreateFailureFreesSlot(t *testing.T) {
	f := &countingFactory{}
	f.fail.Store(true)
	p := New[*handle](context.Background(), f, Options{Name: "t", Max: 1}, quietLogger())
	defer p.Close()

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	f.fail.Store(false)
	h, err := p.Acquire(context.Background())
	require.NoError(t, err, "failed create must not leak its slot")
	p.Release(h)
}

func TestConnectTimeoutBoundsCreate(t *testing.T) {
	f := FactoryFuncs[*handle]{
		CreateFunc: func(ctx context.Context) (*handle, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	p := New[*handle](context.Background(), f, Options{Name: "t", Max: 1, ConnectTimeout: 10 * time.Millisecond}, quietLogger())
	defer p.Close()

	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvalidateDestroysHandle(t *testing.T) {
	f := &countingFactory{}
	p := New[*handle](context.Background(), f, Options{Name: "t", Max: 1}, quietLogger())
	defer p.Close()

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Invalidate(h)

	assert.EqualValues(t, 1, f.destroyed.Load())
	assert.Equal(t, Stats{}, p.Stats())

	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, h, h2)
	p.Release(h2)
}

func TestCloseLifecycle(t *testing.T) {
	f := &countingFactory{}
	p := New[*handle](context.Background(), f, Options{Name: "t", Min: 1, Max: 2}, quietLogger())

	out, err := p.Acquire(context.Background())
	require.NoError(t, err)
	_, err = p.Acquire(context.Background())
	require.NoError(t, err)

	waiter := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		waiter <- err
	}()
	require.Eventually(t, func() bool { return p.Stats().Waiting == 1 }, time.Second, 5*time.Millisecond)

	p.Close()
	assert.ErrorIs(t, <-waiter, ErrClosed)

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	before := f.destroyed.Load()
	p.Release(out)
	assert.Equal(t, before+1, f.destroyed.Load(), "handles released after close are destroyed")

	p.Close()
}
