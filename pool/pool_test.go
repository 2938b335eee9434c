package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intFactory() Factory[int] {
	var n atomic.Int64
	return func(context.Context) (int, error) {
		return int(n.Add(1)), nil
	}
}

func TestPool_ConstructionAndCounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, err := New(ctx, intFactory(), 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	assert.Equal(t, 3, p.TotalInstances())
	assert.Equal(t, 3, p.AvailableInstances())

	_, err = New(ctx, intFactory(), -1)
	assert.ErrorIs(t, err, ErrNegativeCount)

	seeded, err := NewWithInstances(intFactory(), []int{10, 20})
	require.NoError(t, err)
	t.Cleanup(func() { _ = seeded.Close() })
	assert.Equal(t, 2, seeded.TotalInstances())
}

func TestPool_GrowAndShrink(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, err := New(ctx, intFactory(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	require.NoError(t, p.Grow(ctx, 2))
	assert.Equal(t, 3, p.TotalInstances())
	assert.Equal(t, 3, p.AvailableInstances())

	assert.ErrorIs(t, p.Grow(ctx, -1), ErrNegativeCount)
	assert.ErrorIs(t, p.Shrink(-1), ErrNegativeCount)
	assert.ErrorIs(t, p.Shrink(4), ErrShrinkExceedsAvailable)

	require.NoError(t, p.Shrink(2))
	assert.Equal(t, 1, p.TotalInstances())
	assert.Equal(t, 1, p.AvailableInstances())
}

// Shrink only ever reclaims idle instances; acquired ones are out of reach.
func TestPool_ShrinkIgnoresAcquired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, err := New(ctx, intFactory(), 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	tk, err := p.Acquire(ctx, ZeroIfEmpty)
	require.NoError(t, err)

	assert.ErrorIs(t, p.Shrink(2), ErrShrinkExceedsAvailable)
	require.NoError(t, p.Shrink(1))
	assert.Equal(t, 1, p.TotalInstances()) // the acquired one

	require.NoError(t, tk.Release())
	assert.Equal(t, 1, p.AvailableInstances())
}

func TestPool_AcquireModes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, err := New(ctx, intFactory(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	// Drain the single idle instance.
	first, err := p.Acquire(ctx, ZeroIfEmpty)
	require.NoError(t, err)

	// ZeroIfEmpty fails fast on an empty pool.
	_, err = p.Acquire(ctx, ZeroIfEmpty)
	assert.ErrorIs(t, err, ErrPoolEmpty)

	// CreateOnDemand builds a fresh instance and grows the total.
	second, err := p.Acquire(ctx, CreateOnDemand)
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalInstances())

	// Wait suspends until an instance is released.
	released := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(released)
		_ = first.Release()
	}()
	got, err := p.Acquire(ctx, Wait)
	require.NoError(t, err)
	select {
	case <-released:
	default:
		t.Fatal("Wait-mode acquire must not return before a release")
	}

	require.NoError(t, got.Release())
	require.NoError(t, second.Release())
}

func TestPool_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	p, err := New(context.Background(), intFactory(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, Wait)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// The one-shot ticket contract: release XOR detach, exactly once, and only
// against the owning pool.
func TestPool_TicketOneShotSemantics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, err := New(ctx, intFactory(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	tk, err := p.Acquire(ctx, ZeroIfEmpty)
	require.NoError(t, err)
	v, err := tk.Value()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, tk.Release())
	assert.True(t, tk.Released())

	// Any further transition fails, and the value is gone.
	assert.ErrorIs(t, tk.Release(), ErrTicketConsumed)
	assert.ErrorIs(t, tk.Detach(), ErrTicketConsumed)
	_, err = tk.Value()
	assert.ErrorIs(t, err, ErrTicketConsumed)

	// Detach-then-release is just as invalid.
	tk2, err := p.Acquire(ctx, ZeroIfEmpty)
	require.NoError(t, err)
	require.NoError(t, tk2.Detach())
	assert.True(t, tk2.Detached())
	assert.ErrorIs(t, tk2.Release(), ErrTicketConsumed)
	assert.Equal(t, 0, p.TotalInstances(), "detached instances leave pool accounting")
}

func TestPool_ForeignTicketRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a, err := New(ctx, intFactory(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := New(ctx, intFactory(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	tk, err := a.Acquire(ctx, ZeroIfEmpty)
	require.NoError(t, err)

	assert.ErrorIs(t, b.Release(tk), ErrNotPoolMember)
	assert.ErrorIs(t, b.Detach(tk), ErrNotPoolMember)

	// The ticket is still live and usable against its own pool.
	require.NoError(t, a.Release(tk))
}

type closable struct{ closed atomic.Bool }

func (c *closable) Close() error {
	c.closed.Store(true)
	return nil
}

func TestPool_CloseDrainsIdleOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	made := make([]*closable, 0, 2)
	p, err := New(ctx, func(context.Context) (*closable, error) {
		c := &closable{}
		made = append(made, c)
		return c, nil
	}, 2)
	require.NoError(t, err)

	tk, err := p.Acquire(ctx, ZeroIfEmpty)
	require.NoError(t, err)
	held, err := tk.Value()
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Close(), ErrClosed)

	// The idle instance was closed; the acquired one was not.
	assert.False(t, held.closed.Load())
	for _, c := range made {
		if c != held {
			assert.True(t, c.closed.Load(), "idle instances must be closed on pool close")
		}
	}

	// Post-close operations are rejected.
	_, err = p.Acquire(ctx, ZeroIfEmpty)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Grow(ctx, 1), ErrClosed)
	assert.ErrorIs(t, p.Shrink(0), ErrClosed)

	// Releasing the held instance into the closed pool closes it instead
	// of re-queueing (no double free either way).
	require.NoError(t, tk.Release())
	assert.True(t, held.closed.Load())
	assert.Equal(t, 0, p.TotalInstances())
}

func TestPool_CloseWakesWaiters(t *testing.T) {
	t.Parallel()

	p, err := New(context.Background(), intFactory(), 0)
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background(), Wait)
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter must be woken by Close")
	}
}

func TestPool_FactoryErrorPropagates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	boom := errors.New("no more instances")

	fails := func(context.Context) (int, error) { return 0, boom }
	_, err := New(ctx, fails, 1)
	assert.ErrorIs(t, err, boom)

	p, err := New(ctx, fails, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	_, err = p.Acquire(ctx, CreateOnDemand)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.TotalInstances())
}
