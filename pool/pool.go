// Package pool provides a generic object pool with context-aware acquisition,
// dynamic resizing, and one-shot checkout tickets.
//
// Every acquired value is wrapped in a *Pooled ticket bound to the owning
// pool. A ticket is consumed exactly once, by either Release (the value goes
// back to the idle queue) or Detach (the value leaves the pool for good).
// Mixing the two, repeating either, or presenting the ticket to a different
// pool fails with an error rather than corrupting pool accounting. That
// one-shot contract is the component's principal correctness guarantee: it
// makes double-return bugs impossible by construction.
package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	// ErrNegativeCount is returned by Grow and Shrink for negative sizes.
	ErrNegativeCount = errors.New("pool: count must not be negative")
	// ErrShrinkExceedsAvailable is returned when Shrink asks for more
	// instances than are currently idle. Acquired instances are never
	// reclaimed by Shrink.
	ErrShrinkExceedsAvailable = errors.New("pool: shrink count exceeds available instances")
	// ErrPoolEmpty is returned by Acquire in ZeroIfEmpty mode when no idle
	// instance is available.
	ErrPoolEmpty = errors.New("pool: no idle instance available")
	// ErrTicketConsumed is returned when a ticket is released or detached
	// after it has already reached a terminal state.
	ErrTicketConsumed = errors.New("pool: ticket already released or detached")
	// ErrNotPoolMember is returned when a ticket is presented to a pool
	// other than the one that issued it.
	ErrNotPoolMember = errors.New("pool: ticket does not belong to this pool")
	// ErrClosed is returned by operations on a closed pool.
	ErrClosed = errors.New("pool: pool is closed")
)

// Factory builds one pool instance. Builds may be slow or cancellable;
// the context is the caller's.
type Factory[T any] func(ctx context.Context) (T, error)

// AcquireMode selects the behavior of Acquire when the idle queue is empty.
type AcquireMode int

const (
	// ZeroIfEmpty fails fast with ErrPoolEmpty.
	ZeroIfEmpty AcquireMode = iota
	// Wait suspends until another holder releases an instance, the pool is
	// closed, or ctx is cancelled.
	Wait
	// CreateOnDemand builds a fresh instance via the factory and grows the
	// pool's total by one.
	CreateOnDemand
)

// Pool is a generic object pool. All methods are safe for concurrent use.
type Pool[T any] struct {
	factory Factory[T]

	mu     sync.Mutex
	idle   []T
	total  int
	closed bool

	avail chan struct{} // wake signal for Wait-mode acquirers
	done  chan struct{} // closed when the pool closes
}

// New builds a pool and pre-populates it with initial instances created by
// the factory. initial < 0 fails with ErrNegativeCount; a factory error
// aborts construction.
func New[T any](ctx context.Context, factory Factory[T], initial int) (*Pool[T], error) {
	if factory == nil {
		return nil, errors.New("pool: factory must not be nil")
	}
	if initial < 0 {
		return nil, fmt.Errorf("pool: initial size %d: %w", initial, ErrNegativeCount)
	}
	p := newEmpty(factory)
	if err := p.Grow(ctx, initial); err != nil {
		return nil, err
	}
	return p, nil
}

// NewWithInstances builds a pool seeded with the given instances.
// The factory is still required for Grow and CreateOnDemand acquisition.
func NewWithInstances[T any](factory Factory[T], instances []T) (*Pool[T], error) {
	if factory == nil {
		return nil, errors.New("pool: factory must not be nil")
	}
	p := newEmpty(factory)
	p.idle = append(p.idle, instances...)
	p.total = len(instances)
	return p, nil
}

func newEmpty[T any](factory Factory[T]) *Pool[T] {
	return &Pool[T]{
		factory: factory,
		avail:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Grow builds n new instances via the factory and adds them to the idle
// queue. Cancellation is honored between builds; instances already built
// stay in the pool.
func (p *Pool[T]) Grow(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("pool: grow by %d: %w", n, ErrNegativeCount)
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := p.factory(ctx)
		if err != nil {
			return err
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			closeValue(v)
			return ErrClosed
		}
		p.idle = append(p.idle, v)
		p.total++
		p.mu.Unlock()
		p.signal()
	}
	return nil
}

// Shrink removes up to n idle instances from the pool and closes them if
// they implement io.Closer. Instances currently acquired are never touched;
// asking for more than are idle fails with ErrShrinkExceedsAvailable.
func (p *Pool[T]) Shrink(n int) error {
	if n < 0 {
		return fmt.Errorf("pool: shrink by %d: %w", n, ErrNegativeCount)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if n > len(p.idle) {
		avail := len(p.idle)
		p.mu.Unlock()
		return fmt.Errorf("pool: shrink by %d with %d available: %w", n, avail, ErrShrinkExceedsAvailable)
	}
	victims := make([]T, n)
	copy(victims, p.idle[len(p.idle)-n:])
	p.idle = p.idle[:len(p.idle)-n]
	p.total -= n
	p.mu.Unlock()

	// Close outside the lock; Close implementations may be slow.
	for _, v := range victims {
		closeValue(v)
	}
	return nil
}

// Acquire checks out one instance, behaving per mode when the idle queue is
// empty. The returned ticket is bound to this pool and must be consumed by
// exactly one of Release or Detach.
func (p *Pool[T]) Acquire(ctx context.Context, mode AcquireMode) (*Pooled[T], error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}
		if n := len(p.idle); n > 0 {
			v := p.idle[n-1]
			var zero T
			p.idle[n-1] = zero
			p.idle = p.idle[:n-1]
			remaining := n - 1
			p.mu.Unlock()
			if remaining > 0 {
				// Cascade the wakeup so other waiters see the rest.
				p.signal()
			}
			return &Pooled[T]{pool: p, value: v}, nil
		}
		p.mu.Unlock()

		switch mode {
		case ZeroIfEmpty:
			return nil, ErrPoolEmpty
		case CreateOnDemand:
			v, err := p.factory(ctx)
			if err != nil {
				return nil, err
			}
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				closeValue(v)
				return nil, ErrClosed
			}
			p.total++
			p.mu.Unlock()
			return &Pooled[T]{pool: p, value: v}, nil
		case Wait:
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-p.done:
				return nil, ErrClosed
			case <-p.avail:
				// Re-check the queue; another waiter may have raced us.
			}
		default:
			return nil, fmt.Errorf("pool: unknown acquire mode %d", mode)
		}
	}
}

// Release returns the ticket's value to the idle queue. Valid exactly once
// per ticket; a foreign ticket fails with ErrNotPoolMember. Releasing into a
// closed pool closes the value instead of re-queueing it.
func (p *Pool[T]) Release(t *Pooled[T]) error {
	if err := t.consume(p, stateReleased); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.total--
		p.mu.Unlock()
		closeValue(t.value)
		return nil
	}
	p.idle = append(p.idle, t.value)
	p.mu.Unlock()
	p.signal()
	return nil
}

// Detach removes the ticket's value from pool accounting permanently.
// The caller keeps the value it already holds; the pool forgets it.
func (p *Pool[T]) Detach(t *Pooled[T]) error {
	if err := t.consume(p, stateDetached); err != nil {
		return err
	}
	p.mu.Lock()
	p.total--
	p.mu.Unlock()
	return nil
}

// TotalInstances returns the number of instances the pool accounts for:
// idle plus acquired, excluding detached.
func (p *Pool[T]) TotalInstances() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// AvailableInstances returns the number of idle instances.
func (p *Pool[T]) AvailableInstances() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close drains the idle queue, closing each idle instance that implements
// io.Closer, and wakes all waiters with ErrClosed. Instances currently
// acquired are unaffected; releasing them later closes them (no double
// free). A second Close fails with ErrClosed.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	drained := p.idle
	p.idle = nil
	p.total -= len(drained)
	p.mu.Unlock()

	close(p.done)
	for _, v := range drained {
		closeValue(v)
	}
	return nil
}

// signal wakes at most one Wait-mode acquirer. The channel has capacity one,
// so a signal with no waiter is remembered and a redundant signal is dropped.
func (p *Pool[T]) signal() {
	select {
	case p.avail <- struct{}{}:
	default:
	}
}

func closeValue(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}
