package pool

import (
	"sync/atomic"
)

// Ticket states. Released and Detached are terminal, mutually exclusive,
// and irreversible.
const (
	stateActive int32 = iota
	stateReleased
	stateDetached
)

// Pooled is the checkout ticket for one acquired instance. It is bound to
// the pool that issued it and is consumed exactly once, by Release or
// Detach. After either transition the wrapped value is no longer accessible
// through the ticket.
type Pooled[T any] struct {
	pool  *Pool[T]
	value T
	state atomic.Int32
}

// Value returns the checked-out instance. After Release or Detach it fails
// with ErrTicketConsumed and returns the zero value.
func (t *Pooled[T]) Value() (T, error) {
	if t.state.Load() != stateActive {
		var zero T
		return zero, ErrTicketConsumed
	}
	return t.value, nil
}

// Released reports whether the ticket ended in the released state.
func (t *Pooled[T]) Released() bool { return t.state.Load() == stateReleased }

// Detached reports whether the ticket ended in the detached state.
func (t *Pooled[T]) Detached() bool { return t.state.Load() == stateDetached }

// Release is shorthand for the owning pool's Release.
func (t *Pooled[T]) Release() error { return t.pool.Release(t) }

// Detach is shorthand for the owning pool's Detach.
func (t *Pooled[T]) Detach() error { return t.pool.Detach(t) }

// consume validates ownership and performs the single terminal transition.
func (t *Pooled[T]) consume(owner *Pool[T], terminal int32) error {
	if t.pool != owner {
		return ErrNotPoolMember
	}
	if !t.state.CompareAndSwap(stateActive, terminal) {
		return ErrTicketConsumed
	}
	return nil
}
