// Package rwlock provides an asynchronous multiple-readers/single-writer lock.
//
// Admission is context-aware: Acquire* calls suspend (not spin) until the
// requested lane grants access or the context is cancelled. Release happens by
// closing the returned Ticket; the ticket is the sole release mechanism.
//
// The lock is NOT re-entrant. Acquiring a second ticket while holding one on
// the same goroutine can deadlock; this is a documented constraint of the
// two-lane admission model, not a bug.
package rwlock

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrClosed is returned by acquisitions attempted after Close.
	ErrClosed = errors.New("rwlock: lock is closed")
	// ErrTicketConsumed is returned when a ticket is closed more than once.
	ErrTicketConsumed = errors.New("rwlock: ticket already closed")
)

// maxReaders bounds the number of simultaneously admitted readers.
// A writer acquires the full weight, excluding every reader.
const maxReaders = 1 << 30

// RWLock is an asynchronous reader/writer lock with two admission lanes:
// a concurrent lane admitting up to maxReaders simultaneous readers and an
// exclusive lane admitting exactly one writer, never concurrently with any
// reader. Waiters in both lanes are served in FIFO order by the underlying
// weighted semaphore.
//
// The zero value is not usable; construct with New.
type RWLock struct {
	sem    *semaphore.Weighted
	nextID atomic.Uint64
	closed atomic.Bool
}

// New constructs an open RWLock.
func New() *RWLock {
	return &RWLock{sem: semaphore.NewWeighted(maxReaders)}
}

// AcquireReader waits for admission into the concurrent lane and returns the
// ticket that releases it. Multiple readers may hold tickets at once.
// Returns ctx.Err() if ctx is cancelled while waiting, ErrClosed if the lock
// has been closed.
func (l *RWLock) AcquireReader(ctx context.Context) (*Ticket, error) {
	return l.acquire(ctx, false)
}

// AcquireWriter waits for admission into the exclusive lane and returns the
// ticket that releases it. A writer ticket excludes all readers and other
// writers. Returns ctx.Err() if ctx is cancelled while waiting, ErrClosed if
// the lock has been closed.
func (l *RWLock) AcquireWriter(ctx context.Context) (*Ticket, error) {
	return l.acquire(ctx, true)
}

func (l *RWLock) acquire(ctx context.Context, exclusive bool) (*Ticket, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	w := l.weight(exclusive)
	if err := l.sem.Acquire(ctx, w); err != nil {
		return nil, err
	}
	// Close may have won the race between the flag check and admission.
	// Give the weight back so Close's drain is not corrupted.
	if l.closed.Load() {
		l.sem.Release(w)
		return nil, ErrClosed
	}
	return &Ticket{
		lock:      l,
		id:        l.nextID.Add(1),
		exclusive: exclusive,
	}, nil
}

// Close drains the lock and rejects further acquisitions. It performs one
// final exclusive acquisition, so it blocks until every outstanding ticket has
// been closed. Outstanding tickets remain valid and must still be closed.
// A second Close returns ErrClosed.
func (l *RWLock) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	// Final exclusive pass: waits out all admitted readers and writers.
	if err := l.sem.Acquire(context.Background(), maxReaders); err != nil {
		return err
	}
	l.sem.Release(maxReaders)
	return nil
}

func (l *RWLock) weight(exclusive bool) int64 {
	if exclusive {
		return maxReaders
	}
	return 1
}

// Ticket represents one granted admission. Closing it releases the lane;
// closing it twice fails with ErrTicketConsumed.
type Ticket struct {
	lock      *RWLock
	id        uint64
	exclusive bool
	consumed  atomic.Bool
}

// ID returns the ticket's monotonically increasing identifier.
// IDs are unique per lock for its lifetime.
func (t *Ticket) ID() uint64 { return t.id }

// Exclusive reports whether the ticket holds the exclusive (writer) lane.
func (t *Ticket) Exclusive() bool { return t.exclusive }

// Close releases the ticket's lane, admitting the next queued waiter.
// Valid exactly once.
func (t *Ticket) Close() error {
	if !t.consumed.CompareAndSwap(false, true) {
		return ErrTicketConsumed
	}
	t.lock.sem.Release(t.lock.weight(t.exclusive))
	return nil
}
