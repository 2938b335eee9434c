package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/obscache/internal/singleflight"
	"github.com/IvanBrykalov/obscache/internal/util"
	"github.com/IvanBrykalov/obscache/rwlock"
)

// Lifecycle states. Closing is entered once, before the drain; Closed is
// terminal.
const (
	stateActive int32 = iota
	stateClosing
	stateClosed
)

// observableCache implements Cache. The store carries no lock of its own;
// the rwlock is the sole serialization mechanism, and all change publishing
// happens while the exclusive lane is held, which totally orders the stream.
type observableCache[K comparable, V any] struct {
	opt Options[K, V]

	store   *store[K, V]
	lock    *rwlock.RWLock
	changes *stream[Change[K, V]]
	counts  *stream[int]
	log     *slog.Logger

	// singleflight group for coalescing concurrent producers in GetOrAdd.
	sf singleflight.Group[K, V]

	state atomic.Int32

	stopSweep chan struct{}
	sweepDone chan struct{}

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_       util.CacheLinePad
	hits    util.PaddedAtomicInt64
	misses  util.PaddedAtomicInt64
	evicts  util.PaddedAtomicUint64
	dropped util.PaddedAtomicUint64
}

// New constructs a cache with the provided Options and starts its
// expiration sweep. Defaults:
//   - nil Metrics           -> NoopMetrics
//   - SweepInterval <= 0    -> 1s
//   - SubscriberBuffer <= 0 -> 256, always rounded up to a power of two
//   - nil Logger            -> discard
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.SweepInterval <= 0 {
		opt.SweepInterval = time.Second
	}
	buf := opt.SubscriberBuffer
	if buf <= 0 {
		buf = 256
	}
	opt.SubscriberBuffer = int(util.NextPow2(uint64(buf)))
	log := opt.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	c := &observableCache[K, V]{
		opt:       opt,
		store:     newStore[K, V](),
		lock:      rwlock.New(),
		log:       log,
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	onDrop := func() {
		c.dropped.Add(1)
		opt.Metrics.Dropped()
	}
	c.changes = newStream[Change[K, V]](opt.SubscriberBuffer, "changes", log, onDrop)
	c.counts = newStream[int](opt.SubscriberBuffer, "counts", log, onDrop)

	go c.sweepLoop()

	// return pointer-to-impl as the interface (avoids unexported-return lint)
	return c
}

// ---- Cache[K,V] implementation ----

func (c *observableCache[K, V]) Add(ctx context.Context, key K, value V) error {
	return c.AddWithExpiry(ctx, key, value, c.opt.DefaultTTL, c.opt.DefaultExpiration)
}

func (c *observableCache[K, V]) AddWithExpiry(ctx context.Context, key K, value V, ttl time.Duration, exp ExpirationType) error {
	t, err := c.writer(ctx)
	if err != nil {
		return err
	}
	defer t.Close()

	if err := c.addLocked(key, value, ttl, exp); err != nil {
		return fmt.Errorf("cache: add %v: %w", key, err)
	}
	c.publishCountLocked()
	return nil
}

func (c *observableCache[K, V]) AddRange(ctx context.Context, items []KeyValue[K, V]) error {
	t, err := c.writer(ctx)
	if err != nil {
		return err
	}
	defer t.Close()

	changed := false
	defer func() {
		if changed {
			c.publishCountLocked()
		}
	}()
	for _, it := range items {
		// Cancellation checkpoint between items; applied inserts stay.
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.addLocked(it.Key, it.Value, c.opt.DefaultTTL, c.opt.DefaultExpiration); err != nil {
			return fmt.Errorf("cache: add range %v: %w", it.Key, err)
		}
		changed = true
	}
	return nil
}

func (c *observableCache[K, V]) AddOrUpdate(ctx context.Context, key K, value V) error {
	t, err := c.writer(ctx)
	if err != nil {
		return err
	}
	defer t.Close()

	el := newElement(key, value, c.deadline(c.opt.DefaultTTL), c.opt.DefaultTTL, c.opt.DefaultExpiration)
	if old := c.store.upsert(el); old != nil {
		c.publishChangeLocked(replacedChange(el, old.value))
		return nil
	}
	c.publishChangeLocked(addedChange(el))
	c.enforceCapacityLocked()
	c.opt.Metrics.Size(c.store.len())
	c.publishCountLocked()
	return nil
}

func (c *observableCache[K, V]) TryAdd(ctx context.Context, key K, value V) (bool, error) {
	err := c.Add(ctx, key, value)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrKeyAlreadyExists):
		return false, nil
	default:
		return false, err
	}
}

func (c *observableCache[K, V]) TryUpdate(ctx context.Context, key K, value V) (bool, error) {
	t, err := c.writer(ctx)
	if err != nil {
		return false, err
	}
	defer t.Close()

	old, ok := c.store.get(key)
	if !ok || c.expiredOut(old) {
		return false, nil
	}
	// Keep the entry's expiration behavior; re-arm the deadline.
	el := newElement(key, value, c.deadline(old.ttl), old.ttl, old.expiration)
	c.store.replace(old, el)
	c.publishChangeLocked(replacedChange(el, old.value))
	return true, nil
}

func (c *observableCache[K, V]) TryRemove(ctx context.Context, key K) (bool, error) {
	err := c.Remove(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (c *observableCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	t, err := c.reader(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	defer t.Close()

	el, ok := c.store.get(key)
	if !ok || c.expiredOut(el) {
		c.misses.Add(1)
		c.opt.Metrics.Miss()
		var zero V
		return zero, fmt.Errorf("cache: get %v: %w", key, ErrKeyNotFound)
	}
	c.hits.Add(1)
	c.opt.Metrics.Hit()
	return el.value, nil
}

func (c *observableCache[K, V]) GetOrAdd(ctx context.Context, key K, produce Producer[K, V]) (V, error) {
	// Fast path: plain read.
	if v, err := c.Get(ctx, key); err == nil {
		return v, nil
	} else if !errors.Is(err, ErrKeyNotFound) {
		var zero V
		return zero, err
	}

	// singleflight: at most one producer run per miss.
	return c.sf.Do(ctx, key, func() (V, error) {
		var zero V
		// Double-check after flight join.
		if v, err := c.Get(ctx, key); err == nil {
			return v, nil
		} else if !errors.Is(err, ErrKeyNotFound) {
			return zero, err
		}
		v, err := produce(ctx, key)
		if err != nil {
			return zero, err
		}

		t, err := c.writer(ctx)
		if err != nil {
			return zero, err
		}
		defer t.Close()

		// A concurrent writer may have filled the key while we produced.
		if el, ok := c.store.get(key); ok {
			if !c.expiredOut(el) {
				return el.value, nil
			}
			// An elapsed ExpireRemove entry is logically absent; retire it
			// through the regular removal path before re-adding.
			c.store.removeElement(el)
			c.evicts.Add(1)
			c.opt.Metrics.Evict(EvictExpired)
			c.publishChangeLocked(removedChange(el))
		}
		if err := c.addLocked(key, v, c.opt.DefaultTTL, c.opt.DefaultExpiration); err != nil {
			return zero, fmt.Errorf("cache: get or add %v: %w", key, err)
		}
		c.publishCountLocked()
		return v, nil
	})
}

func (c *observableCache[K, V]) Contains(ctx context.Context, key K) (bool, error) {
	t, err := c.reader(ctx)
	if err != nil {
		return false, err
	}
	defer t.Close()
	el, ok := c.store.get(key)
	return ok && !c.expiredOut(el), nil
}

func (c *observableCache[K, V]) ContainsAll(ctx context.Context, keys []K) (bool, error) {
	t, err := c.reader(ctx)
	if err != nil {
		return false, err
	}
	defer t.Close()
	// Vacuously true for an empty key set.
	for _, k := range keys {
		el, ok := c.store.get(k)
		if !ok || c.expiredOut(el) {
			return false, nil
		}
	}
	return true, nil
}

func (c *observableCache[K, V]) ContainsWhich(ctx context.Context, keys []K) ([]K, error) {
	t, err := c.reader(ctx)
	if err != nil {
		return nil, err
	}
	defer t.Close()
	present := make([]K, 0, len(keys))
	for _, k := range keys {
		if el, ok := c.store.get(k); ok && !c.expiredOut(el) {
			present = append(present, k)
		}
	}
	return present, nil
}

func (c *observableCache[K, V]) Remove(ctx context.Context, key K) error {
	t, err := c.writer(ctx)
	if err != nil {
		return err
	}
	defer t.Close()

	if err := c.removeLocked(key); err != nil {
		return fmt.Errorf("cache: remove %v: %w", key, err)
	}
	c.publishCountLocked()
	return nil
}

func (c *observableCache[K, V]) RemoveRange(ctx context.Context, keys []K) error {
	t, err := c.writer(ctx)
	if err != nil {
		return err
	}
	defer t.Close()

	changed := false
	defer func() {
		if changed {
			c.publishCountLocked()
		}
	}()
	for _, k := range keys {
		// Cancellation checkpoint between items; applied removals stay.
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.removeLocked(k); err != nil {
			return fmt.Errorf("cache: remove range %v: %w", k, err)
		}
		changed = true
	}
	return nil
}

func (c *observableCache[K, V]) Clear(ctx context.Context) error {
	t, err := c.writer(ctx)
	if err != nil {
		return err
	}
	defer t.Close()

	c.store.clear()
	// One Reset record, never per-item removals.
	c.publishChangeLocked(resetChange[K, V]())
	c.opt.Metrics.Size(0)
	c.publishCountLocked()
	return nil
}

func (c *observableCache[K, V]) Len(ctx context.Context) (int, error) {
	t, err := c.reader(ctx)
	if err != nil {
		return 0, err
	}
	defer t.Close()
	return c.store.len(), nil
}

func (c *observableCache[K, V]) Subscribe(ctx context.Context) (<-chan Change[K, V], error) {
	// Register under the exclusive lane so the subscription boundary is
	// ordered with respect to mutations: every later mutation is seen,
	// nothing earlier is.
	t, err := c.writer(ctx)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	id, ch, err := c.changes.subscribe()
	if err != nil {
		return nil, err
	}
	go watchSubscription(ctx, c.changes, id)
	return ch, nil
}

func (c *observableCache[K, V]) SubscribeCount(ctx context.Context) (<-chan int, error) {
	t, err := c.writer(ctx)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	id, ch, err := c.counts.subscribe()
	if err != nil {
		return nil, err
	}
	// Seed the snapshot while still holding the exclusive lane, so the
	// first value received is the count at subscription time.
	c.counts.deliver(id, c.store.len())
	go watchSubscription(ctx, c.counts, id)
	return ch, nil
}

func (c *observableCache[K, V]) Stats() Stats {
	return Stats{
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		Evictions:      c.evicts.Load(),
		DroppedRecords: c.dropped.Load(),
	}
}

// Close stops the sweep, waits out in-flight operations via one final
// exclusive acquisition, completes all subscriber channels, and rejects
// further operations with ErrClosed.
func (c *observableCache[K, V]) Close() error {
	if !c.state.CompareAndSwap(stateActive, stateClosing) {
		return ErrClosed
	}
	close(c.stopSweep)
	<-c.sweepDone

	// Drain: once this admission is granted, no user operation is inside
	// the store, and none can re-enter (state is already Closing).
	t, err := c.lock.AcquireWriter(context.Background())
	if err == nil {
		c.changes.close()
		c.counts.close()
		_ = t.Close()
	}
	_ = c.lock.Close()
	c.state.Store(stateClosed)
	return nil
}

// ---- internals (exclusive lane held unless noted) ----

// addLocked inserts a new element, publishes ItemAdded, and enforces the
// capacity bound.
func (c *observableCache[K, V]) addLocked(key K, value V, ttl time.Duration, exp ExpirationType) error {
	el := newElement(key, value, c.deadline(ttl), ttl, exp)
	if err := c.store.add(el); err != nil {
		return err
	}
	c.publishChangeLocked(addedChange(el))
	c.enforceCapacityLocked()
	c.opt.Metrics.Size(c.store.len())
	return nil
}

// removeLocked deletes the element for key and publishes ItemRemoved.
func (c *observableCache[K, V]) removeLocked(key K) error {
	el, err := c.store.remove(key)
	if err != nil {
		return err
	}
	c.publishChangeLocked(removedChange(el))
	c.opt.Metrics.Size(c.store.len())
	return nil
}

// enforceCapacityLocked evicts oldest-written entries until the count limit
// is satisfied. Evictions go through the same removal path as any other
// mutation, so ItemRemoved records are emitted.
func (c *observableCache[K, V]) enforceCapacityLocked() {
	if c.opt.Capacity <= 0 {
		return
	}
	for c.store.len() > c.opt.Capacity {
		el := c.store.oldest()
		if el == nil {
			break
		}
		c.store.removeElement(el)
		c.evicts.Add(1)
		c.opt.Metrics.Evict(EvictCapacity)
		c.publishChangeLocked(removedChange(el))
	}
}

func (c *observableCache[K, V]) publishChangeLocked(ch Change[K, V]) {
	c.changes.publish(ch)
	c.opt.Metrics.Published()
}

func (c *observableCache[K, V]) publishCountLocked() {
	c.counts.publish(c.store.len())
}

// expiredOut reports whether el is logically absent for reads: its deadline
// elapsed under the Remove policy but the sweep has not retired it yet.
func (c *observableCache[K, V]) expiredOut(el *Element[K, V]) bool {
	return el.expiration == ExpireRemove && el.expiredAt(c.now())
}

// reader admits into the concurrent lane; writer into the exclusive one.
// Both re-check the lifecycle state after admission so operations racing
// Close fail with ErrClosed instead of touching torn-down streams.
func (c *observableCache[K, V]) reader(ctx context.Context) (*rwlock.Ticket, error) {
	return c.admit(ctx, false)
}

func (c *observableCache[K, V]) writer(ctx context.Context) (*rwlock.Ticket, error) {
	return c.admit(ctx, true)
}

func (c *observableCache[K, V]) admit(ctx context.Context, exclusive bool) (*rwlock.Ticket, error) {
	if c.state.Load() != stateActive {
		return nil, ErrClosed
	}
	var (
		t   *rwlock.Ticket
		err error
	)
	if exclusive {
		t, err = c.lock.AcquireWriter(ctx)
	} else {
		t, err = c.lock.AcquireReader(ctx)
	}
	if err != nil {
		if errors.Is(err, rwlock.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	if c.state.Load() != stateActive {
		_ = t.Close()
		return nil, ErrClosed
	}
	return t, nil
}

// now returns the current UnixNano per the configured clock.
func (c *observableCache[K, V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// deadline converts a relative TTL into an absolute UnixNano deadline.
// A non-positive ttl returns 0 (no expiration).
func (c *observableCache[K, V]) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return c.now() + int64(ttl)
}

// watchSubscription retires a subscription when its context ends. The
// stream's own shutdown also closes the channel, so the watcher must not
// outlive the stream.
func watchSubscription[T any](ctx context.Context, s *stream[T], id uint64) {
	select {
	case <-ctx.Done():
		s.unsubscribe(id)
	case <-s.closing():
	}
}
