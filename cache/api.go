package cache

import (
	"context"
	"time"
)

// KeyValue is one item of a batch insert.
type KeyValue[K comparable, V any] struct {
	Key   K
	Value V
}

// Stats is a snapshot of the cache's hot counters.
type Stats struct {
	Hits           int64
	Misses         int64
	Evictions      uint64
	DroppedRecords uint64
}

// Producer builds the value for a key on a GetOrAdd miss. Errors are
// surfaced as the operation's failure, never swallowed.
type Producer[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Cache is an observable, concurrent keyed store with per-entry time-based
// expiration and a live change-record stream.
//
// All operations are context-aware: they may suspend while waiting for lock
// admission and honor cancellation before admission and between batch
// iterations. Side effects already applied when a batch fails are NOT rolled
// back. Reads run concurrently with each other; every mutation — including
// the background expiration sweep — is serialized on an exclusive lane, so
// the change stream is totally ordered and a reader never observes a
// partially applied mutation.
type Cache[K comparable, V any] interface {
	// Add inserts key→value using the cache's default TTL and expiration
	// policy. Fails with ErrKeyAlreadyExists if the key is present.
	Add(ctx context.Context, key K, value V) error

	// AddWithExpiry inserts key→value with an explicit relative TTL and
	// expiration policy. ttl <= 0 means the entry never expires.
	AddWithExpiry(ctx context.Context, key K, value V, ttl time.Duration, exp ExpirationType) error

	// AddRange inserts the items in order, emitting one ItemAdded per item.
	// It fails fast on the first duplicate key; earlier items stay.
	AddRange(ctx context.Context, items []KeyValue[K, V]) error

	// AddOrUpdate inserts the key or replaces its value. A replacement
	// emits ItemValueReplaced carrying the old value and applies the
	// cache's default TTL and expiration policy afresh.
	AddOrUpdate(ctx context.Context, key K, value V) error

	// TryAdd is Add without the duplicate-key error: it reports whether
	// the insert happened.
	TryAdd(ctx context.Context, key K, value V) (bool, error)

	// TryUpdate replaces the value of an existing key, preserving the
	// entry's TTL and expiration policy (the deadline is re-armed).
	// It reports whether the key was present.
	TryUpdate(ctx context.Context, key K, value V) (bool, error)

	// TryRemove is Remove without the missing-key error: it reports
	// whether the key was present.
	TryRemove(ctx context.Context, key K) (bool, error)

	// Get returns the value for key. Fails with ErrKeyNotFound if the key
	// is absent, or expired-but-unswept under the ExpireRemove policy.
	Get(ctx context.Context, key K) (V, error)

	// GetOrAdd returns the value for key, producing and inserting it on a
	// miss. Concurrent producers for the same key are coalesced so produce
	// runs at most once per miss.
	GetOrAdd(ctx context.Context, key K, produce Producer[K, V]) (V, error)

	// Contains reports whether key is present (Get's absence rules apply).
	Contains(ctx context.Context, key K) (bool, error)

	// ContainsAll reports whether every key is present.
	// An empty slice is vacuously true.
	ContainsAll(ctx context.Context, keys []K) (bool, error)

	// ContainsWhich returns the subset of keys that are present, in input
	// order. An empty slice yields an empty result.
	ContainsWhich(ctx context.Context, keys []K) ([]K, error)

	// Remove deletes the entry for key, emitting ItemRemoved.
	// Fails with ErrKeyNotFound if the key is absent.
	Remove(ctx context.Context, key K) error

	// RemoveRange removes the keys in order, one ItemRemoved per key.
	// It fails fast on the first missing key; earlier removals stay.
	RemoveRange(ctx context.Context, keys []K) error

	// Clear drops every entry in one logical step, emitting exactly one
	// Reset record (never per-item removals).
	Clear(ctx context.Context) error

	// Len returns the current number of resident entries.
	Len(ctx context.Context) (int, error)

	// Subscribe returns the live change stream. There is no replay; the
	// subscription ends when ctx is cancelled or the cache closes, at
	// which point the channel is closed.
	Subscribe(ctx context.Context) (<-chan Change[K, V], error)

	// SubscribeCount returns a stream that starts with the current entry
	// count and then carries every subsequent count change.
	SubscribeCount(ctx context.Context) (<-chan int, error)

	// Stats returns a snapshot of the hot counters.
	Stats() Stats

	// Close stops the sweep, drains in-flight operations, and completes
	// every subscriber channel. Further operations fail with ErrClosed.
	Close() error
}
