package cache

import (
	"context"
	"log/slog"
	"time"
)

// ExpirationType is the policy governing what automatic action the sweep
// takes once an entry's expiry elapses.
type ExpirationType int

const (
	// ExpireDoNothing leaves the entry as-is; the deadline is purely
	// informational and the entry keeps being served.
	ExpireDoNothing ExpirationType = iota
	// ExpireRemove evicts the entry through the regular removal path, so an
	// ItemRemoved record is emitted. Reads treat an elapsed-but-unswept
	// entry as already absent.
	ExpireRemove
	// ExpireRefresh regenerates the value via Options.Refresh and re-arms
	// the deadline, emitting ItemValueReplaced. The stale value keeps being
	// served until the refresh lands.
	ExpireRefresh
)

// String returns a stable label for the expiration type.
func (t ExpirationType) String() string {
	switch t {
	case ExpireRemove:
		return "remove"
	case ExpireRefresh:
		return "refresh"
	default:
		return "do_nothing"
	}
}

// EvictReason explains why an entry was removed automatically.
type EvictReason int

const (
	// EvictExpired — removed by the expiration sweep.
	EvictExpired EvictReason = iota
	// EvictCapacity — removed to satisfy the entry count limit.
	EvictCapacity
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	// Published/Dropped count change records delivered to (or dropped for)
	// individual subscribers.
	Published()
	Dropped()
	Size(entries int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// RefreshProducer regenerates the value for a key whose entry expired under
// ExpireRefresh. It runs on the exclusive lane, serialized with every other
// mutation, so it should be fast; an error leaves the entry untouched and is
// reported on the change stream as ItemRefreshFailed.
type RefreshProducer[K comparable, V any] func(ctx context.Context, key K, old V) (V, error)

// Options configures the cache behavior. Zero values are safe;
// sane defaults are applied in New():
//   - nil Metrics          => NoopMetrics
//   - SweepInterval <= 0   => 1s
//   - SubscriberBuffer <=0 => 256 (rounded up to a power of two)
//   - nil Logger           => discard
type Options[K comparable, V any] struct {
	// Capacity is the entry count limit; 0 disables it. When an insert
	// exceeds the limit, the oldest-written entry is evicted through the
	// regular removal path (ItemRemoved is emitted).
	Capacity int

	// DefaultTTL and DefaultExpiration apply to Add/AddOrUpdate when no
	// per-entry expiry is provided (DefaultTTL 0 = no expiry).
	DefaultTTL        time.Duration
	DefaultExpiration ExpirationType

	// SweepInterval is the period of the background expiration sweep.
	// Expired entries are acted on within one interval plus lock wait,
	// not exact-to-the-tick.
	SweepInterval time.Duration

	// SubscriberBuffer is the per-subscriber channel capacity for the
	// change and count streams, rounded up to the next power of two.
	// A subscriber that falls this far behind starts losing records
	// (counted in Metrics.Dropped and logged).
	SubscriberBuffer int

	// Refresh regenerates values for ExpireRefresh entries. Entries with
	// that policy are left alone (and a warning is logged) if Refresh is
	// nil.
	Refresh RefreshProducer[K, V]

	// Observability
	Metrics Metrics
	Logger  *slog.Logger

	// Clock allows overriding the time source (tests). Nil => time.Now().
	Clock Clock
}
