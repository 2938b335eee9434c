// Package cache provides an observable, concurrent, in-memory keyed store
// with per-entry time-based expiration policies and a live change-record
// stream.
//
// # Design
//
//   - Concurrency: every operation is admitted through a two-lane
//     asynchronous reader/writer lock (package rwlock). Reads share the
//     concurrent lane; every mutation — user-initiated or sweep-driven —
//     holds the exclusive lane. The lock is the sole serialization
//     mechanism; the store itself carries no locks.
//
//   - Storage: a map[K]*Element for lookups plus an intrusive doubly linked
//     list ordered by write recency. All operations are O(1) expected.
//
//   - Change stream: every successful mutation publishes exactly one Change
//     record (added/replaced/removed/reset) while still holding the
//     exclusive lane, so subscribers observe records in mutation order.
//     The stream is live multicast only: no replay for late subscribers.
//     Clear publishes a single Reset, never per-item removals.
//
//   - Expiration: entries carry an absolute deadline (UnixNano) and a
//     policy: ExpireDoNothing, ExpireRemove, or ExpireRefresh. A background
//     sweep runs every Options.SweepInterval, contends for the exclusive
//     lane like any writer, and retires or refreshes elapsed entries.
//     Reads additionally treat elapsed ExpireRemove entries as absent, so
//     expiry is observable before the sweep lands.
//
//   - GetOrAdd: coalesces concurrent producers for the same key using
//     singleflight; the producer runs at most once per miss.
//
//   - Capacity: an optional entry count limit evicts the oldest-written
//     entry through the regular removal path (ItemRemoved is emitted).
//     Eviction order is deterministic and read operations never reorder
//     entries, which keeps reads free of hidden mutation.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Published/Dropped/
//     Size signals. NoopMetrics is the default; a Prometheus adapter lives
//     in metrics/prom.
//
// # Basic usage
//
//	c := cache.New[int, string](cache.Options[int, string]{})
//	defer c.Close()
//
//	ctx := context.Background()
//	_ = c.Add(ctx, 1, "One")
//	v, err := c.Get(ctx, 1)
//
// # Watching changes
//
//	ch, _ := c.Subscribe(ctx)
//	go func() {
//	    for rec := range ch {
//	        fmt.Println(rec.Type, rec.Key)
//	    }
//	}()
//
// # Expiring entries
//
//	// Removed automatically about one sweep interval after 200ms.
//	_ = c.AddWithExpiry(ctx, 2, "Two", 200*time.Millisecond, cache.ExpireRemove)
//
//	// Refreshed in place instead of removed.
//	c2 := cache.New[string, string](cache.Options[string, string]{
//	    Refresh: func(ctx context.Context, k, old string) (string, error) {
//	        return fetch(ctx, k)
//	    },
//	})
//
// All methods are safe for concurrent use. Operations suspend while waiting
// for lane admission and honor context cancellation before admission and
// between batch iterations; side effects already applied are not rolled
// back.
package cache
