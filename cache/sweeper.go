package cache

import (
	"context"
	"time"
)

// sweepLoop drives the background expiration sweep until Close.
// Each pass contends for the exclusive lane like any other writer, so
// automatic evictions never interleave with a user mutation and the change
// stream stays totally ordered.
func (c *observableCache[K, V]) sweepLoop() {
	defer close(c.sweepDone)
	ticker := time.NewTicker(c.opt.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.sweep(context.Background())
		}
	}
}

// sweep retires or refreshes every entry whose deadline has elapsed.
// Expired entries are acted on within one sweep interval plus lock wait.
func (c *observableCache[K, V]) sweep(ctx context.Context) {
	t, err := c.lock.AcquireWriter(ctx)
	if err != nil {
		return
	}
	defer t.Close()
	if c.state.Load() != stateActive {
		return
	}

	now := c.now()
	expired := c.store.expired(now)
	if len(expired) == 0 {
		return
	}

	removed := 0
	for _, el := range expired {
		switch el.expiration {
		case ExpireRemove:
			c.store.removeElement(el)
			c.evicts.Add(1)
			c.opt.Metrics.Evict(EvictExpired)
			c.publishChangeLocked(removedChange(el))
			removed++
		case ExpireRefresh:
			c.refreshLocked(ctx, el, now)
		}
	}

	c.opt.Metrics.Size(c.store.len())
	if removed > 0 {
		c.publishCountLocked()
		c.log.Debug("expiration sweep evicted entries", "removed", removed)
	}
}

// refreshLocked regenerates an ExpireRefresh entry's value and re-arms its
// deadline. A producer error leaves the entry untouched for the next sweep
// and is reported on the change stream, never thrown away on a background
// goroutine.
func (c *observableCache[K, V]) refreshLocked(ctx context.Context, el *Element[K, V], now int64) {
	if c.opt.Refresh == nil {
		// Nothing can regenerate the value; disarm the deadline so the
		// entry is not re-examined every sweep. The value is unchanged, so
		// no change record is emitted.
		c.store.replace(el, newElement(el.key, el.value, 0, 0, ExpireDoNothing))
		c.log.Warn("entry uses refresh expiration but no refresh producer is configured; expiry disabled",
			"key", el.key)
		return
	}

	v, err := c.opt.Refresh(ctx, el.key, el.value)
	if err != nil {
		c.publishChangeLocked(refreshFailedChange[K, V](el.key, err))
		c.log.Error("refresh producer failed", "key", el.key, "err", err)
		return
	}

	var deadline int64
	if el.ttl > 0 {
		deadline = now + int64(el.ttl)
	}
	nel := newElement(el.key, v, deadline, el.ttl, ExpireRefresh)
	c.store.replace(el, nel)
	c.publishChangeLocked(replacedChange(nel, el.value))
}
