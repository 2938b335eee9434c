package cache

import "time"

// Element pairs a stored value with its expiration metadata. Elements are
// immutable after construction: replacing a value creates a new Element, and
// the old one survives just long enough to populate the Replaced change
// record. The list links are owned by the store and are only touched under
// the exclusive lane.
type Element[K comparable, V any] struct {
	key   K
	value V

	// Absolute expiration deadline in UnixNano. Zero means "never".
	expiresAt int64

	// Original relative TTL, kept so a refresh can re-arm the deadline.
	ttl time.Duration

	expiration ExpirationType

	// Intrusive list links: head is the newest write, tail the oldest.
	prev, next *Element[K, V]
}

func newElement[K comparable, V any](key K, value V, expiresAt int64, ttl time.Duration, exp ExpirationType) *Element[K, V] {
	return &Element[K, V]{
		key:        key,
		value:      value,
		expiresAt:  expiresAt,
		ttl:        ttl,
		expiration: exp,
	}
}

// Key returns the element's key.
func (e *Element[K, V]) Key() K { return e.key }

// Value returns the stored value.
func (e *Element[K, V]) Value() V { return e.value }

// ExpiresAt returns the absolute expiry time; the zero time means the
// element never expires.
func (e *Element[K, V]) ExpiresAt() time.Time {
	if e.expiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(0, e.expiresAt)
}

// Expiration returns the policy applied when the expiry elapses.
func (e *Element[K, V]) Expiration() ExpirationType { return e.expiration }

// expiredAt reports whether the deadline has elapsed at the given UnixNano
// instant. Elements without a deadline never expire.
func (e *Element[K, V]) expiredAt(now int64) bool {
	return e.expiresAt != 0 && now > e.expiresAt
}
