package cache

import "time"

// ChangeType tags one Change record.
type ChangeType int

const (
	// ItemAdded — a key transitioned from absent to present.
	ItemAdded ChangeType = iota
	// ItemValueReplaced — a present key received a new value; the record
	// carries both the old and the new value.
	ItemValueReplaced
	// ItemRemoved — a key transitioned from present to absent, whether by
	// an explicit removal, a capacity eviction, or an expiration sweep.
	ItemRemoved
	// ItemRefreshFailed — a sweep-driven refresh producer returned an
	// error; the entry is left untouched and retried on the next sweep.
	ItemRefreshFailed
	// Reset — the whole store was cleared in one logical step. Consumers
	// must re-read everything; no per-item removals are emitted.
	Reset
)

// String returns a stable label for the change type.
func (t ChangeType) String() string {
	switch t {
	case ItemAdded:
		return "added"
	case ItemValueReplaced:
		return "replaced"
	case ItemRemoved:
		return "removed"
	case ItemRefreshFailed:
		return "refresh_failed"
	case Reset:
		return "reset"
	default:
		return "unknown"
	}
}

// Change is an immutable description of one mutation applied to the cache.
// Exactly one record is emitted per successful mutation, in mutation order;
// a batch operation emits one record per affected key in input order, except
// Clear, which emits a single Reset.
type Change[K comparable, V any] struct {
	Type ChangeType

	// Key is unset for Reset records.
	Key K

	// Value is the entry's value after the mutation (the removed value for
	// ItemRemoved). Unset for Reset and ItemRefreshFailed.
	Value V

	// OldValue carries the replaced value; HasOldValue reports whether it
	// is meaningful (ItemValueReplaced only).
	OldValue    V
	HasOldValue bool

	// ExpiresAt is the entry's absolute expiry after the mutation;
	// zero means the entry never expires.
	ExpiresAt  time.Time
	Expiration ExpirationType

	// Err is set on ItemRefreshFailed records only.
	Err error
}

func addedChange[K comparable, V any](el *Element[K, V]) Change[K, V] {
	return Change[K, V]{
		Type:       ItemAdded,
		Key:        el.key,
		Value:      el.value,
		ExpiresAt:  el.ExpiresAt(),
		Expiration: el.expiration,
	}
}

func replacedChange[K comparable, V any](el *Element[K, V], old V) Change[K, V] {
	return Change[K, V]{
		Type:        ItemValueReplaced,
		Key:         el.key,
		Value:       el.value,
		OldValue:    old,
		HasOldValue: true,
		ExpiresAt:   el.ExpiresAt(),
		Expiration:  el.expiration,
	}
}

func removedChange[K comparable, V any](el *Element[K, V]) Change[K, V] {
	return Change[K, V]{
		Type:       ItemRemoved,
		Key:        el.key,
		Value:      el.value,
		ExpiresAt:  el.ExpiresAt(),
		Expiration: el.expiration,
	}
}

func refreshFailedChange[K comparable, V any](key K, err error) Change[K, V] {
	return Change[K, V]{Type: ItemRefreshFailed, Key: key, Err: err}
}

func resetChange[K comparable, V any]() Change[K, V] {
	return Change[K, V]{Type: Reset}
}
