//go:build go1.18

package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// Fuzz basic Add/Get/Remove semantics under arbitrary string inputs.
// Guards against panics and ensures core invariants hold.
// NOTE: We cap key/value lengths to avoid pathological memory usage
// during fuzzing (this does not weaken the invariants we check).
func FuzzCache_AddGetRemove(f *testing.F) {
	// Seed corpus: empty, ASCII, Unicode, long strings.
	f.Add("", "")
	f.Add("a", "1")
	f.Add("b", "2")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		// Cap lengths to keep memory bounded during fuzzing.
		const limit = 1 << 12 // 4096
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		ctx := context.Background()
		c := New[string, string](Options[string, string]{})
		t.Cleanup(func() { _ = c.Close() })

		// Add -> Get must return the same value.
		if err := c.Add(ctx, k, v); err != nil {
			t.Fatalf("Add: %v", err)
		}
		got, err := c.Get(ctx, k)
		if err != nil || got != v {
			t.Fatalf("after Add/Get: want %q, got %q err=%v", v, got, err)
		}

		// Duplicate Add must not overwrite and must fail.
		if err := c.Add(ctx, k, "other"); !errors.Is(err, ErrKeyAlreadyExists) {
			t.Fatalf("duplicate Add: want ErrKeyAlreadyExists, got %v", err)
		}
		// Value must remain the same after the failed Add.
		if got2, err := c.Get(ctx, k); err != nil || got2 != v {
			t.Fatalf("after duplicate Add: want %q, got %q err=%v", v, got2, err)
		}

		// Remove must delete exactly once.
		if err := c.Remove(ctx, k); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		if _, err := c.Get(ctx, k); !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("key must be absent after Remove, got %v", err)
		}
		if err := c.Remove(ctx, k); !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("second Remove: want ErrKeyNotFound, got %v", err)
		}

		// After removal, Add should succeed again.
		if err := c.Add(ctx, k, v); err != nil {
			t.Fatalf("Add after Remove: %v", err)
		}
	})
}
