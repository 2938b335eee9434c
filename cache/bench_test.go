package cache

import (
	"context"
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"
)

// benchmarkMix exercises a read/write mix against a warm cache.
// It uses parallel workers (RunParallel spawns GOMAXPROCS goroutines).
// String keys include strconv/concat costs and often allocate, which is fine
// for an end-to-end benchmark.
func benchmarkMix(b *testing.B, readsPct int) {
	ctx := context.Background()
	c := New[string, string](Options[string, string]{
		Capacity: 100_000,
	})
	b.Cleanup(func() { _ = c.Close() })

	// Preload half the capacity to get a realistic hit-rate.
	for i := 0; i < 50_000; i++ {
		k := "k:" + strconv.Itoa(i)
		_ = c.AddOrUpdate(ctx, k, "v")
	}

	// Report per-op allocations for a rough idea where costs go.
	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 16) - 1 // hot keyspace (power of two for fast &-mask)

	b.RunParallel(func(pb *testing.PB) {
		// Independent RNG stream for each worker.
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			k := "k:" + strconv.Itoa(i&keyMask)
			if r.Intn(100) < readsPct {
				_, _ = c.Get(ctx, k)
			} else {
				_ = c.AddOrUpdate(ctx, k, "v")
			}
			i++
		}
	})
}

func BenchmarkCache_90r10w(b *testing.B) { benchmarkMix(b, 90) }
func BenchmarkCache_50r50w(b *testing.B) { benchmarkMix(b, 50) }

// BenchmarkCache_Subscribed measures the same mix with one attached
// change-stream consumer, to expose the publish cost.
func BenchmarkCache_Subscribed(b *testing.B) {
	ctx := context.Background()
	c := New[string, string](Options[string, string]{Capacity: 100_000})
	b.Cleanup(func() { _ = c.Close() })

	ch, err := c.Subscribe(ctx)
	if err != nil {
		b.Fatal(err)
	}
	go func() {
		for range ch {
		}
	}()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			k := "k:" + strconv.Itoa(i&((1<<14)-1))
			_ = c.AddOrUpdate(ctx, k, "v")
			i++
		}
	})
}
