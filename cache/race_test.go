package cache

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// A mixed workload of concurrent adds, updates, reads, removals, and a
// change-stream consumer. Should pass under `-race` without detector
// reports.
func TestRace_Basic(t *testing.T) {
	ctx := context.Background()
	c := New[string, []byte](Options[string, []byte]{
		Capacity:      8_192,
		SweepInterval: 10 * time.Millisecond,
	})
	t.Cleanup(func() { _ = c.Close() })

	ch, err := c.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for range ch {
		}
	}()

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 10_000
	deadline := time.Now().Add(2 * time.Second)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		id := w
		g.Go(func() error {
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% — TryRemove
					if _, err := c.TryRemove(ctx, k); err != nil {
						return err
					}
				case 5, 6, 7, 8, 9: // ~5% — TryAdd
					if _, err := c.TryAdd(ctx, k, []byte("x")); err != nil {
						return err
					}
				case 10, 11, 12, 13, 14, 15, 16, 17, 18, 19: // ~10% — AddOrUpdate
					if err := c.AddOrUpdate(ctx, k, []byte("x")); err != nil {
						return err
					}
				default: // ~80% — Get
					if _, err := c.Get(ctx, k); err != nil && !isNotFound(err) {
						return err
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("worker failed: %v", err)
	}

	_ = c.Close()
	<-consumerDone
}

// Readers running against a quiescent cache all observe the same snapshot:
// a writer's batch is never seen partially applied.
func TestRace_ReadersSeeConsistentSnapshots(t *testing.T) {
	ctx := context.Background()
	c := New[int, int](Options[int, int]{})
	t.Cleanup(func() { _ = c.Close() })

	const batch = 100
	keys := make([]int, batch)
	items := make([]KeyValue[int, int], batch)
	for i := range items {
		keys[i] = i
		items[i] = KeyValue[int, int]{Key: i, Value: i}
	}

	var g errgroup.Group
	stop := make(chan struct{})

	// Readers: ContainsWhich must always return all-or-nothing, because
	// AddRange and RemoveRange hold the exclusive lane for the whole batch.
	for r := 0; r < 4; r++ {
		g.Go(func() error {
			for {
				select {
				case <-stop:
					return nil
				default:
				}
				present, err := c.ContainsWhich(ctx, keys)
				if err != nil {
					return err
				}
				if n := len(present); n != 0 && n != batch {
					t.Errorf("torn read: %d of %d keys visible", n, batch)
					return nil
				}
			}
		})
	}

	// One writer alternating full-batch add and remove.
	g.Go(func() error {
		defer close(stop)
		for i := 0; i < 50; i++ {
			if err := c.AddRange(ctx, items); err != nil {
				return err
			}
			if err := c.RemoveRange(ctx, keys); err != nil {
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		t.Fatalf("worker failed: %v", err)
	}
}

// One hundred goroutines call GetOrAdd on the same key concurrently.
// The producer should run at most once (singleflight coalescing).
func TestRace_GetOrAdd(t *testing.T) {
	ctx := context.Background()
	var calls int64

	c := New[string, string](Options[string, string]{})
	t.Cleanup(func() { _ = c.Close() })

	const goroutines = 100
	key := "same-key"
	produce := func(_ context.Context, k string) (string, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(2 * time.Millisecond) // simulate I/O
		return "v:" + k, nil
	}

	start := make(chan struct{})
	var g errgroup.Group
	for i := 0; i < goroutines; i++ {
		g.Go(func() error {
			<-start
			v, err := c.GetOrAdd(ctx, key, produce)
			if err != nil {
				return err
			}
			if v != "v:"+key {
				t.Errorf("unexpected value: %q", v)
			}
			return nil
		})
	}
	close(start)
	if err := g.Wait(); err != nil {
		t.Fatalf("GetOrAdd error: %v", err)
	}

	if got := atomic.LoadInt64(&calls); got > 1 {
		t.Fatalf("producer should run at most once, got %d", got)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
