// Command bench runs a synthetic workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/obscache/cache"
	pmet "github.com/IvanBrykalov/obscache/metrics/prom"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// ---- Flags ----
	var (
		capacity = flag.Int("cap", 100_000, "entry count limit (0 = unbounded)")
		ttl      = flag.Duration("ttl", 0, "default TTL with remove-on-expiry (0 = no expiry)")
		sweep    = flag.Duration("sweep", time.Second, "expiration sweep interval")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 0, "preload entries (0 = cap/2)")

		subscribe   = flag.Bool("subscribe", true, "attach a change-stream consumer")
		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "obscache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	exp := cache.ExpireDoNothing
	if *ttl > 0 {
		exp = cache.ExpireRemove
	}
	c := cache.New[string, string](cache.Options[string, string]{
		Capacity:          *capacity,
		DefaultTTL:        *ttl,
		DefaultExpiration: exp,
		SweepInterval:     *sweep,
		Metrics:           metrics,
	})
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	// ---- Optional change-stream consumer ----
	var consumed atomic.Int64
	if *subscribe {
		ch, err := c.Subscribe(ctx)
		if err != nil {
			log.Fatalf("subscribe: %v", err)
		}
		go func() {
			for range ch {
				consumed.Add(1)
			}
		}()
	}

	// ---- Preload ----
	n := *preload
	if n == 0 && *capacity > 0 {
		n = *capacity / 2
	}
	for i := 0; i < n; i++ {
		_ = c.AddOrUpdate(ctx, "k:"+strconv.Itoa(i), "v")
	}

	// ---- Workload ----
	var reads, writes, removes atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()
	wg.Add(*workers)
	for w := 0; w < *workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(*seed + int64(id)*9973))
			for ctx.Err() == nil {
				k := "k:" + strconv.Itoa(r.Intn(*keys))
				switch {
				case r.Intn(100) < *readPct:
					_, _ = c.Get(ctx, k)
					reads.Add(1)
				case r.Intn(20) == 0:
					_, _ = c.TryRemove(ctx, k)
					removes.Add(1)
				default:
					_ = c.AddOrUpdate(ctx, k, "v")
					writes.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	total := reads.Load() + writes.Load() + removes.Load()
	st := c.Stats()
	fmt.Printf("ops=%d (%.0f ops/s) reads=%d writes=%d removes=%d\n",
		total, float64(total)/elapsed.Seconds(), reads.Load(), writes.Load(), removes.Load())
	fmt.Printf("hits=%d misses=%d evictions=%d consumed=%d dropped=%d\n",
		st.Hits, st.Misses, st.Evictions, consumed.Load(), st.DroppedRecords)
}
