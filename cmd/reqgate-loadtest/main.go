package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	reqgate "github.com/reqgate/reqgate"
)

func main() {
	var (
		clients     = flag.Int("clients", 10000, "number of distinct client identities")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (read + write)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		useMemory   = flag.Bool("memory", false, "use the in-process store instead of redis")
	)
	flag.Parse()

	if *clients <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "clients, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	builder := reqgate.New().WithConfig(loadTestConfig())

	cleanup := func() {}
	if *useMemory {
		fmt.Println("using in-process store")
	} else {
		addr := *redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}

		var client redis.UniversalClient
		if addr == "" {
			mr, err := miniredis.Run()
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
				os.Exit(1)
			}
			addr = mr.Addr()
			client = redis.NewUniversalClient(&redis.UniversalOptions{
				Addrs: []string{addr},
			})
			cleanup = func() {
				_ = client.Close()
				mr.Close()
			}
			fmt.Printf("using miniredis at %s\n", addr)
		} else {
			client = redis.NewUniversalClient(&redis.UniversalOptions{
				Addrs: []string{addr},
			})
			cleanup = func() { _ = client.Close() }
			fmt.Printf("using redis at %s\n", addr)
		}
		builder = builder.WithRedis(client)
	}
	defer cleanup()

	gate, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gate build failed: %v\n", err)
		os.Exit(1)
	}
	defer gate.Close()

	readStats := runPhase(gate, *clients, *ops, *concurrency, false)
	writeStats := runPhase(gate, *clients, *ops, *concurrency, true)

	fmt.Println("---- results ----")
	printStats("read", readStats)
	printStats("write", writeStats)

	snap := gate.MetricsSnapshot()
	fmt.Printf("counters: allowed=%d limited=%d csrf_rejected=%d store_errors=%d\n",
		snap.Counters[reqgate.MetricRequestAllowed],
		snap.Counters[reqgate.MetricRateLimited],
		snap.Counters[reqgate.MetricCSRFRejected],
		snap.Counters[reqgate.MetricStoreError],
	)
}

// loadTestConfig widens the measured tiers so throughput, not quota
// exhaustion, dominates the numbers.
func loadTestConfig() reqgate.Config {
	cfg := reqgate.DefaultConfig()
	cfg.Limits.Read = reqgate.PolicyConfig{MaxRequests: 1 << 20, Window: time.Minute}
	cfg.Limits.Write = reqgate.PolicyConfig{MaxRequests: 1 << 20, Window: time.Minute}
	return cfg
}

func runPhase(gate *reqgate.Gate, clients, ops, concurrency int, write bool) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		rejected  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				req := buildRequest(r.Intn(clients), write)
				t0 := time.Now()
				d := gate.Check(req)
				elapsed := time.Since(t0)
				if !d.Allowed {
					atomic.AddInt64(&rejected, 1)
				}
				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, rejected)
}

func buildRequest(client int, write bool) *http.Request {
	method := http.MethodGet
	if write {
		method = http.MethodPost
	}
	req := httptest.NewRequest(method, "/api/items", nil)
	req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.%d.%d", client/256%256, client%256))
	req.Header.Set("User-Agent", "loadtest")
	if write {
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "load-token"})
		req.Header.Set("X-CSRF-Token", "load-token")
	}
	return req
}

type phaseStats struct {
	total    time.Duration
	ops      int
	rejected int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, rejected int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		rejected: rejected,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d rejected=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.rejected,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
