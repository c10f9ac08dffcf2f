// Command authstate-loadtest measures session lookup and rate-limit
// throughput under concurrent load.
//
//	go run ./cmd/authstate-loadtest -sessions 50000 -concurrency 256
//	go run ./cmd/authstate-loadtest -limiter redis -redis-addr localhost:6379
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authstate/logging"
	"github.com/MrEthical07/authstate/ratelimit"
	"github.com/MrEthical07/authstate/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 100000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		clients     = flag.Int("clients", 1000, "distinct client IPs for the rate-limit phase")
		limiter     = flag.String("limiter", "memory", "rate limiter backend: memory or redis")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *clients <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, ops and clients must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	store, err := session.NewStore(session.Config{
		Timeout:              24 * time.Hour,
		RememberMeMultiplier: 1,
		MaxTimeout:           24 * time.Hour,
		MaxSessionsPerUser:   1,
		SweepInterval:        time.Hour,
	}, session.WithLogger(logging.Discard()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "session store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ids := make([]string, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := range ids {
		s, err := store.Create(session.CreateParams{UserID: "u-" + strconv.Itoa(i), Username: "load"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
			os.Exit(1)
		}
		ids[i] = s.ID
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	lim, cleanup, err := newLimiter(*limiter, *redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "limiter: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand) bool {
		_, ok := store.Get(ids[r.Intn(len(ids))])
		return ok
	})
	refreshStats := runPhase(*ops, *concurrency, func(r *rand.Rand) bool {
		_, ok := store.Refresh(ids[r.Intn(len(ids))])
		return ok
	})

	var admitted int64
	limitStats := runPhase(*ops, *concurrency, func(r *rand.Rand) bool {
		n := r.Intn(*clients)
		ok, _, err := lim.Allow(ctx, ratelimit.IPKey(fmt.Sprintf("10.%d.%d.%d", n>>16&0xff, n>>8&0xff, n&0xff)))
		if ok {
			atomic.AddInt64(&admitted, 1)
		}
		return err == nil
	})

	fmt.Println("---- results ----")
	printStats("session-get", validateStats)
	printStats("session-refresh", refreshStats)
	printStats("rate-limit/"+*limiter, limitStats)
	fmt.Printf("rate-limit admitted=%d rejected=%d\n", admitted, int64(limitStats.ops)-admitted)
}

func newLimiter(backend, addr string) (ratelimit.Limiter, func(), error) {
	policy := ratelimit.Policy{MaxRequests: 100, Window: time.Minute}

	switch backend {
	case "memory":
		sw, err := ratelimit.NewSlidingWindow(policy, ratelimit.WithLogger(logging.Discard()))
		if err != nil {
			return nil, nil, err
		}
		return sw, sw.Close, nil
	case "redis":
	default:
		return nil, nil, fmt.Errorf("unknown limiter backend %q", backend)
	}

	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		client  redis.UniversalClient
		cleanup func()
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}

	rl, err := ratelimit.NewRedisSlidingWindow(client, policy, ratelimit.WithKeyPrefix("rl:loadtest:"))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return rl, cleanup, nil
}

// runPhase calls op ops times across concurrency workers. op reports
// whether the call succeeded.
func runPhase(ops, concurrency int, op func(r *rand.Rand) bool) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			local := make([]time.Duration, 0, ops/concurrency+1)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					break
				}
				t0 := time.Now()
				ok := op(r)
				local = append(local, time.Since(t0))
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
