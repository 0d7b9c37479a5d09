package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zeroing/jwtauth"
	redisstore "github.com/zeroing/jwtauth/store/redis"
)

const loadtestSecret = "jwtauth-loadtest-secret-not-for-production"

func main() {
	var (
		users       = flag.Int("users", 1000, "number of identities to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (issue, authenticate, refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "jwtauth-loadtest", "identity key prefix")
		latency     = flag.Bool("latency", true, "record engine latency histograms")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	client, cleanup, err := connect(addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := jwtauth.DefaultConfig()
	cfg.JWT.Secret = loadtestSecret
	// Seeding hashes every password; keep Argon2id cheap.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = *latency

	engine, err := jwtauth.New().
		WithConfig(cfg).
		WithStore(redisstore.NewStore(client, *prefix)).
		WithLogger(zap.NewNop()).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	names := make([]string, *users)
	fmt.Printf("seeding %d identities...\n", *users)
	startSeed := time.Now()
	for i := range names {
		names[i] = "user-" + uuid.NewString()
		if _, err := engine.CreateIdentity(ctx, names[i], "loadtest-password", []string{"ROLE_USER"}); err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	tokens := make([]string, len(names))
	for i, name := range names {
		tokens[i], err = engine.IssueToken(ctx, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "initial issue failed: %v\n", err)
			os.Exit(1)
		}
	}

	issueStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) error {
		_, err := engine.IssueToken(ctx, names[r.Intn(len(names))])
		return err
	})
	authStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) error {
		_, err := engine.Authenticate(ctx, tokens[r.Intn(len(tokens))])
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, 4099, func(r *rand.Rand) error {
		_, err := engine.Refresh(ctx, tokens[r.Intn(len(tokens))], 0)
		return err
	})

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: issued=%d validated=%d refreshed=%d store_errors=%d\n",
		snap.Counters[jwtauth.MetricTokenIssued],
		snap.Counters[jwtauth.MetricValidateSuccess],
		snap.Counters[jwtauth.MetricRefreshSuccess],
		snap.Counters[jwtauth.MetricStoreError],
	)
	if buckets, ok := snap.Histograms[jwtauth.MetricValidateLatency]; ok {
		fmt.Printf("engine authenticate latency buckets (<=5,10,25,50,100,250,500ms,+Inf): %v\n", buckets)
	}
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Printf("using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

// runPhase spreads ops calls of op over concurrency workers and records each latency.
func runPhase(ops, concurrency int, seed int64, op func(*rand.Rand) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			local := make([]time.Duration, 0, ops/concurrency+1)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					break
				}
				t0 := time.Now()
				err := op(r)
				local = append(local, time.Since(t0))
				if err != nil {
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
	if len(samples) == 0 {
		return 0
	}
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
