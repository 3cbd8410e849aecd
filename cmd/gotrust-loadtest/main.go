package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goTrust "github.com/MrEthical07/goTrust"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type principalState struct {
	principalID string
	sessionID   string
	address     string
}

func main() {
	var (
		principals  = flag.Int("principals", 10000, "number of principals (one session each) to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "evaluations per phase")
		driftPct    = flag.Int("drift", 5, "percent of drift-phase requests that arrive from a new address")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *principals <= 0 || *concurrency <= 0 || *ops <= 0 || *driftPct < 0 || *driftPct > 100 {
		fmt.Fprintln(os.Stderr, "principals, concurrency and ops must be > 0; drift must be within [0, 100]")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := buildEngine(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]principalState, *principals)
	fmt.Printf("seeding %d principals...\n", *principals)
	startSeed := time.Now()
	for i := range states {
		pid := fmt.Sprintf("p-%d", i)
		handle, err := engine.StartSession(ctx, pid, pid+"@example.com")
		if err != nil {
			fmt.Fprintf(os.Stderr, "start session failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = principalState{principalID: pid, sessionID: handle.SessionID, address: addressFor(i)}
		// First observation stores the expected context.
		if _, err := engine.Evaluate(ctx, requestFor(states[i], states[i].address)); err != nil {
			fmt.Fprintf(os.Stderr, "seed evaluate failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	stable := runPhase(ctx, engine, states, *ops, *concurrency, 0)
	drift := runPhase(ctx, engine, states, *ops, *concurrency, *driftPct)

	fmt.Println("---- results ----")
	printStats("evaluate-stable", stable)
	printStats("evaluate-drift", drift)
}

func buildEngine(client redis.UniversalClient) (*goTrust.Engine, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	cfg := goTrust.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Challenge.MaxResends = 0
	cfg.Challenge.MaxVerifyAttempts = 0

	return goTrust.New().
		WithConfig(cfg).
		WithRedis(client).
		WithNotifier(goTrust.NotifierFunc(func(context.Context, string, string, string) error { return nil })).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
}

func requestFor(s principalState, address string) goTrust.EvaluateRequest {
	return goTrust.EvaluateRequest{
		PrincipalID:     s.principalID,
		SessionID:       s.sessionID,
		Address:         address,
		ClientSignature: "gotrust-loadtest/1.0",
		Path:            "/account",
		Authenticated:   true,
	}
}

// runPhase evaluates random principals. driftPct percent of requests use a
// fresh address, which moves the principal's expected context.
func runPhase(ctx context.Context, engine *goTrust.Engine, states []principalState, ops, concurrency, driftPct int) phaseStats {
	var (
		wg         sync.WaitGroup
		cursor     int64
		failures   int64
		redirected int64
		latencies  = make([]time.Duration, 0, ops)
		mu         sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				s := states[r.Intn(len(states))]
				address := s.address
				if driftPct > 0 && r.Intn(100) < driftPct {
					address = addressFor(len(states) + i)
				}

				t0 := time.Now()
				decision, err := engine.Evaluate(ctx, requestFor(s, address))
				d := time.Since(t0)
				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
				case decision.Action == goTrust.ActionRedirect:
					atomic.AddInt64(&redirected, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	stats := computeStats(total, latencies, failures)
	stats.redirected = redirected
	return stats
}

type phaseStats struct {
	total      time.Duration
	ops        int
	failures   int64
	redirected int64
	p50        time.Duration
	p95        time.Duration
	p99        time.Duration
	opsPerS    float64
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d redirected=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.redirected,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func addressFor(i int) string {
	return fmt.Sprintf("10.%d.%d.%d", (i>>16)&0xFF, (i>>8)&0xFF, i&0xFF)
}
