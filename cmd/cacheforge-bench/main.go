// Command cacheforge-bench drives concurrent load against a CacheForge
// server and reports throughput and tail latency, mirroring the
// original project's cache_bench tool.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cacheforge/cacheforge/pkg/client"
	"github.com/spf13/cobra"
)

type benchConfig struct {
	host      string
	port      int
	threads   int
	requests  int
	keyspace  int
	readRatio float64
	valueSize int
}

type threadResult struct {
	latencies []time.Duration
	errors    int
}

func main() {
	cfg := benchConfig{}

	cmd := &cobra.Command{
		Use:          "cacheforge-bench",
		Short:        "Benchmark a CacheForge server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&cfg.host, "host", "127.0.0.1", "server host")
	fs.IntVar(&cfg.port, "port", 6380, "server port")
	fs.IntVar(&cfg.threads, "threads", 4, "number of client threads")
	fs.IntVar(&cfg.requests, "requests", 100000, "total requests across all threads")
	fs.IntVar(&cfg.keyspace, "keyspace", 10000, "number of unique keys")
	fs.Float64Var(&cfg.readRatio, "read-ratio", 0.8, "fraction of GETs, 0.0-1.0")
	fs.IntVar(&cfg.valueSize, "value-size", 64, "size of SET values in bytes")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runBench(cfg benchConfig) error {
	fmt.Println("=== CacheForge Benchmark ===")
	fmt.Printf("  Host:        %s:%d\n", cfg.host, cfg.port)
	fmt.Printf("  Threads:     %d\n", cfg.threads)
	fmt.Printf("  Requests:    %d\n", cfg.requests)
	fmt.Printf("  Keyspace:    %d\n", cfg.keyspace)
	fmt.Printf("  Read ratio:  %d%% GET / %d%% SET\n", int(cfg.readRatio*100), int((1-cfg.readRatio)*100))
	fmt.Printf("  Value size:  %d bytes\n\n", cfg.valueSize)
	fmt.Println("Running...")

	if cfg.threads < 1 {
		cfg.threads = 1
	}
	base := cfg.requests / cfg.threads
	remainder := cfg.requests % cfg.threads

	results := make([]threadResult, cfg.threads)
	var wg sync.WaitGroup
	start := time.Now()

	for t := 0; t < cfg.threads; t++ {
		n := base
		if t < remainder {
			n++
		}
		wg.Add(1)
		go func(threadID, numRequests int) {
			defer wg.Done()
			results[threadID] = runWorker(cfg, threadID, numRequests)
		}(t, n)
	}
	wg.Wait()
	elapsed := time.Since(start)

	report(results, elapsed)
	return nil
}

func runWorker(cfg benchConfig, threadID, numRequests int) threadResult {
	addr := fmt.Sprintf("%s:%d", cfg.host, cfg.port)
	c, err := client.Dial(addr)
	if err != nil {
		return threadResult{errors: numRequests}
	}
	defer c.Close()

	rng := rand.New(rand.NewSource(int64(threadID)*1000 + time.Now().UnixNano()))
	value := randomValue(cfg.valueSize, rng)

	result := threadResult{latencies: make([]time.Duration, 0, numRequests)}

	for i := 0; i < numRequests; i++ {
		keyID := rng.Intn(cfg.keyspace)
		key := fmt.Sprintf("key:%d", keyID)

		start := time.Now()
		var err error
		if rng.Float64() < cfg.readRatio {
			_, _, err = c.Get(key)
		} else {
			err = c.Set(key, value)
		}
		elapsed := time.Since(start)

		if err != nil {
			result.errors++
			continue
		}
		result.latencies = append(result.latencies, elapsed)
	}

	return result
}

const valueAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomValue(length int, rng *rand.Rand) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(valueAlphabet[rng.Intn(len(valueAlphabet))])
	}
	return b.String()
}

func report(results []threadResult, elapsed time.Duration) {
	var all []time.Duration
	var totalErrors int
	for _, r := range results {
		all = append(all, r.latencies...)
		totalErrors += r.errors
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	var p50, p95, p99 time.Duration
	if n := len(all); n > 0 {
		p50 = all[n*50/100]
		p95 = all[n*95/100]
		p99 = all[n*99/100]
	}

	opsPerSec := float64(0)
	if elapsed.Seconds() > 0 {
		opsPerSec = float64(len(all)) / elapsed.Seconds()
	}

	fmt.Println("\n=== Results ===")
	fmt.Printf("  Total ops:    %d\n", len(all))
	fmt.Printf("  Elapsed:      %.2f s\n", elapsed.Seconds())
	fmt.Printf("  Throughput:   %.0f ops/sec\n", opsPerSec)
	fmt.Printf("  Latency p50:  %d us\n", p50.Microseconds())
	fmt.Printf("  Latency p95:  %d us\n", p95.Microseconds())
	fmt.Printf("  Latency p99:  %d us\n", p99.Microseconds())
	fmt.Printf("  Errors:       %d\n", totalErrors)
}
