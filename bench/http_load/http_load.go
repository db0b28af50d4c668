package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"example.com/socialfeed/bench/benchutil"
)

func main() {
	// --- Command-line flags ---
	var server string
	var duration int
	var concurrency int
	var follows int
	var readRatio float64
	var csvFile string
	var trimPercent float64
	var insecure bool

	flag.StringVar(&server, "server", "http://localhost:8080", "server base URL including BASE_PATH")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent goroutines / users")
	flag.IntVar(&follows, "follows", 5, "follows per user before the run")
	flag.Float64Var(&readRatio, "reads", 0.7, "fraction of requests that read a feed instead of publishing")
	flag.StringVar(&csvFile, "csv", "latencies.csv", "CSV file to save latencies")
	flag.Float64Var(&trimPercent, "trim", 1.0, "percent of latency to trim from top and bottom for trimmed mean")
	flag.BoolVar(&insecure, "insecure", true, "skip TLS verification (self-signed certs)")
	flag.Parse()

	ctx := context.Background()

	// --- Create and log in users ---
	fmt.Printf("Creating %d users...\n", concurrency)
	run := time.Now().UnixNano()
	users := make([]*benchutil.User, concurrency)
	for i := range users {
		u, err := benchutil.NewUser(server, fmt.Sprintf("load-user-%d-%d", i, run), insecure)
		if err != nil {
			panic(err)
		}
		if err := u.Signup(ctx); err != nil {
			panic(fmt.Sprintf("failed to create user: %v", err))
		}
		users[i] = u
	}

	for _, u := range users {
		for j := 0; j < follows; j++ {
			target := users[rand.Intn(len(users))]
			if target == u {
				continue
			}
			// duplicates come back as "Already following", which is fine here
			_ = u.Follow(ctx, target.Name)
		}
	}
	fmt.Println("Users created.")

	// --- Prepare concurrency test ---
	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup

	// Atomic counters for thread-safe tracking
	var requests int64
	var successes int64
	var errors4xx int64
	var errors5xx int64

	latencySlices := make([][]float64, concurrency) // each goroutine records latencies

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			user := users[idx]
			rng := rand.New(rand.NewSource(int64(idx) + run))
			var localLatencies []float64

			for time.Now().Before(stopTime) {
				method, path, body := pickRequest(rng, readRatio)

				start := time.Now()
				status, err := user.Do(ctx, method, path, body)
				localLatencies = append(localLatencies, time.Since(start).Seconds()*1000)
				atomic.AddInt64(&requests, 1)

				if err != nil {
					fmt.Printf("Request error: %v\n", err)
					continue
				}

				// Count success/failure by status code
				switch {
				case status >= 200 && status < 300:
					atomic.AddInt64(&successes, 1)
				case status >= 400 && status < 500:
					atomic.AddInt64(&errors4xx, 1)
				case status >= 500:
					atomic.AddInt64(&errors5xx, 1)
				}
			}

			latencySlices[idx] = localLatencies
		}(i)
	}

	wg.Wait()

	// --- Merge all latencies ---
	var allLatencies []float64
	for _, slice := range latencySlices {
		allLatencies = append(allLatencies, slice...)
	}
	sort.Float64s(allLatencies)

	fmt.Printf("Requests: %d  Successes: %d  4xx: %d  5xx: %d\n", requests, successes, errors4xx, errors5xx)
	fmt.Printf("Latency (ms): trimmed_mean=%.2f p50=%.2f p90=%.2f p99=%.2f\n",
		benchutil.TrimmedMean(allLatencies, trimPercent),
		benchutil.Percentile(allLatencies, 50),
		benchutil.Percentile(allLatencies, 90),
		benchutil.Percentile(allLatencies, 99))

	if err := benchutil.WriteCSV(csvFile, allLatencies); err != nil {
		fmt.Printf("Failed to write CSV file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)
}

// pickRequest chooses between the personal feed, a global search and a
// new post.
func pickRequest(rng *rand.Rand, readRatio float64) (method, path string, body any) {
	if rng.Float64() >= readRatio {
		return http.MethodPost, "/contents", map[string]string{"text": fmt.Sprintf("load test post %d", time.Now().UnixNano())}
	}
	if rng.Intn(2) == 0 {
		return http.MethodGet, "/feed", nil
	}
	return http.MethodGet, "/contents?q=post+1", nil
}
