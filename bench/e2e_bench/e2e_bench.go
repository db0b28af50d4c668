package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"example.com/socialfeed/bench/benchutil"
)

// e2e_bench measures how long a published post takes to show up in the
// followers' activity streams (server -> Kafka -> worker -> store).
func main() {
	var serverAddr string
	var U, F, concurrency int
	var pollTimeout int
	var insecure bool

	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "server base URL including BASE_PATH")
	flag.IntVar(&U, "users", 50, "number of users to create")
	flag.IntVar(&F, "follows", 10, "average follows per user")
	flag.IntVar(&concurrency, "c", 20, "concurrency for posting")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for activity delivery")
	flag.BoolVar(&insecure, "insecure", true, "skip TLS verification (self-signed certs)")
	flag.Parse()

	ctx := context.Background()

	// --- 1) Create users ---
	fmt.Printf("Creating %d users...\n", U)
	run := time.Now().UnixNano()
	users := make([]*benchutil.User, 0, U)
	for i := 0; i < U; i++ {
		u, err := benchutil.NewUser(serverAddr, fmt.Sprintf("user-%d-%d", i, run), insecure)
		if err == nil {
			err = u.Signup(ctx)
		}
		if err != nil {
			fmt.Printf("create user error: %v\n", err)
			os.Exit(1)
		}
		users = append(users, u)
	}
	fmt.Println("Users created successfully.")

	// --- 2) Create follow relationships between users ---
	fmt.Printf("Creating follows (~%d per user)...\n", F)
	followers := make(map[*benchutil.User][]*benchutil.User)
	for _, u := range users {
		seen := make(map[*benchutil.User]bool)
		for j := 0; j < F; j++ {
			target := users[rand.Intn(len(users))]
			if target == u || seen[target] {
				continue
			}
			seen[target] = true
			if err := u.Follow(ctx, target.Name); err != nil {
				fmt.Printf("follow error: %v\n", err)
				os.Exit(1)
			}
			followers[target] = append(followers[target], u)
		}
	}
	fmt.Println("Follow relationships established.")

	// --- 3) Every user publishes one post ---
	fmt.Printf("Publishing %d posts with concurrency %d...\n", len(users), concurrency)
	published := make(map[*benchutil.User]time.Time, len(users))
	var pubMu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for _, author := range users {
		wg.Add(1)
		sem <- struct{}{}
		go func(author *benchutil.User) {
			defer wg.Done()
			defer func() { <-sem }()

			sent := time.Now()
			if err := author.Publish(ctx, fmt.Sprintf("post %d", rand.Int())); err != nil {
				fmt.Printf("post error: %v\n", err)
				return
			}
			pubMu.Lock()
			published[author] = sent
			pubMu.Unlock()
		}(author)
	}
	wg.Wait()

	// --- 4) Poll followers' activity until each post appears ---
	fmt.Println("Checking activity delivery...")
	var latencies []float64
	var latMu sync.Mutex
	var failCount int64
	var checksWg sync.WaitGroup

	for author, sent := range published {
		for _, f := range followers[author] {
			checksWg.Add(1)
			go func(author, follower *benchutil.User, sent time.Time) {
				defer checksWg.Done()
				deadline := time.Now().Add(time.Duration(pollTimeout) * time.Second)

				for time.Now().Before(deadline) {
					entries, err := follower.Activity(ctx, 200)
					if err == nil {
						for _, a := range entries {
							if a.Kind == "post" && a.Actor == author.Name {
								latMu.Lock()
								latencies = append(latencies, time.Since(sent).Seconds()*1000)
								latMu.Unlock()
								return
							}
						}
					}
					time.Sleep(200 * time.Millisecond)
				}
				atomic.AddInt64(&failCount, 1)
			}(author, f, sent)
		}
	}
	checksWg.Wait()

	// --- 5) Compute latency statistics and export to CSV ---
	if len(latencies) == 0 {
		fmt.Println("No successful deliveries recorded.")
		return
	}

	trimPercent := 1.0
	fmt.Printf("Delivery stats (ms): count=%d mean=%.2f p50=%.2f p90=%.2f p99=%.2f fails=%d\n",
		len(latencies),
		benchutil.TrimmedMean(latencies, trimPercent),
		benchutil.TrimmedPercentile(latencies, 50, trimPercent),
		benchutil.TrimmedPercentile(latencies, 90, trimPercent),
		benchutil.TrimmedPercentile(latencies, 99, trimPercent),
		failCount)

	if err := benchutil.WriteCSV("e2e_latencies.csv", latencies); err != nil {
		fmt.Printf("write csv error: %v\n", err)
		return
	}
	fmt.Println("Saved e2e_latencies.csv")
}
