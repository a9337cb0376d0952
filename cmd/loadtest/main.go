// Command loadtest drives a mix of catalog browse, search, random and
// recommendation requests against the gateway or a searcher and reports
// latency percentiles per scenario.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8082] [-concurrency 10] [-duration 30s] [-token <jwt>]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// scenario builds one request kind. weight sets how often it is picked
// relative to the others.
type scenario struct {
	name   string
	weight int
	build  func(ctx context.Context, base string, i int) (*http.Request, error)
}

var (
	categories = []string{"footwear", "electronics", "home", "kitchen", "books"}
	queries    = []string{"running shoes", "sneakr", "wireless headphones", "desk lamp", "coffee mug", "laptop stand", "trail runner", "kids shoes"}
	tagSets    = [][]string{{"shoe", "running"}, {"lamp", "desk"}, {"audio", "wireless"}, {"mug", "ceramic"}}
	sorts      = []string{"", "high-to-low", "low-to-high", "ratings", "relevance"}
)

func scenarios() []scenario {
	get := func(ctx context.Context, base string, q url.Values) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/products?"+q.Encode(), nil)
	}
	return []scenario{
		{name: "browse", weight: 4, build: func(ctx context.Context, base string, i int) (*http.Request, error) {
			q := url.Values{}
			q.Set("category", categories[i%len(categories)])
			q.Set("page", fmt.Sprint(1+i%3))
			if s := sorts[i%len(sorts)]; s != "" && s != "relevance" {
				q.Set("sortBy", s)
			}
			return get(ctx, base, q)
		}},
		{name: "search", weight: 4, build: func(ctx context.Context, base string, i int) (*http.Request, error) {
			q := url.Values{}
			q.Set("search", queries[i%len(queries)])
			if s := sorts[i%len(sorts)]; s != "" {
				q.Set("sortBy", s)
			}
			return get(ctx, base, q)
		}},
		{name: "random", weight: 1, build: func(ctx context.Context, base string, i int) (*http.Request, error) {
			q := url.Values{}
			q.Set("search", queries[i%len(queries)])
			q.Set("random", "true")
			return get(ctx, base, q)
		}},
		{name: "recommend", weight: 1, build: func(ctx context.Context, base string, i int) (*http.Request, error) {
			body, _ := json.Marshal(map[string][]string{"tags": tagSets[i%len(tagSets)]})
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/products/recommend", bytes.NewReader(body))
			if err == nil {
				req.Header.Set("Content-Type", "application/json")
			}
			return req, err
		}},
	}
}

// Stats accumulates results for one scenario.
type Stats struct {
	total       atomic.Int64
	success     atomic.Int64
	errors      atomic.Int64
	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 10000),
		statusCodes: make(map[int]int64),
	}
}

func (s *Stats) Record(d time.Duration, statusCode int, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[statusCode]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8082", "base URL of the gateway or searcher")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	bearer := flag.String("token", "", "optional access token sent as a bearer credential")
	flag.Parse()

	mix := scenarios()
	fmt.Println("=== Catalog Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Println()

	stats := run(*baseURL, *bearer, *concurrency, *duration, mix)

	var total int64
	for _, sc := range mix {
		total += stats[sc.name].total.Load()
		printReport(sc.name, stats[sc.name], *duration)
	}
	if total == 0 {
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

// pick expands the scenario weights into a rotation.
func pick(mix []scenario) []int {
	var rotation []int
	for i, sc := range mix {
		for range sc.weight {
			rotation = append(rotation, i)
		}
	}
	return rotation
}

func run(base, bearer string, concurrency int, d time.Duration, mix []scenario) map[string]*Stats {
	stats := make(map[string]*Stats, len(mix))
	for _, sc := range mix {
		stats[sc.name] = NewStats()
	}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	rotation := pick(mix)

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	fmt.Print("Running")
	g, ctx := errgroup.WithContext(ctx)
	for w := range concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				sc := mix[rotation[i%len(rotation)]]
				req, err := sc.build(ctx, base, i)
				if err != nil {
					return fmt.Errorf("building %s request: %w", sc.name, err)
				}
				if bearer != "" {
					req.Header.Set("Authorization", "Bearer "+bearer)
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats[sc.name].Record(elapsed, 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats[sc.name].Record(elapsed, resp.StatusCode, nil)
			}
			return nil
		})
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "\nload test aborted: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func printReport(name string, s *Stats, d time.Duration) {
	total := s.total.Load()
	fmt.Printf("=== %s ===\n", name)
	fmt.Printf("Requests:     %d (%.2f/s)\n", total, float64(total)/d.Seconds())
	fmt.Printf("Successful:   %d\n", s.success.Load())
	fmt.Printf("Errors:       %d\n", s.errors.Load())

	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  HTTP %d:     %d\n", code, s.statusCodes[code])
	}
	s.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Printf("Latency:      min %s  avg %s  p50 %s  p95 %s  p99 %s  max %s\n",
			latencies[0],
			sum/time.Duration(len(latencies)),
			percentile(latencies, 50),
			percentile(latencies, 95),
			percentile(latencies, 99),
			latencies[len(latencies)-1],
		)
	}
	fmt.Println()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
