package analytics

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/kafka"
)

// maxLatencies bounds the latency window used for percentiles.
const maxLatencies = 10000

type AggregatedStats struct {
	TotalSearches        int64        `json:"total_searches"`
	TotalBrowses         int64        `json:"total_browses"`
	TotalRecommendations int64        `json:"total_recommendations"`
	InsufficientRecs     int64        `json:"insufficient_recommendations"`
	CacheHits            int64        `json:"cache_hits"`
	CacheMisses          int64        `json:"cache_misses"`
	ZeroResultCount      int64        `json:"zero_result_count"`
	AvgLatencyMs         float64      `json:"avg_latency_ms"`
	P50LatencyMs         int64        `json:"p50_latency_ms"`
	P95LatencyMs         int64        `json:"p95_latency_ms"`
	P99LatencyMs         int64        `json:"p99_latency_ms"`
	TopQueries           []QueryCount `json:"top_queries"`
	ZeroResultQueries    []QueryCount `json:"zero_result_queries"`
	TopCategories        []QueryCount `json:"top_categories"`
	QueriesPerMinute     float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals of the events it is fed.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     atomic.Int64
	totalBrowses      atomic.Int64
	totalRecs         atomic.Int64
	insufficientRecs  atomic.Int64
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	zeroResults       atomic.Int64
	latencies         []int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	categoryCounts    map[string]int64
	startTime         time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		categoryCounts:    make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Restore seeds the counters from a saved snapshot.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.totalSearches.Store(s.TotalSearches)
	a.totalBrowses.Store(s.TotalBrowses)
	a.totalRecs.Store(s.TotalRecommendations)
	a.insufficientRecs.Store(s.InsufficientRecs)
	a.cacheHits.Store(s.CacheHits)
	a.cacheMisses.Store(s.CacheMisses)
	a.zeroResults.Store(s.ZeroResultCount)
	a.mu.Lock()
	for _, q := range s.TopQueries {
		a.queryCounts[q.Query] = q.Count
	}
	for _, q := range s.ZeroResultQueries {
		a.zeroResultQueries[q.Query] = q.Count
	}
	for _, q := range s.TopCategories {
		a.categoryCounts[q.Query] = q.Count
	}
	a.mu.Unlock()
}

// HandleEvent returns a MessageHandler feeding agg. Undecodable events are
// skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return err
		}
		agg.Record(event)
		return nil
	}
}

// Record folds one event into the totals.
func (a *Aggregator) Record(event SearchEvent) {
	if event.Type == EventRecommend {
		a.totalRecs.Add(1)
		if event.Outcome == "insufficient" {
			a.insufficientRecs.Add(1)
		}
		return
	}

	if event.Type == EventBrowse {
		a.totalBrowses.Add(1)
	} else {
		a.totalSearches.Add(1)
	}
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	zero := event.Total == 0
	if zero {
		a.zeroResults.Add(1)
	}

	query := strings.ToLower(strings.TrimSpace(event.Query))
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.latencies) >= maxLatencies {
		a.latencies = append(a.latencies[:0], a.latencies[len(a.latencies)/2:]...)
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	if query != "" {
		a.queryCounts[query]++
		if zero {
			a.zeroResultQueries[query]++
		}
	}
	if event.Category != "" {
		a.categoryCounts[event.Category]++
	}
}

// DefaultTop is the length of the ranked lists returned by Stats.
const DefaultTop = 10

// Stats returns the current totals with DefaultTop entries per ranked list.
func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(DefaultTop)
}

// StatsTop is Stats with at most n entries per ranked list.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:        a.totalSearches.Load(),
		TotalBrowses:         a.totalBrowses.Load(),
		TotalRecommendations: a.totalRecs.Load(),
		InsufficientRecs:     a.insufficientRecs.Load(),
		CacheHits:            a.cacheHits.Load(),
		CacheMisses:          a.cacheMisses.Load(),
		ZeroResultCount:      a.zeroResults.Load(),
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, n)
	stats.TopCategories = topN(a.categoryCounts, n)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches+stats.TotalBrowses) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Query, b.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
