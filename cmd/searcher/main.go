// Command searcher serves the catalog: browse and fuzzy search listings,
// tag recommendations and the history-driven recommendation endpoints.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml] [-store postgres|memory] [-seed products.json]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/history"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/cache"
	searchhandler "github.com/Adithya-Monish-Kumar-K/buyit/internal/search/handler"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/recommend"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/relevance"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/sample"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/store/memory"
	pgstore "github.com/Adithya-Monish-Kumar-K/buyit/internal/store/postgres"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/store/resilient"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/buyit/pkg/redis"
)

// backend is the storage the searcher reads from.
type backend struct {
	catalog resilient.Catalog
	history history.Repository
	orders  history.OrderHistory
	ping    func(ctx context.Context) error
	close   func() error
}

func openBackend(ctx context.Context, cfg *config.Config, kind, seedPath string) (*backend, error) {
	var seed []catalog.Product
	if seedPath != "" {
		var err error
		if seed, err = catalog.LoadProducts(seedPath); err != nil {
			return nil, err
		}
	}

	switch kind {
	case "memory":
		s := memory.New(seed...)
		return &backend{
			catalog: s,
			history: s.History(),
			orders:  s.Orders(),
			ping:    s.Ping,
			close:   func() error { return nil },
		}, nil
	case "postgres":
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		s := pgstore.New(db)
		if len(seed) > 0 {
			if err := s.Seed(ctx, seed); err != nil {
				db.Close()
				return nil, err
			}
		}
		return &backend{
			catalog: s,
			history: s.History(),
			orders:  s.Orders(),
			ping:    db.Ping,
			close:   db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	storeKind := flag.String("store", "postgres", "catalog store: postgres or memory")
	seedPath := flag.String("seed", "", "optional JSON file of products to load at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "store", *storeKind)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	be, err := openBackend(ctx, cfg, *storeKind, *seedPath)
	if err != nil {
		slog.Error("failed to open catalog store", "error", err)
		os.Exit(1)
	}
	defer be.close()

	cat := resilient.New(be.catalog, cfg.Search, m)
	sampler := sample.New()
	builder := relevance.NewBuilder(cat, sampler, relevance.Config{
		Threshold:  cfg.Search.MatchThreshold,
		SampleSize: cfg.Search.SampleSize,
		Workers:    cfg.Search.ScanWorkers,
	}, m)
	rec := recommend.New(cat, sampler, recommend.Config{
		Threshold:     cfg.Search.TagThreshold,
		MaxIndex:      cfg.Search.TagMaxIndex,
		MinCandidates: cfg.Search.MinRecommendations,
		SampleSize:    cfg.Search.SampleSize,
		Workers:       cfg.Search.ScanWorkers,
	}, m)
	svc := search.NewService(builder, cat, rec, cfg.Search, m)
	hist := history.NewService(be.history, be.orders, cat, rec, cfg.History, m)

	checker := health.NewChecker()
	checker.Register("catalog_store", health.PingCheck(be.ping))

	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, listing cache disabled", "error", err)
	} else {
		defer redisClient.Close()
		listings := cache.New(redisClient, cfg.Redis.CacheTTL, m)
		svc.WithCache(listings)
		checker.Register("redis", health.Degradable(redisClient.Ping))

		// Every searcher drops its own pages, so each instance reads the
		// invalidation topic under its own group.
		host, _ := os.Hostname()
		invalidations := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate,
			cache.HandleInvalidate(listings),
			kafka.WithGroup(fmt.Sprintf("%s-searcher-%s", cfg.Kafka.ConsumerGroup, host)),
		)
		defer invalidations.Close()
		go func() {
			if err := invalidations.Start(ctx); err != nil {
				slog.Error("cache invalidation consumer stopped", "error", err)
			}
		}()
		slog.Info("listing cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	searchEvents := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents).
		WithMetrics(m.EventsPublishedTotal)
	defer searchEvents.Close()
	events := analytics.NewCollector(searchEvents, 10000)
	events.Start(ctx)
	defer events.Close()
	svc.WithEvents(events)

	historyEvents := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.HistoryEvents).
		WithMetrics(m.EventsPublishedTotal)
	defer historyEvents.Close()
	batch := collector.NewBatchCollector(historyEvents, 100, 2*time.Second)
	batch.Start(ctx)
	defer batch.Close()
	svc.WithHistory(history.NewEmitter(batch))
	slog.Info("event publishing enabled",
		"search_topic", cfg.Kafka.Topics.SearchEvents,
		"history_topic", cfg.Kafka.Topics.HistoryEvents,
	)

	mux := http.NewServeMux()
	searchhandler.New(svc, hist).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Metrics(m, mux)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
