// Command analytics runs the catalog analytics service.
//
// It consumes search, browse and recommendation events from Kafka, keeps
// running totals in memory (latency percentiles, cache hit rate, zero-result
// and top queries, category popularity), snapshots them to PostgreSQL and
// serves them at GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml] [-snapshot-interval 1m]
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
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	interval := flag.Duration("snapshot-interval", time.Minute, "how often to persist the running totals")
	keep := flag.Int("snapshot-keep", 1440, "number of snapshots retained")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()
	agg := analytics.NewAggregator()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
	} else {
		defer db.Close()
		store := aggregator.NewStore(db)
		last, err := store.LatestSnapshot(ctx)
		switch {
		case err != nil:
			slog.Warn("could not load analytics snapshot", "error", err)
		case last != nil:
			agg.Restore(*last)
			slog.Info("analytics totals restored",
				"total_searches", last.TotalSearches,
				"total_browses", last.TotalBrowses,
			)
		}
		store.StartPeriodicSave(ctx, agg, *interval, *keep)
		checker.Register("postgres", health.Degradable(db.Ping))
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents,
		analytics.HandleEvent(agg),
		kafka.WithGroup(cfg.Kafka.ConsumerGroup+"-analytics"),
	)
	defer consumer.Close()
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer stopped", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.SearchEvents)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
