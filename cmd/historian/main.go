// Command historian applies search and browse history events from Kafka to
// the per-user history tables.
//
// Usage:
//
//	go run ./cmd/historian [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/history"
	pgstore "github.com/Adithya-Monish-Kumar-K/buyit/internal/store/postgres"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting history service",
		"search_weight", cfg.History.SearchWeight,
		"browse_weight", cfg.History.BrowseWeight,
		"max_keys", cfg.History.MaxKeys,
	)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	store := pgstore.New(db)
	svc := history.NewService(store.History(), nil, nil, nil, cfg.History, m)

	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.HistoryEvents,
		history.HandleMessage(svc),
		kafka.WithGroup(cfg.Kafka.ConsumerGroup+"-history"),
		kafka.FromEarliest(),
	)
	defer kafkaConsumer.Close()
	consumer := history.NewConsumer(kafkaConsumer)

	slog.Info("history service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.HistoryEvents,
	)
	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("history service stopped")
}
