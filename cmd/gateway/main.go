// Command gateway starts the storefront API gateway.
//
// The gateway is the single entry point for shoppers and sellers. It
// verifies access tokens, rate limits per user or client address, proxies
// catalog and analytics reads to their services, and serves carts, orders,
// reviews, product uploads, history and product images itself.
//
// Usage:
//
//	go run ./cmd/gateway [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/auth/token"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/blob"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/cart"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog/upload"
	gwhandler "github.com/Adithya-Monish-Kumar-K/buyit/internal/gateway/handler"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/gateway/router"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/history"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/order"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/review"
	pgstore "github.com/Adithya-Monish-Kumar-K/buyit/internal/store/postgres"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/postgres"
)

// main initialises PostgreSQL, the image store, token verification, the
// rate limiter and the router middleware chain, then serves until SIGINT or
// SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting gateway service",
		"port", cfg.Gateway.Port,
		"searcher_url", cfg.Gateway.SearcherURL,
		"analytics_url", cfg.Gateway.AnalyticsURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := pgstore.New(db)

	images, err := blob.NewDisk(cfg.Blob)
	if err != nil {
		slog.Error("failed to open image store", "error", err)
		os.Exit(1)
	}

	tokens, err := token.NewManager(cfg.Auth)
	if err != nil {
		slog.Error("failed to configure token verification", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.New(cfg.Auth.RateLimitPerMinute, time.Minute)
	go limiter.Run(ctx, 5*time.Minute)

	invalidations := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate).
		WithMetrics(m.EventsPublishedTotal)
	defer invalidations.Close()
	notifier := catalog.NewKafkaNotifier(invalidations)

	h, err := gwhandler.New(gwhandler.Config{
		SearcherURL:    cfg.Gateway.SearcherURL,
		AnalyticsURL:   cfg.Gateway.AnalyticsURL,
		MaxUploadBytes: 8 * cfg.Blob.MaxImageSize,
	}, gwhandler.Services{
		Carts:   cart.NewService(store.Carts(), store),
		Orders:  order.NewService(store.Orders(), store, m),
		Reviews: review.NewService(store, notifier),
		Uploads: upload.NewService(store, images, notifier, m),
		History: history.NewService(store.History(), nil, nil, nil, cfg.History, m),
	})
	if err != nil {
		slog.Error("failed to create gateway handler", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping))

	chain := router.New(router.Deps{
		Handler: h,
		Tokens:  tokens,
		Limiter: limiter,
		Health:  checker,
		Images:  images.Handler(),
		Metrics: m,
		Origins: cfg.Gateway.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Gateway.Port),
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

	slog.Info("gateway service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway service stopped")
}
