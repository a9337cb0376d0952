// Package resilient wraps catalog reads in a timeout, retry with backoff and
// a circuit breaker.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/pipeline"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/resilience"
)

// Catalog is the read side of the product store.
type Catalog interface {
	ScanCorpus(ctx context.Context, filter catalog.Filter) ([]catalog.CorpusEntry, error)
	Aggregate(ctx context.Context, p pipeline.Pipeline) ([]catalog.Summary, error)
	Count(ctx context.Context, filter catalog.Filter) (int, error)
	FindByIDs(ctx context.Context, ids []catalog.ProductID) ([]catalog.Product, error)
	Get(ctx context.Context, id catalog.ProductID) (catalog.Product, error)
}

// Store guards a Catalog.
type Store struct {
	next    Catalog
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	timeout time.Duration
	metrics *metrics.Metrics
}

// transient reports whether err is a storage failure worth retrying and
// counting against the breaker. Caller mistakes and missing rows are not.
func transient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, apperrors.ErrNotFound),
		errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, pipeline.ErrUnsupported),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// New wraps next using the store settings of cfg. m may be nil.
func New(next Catalog, cfg config.SearchConfig, m *metrics.Metrics) *Store {
	const name = "catalog-store"
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerFailures,
		ResetTimeout:     cfg.BreakerCooldown,
		IsFailure:        transient,
	}
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(resilience.StateClosed))
		cbCfg.OnStateChange = func(n string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(n).Set(float64(to))
		}
	}
	return &Store{
		next:    next,
		breaker: resilience.NewCircuitBreaker(name, cbCfg),
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.RetryAttempts,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Retryable:    transient,
		},
		timeout: cfg.StoreTimeout,
		metrics: m,
	}
}

// State reports the breaker state.
func (s *Store) State() resilience.State {
	return s.breaker.GetState()
}

func call[T any](ctx context.Context, s *Store, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	rc := s.retry
	if s.metrics != nil {
		rc.OnRetry = func(int, error) {
			s.metrics.StoreRetriesTotal.WithLabelValues(op).Inc()
		}
	}
	err := resilience.Retry(ctx, op, rc, func() error {
		return s.breaker.Execute(func() error {
			res, err := resilience.Timed(ctx, s.timeout, op, fn)
			if err == nil {
				out = res
			}
			return err
		})
	})
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, resilience.ErrCircuitOpen):
		return out, fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return out, fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
	}
	return out, err
}

func (s *Store) ScanCorpus(ctx context.Context, filter catalog.Filter) ([]catalog.CorpusEntry, error) {
	return call(ctx, s, "scan-corpus", func(ctx context.Context) ([]catalog.CorpusEntry, error) {
		return s.next.ScanCorpus(ctx, filter)
	})
}

func (s *Store) Aggregate(ctx context.Context, p pipeline.Pipeline) ([]catalog.Summary, error) {
	return call(ctx, s, "aggregate", func(ctx context.Context) ([]catalog.Summary, error) {
		return s.next.Aggregate(ctx, p)
	})
}

func (s *Store) Count(ctx context.Context, filter catalog.Filter) (int, error) {
	return call(ctx, s, "count", func(ctx context.Context) (int, error) {
		return s.next.Count(ctx, filter)
	})
}

func (s *Store) FindByIDs(ctx context.Context, ids []catalog.ProductID) ([]catalog.Product, error) {
	return call(ctx, s, "find-by-ids", func(ctx context.Context) ([]catalog.Product, error) {
		return s.next.FindByIDs(ctx, ids)
	})
}

func (s *Store) Get(ctx context.Context, id catalog.ProductID) (catalog.Product, error) {
	return call(ctx, s, "get-product", func(ctx context.Context) (catalog.Product, error) {
		return s.next.Get(ctx, id)
	})
}
