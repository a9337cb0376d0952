package resilient

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/store/memory"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/resilience"
)

type flaky struct {
	*memory.Store
	failures int
	calls    int
}

func (f *flaky) Count(ctx context.Context, filter catalog.Filter) (int, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, apperrors.DataAccess("count", sql.ErrConnDone)
	}
	return f.Store.Count(ctx, filter)
}

func (f *flaky) Get(ctx context.Context, id catalog.ProductID) (catalog.Product, error) {
	f.calls++
	return f.Store.Get(ctx, id)
}

func searchConfig(attempts int, failures uint32) config.SearchConfig {
	return config.SearchConfig{
		RetryAttempts:   attempts,
		BreakerFailures: failures,
		BreakerCooldown: time.Minute,
		StoreTimeout:    time.Second,
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	next := &flaky{Store: memory.New(catalog.Product{ID: "p1"}), failures: 2}
	s := New(next, searchConfig(3, 10), nil)

	n, err := s.Count(context.Background(), catalog.Filter{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 || next.calls != 3 {
		t.Errorf("n = %d calls = %d, want 1 and 3", n, next.calls)
	}
}

func TestDoesNotRetryNotFound(t *testing.T) {
	next := &flaky{Store: memory.New()}
	s := New(next, searchConfig(3, 10), nil)

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if next.calls != 1 {
		t.Errorf("calls = %d, want 1", next.calls)
	}
	if s.State() != resilience.StateClosed {
		t.Errorf("breaker = %v after not-found", s.State())
	}
}

func TestBreakerOpensAndReportsUnavailable(t *testing.T) {
	next := &flaky{Store: memory.New(), failures: 100}
	s := New(next, searchConfig(1, 2), nil)
	ctx := context.Background()

	for range 2 {
		if _, err := s.Count(ctx, catalog.Filter{}); !errors.Is(err, apperrors.ErrDataAccess) {
			t.Fatalf("err = %v, want data access", err)
		}
	}
	if s.State() != resilience.StateOpen {
		t.Fatalf("breaker = %v, want open", s.State())
	}
	_, err := s.Count(ctx, catalog.Filter{})
	if !errors.Is(err, apperrors.ErrUnavailable) {
		t.Errorf("err = %v, want unavailable", err)
	}
	if next.calls != 2 {
		t.Errorf("calls = %d, open breaker let a call through", next.calls)
	}
}
