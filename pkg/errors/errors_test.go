package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrNotFound, http.StatusTeapot, "x"), http.StatusTeapot},
		{"not found", fmt.Errorf("lookup: %w", ErrNotFound), http.StatusNotFound},
		{"invalid", ErrInvalidInput, http.StatusBadRequest},
		{"conflict", ErrConflict, http.StatusConflict},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"data access", DataAccess("count", sql.ErrConnDone), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDataAccessKeepsCauseButHidesIt(t *testing.T) {
	err := DataAccess("scan corpus", sql.ErrConnDone)
	if !errors.Is(err, ErrDataAccess) {
		t.Error("expected ErrDataAccess in chain")
	}
	if !errors.Is(err, sql.ErrConnDone) {
		t.Error("expected cause in chain")
	}
	if msg := PublicMessage(err); msg != "internal server error" {
		t.Errorf("PublicMessage = %q, driver text leaked", msg)
	}
}

func TestPublicMessageUsesAppErrorMessage(t *testing.T) {
	err := fmt.Errorf("handler: %w", Invalid("page must be >= 1, got %d", 0))
	if msg := PublicMessage(err); msg != "page must be >= 1, got 0" {
		t.Errorf("PublicMessage = %q", msg)
	}
}
