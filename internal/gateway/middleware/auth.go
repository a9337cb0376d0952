// Package middleware provides the gateway's HTTP middleware: access-token
// authentication, CORS and rate limiting.
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/auth/token"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/logger"
)

// Auth verifies the bearer token when one is presented and stores its
// claims in the request context. The verified user id replaces any
// client-supplied X-User-ID so upstream services can trust the header.
// Requests without a token pass through anonymously; an invalid token is
// rejected with 401.
func Auth(mgr *token.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Del(token.UserIDHeader)

			raw := token.FromRequest(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := mgr.Verify(raw)
			if err != nil {
				logger.FromContext(r.Context()).Debug("access token rejected",
					"component", "gateway-auth",
					"error", err,
				)
				writeError(w, err)
				return
			}
			r.Header.Set(token.UserIDHeader, claims.UserID())
			next.ServeHTTP(w, r.WithContext(token.WithClaims(r.Context(), claims)))
		})
	}
}

// RequireUser rejects requests that carry no verified claims.
func RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token.ClaimsFrom(r.Context()) == nil {
			writeError(w, token.ErrMissing)
			return
		}
		next(w, r)
	}
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatusCode(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": apperrors.PublicMessage(err)})
}
