package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/auth/token"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
)

// RateLimit limits requests per signed-in user, or per client address for
// anonymous callers. Health endpoints are exempt. It must run after Auth.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	limited := apperrors.New(apperrors.ErrRateLimited, http.StatusTooManyRequests, "rate limit exceeded")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(clientKey(r)) {
				w.Header().Set("Retry-After", "60")
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
				writeError(w, limited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if c := token.ClaimsFrom(r.Context()); c != nil {
		return "user:" + c.UserID()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
