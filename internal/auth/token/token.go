// Package token verifies the HS256 access tokens issued by the identity
// service and mints equivalent tokens for local tooling.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
)

// UserIDHeader carries the verified caller from the gateway to internal
// services. The gateway strips any client-supplied value.
const UserIDHeader = "X-User-ID"

var (
	ErrMissing = apperrors.New(apperrors.ErrUnauthorized, http.StatusUnauthorized, "missing access token")
	ErrInvalid = apperrors.New(apperrors.ErrUnauthorized, http.StatusUnauthorized, "invalid access token")
	ErrExpired = apperrors.New(apperrors.ErrUnauthorized, http.StatusUnauthorized, "access token expired")
)

// Claims is the access-token payload. Subject holds the user id.
type Claims struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
	jwt.RegisteredClaims
}

// UserID returns the subject.
func (c *Claims) UserID() string { return c.Subject }

// Manager signs and verifies access tokens with a shared secret.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.AccessSecret == "" {
		return nil, errors.New("auth access secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Manager{
		secret: []byte(cfg.AccessSecret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTTL,
		parser: jwt.NewParser(opts...),
		now:    time.Now,
	}, nil
}

// Mint signs a token for the given user.
func (m *Manager) Mint(userID, name, email string, verified bool) (string, error) {
	if userID == "" {
		return "", apperrors.Invalid("user id is required")
	}
	now := m.now()
	claims := &Claims{
		Name:     name,
		Email:    email,
		Verified: verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// Verify parses raw and returns its claims.
func (m *Manager) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrMissing
	}
	claims := &Claims{}
	tok, err := m.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	case !tok.Valid || claims.Subject == "":
		return nil, ErrInvalid
	}
	return claims, nil
}

// FromRequest extracts the bearer token of r.
func FromRequest(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

type contextKey struct{}

// WithClaims stores verified claims in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// ClaimsFrom returns the claims stored by WithClaims, or nil.
func ClaimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(contextKey{}).(*Claims)
	return c
}
