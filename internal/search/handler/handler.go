// Package handler exposes the search service over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/auth/token"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/history"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/logger"
)

// RecommendResponse is the body of every recommendation endpoint. Status is
// "success" or "failure"; a failure still answers 200.
type RecommendResponse struct {
	Status   string            `json:"status"`
	Products []catalog.Product `json:"products"`
	Details  string            `json:"details,omitempty"`
}

type recommendRequest struct {
	Tags []string `json:"tags"`
}

type Handler struct {
	search  *search.Service
	history *history.Service
	logger  *slog.Logger
}

// New creates a Handler. hist may be nil, which disables the history
// routes.
func New(svc *search.Service, hist *history.Service) *Handler {
	return &Handler{
		search:  svc,
		history: hist,
		logger:  slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/products", h.Products)
	mux.HandleFunc("POST /api/v1/products/recommend", h.Recommend)
	mux.HandleFunc("GET /api/v1/recommendations/history", h.HistoryRecommendations)
	mux.HandleFunc("GET /api/v1/user-history/order-history-tags", h.OrderHistoryTags)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Products serves browse and search listings.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1, "page")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	perPage, err := intParam(q.Get("perPage"), h.search.DefaultPerPage(), "perPage")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	random, err := boolParam(q.Get("random"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	listing, err := h.search.List(r.Context(), search.Request{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		SortBy:   q.Get("sortBy"),
		Page:     page,
		PerPage:  perPage,
		Random:   random,
		UserID:   r.Header.Get(token.UserIDHeader),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listing)
}

// Recommend answers a tag recommendation.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.Invalid("invalid request body"))
		return
	}
	h.recommend(w, r, req.Tags)
}

// HistoryRecommendations recommends from the caller's order, search and
// browse history.
func (h *Handler) HistoryRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireHistory(w, r)
	if !ok {
		return
	}
	tags, err := h.history.PreferenceTags(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(tags) == 0 {
		h.writeJSON(w, http.StatusOK, RecommendResponse{
			Status:   "failure",
			Products: []catalog.Product{},
			Details:  history.DetailNoHistory,
		})
		return
	}
	h.recommend(w, r, tags)
}

// OrderHistoryTags returns the tags derived from the caller's order history.
func (h *Handler) OrderHistoryTags(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireHistory(w, r)
	if !ok {
		return
	}
	res, err := h.history.OrderTags(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	c := h.search.Cache()
	if c == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := c.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	c := h.search.Cache()
	if c == nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	deleted, err := c.Invalidate(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) recommend(w http.ResponseWriter, r *http.Request, tags []string) {
	products, err := h.search.Recommend(r.Context(), tags, r.Header.Get(token.UserIDHeader))
	if errors.Is(err, apperrors.ErrInsufficientResults) {
		h.writeJSON(w, http.StatusOK, RecommendResponse{
			Status:   "failure",
			Products: []catalog.Product{},
			Details:  apperrors.PublicMessage(err),
		})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, RecommendResponse{Status: "success", Products: products})
}

func (h *Handler) requireHistory(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.history == nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "history is disabled"))
		return "", false
	}
	userID := r.Header.Get(token.UserIDHeader)
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		h.writeError(w, r, apperrors.Invalid("user id is required"))
		return "", false
	}
	return userID, true
}

func intParam(raw string, def int, name string) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, apperrors.Invalid("%s must be an integer", name)
	}
	return n, nil
}

func boolParam(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.Invalid("random must be true or false")
	}
	return b, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError logs server-side failures and writes only the public message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"component", "search-handler",
			"path", r.URL.Path,
			"error", err,
		)
	}
	h.writeJSON(w, status, map[string]string{"error": apperrors.PublicMessage(err)})
}
