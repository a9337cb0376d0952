package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/auth/token"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/cart"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog/upload"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/history"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/order"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/review"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/validation"
)

// Config holds the upstream URLs and upload limits of the gateway.
type Config struct {
	SearcherURL    string
	AnalyticsURL   string
	MaxUploadBytes int64
}

// Services are the storefront operations the gateway serves directly.
type Services struct {
	Carts   *cart.Service
	Orders  *order.Service
	Reviews *review.Service
	Uploads *upload.Service
	History *history.Service
}

// Handler implements the storefront API. Catalog reads are proxied to the
// searcher; everything else is served from the services.
type Handler struct {
	searchProxy    *httputil.ReverseProxy
	analyticsProxy *httputil.ReverseProxy
	svc            Services
	maxUpload      int64
	logger         *slog.Logger
}

func New(cfg Config, svc Services) (*Handler, error) {
	h := &Handler{
		svc:       svc,
		maxUpload: cfg.MaxUploadBytes,
		logger:    slog.Default().With("component", "gateway-handler"),
	}
	if h.maxUpload <= 0 {
		h.maxUpload = 32 << 20
	}
	var err error
	if h.searchProxy, err = h.newProxy(cfg.SearcherURL); err != nil {
		return nil, err
	}
	if h.analyticsProxy, err = h.newProxy(cfg.AnalyticsURL); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handler) newProxy(target string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", target)
	}
	p := httputil.NewSingleHostReverseProxy(u)
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		h.logger.Error("upstream request failed", "upstream", u.Host, "path", r.URL.Path, "error", err)
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream unavailable"})
	}
	return p, nil
}

// ---------- Proxies ----------

// ProxySearch forwards catalog reads to the searcher.
func (h *Handler) ProxySearch(w http.ResponseWriter, r *http.Request) {
	h.searchProxy.ServeHTTP(w, r)
}

// ProxyAnalytics forwards analytics reads to the analytics service.
func (h *Handler) ProxyAnalytics(w http.ResponseWriter, r *http.Request) {
	h.analyticsProxy.ServeHTTP(w, r)
}

// ---------- Cart ----------

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Carts.Get(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var item cart.Item
	if !h.decode(w, r, &item) {
		return
	}
	if err := h.svc.Carts.Add(r.Context(), userID(r), item); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// MergeCart folds the cart kept by the client before sign-in into the
// stored cart.
func (h *Handler) MergeCart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Items []cart.Item `json:"items"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		h.writeError(w, r, apperrors.Invalid("invalid JSON body"))
		return
	}
	if err := h.svc.Carts.MergeLocal(r.Context(), userID(r), body.Items); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.GetCart(w, r)
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id := catalog.ProductID(r.PathValue("productId"))
	if id == "" {
		h.writeError(w, r, apperrors.Invalid("product id is required"))
		return
	}
	if err := h.svc.Carts.Remove(r.Context(), userID(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// ---------- Orders ----------

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req order.PlaceRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.svc.Orders.Place(r.Context(), userID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Orders.List(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, apperrors.Invalid("order id must be a UUID"))
		return
	}
	entry, err := h.svc.Orders.Delete(r.Context(), userID(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Orders.History(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// ---------- Reviews ----------

func (h *Handler) UploadReview(w http.ResponseWriter, r *http.Request) {
	var req review.Request
	if !h.decode(w, r, &req) {
		return
	}
	claims := token.ClaimsFrom(r.Context())
	res, err := h.svc.Reviews.Upload(r.Context(), claims.UserID(), claims.Name, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ---------- Products ----------

// UploadProduct accepts a multipart form with the product fields and one
// or more files under "images".
func (h *Handler) UploadProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge, "upload too large"))
			return
		}
		h.writeError(w, r, apperrors.Invalid("invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	price, err := strconv.ParseFloat(r.FormValue("price"), 64)
	if err != nil {
		h.writeError(w, r, apperrors.Invalid("price must be a number"))
		return
	}
	form := upload.Form{
		Name:     r.FormValue("name"),
		Category: r.FormValue("category"),
		Details:  r.FormValue("details"),
		Tags:     r.FormValue("tags"),
		Price:    price,
	}

	files := r.MultipartForm.File["images"]
	images := make([]upload.Image, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			h.writeError(w, r, apperrors.Invalid("unreadable image %q", fh.Filename))
			return
		}
		defer closeFile(f)
		images = append(images, upload.Image{Filename: fh.Filename, Body: f})
	}

	claims := token.ClaimsFrom(r.Context())
	p, err := h.svc.Uploads.Upload(r.Context(), upload.Seller{
		ID:       claims.UserID(),
		Name:     claims.Name,
		Verified: claims.Verified,
	}, form, images)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

func closeFile(f multipart.File) { _ = f.Close() }

// ---------- History ----------

// SearchHistory and BrowseHistory return the caller's weighted terms.
func (h *Handler) SearchHistory(w http.ResponseWriter, r *http.Request) {
	h.weights(w, r, history.KindSearch)
}

func (h *Handler) BrowseHistory(w http.ResponseWriter, r *http.Request) {
	h.weights(w, r, history.KindBrowse)
}

// RecordHistory adds one search term or browsed category for the caller.
// The kind comes from the path.
func (h *Handler) RecordHistory(w http.ResponseWriter, r *http.Request) {
	kind := history.Kind(r.PathValue("kind"))
	var body struct {
		Value string `json:"value" validate:"notblank,max=200"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.svc.History.Record(r.Context(), kind, userID(r), body.Value); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) weights(w http.ResponseWriter, r *http.Request, kind history.Kind) {
	weights, err := h.svc.History.Weights(r.Context(), kind, userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"history": weights})
}

// ---------- Helpers ----------

// userID returns the verified caller. Routes using it are wrapped in
// RequireUser.
func userID(r *http.Request) string {
	if c := token.ClaimsFrom(r.Context()); c != nil {
		return c.UserID()
	}
	return ""
}

// decode reads a JSON body into dst and validates it, writing the error
// response itself when it returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			h.writeError(w, r, apperrors.Invalid("request body is required"))
		} else {
			h.writeError(w, r, apperrors.Invalid("invalid JSON body"))
		}
		return false
	}
	if err := validation.Struct(dst); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"component", "gateway-handler",
			"path", r.URL.Path,
			"error", err,
		)
	}
	h.writeJSON(w, status, map[string]string{"error": apperrors.PublicMessage(err)})
}
