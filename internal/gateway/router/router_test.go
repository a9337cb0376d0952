package router

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/auth/token"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/blob"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/cart"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog/upload"
	gwhandler "github.com/Adithya-Monish-Kumar-K/buyit/internal/gateway/handler"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/history"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/order"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/review"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/store/memory"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/health"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

type gateway struct {
	handler  http.Handler
	tokens   *token.Manager
	store    *memory.Store
	upstream *httptest.Server
	// seen records the X-User-ID header the searcher received.
	seen chan string
}

func newGateway(t *testing.T, limit int) *gateway {
	t.Helper()
	g := &gateway{seen: make(chan string, 8)}
	g.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.seen <- r.Header.Get(token.UserIDHeader)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"products":[],"nextPage":null,"length":0}`)
	}))
	t.Cleanup(g.upstream.Close)

	g.store = memory.New(
		catalog.Product{ID: "p1", Name: "Red Shoe", Category: "footwear", Tags: []string{"shoe", "red"}, Price: 50},
		catalog.Product{ID: "p2", Name: "Desk Lamp", Category: "home", Tags: []string{"lamp"}, Price: 20},
	)
	disk, err := blob.NewDisk(config.BlobConfig{Dir: t.TempDir(), BaseURL: "http://gw/images", MaxImageSize: 1 << 20})
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	g.tokens, err = token.NewManager(config.AuthConfig{
		AccessSecret: "test-secret",
		Issuer:       "buyit-identity",
		AccessTTL:    time.Minute,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	h, err := gwhandler.New(gwhandler.Config{
		SearcherURL:  g.upstream.URL,
		AnalyticsURL: g.upstream.URL,
	}, gwhandler.Services{
		Carts:   cart.NewService(g.store.Carts(), g.store),
		Orders:  order.NewService(g.store.Orders(), g.store, nil),
		Reviews: review.NewService(g.store, nil),
		Uploads: upload.NewService(g.store, disk, nil, nil),
		History: history.NewService(g.store.History(), nil, nil, nil,
			config.HistoryConfig{SearchWeight: 5, BrowseWeight: 1}, nil),
	})
	if err != nil {
		t.Fatalf("handler.New: %v", err)
	}
	g.handler = New(Deps{
		Handler: h,
		Tokens:  g.tokens,
		Limiter: ratelimit.New(limit, time.Minute),
		Health:  health.NewChecker(),
		Images:  disk.Handler(),
		Origins: []string{"http://shop.test"},
	})
	return g
}

func (g *gateway) bearer(t *testing.T, userID string, verified bool) string {
	t.Helper()
	raw, err := g.tokens.Mint(userID, "Dana", userID+"@example.com", verified)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return "Bearer " + raw
}

func (g *gateway) do(t *testing.T, method, target, body, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rr := httptest.NewRecorder()
	g.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealthIsPublic(t *testing.T) {
	g := newGateway(t, 100)
	rr := g.do(t, http.MethodGet, "/health/live", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	g := newGateway(t, 100)
	for _, target := range []string{"/api/v1/cart", "/api/v1/orders", "/api/v1/history/search"} {
		if rr := g.do(t, http.MethodGet, target, "", ""); rr.Code != http.StatusUnauthorized {
			t.Errorf("GET %s anonymous = %d, want 401", target, rr.Code)
		}
	}
	rr := g.do(t, http.MethodGet, "/api/v1/cart", "", "Bearer not-a-token")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d, want 401", rr.Code)
	}
}

func TestCartAndOrderFlow(t *testing.T) {
	g := newGateway(t, 100)
	auth := g.bearer(t, "u1", false)

	rr := g.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"p1","quantity":3}`, auth)
	if rr.Code != http.StatusOK {
		t.Fatalf("add = %d: %s", rr.Code, rr.Body)
	}
	rr = g.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"nope","quantity":1}`, auth)
	if rr.Code != http.StatusNotFound {
		t.Errorf("add unknown product = %d, want 404", rr.Code)
	}
	rr = g.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"p1","quantity":0}`, auth)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("add zero quantity = %d, want 400", rr.Code)
	}

	rr = g.do(t, http.MethodPost, "/api/v1/orders", `{"productId":"p1","quantity":2,"address":"1 Main St"}`, auth)
	if rr.Code != http.StatusCreated {
		t.Fatalf("place = %d: %s", rr.Code, rr.Body)
	}
	placed := decodeBody(t, rr)
	orderID, _ := placed["orderId"].(string)
	if orderID == "" || placed["orderStatus"] != order.StatusPreparing {
		t.Fatalf("placed order = %v", placed)
	}

	rr = g.do(t, http.MethodGet, "/api/v1/cart", "", auth)
	items := decodeBody(t, rr)["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["quantity"].(float64) != 1 {
		t.Errorf("cart after order = %v, want quantity 1", items)
	}

	rr = g.do(t, http.MethodDelete, "/api/v1/orders/"+orderID, "", auth)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete = %d: %s", rr.Code, rr.Body)
	}
	rr = g.do(t, http.MethodGet, "/api/v1/orders/history", "", auth)
	hist := decodeBody(t, rr)["history"].([]any)
	if len(hist) != 1 {
		t.Errorf("order history = %v", hist)
	}
	if rr := g.do(t, http.MethodDelete, "/api/v1/orders/not-a-uuid", "", auth); rr.Code != http.StatusBadRequest {
		t.Errorf("delete bad id = %d, want 400", rr.Code)
	}

	// Another user sees none of it.
	other := g.bearer(t, "u2", false)
	rr = g.do(t, http.MethodGet, "/api/v1/orders", "", other)
	if orders := decodeBody(t, rr)["orders"]; orders != nil && len(orders.([]any)) != 0 {
		t.Errorf("u2 orders = %v", orders)
	}
}

func TestMergeCart(t *testing.T) {
	g := newGateway(t, 100)
	auth := g.bearer(t, "u1", false)
	g.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"p1","quantity":1}`, auth)

	rr := g.do(t, http.MethodPost, "/api/v1/cart/merge",
		`{"items":[{"productId":"p1","quantity":2},{"productId":"p2","quantity":1}]}`, auth)
	if rr.Code != http.StatusOK {
		t.Fatalf("merge = %d: %s", rr.Code, rr.Body)
	}
	items := decodeBody(t, rr)["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("merged cart = %v", items)
	}

	rr = g.do(t, http.MethodDelete, "/api/v1/cart/items/p2", "", auth)
	if rr.Code != http.StatusOK {
		t.Fatalf("remove = %d", rr.Code)
	}
	rr = g.do(t, http.MethodGet, "/api/v1/cart", "", auth)
	if items := decodeBody(t, rr)["items"].([]any); len(items) != 1 {
		t.Errorf("cart after remove = %v", items)
	}
}

func TestReviewUsesTokenIdentity(t *testing.T) {
	g := newGateway(t, 100)
	auth := g.bearer(t, "u1", false)
	rr := g.do(t, http.MethodPost, "/api/v1/reviews", `{"productId":"p1","reviewText":"great","rating":5}`, auth)
	if rr.Code != http.StatusOK {
		t.Fatalf("review = %d: %s", rr.Code, rr.Body)
	}
	p, err := g.store.Get(t.Context(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Ratings) != 1 || p.Ratings[0].UserID != "u1" || p.Ratings[0].Username != "Dana" {
		t.Errorf("ratings = %+v", p.Ratings)
	}
	rr = g.do(t, http.MethodPost, "/api/v1/reviews", `{"productId":"p1","rating":9}`, auth)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("rating 9 = %d, want 400", rr.Code)
	}
}

func TestSearchProxyForwardsVerifiedUser(t *testing.T) {
	g := newGateway(t, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?search=shoe", nil)
	req.Header.Set(token.UserIDHeader, "spoofed")
	rr := httptest.NewRecorder()
	g.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("anonymous search = %d", rr.Code)
	}
	if got := <-g.seen; got != "" {
		t.Errorf("upstream saw user %q, want spoofed header stripped", got)
	}

	rr = g.do(t, http.MethodGet, "/api/v1/products?search=shoe", "", g.bearer(t, "u7", false))
	if rr.Code != http.StatusOK {
		t.Fatalf("signed-in search = %d", rr.Code)
	}
	if got := <-g.seen; got != "u7" {
		t.Errorf("upstream saw user %q, want u7", got)
	}

	if rr := g.do(t, http.MethodGet, "/api/v1/recommendations/history", "", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("anonymous history recs = %d, want 401", rr.Code)
	}
}

func TestUpstreamDownIsBadGateway(t *testing.T) {
	g := newGateway(t, 100)
	g.upstream.Close()
	rr := g.do(t, http.MethodGet, "/api/v1/products", "", "")
	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
}

func TestHistoryRoutes(t *testing.T) {
	g := newGateway(t, 100)
	auth := g.bearer(t, "u1", false)
	if rr := g.do(t, http.MethodPost, "/api/v1/history/search", `{"value":"running shoes"}`, auth); rr.Code != http.StatusOK {
		t.Fatalf("record = %d: %s", rr.Code, rr.Body)
	}
	g.do(t, http.MethodPost, "/api/v1/history/search", `{"value":"running shoes"}`, auth)
	if rr := g.do(t, http.MethodPost, "/api/v1/history/wishlist", `{"value":"x"}`, auth); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown kind = %d, want 400", rr.Code)
	}
	if rr := g.do(t, http.MethodPost, "/api/v1/history/browse", `{"value":"  "}`, auth); rr.Code != http.StatusBadRequest {
		t.Errorf("blank value = %d, want 400", rr.Code)
	}

	rr := g.do(t, http.MethodGet, "/api/v1/history/search", "", auth)
	weights := decodeBody(t, rr)["history"].(map[string]any)
	if weights["running shoes"] != float64(10) {
		t.Errorf("weights = %v, want running shoes=10", weights)
	}
}

func multipartUpload(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if image != nil {
		fw, err := mw.CreateFormFile("images", "shoe.png")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(image)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadProduct(t *testing.T) {
	g := newGateway(t, 100)
	fields := map[string]string{
		"name":     "Hiking Boot",
		"category": "footwear",
		"details":  "waterproof",
		"tags":     `["boot", "hiking"]`,
		"price":    "120.5",
	}

	post := func(auth string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/products", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", auth)
		rr := httptest.NewRecorder()
		g.handler.ServeHTTP(rr, req)
		return rr
	}

	body, ct := multipartUpload(t, fields, pngBytes)
	if rr := post(g.bearer(t, "s1", false), body, ct); rr.Code != http.StatusForbidden {
		t.Errorf("unverified seller = %d, want 403", rr.Code)
	}

	body, ct = multipartUpload(t, fields, pngBytes)
	rr := post(g.bearer(t, "s1", true), body, ct)
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload = %d: %s", rr.Code, rr.Body)
	}
	created := decodeBody(t, rr)
	images := created["images"].([]any)
	if len(images) != 1 || created["seller"] != "Dana" {
		t.Fatalf("created = %v", created)
	}

	key := strings.TrimPrefix(images[0].(string), "http://gw/images/")
	img := g.do(t, http.MethodGet, "/images/"+key, "", "")
	if img.Code != http.StatusOK || !bytes.Equal(img.Body.Bytes(), pngBytes) {
		t.Errorf("image fetch = %d, %d bytes", img.Code, img.Body.Len())
	}

	bad := map[string]string{"name": "x", "category": "y", "tags": "[]", "price": "cheap"}
	body, ct = multipartUpload(t, bad, pngBytes)
	if rr := post(g.bearer(t, "s1", true), body, ct); rr.Code != http.StatusBadRequest {
		t.Errorf("bad price = %d, want 400", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	g := newGateway(t, 100)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cart", nil)
	req.Header.Set("Origin", "http://shop.test")
	rr := httptest.NewRecorder()
	g.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://shop.test" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("Origin", "http://evil.test")
	rr = httptest.NewRecorder()
	g.handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unknown origin got Allow-Origin %q", got)
	}
}

func TestRateLimitPerUser(t *testing.T) {
	g := newGateway(t, 2)
	auth := g.bearer(t, "u1", false)
	for i := range 2 {
		if rr := g.do(t, http.MethodGet, "/api/v1/cart", "", auth); rr.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rr.Code)
		}
	}
	if rr := g.do(t, http.MethodGet, "/api/v1/cart", "", auth); rr.Code != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", rr.Code)
	}
	if rr := g.do(t, http.MethodGet, "/api/v1/cart", "", g.bearer(t, "u2", false)); rr.Code != http.StatusOK {
		t.Errorf("other user = %d, want 200", rr.Code)
	}
	if rr := g.do(t, http.MethodGet, "/health/live", "", auth); rr.Code != http.StatusOK {
		t.Errorf("health while limited = %d", rr.Code)
	}
}
