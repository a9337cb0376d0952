// Package router wires the storefront routes and the gateway middleware
// chain.
package router

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/auth/token"
	gwhandler "github.com/Adithya-Monish-Kumar-K/buyit/internal/gateway/handler"
	gwmw "github.com/Adithya-Monish-Kumar-K/buyit/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/buyit/pkg/middleware"
)

// Deps are the collaborators of the gateway router. Images and Metrics may
// be nil.
type Deps struct {
	Handler *gwhandler.Handler
	Tokens  *token.Manager
	Limiter *ratelimit.Limiter
	Health  *health.Checker
	Images  http.Handler
	Metrics *metrics.Metrics
	Origins []string
}

// New builds the gateway HTTP handler.
//
// Route table (* requires a signed-in user):
//
//	GET    /api/v1/products                         → searcher (proxy)
//	POST   /api/v1/products/recommend               → searcher (proxy)
//	GET    /api/v1/recommendations/history        * → searcher (proxy)
//	GET    /api/v1/user-history/order-history-tags * → searcher (proxy)
//	GET    /api/v1/cache/stats                      → searcher (proxy)
//	POST   /api/v1/cache/invalidate               * → searcher (proxy)
//	GET    /api/v1/analytics                        → analytics (proxy)
//	POST   /api/v1/products                       * → product upload
//	POST   /api/v1/reviews                        * → review upload
//	GET    /api/v1/cart                           * → cart
//	POST   /api/v1/cart/items                     * → add to cart
//	POST   /api/v1/cart/merge                     * → merge local cart
//	DELETE /api/v1/cart/items/{productId}         * → remove from cart
//	POST   /api/v1/orders                         * → place order
//	GET    /api/v1/orders                         * → open orders
//	DELETE /api/v1/orders/{id}                    * → archive order
//	GET    /api/v1/orders/history                 * → order history
//	GET    /api/v1/history/search                 * → search history
//	GET    /api/v1/history/browse                 * → browse history
//	POST   /api/v1/history/{kind}                 * → record search/browse
//	GET    /images/{key}                            → product images
//	GET    /health/live, /health/ready              → health
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → CORS → Auth → RateLimit → mux
func New(d Deps) http.Handler {
	h := d.Handler
	auth := gwmw.RequireUser
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", d.Health.LiveHandler())
	mux.HandleFunc("GET /health/ready", d.Health.ReadyHandler())

	mux.HandleFunc("GET /api/v1/products", h.ProxySearch)
	mux.HandleFunc("POST /api/v1/products/recommend", h.ProxySearch)
	mux.HandleFunc("GET /api/v1/recommendations/history", auth(h.ProxySearch))
	mux.HandleFunc("GET /api/v1/user-history/order-history-tags", auth(h.ProxySearch))
	mux.HandleFunc("GET /api/v1/cache/stats", h.ProxySearch)
	mux.HandleFunc("POST /api/v1/cache/invalidate", auth(h.ProxySearch))
	mux.HandleFunc("GET /api/v1/analytics", h.ProxyAnalytics)

	mux.HandleFunc("POST /api/v1/products", auth(h.UploadProduct))
	mux.HandleFunc("POST /api/v1/reviews", auth(h.UploadReview))

	mux.HandleFunc("GET /api/v1/cart", auth(h.GetCart))
	mux.HandleFunc("POST /api/v1/cart/items", auth(h.AddCartItem))
	mux.HandleFunc("POST /api/v1/cart/merge", auth(h.MergeCart))
	mux.HandleFunc("DELETE /api/v1/cart/items/{productId}", auth(h.RemoveCartItem))

	mux.HandleFunc("POST /api/v1/orders", auth(h.PlaceOrder))
	mux.HandleFunc("GET /api/v1/orders", auth(h.ListOrders))
	mux.HandleFunc("DELETE /api/v1/orders/{id}", auth(h.DeleteOrder))
	mux.HandleFunc("GET /api/v1/orders/history", auth(h.OrderHistory))

	mux.HandleFunc("GET /api/v1/history/search", auth(h.SearchHistory))
	mux.HandleFunc("GET /api/v1/history/browse", auth(h.BrowseHistory))
	mux.HandleFunc("POST /api/v1/history/{kind}", auth(h.RecordHistory))

	if d.Images != nil {
		mux.Handle("GET /images/", http.StripPrefix("/images/", d.Images))
	}

	var chain http.Handler = mux
	chain = gwmw.RateLimit(d.Limiter)(chain)
	chain = gwmw.Auth(d.Tokens)(chain)
	chain = gwmw.CORS(gwmw.NewCORSConfig(d.Origins))(chain)
	if d.Metrics != nil {
		chain = pkgmw.Metrics(d.Metrics, mux)(chain)
	}
	return pkgmw.RequestID(chain)
}
