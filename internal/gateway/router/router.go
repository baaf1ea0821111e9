// Package router wires the public API routes and applies the middleware
// chain (RequestID → CORS → Auth → RateLimit → Timeout), with Prometheus
// instrumentation per route.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/auth/ratelimit"
	gwmw "github.com/Adithya-Monish-Kumar-K/docstats/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/stats/handler"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/docstats/pkg/middleware"
)

type Config struct {
	Handler *handler.Handler
	Health  *health.Checker
	// Validator authenticates API keys. When nil the owner is taken from
	// the X-User-ID header instead.
	Validator      gwmw.KeyValidator
	Limiter        *ratelimit.Limiter
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	AllowOrigins   []string
}

// New builds the HTTP handler with all routes and middleware.
//
// Route table:
//
//	GET    /api/v1/documents                    → list the owner's documents
//	GET    /api/v1/documents/{id}/statistics    → TF/IDF of one document
//	GET    /api/v1/documents/{id}/huffman       → Huffman encoding of one document
//	POST   /api/v1/huffman/decode               → decode an encoding
//	GET    /api/v1/collections                  → list the owner's collections
//	GET    /api/v1/collections/{id}/statistics  → TF/IDF of a collection
//	GET    /api/v1/cache/stats                  → result cache counters
//	POST   /api/v1/cache/invalidate             → drop cached results
//	POST   /api/v1/keys                         → create API key
//	GET    /api/v1/keys                         → list API keys
//	GET    /health, /health/live, /health/ready
func New(cfg Config) http.Handler {
	h := cfg.Handler
	mux := http.NewServeMux()
	handle := func(pattern string, fn http.HandlerFunc) {
		var route http.Handler = fn
		if cfg.Metrics != nil {
			route = pkgmw.Metrics(cfg.Metrics, pattern)(route)
		}
		mux.Handle(pattern, route)
	}

	// Health (unauthenticated)
	if cfg.Health != nil {
		handle("GET /health", cfg.Health.LiveHandler())
		handle("GET /health/live", cfg.Health.LiveHandler())
		handle("GET /health/ready", cfg.Health.ReadyHandler())
	}

	// Documents
	handle("GET /api/v1/documents", h.ListDocuments)
	handle("GET /api/v1/documents/{id}/statistics", h.DocumentStatistics)
	handle("GET /api/v1/documents/{id}/huffman", h.HuffmanEncode)
	handle("POST /api/v1/huffman/decode", h.HuffmanDecode)

	// Collections
	handle("GET /api/v1/collections", h.ListCollections)
	handle("GET /api/v1/collections/{id}/statistics", h.CollectionStatistics)

	// Cache
	handle("GET /api/v1/cache/stats", h.CacheStats)
	handle("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	// Keys
	handle("POST /api/v1/keys", h.CreateAPIKey)
	handle("GET /api/v1/keys", h.ListAPIKeys)

	var chain http.Handler = mux
	if cfg.RequestTimeout > 0 {
		chain = pkgmw.Timeout(cfg.RequestTimeout)(chain)
	}
	if cfg.Limiter != nil {
		chain = gwmw.RateLimit(cfg.Limiter)(chain)
	}
	if cfg.Validator != nil {
		chain = gwmw.Auth(cfg.Validator)(chain)
	} else {
		chain = gwmw.TrustedOwner(chain)
	}
	chain = gwmw.CORS(gwmw.DefaultCORSConfig(cfg.AllowOrigins...))(chain)
	chain = pkgmw.RequestID(chain)

	return chain
}
