package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/auth/ratelimit"
)

type fakeValidator map[string]*apikey.KeyInfo

func (f fakeValidator) Validate(_ context.Context, raw string) (*apikey.KeyInfo, error) {
	if raw == "expired" {
		return nil, apikey.ErrExpiredKey
	}
	if raw == "broken" {
		return nil, errors.New("db down")
	}
	info, ok := f[raw]
	if !ok {
		return nil, apikey.ErrInvalidKey
	}
	return info, nil
}

func ownerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, ok := OwnerFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Header().Set("X-Owner", strconv.FormatInt(owner, 10))
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth(t *testing.T) {
	v := fakeValidator{"good": {ID: "1", OwnerID: 5, RateLimit: 10}}
	h := Auth(v)(ownerEcho())

	tests := []struct {
		name   string
		setup  func(*http.Request)
		path   string
		status int
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, "/api/v1/x", http.StatusOK},
		{"header", func(r *http.Request) { r.Header.Set("X-API-Key", "good") }, "/api/v1/x", http.StatusOK},
		{"query", func(r *http.Request) {}, "/api/v1/x?api_key=good", http.StatusOK},
		{"missing", func(r *http.Request) {}, "/api/v1/x", http.StatusUnauthorized},
		{"invalid", func(r *http.Request) { r.Header.Set("X-API-Key", "nope") }, "/api/v1/x", http.StatusUnauthorized},
		{"expired", func(r *http.Request) { r.Header.Set("X-API-Key", "expired") }, "/api/v1/x", http.StatusUnauthorized},
		{"backend error", func(r *http.Request) { r.Header.Set("X-API-Key", "broken") }, "/api/v1/x", http.StatusInternalServerError},
		{"health exempt", func(r *http.Request) {}, "/health/live", http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestTrustedOwner(t *testing.T) {
	h := TrustedOwner(ownerEcho())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
	req.Header.Set(OwnerHeader, "12")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Owner") != "12" {
		t.Errorf("status = %d, owner = %q", rec.Code, rec.Header().Get("X-Owner"))
	}

	for _, bad := range []string{"", "abc", "-3", "0"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
		req.Header.Set(OwnerHeader, bad)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("owner %q: status = %d, want 401", bad, rec.Code)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.New(time.Minute)
	defer limiter.Close()
	v := fakeValidator{"good": {ID: "1", OwnerID: 5, RateLimit: 2}}
	h := Auth(v)(RateLimit(limiter)(ownerEcho()))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/x", nil)
		req.Header.Set("X-API-Key", "good")
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS(DefaultCORSConfig("https://app.example"))(ownerEcho())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/documents/1/statistics", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Errorf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if rec.Header().Get("Access-Control-Max-Age") != "86400" {
		t.Errorf("max age = %q", rec.Header().Get("Access-Control-Max-Age"))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents/1/statistics", nil)
	req.Header.Set("Origin", "https://app.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "X-RateLimit-Remaining") {
		t.Errorf("expose headers = %q", rec.Header().Get("Access-Control-Expose-Headers"))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents/1/statistics", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("foreign origin should not be allowed")
	}
}
