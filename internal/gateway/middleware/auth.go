// Package middleware provides HTTP middleware for the public API including
// authentication, CORS, and rate limiting.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/logger"
)

// OwnerHeader names the caller when authentication is disabled.
const OwnerHeader = "X-User-ID"

type contextKey string

const (
	apiKeyInfoKey contextKey = "api_key_info"
	ownerKey      contextKey = "owner_id"
)

// KeyValidator resolves a raw API key; *apikey.Validator implements it.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error)
}

// Auth returns middleware that validates API keys from the request and
// records the key's owner on the context. Keys can be provided via
// Authorization: Bearer <key>, X-API-Key header, or the api_key query
// parameter. Health endpoints are exempt.
func Auth(validator KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}

			info, err := validator.Validate(r.Context(), key)
			if err != nil {
				switch {
				case errors.Is(err, apikey.ErrInvalidKey):
					writeError(w, http.StatusUnauthorized, "invalid api key")
				case errors.Is(err, apikey.ErrExpiredKey):
					writeError(w, http.StatusUnauthorized, "expired api key")
				default:
					logger.FromContext(r.Context()).Error("api key validation failed", "error", err)
					writeError(w, http.StatusInternalServerError, "authentication error")
				}
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyInfoKey, info)
			ctx = WithOwner(ctx, info.OwnerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TrustedOwner takes the owner from the X-User-ID header. It is installed
// instead of Auth when authentication is disabled, e.g. behind a proxy that
// has already authenticated the user.
func TrustedOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/health") {
			next.ServeHTTP(w, r)
			return
		}
		owner, err := strconv.ParseInt(r.Header.Get(OwnerHeader), 10, 64)
		if err != nil || owner <= 0 {
			writeError(w, http.StatusUnauthorized, "missing or invalid "+OwnerHeader)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
	})
}

// WithOwner stores the authenticated owner on ctx.
func WithOwner(ctx context.Context, ownerID int64) context.Context {
	ctx = context.WithValue(ctx, ownerKey, ownerID)
	return logger.WithOwnerID(ctx, ownerID)
}

// OwnerFromContext returns the owner set by Auth or TrustedOwner.
func OwnerFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ownerKey).(int64)
	return id, ok
}

// GetKeyInfo retrieves the validated KeyInfo from the request context.
func GetKeyInfo(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(apiKeyInfoKey).(*apikey.KeyInfo)
	return info
}

// extractAPIKey reads the API key from the request in priority order:
// Authorization: Bearer header, X-API-Key header, api_key query parameter.
func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
