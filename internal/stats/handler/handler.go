package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/auth/apikey"
	gwmw "github.com/Adithya-Monish-Kumar-K/docstats/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/provider"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/docstats/internal/stats/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/docstats/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/logger"
)

// maxDecodeBody bounds POST /api/v1/huffman/decode bodies.
const maxDecodeBody = 64 << 20

type StatsService interface {
	DocumentStatistics(ctx context.Context, ownerID, docID int64) (*stats.DocumentStatistics, error)
	CollectionStatistics(ctx context.Context, ownerID, collectionID int64) (*stats.CollectionStatistics, error)
	HuffmanEncode(ctx context.Context, ownerID, docID int64) (*stats.HuffmanEncoding, error)
	HuffmanDecode(ctx context.Context, ownerID int64, encoded string, codeTable map[string]string) (*stats.HuffmanDecoding, error)
}

// Library lists what an owner can compute statistics for.
type Library interface {
	ListDocuments(ctx context.Context, ownerID int64) ([]provider.DocumentInfo, error)
	ListCollections(ctx context.Context, ownerID int64) ([]provider.CollectionInfo, error)
}

type CacheAdmin interface {
	Stats(ctx context.Context) cache.Stats
	Invalidate(ctx context.Context) (int64, error)
}

type KeyManager interface {
	CreateKey(ctx context.Context, name string, ownerID int64, rateLimit int, expiresAt *time.Time) (string, error)
	ListKeys(ctx context.Context, ownerID int64) ([]apikey.KeyInfo, error)
}

type Handler struct {
	service StatsService
	library Library
	cache   CacheAdmin
	keys    KeyManager
	logger  *slog.Logger
}

// New builds the HTTP handler. cache and keys may be nil; their routes then
// answer 503.
func New(service StatsService, library Library, cacheAdmin CacheAdmin, keys KeyManager) *Handler {
	return &Handler{
		service: service,
		library: library,
		cache:   cacheAdmin,
		keys:    keys,
		logger:  slog.Default().With("component", "stats-handler"),
	}
}

// DocumentStatistics handles GET /api/v1/documents/{id}/statistics.
func (h *Handler) DocumentStatistics(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	result, err := h.service.DocumentStatistics(r.Context(), owner, id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// CollectionStatistics handles GET /api/v1/collections/{id}/statistics.
func (h *Handler) CollectionStatistics(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	result, err := h.service.CollectionStatistics(r.Context(), owner, id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HuffmanEncode handles GET /api/v1/documents/{id}/huffman.
func (h *Handler) HuffmanEncode(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}
	result, err := h.service.HuffmanEncode(r.Context(), owner, id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HuffmanDecode handles POST /api/v1/huffman/decode with a body shaped like
// the encode response.
func (h *Handler) HuffmanDecode(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req struct {
		EncodedText string            `json:"encoded_text"`
		CodeTable   map[string]string `json:"code_table"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDecodeBody)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := h.service.HuffmanDecode(r.Context(), owner, req.EncodedText, req.CodeTable)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	docs, err := h.library.ListDocuments(r.Context(), owner)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if docs == nil {
		docs = []provider.DocumentInfo{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "total": len(docs)})
}

func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	cols, err := h.library.ListCollections(r.Context(), owner)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if cols == nil {
		cols = []provider.CollectionInfo{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"collections": cols, "total": len(cols)})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	s := h.cache.Stats(r.Context())
	total := s.Hits + s.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(s.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"enabled":         s.Enabled,
		"hits":            s.Hits,
		"misses":          s.Misses,
		"total":           total,
		"entries":         s.Entries,
		"circuit_breaker": s.Breaker,
		"breaker_opened":  s.Counters.Opened,
		"breaker_reject":  s.Counters.Rejected,
		"hit_rate":        fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// CreateAPIKey issues a new key for the calling owner.
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	if h.keys == nil {
		h.writeError(w, http.StatusServiceUnavailable, "key management is disabled")
		return
	}
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req struct {
		Name      string `json:"name"`
		RateLimit int    `json:"rate_limit"`
		ExpiresIn string `json:"expires_in,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.RateLimit <= 0 {
		req.RateLimit = 100
	}
	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid expires_in duration")
			return
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	key, err := h.keys.CreateKey(r.Context(), req.Name, owner, req.RateLimit, expiresAt)
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to create api key", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create api key")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{
		"api_key": key,
		"name":    req.Name,
		"message": "store this key securely, it cannot be retrieved again",
	})
}

func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	if h.keys == nil {
		h.writeError(w, http.StatusServiceUnavailable, "key management is disabled")
		return
	}
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	keys, err := h.keys.ListKeys(r.Context(), owner)
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to list api keys", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list api keys")
		return
	}
	if keys == nil {
		keys = []apikey.KeyInfo{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	owner, ok := gwmw.OwnerFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated")
	}
	return owner, ok
}

func (h *Handler) ownerAndID(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	owner, ok := h.owner(w, r)
	if !ok {
		return 0, 0, false
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, 0, false
	}
	return owner, id, true
}

// writeAppError renders err with the status its AppError carries. Messages
// of internal failures are not exposed.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		h.writeError(w, status, "internal error")
		return
	}
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeError(w, status, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
