// Package apikey maps API keys to the user whose documents and collections
// they may read. Only the SHA-256 digest of a key is stored.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/database"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

// KeyPrefix starts every issued key so leaked keys are easy to grep for.
const KeyPrefix = "dsk_"

// validCacheTTL bounds how long a revocation made by another process can go
// unnoticed.
const validCacheTTL = 30 * time.Second

const keyColumns = `id, name, user_id, rate_limit, is_active, created_at, expires_at`

// KeyInfo describes a key. OwnerID is the user whose documents the key may
// read; a RateLimit of zero means unlimited.
type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	OwnerID   int64      `json:"owner_id"`
	RateLimit int        `json:"rate_limit"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type cachedKey struct {
	info    KeyInfo
	fetched time.Time
}

// Validator issues, validates and revokes keys stored in api_keys.
type Validator struct {
	db     *database.Client
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	valid map[string]cachedKey
}

func NewValidator(db *database.Client) *Validator {
	return &Validator{
		db:     db,
		now:    time.Now,
		logger: slog.Default().With("component", "apikey"),
		valid:  make(map[string]cachedKey),
	}
}

// Validate resolves a raw key. It fails with ErrInvalidKey for unknown or
// revoked keys and ErrExpiredKey once expires_at has passed.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	hash := HashKey(rawKey)
	now := v.now()

	info, ok := v.cached(hash, now)
	if !ok {
		row := v.db.DB.QueryRowContext(ctx,
			`SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1 AND is_active = TRUE`, hash)
		k, err := scanKey(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidKey
		}
		if err != nil {
			return nil, fmt.Errorf("looking up api key: %w", err)
		}
		info = k
		v.mu.Lock()
		v.valid[hash] = cachedKey{info: info, fetched: now}
		v.mu.Unlock()
	}

	if info.ExpiresAt != nil && !info.ExpiresAt.After(now) {
		return nil, ErrExpiredKey
	}
	return &info, nil
}

func (v *Validator) cached(hash string, now time.Time) (KeyInfo, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.valid[hash]
	if !ok {
		return KeyInfo{}, false
	}
	if now.Sub(c.fetched) > validCacheTTL {
		delete(v.valid, hash)
		return KeyInfo{}, false
	}
	return c.info, true
}

// CreateKey issues a key for ownerID and returns it. The raw key cannot be
// recovered later.
func (v *Validator) CreateKey(ctx context.Context, name string, ownerID int64, rateLimit int, expiresAt *time.Time) (string, error) {
	if ownerID <= 0 {
		return "", fmt.Errorf("creating api key: invalid owner %d", ownerID)
	}
	if rateLimit < 0 {
		rateLimit = 0
	}
	raw := KeyPrefix + rand.Text()

	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: expiresAt.UTC(), Valid: true}
	}
	_, err := v.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, user_id, rate_limit, is_active, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, TRUE, $5, $6)`,
		HashKey(raw), name, ownerID, rateLimit, v.now().UTC(), expiry,
	)
	if err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}
	v.logger.Info("api key created", "name", name, "owner_id", ownerID, "rate_limit", rateLimit)
	return raw, nil
}

// RevokeKey deactivates a key. Unknown keys yield ErrInvalidKey.
func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	hash := HashKey(rawKey)
	res, err := v.db.DB.ExecContext(ctx, `UPDATE api_keys SET is_active = FALSE WHERE key_hash = $1 AND is_active = TRUE`, hash)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	v.mu.Lock()
	delete(v.valid, hash)
	v.mu.Unlock()
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInvalidKey
	}
	v.logger.Info("api key revoked")
	return nil
}

// ListKeys returns ownerID's active keys, newest first.
func (v *Validator) ListKeys(ctx context.Context, ownerID int64) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys
		 WHERE user_id = $1 AND is_active = TRUE
		 ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	keys := []KeyInfo{}
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("listing api keys: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(s scanner) (KeyInfo, error) {
	var (
		k       KeyInfo
		expires sql.NullTime
	)
	if err := s.Scan(&k.ID, &k.Name, &k.OwnerID, &k.RateLimit, &k.IsActive, &k.CreatedAt, &expires); err != nil {
		return KeyInfo{}, err
	}
	if expires.Valid {
		t := expires.Time
		k.ExpiresAt = &t
	}
	return k, nil
}

// HashKey returns the hex SHA-256 digest stored for a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
