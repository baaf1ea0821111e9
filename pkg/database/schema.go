package database

import (
	"context"
	"fmt"
	"strings"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id      BIGSERIAL PRIMARY KEY,
		name    TEXT NOT NULL,
		path    TEXT NOT NULL,
		user_id BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_user ON documents (user_id)`,
	`CREATE TABLE IF NOT EXISTS collections (
		id      BIGSERIAL PRIMARY KEY,
		name    TEXT NOT NULL,
		user_id BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS collection_documents (
		collection_id BIGINT NOT NULL REFERENCES collections (id) ON DELETE CASCADE,
		document_id   BIGINT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
		PRIMARY KEY (collection_id, document_id)
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id         BIGSERIAL PRIMARY KEY,
		key_hash   TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL,
		user_id    BIGINT NOT NULL,
		rate_limit INTEGER NOT NULL DEFAULT 60,
		is_active  BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          BIGSERIAL PRIMARY KEY,
		data        JSONB NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables the service reads and writes if they are
// missing. The sqlite3 variant is derived from the postgres DDL.
func (c *Client) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if c.Driver == DriverSQLite {
			stmt = sqliteDDL(stmt)
		}
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

func sqliteDDL(stmt string) string {
	r := strings.NewReplacer(
		"BIGSERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"TIMESTAMPTZ", "TIMESTAMP",
		"DEFAULT NOW()", "DEFAULT CURRENT_TIMESTAMP",
		"JSONB", "TEXT",
	)
	return r.Replace(stmt)
}
