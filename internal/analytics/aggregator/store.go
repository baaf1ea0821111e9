// Package aggregator persists snapshots of the analytics aggregate in the
// metadata database so history survives restarts of the analytics service.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/database"
)

// DefaultRetain keeps a day of minutely snapshots.
const DefaultRetain = 1440

// Store reads and writes analytics_snapshots.
type Store struct {
	db     *database.Client
	retain int
	now    func() time.Time
	logger *slog.Logger
}

// NewStore keeps at most retain snapshots; retain <= 0 uses DefaultRetain.
func NewStore(db *database.Client, retain int) *Store {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Store{
		db:     db,
		retain: retain,
		now:    time.Now,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// SaveSnapshot appends stats and prunes snapshots beyond the retention
// count in the same transaction.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	var pruned int64
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
			string(data), s.now().UTC()); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM analytics_snapshots WHERE id NOT IN (
				SELECT id FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1)`,
			s.retain)
		if err != nil {
			return err
		}
		pruned, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	s.logger.Info("snapshot saved", "total_computations", stats.TotalComputations, "pruned", pruned)
	return nil
}

// LatestSnapshot returns nil, nil before the first snapshot.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.Snapshot, error) {
	snaps, err := s.ListSnapshots(ctx, 1)
	if err != nil || len(snaps) == 0 {
		return nil, err
	}
	return &snaps[0], nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows that no
// longer decode are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.Snapshot, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, data, captured_at FROM analytics_snapshots
		 ORDER BY captured_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []analytics.Snapshot{}
	for rows.Next() {
		var (
			snap analytics.Snapshot
			data string
		)
		if err := rows.Scan(&snap.ID, &data, &snap.CapturedAt); err != nil {
			return nil, fmt.Errorf("listing snapshots: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &snap.Stats); err != nil {
			s.logger.Warn("skipping undecodable snapshot", "id", snap.ID, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// StartPeriodicSave snapshots agg every interval while it is changing, and
// once more when ctx ends.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	lastTotal := int64(-1)
	if latest, err := s.LatestSnapshot(ctx); err == nil && latest != nil {
		lastTotal = latest.Stats.TotalComputations
	}
	save := func(ctx context.Context) {
		stats := agg.Stats()
		if stats.TotalComputations == lastTotal {
			return
		}
		if err := s.SaveSnapshot(ctx, stats); err != nil {
			s.logger.Error("snapshot failed", "error", err)
			return
		}
		lastTotal = stats.TotalComputations
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				save(ctx)
			case <-ctx.Done():
				final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				save(final)
				cancel()
				return
			}
		}
	}()
	s.logger.Info("periodic snapshots started", "interval", interval, "retain", s.retain)
}

var _ analytics.SnapshotLister = (*Store)(nil)
