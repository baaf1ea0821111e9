// Package provider resolves documents and collections for an owner from the
// metadata database and reads their text from the upload directory.
package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/docstats/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/resilience"
)

// DocumentInfo is a row of the owner's document listing.
type DocumentInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CollectionInfo is a row of the owner's collection listing.
type CollectionInfo struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Documents int    `json:"documents"`
}

type docRef struct {
	id   int64
	path string
}

// Store implements the stats service's document and corpus providers.
type Store struct {
	db          *database.Client
	uploadDir   string
	maxBytes    int64
	concurrency int
	readTimeout time.Duration
	files       *fileCache
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewStore builds a Store. m may be nil.
func NewStore(db *database.Client, cfg config.StorageConfig, m *metrics.Metrics) *Store {
	concurrency := cfg.ReadConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Store{
		db:          db,
		uploadDir:   cfg.UploadDir,
		maxBytes:    cfg.MaxDocumentBytes,
		concurrency: concurrency,
		readTimeout: cfg.ReadTimeout,
		files:       newFileCache(cfg.TextCacheBytes),
		metrics:     m,
		logger:      slog.Default().With("component", "document-provider"),
	}
}

// Document returns the decoded text of docID if ownerID owns it. Missing and
// foreign documents are indistinguishable to the caller.
func (s *Store) Document(ctx context.Context, ownerID, docID int64) (string, error) {
	var path string
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT path FROM documents WHERE id = $1 AND user_id = $2`,
		docID, ownerID,
	).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("document %d not found or no access", docID))
	}
	if err != nil {
		return "", fmt.Errorf("looking up document %d: %w", docID, err)
	}
	return s.readText(ctx, path)
}

// OtherDocuments returns the owner's readable documents except exceptID,
// ordered by id. Unreadable files are skipped; blank ones are kept since
// they still count as corpus documents.
func (s *Store) OtherDocuments(ctx context.Context, ownerID, exceptID int64) ([]string, error) {
	refs, err := s.queryRefs(ctx,
		`SELECT id, path FROM documents WHERE user_id = $1 AND id <> $2 ORDER BY id`,
		ownerID, exceptID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents of owner %d: %w", ownerID, err)
	}
	return s.readMany(ctx, refs, false)
}

// Corpus returns every readable, non-blank document the owner has.
func (s *Store) Corpus(ctx context.Context, ownerID int64) ([]string, error) {
	refs, err := s.queryRefs(ctx,
		`SELECT id, path FROM documents WHERE user_id = $1 ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents of owner %d: %w", ownerID, err)
	}
	return s.readMany(ctx, refs, true)
}

// Collection returns the owner's readable, non-blank documents in a
// collection; members owned by anyone else are ignored. An absent
// collection is NotFound; one owned by someone else is Forbidden.
func (s *Store) Collection(ctx context.Context, ownerID, collectionID int64) ([]string, error) {
	var owner int64
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT user_id FROM collections WHERE id = $1`,
		collectionID,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("collection %d not found", collectionID))
	}
	if err != nil {
		return nil, fmt.Errorf("looking up collection %d: %w", collectionID, err)
	}
	if owner != ownerID {
		return nil, apperrors.Wrap(apperrors.ErrForbidden, fmt.Sprintf("collection %d belongs to another user", collectionID))
	}

	refs, err := s.queryRefs(ctx,
		`SELECT d.id, d.path
		 FROM collection_documents cd
		 JOIN documents d ON d.id = cd.document_id
		 WHERE cd.collection_id = $1 AND d.user_id = $2
		 ORDER BY d.id`,
		collectionID, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents of collection %d: %w", collectionID, err)
	}
	return s.readMany(ctx, refs, true)
}

// ListDocuments returns the owner's documents without reading them.
func (s *Store) ListDocuments(ctx context.Context, ownerID int64) ([]DocumentInfo, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, name FROM documents WHERE user_id = $1 ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	docs := make([]DocumentInfo, 0)
	for rows.Next() {
		var d DocumentInfo
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ListCollections returns the owner's collections with member counts.
func (s *Store) ListCollections(ctx context.Context, ownerID int64) ([]CollectionInfo, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT c.id, c.name, COUNT(cd.document_id)
		 FROM collections c
		 LEFT JOIN collection_documents cd ON cd.collection_id = c.id
		 WHERE c.user_id = $1
		 GROUP BY c.id, c.name
		 ORDER BY c.id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	cols := make([]CollectionInfo, 0)
	for rows.Next() {
		var c CollectionInfo
		if err := rows.Scan(&c.ID, &c.Name, &c.Documents); err != nil {
			return nil, fmt.Errorf("scanning collection row: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// CheckUploadDir reports whether the upload directory is usable.
func (s *Store) CheckUploadDir(context.Context) error {
	info, err := os.Stat(s.uploadDir)
	if err != nil {
		return fmt.Errorf("upload dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("upload dir %s is not a directory", s.uploadDir)
	}
	return nil
}

func (s *Store) queryRefs(ctx context.Context, query string, args ...any) ([]docRef, error) {
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []docRef
	for rows.Next() {
		var r docRef
		if err := rows.Scan(&r.id, &r.path); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// readMany reads refs concurrently, preserving their order in the result.
// Per-document failures are logged and skipped; only cancellation aborts.
func (s *Store) readMany(ctx context.Context, refs []docRef, skipBlank bool) ([]string, error) {
	texts := make([]string, len(refs))
	keep := make([]bool, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			text, err := s.readText(gctx, ref.path)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				reason := "unreadable"
				if errors.Is(err, apperrors.ErrDecodeFailure) {
					reason = "undecodable"
				}
				s.skipped(reason)
				s.logger.Warn("skipping document", "document_id", ref.id, "reason", reason, "error", err)
				return nil
			}
			if skipBlank && strings.TrimSpace(text) == "" {
				s.skipped("blank")
				return nil
			}
			texts[i] = text
			keep[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(refs))
	for i, ok := range keep {
		if ok {
			out = append(out, texts[i])
		}
	}
	return out, nil
}

// resolve makes path absolute, relative paths being under the upload dir,
// so cache keys match the names the watcher reports.
func (s *Store) resolve(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.uploadDir, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// readText loads and decodes one document file.
func (s *Store) readText(ctx context.Context, path string) (string, error) {
	full := s.resolve(path)
	if text, ok := s.files.get(full); ok {
		return text, nil
	}

	file, err := resilience.Within(ctx, s.readTimeout, func(context.Context) (rawFile, error) {
		data, info, err := readLimited(full, s.maxBytes)
		return rawFile{data: data, info: info}, err
	})
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return "", apperrors.Wrap(apperrors.ErrNotFound, "document file missing")
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			return "", apperrors.Wrap(apperrors.ErrTimeout, fmt.Sprintf("reading %s timed out", path))
		case ctx.Err() != nil:
			return "", ctx.Err()
		default:
			return "", fmt.Errorf("%w: %v", apperrors.ErrUnreadable, err)
		}
	}

	text, err := DecodeText(file.data)
	if err != nil {
		return "", err
	}
	if s.metrics != nil {
		s.metrics.DocumentsReadTotal.Inc()
	}
	s.files.put(full, text, file.info)
	return text, nil
}

var errTooLarge = errors.New("file exceeds size limit")

type rawFile struct {
	data []byte
	info os.FileInfo
}

func readLimited(path string, maxBytes int64) ([]byte, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return nil, nil, fmt.Errorf("%w: %d > %d bytes", errTooLarge, info.Size(), maxBytes)
	}
	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, nil, fmt.Errorf("%w: grew past %d bytes", errTooLarge, maxBytes)
	}
	return data, info, nil
}

func (s *Store) skipped(reason string) {
	if s.metrics != nil {
		s.metrics.DocumentsSkippedTotal.WithLabelValues(reason).Inc()
	}
}
