// Package blobstore implements content-addressed storage for oversized
// tool results (spec.md §4.5): insert-or-reuse by cryptographic hash, so
// a screenshot or large file body is written once regardless of how many
// tool.result events reference it.
package blobstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/mhismail3/tron-sub003/internal/logging"
	"github.com/mhismail3/tron-sub003/internal/metrics"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

// ErrNotFound is returned by Get when no blob matches the given id.
var ErrNotFound = fmt.Errorf("blobstore: not found")

// Store is a thin wrapper over the events.db blobs table. It shares the
// database handle with the Event Store rather than opening a second
// connection, since both live in the same single-file schema.
type Store struct {
	db      *sql.DB
	metrics *metrics.Metrics
}

// New wraps db for blob operations. Pass metrics.New() or a shared
// instance; a nil metrics.Metrics is never passed in by this core's
// wiring, matching the teacher's convention of constructing all
// collectors once at startup.
func New(db *sql.DB, m *metrics.Metrics) *Store {
	return &Store{db: db, metrics: m}
}

// Store computes bytes' content hash and inserts a new row only if the
// hash is unseen, returning the existing id on a dedup hit (I7: content
// is immutable, (hash, size) → id is a function).
func (s *Store) Store(ctx context.Context, content []byte, mimeType string) (string, error) {
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	var existingID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM blobs WHERE hash = ?`, hash).Scan(&existingID)
	if err == nil {
		s.metrics.BlobDedupeHits.Inc()
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("blobstore: lookup hash: %w", err)
	}

	id := newID()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blobs (id, hash, content, mime_type, size_original, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, hash, content, mimeType, len(content), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		// A concurrent inserter may have won the race between our SELECT
		// and this INSERT; re-resolve by hash rather than surfacing the
		// UNIQUE constraint violation to the caller.
		if existing, lookupErr := s.lookupByHash(ctx, hash); lookupErr == nil {
			return existing, nil
		}
		return "", fmt.Errorf("blobstore: insert: %w", err)
	}

	s.metrics.BlobBytesStored.Add(float64(len(content)))
	logging.Component("blobstore").Debug().Str("blob_id", id).Int("size", len(content)).Msg("blob stored")
	return id, nil
}

func (s *Store) lookupByHash(ctx context.Context, hash string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM blobs WHERE hash = ?`, hash).Scan(&id)
	return id, err
}

// Get returns the blob record for id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (types.Blob, error) {
	var b types.Blob
	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT id, hash, content, mime_type, size_original, created_at FROM blobs WHERE id = ?`, id).
		Scan(&b.ID, &b.Hash, &b.Content, &b.MimeType, &b.SizeOriginal, &createdAt)
	if err == sql.ErrNoRows {
		return types.Blob{}, ErrNotFound
	}
	if err != nil {
		return types.Blob{}, fmt.Errorf("blobstore: get: %w", err)
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return b, nil
}
