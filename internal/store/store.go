// Package store implements the Event Store: the durable, append-only
// per-session event log plus its session/workspace caches, full-text and
// vector indices, and structured log mirror. It is backed by a single
// modernc.org/sqlite file in WAL mode, adapted from the teacher's
// file-JSON storage layer and grounded in the sqlite-vec pattern used
// elsewhere in the example pool for hand-rolled cosine-similarity search
// without a native vec extension.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	_ "modernc.org/sqlite"

	"github.com/mhismail3/tron-sub003/internal/logging"
	"github.com/mhismail3/tron-sub003/internal/metrics"
)

var tracer = otel.Tracer("sessioncore/store")

// Store is the process-wide Event Store. It is safe for concurrent use;
// sqlite's own locking, combined with WAL mode, serializes writers while
// letting readers proceed against the last checkpoint.
type Store struct {
	db      *sql.DB
	metrics *metrics.Metrics
}

// Option configures Open.
type Option func(*Store)

// WithMetrics attaches a metrics collector. Without one, the process-wide
// collector from metrics.New is used so the Store never panics on nil access.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Open initializes (creating if absent) the backing database at path,
// enables WAL journaling and foreign keys, and applies pending schema
// migrations. path may be ":memory:" for tests.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorageInit, path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer connection avoids SQLITE_BUSY under WAL

	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = NORMAL`,
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrStorageInit, p, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, metrics: metrics.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the shared database handle so sibling subsystems backed by
// the same single-file schema (the Blob Store) can operate against the
// events.db tables without opening a second connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// withTx runs fn inside a transaction, retrying on transient I/O errors
// (SQLITE_BUSY surfaces as a generic driver error here since the pure-Go
// driver does not expose sqlite3.ErrBusy) up to a small bound before
// classifying the failure as ErrStorageFull.
func (s *Store) withTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	ctx, span := tracer.Start(ctx, "store."+name)
	defer span.End()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, 5), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("begin tx: %w", err))
		}

		txErr := fn(tx)
		if txErr != nil {
			_ = tx.Rollback()
			if isConstraintErr(txErr) {
				return backoff.Permanent(txErr)
			}
			// Anything else is treated as a transient I/O condition and
			// retried within the backoff policy's bound.
			return txErr
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		return nil
	}, policy)

	if err != nil {
		if isConstraintErr(err) {
			s.metrics.StorageErrors.WithLabelValues("constraint_violation").Inc()
			logging.Component("store").Debug().Err(err).Str("op", name).Msg("constraint violation")
			return err
		}
		s.metrics.StorageErrors.WithLabelValues("storage_full").Inc()
		logging.Component("store").Debug().Err(err).Str("op", name).Int("attempts", attempt).Msg("storage op exhausted retries")
		return fmt.Errorf("%w: %s: %v", ErrStorageFull, name, err)
	}
	return nil
}

func isConstraintErr(err error) bool {
	return errors.Is(err, ErrConstraintViolation) || errors.Is(err, ErrCannotDelete) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAmbiguousPrefix)
}
