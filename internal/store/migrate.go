package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one sequential schema step. golang-migrate/v4's driver
// registry only ships a cgo sqlite3 backend, incompatible with the
// pure-Go modernc.org/sqlite driver used here, so schema evolution is a
// small hand-rolled runner instead — see DESIGN.md.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial schema",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS workspaces (
				id   TEXT PRIMARY KEY,
				path TEXT NOT NULL UNIQUE
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id                          TEXT PRIMARY KEY,
				workspace_id                TEXT NOT NULL REFERENCES workspaces(id),
				working_directory           TEXT NOT NULL,
				latest_model                TEXT NOT NULL DEFAULT '',
				title                       TEXT NOT NULL DEFAULT '',
				head_event_id               TEXT NOT NULL DEFAULT '',
				turn_count                  INTEGER NOT NULL DEFAULT 0,
				total_input_tokens          INTEGER NOT NULL DEFAULT 0,
				total_output_tokens         INTEGER NOT NULL DEFAULT 0,
				total_cache_read_tokens     INTEGER NOT NULL DEFAULT 0,
				total_cache_creation_tokens INTEGER NOT NULL DEFAULT 0,
				total_cost                  REAL NOT NULL DEFAULT 0,
				summary_json                TEXT NOT NULL DEFAULT '{}',
				created_at                  TEXT NOT NULL,
				last_activity_at            TEXT NOT NULL,
				ended_at                    TEXT,
				compacting_since            TEXT,
				parent_session_id           TEXT,
				spawn_type                  TEXT,
				spawn_task                  TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(workspace_id)`,
			`CREATE TABLE IF NOT EXISTS events (
				id             TEXT PRIMARY KEY,
				session_id     TEXT NOT NULL REFERENCES sessions(id),
				sequence       INTEGER NOT NULL,
				parent_id      TEXT,
				timestamp      TEXT NOT NULL,
				type           TEXT NOT NULL,
				payload        TEXT NOT NULL,
				turn           INTEGER,
				tool_name      TEXT,
				tool_call_id   TEXT,
				input_tokens   INTEGER,
				output_tokens  INTEGER,
				run_id         TEXT,
				tombstoned     INTEGER NOT NULL DEFAULT 0,
				UNIQUE(session_id, sequence)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_events_session_sequence ON events(session_id, sequence)`,
			`CREATE INDEX IF NOT EXISTS idx_events_tool_call_id ON events(tool_call_id)`,
			`CREATE TABLE IF NOT EXISTS blobs (
				id            TEXT PRIMARY KEY,
				hash          TEXT NOT NULL UNIQUE,
				content       BLOB NOT NULL,
				mime_type     TEXT NOT NULL DEFAULT '',
				size_original INTEGER NOT NULL,
				created_at    TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS logs (
				timestamp     TEXT NOT NULL,
				level_num     INTEGER NOT NULL,
				level         TEXT NOT NULL,
				component     TEXT NOT NULL,
				session_id    TEXT,
				message       TEXT NOT NULL,
				error_message TEXT,
				data          TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_logs_session ON logs(session_id)`,
			`CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
				content, type UNINDEXED, session_id UNINDEXED, event_id UNINDEXED
			)`,
			`CREATE TABLE IF NOT EXISTS event_vectors (
				event_id  TEXT PRIMARY KEY REFERENCES events(id),
				embedding BLOB NOT NULL,
				dim       INTEGER NOT NULL
			)`,
		},
	},
}

// migrate applies every migration with version greater than the schema's
// current version, sequentially, each inside its own transaction.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("%w: create schema_version: %v", ErrStorageInit, err)
	}

	var current int
	row := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("%w: read schema version: %v", ErrStorageInit, err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("%w: migration %d (%s): %v", ErrStorageInit, m.version, m.name, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, m.version,
	); err != nil {
		return err
	}
	return tx.Commit()
}
