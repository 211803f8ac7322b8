package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mhismail3/tron-sub003/internal/workspace"
)

// ensureWorkspace resolves workspacePath to its canonical id and inserts
// the workspaces row if absent, returning the id either way.
func ensureWorkspace(ctx context.Context, tx *sql.Tx, workspacePath string) (string, error) {
	id, canonical, err := workspace.CanonicalID(workspacePath)
	if err != nil {
		return "", fmt.Errorf("canonicalize workspace path: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO workspaces (id, path) VALUES (?, ?) ON CONFLICT(path) DO NOTHING`,
		id, canonical,
	)
	if err != nil {
		return "", fmt.Errorf("upsert workspace: %w", err)
	}
	return id, nil
}
