package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mhismail3/tron-sub003/internal/logging"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

// CreateSessionParams describes a new session, per spec.md §4.1.
type CreateSessionParams struct {
	WorkspacePath    string
	WorkingDirectory string
	Model            string
	Provider         string
	Title            string
	Tags             []string
	SystemPrompt     string
	ParentSessionID  *string
	SpawnType        *types.SpawnType
	SpawnTask        *string
}

// CreateSession atomically ensures the workspace row exists, mints a
// session id, and appends the session.start root event at sequence 0.
func (s *Store) CreateSession(ctx context.Context, p CreateSessionParams) (types.Session, types.Event, error) {
	var sess types.Session
	var root types.Event

	err := s.withTx(ctx, "create_session", func(tx *sql.Tx) error {
		// The root event row references the session row inserted after it;
		// check foreign keys at commit instead of per statement.
		if _, err := tx.ExecContext(ctx, `PRAGMA defer_foreign_keys = ON`); err != nil {
			return err
		}

		workspaceID, err := ensureWorkspace(ctx, tx, p.WorkspacePath)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		sessionID := newID()

		payload := types.SessionStartPayload{
			WorkingDirectory: p.WorkingDirectory,
			Model:            p.Model,
			Provider:         p.Provider,
			Title:            p.Title,
			SystemPrompt:     p.SystemPrompt,
			Tags:             p.Tags,
		}
		payloadJSON, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal session.start payload: %w", err)
		}

		eventID := newID()
		root = types.Event{
			ID:          eventID,
			SessionID:   sessionID,
			WorkspaceID: workspaceID,
			ParentID:    nil,
			Sequence:    0,
			Timestamp:   now,
			Type:        types.EventSessionStart,
			Payload:     payloadJSON,
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (id, session_id, sequence, parent_id, timestamp, type, payload)
			VALUES (?, ?, 0, NULL, ?, ?, ?)`,
			root.ID, root.SessionID, formatTime(root.Timestamp), string(root.Type), string(root.Payload),
		); err != nil {
			return fmt.Errorf("insert root event: %w", err)
		}

		if err := indexEvent(ctx, tx, root); err != nil {
			return err
		}

		sess = types.Session{
			ID:               sessionID,
			WorkspaceID:      workspaceID,
			WorkingDirectory: p.WorkingDirectory,
			Title:            p.Title,
			LatestModel:      p.Model,
			HeadEventID:      eventID,
			CreatedAt:        now,
			LastActivityAt:   now,
			ParentSessionID:  p.ParentSessionID,
			SpawnType:        p.SpawnType,
			SpawnTask:        p.SpawnTask,
		}

		var parentID, spawnType, spawnTask sql.NullString
		if p.ParentSessionID != nil {
			parentID = sql.NullString{String: *p.ParentSessionID, Valid: true}
		}
		if p.SpawnType != nil {
			spawnType = sql.NullString{String: string(*p.SpawnType), Valid: true}
		}
		if p.SpawnTask != nil {
			spawnTask = sql.NullString{String: *p.SpawnTask, Valid: true}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (
				id, workspace_id, working_directory, latest_model, title, head_event_id,
				created_at, last_activity_at, parent_session_id, spawn_type, spawn_task
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, sess.WorkspaceID, sess.WorkingDirectory, sess.LatestModel, sess.Title, sess.HeadEventID,
			formatTime(now), formatTime(now), parentID, spawnType, spawnTask,
		); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		return nil
	})
	if err != nil {
		return types.Session{}, types.Event{}, err
	}

	s.metrics.EventsAppended.WithLabelValues(string(types.EventSessionStart)).Inc()
	logging.Component("store").Debug().Str("session_id", sess.ID).Msg("session created")
	return sess, root, nil
}

// GetSession looks up a session by exact id or by a unique prefix.
// Returns ErrNotFound if nothing matches, ErrAmbiguousPrefix if more than
// one session shares the prefix.
func (s *Store) GetSession(ctx context.Context, idOrPrefix string) (types.Session, error) {
	row := s.db.QueryRowContext(ctx, sessionSelectColumns+` WHERE id = ?`, idOrPrefix)
	sess, err := scanSession(row)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.Session{}, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}

	rows, err := s.db.QueryContext(ctx, sessionSelectColumns+` WHERE id LIKE ? || '%' LIMIT 2`, idOrPrefix)
	if err != nil {
		return types.Session{}, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	defer rows.Close()

	var matches []types.Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return types.Session{}, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
		}
		matches = append(matches, sess)
	}

	switch len(matches) {
	case 0:
		return types.Session{}, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return types.Session{}, ErrAmbiguousPrefix
	}
}

// UpdateLatestModel updates the session's cached latest-model column
// only; it does not create an event — callers persist config.model_switch
// through the Linearizer.
func (s *Store) UpdateLatestModel(ctx context.Context, sessionID, model string) error {
	return s.withTx(ctx, "update_latest_model", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE sessions SET latest_model = ? WHERE id = ?`, model, sessionID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

const sessionSelectColumns = `SELECT
	id, workspace_id, working_directory, latest_model, title, head_event_id,
	turn_count, total_input_tokens, total_output_tokens, total_cache_read_tokens,
	total_cache_creation_tokens, total_cost, summary_json, created_at, last_activity_at,
	ended_at, compacting_since, parent_session_id, spawn_type, spawn_task
	FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row *sql.Row) (types.Session, error) {
	return scanSessionGeneric(row)
}

func scanSessionRows(rows *sql.Rows) (types.Session, error) {
	return scanSessionGeneric(rows)
}

func scanSessionGeneric(r rowScanner) (types.Session, error) {
	var sess types.Session
	var createdAt, lastActivity string
	var endedAt, compactingSince, parentSessionID, spawnType, spawnTask sql.NullString
	var summaryJSON string

	err := r.Scan(
		&sess.ID, &sess.WorkspaceID, &sess.WorkingDirectory, &sess.LatestModel, &sess.Title, &sess.HeadEventID,
		&sess.TurnCount, &sess.TotalInputTokens, &sess.TotalOutputTokens, &sess.TotalCacheReadTokens,
		&sess.TotalCacheCreationTokens, &sess.TotalCost, &summaryJSON, &createdAt, &lastActivity,
		&endedAt, &compactingSince, &parentSessionID, &spawnType, &spawnTask,
	)
	if err != nil {
		return types.Session{}, err
	}

	sess.CreatedAt = parseTime(createdAt)
	sess.LastActivityAt = parseTime(lastActivity)
	if endedAt.Valid {
		t := parseTime(endedAt.String)
		sess.EndedAt = &t
	}
	if compactingSince.Valid {
		t := parseTime(compactingSince.String)
		sess.CompactingSince = &t
	}
	if parentSessionID.Valid {
		sess.ParentSessionID = &parentSessionID.String
	}
	if spawnType.Valid {
		st := types.SpawnType(spawnType.String)
		sess.SpawnType = &st
	}
	if spawnTask.Valid {
		sess.SpawnTask = &spawnTask.String
	}
	if summaryJSON != "" {
		_ = json.Unmarshal([]byte(summaryJSON), &sess.Summary)
	}

	return sess, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
