package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mhismail3/tron-sub003/pkg/types"
)

// AppendLog persists one structured application log line so operators
// can query history for a session without grepping files. Rows come only
// from direct calls: the module installs no internal/logging sink hook
// that calls AppendLog.
func (s *Store) AppendLog(ctx context.Context, rec types.LogRecord) error {
	var sessionID, errMsg, data sql.NullString
	if rec.SessionID != "" {
		sessionID = sql.NullString{String: rec.SessionID, Valid: true}
	}
	if rec.ErrorMessage != "" {
		errMsg = sql.NullString{String: rec.ErrorMessage, Valid: true}
	}
	if len(rec.Data) > 0 {
		data = sql.NullString{String: string(rec.Data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (timestamp, level_num, level, component, session_id, message, error_message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(rec.Timestamp), rec.LevelNum, rec.Level, rec.Component, sessionID, rec.Message, errMsg, data,
	)
	if err != nil {
		return fmt.Errorf("%w: append log: %v", ErrStorageFull, err)
	}
	return nil
}

// GetLogsForSessionParams filters GetLogsForSession.
type GetLogsForSessionParams struct {
	Level  string
	Limit  int
	Offset int
}

// GetLogsForSession returns log rows for sessionId, newest first.
func (s *Store) GetLogsForSession(ctx context.Context, sessionID string, p GetLogsForSessionParams) ([]types.LogRecord, error) {
	query := `SELECT timestamp, level_num, level, component, session_id, message, error_message, data
		FROM logs WHERE session_id = ?`
	args := []any{sessionID}

	if p.Level != "" {
		query += ` AND level = ?`
		args = append(args, p.Level)
	}
	query += ` ORDER BY timestamp DESC`
	if p.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, p.Limit)
		if p.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, p.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	defer rows.Close()

	var out []types.LogRecord
	for rows.Next() {
		var rec types.LogRecord
		var ts string
		var sessionID, errMsg, data sql.NullString
		if err := rows.Scan(&ts, &rec.LevelNum, &rec.Level, &rec.Component, &sessionID, &rec.Message, &errMsg, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
		}
		rec.Timestamp = parseTime(ts)
		rec.SessionID = sessionID.String
		rec.ErrorMessage = errMsg.String
		if data.Valid {
			rec.Data = []byte(data.String)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
