package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mhismail3/tron-sub003/internal/logging"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

// AppendParams describes one event to persist. ParentID is validated by
// the caller (normally the Linearizer) against the session's current
// head; the Event Store re-checks it inside the same transaction that
// assigns sequence, so a race between two writers on the same session is
// impossible once calls are serialized per session.
type AppendParams struct {
	SessionID string
	Type      types.EventType
	Payload   any // marshaled to JSON; or []byte for already-encoded payloads
	ParentID  string
	Turn      *int
	ToolName  *string
	ToolCallID *string
	InputTokens  *int
	OutputTokens *int
	RunID *string
}

// Append durably persists one event on sessionId's chain, enforcing
// I1-I4: parentId must equal the session's current head, sequence is
// assigned as head.sequence+1, and the session's aggregate caches and
// indices are updated in the same transaction.
func (s *Store) Append(ctx context.Context, p AppendParams) (types.Event, error) {
	if !types.IsKnownEventType(p.Type) {
		return types.Event{}, fmt.Errorf("%w: unknown event type %q", ErrConstraintViolation, p.Type)
	}

	var payloadJSON []byte
	switch v := p.Payload.(type) {
	case []byte:
		payloadJSON = v
	case json.RawMessage:
		payloadJSON = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return types.Event{}, fmt.Errorf("marshal payload: %w", err)
		}
		payloadJSON = b
	}

	var ev types.Event
	err := s.withTx(ctx, "append", func(tx *sql.Tx) error {
		var headEventID string
		var workspaceID string
		row := tx.QueryRowContext(ctx, `SELECT head_event_id, workspace_id FROM sessions WHERE id = ?`, p.SessionID)
		if err := row.Scan(&headEventID, &workspaceID); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("%w: session %s", ErrNotFound, p.SessionID)
			}
			return err
		}

		if headEventID != p.ParentID {
			return fmt.Errorf("%w: parentId %q does not match session head %q", ErrConstraintViolation, p.ParentID, headEventID)
		}

		var headSeq int64
		if err := tx.QueryRowContext(ctx, `SELECT sequence FROM events WHERE id = ?`, headEventID).Scan(&headSeq); err != nil {
			return fmt.Errorf("%w: head event %s missing: %v", ErrConstraintViolation, headEventID, err)
		}

		now := time.Now().UTC()
		ev = types.Event{
			ID:           newID(),
			SessionID:    p.SessionID,
			WorkspaceID:  workspaceID,
			ParentID:     &p.ParentID,
			Sequence:     headSeq + 1,
			Timestamp:    now,
			Type:         p.Type,
			Payload:      payloadJSON,
			Turn:         p.Turn,
			ToolName:     p.ToolName,
			ToolCallID:   p.ToolCallID,
			InputTokens:  p.InputTokens,
			OutputTokens: p.OutputTokens,
			RunID:        p.RunID,
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (
				id, session_id, sequence, parent_id, timestamp, type, payload,
				turn, tool_name, tool_call_id, input_tokens, output_tokens, run_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.SessionID, ev.Sequence, ev.ParentID, formatTime(now), string(ev.Type), string(ev.Payload),
			nullableInt(ev.Turn), nullableStr(ev.ToolName), nullableStr(ev.ToolCallID),
			nullableInt(ev.InputTokens), nullableInt(ev.OutputTokens), nullableStr(ev.RunID),
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET head_event_id = ?, last_activity_at = ? WHERE id = ?`,
			ev.ID, formatTime(now), p.SessionID); err != nil {
			return fmt.Errorf("update head: %w", err)
		}

		if err := applyAggregates(ctx, tx, ev); err != nil {
			return err
		}

		if err := indexEvent(ctx, tx, ev); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return types.Event{}, err
	}

	s.metrics.EventsAppended.WithLabelValues(string(p.Type)).Inc()
	logging.Component("store").Debug().Str("session_id", p.SessionID).Str("type", string(p.Type)).Int64("sequence", ev.Sequence).Msg("event appended")
	return ev, nil
}

// applyAggregates updates the session's derived cache columns per I8 and
// the token/cost cumulative fields described in spec.md §3. It runs
// inside Append's transaction.
func applyAggregates(ctx context.Context, tx *sql.Tx, ev types.Event) error {
	switch ev.Type {
	case types.EventMessageAssistant:
		var payload types.MessageAssistantPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("%w: decode message.assistant payload: %v", ErrConstraintViolation, err)
		}

		turnIncrement := 0
		if payload.StopReason != types.StopReasonToolUse {
			turnIncrement = 1
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE sessions SET
				turn_count = turn_count + ?,
				total_input_tokens = total_input_tokens + ?,
				total_output_tokens = total_output_tokens + ?,
				total_cache_read_tokens = total_cache_read_tokens + ?,
				total_cache_creation_tokens = total_cache_creation_tokens + ?,
				latest_model = ?
			WHERE id = ?`,
			turnIncrement,
			payload.TokenUsage.InputTokens, payload.TokenUsage.OutputTokens,
			payload.TokenUsage.CacheReadTokens, payload.TokenUsage.CacheCreationTokens,
			payload.Model, ev.SessionID,
		)
		return err

	case types.EventConfigModelSwitch:
		var payload types.ConfigModelSwitchPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("%w: decode config.model_switch payload: %v", ErrConstraintViolation, err)
		}
		_, err := tx.ExecContext(ctx, `UPDATE sessions SET latest_model = ? WHERE id = ?`, payload.NewModel, ev.SessionID)
		return err

	case types.EventSessionEnd:
		var payload types.SessionEndPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("%w: decode session.end payload: %v", ErrConstraintViolation, err)
		}
		_, err := tx.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE id = ?`, formatTime(ev.Timestamp), ev.SessionID)
		return err

	case types.EventToolResult:
		return foldDiffSummary(ctx, tx, ev)

	default:
		return nil
	}
}

// GetEventsBySessionParams filters and paginates getEventsBySession.
type GetEventsBySessionParams struct {
	Types          []types.EventType
	Turn           *int
	Limit          int
	Offset         int
	AfterEventID   string
	AfterTimestamp *time.Time
}

// GetEventsBySession returns events on sessionId's chain ordered by
// sequence ascending, per spec.md §4.1.
func (s *Store) GetEventsBySession(ctx context.Context, sessionID string, p GetEventsBySessionParams) ([]types.Event, error) {
	query := `SELECT id, session_id, sequence, parent_id, timestamp, type, payload,
		turn, tool_name, tool_call_id, input_tokens, output_tokens, run_id
		FROM events WHERE session_id = ?`
	args := []any{sessionID}

	if len(p.Types) > 0 {
		query += ` AND type IN (` + placeholders(len(p.Types)) + `)`
		for _, t := range p.Types {
			args = append(args, string(t))
		}
	}
	if p.Turn != nil {
		query += ` AND turn = ?`
		args = append(args, *p.Turn)
	}
	if p.AfterEventID != "" {
		query += ` AND sequence > (SELECT sequence FROM events WHERE id = ?)`
		args = append(args, p.AfterEventID)
	}
	if p.AfterTimestamp != nil {
		query += ` AND timestamp > ?`
		args = append(args, formatTime(*p.AfterTimestamp))
	}

	query += ` ORDER BY sequence ASC`
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

	return scanEvents(rows)
}

// GetAncestors returns the linear chain from the session root through
// eventId inclusive, in sequence order.
func (s *Store) GetAncestors(ctx context.Context, eventID string) ([]types.Event, error) {
	var sessionID string
	var targetSeq int64
	row := s.db.QueryRowContext(ctx, `SELECT session_id, sequence FROM events WHERE id = ?`, eventID)
	if err := row.Scan(&sessionID, &targetSeq); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: event %s", ErrNotFound, eventID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, sequence, parent_id, timestamp, type, payload,
		turn, tool_name, tool_call_id, input_tokens, output_tokens, run_id
		FROM events WHERE session_id = ? AND sequence <= ? ORDER BY sequence ASC`, sessionID, targetSeq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

var deletableEventTypes = map[types.EventType]bool{
	types.EventMessageUser:      true,
	types.EventMessageAssistant: true,
	types.EventToolResult:       true,
}

// DeleteMessage appends a message.deleted tombstone for targetEventId,
// after validating it exists, belongs to sessionId, is of a deletable
// type, and is not already tombstoned (I6).
func (s *Store) DeleteMessage(ctx context.Context, sessionID, targetEventID, reason string) (types.Event, error) {
	var target types.Event
	var alreadyTombstoned bool

	err := s.withTx(ctx, "delete_message", func(tx *sql.Tx) error {
		var tombstoned int
		row := tx.QueryRowContext(ctx, `SELECT id, session_id, sequence, parent_id, timestamp, type, payload, turn, tool_call_id, tombstoned
			FROM events WHERE id = ? AND session_id = ?`, targetEventID, sessionID)

		var parentID sql.NullString
		var tsRaw string
		var turn sql.NullInt64
		var toolCallID sql.NullString
		err := row.Scan(&target.ID, &target.SessionID, &target.Sequence, &parentID, &tsRaw, &target.Type, &target.Payload, &turn, &toolCallID, &tombstoned)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: event %s in session %s", ErrNotFound, targetEventID, sessionID)
		}
		if err != nil {
			return err
		}
		target.Timestamp = parseTime(tsRaw)
		if turn.Valid {
			t := int(turn.Int64)
			target.Turn = &t
		}

		if !deletableEventTypes[target.Type] {
			return fmt.Errorf("%w: event type %q cannot be deleted", ErrCannotDelete, target.Type)
		}
		if tombstoned != 0 {
			alreadyTombstoned = true
			return fmt.Errorf("%w: event %s already deleted", ErrCannotDelete, targetEventID)
		}

		var headEventID, workspaceID string
		if err := tx.QueryRowContext(ctx, `SELECT head_event_id, workspace_id FROM sessions WHERE id = ?`, sessionID).Scan(&headEventID, &workspaceID); err != nil {
			return err
		}
		var headSeq int64
		if err := tx.QueryRowContext(ctx, `SELECT sequence FROM events WHERE id = ?`, headEventID).Scan(&headSeq); err != nil {
			return err
		}

		payload := types.MessageDeletedPayload{
			TargetEventID: target.ID,
			TargetType:    target.Type,
			TargetTurn:    target.Turn,
			Reason:        reason,
		}
		payloadJSON, err := json.Marshal(payload)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		tombstone := types.Event{
			ID:          newID(),
			SessionID:   sessionID,
			WorkspaceID: workspaceID,
			ParentID:    &headEventID,
			Sequence:    headSeq + 1,
			Timestamp:   now,
			Type:        types.EventMessageDeleted,
			Payload:     payloadJSON,
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (id, session_id, sequence, parent_id, timestamp, type, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			tombstone.ID, tombstone.SessionID, tombstone.Sequence, tombstone.ParentID, formatTime(now), string(tombstone.Type), string(tombstone.Payload),
		); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET head_event_id = ?, last_activity_at = ? WHERE id = ?`,
			tombstone.ID, formatTime(now), sessionID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE events SET tombstoned = 1 WHERE id = ?`, targetEventID); err != nil {
			return err
		}

		if err := indexEvent(ctx, tx, tombstone); err != nil {
			return err
		}

		target = tombstone
		return nil
	})
	if err != nil {
		return types.Event{}, err
	}

	_ = alreadyTombstoned
	s.metrics.EventsAppended.WithLabelValues(string(types.EventMessageDeleted)).Inc()
	return target, nil
}

func scanEvents(rows *sql.Rows) ([]types.Event, error) {
	var out []types.Event
	for rows.Next() {
		var ev types.Event
		var parentID sql.NullString
		var tsRaw string
		var turn, inputTokens, outputTokens sql.NullInt64
		var toolName, toolCallID, runID sql.NullString

		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Sequence, &parentID, &tsRaw, &ev.Type, &ev.Payload,
			&turn, &toolName, &toolCallID, &inputTokens, &outputTokens, &runID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
		}

		ev.Timestamp = parseTime(tsRaw)
		if parentID.Valid {
			ev.ParentID = &parentID.String
		}
		if turn.Valid {
			v := int(turn.Int64)
			ev.Turn = &v
		}
		if toolName.Valid {
			ev.ToolName = &toolName.String
		}
		if toolCallID.Valid {
			ev.ToolCallID = &toolCallID.String
		}
		if inputTokens.Valid {
			v := int(inputTokens.Int64)
			ev.InputTokens = &v
		}
		if outputTokens.Valid {
			v := int(outputTokens.Int64)
			ev.OutputTokens = &v
		}
		if runID.Valid {
			ev.RunID = &runID.String
		}

		out = append(out, ev)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "?"
	}
	return s
}

func nullableInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullableStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
