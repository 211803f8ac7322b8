package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mhismail3/tron-sub003/pkg/types"
)

// indexEvent extracts searchable text from ev's payload and inserts it
// into events_fts, then forwards to indexVectorPlaceholder so a caller
// that embeds asynchronously has a row to update. Runs inside the
// caller's append transaction so search never observes a half-written
// event.
func indexEvent(ctx context.Context, tx *sql.Tx, ev types.Event) error {
	text := extractSearchableText(ev)
	if text == "" {
		return nil
	}

	_, err := tx.ExecContext(ctx, `INSERT INTO events_fts (content, type, session_id, event_id) VALUES (?, ?, ?, ?)`,
		text, string(ev.Type), ev.SessionID, ev.ID)
	if err != nil {
		return fmt.Errorf("index fts: %w", err)
	}
	return nil
}

func extractSearchableText(ev types.Event) string {
	var parts []string
	switch ev.Type {
	case types.EventMessageUser:
		var p types.MessageUserPayload
		if err := json.Unmarshal(ev.Payload, &p); err == nil {
			for _, b := range p.Content {
				if b.Type == "text" {
					parts = append(parts, b.Text)
				}
			}
		}
	case types.EventMessageAssistant:
		var p types.MessageAssistantPayload
		if err := json.Unmarshal(ev.Payload, &p); err == nil {
			for _, b := range p.Content {
				switch b.Type {
				case "text":
					parts = append(parts, b.Text)
				case "thinking":
					parts = append(parts, b.Thinking)
				}
			}
		}
	case types.EventToolCall:
		var p types.ToolCallPayload
		if err := json.Unmarshal(ev.Payload, &p); err == nil {
			parts = append(parts, p.Name)
		}
	case types.EventToolResult:
		var p types.ToolResultPayload
		if err := json.Unmarshal(ev.Payload, &p); err == nil {
			parts = append(parts, p.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// FTSMatchParams filters FTS search.
type FTSMatchParams struct {
	Type      *types.EventType
	SessionID string
	Limit     int
	Offset    int
}

// Search tokenizes query into terms, quotes each to neutralize FTS5
// syntax punctuation, and combines them with OR, per spec.md §4.1.
func (s *Store) Search(ctx context.Context, query string, p FTSMatchParams) ([]types.FTSMatch, error) {
	ftsQuery := buildOrQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	sqlQuery := `SELECT event_id, bm25(events_fts) AS score FROM events_fts WHERE events_fts MATCH ?`
	args := []any{ftsQuery}

	if p.SessionID != "" {
		sqlQuery += ` AND session_id = ?`
		args = append(args, p.SessionID)
	}
	if p.Type != nil {
		sqlQuery += ` AND type = ?`
		args = append(args, string(*p.Type))
	}
	sqlQuery += ` ORDER BY score ASC`
	if p.Limit > 0 {
		sqlQuery += ` LIMIT ?`
		args = append(args, p.Limit)
		if p.Offset > 0 {
			sqlQuery += ` OFFSET ?`
			args = append(args, p.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: fts search: %v", ErrStorageCorrupt, err)
	}
	defer rows.Close()

	var out []types.FTSMatch
	for rows.Next() {
		var m types.FTSMatch
		if err := rows.Scan(&m.EventID, &m.BM25); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func buildOrQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ReplaceAll(t, `"`, `""`)
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}
