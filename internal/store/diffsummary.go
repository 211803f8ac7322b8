package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/mhismail3/tron-sub003/pkg/types"
)

// foldDiffSummary is the supplemented session-diff feature (SPEC_FULL
// F.3): when an Edit-family tool's tool.result carries non-durable
// before/after content, it computes a line-level diff and folds the
// addition/deletion/file counts into the session's Summary cache, the
// way the teacher's tool package computes diff metadata for its own
// tool_end event enrichment.
func foldDiffSummary(ctx context.Context, tx *sql.Tx, ev types.Event) error {
	var payload types.ToolResultPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("%w: decode tool.result payload: %v", ErrConstraintViolation, err)
	}
	if payload.BeforeContent == "" && payload.AfterContent == "" {
		return nil
	}
	if payload.BeforeContent == payload.AfterContent {
		return nil
	}

	additions, deletions := diffLineCounts(payload.BeforeContent, payload.AfterContent)

	var summaryJSON string
	if err := tx.QueryRowContext(ctx, `SELECT summary_json FROM sessions WHERE id = ?`, ev.SessionID).Scan(&summaryJSON); err != nil {
		return fmt.Errorf("read summary for fold: %w", err)
	}

	var summary types.Summary
	if summaryJSON != "" {
		_ = json.Unmarshal([]byte(summaryJSON), &summary)
	}

	summary.Additions += additions
	summary.Deletions += deletions

	found := false
	for i := range summary.Diffs {
		if summary.Diffs[i].Path == payload.DiffPath {
			summary.Diffs[i].Additions += additions
			summary.Diffs[i].Deletions += deletions
			found = true
			break
		}
	}
	if !found && payload.DiffPath != "" {
		summary.Diffs = append(summary.Diffs, types.FileDiff{Path: payload.DiffPath, Additions: additions, Deletions: deletions})
		summary.Files = len(summary.Diffs)
	}

	out, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE sessions SET summary_json = ? WHERE id = ?`, string(out), ev.SessionID)
	return err
}

// diffLineCounts mirrors the teacher's buildDiffMetadata line-counting
// logic using the same diffmatchpatch line-mode diff.
func diffLineCounts(before, after string) (additions, deletions int) {
	if before == after {
		return 0, 0
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			deletions += countLines(d.Text)
		}
	}
	return additions, deletions
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
