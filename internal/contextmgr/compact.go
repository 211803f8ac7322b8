package contextmgr

import (
	"context"
	"fmt"

	"github.com/mhismail3/tron-sub003/pkg/types"
)

// compactUserPrefix and compactAssistantAck are the synthetic message
// pair that replaces a summarized range (spec.md §4.3.1), matching the
// wording internal/reconstruct.Reconstruct substitutes for a
// compact.boundary event on replay, so a freshly-compacted live session
// and a reconstructed one read identically.
const (
	compactUserPrefix  = "[Context from earlier in this conversation]\n\n"
	compactAssistantAck = "I understand the previous context. I'll continue from here."
)

// PreviewCompactionResult is the output of PreviewCompaction.
type PreviewCompactionResult struct {
	TokensBefore      int
	TokensAfter       int
	CompressionRatio  float64
	PreservedTurns    int
	SummarizedTurns   int
	Summary           string
	ExtractedData     map[string]any
}

// ExecuteCompactionResult is the output of ExecuteCompaction.
type ExecuteCompactionResult struct {
	PreviewCompactionResult
	BoundaryEvent types.Event
}

// resolvePreserveRecentTurns maps the "use the default" sentinel
// (negative) to defaultPreserveRecentTurns, leaving 0 and any positive
// value untouched so an explicit preserveRecentTurns == 0 still reaches
// split() as "summarize everything" (spec.md §4.3.1).
func resolvePreserveRecentTurns(preserveRecentTurns int) int {
	if preserveRecentTurns < 0 {
		return defaultPreserveRecentTurns
	}
	return preserveRecentTurns
}

// split divides messages into (toSummarize, toPreserve) given
// preserveRecentTurns, where one turn is a (user, assistant) pair i.e.
// 2 messages. preserveCount == 0 summarizes everything; messages no
// longer than the preserve window is a no-op (spec.md §4.3.1 edge cases).
func split(messages []types.ProjectedMessage, preserveRecentTurns int) (toSummarize, toPreserve []types.ProjectedMessage) {
	preserveCount := preserveRecentTurns * 2
	if preserveCount < 0 {
		preserveCount = 0
	}
	if len(messages) <= preserveCount {
		return nil, messages
	}
	cut := len(messages) - preserveCount
	return messages[:cut], messages[cut:]
}

// PreviewCompaction runs the summarizer and reports the projected
// token savings without mutating the Manager's message list.
//
// preserveRecentTurns < 0 selects the default window
// (defaultPreserveRecentTurns); preserveRecentTurns == 0 is an explicit
// request to summarize the entire projection (spec.md §4.3.1, §8).
func (m *Manager) PreviewCompaction(ctx context.Context, summarizer Summarizer, preserveRecentTurns int) (PreviewCompactionResult, error) {
	preserveRecentTurns = resolvePreserveRecentTurns(preserveRecentTurns)

	m.mu.Lock()
	messages := append([]types.ProjectedMessage(nil), m.messages...)
	m.recomputeCacheLocked()
	systemPromptTokens := m.systemPromptTokensCache
	toolsTokens := m.toolsTokensCache
	m.mu.Unlock()

	toSummarize, toPreserve := split(messages, preserveRecentTurns)
	if len(toSummarize) == 0 {
		return PreviewCompactionResult{
			TokensBefore:     estimateMessagesTokens(messages),
			TokensAfter:      estimateMessagesTokens(messages),
			CompressionRatio: 1.0,
			PreservedTurns:   len(toPreserve) / 2,
		}, nil
	}

	result, err := summarizer.Summarize(ctx, toSummarize)
	if err != nil {
		return PreviewCompactionResult{}, fmt.Errorf("%w: %v", ErrSummarizationRejected, err)
	}
	if result.Narrative == "" {
		return PreviewCompactionResult{}, ErrSummarizationRejected
	}

	tokensBefore := estimateMessagesTokens(messages)
	preservedTokens := estimateMessagesTokens(toPreserve)
	summaryTokens := estimateTokens(result.Narrative)
	// tokensAfter = systemPromptTokens + toolsTokens + ⌈summaryChars/4⌉ + 50 + 50 + preservedMessagesTokens
	tokensAfter := systemPromptTokens + toolsTokens + summaryTokens + 50 + 50 + preservedTokens

	ratio := 1.0
	if tokensBefore > 0 {
		ratio = float64(tokensAfter) / float64(tokensBefore)
	}

	return PreviewCompactionResult{
		TokensBefore:     tokensBefore,
		TokensAfter:      tokensAfter,
		CompressionRatio: ratio,
		PreservedTurns:   len(toPreserve) / 2,
		SummarizedTurns:  len(toSummarize) / 2,
		Summary:          result.Narrative,
		ExtractedData:    result.ExtractedData,
	}, nil
}

// ExecuteCompaction runs PreviewCompaction, then — unless it was a
// no-op or the summarizer rejected the job — replaces the message
// projection with the synthetic summary pair plus the preserved tail,
// and persists a compact.boundary event via appendBoundary.
//
// preserveRecentTurns uses the same < 0 "use the default" sentinel as
// PreviewCompaction, resolved once up front so the split() call below
// and the preview's tokensAfter agree on the same preserve window.
func (m *Manager) ExecuteCompaction(ctx context.Context, summarizer Summarizer, preserveRecentTurns int, editedSummary string, appendBoundary AppendCompactBoundaryFunc) (ExecuteCompactionResult, error) {
	preserveRecentTurns = resolvePreserveRecentTurns(preserveRecentTurns)

	preview, err := m.PreviewCompaction(ctx, summarizer, preserveRecentTurns)
	if err != nil {
		return ExecuteCompactionResult{}, err
	}
	if preview.SummarizedTurns == 0 {
		return ExecuteCompactionResult{PreviewCompactionResult: preview}, nil
	}

	summary := preview.Summary
	if editedSummary != "" {
		summary = editedSummary
	}

	m.mu.Lock()
	_, toPreserve := split(m.messages, preserveRecentTurns)
	originalLen := len(m.messages)
	newMessages := make([]types.ProjectedMessage, 0, len(toPreserve)+2)
	newMessages = append(newMessages,
		types.ProjectedMessage{Role: types.RoleUser, Content: []types.ContentBlock{{Type: "text", Text: compactUserPrefix + summary}}},
		types.ProjectedMessage{Role: types.RoleAssistant, Content: []types.ContentBlock{{Type: "text", Text: compactAssistantAck}}},
	)
	newMessages = append(newMessages, toPreserve...)
	m.messages = newMessages
	m.lastApiContextTokens = nil
	m.mu.Unlock()

	var boundaryEvent types.Event
	if appendBoundary != nil {
		boundaryEvent, err = appendBoundary(ctx, types.CompactBoundaryPayload{
			Range:           types.CompactRange{From: 0, To: originalLen - len(toPreserve)},
			OriginalTokens:  preview.TokensBefore,
			CompactedTokens: preview.TokensAfter,
			Summary:         summary,
		})
		if err != nil {
			return ExecuteCompactionResult{}, fmt.Errorf("contextmgr: append compact.boundary: %w", err)
		}
	}

	preview.Summary = summary
	return ExecuteCompactionResult{PreviewCompactionResult: preview, BoundaryEvent: boundaryEvent}, nil
}
