package reconstruct

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhismail3/tron-sub003/internal/store"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

func newTestSession(t *testing.T) (*store.Store, types.Session) {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	sess, _, err := s.CreateSession(context.Background(), store.CreateSessionParams{
		WorkspacePath: "/tmp/proj", WorkingDirectory: "/tmp/proj", Model: "claude-sonnet-4-20250514", Provider: "anthropic",
	})
	require.NoError(t, err)
	return s, sess
}

func appendEvent(t *testing.T, s *store.Store, sess *types.Session, typ types.EventType, payload any) types.Event {
	t.Helper()
	ev, err := s.Append(context.Background(), store.AppendParams{
		SessionID: sess.ID, Type: typ, Payload: payload, ParentID: sess.HeadEventID,
	})
	require.NoError(t, err)
	sess.HeadEventID = ev.ID
	return ev
}

func TestReconstruct_ProjectsUserAndAssistantMessages(t *testing.T) {
	s, sess := newTestSession(t)

	appendEvent(t, s, &sess, types.EventMessageUser, types.MessageUserPayload{
		Content: []types.ContentBlock{{Type: "text", Text: "hello"}}, Turn: 1,
	})
	appendEvent(t, s, &sess, types.EventMessageAssistant, types.MessageAssistantPayload{
		Content: []types.ContentBlock{{Type: "text", Text: "hi there"}}, Turn: 1,
		Model: "claude-sonnet-4-20250514", StopReason: "end_turn",
	})

	result, err := Reconstruct(context.Background(), s, sess.ID)
	require.NoError(t, err)
	require.Len(t, result.Messages, 2)
	require.Equal(t, types.RoleUser, result.Messages[0].Role)
	require.Equal(t, types.RoleAssistant, result.Messages[1].Role)
	require.Equal(t, 1, result.TurnCount)
	require.Equal(t, "claude-sonnet-4-20250514", result.LatestModelInEffect)
	require.False(t, result.LastInterrupted)
}

func TestReconstruct_ToolUseStopDoesNotIncrementTurnCount(t *testing.T) {
	s, sess := newTestSession(t)

	appendEvent(t, s, &sess, types.EventMessageUser, types.MessageUserPayload{Turn: 1})
	appendEvent(t, s, &sess, types.EventMessageAssistant, types.MessageAssistantPayload{
		Turn: 1, Model: "claude-sonnet-4-20250514", StopReason: types.StopReasonToolUse,
	})
	toolCallEv := appendEvent(t, s, &sess, types.EventToolCall, types.ToolCallPayload{
		ToolCallID: "call-1", Name: "read_file", Turn: 1,
	})

	result, err := Reconstruct(context.Background(), s, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 0, result.TurnCount)
	require.Equal(t, []string{"call-1"}, result.PendingToolIDs)
	require.NotEmpty(t, toolCallEv.ID)
}

func TestReconstruct_ToolResultClearsPendingAndAppendsMessage(t *testing.T) {
	s, sess := newTestSession(t)

	appendEvent(t, s, &sess, types.EventToolCall, types.ToolCallPayload{ToolCallID: "call-1", Name: "read_file", Turn: 1})
	appendEvent(t, s, &sess, types.EventToolResult, types.ToolResultPayload{ToolCallID: "call-1", Content: "file contents"})

	result, err := Reconstruct(context.Background(), s, sess.ID)
	require.NoError(t, err)
	require.Empty(t, result.PendingToolIDs)
	require.Len(t, result.Messages, 1)
	require.Equal(t, types.RoleToolResult, result.Messages[0].Role)
	require.Equal(t, "call-1", result.Messages[0].ToolCallID)
}

func TestReconstruct_DeletedMessageIsSkipped(t *testing.T) {
	s, sess := newTestSession(t)

	userEv := appendEvent(t, s, &sess, types.EventMessageUser, types.MessageUserPayload{
		Content: []types.ContentBlock{{Type: "text", Text: "oops"}}, Turn: 1,
	})

	_, err := s.DeleteMessage(context.Background(), sess.ID, userEv.ID, "user requested removal")
	require.NoError(t, err)
	sess, err = s.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)

	result, err := Reconstruct(context.Background(), s, sess.ID)
	require.NoError(t, err)
	require.Empty(t, result.Messages)
}

func TestReconstruct_CompactBoundaryResetsMessages(t *testing.T) {
	s, sess := newTestSession(t)

	appendEvent(t, s, &sess, types.EventMessageUser, types.MessageUserPayload{Turn: 1})
	appendEvent(t, s, &sess, types.EventMessageAssistant, types.MessageAssistantPayload{Turn: 1, StopReason: "end_turn"})
	appendEvent(t, s, &sess, types.EventCompactBoundary, types.CompactBoundaryPayload{
		Range: types.CompactRange{From: 0, To: 2}, OriginalTokens: 500, CompactedTokens: 50, Summary: "discussed X",
	})
	appendEvent(t, s, &sess, types.EventMessageUser, types.MessageUserPayload{
		Content: []types.ContentBlock{{Type: "text", Text: "continue"}}, Turn: 2,
	})

	result, err := Reconstruct(context.Background(), s, sess.ID)
	require.NoError(t, err)
	require.Len(t, result.Messages, 3)
	require.Contains(t, result.Messages[0].Content[0].Text, "discussed X")
	require.Equal(t, types.RoleAssistant, result.Messages[1].Role)
	require.Equal(t, "continue", result.Messages[2].Content[0].Text)
}

func TestReconstruct_InterruptedErrorMarksLastInterruptedAndAppendsPartial(t *testing.T) {
	s, sess := newTestSession(t)

	appendEvent(t, s, &sess, types.EventMessageUser, types.MessageUserPayload{Turn: 1})
	// An interrupted error.agent event's durable payload carries both the
	// ErrorAgentPayload category and the AgentInterruptedPayload partial
	// content on the same JSON object.
	appendEvent(t, s, &sess, types.EventErrorAgent, map[string]any{
		"category":       string(types.ErrorCategoryInterrupted),
		"partialContent": "partial answer before cancel",
		"turn":           1,
	})

	result, err := Reconstruct(context.Background(), s, sess.ID)
	require.NoError(t, err)
	require.True(t, result.LastInterrupted)
	require.Len(t, result.Messages, 2)
	require.Equal(t, "partial answer before cancel", result.Messages[1].Content[0].Text)
}

func TestReconstruct_EmptySessionHasNoMessages(t *testing.T) {
	s, sess := newTestSession(t)

	result, err := Reconstruct(context.Background(), s, sess.ID)
	require.NoError(t, err)
	require.Empty(t, result.Messages)
	require.Equal(t, "claude-sonnet-4-20250514", result.LatestModelInEffect)
}

func TestReconstruct_UnknownSessionReturnsNotFound(t *testing.T) {
	s, _ := newTestSession(t)

	_, err := Reconstruct(context.Background(), s, "bogus-session-id")
	require.Error(t, err)
}

func TestDeriveTitle_StripsFillerAndCaps(t *testing.T) {
	require.Equal(t, "Refactor user service", DeriveTitle("please refactor user service"))
	require.Equal(t, "Debug 500 errors", DeriveTitle("can you debug 500 errors\nit's happening in prod"))
}

func TestDeriveTitle_TruncatesLongInput(t *testing.T) {
	long := "implement a very long and detailed description of a feature that goes on and on past the limit"
	title := DeriveTitle(long)
	require.LessOrEqual(t, len([]rune(title)), 51)
	require.True(t, len(title) > 0)
}

func TestDeriveTitle_EmptyInputFallsBack(t *testing.T) {
	require.Equal(t, "New Session", DeriveTitle(""))
	require.Equal(t, "New Session", DeriveTitle("   \n"))
}
