package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhismail3/tron-sub003/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateSession_RootEventAtSequenceZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, root, err := s.CreateSession(ctx, CreateSessionParams{
		WorkspacePath:    "/tmp/project",
		WorkingDirectory: "/tmp/project",
		Model:            "claude-sonnet-4",
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), root.Sequence)
	require.Nil(t, root.ParentID)
	require.Equal(t, types.EventSessionStart, root.Type)
	require.Equal(t, root.ID, sess.HeadEventID)
}

func TestAppend_SequenceAndHeadAdvance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, root, err := s.CreateSession(ctx, CreateSessionParams{WorkspacePath: "/tmp/p", WorkingDirectory: "/tmp/p", Model: "gpt-4o"})
	require.NoError(t, err)

	turn := 1
	payload := types.MessageUserPayload{Content: []types.ContentBlock{{Type: "text", Text: "hello"}}, Turn: turn}
	ev, err := s.Append(ctx, AppendParams{
		SessionID: sess.ID,
		Type:      types.EventMessageUser,
		Payload:   payload,
		ParentID:  root.ID,
		Turn:      &turn,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), ev.Sequence)

	updated, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, ev.ID, updated.HeadEventID)
}

func TestAppend_RejectsStaleParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, root, err := s.CreateSession(ctx, CreateSessionParams{WorkspacePath: "/tmp/p", WorkingDirectory: "/tmp/p", Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = s.Append(ctx, AppendParams{SessionID: sess.ID, Type: types.EventMessageUser, Payload: types.MessageUserPayload{Turn: 1}, ParentID: root.ID})
	require.NoError(t, err)

	_, err = s.Append(ctx, AppendParams{SessionID: sess.ID, Type: types.EventMessageUser, Payload: types.MessageUserPayload{Turn: 2}, ParentID: root.ID})
	require.ErrorIs(t, err, ErrConstraintViolation)
}

func TestDeleteMessage_TombstonesAndRejectsDisallowed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, root, err := s.CreateSession(ctx, CreateSessionParams{WorkspacePath: "/tmp/p", WorkingDirectory: "/tmp/p", Model: "gpt-4o"})
	require.NoError(t, err)

	turn := 1
	userEv, err := s.Append(ctx, AppendParams{SessionID: sess.ID, Type: types.EventMessageUser, Payload: types.MessageUserPayload{Turn: turn}, ParentID: root.ID})
	require.NoError(t, err)

	tombstone, err := s.DeleteMessage(ctx, sess.ID, userEv.ID, "user requested")
	require.NoError(t, err)
	require.Equal(t, types.EventMessageDeleted, tombstone.Type)

	_, err = s.DeleteMessage(ctx, sess.ID, userEv.ID, "again")
	require.ErrorIs(t, err, ErrCannotDelete)

	_, err = s.DeleteMessage(ctx, sess.ID, root.ID, "nope")
	require.ErrorIs(t, err, ErrCannotDelete)
}

func TestGetAncestors_ReturnsChainInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, root, err := s.CreateSession(ctx, CreateSessionParams{WorkspacePath: "/tmp/p", WorkingDirectory: "/tmp/p", Model: "gpt-4o"})
	require.NoError(t, err)

	turn := 1
	ev1, err := s.Append(ctx, AppendParams{SessionID: sess.ID, Type: types.EventMessageUser, Payload: types.MessageUserPayload{Turn: turn}, ParentID: root.ID})
	require.NoError(t, err)

	ev2, err := s.Append(ctx, AppendParams{SessionID: sess.ID, Type: types.EventStreamTurnStart, Payload: json.RawMessage(`{}`), ParentID: ev1.ID})
	require.NoError(t, err)

	chain, err := s.GetAncestors(ctx, ev2.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, root.ID, chain[0].ID)
	require.Equal(t, ev1.ID, chain[1].ID)
	require.Equal(t, ev2.ID, chain[2].ID)
}

func TestGetSession_PrefixMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, _, err := s.CreateSession(ctx, CreateSessionParams{WorkspacePath: "/tmp/p", WorkingDirectory: "/tmp/p", Model: "gpt-4o"})
	require.NoError(t, err)

	prefix := sess.ID[:8]
	found, err := s.GetSession(ctx, prefix)
	require.NoError(t, err)
	require.Equal(t, sess.ID, found.ID)

	_, err = s.GetSession(ctx, "not-a-real-id")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSearch_MatchesTextContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, root, err := s.CreateSession(ctx, CreateSessionParams{WorkspacePath: "/tmp/p", WorkingDirectory: "/tmp/p", Model: "gpt-4o"})
	require.NoError(t, err)

	turn := 1
	ev, err := s.Append(ctx, AppendParams{
		SessionID: sess.ID, Type: types.EventMessageUser,
		Payload:  types.MessageUserPayload{Content: []types.ContentBlock{{Type: "text", Text: "find the needle in the haystack"}}, Turn: turn},
		ParentID: root.ID,
	})
	require.NoError(t, err)

	matches, err := s.Search(ctx, "needle", FTSMatchParams{SessionID: sess.ID})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, ev.ID, matches[0].EventID)
}

func TestVector_PutAndSearchOrdersBySimilarity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, root, err := s.CreateSession(ctx, CreateSessionParams{WorkspacePath: "/tmp/p", WorkingDirectory: "/tmp/p", Model: "gpt-4o"})
	require.NoError(t, err)
	turn := 1
	ev1, err := s.Append(ctx, AppendParams{SessionID: sess.ID, Type: types.EventMessageUser, Payload: types.MessageUserPayload{Turn: turn}, ParentID: root.ID})
	require.NoError(t, err)
	ev2, err := s.Append(ctx, AppendParams{SessionID: sess.ID, Type: types.EventMessageUser, Payload: types.MessageUserPayload{Turn: turn}, ParentID: ev1.ID})
	require.NoError(t, err)

	require.NoError(t, s.PutVector(ctx, ev1.ID, []float32{1, 0, 0}))
	require.NoError(t, s.PutVector(ctx, ev2.ID, []float32{0, 1, 0}))

	matches, err := s.SearchVector(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, ev1.ID, matches[0].EventID)
}

func TestAppendAssistant_UpdatesTurnCountOnNonToolStop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, root, err := s.CreateSession(ctx, CreateSessionParams{WorkspacePath: "/tmp/p", WorkingDirectory: "/tmp/p", Model: "claude-sonnet-4"})
	require.NoError(t, err)

	turn := 1
	payload := types.MessageAssistantPayload{
		Content:    []types.ContentBlock{{Type: "text", Text: "hi"}},
		Turn:       turn,
		Model:      "claude-sonnet-4",
		StopReason: "end_turn",
		TokenUsage: types.TokenUsagePayload{InputTokens: 10, OutputTokens: 5},
	}
	_, err = s.Append(ctx, AppendParams{SessionID: sess.ID, Type: types.EventMessageAssistant, Payload: payload, ParentID: root.ID})
	require.NoError(t, err)

	updated, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 1, updated.TurnCount)
	require.Equal(t, int64(10), updated.TotalInputTokens)
	require.Equal(t, int64(5), updated.TotalOutputTokens)
}

func TestAppendAssistant_ToolUseStopDoesNotIncrementTurnCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, root, err := s.CreateSession(ctx, CreateSessionParams{WorkspacePath: "/tmp/p", WorkingDirectory: "/tmp/p", Model: "claude-sonnet-4"})
	require.NoError(t, err)

	payload := types.MessageAssistantPayload{
		Content:    []types.ContentBlock{{Type: "tool_use", ToolUseID: "tc_1", ToolUseName: "bash"}},
		Turn:       1,
		Model:      "claude-sonnet-4",
		StopReason: types.StopReasonToolUse,
	}
	_, err = s.Append(ctx, AppendParams{SessionID: sess.ID, Type: types.EventMessageAssistant, Payload: payload, ParentID: root.ID})
	require.NoError(t, err)

	updated, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 0, updated.TurnCount)
}
