package contextmgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhismail3/tron-sub003/internal/blobstore"
	"github.com/mhismail3/tron-sub003/internal/metrics"
	"github.com/mhismail3/tron-sub003/internal/store"
	"github.com/mhismail3/tron-sub003/internal/tokens"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

func textMessage(role types.ProjectedRole, text string) types.ProjectedMessage {
	return types.ProjectedMessage{Role: role, Content: []types.ContentBlock{{Type: "text", Text: text}}}
}

func TestClassifyThreshold_Boundaries(t *testing.T) {
	require.Equal(t, ThresholdNormal, classifyThreshold(0.0))
	require.Equal(t, ThresholdNormal, classifyThreshold(0.49))
	require.Equal(t, ThresholdWarning, classifyThreshold(0.50))
	require.Equal(t, ThresholdWarning, classifyThreshold(0.69))
	require.Equal(t, ThresholdAlert, classifyThreshold(0.70))
	require.Equal(t, ThresholdAlert, classifyThreshold(0.84))
	require.Equal(t, ThresholdCritical, classifyThreshold(0.85))
	require.Equal(t, ThresholdCritical, classifyThreshold(0.94))
	require.Equal(t, ThresholdExceeded, classifyThreshold(0.95))
	require.Equal(t, ThresholdExceeded, classifyThreshold(1.0))
}

func TestGetSnapshot_FallsBackToComponentSumsWithoutApiCount(t *testing.T) {
	m := New(Config{Model: "claude-sonnet-4-20250514", CustomSystemPrompt: "be helpful"})
	m.AddMessage(textMessage(types.RoleUser, "hello there"))

	snap := m.GetSnapshot()
	require.Equal(t, 200_000, snap.ContextLimit)
	require.Greater(t, snap.CurrentTokens, 0)
	require.Equal(t, snap.Breakdown.SystemPrompt+snap.Breakdown.Tools+snap.Breakdown.Rules+snap.Breakdown.Messages, snap.CurrentTokens)
}

func TestGetSnapshot_PrefersApiAuthoritativeCount(t *testing.T) {
	m := New(Config{Model: "gpt-4o-mini"})
	m.AddMessage(textMessage(types.RoleUser, "hello"))
	m.SetApiContextTokens(123456)

	snap := m.GetSnapshot()
	require.Equal(t, 123456, snap.CurrentTokens)
}

func TestSetMessages_ClearsApiAuthoritativeCount(t *testing.T) {
	m := New(Config{Model: "gpt-4o-mini"})
	m.SetApiContextTokens(999)
	m.SetMessages([]types.ProjectedMessage{textMessage(types.RoleUser, "x")})

	snap := m.GetSnapshot()
	require.NotEqual(t, 999, snap.CurrentTokens)
}

func TestCanAcceptTurn_BlocksAtCriticalAndExceeded(t *testing.T) {
	m := New(Config{Model: "gpt-4o-mini"})
	m.SetApiContextTokens(int(float64(128_000) * 0.90))

	res := m.CanAcceptTurn(CanAcceptTurnInput{EstimatedResponseTokens: 0})
	require.False(t, res.CanProceed)
	require.True(t, res.NeedsCompaction)

	m.SetApiContextTokens(int(float64(128_000) * 0.96))
	res = m.CanAcceptTurn(CanAcceptTurnInput{EstimatedResponseTokens: 0})
	require.False(t, res.CanProceed)
}

func TestCanAcceptTurn_ProceedsAtNormal(t *testing.T) {
	m := New(Config{Model: "gpt-4o-mini"})
	m.SetApiContextTokens(100)

	res := m.CanAcceptTurn(CanAcceptTurnInput{EstimatedResponseTokens: 500})
	require.True(t, res.CanProceed)
	require.False(t, res.NeedsCompaction)
	require.False(t, res.WouldExceedLimit)
}

func TestCanAcceptTurn_FlagsWouldExceedLimit(t *testing.T) {
	m := New(Config{Model: "gpt-4o-mini"})
	m.SetApiContextTokens(127_999)

	res := m.CanAcceptTurn(CanAcceptTurnInput{EstimatedResponseTokens: 10_000})
	require.True(t, res.WouldExceedLimit)
}

func TestShouldCompact_TriggersAtSeventyPercent(t *testing.T) {
	m := New(Config{Model: "gpt-4o-mini"})
	m.SetApiContextTokens(int(float64(128_000) * 0.69))
	require.False(t, m.ShouldCompact())

	m.SetApiContextTokens(int(float64(128_000) * 0.70))
	require.True(t, m.ShouldCompact())
}

func TestSwitchModel_InvalidatesCacheAndUpdatesLimit(t *testing.T) {
	m := New(Config{Model: "gpt-4o-mini", CustomSystemPrompt: "hi"})
	_ = m.GetSnapshot() // populate cache

	over := m.SwitchModel("claude-opus-4-20250514", tokens.ProviderAnthropicLike)
	require.False(t, over) // no messages, nowhere near threshold

	snap := m.GetSnapshot()
	require.Equal(t, 200_000, snap.ContextLimit)
}

func TestProcessToolResult_EmbedsUnderCapWithoutBlobStore(t *testing.T) {
	m := New(Config{Model: "claude-sonnet-4-20250514"})
	out, err := m.ProcessToolResult(context.Background(), []byte("short content"))
	require.NoError(t, err)
	require.False(t, out.Truncated)
	require.Equal(t, "short content", out.Content)
}

func newTestBlobStore(t *testing.T) *blobstore.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return blobstore.New(s.DB(), metrics.New())
}

func TestProcessToolResult_OffloadsOverDynamicCap(t *testing.T) {
	m := New(Config{Model: "claude-sonnet-4-20250514", Blobs: newTestBlobStore(t)})
	m.SetApiContextTokens(190_000) // near the top of a 200k window: small dynamic cap

	big := make([]byte, 20_000)
	for i := range big {
		big[i] = 'x'
	}

	out, err := m.ProcessToolResult(context.Background(), big)
	require.NoError(t, err)
	require.True(t, out.Truncated)
	require.NotEmpty(t, out.BlobID)
	require.Equal(t, 20_000, out.OriginalSize)
	require.Contains(t, out.Content, "truncated")
}

type fakeSummarizer struct {
	narrative string
	err       error
}

func (f fakeSummarizer) Summarize(ctx context.Context, messages []types.ProjectedMessage) (SummaryResult, error) {
	if f.err != nil {
		return SummaryResult{}, f.err
	}
	return SummaryResult{Narrative: f.narrative}, nil
}

func TestPreviewCompaction_NoOpWhenUnderPreserveWindow(t *testing.T) {
	m := New(Config{Model: "gpt-4o-mini"})
	m.AddMessage(textMessage(types.RoleUser, "hi"))
	m.AddMessage(textMessage(types.RoleAssistant, "hello"))

	preview, err := m.PreviewCompaction(context.Background(), fakeSummarizer{narrative: "should not be used"}, defaultPreserveRecentTurns)
	require.NoError(t, err)
	require.Equal(t, 1.0, preview.CompressionRatio)
	require.Equal(t, 0, preview.SummarizedTurns)
}

func TestPreviewCompaction_SummarizesOlderTurnsPreservingRecent(t *testing.T) {
	m := New(Config{Model: "gpt-4o-mini"})
	for i := 0; i < 8; i++ {
		m.AddMessage(textMessage(types.RoleUser, "question"))
		m.AddMessage(textMessage(types.RoleAssistant, "answer"))
	}

	preview, err := m.PreviewCompaction(context.Background(), fakeSummarizer{narrative: "summary of the earlier discussion"}, 2)
	require.NoError(t, err)
	require.Equal(t, 2, preview.PreservedTurns)
	require.Equal(t, 6, preview.SummarizedTurns)
	// Before: 8 × ("question" 2 + "answer" 2 + role overhead) = 40.
	// After: summary 9 + fixed 100 + preserved 10 + tools 1 = 120; with
	// messages this small the fixed allowance outweighs the savings.
	require.Equal(t, 40, preview.TokensBefore)
	require.Equal(t, 120, preview.TokensAfter)
}

func TestPreviewCompaction_RejectsOnEmptySummary(t *testing.T) {
	m := New(Config{Model: "gpt-4o-mini"})
	for i := 0; i < 8; i++ {
		m.AddMessage(textMessage(types.RoleUser, "question"))
		m.AddMessage(textMessage(types.RoleAssistant, "answer"))
	}

	_, err := m.PreviewCompaction(context.Background(), fakeSummarizer{narrative: ""}, 2)
	require.ErrorIs(t, err, ErrSummarizationRejected)
}

func TestExecuteCompaction_ReplacesMessagesAndAppendsBoundary(t *testing.T) {
	m := New(Config{Model: "gpt-4o-mini"})
	for i := 0; i < 8; i++ {
		m.AddMessage(textMessage(types.RoleUser, "question"))
		m.AddMessage(textMessage(types.RoleAssistant, "answer"))
	}

	var recordedPayload types.CompactBoundaryPayload
	appended := false
	appendFn := func(ctx context.Context, payload types.CompactBoundaryPayload) (types.Event, error) {
		appended = true
		recordedPayload = payload
		return types.Event{ID: "boundary-event"}, nil
	}

	result, err := m.ExecuteCompaction(context.Background(), fakeSummarizer{narrative: "earlier work summarized"}, 2, "", appendFn)
	require.NoError(t, err)
	require.True(t, appended)
	require.Equal(t, "earlier work summarized", recordedPayload.Summary)
	require.Equal(t, "boundary-event", result.BoundaryEvent.ID)

	messages := m.Messages()
	require.Len(t, messages, 2+4) // synthetic pair + 2 preserved turns
	require.Contains(t, messages[0].Content[0].Text, "earlier work summarized")
	require.Equal(t, compactAssistantAck, messages[1].Content[0].Text)
}

func TestPreviewCompaction_ZeroPreserveRecentTurnsSummarizesEverything(t *testing.T) {
	m := New(Config{Model: "gpt-4o-mini"})
	for i := 0; i < 8; i++ {
		m.AddMessage(textMessage(types.RoleUser, "question"))
		m.AddMessage(textMessage(types.RoleAssistant, "answer"))
	}

	preview, err := m.PreviewCompaction(context.Background(), fakeSummarizer{narrative: "summary of everything"}, 0)
	require.NoError(t, err)
	require.Equal(t, 0, preview.PreservedTurns)
	require.Equal(t, 8, preview.SummarizedTurns)
}

func TestExecuteCompaction_ZeroPreserveRecentTurnsAgreesWithPreview(t *testing.T) {
	m := New(Config{Model: "gpt-4o-mini"})
	for i := 0; i < 8; i++ {
		m.AddMessage(textMessage(types.RoleUser, "question"))
		m.AddMessage(textMessage(types.RoleAssistant, "answer"))
	}

	preview, err := m.PreviewCompaction(context.Background(), fakeSummarizer{narrative: "summary of everything"}, 0)
	require.NoError(t, err)

	result, err := m.ExecuteCompaction(context.Background(), fakeSummarizer{narrative: "summary of everything"}, 0, "", nil)
	require.NoError(t, err)
	require.Equal(t, preview.TokensAfter, result.TokensAfter)

	messages := m.Messages()
	require.Len(t, messages, 2) // only the synthetic summary pair; nothing preserved
}

func TestExecuteCompaction_EditedSummaryOverridesGenerated(t *testing.T) {
	m := New(Config{Model: "gpt-4o-mini"})
	for i := 0; i < 8; i++ {
		m.AddMessage(textMessage(types.RoleUser, "question"))
		m.AddMessage(textMessage(types.RoleAssistant, "answer"))
	}

	result, err := m.ExecuteCompaction(context.Background(), fakeSummarizer{narrative: "generated"}, 2, "human-edited summary", nil)
	require.NoError(t, err)
	require.Equal(t, "human-edited summary", result.Summary)
}
