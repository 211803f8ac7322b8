package tokens

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhismail3/tron-sub003/internal/metrics"
)

func TestNormalize_AnthropicLikeIncludesCacheInContextWindow(t *testing.T) {
	tr := NewTracker(metrics.New())

	out := tr.Normalize("s1", ProviderAnthropicLike, RawUsage{InputTokens: 100, CacheReadTokens: 50, CacheCreationTokens: 10})
	require.Equal(t, 160, out.ContextWindowTokens)
	require.Equal(t, 160, out.NewInputTokens) // baseline starts at 0
}

func TestNormalize_DeltaAgainstBaseline(t *testing.T) {
	tr := NewTracker(metrics.New())

	first := tr.Normalize("s1", ProviderAnthropicLike, RawUsage{InputTokens: 100})
	require.Equal(t, 100, first.NewInputTokens)

	second := tr.Normalize("s1", ProviderAnthropicLike, RawUsage{InputTokens: 150})
	require.Equal(t, 50, second.NewInputTokens)
}

func TestNormalize_ResetsBaselineOnProviderSwitch(t *testing.T) {
	tr := NewTracker(metrics.New())

	tr.Normalize("s1", ProviderAnthropicLike, RawUsage{InputTokens: 500})
	out := tr.Normalize("s1", ProviderOpenAILike, RawUsage{InputTokens: 10})
	require.Equal(t, 10, out.NewInputTokens)
}

func TestNormalize_DeltaNeverNegative(t *testing.T) {
	tr := NewTracker(metrics.New())

	tr.Normalize("s1", ProviderAnthropicLike, RawUsage{InputTokens: 500})
	out := tr.Normalize("s1", ProviderAnthropicLike, RawUsage{InputTokens: 100})
	require.Equal(t, 0, out.NewInputTokens)
}

func TestLookupPricing_ExactThenPatternThenDefault(t *testing.T) {
	exact := LookupPricing("claude-opus-4-20250514")
	require.Equal(t, 15.0, exact.InputPerMillion)

	pattern := LookupPricing("claude-opus-4-1-20260101") // unseen id, matches "opus" pattern
	require.Equal(t, 15.0, pattern.InputPerMillion)

	fallback := LookupPricing("some-unknown-model")
	require.Equal(t, defaultPricing.InputPerMillion, fallback.InputPerMillion)
}

func TestCost_AppliesCacheMultipliers(t *testing.T) {
	tr := NewTracker(metrics.New())

	cost := tr.Cost("anthropic", "claude-sonnet-4-20250514", RawUsage{
		InputTokens: 1_000_000, OutputTokens: 0, CacheReadTokens: 1_000_000, CacheCreationTokens: 1_000_000,
	}, 0)

	// input: 3.0, cacheWrite: 3.0*1.25=3.75, cacheRead: 3.0*0.10=0.30 => 7.05
	require.InDelta(t, 7.05, cost, 0.001)
}

func TestCost_LongContextMultiplierStacksOnCache(t *testing.T) {
	tr := NewTracker(metrics.New())

	cost := tr.Cost("google", "gemini-1.5-pro", RawUsage{InputTokens: 2_000_000, CacheReadTokens: 1_000_000}, 1_000_000)
	// base rate 1.25 * longContext multiplier 2.0 = 2.5 per million, 2M tokens => 5.0;
	// cache read 1M at 2.5 * 0.10 = 0.25 => 5.25
	require.InDelta(t, 5.25, cost, 0.001)
}

func TestExtractAnthropicUsage_ErrorsWhenBothAbsent(t *testing.T) {
	_, err := ExtractAnthropicUsage(AnthropicStreamUsage{})
	require.ErrorIs(t, err, ErrTokenExtraction)
}

func TestExtractAnthropicUsage_SucceedsWithOutputOnly(t *testing.T) {
	out := 42
	raw, err := ExtractAnthropicUsage(AnthropicStreamUsage{OutputTokens: &out})
	require.NoError(t, err)
	require.Equal(t, 42, raw.OutputTokens)
}
