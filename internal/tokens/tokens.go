// Package tokens implements the Token Normalizer & Usage Tracker
// (spec.md §4.4): reconciles heterogeneous provider token-reporting
// semantics into one record, maintains a per-session baseline for
// per-turn deltas, and computes cost with cache-tier and long-context
// multipliers. Grounded on the teacher's internal/provider/anthropic.go
// pricing table, generalized from a single-provider UI price list into
// a multi-family normalization+cost engine.
package tokens

import (
	"errors"
	"sync"

	"github.com/mhismail3/tron-sub003/internal/metrics"
)

// ProviderType distinguishes the two token-accounting families spec.md
// §4.4 describes.
type ProviderType string

const (
	ProviderAnthropicLike ProviderType = "anthropic"
	ProviderOpenAILike    ProviderType = "openai"
)

// ErrTokenExtraction is returned when a provider stream supplies neither
// an input nor output token count; callers must not fabricate counts
// (spec.md §4.4).
var ErrTokenExtraction = errors.New("tokens: unable to extract usage from provider stream")

// RawUsage is what a provider reports for one turn, before normalization.
type RawUsage struct {
	InputTokens         int
	OutputTokens        int
	CacheReadTokens     int
	CacheCreationTokens int
}

// NormalizedUsage is the common shape spec.md §4.4 requires regardless
// of provider family.
type NormalizedUsage struct {
	RawInputTokens         int
	RawOutputTokens        int
	RawCacheReadTokens     int
	RawCacheCreationTokens int
	NewInputTokens         int
	ContextWindowTokens    int
	OutputTokens           int
}

type baseline struct {
	provider                   ProviderType
	previousContextWindowTokens int
}

// Tracker maintains one baseline per session, persisting across
// agent-run boundaries and resetting only on a provider-family switch.
type Tracker struct {
	mu        sync.Mutex
	baselines map[string]baseline
	metrics   *metrics.Metrics
}

// NewTracker constructs an empty Tracker. Sessions are added lazily on
// first Normalize call.
func NewTracker(m *metrics.Metrics) *Tracker {
	return &Tracker{baselines: make(map[string]baseline), metrics: m}
}

// Normalize reconciles raw into the common usage record for sessionId,
// applying and updating that session's baseline.
func (t *Tracker) Normalize(sessionID string, provider ProviderType, raw RawUsage) NormalizedUsage {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.baselines[sessionID]
	if !ok || b.provider != provider {
		b = baseline{provider: provider, previousContextWindowTokens: 0}
	}

	var contextWindowTokens int
	switch provider {
	case ProviderAnthropicLike:
		contextWindowTokens = raw.InputTokens + raw.CacheReadTokens + raw.CacheCreationTokens
	default:
		contextWindowTokens = raw.InputTokens
	}

	newInput := contextWindowTokens - b.previousContextWindowTokens
	if newInput < 0 {
		newInput = 0
	}

	b.previousContextWindowTokens = contextWindowTokens
	t.baselines[sessionID] = b

	return NormalizedUsage{
		RawInputTokens:         raw.InputTokens,
		RawOutputTokens:        raw.OutputTokens,
		RawCacheReadTokens:     raw.CacheReadTokens,
		RawCacheCreationTokens: raw.CacheCreationTokens,
		NewInputTokens:         newInput,
		ContextWindowTokens:    contextWindowTokens,
		OutputTokens:           raw.OutputTokens,
	}
}

// ResetBaseline clears sessionId's baseline explicitly, e.g. on
// session.end. Normalize already resets it implicitly on a provider
// switch; this is for explicit session teardown.
func (t *Tracker) ResetBaseline(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.baselines, sessionID)
}

// Cost computes USD cost for one turn's raw usage against model's
// pricing, applying the long-context multiplier when rawInputTokens
// exceeds longContextThreshold, with cache multipliers stacking on top
// (spec.md §4.4).
func (t *Tracker) Cost(provider, model string, raw RawUsage, longContextThreshold int) float64 {
	pricing := LookupPricing(model)

	inputRate := pricing.InputPerMillion
	outputRate := pricing.OutputPerMillion
	if longContextThreshold > 0 && raw.InputTokens > longContextThreshold {
		inputRate *= pricing.LongContextInputMultiplier
		outputRate *= pricing.LongContextOutputMultiplier
	}

	const million = 1_000_000.0
	inputCost := float64(raw.InputTokens) / million * inputRate
	outputCost := float64(raw.OutputTokens) / million * outputRate
	cacheWriteCost := float64(raw.CacheCreationTokens) / million * inputRate * pricing.CacheWriteMultiplier
	cacheReadCost := float64(raw.CacheReadTokens) / million * inputRate * pricing.CacheReadMultiplier

	total := inputCost + outputCost + cacheWriteCost + cacheReadCost

	if t.metrics != nil {
		t.metrics.TokensTotal.WithLabelValues(provider, model, "input").Add(float64(raw.InputTokens))
		t.metrics.TokensTotal.WithLabelValues(provider, model, "output").Add(float64(raw.OutputTokens))
		t.metrics.TokensTotal.WithLabelValues(provider, model, "cache_read").Add(float64(raw.CacheReadTokens))
		t.metrics.TokensTotal.WithLabelValues(provider, model, "cache_creation").Add(float64(raw.CacheCreationTokens))
		t.metrics.CostUSDTotal.WithLabelValues(provider, model).Add(total)
	}

	return total
}

// AnthropicStreamUsage is the subset of an Anthropic-like stream's usage
// fields the extractor reads: inputTokens/cacheReadTokens/cacheCreationTokens
// arrive with message_start, outputTokens arrives with message_delta
// (spec.md §4.4). Pointers distinguish "absent" from "zero".
type AnthropicStreamUsage struct {
	InputTokens         *int
	CacheReadTokens     *int
	CacheCreationTokens *int
	OutputTokens        *int
}

// ExtractAnthropicUsage builds a RawUsage from stream fields, returning
// ErrTokenExtraction if both input and output counts are absent.
func ExtractAnthropicUsage(u AnthropicStreamUsage) (RawUsage, error) {
	if u.InputTokens == nil && u.OutputTokens == nil {
		return RawUsage{}, ErrTokenExtraction
	}
	var raw RawUsage
	if u.InputTokens != nil {
		raw.InputTokens = *u.InputTokens
	}
	if u.OutputTokens != nil {
		raw.OutputTokens = *u.OutputTokens
	}
	if u.CacheReadTokens != nil {
		raw.CacheReadTokens = *u.CacheReadTokens
	}
	if u.CacheCreationTokens != nil {
		raw.CacheCreationTokens = *u.CacheCreationTokens
	}
	return raw, nil
}
