package tokens

import "strings"

// ModelPricing is per-million-token USD pricing plus the cache-tier and
// long-context multipliers spec.md §4.4 requires.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64

	// CacheWriteMultiplier/CacheReadMultiplier scale the input rate for
	// cache-creation and cache-read tokens respectively.
	CacheWriteMultiplier float64
	CacheReadMultiplier  float64

	// LongContextInputMultiplier/LongContextOutputMultiplier stack on top
	// of the base rates when rawInputTokens exceeds the configured
	// long-context threshold.
	LongContextInputMultiplier  float64
	LongContextOutputMultiplier float64
}

func defaultMultipliers() (cacheWrite, cacheRead, longIn, longOut float64) {
	return 1.25, 0.10, 1.0, 1.0
}

// exactPricing mirrors the teacher's anthropicModels() price list
// (internal/provider/anthropic.go), extended with OpenAI/Gemini family
// entries so the lookup rule in spec.md §4.4 has more than one provider
// family to pattern-match against.
var exactPricing = map[string]ModelPricing{
	"claude-sonnet-4-20250514":   ratesOnly(3.0, 15.0),
	"claude-opus-4-20250514":     ratesOnly(15.0, 75.0),
	"claude-3-5-sonnet-20241022": ratesOnly(3.0, 15.0),
	"claude-3-5-haiku-20241022":  ratesOnly(0.8, 4.0),
	"claude-haiku-4-5-20251001":  ratesOnly(0.8, 4.0),
	"claude-haiku-4-5":           ratesOnly(0.8, 4.0),
	"gpt-4o":                     ratesOnly(2.5, 10.0),
	"gpt-4o-mini":                ratesOnly(0.15, 0.6),
	"gemini-1.5-pro":             withLongContext(ratesOnly(1.25, 5.0), 2.0, 2.0),
	"gemini-2.0-flash":           ratesOnly(0.10, 0.40),
}

// withLongContext overrides the long-context multipliers of an
// otherwise-default pricing entry.
func withLongContext(p ModelPricing, input, output float64) ModelPricing {
	p.LongContextInputMultiplier = input
	p.LongContextOutputMultiplier = output
	return p
}

// patternPricing is checked, in order, against canonical family tokens
// found anywhere in the model id, after an exact-id miss.
var patternPricing = []struct {
	token string
	price ModelPricing
}{
	{"opus", ratesOnly(15.0, 75.0)},
	{"sonnet", ratesOnly(3.0, 15.0)},
	{"haiku", ratesOnly(0.8, 4.0)},
	{"gpt-4o-mini", ratesOnly(0.15, 0.6)},
	{"gpt-4o", ratesOnly(2.5, 10.0)},
	{"gemini", ratesOnly(1.25, 5.0)},
}

// defaultPricing is applied when neither an exact id nor a family
// pattern matches: mid-tier Sonnet-class rates, per spec.md §4.4.
var defaultPricing = ratesOnly(3.0, 15.0)

func ratesOnly(inputPerMillion, outputPerMillion float64) ModelPricing {
	cw, cr, li, lo := defaultMultipliers()
	return ModelPricing{
		InputPerMillion:             inputPerMillion,
		OutputPerMillion:            outputPerMillion,
		CacheWriteMultiplier:        cw,
		CacheReadMultiplier:         cr,
		LongContextInputMultiplier:  li,
		LongContextOutputMultiplier: lo,
	}
}

// KnownModelIDs returns the model ids this package has exact pricing
// for, for catalog endpoints (RPC `model.list`) that want a concrete
// list rather than the open-ended pattern-match fallback.
func KnownModelIDs() []string {
	ids := make([]string, 0, len(exactPricing))
	for id := range exactPricing {
		ids = append(ids, id)
	}
	return ids
}

// LookupPricing resolves model's pricing: exact-id match, then pattern
// match on canonical family tokens, then the mid-tier default.
func LookupPricing(model string) ModelPricing {
	if p, ok := exactPricing[model]; ok {
		return p
	}
	lower := strings.ToLower(model)
	for _, entry := range patternPricing {
		if strings.Contains(lower, entry.token) {
			return entry.price
		}
	}
	return defaultPricing
}

// IsRecognizedModel reports whether model resolves to pricing via an
// exact KnownModelIDs entry or a family pattern in patternPricing —
// i.e. whether LookupPricing would return something other than the
// mid-tier defaultPricing fallback. Callers that must reject an
// unrecognized model (RPC model.switch) use this instead of checking
// KnownModelIDs alone, which only covers exact ids.
func IsRecognizedModel(model string) bool {
	if _, ok := exactPricing[model]; ok {
		return true
	}
	lower := strings.ToLower(model)
	for _, entry := range patternPricing {
		if strings.Contains(lower, entry.token) {
			return true
		}
	}
	return false
}
