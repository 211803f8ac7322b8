package contextmgr

import "strings"

// contextLimits mirrors the ContextLength figures the teacher's
// provider registry carries per model (internal/provider/anthropic.go,
// openai.go, ark.go), repointed at budget enforcement instead of UI
// display.
var contextLimits = map[string]int{
	"claude-sonnet-4-20250514":   200_000,
	"claude-opus-4-20250514":     200_000,
	"claude-3-5-sonnet-20241022": 200_000,
	"claude-3-5-haiku-20241022":  200_000,
	"claude-haiku-4-5-20251001":  200_000,
	"claude-haiku-4-5":           200_000,
	"gpt-4o":                     128_000,
	"gpt-4o-mini":                128_000,
	"gemini-1.5-pro":             1_000_000,
	"gemini-2.0-flash":           1_000_000,
}

var patternLimits = []struct {
	token string
	limit int
}{
	{"opus", 200_000},
	{"sonnet", 200_000},
	{"haiku", 200_000},
	{"gpt-4o", 128_000},
	{"gemini", 1_000_000},
}

const defaultContextLimit = 128_000

// lookupContextLimit resolves model's context window size using the same
// exact→pattern→default resolution order as internal/tokens.LookupPricing.
func lookupContextLimit(model string) int {
	if n, ok := contextLimits[model]; ok {
		return n
	}
	lower := strings.ToLower(model)
	for _, entry := range patternLimits {
		if strings.Contains(lower, entry.token) {
			return entry.limit
		}
	}
	return defaultContextLimit
}

// LookupContextLimit exposes lookupContextLimit for catalog endpoints
// (RPC `model.list`) outside this package.
func LookupContextLimit(model string) int {
	return lookupContextLimit(model)
}
