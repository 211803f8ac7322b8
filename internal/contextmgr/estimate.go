package contextmgr

import (
	"encoding/json"
	"strings"

	"github.com/mhismail3/tron-sub003/pkg/types"
)

// estimateTokens applies the 4-characters-per-token fallback heuristic
// spec.md §4.3 specifies for any component whose size the provider has
// not yet reported. It is never used once setApiContextTokens has
// supplied an authoritative count for the current turn.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// estimateJSONTokens serializes v and applies the same 4-char heuristic,
// used for tool schemas. Rules content is a plain string and is
// estimated with estimateTokens instead.
func estimateJSONTokens(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return estimateTokens(string(b))
}

// messageText flattens a message's content blocks into the text the
// 4-char heuristic estimates over.
func messageText(m types.ProjectedMessage) string {
	var b strings.Builder
	for _, block := range m.Content {
		switch block.Type {
		case "text":
			b.WriteString(block.Text)
		case "thinking":
			b.WriteString(block.Thinking)
		case "tool_use":
			b.WriteString(block.ToolUseName)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func estimateMessagesTokens(messages []types.ProjectedMessage) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(messageText(m))
	}
	return total
}
