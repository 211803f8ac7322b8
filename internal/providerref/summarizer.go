// Package providerref holds reference implementations of the injected
// capability interfaces spec.md §6 names (Summarizer today; an
// embedding-backed capability is a natural future addition under the
// same package). None of this is part of the budgeted core — it is
// the thin adapter layer a deployment wires in at the boundary so
// internal/contextmgr never has to import a provider SDK itself.
//
// Grounded on the teacher's internal/provider package: same three
// eino-ext chat-model backends (claude/openai/ark), same
// config-then-os.Getenv-fallback construction style, but collapsed
// from a full streaming Provider abstraction down to the one blocking
// call compaction actually needs.
package providerref

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/mhismail3/tron-sub003/internal/contextmgr"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

// ChatModelSummarizer adapts any eino model.ToolCallingChatModel (the
// same interface the teacher's AnthropicProvider/OpenAIProvider/
// ArkProvider all expose via ChatModel()) into a contextmgr.Summarizer.
// It never binds tools — summarization is a plain text-in/text-out
// call — and never streams, since the compaction engine needs the
// complete narrative before it can build the synthetic message pair.
type ChatModelSummarizer struct {
	chatModel model.ToolCallingChatModel
}

// NewChatModelSummarizer wraps an already-constructed eino chat model.
func NewChatModelSummarizer(chatModel model.ToolCallingChatModel) *ChatModelSummarizer {
	return &ChatModelSummarizer{chatModel: chatModel}
}

var _ contextmgr.Summarizer = (*ChatModelSummarizer)(nil)

const summarizationSystemPrompt = `You are summarizing an AI coding agent's conversation history so it can continue with reduced context.

Produce a concise narrative covering: what the user asked for, what was done, which files were touched, any decisions or constraints established, and what remains to be done. Do not include tool output verbatim — describe its effect instead.`

// Summarize builds an eino message list from the projection being
// compacted and asks the wrapped chat model for a plain-text summary.
func (s *ChatModelSummarizer) Summarize(ctx context.Context, messages []types.ProjectedMessage) (contextmgr.SummaryResult, error) {
	if len(messages) == 0 {
		return contextmgr.SummaryResult{}, fmt.Errorf("providerref: cannot summarize zero messages")
	}

	einoMessages := make([]*schema.Message, 0, len(messages)+1)
	einoMessages = append(einoMessages, &schema.Message{Role: schema.System, Content: summarizationSystemPrompt})
	einoMessages = append(einoMessages, toEinoMessages(messages)...)

	resp, err := s.chatModel.Generate(ctx, einoMessages)
	if err != nil {
		return contextmgr.SummaryResult{}, fmt.Errorf("providerref: summarization call failed: %w", err)
	}

	return contextmgr.SummaryResult{
		Narrative: resp.Content,
	}, nil
}

// toEinoMessages flattens the projection's content blocks into plain
// eino messages. Tool-use/thinking blocks collapse to their textual
// description since the summarization model only needs to read what
// happened, not replay it.
func toEinoMessages(messages []types.ProjectedMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		text := flattenContent(m)
		if text == "" {
			continue
		}

		switch m.Role {
		case types.RoleUser:
			out = append(out, &schema.Message{Role: schema.User, Content: text})
		case types.RoleToolResult:
			out = append(out, &schema.Message{Role: schema.User, Content: "[tool result for " + m.ToolCallID + "] " + text})
		default:
			out = append(out, &schema.Message{Role: schema.Assistant, Content: text})
		}
	}
	return out
}

func flattenContent(m types.ProjectedMessage) string {
	var b strings.Builder
	for _, block := range m.Content {
		switch block.Type {
		case "text":
			b.WriteString(block.Text)
		case "thinking":
			// Thinking is the model's private reasoning; the summarizer
			// only needs the externally visible outcome.
		case "tool_use":
			b.WriteString(fmt.Sprintf("[called %s]", block.ToolUseName))
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
