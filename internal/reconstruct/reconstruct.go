// Package reconstruct implements the Session Reconstructor (spec.md
// §4.6): replays a session's event chain, as returned by the Event
// Store's getAncestors, into the ReconstructResult a client needs to
// render a conversation. It is a pure function of the chain — no wall
// clock, no randomness, no network — so the same chain always
// reconstructs to the same result.
package reconstruct

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mhismail3/tron-sub003/internal/store"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

// syntheticCompactUserPrefix and syntheticCompactAssistantText are the
// fixed synthetic message pair substituted for a compacted range,
// mirroring the teacher's summary-injection convention.
const (
	syntheticCompactUserPrefix   = "[Context from earlier in this conversation]\n\n"
	syntheticCompactAssistantText = "I understand the previous context. I'll continue from here."
)

// Reconstruct loads sessionId's row and replays its ancestor chain into
// a ReconstructResult, per spec.md §4.6's numbered procedure.
func Reconstruct(ctx context.Context, s *store.Store, sessionID string) (types.ReconstructResult, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return types.ReconstructResult{}, fmt.Errorf("reconstruct: load session %s: %w", sessionID, err)
	}

	if sess.HeadEventID == "" {
		return types.ReconstructResult{}, nil
	}

	events, err := s.GetAncestors(ctx, sess.HeadEventID)
	if err != nil {
		return types.ReconstructResult{}, fmt.Errorf("reconstruct: load ancestors of %s: %w", sess.HeadEventID, err)
	}

	deleted := buildDeletionSet(events)

	r := &replayer{pendingTools: make(map[string]struct{})}
	for _, ev := range events {
		r.apply(ev, deleted)
	}

	return types.ReconstructResult{
		Messages:            r.messages,
		LatestModelInEffect: r.latestModel,
		TurnCount:           r.turnCount,
		LastInterrupted:     r.lastInterrupted,
		PendingToolIDs:      r.sortedPendingTools(),
	}, nil
}

// buildDeletionSet collects every message.deleted target in the chain,
// ahead of the main replay pass, since a tombstone can appear after the
// target event it refers to (it always does — deletion is append-only)
// but the replay still needs to know up front whether to skip it.
func buildDeletionSet(events []types.Event) map[string]struct{} {
	deleted := make(map[string]struct{})
	for _, ev := range events {
		if ev.Type != types.EventMessageDeleted {
			continue
		}
		var payload types.MessageDeletedPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			continue
		}
		deleted[payload.TargetEventID] = struct{}{}
	}
	return deleted
}

type replayer struct {
	messages        []types.ProjectedMessage
	latestModel     string
	turnCount       int
	lastInterrupted bool
	pendingTools    map[string]struct{}
}

func (r *replayer) sortedPendingTools() []string {
	if len(r.pendingTools) == 0 {
		return nil
	}
	ids := make([]string, 0, len(r.pendingTools))
	for id := range r.pendingTools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *replayer) apply(ev types.Event, deleted map[string]struct{}) {
	switch ev.Type {
	case types.EventSessionStart:
		var p types.SessionStartPayload
		if json.Unmarshal(ev.Payload, &p) == nil && p.Model != "" {
			r.latestModel = p.Model
		}
		r.lastInterrupted = false

	case types.EventConfigModelSwitch:
		var p types.ConfigModelSwitchPayload
		if json.Unmarshal(ev.Payload, &p) == nil && p.NewModel != "" {
			r.latestModel = p.NewModel
		}

	case types.EventMessageUser:
		if _, gone := deleted[ev.ID]; gone {
			return
		}
		var p types.MessageUserPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		r.messages = append(r.messages, types.ProjectedMessage{
			Role:          types.RoleUser,
			Content:       p.Content,
			SourceEventID: ev.ID,
		})
		r.lastInterrupted = false

	case types.EventMessageAssistant:
		if _, gone := deleted[ev.ID]; gone {
			return
		}
		var p types.MessageAssistantPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		r.messages = append(r.messages, types.ProjectedMessage{
			Role:          types.RoleAssistant,
			Content:       p.Content,
			SourceEventID: ev.ID,
		})
		if p.Model != "" {
			r.latestModel = p.Model
		}
		if p.StopReason != types.StopReasonToolUse {
			r.turnCount++
		}
		r.lastInterrupted = false

	case types.EventToolCall:
		var p types.ToolCallPayload
		if json.Unmarshal(ev.Payload, &p) == nil && p.ToolCallID != "" {
			r.pendingTools[p.ToolCallID] = struct{}{}
		}

	case types.EventToolResult:
		var p types.ToolResultPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		delete(r.pendingTools, p.ToolCallID)
		if _, gone := deleted[ev.ID]; gone {
			return
		}
		r.messages = append(r.messages, types.ProjectedMessage{
			Role:          types.RoleToolResult,
			Content:       []types.ContentBlock{{Type: "text", Text: p.Content}},
			ToolCallID:    p.ToolCallID,
			IsError:       p.IsError,
			SourceEventID: ev.ID,
		})
		r.lastInterrupted = false

	case types.EventCompactBoundary:
		var p types.CompactBoundaryPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		r.messages = []types.ProjectedMessage{
			{
				Role:          types.RoleUser,
				Content:       []types.ContentBlock{{Type: "text", Text: syntheticCompactUserPrefix + p.Summary}},
				SourceEventID: ev.ID,
			},
			{
				Role:          types.RoleAssistant,
				Content:       []types.ContentBlock{{Type: "text", Text: syntheticCompactAssistantText}},
				SourceEventID: ev.ID,
			},
		}
		r.lastInterrupted = false

	case types.EventErrorAgent:
		var p types.ErrorAgentPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		if p.Category != types.ErrorCategoryInterrupted {
			r.lastInterrupted = false
			return
		}
		var partial types.AgentInterruptedPayload
		_ = json.Unmarshal(ev.Payload, &partial)
		if partial.PartialContent != "" {
			r.messages = append(r.messages, types.ProjectedMessage{
				Role:          types.RoleAssistant,
				Content:       []types.ContentBlock{{Type: "text", Text: partial.PartialContent}},
				SourceEventID: ev.ID,
			})
		}
		r.lastInterrupted = true

	case types.EventMessageDeleted:
		// Applied up front via buildDeletionSet; no further effect here.

	default:
		// session.end, session.fork, stream.*, subagent.*,
		// notification.*, hook.*, memory.ledger, rules.loaded: recorded
		// in the durable log but carry no message-projection effect.
	}
}

// DeriveTitle produces a short session title from the first user
// message, the way the teacher's auto-title step does, but as a pure
// heuristic rather than a model call: strip filler words, take the
// first line, cap the length. Nothing in this module calls it:
// CreateSession stores the title its caller supplies, empty or not.
func DeriveTitle(firstUserMessage string) string {
	const maxLen = 50
	const fallback = "New Session"

	line := strings.TrimSpace(firstUserMessage)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	if line == "" {
		return fallback
	}

	line = stripFillerPrefix(line)
	if line == "" {
		return fallback
	}

	runes := []rune(line)
	if len(runes) > 0 {
		runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	}
	line = string(runes)

	runes = []rune(line)
	if len(runes) > maxLen {
		line = strings.TrimSpace(string(runes[:maxLen])) + "…"
	}
	return line
}

var fillerPrefixes = []string{
	"please ", "can you ", "could you ", "i want to ", "i need to ",
	"i'd like to ", "help me ", "let's ", "lets ",
}

func stripFillerPrefix(s string) string {
	lower := strings.ToLower(s)
	for _, prefix := range fillerPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}
	return s
}
