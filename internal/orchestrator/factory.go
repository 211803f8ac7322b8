package orchestrator

import (
	"github.com/mhismail3/tron-sub003/internal/store"
	"github.com/mhismail3/tron-sub003/internal/tokens"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

// DomainEventKind is the closed set of high-level domain events the
// orchestrator façade accepts, per spec.md §4.7.
type DomainEventKind string

const (
	KindTurnStart          DomainEventKind = "turn_start"
	KindResponseComplete   DomainEventKind = "response_complete"
	KindToolUseBatch       DomainEventKind = "tool_use_batch"
	KindToolExecutionStart DomainEventKind = "tool_execution_start"
	KindToolExecutionEnd   DomainEventKind = "tool_execution_end"
	KindThinkingStart      DomainEventKind = "thinking_start"
	KindThinkingDelta      DomainEventKind = "thinking_delta"
	KindThinkingEnd        DomainEventKind = "thinking_end"
	KindCompactionComplete DomainEventKind = "compaction_complete"
	KindHookTriggered      DomainEventKind = "hook_triggered"
	KindHookCompleted      DomainEventKind = "hook_completed"
	KindAgentInterrupted   DomainEventKind = "agent_interrupted"
	KindMessageUpdate      DomainEventKind = "message_update"
)

// DomainEvent is what an agent/tool/streaming loop hands to the
// orchestrator. Payload is typed per Kind (see Dispatch in orchestrator.go); Turn/
// ToolName/ToolCallID mirror onto the durable event's indexed columns
// when the kind produces one.
type DomainEvent struct {
	Kind       DomainEventKind
	SessionID  string
	Turn       *int
	ToolName   *string
	ToolCallID *string
	RunID      *string
	Payload    any

	// Provider/LongContextThreshold are only meaningful for
	// KindResponseComplete, where they drive the Token Tracker's
	// normalization and cost calculation.
	Provider             tokens.ProviderType
	LongContextThreshold int
}

// mintAppendParams is the Event Factory: it builds the store.AppendParams
// a domain event maps to, carrying the required metadata (sessionId,
// turn/toolName/toolCallId/runId indexed columns) the Event Store will
// stamp with id/sequence/timestamp/parentId on Append. The factory
// itself never calls Append — that is the Linearizer's job, so every
// durable write still goes through the one serialization point.
func mintAppendParams(ev DomainEvent, eventType types.EventType) store.AppendParams {
	return store.AppendParams{
		SessionID:  ev.SessionID,
		Type:       eventType,
		Payload:    ev.Payload,
		Turn:       ev.Turn,
		ToolName:   ev.ToolName,
		ToolCallID: ev.ToolCallID,
		RunID:      ev.RunID,
	}
}
