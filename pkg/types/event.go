// Package types provides the core data types for the session persistence
// core: events, sessions, workspaces, blobs and their payload schemas.
package types

import "time"

// EventType is the closed set of durable event kinds. New kinds must be
// added here and to KnownEventTypes. Nothing checks switches over
// EventType for exhaustiveness: the reconstructor's switch ignores kinds
// it does not handle.
type EventType string

const (
	EventSessionStart               EventType = "session.start"
	EventSessionEnd                  EventType = "session.end"
	EventSessionFork                 EventType = "session.fork"
	EventMessageUser                 EventType = "message.user"
	EventMessageAssistant            EventType = "message.assistant"
	EventMessageDeleted              EventType = "message.deleted"
	EventToolCall                    EventType = "tool.call"
	EventToolResult                  EventType = "tool.result"
	EventConfigModelSwitch           EventType = "config.model_switch"
	EventCompactBoundary             EventType = "compact.boundary"
	EventStreamTurnStart             EventType = "stream.turn_start"
	EventStreamTurnEnd               EventType = "stream.turn_end"
	EventSubagentSpawned             EventType = "subagent.spawned"
	EventSubagentCompleted           EventType = "subagent.completed"
	EventSubagentFailed              EventType = "subagent.failed"
	EventNotificationSubagentResult  EventType = "notification.subagent_result"
	EventHookTriggered               EventType = "hook.triggered"
	EventHookCompleted               EventType = "hook.completed"
	EventErrorAgent                  EventType = "error.agent"
	EventMemoryLedger                EventType = "memory.ledger"
	EventRulesLoaded                 EventType = "rules.loaded"
)

// KnownEventTypes lists every member of the closed EventType set, in the
// order they appear in the spec. Used to validate append() input and to
// drive exhaustiveness checks in tests.
var KnownEventTypes = []EventType{
	EventSessionStart, EventSessionEnd, EventSessionFork,
	EventMessageUser, EventMessageAssistant, EventMessageDeleted,
	EventToolCall, EventToolResult,
	EventConfigModelSwitch, EventCompactBoundary,
	EventStreamTurnStart, EventStreamTurnEnd,
	EventSubagentSpawned, EventSubagentCompleted, EventSubagentFailed,
	EventNotificationSubagentResult,
	EventHookTriggered, EventHookCompleted,
	EventErrorAgent, EventMemoryLedger, EventRulesLoaded,
}

// IsKnownEventType reports whether t belongs to the closed set.
func IsKnownEventType(t EventType) bool {
	for _, k := range KnownEventTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Event is the atom of durable session state. Once written it is
// immutable; deletion is expressed by a message.deleted tombstone event
// referring to the target, never by mutation or removal.
type Event struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	WorkspaceID string    `json:"workspaceId"`
	ParentID    *string   `json:"parentId"`
	Sequence    int64     `json:"sequence"`
	Timestamp   time.Time `json:"timestamp"`
	Type        EventType `json:"type"`
	Payload     []byte    `json:"payload"` // raw JSON, typed by Type

	// Indexed columns mirrored from payload for query acceleration.
	Turn        *int    `json:"turn,omitempty"`
	ToolName    *string `json:"toolName,omitempty"`
	ToolCallID  *string `json:"toolCallId,omitempty"`
	InputTokens *int    `json:"inputTokens,omitempty"`
	OutputTokens *int   `json:"outputTokens,omitempty"`

	RunID *string `json:"runId,omitempty"`
}

// ContentBlock is the tagged union of assistant/user content. Exactly one
// of the Text/Thinking/ToolUse/Image fields is meaningful, selected by Type.
type ContentBlock struct {
	Type string `json:"type"` // "text" | "thinking" | "tool_use" | "image"

	Text string `json:"text,omitempty"`

	Thinking string `json:"thinking,omitempty"`

	ToolUseID   string         `json:"id,omitempty"`
	ToolUseName string         `json:"name,omitempty"`
	ToolUseArgs map[string]any `json:"arguments,omitempty"`

	ImageSource *ImageSource `json:"source,omitempty"`
}

// ImageSource carries inline base64 image data on an "image" ContentBlock.
type ImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// TokenUsagePayload is the per-turn usage attached to message.assistant.
type TokenUsagePayload struct {
	InputTokens         int `json:"inputTokens"`
	OutputTokens        int `json:"outputTokens"`
	CacheReadTokens     int `json:"cacheReadTokens,omitempty"`
	CacheCreationTokens int `json:"cacheCreationTokens,omitempty"`
}

// SessionStartPayload is the payload of a session.start event.
type SessionStartPayload struct {
	WorkingDirectory string   `json:"workingDirectory"`
	Model            string   `json:"model"`
	Provider         string   `json:"provider,omitempty"`
	Title            string   `json:"title,omitempty"`
	SystemPrompt     string   `json:"systemPrompt,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

// SessionForkPayload is the payload of a session.fork event.
type SessionForkPayload struct {
	SourceSessionID string `json:"sourceSessionId"`
	SourceEventID   string `json:"sourceEventId"`
	Name            string `json:"name,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// SessionEndReason enumerates why a session ended.
type SessionEndReason string

const (
	SessionEndCompleted SessionEndReason = "completed"
	SessionEndAborted   SessionEndReason = "aborted"
	SessionEndError     SessionEndReason = "error"
	SessionEndTimeout   SessionEndReason = "timeout"
)

// SessionEndPayload is the payload of a session.end event.
type SessionEndPayload struct {
	Reason SessionEndReason `json:"reason"`
}

// MessageUserPayload is the payload of a message.user event. Content may
// be a bare string or a list of ContentBlocks depending on producer; both
// are accepted on decode via UnmarshalJSON in codec.go.
type MessageUserPayload struct {
	Content []ContentBlock `json:"content"`
	Turn    int            `json:"turn"`
}

// MessageAssistantPayload is the payload of a message.assistant event.
type MessageAssistantPayload struct {
	Content      []ContentBlock     `json:"content"`
	Turn         int                `json:"turn"`
	Model        string             `json:"model"`
	StopReason   string             `json:"stopReason"`
	TokenUsage   TokenUsagePayload  `json:"tokenUsage"`
	LatencyMs    int64              `json:"latency,omitempty"`
	HasThinking  bool               `json:"hasThinking,omitempty"`
}

// StopReasonToolUse is the stop reason that excludes a turn from turnCount.
const StopReasonToolUse = "tool_use"

// MessageDeletedPayload is the payload of a message.deleted tombstone.
type MessageDeletedPayload struct {
	TargetEventID string `json:"targetEventId"`
	TargetType    EventType `json:"targetType"`
	TargetTurn    *int   `json:"targetTurn,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// ToolCallPayload is the payload of a tool.call event.
type ToolCallPayload struct {
	ToolCallID string         `json:"toolCallId"`
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments"`
	Turn       int            `json:"turn"`
}

// ToolResultPayload is the payload of a tool.result event.
type ToolResultPayload struct {
	ToolCallID string `json:"toolCallId"`
	Content    string `json:"content"`
	IsError    bool   `json:"isError"`
	DurationMs int64  `json:"duration,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
	BlobID     string `json:"blobId,omitempty"`

	// BeforeContent/AfterContent are optional, non-durable-schema
	// metadata set by Edit-family tools so the Event Store can fold a
	// line-diff into the session's derived summary (SPEC_FULL F.3).
	// They are not part of the spec's closed payload shape and are
	// dropped before persistence; see store.diffsummary.
	BeforeContent string `json:"-"`
	AfterContent  string `json:"-"`
	DiffPath      string `json:"-"`
}

// ConfigModelSwitchPayload is the payload of a config.model_switch event.
type ConfigModelSwitchPayload struct {
	PreviousModel string `json:"previousModel"`
	NewModel      string `json:"newModel"`
	Reason        string `json:"reason,omitempty"`
}

// CompactRange identifies the half-open range of summarized messages.
type CompactRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// CompactBoundaryPayload is the payload of a compact.boundary event.
type CompactBoundaryPayload struct {
	Range           CompactRange `json:"range"`
	OriginalTokens  int          `json:"originalTokens"`
	CompactedTokens int          `json:"compactedTokens"`
	Summary         string       `json:"summary"`
}

// SpawnType enumerates how a subagent session was created.
type SpawnType string

const (
	SpawnTypeSubsession SpawnType = "subsession"
	SpawnTypeTmux       SpawnType = "tmux"
)

// SubagentSpawnedPayload is the payload of a subagent.spawned event.
type SubagentSpawnedPayload struct {
	ChildSessionID string    `json:"childSessionId"`
	SpawnType      SpawnType `json:"spawnType"`
	Task           string    `json:"task"`
	AgentName      string    `json:"agentName,omitempty"`
}

// CompletionType enumerates how a subagent run finished.
type CompletionType string

const (
	CompletionTypeSuccess CompletionType = "success"
	CompletionTypeError   CompletionType = "error"
	CompletionTypeTimeout CompletionType = "timeout"
)

// SubagentCompletedPayload is the payload of a subagent.completed event.
type SubagentCompletedPayload struct {
	ChildSessionID string `json:"childSessionId"`
	Summary        string `json:"summary,omitempty"`
}

// SubagentFailedPayload is the payload of a subagent.failed event.
type SubagentFailedPayload struct {
	ChildSessionID string         `json:"childSessionId"`
	CompletionType CompletionType `json:"completionType"`
	Error          string         `json:"error,omitempty"`
}

// ErrorCategory enumerates error.agent categories.
type ErrorCategory string

const (
	ErrorCategoryTokenExtraction ErrorCategory = "TOKEN_EXTRACTION"
	ErrorCategoryProvider        ErrorCategory = "PROVIDER"
	ErrorCategoryInterrupted     ErrorCategory = "INTERRUPTED"
)

// ErrorAgentPayload is the payload of an error.agent event.
type ErrorAgentPayload struct {
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`
	Turn     *int          `json:"turn,omitempty"`
}

// AgentInterruptedPayload carries partial content for a cancelled turn.
// Persisted under EventErrorAgent with Category=ErrorCategoryInterrupted.
type AgentInterruptedPayload struct {
	PartialContent string `json:"partialContent"`
	Turn           int    `json:"turn"`
}
