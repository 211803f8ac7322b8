// Package orchestrator implements the Orchestrator façade (spec.md
// §4.7): a thin router from domain events (turn_start,
// response_complete, tool_use_batch, tool_execution_start/end,
// thinking_*, compaction_complete, hook_triggered/completed,
// agent_interrupted, message_update) into Linearizer submissions,
// Token Tracker updates, and WebSocket-style emissions. It carries no
// business rules beyond dispatch — the actual policy lives in
// internal/store, internal/linearizer, internal/tokens and
// internal/contextmgr.
//
// Grounded on the teacher's internal/event/bus.go: a watermill
// gochannel-backed pub/sub kept for "potential future middleware" in
// the teacher, used here for what it was built for — this core's
// WebSocket-style streaming emissions — plus an optional cross-process
// Redis mirror (adapted from goadesign-goa-ai's registry/result_stream.go
// Redis pub/sub bridge) for deployments running more than one process.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/mhismail3/tron-sub003/internal/blobstore"
	"github.com/mhismail3/tron-sub003/internal/linearizer"
	"github.com/mhismail3/tron-sub003/internal/logging"
	"github.com/mhismail3/tron-sub003/internal/tokens"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

// Orchestrator wires the Linearizer, Token Tracker, and a streaming bus
// together. One Orchestrator serves every session in the process.
type Orchestrator struct {
	linearizer *linearizer.Linearizer
	tracker    *tokens.Tracker
	pubsub     *gochannel.GoChannel
	mirror     *RedisMirror // nil unless WithRedisMirror is used

	blobs         *blobstore.Store // nil unless WithBlobOffload is used
	embedCapBytes int
}

// New constructs an Orchestrator over an already-running Linearizer and
// Token Tracker.
func New(l *linearizer.Linearizer, tr *tokens.Tracker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		linearizer: l,
		tracker:    tr,
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 128, Persistent: false},
			watermill.NopLogger{},
		),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithRedisMirror re-publishes every local emission to mirror as well,
// so other processes subscribed to the same Redis instance observe the
// same stream (spec.md §5's shared-resource policy extended across
// processes, not just goroutines).
func WithRedisMirror(mirror *RedisMirror) Option {
	return func(o *Orchestrator) { o.mirror = mirror }
}

// WithBlobOffload equips the Orchestrator to apply spec.md §4.5's
// deferred-truncation contract to tool_execution_end: the durable
// tool.result event is truncated and pointered through blobs.Offload
// (capped at embedCapBytes, or blobstore.EmbedCap if embedCapBytes<=0),
// while streaming subscribers still receive the full, untruncated
// content. Without this option, tool_execution_end is persisted and
// streamed verbatim.
func WithBlobOffload(blobs *blobstore.Store, embedCapBytes int) Option {
	return func(o *Orchestrator) {
		o.blobs = blobs
		o.embedCapBytes = embedCapBytes
	}
}

func topicFor(sessionID string) string { return "session." + sessionID }

// Subscribe returns a channel of streaming emissions for sessionId.
// Callers (e.g. a WebSocket handler) range over it until ctx is done.
func (o *Orchestrator) Subscribe(ctx context.Context, sessionID string) (<-chan *message.Message, error) {
	return o.pubsub.Subscribe(ctx, topicFor(sessionID))
}

// Close releases the underlying pub/sub infrastructure.
func (o *Orchestrator) Close() error {
	return o.pubsub.Close()
}

// emission is the envelope published on the streaming bus.
type emission struct {
	Kind      DomainEventKind `json:"kind"`
	SessionID string          `json:"sessionId"`
	Payload   any             `json:"payload"`
}

func (o *Orchestrator) publish(sessionID string, kind DomainEventKind, payload any) {
	data, err := json.Marshal(emission{Kind: kind, SessionID: sessionID, Payload: payload})
	if err != nil {
		logging.Component("orchestrator").Debug().Err(err).Str("kind", string(kind)).Msg("marshal emission failed")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("kind", string(kind))
	msg.Metadata.Set("session_id", sessionID)

	if err := o.pubsub.Publish(topicFor(sessionID), msg); err != nil {
		logging.Component("orchestrator").Debug().Err(err).Str("kind", string(kind)).Msg("publish failed")
	}

	if o.mirror != nil {
		o.mirror.Publish(sessionID, data)
	}
}

// Dispatch routes one domain event. Durable-event kinds submit to the
// Linearizer fire-and-forget; the append's own durability/ordering
// guarantees are the Linearizer's, not the orchestrator's — Dispatch
// returns an error only for a malformed domain event, never for an
// append failure (those are logged by the Linearizer per spec.md §7's
// propagation policy: "Linearizer callbacks failing are logged and do
// not block subsequent work").
func (o *Orchestrator) Dispatch(ev DomainEvent) error {
	switch ev.Kind {
	case KindTurnStart:
		o.appendAndPublish(ev, types.EventStreamTurnStart)
		return nil

	case KindResponseComplete:
		o.appendAndPublish(ev, types.EventMessageAssistant)
		return nil

	case KindToolUseBatch:
		return o.dispatchToolUseBatch(ev)

	case KindToolExecutionStart:
		o.publish(ev.SessionID, ev.Kind, ev.Payload)
		return nil

	case KindToolExecutionEnd:
		return o.dispatchToolExecutionEnd(ev)

	case KindThinkingStart, KindThinkingDelta, KindThinkingEnd:
		o.publish(ev.SessionID, ev.Kind, ev.Payload)
		return nil

	case KindCompactionComplete:
		// compact.boundary is appended by internal/contextmgr.ExecuteCompaction
		// itself (it needs the Manager's own message-projection lock); the
		// orchestrator only relays the completion for streaming clients.
		o.publish(ev.SessionID, ev.Kind, ev.Payload)
		return nil

	case KindHookTriggered:
		o.appendAndPublish(ev, types.EventHookTriggered)
		return nil

	case KindHookCompleted:
		o.appendAndPublish(ev, types.EventHookCompleted)
		return nil

	case KindAgentInterrupted:
		o.appendAndPublish(ev, types.EventErrorAgent)
		return nil

	case KindMessageUpdate:
		o.publish(ev.SessionID, ev.Kind, ev.Payload)
		return nil

	default:
		return fmt.Errorf("orchestrator: unknown domain event kind %q", ev.Kind)
	}
}

// appendAndPublish submits the append via the Linearizer and publishes
// the durable event (and, for response_complete, the normalized usage)
// once it lands.
func (o *Orchestrator) appendAndPublish(ev DomainEvent, eventType types.EventType) {
	meta := mintAppendParams(ev, eventType)
	kind := ev.Kind

	o.linearizer.AppendLinearizedMeta(ev.SessionID, eventType, ev.Payload, meta, func(durable types.Event) {
		if kind == KindResponseComplete {
			o.recordUsage(ev, durable)
		}
		o.publish(ev.SessionID, kind, durable)
	})
}

// dispatchToolExecutionEnd implements spec.md §4.5's deferred-truncation
// contract: streaming subscribers are published the full, pre-truncation
// tool.result content immediately, while the durable copy persisted
// through the Linearizer is truncated and pointered via blobstore.Offload
// when it exceeds the embed cap. The two forms therefore diverge by
// design — Broadcaster relays the former, internal/store holds the
// latter — which is why DomainEvent's single Payload field cannot carry
// both: one is built straight into the published emission, the other is
// built into the AppendParams handed to the Linearizer.
func (o *Orchestrator) dispatchToolExecutionEnd(ev DomainEvent) error {
	full, ok := ev.Payload.(types.ToolResultPayload)
	if !ok {
		return fmt.Errorf("orchestrator: tool_execution_end payload must be types.ToolResultPayload, got %T", ev.Payload)
	}

	o.publish(ev.SessionID, ev.Kind, full)

	durable := full
	if o.blobs != nil {
		offload, err := o.blobs.Offload(context.Background(), []byte(full.Content), "text/plain", o.embedCapBytes)
		if err != nil {
			logging.Component("orchestrator").Warn().Err(err).Str("session_id", ev.SessionID).Msg("tool result blob offload failed, persisting untruncated")
		} else {
			durable.Content = offload.Content
			durable.Truncated = offload.Truncated
			durable.BlobID = offload.BlobID
		}
	}

	durableEv := ev
	durableEv.Payload = durable
	meta := mintAppendParams(durableEv, types.EventToolResult)
	o.linearizer.AppendLinearizedMeta(ev.SessionID, types.EventToolResult, durable, meta, nil)
	return nil
}

func (o *Orchestrator) dispatchToolUseBatch(ev DomainEvent) error {
	calls, ok := ev.Payload.([]types.ToolCallPayload)
	if !ok {
		return fmt.Errorf("orchestrator: tool_use_batch payload must be []types.ToolCallPayload, got %T", ev.Payload)
	}

	for _, call := range calls {
		call := call
		turn := call.Turn
		toolCallID := call.ToolCallID
		toolName := call.Name
		meta := mintAppendParams(DomainEvent{SessionID: ev.SessionID, Turn: &turn, RunID: ev.RunID}, types.EventToolCall)
		meta.ToolName = &toolName
		meta.ToolCallID = &toolCallID

		o.linearizer.AppendLinearizedMeta(ev.SessionID, types.EventToolCall, call, meta, func(durable types.Event) {
			o.publish(ev.SessionID, KindToolUseBatch, durable)
		})
	}
	return nil
}

// recordUsage normalizes and costs a completed turn's usage through the
// Token Tracker and publishes the result as a distinct streaming
// emission, since UI/billing consumers care about it independently of
// the raw message content.
func (o *Orchestrator) recordUsage(ev DomainEvent, durable types.Event) {
	payload, ok := ev.Payload.(types.MessageAssistantPayload)
	if !ok {
		return
	}

	raw := tokens.RawUsage{
		InputTokens:         payload.TokenUsage.InputTokens,
		OutputTokens:        payload.TokenUsage.OutputTokens,
		CacheReadTokens:     payload.TokenUsage.CacheReadTokens,
		CacheCreationTokens: payload.TokenUsage.CacheCreationTokens,
	}

	normalized := o.tracker.Normalize(ev.SessionID, ev.Provider, raw)
	cost := o.tracker.Cost(string(ev.Provider), payload.Model, raw, ev.LongContextThreshold)

	o.publish(ev.SessionID, "usage_update", usageUpdate{
		EventID:    durable.ID,
		Normalized: normalized,
		CostUSD:    cost,
	})
}

type usageUpdate struct {
	EventID    string                `json:"eventId"`
	Normalized tokens.NormalizedUsage `json:"normalized"`
	CostUSD    float64                `json:"costUsd"`
}
