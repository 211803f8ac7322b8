// Package contextmgr implements the Context Manager (spec.md §4.3): the
// in-memory message projection sent to the LLM for the next turn,
// context-window budget enforcement, and compaction orchestration. The
// projection is a view over the event chain minus tombstoned events —
// the Context Manager never writes to the log itself except to append
// compact.boundary markers through the caller-supplied appender.
//
// Grounded on the teacher's internal/session/compact.go (the
// MinMessagesToKeep/ContextThreshold/SummaryMaxTokens shape, the
// "compacting" session flag, the synthetic summary-message pattern) and
// internal/provider's per-model ContextLength figures, generalized from
// a single always-on compaction policy into threshold-gated budget
// queries plus an explicit preview/execute split.
package contextmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mhismail3/tron-sub003/internal/blobstore"
	"github.com/mhismail3/tron-sub003/internal/tokens"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

// ThresholdLevel classifies usagePercent against contextLimit.
type ThresholdLevel string

const (
	ThresholdNormal   ThresholdLevel = "normal"
	ThresholdWarning  ThresholdLevel = "warning"
	ThresholdAlert    ThresholdLevel = "alert"
	ThresholdCritical ThresholdLevel = "critical"
	ThresholdExceeded ThresholdLevel = "exceeded"
)

// classifyThreshold implements the boundary table from spec.md §4.3:
// normal < 0.50 ≤ warning < 0.70 ≤ alert < 0.85 ≤ critical < 0.95 ≤ exceeded.
func classifyThreshold(usagePercent float64) ThresholdLevel {
	switch {
	case usagePercent >= 0.95:
		return ThresholdExceeded
	case usagePercent >= 0.85:
		return ThresholdCritical
	case usagePercent >= 0.70:
		return ThresholdAlert
	case usagePercent >= 0.50:
		return ThresholdWarning
	default:
		return ThresholdNormal
	}
}

// Breakdown is the per-component token estimate in a Snapshot.
type Breakdown struct {
	SystemPrompt int
	Tools        int
	Rules        int
	Messages     int
}

// Snapshot is the return value of getSnapshot.
type Snapshot struct {
	CurrentTokens  int
	ContextLimit   int
	UsagePercent   float64
	ThresholdLevel ThresholdLevel
	Breakdown      Breakdown
}

// ToolSpec is the minimal shape the Context Manager needs from a tool
// definition to estimate its schema's token cost.
type ToolSpec struct {
	Name   string
	Schema map[string]any
}

// CanAcceptTurnInput is the input to canAcceptTurn.
type CanAcceptTurnInput struct {
	EstimatedResponseTokens int
}

// CanAcceptTurnResult is the output of canAcceptTurn.
type CanAcceptTurnResult struct {
	CanProceed       bool
	NeedsCompaction  bool
	WouldExceedLimit bool
}

// ProcessToolResultResult is the output of processToolResult.
type ProcessToolResultResult struct {
	Content      string
	Truncated    bool
	OriginalSize int
	BlobID       string
}

// ErrSummarizationRejected is returned by executeCompaction/previewCompaction
// when the injected Summarizer declines the job (e.g. empty input).
var ErrSummarizationRejected = errors.New("contextmgr: summarizer rejected compaction input")

// SummaryResult is what a Summarizer capability produces.
type SummaryResult struct {
	Narrative     string
	ExtractedData map[string]any
}

// Summarizer is the injected capability (spec.md §6) the compaction
// engine calls to turn a prefix of messages into a narrative summary.
// Reference implementations live in internal/providerref.
type Summarizer interface {
	Summarize(ctx context.Context, messages []types.ProjectedMessage) (SummaryResult, error)
}

// AppendCompactBoundaryFunc persists a compact.boundary event. Callers
// normally wire this to internal/linearizer.Linearizer.AppendLinearizedSync
// (passing types.EventCompactBoundary) or directly to internal/store.Store.Append
// for a caller not already using the Linearizer.
type AppendCompactBoundaryFunc func(ctx context.Context, payload types.CompactBoundaryPayload) (types.Event, error)

const (
	// defaultPreserveRecentTurns is preserveRecentTurns' default (5
	// turns = 10 messages), per spec.md §4.3.1.
	defaultPreserveRecentTurns = 5

	// reservedResponseBudget and minRemainingFloor are the constants in
	// processToolResult's dynamic cap formula (spec.md §4.3).
	reservedResponseBudget = 8_000
	minRemainingFloor      = 2_500
	maxToolResultCap       = 100_000
)

// Manager holds one session's in-memory context-budget state. Not safe
// for concurrent use from multiple goroutines without external
// serialization — callers normally drive it from inside the session's
// Linearizer worker, which already serializes per-session access.
type Manager struct {
	mu sync.Mutex

	sessionID        string
	model            string
	providerType     tokens.ProviderType
	contextLimit     int
	customSystemPrompt string
	workingDirectory string
	tools            []ToolSpec
	rulesContent     string

	messages []types.ProjectedMessage

	lastApiContextTokens *int

	systemPromptTokensCache int
	toolsTokensCache        int
	rulesTokensCache        int
	cacheValid              bool

	blobs *blobstore.Store
}

// Config seeds a Manager's initial state.
type Config struct {
	SessionID          string
	Model              string
	ProviderType       tokens.ProviderType
	CustomSystemPrompt string
	WorkingDirectory   string
	Tools              []ToolSpec
	RulesContent       string
	Blobs              *blobstore.Store
}

// New constructs a Manager for one session.
func New(cfg Config) *Manager {
	return &Manager{
		sessionID:          cfg.SessionID,
		model:              cfg.Model,
		providerType:       cfg.ProviderType,
		contextLimit:       lookupContextLimit(cfg.Model),
		customSystemPrompt: cfg.CustomSystemPrompt,
		workingDirectory:   cfg.WorkingDirectory,
		tools:              cfg.Tools,
		rulesContent:       cfg.RulesContent,
		blobs:              cfg.Blobs,
	}
}

// AddMessage appends msg to the projection.
func (m *Manager) AddMessage(msg types.ProjectedMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// SetMessages replaces the projection wholesale (e.g. after a
// reconstruct.Reconstruct call) and clears the API-authoritative token
// count, since it no longer corresponds to this message list.
func (m *Manager) SetMessages(list []types.ProjectedMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append([]types.ProjectedMessage(nil), list...)
	m.lastApiContextTokens = nil
}

// ClearMessages empties the projection and clears the API-authoritative
// token count.
func (m *Manager) ClearMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
	m.lastApiContextTokens = nil
}

// GetSystemPrompt builds the provider-specific system prompt. Providers
// that forbid system-prompt modification (tracked by providerType) get
// an empty prompt here; ToolClarification carries the text that should
// instead be prepended to the first user message of the turn.
func (m *Manager) GetSystemPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forbidsSystemPromptMutation() {
		return ""
	}
	return m.customSystemPrompt
}

// ToolClarification returns the text to prepend to the first user
// message of the turn when GetSystemPrompt returned empty because the
// provider forbids system-prompt mutation.
func (m *Manager) ToolClarification() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.forbidsSystemPromptMutation() || m.customSystemPrompt == "" {
		return ""
	}
	return m.customSystemPrompt
}

// forbidsSystemPromptMutation is a placeholder policy hook: today no
// wired provider family forbids it, so this always returns false. A
// future provider adapter that does should set a field read here rather
// than threading a new parameter through every call site.
func (m *Manager) forbidsSystemPromptMutation() bool {
	return false
}

func (m *Manager) recomputeCacheLocked() {
	if m.cacheValid {
		return
	}
	m.systemPromptTokensCache = estimateTokens(m.customSystemPrompt)
	m.toolsTokensCache = estimateJSONTokens(m.tools)
	m.rulesTokensCache = estimateTokens(m.rulesContent)
	m.cacheValid = true
}

func (m *Manager) invalidateCacheLocked() {
	m.cacheValid = false
}

// GetSnapshot returns the current budget snapshot.
func (m *Manager) GetSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	m.recomputeCacheLocked()
	messagesTokens := estimateMessagesTokens(m.messages)

	var current int
	if m.lastApiContextTokens != nil {
		current = *m.lastApiContextTokens
	} else {
		current = m.systemPromptTokensCache + m.toolsTokensCache + m.rulesTokensCache + messagesTokens
	}

	usage := 0.0
	if m.contextLimit > 0 {
		usage = float64(current) / float64(m.contextLimit)
	}

	return Snapshot{
		CurrentTokens:  current,
		ContextLimit:   m.contextLimit,
		UsagePercent:   usage,
		ThresholdLevel: classifyThreshold(usage),
		Breakdown: Breakdown{
			SystemPrompt: m.systemPromptTokensCache,
			Tools:        m.toolsTokensCache,
			Rules:        m.rulesTokensCache,
			Messages:     messagesTokens,
		},
	}
}

// CanAcceptTurn reports whether another turn can proceed given an
// estimate of the response it would produce.
func (m *Manager) CanAcceptTurn(in CanAcceptTurnInput) CanAcceptTurnResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshotLocked()

	projected := snap.CurrentTokens + in.EstimatedResponseTokens
	wouldExceed := m.contextLimit > 0 && projected > m.contextLimit

	needsCompaction := snap.ThresholdLevel == ThresholdAlert ||
		snap.ThresholdLevel == ThresholdCritical ||
		snap.ThresholdLevel == ThresholdExceeded

	canProceed := snap.ThresholdLevel != ThresholdCritical && snap.ThresholdLevel != ThresholdExceeded

	return CanAcceptTurnResult{
		CanProceed:       canProceed,
		NeedsCompaction:  needsCompaction,
		WouldExceedLimit: wouldExceed,
	}
}

// ShouldCompact reports whether usagePercent has reached the
// compaction-trigger threshold (spec.md §4.3: usagePercent ≥ 0.70).
func (m *Manager) ShouldCompact() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked().UsagePercent >= 0.70
}

// ProcessToolResult enforces the dynamic tool-output cap from spec.md
// §4.3 and offloads anything over the cap via the Blob Store, returning
// the (possibly truncated, pointer-suffixed) content the event store
// should persist.
func (m *Manager) ProcessToolResult(ctx context.Context, content []byte) (ProcessToolResultResult, error) {
	m.mu.Lock()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	maxBytes := dynamicToolResultCap(snap.ContextLimit, snap.CurrentTokens)

	if m.blobs == nil {
		if len(content) <= maxBytes {
			return ProcessToolResultResult{Content: string(content)}, nil
		}
		return ProcessToolResultResult{}, fmt.Errorf("contextmgr: tool result exceeds %d bytes and no blob store is wired", maxBytes)
	}

	out, err := m.blobs.Offload(ctx, content, "text/plain", maxBytes)
	if err != nil {
		return ProcessToolResultResult{}, fmt.Errorf("contextmgr: offload tool result: %w", err)
	}
	return ProcessToolResultResult{
		Content:      out.Content,
		Truncated:    out.Truncated,
		OriginalSize: len(content),
		BlobID:       out.BlobID,
	}, nil
}

// dynamicToolResultCap implements spec.md §4.3's formula:
// maxBytes = min(4 × max(contextLimit − currentTokens − 8_000 − 10% of remaining, 2_500), 100_000).
func dynamicToolResultCap(contextLimit, currentTokens int) int {
	remaining := contextLimit - currentTokens
	tenPercentOfRemaining := remaining / 10
	budget := remaining - reservedResponseBudget - tenPercentOfRemaining
	if budget < minRemainingFloor {
		budget = minRemainingFloor
	}
	maxBytes := budget * 4
	if maxBytes > maxToolResultCap {
		maxBytes = maxToolResultCap
	}
	return maxBytes
}

// SwitchModel updates model, provider family, and context limit,
// invalidating cached estimates. Per spec.md §4.3, the caller is
// responsible for invoking the compaction callback if the new limit
// puts the session over threshold; SwitchModel reports that via its
// return value rather than triggering compaction itself, since
// compaction needs an injected Summarizer the Manager doesn't own.
func (m *Manager) SwitchModel(newModel string, providerType tokens.ProviderType) (overThreshold bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = newModel
	m.providerType = providerType
	m.contextLimit = lookupContextLimit(newModel)
	m.invalidateCacheLocked()
	m.lastApiContextTokens = nil

	snap := m.snapshotLocked()
	return snap.ThresholdLevel == ThresholdAlert || snap.ThresholdLevel == ThresholdCritical || snap.ThresholdLevel == ThresholdExceeded
}

// SetWorkingDirectory updates the working directory and invalidates
// caches that might depend on it (rules/tools resolution).
func (m *Manager) SetWorkingDirectory(wd string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workingDirectory = wd
	m.invalidateCacheLocked()
}

// SetRulesContent updates the rules bundle and invalidates its cached
// estimate.
func (m *Manager) SetRulesContent(rules string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rulesContent = rules
	m.invalidateCacheLocked()
}

// SetApiContextTokens records the provider's authoritative context-window
// token count for the current turn; it takes priority over the
// component-sum estimate until the next SetMessages/ClearMessages call.
func (m *Manager) SetApiContextTokens(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastApiContextTokens = &n
}

// Messages returns a copy of the current projection.
func (m *Manager) Messages() []types.ProjectedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ProjectedMessage(nil), m.messages...)
}
