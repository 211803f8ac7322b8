package types

import "time"

// Session is the identity and derived-cache row for one event chain.
// Every field other than ID/WorkspaceID/WorkingDirectory is a cache
// maintained by the Event Store as events are appended; none of it is
// itself durable truth — the event chain is.
type Session struct {
	ID               string `json:"id"`
	WorkspaceID      string `json:"workspaceId"`
	WorkingDirectory string `json:"workingDirectory"`
	Title            string `json:"title"`

	LatestModel string `json:"latestModel"`
	HeadEventID string `json:"headEventId"`
	TurnCount   int    `json:"turnCount"`

	TotalInputTokens         int64   `json:"totalInputTokens"`
	TotalOutputTokens        int64   `json:"totalOutputTokens"`
	TotalCacheReadTokens     int64   `json:"totalCacheReadTokens"`
	TotalCacheCreationTokens int64   `json:"totalCacheCreationTokens"`
	TotalCost                float64 `json:"totalCost"`

	// Summary is a derived code-change cache (SPEC_FULL F.3), recomputed
	// from the chain, never itself authoritative.
	Summary Summary `json:"summary"`

	CreatedAt      time.Time  `json:"createdAt"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`

	// CompactingSince mirrors the sessions table's compacting_since
	// column. No code in this module sets or clears that column.
	CompactingSince *time.Time `json:"compactingSince,omitempty"`

	ParentSessionID *string    `json:"parentSessionId,omitempty"`
	SpawnType       *SpawnType `json:"spawnType,omitempty"`
	SpawnTask       *string    `json:"spawnTask,omitempty"`
}

// Summary aggregates code-change statistics derived from tool.result
// payloads on Edit-family tools (SPEC_FULL F.3).
type Summary struct {
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Files     int        `json:"files"`
	Diffs     []FileDiff `json:"diffs,omitempty"`
}

// FileDiff is one file's contribution to a session's Summary.
type FileDiff struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Workspace is the canonical-path identity a session belongs to.
type Workspace struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Blob is content-addressed storage for oversized tool results.
type Blob struct {
	ID           string    `json:"id"`
	Hash         string    `json:"hash"`
	MimeType     string    `json:"mimeType"`
	SizeOriginal int       `json:"sizeOriginal"`
	Content      []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// LogRecord is a structured application log row.
type LogRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	LevelNum     int       `json:"levelNum"`
	Level        string    `json:"level"`
	Component    string    `json:"component"`
	SessionID    string    `json:"sessionId,omitempty"`
	Message      string    `json:"message"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Data         []byte    `json:"data,omitempty"` // raw JSON
}

// VectorRecord is an embedding attached to an event.
type VectorRecord struct {
	EventID   string    `json:"eventId"`
	Embedding []float32 `json:"embedding"`
}

// VectorMatch is one hit from a vector similarity search.
type VectorMatch struct {
	EventID  string  `json:"eventId"`
	Distance float64 `json:"distance"`
}

// FTSMatch is one hit from a full-text search.
type FTSMatch struct {
	EventID string  `json:"eventId"`
	BM25    float64 `json:"bm25Score"`
}
