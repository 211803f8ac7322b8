package orchestrator

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/mhismail3/tron-sub003/internal/logging"
)

// RedisMirror re-publishes Orchestrator emissions onto a Redis Pub/Sub
// channel per session, so a deployment running more than one process
// can fan a session's streaming emissions out to whichever process
// holds the client connection — the in-process watermill gochannel bus
// alone only reaches subscribers in the same process.
//
// Adapted from goadesign-goa-ai's registry/result_stream.go, which
// backs its own cross-node result delivery with a Redis client; this
// mirror is a much thinner slice of that idea (fire-and-forget PUBLISH,
// no consumer-group bookkeeping) since the orchestrator's streaming
// emissions are explicitly best-effort, not a durability boundary.
type RedisMirror struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisMirror wraps an already-configured Redis client. prefix
// namespaces the pub/sub channels (e.g. by deployment or tenant).
func NewRedisMirror(rdb *redis.Client, prefix string) *RedisMirror {
	if prefix == "" {
		prefix = "sessioncore"
	}
	return &RedisMirror{rdb: rdb, prefix: prefix}
}

func (m *RedisMirror) channel(sessionID string) string {
	return m.prefix + ":session:" + sessionID
}

// Publish fire-and-forgets data onto sessionId's Redis channel. Failures
// are logged, not returned — mirroring is best-effort by design; the
// local watermill bus is the primary delivery path.
func (m *RedisMirror) Publish(sessionID string, data []byte) {
	ctx := context.Background()
	if err := m.rdb.Publish(ctx, m.channel(sessionID), data).Err(); err != nil {
		logging.Component("orchestrator").Debug().Err(err).Str("session_id", sessionID).Msg("redis mirror publish failed")
	}
}

// Subscribe returns a Redis PubSub handle for sessionId, for a process
// that wants to observe another process's emissions. Callers must
// Close() the returned *redis.PubSub when done.
func (m *RedisMirror) Subscribe(ctx context.Context, sessionID string) *redis.PubSub {
	return m.rdb.Subscribe(ctx, m.channel(sessionID))
}
