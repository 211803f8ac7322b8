package orchestrator

import (
	"net/http"

	"github.com/coder/websocket"

	"github.com/mhismail3/tron-sub003/internal/logging"
)

// Broadcaster upgrades an HTTP request to a WebSocket and streams one
// session's emissions to it verbatim. This is the transport spec.md
// §4.5 calls out by name: streaming clients receive the full
// pre-truncation tool-result content the orchestrator publishes in its
// KindToolExecutionEnd emission, independent of whatever truncated,
// pointer-suffixed form the Event Store persists for that same turn.
type Broadcaster struct {
	orch *Orchestrator
}

// NewBroadcaster wraps an Orchestrator for WebSocket delivery.
func NewBroadcaster(o *Orchestrator) *Broadcaster {
	return &Broadcaster{orch: o}
}

// ServeSession upgrades r to a WebSocket and forwards sessionId's
// emissions to it until the client disconnects or the request context
// is cancelled. Intended to be mounted behind a route that extracts
// sessionId from the URL (see internal/rpc).
func (b *Broadcaster) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logging.Component("orchestrator").Debug().Err(err).Str("session_id", sessionID).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	msgs, err := b.orch.Subscribe(ctx, sessionID)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client disconnected")
			return
		case msg, ok := <-msgs:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "stream closed")
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, msg.Payload); err != nil {
				logging.Component("orchestrator").Debug().Err(err).Str("session_id", sessionID).Msg("websocket write failed")
				msg.Ack()
				return
			}
			msg.Ack()
		}
	}
}
