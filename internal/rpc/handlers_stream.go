package rpc

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// sessionStream handles GET /sessions/{sessionID}/stream, upgrading to
// the WebSocket streaming transport spec.md §4.5 and §4.7 describe.
func (s *Server) sessionStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s.broadcaster.ServeSession(w, r, sessionID)
}
