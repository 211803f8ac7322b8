package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// deleteMessageRequest is the optional JSON body of message.delete.
type deleteMessageRequest struct {
	Reason string `json:"reason,omitempty"`
}

// messageDelete handles DELETE /sessions/{sessionID}/messages/{eventID}
// — spec.md §6's message.delete. Tombstoning itself is not routed
// through the Linearizer: store.DeleteMessage re-validates the target
// against the session's current head inside its own transaction, so a
// concurrent in-flight turn append cannot race it into an inconsistent
// chain.
func (s *Server) messageDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	eventID := chi.URLParam(r, "eventID")

	var req deleteMessageRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidParams, "invalid JSON body")
			return
		}
	}

	tombstone, err := s.store.DeleteMessage(r.Context(), sessionID, eventID, req.Reason)
	if err != nil {
		writeStoreError(w, "deleteMessage", err)
		return
	}
	writeJSON(w, http.StatusOK, tombstone)
}
