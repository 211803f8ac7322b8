package rpc

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/mhismail3/tron-sub003/internal/contextmgr"
	"github.com/mhismail3/tron-sub003/internal/tokens"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

// modelSwitchRequest is the JSON body of model.switch.
type modelSwitchRequest struct {
	NewModel string `json:"newModel"`
	Reason   string `json:"reason,omitempty"`
}

// modelSwitch handles POST /sessions/{sessionID}/model/switch — spec.md
// §6's model.switch. The target model must resolve to a known pricing
// entry (tokens.IsRecognizedModel: an exact tokens.KnownModelIDs entry
// or a recognized family pattern) rather than only an exact id; an
// unrecognized id is NOT_SUPPORTED rather than silently accepted, since
// the Token Tracker's cost calculation would otherwise fall back to
// mid-tier default pricing for a model that may not even exist.
func (s *Server) modelSwitch(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req modelSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidParams, "invalid JSON body")
		return
	}
	if req.NewModel == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidParams, "newModel is required")
		return
	}
	if !isKnownModel(req.NewModel) {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeNotSupported, "unrecognized model: "+req.NewModel)
		return
	}

	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		writeStoreError(w, "getSession", err)
		return
	}

	payload := types.ConfigModelSwitchPayload{
		PreviousModel: sess.LatestModel,
		NewModel:      req.NewModel,
		Reason:        req.Reason,
	}

	ev, err := s.linearizer.AppendLinearizedSync(r.Context(), sessionID, types.EventConfigModelSwitch, payload)
	if err != nil {
		writeStoreError(w, "append", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// modelCatalogEntry is one row of model.list's response.
type modelCatalogEntry struct {
	ID               string  `json:"id"`
	ContextLimit     int     `json:"contextLimit"`
	InputPerMillion  float64 `json:"inputPerMillion"`
	OutputPerMillion float64 `json:"outputPerMillion"`
}

// modelList handles GET /models — spec.md §6's model.list.
func (s *Server) modelList(w http.ResponseWriter, r *http.Request) {
	ids := tokens.KnownModelIDs()
	sort.Strings(ids)

	entries := make([]modelCatalogEntry, 0, len(ids))
	for _, id := range ids {
		pricing := tokens.LookupPricing(id)
		entries = append(entries, modelCatalogEntry{
			ID:               id,
			ContextLimit:     contextmgr.LookupContextLimit(id),
			InputPerMillion:  pricing.InputPerMillion,
			OutputPerMillion: pricing.OutputPerMillion,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func isKnownModel(model string) bool {
	return tokens.IsRecognizedModel(model)
}
