package rpc

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mhismail3/tron-sub003/internal/store"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

// eventsGetHistory handles GET /sessions/{sessionID}/events — spec.md
// §6's events.getHistory, with the same filter set
// getEventsBySession exposes (types/turn/limit/offset).
func (s *Server) eventsGetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	params, err := parseGetEventsParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidParams, err.Error())
		return
	}

	events, err := s.store.GetEventsBySession(r.Context(), sessionID, params)
	if err != nil {
		writeStoreError(w, "getEventsBySession", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// eventsGetSince handles GET /sessions/{sessionID}/events/since —
// spec.md §6's events.getSince. Requires either afterEventId or
// afterTimestamp; a request supplying neither is INVALID_PARAMS since
// "since" with no anchor is not the same operation as getHistory.
func (s *Server) eventsGetSince(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	params, err := parseGetEventsParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidParams, err.Error())
		return
	}
	if params.AfterEventID == "" && params.AfterTimestamp == nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidParams, "afterEventId or afterTimestamp is required")
		return
	}

	events, err := s.store.GetEventsBySession(r.Context(), sessionID, params)
	if err != nil {
		writeStoreError(w, "getEventsBySession", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func parseGetEventsParams(r *http.Request) (store.GetEventsBySessionParams, error) {
	q := r.URL.Query()
	var p store.GetEventsBySessionParams

	for _, t := range q["type"] {
		et := types.EventType(t)
		if !types.IsKnownEventType(et) {
			return p, errUnknownEventType(t)
		}
		p.Types = append(p.Types, et)
	}

	if v := q.Get("turn"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errInvalidParam("turn", v)
		}
		p.Turn = &n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errInvalidParam("limit", v)
		}
		p.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errInvalidParam("offset", v)
		}
		p.Offset = n
	}
	p.AfterEventID = q.Get("afterEventId")
	if v := q.Get("afterTimestamp"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return p, errInvalidParam("afterTimestamp", v)
		}
		p.AfterTimestamp = &ts
	}

	return p, nil
}

// appendEventRequest is the JSON body of events.append.
type appendEventRequest struct {
	Type    types.EventType `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// eventsAppend handles POST /sessions/{sessionID}/events — spec.md §6's
// events.append. The append is routed through the Linearizer so an
// external caller's write is serialized against every in-process
// producer on the same session, never racing the append path turn
// handling and tool callbacks use internally.
func (s *Server) eventsAppend(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req appendEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidParams, "invalid JSON body")
		return
	}
	if !types.IsKnownEventType(req.Type) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidParams, "unknown event type: "+string(req.Type))
		return
	}
	if len(req.Payload) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidParams, "payload is required")
		return
	}

	ev, err := s.linearizer.AppendLinearizedSync(r.Context(), sessionID, req.Type, req.Payload)
	if err != nil {
		writeStoreError(w, "append", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func errUnknownEventType(t string) error {
	return &paramError{field: "type", value: t, reason: "unknown event type"}
}

func errInvalidParam(field, value string) error {
	return &paramError{field: field, value: value, reason: "invalid value"}
}

type paramError struct {
	field  string
	value  string
	reason string
}

func (e *paramError) Error() string {
	return e.reason + ": " + e.field + "=" + e.value
}
