package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhismail3/tron-sub003/internal/linearizer"
	"github.com/mhismail3/tron-sub003/internal/metrics"
	"github.com/mhismail3/tron-sub003/internal/orchestrator"
	"github.com/mhismail3/tron-sub003/internal/store"
	"github.com/mhismail3/tron-sub003/internal/tokens"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	sess, _, err := s.CreateSession(context.Background(), store.CreateSessionParams{
		WorkspacePath: "/tmp/p", WorkingDirectory: "/tmp/p", Model: "claude-sonnet-4-20250514", Provider: "anthropic",
	})
	require.NoError(t, err)

	m := metrics.New()
	lin := linearizer.New(s, m)
	t.Cleanup(func() { lin.Close(sess.ID) })

	tr := tokens.NewTracker(m)
	orch := orchestrator.New(lin, tr)
	t.Cleanup(func() { _ = orch.Close() })

	srv := New(DefaultConfig(), s, lin, orch)
	return srv, sess.ID
}

func TestEventsAppend_AppendsAndReturnsEvent(t *testing.T) {
	srv, sessionID := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"type":    "message.user",
		"payload": map[string]any{"content": "hello", "turn": 1},
	})
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var ev types.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	require.Equal(t, types.EventMessageUser, ev.Type)
	require.Equal(t, int64(1), ev.Sequence)
}

func TestEventsAppend_RejectsUnknownType(t *testing.T) {
	srv, sessionID := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"type": "bogus.event", "payload": map[string]any{}})
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, ErrCodeInvalidParams, errResp.Error.Code)
}

func TestEventsGetHistory_ReturnsChain(t *testing.T) {
	srv, sessionID := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sessionID+"/events", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var events []types.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1) // session.start root
}

func TestEventsGetSince_RequiresAnchor(t *testing.T) {
	srv, sessionID := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sessionID+"/events/since", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageDelete_TombstonesUserMessage(t *testing.T) {
	srv, sessionID := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"type":    "message.user",
		"payload": map[string]any{"content": "hello", "turn": 1},
	})
	appendReq := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/events", bytes.NewReader(body))
	appendRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(appendRec, appendReq)
	require.Equal(t, http.StatusOK, appendRec.Code)

	var ev types.Event
	require.NoError(t, json.Unmarshal(appendRec.Body.Bytes(), &ev))

	delReq := httptest.NewRequest(http.MethodDelete, "/sessions/"+sessionID+"/messages/"+ev.ID, nil)
	delRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(delRec, delReq)

	require.Equal(t, http.StatusOK, delRec.Code)
	var tombstone types.Event
	require.NoError(t, json.Unmarshal(delRec.Body.Bytes(), &tombstone))
	require.Equal(t, types.EventMessageDeleted, tombstone.Type)
}

func TestMessageDelete_RejectsSessionStart(t *testing.T) {
	srv, sessionID := newTestServer(t)

	events, err := srv.store.GetEventsBySession(context.Background(), sessionID, store.GetEventsBySessionParams{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	root := events[0]

	req := httptest.NewRequest(http.MethodDelete, "/sessions/"+sessionID+"/messages/"+root.ID, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, ErrCodeMessageDeleteFailed, errResp.Error.Code)
}

func TestModelSwitch_UpdatesLatestModel(t *testing.T) {
	srv, sessionID := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"newModel": "gpt-4o", "reason": "user request"})
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/model/switch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	sess, err := srv.store.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", sess.LatestModel)
}

func TestModelSwitch_AcceptsUnlistedFamilyPatternMatch(t *testing.T) {
	srv, sessionID := newTestServer(t)

	// Not an exact tokens.KnownModelIDs entry, but matches the "sonnet"
	// family pattern tokens.LookupPricing/contextmgr.LookupContextLimit
	// already resolve through.
	body, _ := json.Marshal(map[string]any{"newModel": "claude-sonnet-4-5-20250929"})
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/model/switch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestModelSwitch_RejectsUnknownModel(t *testing.T) {
	srv, sessionID := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"newModel": "totally-made-up-model"})
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/model/switch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, ErrCodeNotSupported, errResp.Error.Code)
}

func TestModelList_ReturnsNonEmptyCatalog(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var entries []modelCatalogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.NotEmpty(t, entries)
	for _, e := range entries {
		require.Positive(t, e.ContextLimit)
	}
}
