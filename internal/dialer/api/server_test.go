package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sebas/outdial/internal/dialer/controlplane"
	"github.com/sebas/outdial/internal/dialer/orchestrator"
	"github.com/sebas/outdial/internal/dialer/supervisor"
)

type fakeProvider struct {
	startID    string
	startErr   error
	customer   string
	agent      string
	terminated []string
	termErr    error
	snaps      map[string]orchestrator.Snapshot
	stats      supervisor.Stats
}

func (f *fakeProvider) StartSession(customer, agent string) (string, error) {
	f.customer, f.agent = customer, agent
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.startID, nil
}

func (f *fakeProvider) TerminateSession(sessionID string) error {
	if f.termErr != nil {
		return f.termErr
	}
	f.terminated = append(f.terminated, sessionID)
	return nil
}

func (f *fakeProvider) Session(sessionID string) (orchestrator.Snapshot, bool) {
	snap, ok := f.snaps[sessionID]
	return snap, ok
}

func (f *fakeProvider) Sessions() []orchestrator.Snapshot {
	out := make([]orchestrator.Snapshot, 0, len(f.snaps))
	for _, snap := range f.snaps {
		out = append(out, snap)
	}
	return out
}

func (f *fakeProvider) Stats() supervisor.Stats {
	return f.stats
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateCall(t *testing.T) {
	provider := &fakeProvider{startID: "sess-1"}
	srv := NewServer("127.0.0.1:0", provider)

	rec := doRequest(srv, http.MethodPost, "/api/v1/calls",
		`{"customer_target":"SIP/4448","agent_target":"SIP/4449"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["session_id"] != "sess-1" {
		t.Errorf("session_id = %q, want sess-1", resp["session_id"])
	}
	if provider.customer != "SIP/4448" || provider.agent != "SIP/4449" {
		t.Errorf("provider targets = %q/%q", provider.customer, provider.agent)
	}
}

func TestCreateCallValidation(t *testing.T) {
	srv := NewServer("127.0.0.1:0", &fakeProvider{startID: "sess-1"})

	rec := doRequest(srv, http.MethodPost, "/api/v1/calls", `{"customer_target":"SIP/4448"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing agent: status = %d, want 400", rec.Code)
	}

	rec = doRequest(srv, http.MethodPost, "/api/v1/calls", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: status = %d, want 400", rec.Code)
	}
}

func TestCreateCallRejectedTarget(t *testing.T) {
	provider := &fakeProvider{startErr: fmt.Errorf("customer target: parse target %q: empty target", "")}
	srv := NewServer("127.0.0.1:0", provider)

	rec := doRequest(srv, http.MethodPost, "/api/v1/calls",
		`{"customer_target":"x","agent_target":"y"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateCallDuringShutdown(t *testing.T) {
	provider := &fakeProvider{startErr: supervisor.ErrShuttingDown}
	srv := NewServer("127.0.0.1:0", provider)

	rec := doRequest(srv, http.MethodPost, "/api/v1/calls",
		`{"customer_target":"SIP/4448","agent_target":"SIP/4449"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestListCalls(t *testing.T) {
	provider := &fakeProvider{snaps: map[string]orchestrator.Snapshot{
		"sess-1": {ID: "sess-1", State: orchestrator.StateDialingCustomer, CustomerTarget: "SIP/4448", AgentTarget: "SIP/4449", StartedAt: time.Now()},
		"sess-2": {ID: "sess-2", State: orchestrator.StateBridged, CustomerTarget: "SIP/1000", AgentTarget: "SIP/2000", StartedAt: time.Now()},
	}}
	srv := NewServer("127.0.0.1:0", provider)

	rec := doRequest(srv, http.MethodGet, "/api/v1/calls", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("len = %d, want 2", len(resp))
	}
}

func TestGetCall(t *testing.T) {
	started := time.Now().Add(-90 * time.Second)
	provider := &fakeProvider{snaps: map[string]orchestrator.Snapshot{
		"sess-1": {
			ID:              "sess-1",
			State:           orchestrator.StateRecording,
			CustomerTarget:  "SIP/4448",
			AgentTarget:     "SIP/4449",
			CustomerChannel: "ch-1",
			CustomerState:   controlplane.ChannelAnswered,
			AgentChannel:    "ch-2",
			AgentState:      controlplane.ChannelAnswered,
			Bridge:          "br-1",
			RecordingID:     "rec-1",
			RecordingState:  orchestrator.RecordingRequested,
			StartedAt:       started,
		},
	}}
	srv := NewServer("127.0.0.1:0", provider)

	rec := doRequest(srv, http.MethodGet, "/api/v1/calls/sess-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["state"] != "Recording" {
		t.Errorf("state = %v, want Recording", resp["state"])
	}
	if resp["bridge"] != "br-1" {
		t.Errorf("bridge = %v, want br-1", resp["bridge"])
	}
	if resp["recording_state"] != "Requested" {
		t.Errorf("recording_state = %v, want Requested", resp["recording_state"])
	}
	if resp["duration_seconds"].(float64) < 89 {
		t.Errorf("duration_seconds = %v, want >= 89", resp["duration_seconds"])
	}

	rec = doRequest(srv, http.MethodGet, "/api/v1/calls/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session: status = %d, want 404", rec.Code)
	}
}

func TestTerminateCall(t *testing.T) {
	provider := &fakeProvider{snaps: map[string]orchestrator.Snapshot{}}
	srv := NewServer("127.0.0.1:0", provider)

	rec := doRequest(srv, http.MethodDelete, "/api/v1/calls/sess-1", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if len(provider.terminated) != 1 || provider.terminated[0] != "sess-1" {
		t.Errorf("terminated = %v, want [sess-1]", provider.terminated)
	}
}

func TestTerminateCallNotFound(t *testing.T) {
	provider := &fakeProvider{termErr: fmt.Errorf("%w: nope", supervisor.ErrSessionNotFound)}
	srv := NewServer("127.0.0.1:0", provider)

	rec := doRequest(srv, http.MethodDelete, "/api/v1/calls/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := NewServer("127.0.0.1:0", &fakeProvider{})

	if rec := doRequest(srv, http.MethodPut, "/api/v1/calls", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT /calls: status = %d, want 405", rec.Code)
	}
	if rec := doRequest(srv, http.MethodPost, "/api/v1/calls/sess-1", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /calls/{id}: status = %d, want 405", rec.Code)
	}
}

func TestHealthAndStats(t *testing.T) {
	provider := &fakeProvider{stats: supervisor.Stats{
		Active:            2,
		Started:           10,
		Completed:         7,
		Failed:            1,
		CorrelationMisses: 3,
	}}
	srv := NewServer("127.0.0.1:0", provider)

	rec := doRequest(srv, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("status = %v, want ok", health["status"])
	}
	if health["active_sessions"].(float64) != 2 {
		t.Errorf("active_sessions = %v, want 2", health["active_sessions"])
	}

	rec = doRequest(srv, http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", rec.Code)
	}
	var stats supervisor.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Started != 10 || stats.CorrelationMisses != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestTerminateWithError(t *testing.T) {
	provider := &fakeProvider{termErr: errors.New("boom")}
	srv := NewServer("127.0.0.1:0", provider)

	rec := doRequest(srv, http.MethodDelete, "/api/v1/calls/sess-1", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
