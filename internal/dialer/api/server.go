// Package api exposes the operator HTTP surface: starting calls,
// inspecting and terminating sessions, and reading node health and
// counters.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sebas/outdial/internal/dialer/orchestrator"
	"github.com/sebas/outdial/internal/dialer/supervisor"
)

// SessionProvider is the slice of the supervisor the API depends on.
type SessionProvider interface {
	StartSession(customer, agent string) (string, error)
	TerminateSession(sessionID string) error
	Session(sessionID string) (orchestrator.Snapshot, bool)
	Sessions() []orchestrator.Snapshot
	Stats() supervisor.Stats
}

// Server provides the HTTP API for the dialer node (headless, API only).
type Server struct {
	addr       string
	httpServer *http.Server
	sessions   SessionProvider
	startTime  time.Time
}

// NewServer creates the API server around a session provider.
func NewServer(addr string, sessions SessionProvider) *Server {
	s := &Server{
		addr:      addr,
		sessions:  sessions,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()

	// Health and stats
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/stats", s.handleStats)

	// Calls
	mux.HandleFunc("/api/v1/calls", s.handleCalls)
	mux.HandleFunc("/api/v1/calls/", s.handleCallByID)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

// Start begins listening for HTTP requests. Bind failures are returned;
// errors after that are logged from the serve goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	slog.Info("[API] Starting HTTP API server", "addr", s.addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[API] Server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server, waiting for in-flight requests
// until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- Health & Stats ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startTime).Seconds()
	response := map[string]interface{}{
		"status":          "ok",
		"uptime":          int64(uptime),
		"active_sessions": s.sessions.Stats().Active,
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessions.Stats())
}

// --- Calls ---

type createCallRequest struct {
	CustomerTarget string `json:"customer_target"`
	AgentTarget    string `json:"agent_target"`
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateCall(w, r)
	case http.MethodGet:
		s.handleListCalls(w)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.CustomerTarget == "" || req.AgentTarget == "" {
		http.Error(w, "customer_target and agent_target are required", http.StatusBadRequest)
		return
	}

	sessionID, err := s.sessions.StartSession(req.CustomerTarget, req.AgentTarget)
	if err != nil {
		if errors.Is(err, supervisor.ErrShuttingDown) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		slog.Warn("[API] Call rejected", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id":      sessionID,
		"customer_target": req.CustomerTarget,
		"agent_target":    req.AgentTarget,
	})
}

func (s *Server) handleListCalls(w http.ResponseWriter) {
	snaps := s.sessions.Sessions()
	response := make([]sessionResponse, 0, len(snaps))
	for _, snap := range snaps {
		response = append(response, toSessionResponse(snap))
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleCallByID(w http.ResponseWriter, r *http.Request) {
	// Path: /api/v1/calls/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/calls/")
	if path == "" || strings.Contains(path, "/") {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}
	sessionID, err := url.PathUnescape(path)
	if err != nil {
		http.Error(w, "Invalid session ID encoding", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetCall(w, sessionID)
	case http.MethodDelete:
		s.handleTerminateCall(w, sessionID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetCall(w http.ResponseWriter, sessionID string) {
	snap, ok := s.sessions.Session(sessionID)
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

func (s *Server) handleTerminateCall(w http.ResponseWriter, sessionID string) {
	if err := s.sessions.TerminateSession(sessionID); err != nil {
		if errors.Is(err, supervisor.ErrSessionNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		slog.Error("[API] Failed to terminate session", "session_id", sessionID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Teardown runs on the session goroutine; 202 signals it was accepted,
	// not that the session is gone yet.
	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":    "Termination requested",
		"session_id": sessionID,
	})
}

// --- Response shaping ---

type sessionResponse struct {
	SessionID       string `json:"session_id"`
	State           string `json:"state"`
	CustomerTarget  string `json:"customer_target"`
	AgentTarget     string `json:"agent_target"`
	CustomerChannel string `json:"customer_channel,omitempty"`
	CustomerState   string `json:"customer_state,omitempty"`
	AgentChannel    string `json:"agent_channel,omitempty"`
	AgentState      string `json:"agent_state,omitempty"`
	AgentAttempts   int    `json:"agent_attempts,omitempty"`
	Bridge          string `json:"bridge,omitempty"`
	RecordingID     string `json:"recording_id,omitempty"`
	RecordingState  string `json:"recording_state,omitempty"`
	StartedAt       string `json:"started_at"`
	AnsweredAt      string `json:"answered_at,omitempty"`
	BridgedAt       string `json:"bridged_at,omitempty"`
	EndedAt         string `json:"ended_at,omitempty"`
	EndReason       string `json:"end_reason,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
}

func toSessionResponse(snap orchestrator.Snapshot) sessionResponse {
	resp := sessionResponse{
		SessionID:       snap.ID,
		State:           snap.State.String(),
		CustomerTarget:  snap.CustomerTarget,
		AgentTarget:     snap.AgentTarget,
		CustomerChannel: string(snap.CustomerChannel),
		AgentChannel:    string(snap.AgentChannel),
		AgentAttempts:   snap.AgentAttempts,
		Bridge:          string(snap.Bridge),
		RecordingID:     string(snap.RecordingID),
		StartedAt:       snap.StartedAt.Format(time.RFC3339),
		EndReason:       snap.EndReason,
	}
	if snap.CustomerChannel != "" {
		resp.CustomerState = snap.CustomerState.String()
	}
	if snap.AgentChannel != "" {
		resp.AgentState = snap.AgentState.String()
	}
	if snap.RecordingID != "" || snap.RecordingState != orchestrator.RecordingNone {
		resp.RecordingState = snap.RecordingState.String()
	}
	if !snap.AnsweredAt.IsZero() {
		resp.AnsweredAt = snap.AnsweredAt.Format(time.RFC3339)
	}
	if !snap.BridgedAt.IsZero() {
		resp.BridgedAt = snap.BridgedAt.Format(time.RFC3339)
	}

	end := snap.EndedAt
	if end.IsZero() {
		resp.DurationSeconds = int(time.Since(snap.StartedAt).Seconds())
	} else {
		resp.EndedAt = end.Format(time.RFC3339)
		resp.DurationSeconds = int(end.Sub(snap.StartedAt).Seconds())
	}
	return resp
}

// --- Helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("[API] Failed to encode JSON", "error", err)
	}
}
