// Package supervisor owns the set of live call sessions: it starts them,
// routes control plane events to the owning session, and drains them on
// shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sebas/outdial/internal/dialer/controlplane"
	"github.com/sebas/outdial/internal/dialer/events"
	"github.com/sebas/outdial/internal/dialer/orchestrator"
	"github.com/sebas/outdial/internal/dialer/registry"
	"github.com/sebas/outdial/internal/dialer/target"
)

// DefaultDrainConcurrency limits parallel session teardowns during Shutdown.
const DefaultDrainConcurrency = 8

var (
	// ErrSessionNotFound indicates the session ID is not in the table.
	ErrSessionNotFound = errors.New("session not found")

	// ErrShuttingDown indicates the supervisor no longer accepts sessions.
	ErrShuttingDown = errors.New("supervisor shutting down")
)

// Config carries the shared collaborators handed to every session.
type Config struct {
	Client    controlplane.Client
	Options   orchestrator.Options
	Logger    *slog.Logger
	Publisher events.Publisher

	// NodeID stamps emitted events with the originating node.
	NodeID string

	// DrainConcurrency bounds parallel teardowns in Shutdown.
	// Zero means DefaultDrainConcurrency.
	DrainConcurrency int
}

// Supervisor is the session table. All methods are safe for concurrent use.
type Supervisor struct {
	client  controlplane.Client
	opts    orchestrator.Options
	log     *slog.Logger
	pub     events.Publisher
	builder *events.Builder

	registry *registry.Registry

	// sessionCtx outlives any single API request; sessions are bound to it
	// so they keep running after the request that created them returns.
	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	drainLimit int64

	mu       sync.RWMutex
	sessions map[string]*orchestrator.Orchestrator
	draining bool

	started           atomic.Int64
	completed         atomic.Int64
	failed            atomic.Int64
	correlationMisses atomic.Int64
	droppedEvents     atomic.Int64
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Active            int   `json:"active"`
	Started           int64 `json:"started"`
	Completed         int64 `json:"completed"`
	Failed            int64 `json:"failed"`
	CorrelationMisses int64 `json:"correlation_misses"`
	DroppedEvents     int64 `json:"dropped_events"`
}

// New creates a Supervisor with an empty session table.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = events.NewNoopPublisher()
	}
	limit := cfg.DrainConcurrency
	if limit <= 0 {
		limit = DefaultDrainConcurrency
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		client:        cfg.Client,
		opts:          cfg.Options,
		log:           logger,
		pub:           pub,
		builder:       events.NewBuilder(cfg.NodeID),
		registry:      registry.New(),
		sessionCtx:    ctx,
		sessionCancel: cancel,
		drainLimit:    int64(limit),
		sessions:      make(map[string]*orchestrator.Orchestrator),
	}
}

// StartSession validates both targets, creates a session and starts its
// customer dial. The returned ID identifies the session on the API and in
// emitted events.
func (s *Supervisor) StartSession(customer, agent string) (string, error) {
	customerDS, err := target.Parse(customer)
	if err != nil {
		return "", fmt.Errorf("customer target: %w", err)
	}
	agentDS, err := target.Parse(agent)
	if err != nil {
		return "", fmt.Errorf("agent target: %w", err)
	}

	sessionID := uuid.New().String()
	sess := orchestrator.New(orchestrator.Config{
		ID:             sessionID,
		CustomerTarget: customerDS.String(),
		AgentTarget:    agentDS.String(),
		Client:         s.client,
		Binder:         s.registry,
		Options:        s.opts,
		Logger:         s.log,
		Publisher:      s.pub,
		Events:         s.builder,
		OnTerminated:   s.onTerminated,
	})

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return "", ErrShuttingDown
	}
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	sess.Start(s.sessionCtx)
	s.started.Add(1)

	s.log.Info("[Supervisor] session started",
		"session_id", sessionID,
		"customer", customerDS.String(),
		"agent", agentDS.String())
	return sessionID, nil
}

// Route delivers a control plane event to the session owning the event's
// entity. Events for unknown entities are dropped: stale IDs are routine
// after teardown, so a miss is never an error.
func (s *Supervisor) Route(ev controlplane.Event) {
	sessionID, ok := s.registry.Resolve(ev.EntityID())
	if !ok {
		s.correlationMisses.Add(1)
		s.log.Debug("[Supervisor] event for unknown entity",
			"event", ev.Kind(),
			"entity_id", ev.EntityID())
		return
	}

	s.mu.RLock()
	sess := s.sessions[sessionID]
	s.mu.RUnlock()
	if sess == nil {
		s.correlationMisses.Add(1)
		s.log.Debug("[Supervisor] event for terminated session",
			"event", ev.Kind(),
			"entity_id", ev.EntityID(),
			"session_id", sessionID)
		return
	}

	if !sess.Deliver(ev) {
		s.droppedEvents.Add(1)
	}
}

// TerminateSession requests teardown of one session on behalf of the
// operator. The session leaves the table asynchronously once it reaches
// its terminal state.
func (s *Supervisor) TerminateSession(sessionID string) error {
	s.mu.RLock()
	sess := s.sessions[sessionID]
	s.mu.RUnlock()
	if sess == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess.Terminate(events.EndReasonOperator, "operator requested termination")
	return nil
}

// Session returns a snapshot of one session.
func (s *Supervisor) Session(sessionID string) (orchestrator.Snapshot, bool) {
	s.mu.RLock()
	sess := s.sessions[sessionID]
	s.mu.RUnlock()
	if sess == nil {
		return orchestrator.Snapshot{}, false
	}
	return sess.Snapshot(), true
}

// Sessions returns snapshots of all live sessions, oldest first.
func (s *Supervisor) Sessions() []orchestrator.Snapshot {
	s.mu.RLock()
	snaps := make([]orchestrator.Snapshot, 0, len(s.sessions))
	for _, sess := range s.sessions {
		snaps = append(snaps, sess.Snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].StartedAt.Equal(snaps[j].StartedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].StartedAt.Before(snaps[j].StartedAt)
	})
	return snaps
}

// Stats returns current counters.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	active := len(s.sessions)
	s.mu.RUnlock()

	return Stats{
		Active:            active,
		Started:           s.started.Load(),
		Completed:         s.completed.Load(),
		Failed:            s.failed.Load(),
		CorrelationMisses: s.correlationMisses.Load(),
		DroppedEvents:     s.droppedEvents.Load(),
	}
}

// Shutdown stops accepting sessions and tears down every live session with
// bounded concurrency, waiting until each reaches its terminal state or ctx
// expires. Sessions still draining when ctx expires keep tearing down in
// the background.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	active := make([]*orchestrator.Orchestrator, 0, len(s.sessions))
	for _, sess := range s.sessions {
		active = append(active, sess)
	}
	s.mu.Unlock()

	defer s.sessionCancel()

	if len(active) == 0 {
		return nil
	}

	s.log.Info("[Supervisor] draining sessions", "count", len(active))

	sem := semaphore.NewWeighted(s.drainLimit)
	g, gCtx := errgroup.WithContext(ctx)
	for _, sess := range active {
		g.Go(func() error {
			if err := sem.Acquire(gCtx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			sess.Terminate(events.EndReasonShutdown, "node shutting down")
			select {
			case <-sess.Done():
				return nil
			case <-gCtx.Done():
				return fmt.Errorf("session %s: %w", sess.ID(), gCtx.Err())
			}
		})
	}

	if err := g.Wait(); err != nil {
		s.log.Warn("[Supervisor] drain incomplete", "error", err)
		return err
	}

	s.log.Info("[Supervisor] drain complete", "count", len(active))
	return nil
}

// onTerminated runs on the session goroutine after the session reaches its
// terminal state. It drops the session from the table and releases every
// entity it still holds in the registry.
func (s *Supervisor) onTerminated(sessionID string) {
	s.mu.Lock()
	sess := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.registry.UnregisterSession(sessionID)

	if sess == nil {
		return
	}
	snap := sess.Snapshot()
	switch events.EndReason(snap.EndReason) {
	case events.EndReasonError, events.EndReasonRejected:
		s.failed.Add(1)
	default:
		s.completed.Add(1)
	}

	s.log.Info("[Supervisor] session removed",
		"session_id", sessionID,
		"end_reason", snap.EndReason)
}
