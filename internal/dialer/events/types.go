// Package events provides session lifecycle event definitions and
// publishing infrastructure. Designed for future NATS JetStream
// integration while remaining transport-agnostic.
package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the type of session event
type EventType string

const (
	// SessionStarted fires when an orchestration session is created
	SessionStarted EventType = "session.started"
	// LegDialing fires when a channel for a leg has been created and dialed
	LegDialing EventType = "leg.dialing"
	// LegRinging fires when a leg reports a ringing dial status
	LegRinging EventType = "leg.ringing"
	// LegAnswered fires when a leg reports an answer dial status
	LegAnswered EventType = "leg.answered"
	// LegHungup fires when a tracked channel reports hangup
	LegHungup EventType = "leg.hungup"
	// PlaybackStarted fires when the welcome announcement begins
	PlaybackStarted EventType = "playback.started"
	// PlaybackFinished fires when the welcome announcement completes or fails
	PlaybackFinished EventType = "playback.finished"
	// SessionHeld fires when the customer is parked on hold music
	SessionHeld EventType = "session.held"
	// SessionBridged fires when customer and agent share the bridge
	SessionBridged EventType = "session.bridged"
	// RecordingStarted fires when bridge recording was requested successfully
	RecordingStarted EventType = "recording.started"
	// RecordingFailed fires when bridge recording could not be started
	RecordingFailed EventType = "recording.failed"
	// SessionEnded fires when the session reaches its terminal state (any reason)
	SessionEnded EventType = "session.ended"
)

// EndReason explains why a session ended
type EndReason string

const (
	EndReasonNormal      EndReason = "normal"      // A party hung up after bridging
	EndReasonBusy        EndReason = "busy"        // Dialed party was busy
	EndReasonNoAnswer    EndReason = "no_answer"   // Dial timed out without answer
	EndReasonCancelled   EndReason = "cancelled"   // Dial attempt cancelled
	EndReasonCongestion  EndReason = "congestion"  // Route congestion
	EndReasonUnavailable EndReason = "unavailable" // Destination unreachable
	EndReasonRejected    EndReason = "rejected"    // Dial failed outright
	EndReasonAbandoned   EndReason = "abandoned"   // Customer left while waiting
	EndReasonOperator    EndReason = "operator"    // Terminated via the operator API
	EndReasonShutdown    EndReason = "shutdown"    // Service drain
	EndReasonError       EndReason = "error"       // Internal or control plane error
)

// LegRole identifies which leg of a session an event pertains to
type LegRole string

const (
	LegCustomer LegRole = "customer"
	LegAgent    LegRole = "agent"
)

// Event is the base interface for all session events
type Event interface {
	// Type returns the event type for routing/filtering
	Type() EventType
	// Subject returns the NATS subject this event should publish to
	Subject() string
	// Timestamp returns when the event occurred
	Timestamp() time.Time
	// SessionID returns the primary correlation ID
	SessionID() string
}

// BaseEvent contains fields common to all events
type BaseEvent struct {
	// EventID is a unique identifier for this event instance (for deduplication)
	EventID string `json:"event_id"`
	// EventType identifies the event
	EventType EventType `json:"event_type"`
	// EventTime is when the event occurred (RFC3339Nano)
	EventTime time.Time `json:"event_time"`
	// Session is the orchestration session identifier
	Session string `json:"session_id"`
	// Leg identifies which leg this event pertains to (customer or agent)
	Leg LegRole `json:"leg,omitempty"`
	// NodeID identifies the dialer instance (for distributed tracing)
	NodeID string `json:"node_id,omitempty"`
}

func (e *BaseEvent) Type() EventType      { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTime }
func (e *BaseEvent) SessionID() string    { return e.Session }

// Subject returns the NATS subject for routing
// Format: outdial.sessions.<session_id>.<event_type_suffix>
func (e *BaseEvent) Subject() string {
	return SessionSubject(e.Session, SubjectForEventType(e.EventType))
}

// SessionStartedEvent fires when a session is accepted for orchestration
type SessionStartedEvent struct {
	BaseEvent
	CustomerTarget string `json:"customer_target"`
	AgentTarget    string `json:"agent_target"`
}

// LegDialingEvent fires when a leg's channel is created and dialing
type LegDialingEvent struct {
	BaseEvent
	Target  string `json:"target"`
	Channel string `json:"channel_id"`
	// Attempt counts dial attempts for this leg, starting at 1
	Attempt int `json:"attempt"`
}

// LegRingingEvent fires when a leg reports ringing
type LegRingingEvent struct {
	BaseEvent
	Channel string `json:"channel_id"`
}

// LegAnsweredEvent fires when a leg answers
type LegAnsweredEvent struct {
	BaseEvent
	Channel string `json:"channel_id"`
	// Time from dial to answer
	RingDurationMs int64 `json:"ring_duration_ms,omitempty"`
}

// LegHungupEvent fires when a tracked channel hangs up
type LegHungupEvent struct {
	BaseEvent
	Channel string `json:"channel_id"`
}

// PlaybackStartedEvent fires when the welcome announcement begins
type PlaybackStartedEvent struct {
	BaseEvent
	Playback string `json:"playback_id"`
	Media    string `json:"media"`
}

// PlaybackFinishedEvent fires when the announcement completes or fails
type PlaybackFinishedEvent struct {
	BaseEvent
	Playback string `json:"playback_id"`
	Failed   bool   `json:"failed"`
}

// SessionHeldEvent fires when the customer is parked on hold music
type SessionHeldEvent struct {
	BaseEvent
	Bridge   string `json:"bridge_id"`
	MOHClass string `json:"moh_class,omitempty"`
}

// SessionBridgedEvent fires when both parties share the bridge
type SessionBridgedEvent struct {
	BaseEvent
	Bridge string `json:"bridge_id"`
}

// RecordingStartedEvent fires when bridge recording was requested
type RecordingStartedEvent struct {
	BaseEvent
	Recording string `json:"recording_id"`
	Format    string `json:"format,omitempty"`
}

// RecordingFailedEvent fires when recording could not be started.
// The session continues unrecorded.
type RecordingFailedEvent struct {
	BaseEvent
	Reason string `json:"reason"`
}

// SessionEndedEvent fires when the session terminates
type SessionEndedEvent struct {
	BaseEvent
	EndReason       EndReason `json:"end_reason"`
	EndReasonDetail string    `json:"end_reason_detail,omitempty"`
	// CDR-ready duration fields (in milliseconds)
	RingDurationMs  int64 `json:"ring_duration_ms"`  // Customer dial to answer
	TalkDurationMs  int64 `json:"talk_duration_ms"`  // Bridge to teardown
	TotalDurationMs int64 `json:"total_duration_ms"` // Session start to end
	// Billing/CDR fields
	DispositionCode string `json:"disposition_code"` // ANSWERED, NO_ANSWER, BUSY, etc.
	Recorded        bool   `json:"recorded"`
}

// Disposition codes for CDR
const (
	DispositionAnswered = "ANSWERED"
	DispositionNoAnswer = "NO_ANSWER"
	DispositionBusy     = "BUSY"
	DispositionFailed   = "FAILED"
	DispositionCanceled = "CANCELED"
)

// MarshalEvent serializes an event for transport.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
