package events

import (
	"time"

	"github.com/google/uuid"
)

// Builder provides fluent construction of session events with consistent defaults.
type Builder struct {
	nodeID string
}

// NewBuilder creates an event builder with global defaults.
func NewBuilder(nodeID string) *Builder {
	return &Builder{nodeID: nodeID}
}

// newBase creates a BaseEvent with common fields populated.
func (b *Builder) newBase(eventType EventType, sessionID string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Session:   sessionID,
		NodeID:    b.nodeID,
	}
}

// SessionStartedBuilder constructs SessionStartedEvent.
type SessionStartedBuilder struct {
	event *SessionStartedEvent
}

// SessionStarted starts building a SessionStartedEvent.
func (b *Builder) SessionStarted(sessionID string) *SessionStartedBuilder {
	return &SessionStartedBuilder{
		event: &SessionStartedEvent{
			BaseEvent: b.newBase(SessionStarted, sessionID),
		},
	}
}

func (sb *SessionStartedBuilder) Targets(customer, agent string) *SessionStartedBuilder {
	sb.event.CustomerTarget = customer
	sb.event.AgentTarget = agent
	return sb
}

func (sb *SessionStartedBuilder) Build() *SessionStartedEvent {
	return sb.event
}

// LegDialingBuilder constructs LegDialingEvent.
type LegDialingBuilder struct {
	event *LegDialingEvent
}

// LegDialing starts building a LegDialingEvent.
func (b *Builder) LegDialing(sessionID string, leg LegRole) *LegDialingBuilder {
	base := b.newBase(LegDialing, sessionID)
	base.Leg = leg
	return &LegDialingBuilder{
		event: &LegDialingEvent{
			BaseEvent: base,
			Attempt:   1,
		},
	}
}

func (lb *LegDialingBuilder) Target(target string) *LegDialingBuilder {
	lb.event.Target = target
	return lb
}

func (lb *LegDialingBuilder) Channel(id string) *LegDialingBuilder {
	lb.event.Channel = id
	return lb
}

func (lb *LegDialingBuilder) Attempt(n int) *LegDialingBuilder {
	lb.event.Attempt = n
	return lb
}

func (lb *LegDialingBuilder) Build() *LegDialingEvent {
	return lb.event
}

// LegRinging builds a LegRingingEvent directly; it has no optional fields.
func (b *Builder) LegRinging(sessionID string, leg LegRole, channel string) *LegRingingEvent {
	base := b.newBase(LegRinging, sessionID)
	base.Leg = leg
	return &LegRingingEvent{BaseEvent: base, Channel: channel}
}

// LegAnsweredBuilder constructs LegAnsweredEvent.
type LegAnsweredBuilder struct {
	event *LegAnsweredEvent
}

// LegAnswered starts building a LegAnsweredEvent.
func (b *Builder) LegAnswered(sessionID string, leg LegRole, channel string) *LegAnsweredBuilder {
	base := b.newBase(LegAnswered, sessionID)
	base.Leg = leg
	return &LegAnsweredBuilder{
		event: &LegAnsweredEvent{BaseEvent: base, Channel: channel},
	}
}

func (lb *LegAnsweredBuilder) RingDuration(d time.Duration) *LegAnsweredBuilder {
	lb.event.RingDurationMs = d.Milliseconds()
	return lb
}

func (lb *LegAnsweredBuilder) Build() *LegAnsweredEvent {
	return lb.event
}

// LegHungup builds a LegHungupEvent directly.
func (b *Builder) LegHungup(sessionID string, leg LegRole, channel string) *LegHungupEvent {
	base := b.newBase(LegHungup, sessionID)
	base.Leg = leg
	return &LegHungupEvent{BaseEvent: base, Channel: channel}
}

// PlaybackStarted builds a PlaybackStartedEvent directly.
func (b *Builder) PlaybackStarted(sessionID, playbackID, media string) *PlaybackStartedEvent {
	return &PlaybackStartedEvent{
		BaseEvent: b.newBase(PlaybackStarted, sessionID),
		Playback:  playbackID,
		Media:     media,
	}
}

// PlaybackFinished builds a PlaybackFinishedEvent directly.
func (b *Builder) PlaybackFinished(sessionID, playbackID string, failed bool) *PlaybackFinishedEvent {
	return &PlaybackFinishedEvent{
		BaseEvent: b.newBase(PlaybackFinished, sessionID),
		Playback:  playbackID,
		Failed:    failed,
	}
}

// SessionHeld builds a SessionHeldEvent directly.
func (b *Builder) SessionHeld(sessionID, bridgeID, mohClass string) *SessionHeldEvent {
	return &SessionHeldEvent{
		BaseEvent: b.newBase(SessionHeld, sessionID),
		Bridge:    bridgeID,
		MOHClass:  mohClass,
	}
}

// SessionBridged builds a SessionBridgedEvent directly.
func (b *Builder) SessionBridged(sessionID, bridgeID string) *SessionBridgedEvent {
	return &SessionBridgedEvent{
		BaseEvent: b.newBase(SessionBridged, sessionID),
		Bridge:    bridgeID,
	}
}

// RecordingStarted builds a RecordingStartedEvent directly.
func (b *Builder) RecordingStarted(sessionID, recordingID, format string) *RecordingStartedEvent {
	return &RecordingStartedEvent{
		BaseEvent: b.newBase(RecordingStarted, sessionID),
		Recording: recordingID,
		Format:    format,
	}
}

// RecordingFailed builds a RecordingFailedEvent directly.
func (b *Builder) RecordingFailed(sessionID, reason string) *RecordingFailedEvent {
	return &RecordingFailedEvent{
		BaseEvent: b.newBase(RecordingFailed, sessionID),
		Reason:    reason,
	}
}

// SessionEndedBuilder constructs SessionEndedEvent.
type SessionEndedBuilder struct {
	event *SessionEndedEvent
}

// SessionEnded starts building a SessionEndedEvent.
func (b *Builder) SessionEnded(sessionID string) *SessionEndedBuilder {
	return &SessionEndedBuilder{
		event: &SessionEndedEvent{
			BaseEvent: b.newBase(SessionEnded, sessionID),
		},
	}
}

func (eb *SessionEndedBuilder) Reason(r EndReason, detail string) *SessionEndedBuilder {
	eb.event.EndReason = r
	eb.event.EndReasonDetail = detail
	return eb
}

func (eb *SessionEndedBuilder) Durations(ring, talk, total time.Duration) *SessionEndedBuilder {
	eb.event.RingDurationMs = ring.Milliseconds()
	eb.event.TalkDurationMs = talk.Milliseconds()
	eb.event.TotalDurationMs = total.Milliseconds()
	return eb
}

func (eb *SessionEndedBuilder) Disposition(code string) *SessionEndedBuilder {
	eb.event.DispositionCode = code
	return eb
}

func (eb *SessionEndedBuilder) Recorded(recorded bool) *SessionEndedBuilder {
	eb.event.Recorded = recorded
	return eb
}

func (eb *SessionEndedBuilder) Build() *SessionEndedEvent {
	return eb.event
}
