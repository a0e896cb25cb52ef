package events

import "fmt"

// Subject naming conventions for NATS.
//
// Hierarchy:
//   outdial.sessions.<session_id>.<event_suffix>  - Per-session events
//   outdial.cdr.raw                               - Raw CDR stream
//
// Wildcard subscriptions:
//   outdial.sessions.>                            - All session events
//   outdial.sessions.*.ended                      - All session.ended events
//   outdial.sessions.<session_id>.>               - All events for one session

const (
	// SubjectPrefix is the root of all outdial subjects
	SubjectPrefix = "outdial"

	// Session event subjects
	SubjectSessions = SubjectPrefix + ".sessions"

	SubjectSessionStarted = "started"
	SubjectSessionHeld    = "held"
	SubjectSessionBridged = "bridged"
	SubjectSessionEnded   = "ended"

	// CDR subjects
	SubjectCDRRaw = SubjectPrefix + ".cdr.raw"
)

// SessionSubject builds a subject for a specific session event.
// Example: SessionSubject("abc-123", "ended") => "outdial.sessions.abc-123.ended"
func SessionSubject(sessionID string, eventSuffix string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectSessions, sessionID, eventSuffix)
}

// Subject patterns for common consumer configurations
var (
	// PatternAllSessions matches all session events
	PatternAllSessions = SubjectSessions + ".>"

	// PatternSessionEnded matches all session.ended events (for CDR)
	PatternSessionEnded = SubjectSessions + ".*.ended"

	// PatternSessionBridged matches all session.bridged events (for billing)
	PatternSessionBridged = SubjectSessions + ".*.bridged"
)

// SubjectForEventType returns the suffix used for a given event type.
func SubjectForEventType(t EventType) string {
	switch t {
	case SessionStarted:
		return SubjectSessionStarted
	case SessionHeld:
		return SubjectSessionHeld
	case SessionBridged:
		return SubjectSessionBridged
	case SessionEnded:
		return SubjectSessionEnded
	case LegDialing, LegRinging, LegAnswered, LegHungup,
		PlaybackStarted, PlaybackFinished,
		RecordingStarted, RecordingFailed:
		// Two-token suffixes keep leg and media events grouped
		// under their own wildcard, e.g. outdial.sessions.*.leg.*
		return string(t)
	default:
		return "unknown"
	}
}
