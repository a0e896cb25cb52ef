// Package controlplane defines the boundary to the external telephony
// control plane: the imperative command surface over channels, bridges,
// playbacks and recordings, and the asynchronous event stream describing
// their state changes. Implementations live elsewhere (see ariclient);
// the orchestration core depends only on this package.
package controlplane

import "fmt"

// ChannelID identifies a channel (one call leg) on the control plane.
// Assigned at creation and stable for the channel's lifetime.
type ChannelID string

// BridgeID identifies a mixing bridge on the control plane.
type BridgeID string

// PlaybackID identifies a single media playback instance.
type PlaybackID string

// RecordingID identifies a recording. The control plane keys recordings by
// name, so implementations generate the ID client-side at start time.
type RecordingID string

// BridgeKind selects the mixing behavior requested at bridge creation.
type BridgeKind string

const (
	// KindMixing is a plain N-party audio mixing bridge.
	KindMixing BridgeKind = "mixing"
	// KindMixingProxy is a mixing bridge with media proxied through the
	// control plane host (no direct media between endpoints).
	KindMixingProxy BridgeKind = "mixing,proxy_media"
)

// DialStatus reports the outcome of dialing a channel.
type DialStatus int

const (
	// DialStatusUnknown is the zero value, reported for statuses the
	// control plane emits that have no mapping here.
	DialStatusUnknown DialStatus = iota
	// DialStatusRinging indicates the far end is being alerted.
	DialStatusRinging
	// DialStatusAnswer indicates the dialed party answered.
	DialStatusAnswer
	// DialStatusBusy indicates the dialed party was busy.
	DialStatusBusy
	// DialStatusNoAnswer indicates the dial timed out unanswered.
	DialStatusNoAnswer
	// DialStatusCanceled indicates the dial was canceled before answer.
	DialStatusCanceled
	// DialStatusCongestion indicates no circuit was available.
	DialStatusCongestion
	// DialStatusUnavailable indicates the endpoint was unreachable.
	DialStatusUnavailable
	// DialStatusFailed indicates any other dial failure.
	DialStatusFailed
)

// String returns the string representation of DialStatus.
func (s DialStatus) String() string {
	switch s {
	case DialStatusUnknown:
		return "Unknown"
	case DialStatusRinging:
		return "Ringing"
	case DialStatusAnswer:
		return "Answer"
	case DialStatusBusy:
		return "Busy"
	case DialStatusNoAnswer:
		return "NoAnswer"
	case DialStatusCanceled:
		return "Canceled"
	case DialStatusCongestion:
		return "Congestion"
	case DialStatusUnavailable:
		return "Unavailable"
	case DialStatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// IsTerminal returns true if the status ends the dial attempt.
func (s DialStatus) IsTerminal() bool {
	switch s {
	case DialStatusAnswer, DialStatusBusy, DialStatusNoAnswer,
		DialStatusCanceled, DialStatusCongestion, DialStatusUnavailable,
		DialStatusFailed:
		return true
	default:
		return false
	}
}

// ChannelState is the coarse lifecycle state of a channel as reported by
// channel state change events.
type ChannelState int

const (
	// ChannelDown indicates the channel exists but no call is in progress.
	ChannelDown ChannelState = iota
	// ChannelDialing indicates an outbound setup is in progress.
	ChannelDialing
	// ChannelRinging indicates the far end is being alerted.
	ChannelRinging
	// ChannelAnswered indicates media is up on the channel.
	ChannelAnswered
	// ChannelHungup indicates the channel has been torn down.
	ChannelHungup
	// ChannelFailed indicates the channel failed to establish.
	ChannelFailed
)

// String returns the string representation of ChannelState.
func (s ChannelState) String() string {
	switch s {
	case ChannelDown:
		return "Down"
	case ChannelDialing:
		return "Dialing"
	case ChannelRinging:
		return "Ringing"
	case ChannelAnswered:
		return "Answered"
	case ChannelHungup:
		return "Hungup"
	case ChannelFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// IsTerminal returns true if the channel can make no further progress.
func (s ChannelState) IsTerminal() bool {
	return s == ChannelHungup || s == ChannelFailed
}

// PlaybackState is the lifecycle state of a playback instance.
type PlaybackState int

const (
	// PlaybackQueued indicates the playback is waiting to start.
	PlaybackQueued PlaybackState = iota
	// PlaybackPlaying indicates media is currently being played.
	PlaybackPlaying
	// PlaybackDone indicates the playback completed normally.
	PlaybackDone
	// PlaybackFailed indicates the playback could not complete.
	PlaybackFailed
)

// String returns the string representation of PlaybackState.
func (s PlaybackState) String() string {
	switch s {
	case PlaybackQueued:
		return "Queued"
	case PlaybackPlaying:
		return "Playing"
	case PlaybackDone:
		return "Done"
	case PlaybackFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// IsTerminal returns true if the playback has finished, successfully or not.
func (s PlaybackState) IsTerminal() bool {
	return s == PlaybackDone || s == PlaybackFailed
}
