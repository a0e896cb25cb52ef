package controlplane

import "time"

// Event is an asynchronous notification from the control plane.
//
// Events for a single entity ID arrive in emission order; events across
// different entity IDs carry no relative ordering guarantee. Correlation is
// by exact entity identity only.
type Event interface {
	// Kind returns a short machine name for the event type.
	Kind() string
	// EntityID returns the identifier consumers correlate the event by.
	EntityID() string
	// At returns when the control plane emitted the event.
	At() time.Time
}

// DialStatusEvent reports progress of a dial on a channel. Peer is the
// channel being dialed.
type DialStatusEvent struct {
	Dialstring string
	Status     DialStatus
	Peer       ChannelID
	Time       time.Time
}

// Kind implements Event.
func (DialStatusEvent) Kind() string { return "dial_status" }

// EntityID implements Event.
func (e DialStatusEvent) EntityID() string { return string(e.Peer) }

// At implements Event.
func (e DialStatusEvent) At() time.Time { return e.Time }

// ChannelStateChangeEvent reports a channel lifecycle transition.
type ChannelStateChangeEvent struct {
	Channel ChannelID
	State   ChannelState
	Time    time.Time
}

// Kind implements Event.
func (ChannelStateChangeEvent) Kind() string { return "channel_state_change" }

// EntityID implements Event.
func (e ChannelStateChangeEvent) EntityID() string { return string(e.Channel) }

// At implements Event.
func (e ChannelStateChangeEvent) At() time.Time { return e.Time }

// PlaybackStateEvent reports a playback lifecycle transition.
type PlaybackStateEvent struct {
	Playback PlaybackID
	State    PlaybackState
	Time     time.Time
}

// Kind implements Event.
func (PlaybackStateEvent) Kind() string { return "playback_state" }

// EntityID implements Event.
func (e PlaybackStateEvent) EntityID() string { return string(e.Playback) }

// At implements Event.
func (e PlaybackStateEvent) At() time.Time { return e.Time }
