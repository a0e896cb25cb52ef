// Package orchestrator drives one outbound call session through its state
// machine: dial the customer, play the welcome announcement, park the
// customer on a bridge with hold music, dial the agent, merge the agent
// into the bridge and record the conversation.
//
// Each session confines its mutable state to a single goroutine. Inbound
// control plane events and termination requests are funneled through
// channels; no state is shared across sessions.
package orchestrator

import (
	"fmt"
	"time"

	"github.com/sebas/outdial/internal/dialer/controlplane"
)

// SessionState represents the current state of an orchestration session.
type SessionState int

const (
	// StateIdle indicates the session exists but no command has been issued.
	StateIdle SessionState = iota
	// StateDialingCustomer indicates the customer leg is being dialed.
	StateDialingCustomer
	// StateCustomerAnswered indicates the customer answered, announcement pending.
	StateCustomerAnswered
	// StatePlayingWelcome indicates the welcome announcement is in progress.
	StatePlayingWelcome
	// StateBridgeSetup indicates the bridge is being created and populated.
	StateBridgeSetup
	// StateCustomerOnHold indicates the customer is parked on hold music.
	StateCustomerOnHold
	// StateDialingAgent indicates the agent leg is being dialed.
	StateDialingAgent
	// StateAgentAnswered indicates the agent answered, join pending.
	StateAgentAnswered
	// StateBridged indicates customer and agent share the bridge.
	StateBridged
	// StateRecording indicates the bridged conversation is being recorded.
	StateRecording
	// StateTerminating indicates teardown commands are being issued.
	StateTerminating
	// StateTerminated indicates all entities have been released.
	StateTerminated
)

// String returns the string representation of SessionState.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDialingCustomer:
		return "DialingCustomer"
	case StateCustomerAnswered:
		return "CustomerAnswered"
	case StatePlayingWelcome:
		return "PlayingWelcome"
	case StateBridgeSetup:
		return "BridgeSetup"
	case StateCustomerOnHold:
		return "CustomerOnHold"
	case StateDialingAgent:
		return "DialingAgent"
	case StateAgentAnswered:
		return "AgentAnswered"
	case StateBridged:
		return "Bridged"
	case StateRecording:
		return "Recording"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// IsTerminal returns true if the session can make no further progress.
func (s SessionState) IsTerminal() bool {
	return s == StateTerminated
}

// connected reports whether both parties have been joined on the bridge.
func (s SessionState) connected() bool {
	return s == StateBridged || s == StateRecording
}

// Role identifies which party a call leg belongs to.
type Role int

const (
	// RoleCustomer is the called customer party.
	RoleCustomer Role = iota
	// RoleAgent is the agent merged into the call.
	RoleAgent
)

// String returns the string representation of Role.
func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleAgent:
		return "agent"
	default:
		return fmt.Sprintf("Unknown(%d)", r)
	}
}

// RecordingState represents the lifecycle of the bridge recording.
type RecordingState int

const (
	// RecordingNone indicates no recording has been attempted.
	RecordingNone RecordingState = iota
	// RecordingRequested indicates the start command was accepted.
	RecordingRequested
	// RecordingActive indicates the control plane confirmed recording.
	RecordingActive
	// RecordingFailedToStart indicates the start command failed. The
	// session continues unrecorded.
	RecordingFailedToStart
)

// String returns the string representation of RecordingState.
func (s RecordingState) String() string {
	switch s {
	case RecordingNone:
		return "None"
	case RecordingRequested:
		return "Requested"
	case RecordingActive:
		return "Active"
	case RecordingFailedToStart:
		return "FailedToStart"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// CallLeg is one dialed party. Owned exclusively by the session that
// created it; released during teardown regardless of its current state.
type CallLeg struct {
	ID         controlplane.ChannelID
	Role       Role
	Target     string
	State      controlplane.ChannelState
	DialedAt   time.Time
	AnsweredAt time.Time
}

// RingDuration returns the time from dial to answer, zero if unanswered.
func (l *CallLeg) RingDuration() time.Duration {
	if l.AnsweredAt.IsZero() || l.DialedAt.IsZero() {
		return 0
	}
	return l.AnsweredAt.Sub(l.DialedAt)
}

// Bridge is the mixing point joining the session's legs.
type Bridge struct {
	ID        controlplane.BridgeID
	Kind      controlplane.BridgeKind
	Members   []controlplane.ChannelID
	MOHActive bool
}

// Playback is a single announcement instance bound to a channel. The
// welcome playback is identified by matching its ID against the stored
// reference, never by target alone.
type Playback struct {
	ID     controlplane.PlaybackID
	Target string
	State  controlplane.PlaybackState
}

// Recording is the bridge recording, if one was attempted.
type Recording struct {
	ID     controlplane.RecordingID
	Format string
	Bridge controlplane.BridgeID
	State  RecordingState
}

// Snapshot is a read-only copy of session state for the operator surface.
type Snapshot struct {
	ID             string
	State          SessionState
	CustomerTarget string
	AgentTarget    string

	CustomerChannel controlplane.ChannelID
	CustomerState   controlplane.ChannelState
	AgentChannel    controlplane.ChannelID
	AgentState      controlplane.ChannelState
	AgentAttempts   int

	Bridge         controlplane.BridgeID
	RecordingID    controlplane.RecordingID
	RecordingState RecordingState

	StartedAt  time.Time
	AnsweredAt time.Time
	BridgedAt  time.Time
	EndedAt    time.Time

	EndReason string
}
