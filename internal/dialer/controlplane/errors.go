package controlplane

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrNotConnected indicates the client has no usable connection to the
	// control plane.
	ErrNotConnected = errors.New("control plane not connected")

	// ErrEntityNotFound indicates the command referenced a channel, bridge,
	// playback or recording the control plane does not know.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrRecordingUnavailable indicates the control plane refused to start
	// a recording, typically because the storage target is unwritable.
	ErrRecordingUnavailable = errors.New("recording unavailable")
)

// CommandError describes a failed control plane command.
type CommandError struct {
	// Op is the command that failed, e.g. "dial" or "createBridge".
	Op string

	// Entity is the primary entity the command addressed, if any.
	Entity string

	// StatusCode is the transport-level status (HTTP code for the REST
	// implementation). Zero when the failure happened before a response.
	StatusCode int

	// Cause is the underlying error.
	Cause error
}

// Error returns the error message.
func (e *CommandError) Error() string {
	switch {
	case e.Entity != "" && e.StatusCode > 0:
		return fmt.Sprintf("control plane %s %s: status %d", e.Op, e.Entity, e.StatusCode)
	case e.Entity != "":
		return fmt.Sprintf("control plane %s %s: %v", e.Op, e.Entity, e.Cause)
	case e.StatusCode > 0:
		return fmt.Sprintf("control plane %s: status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("control plane %s: %v", e.Op, e.Cause)
	}
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Cause
}

// NotFound returns true if the command failed because the target entity is
// unknown to the control plane.
func (e *CommandError) NotFound() bool {
	return e.StatusCode == 404 || errors.Is(e.Cause, ErrEntityNotFound)
}
