package orchestrator

import (
	"time"

	"github.com/sebas/outdial/internal/dialer/controlplane"
)

// RecordPolicy configures the bridge recording attempted after agent join.
type RecordPolicy struct {
	// Enabled turns recording on. A start failure never tears the
	// session down.
	Enabled    bool
	Format     string
	Beep       bool
	MaxSeconds int
	IfExists   string
}

// Options tunes a session's call flow. The zero value is usable; Normalize
// fills in required defaults.
type Options struct {
	// WelcomeMedia is played to the customer after answer. Empty skips
	// the announcement and proceeds straight to bridge setup.
	WelcomeMedia string

	// MOHClass selects the hold music class for the parked customer.
	MOHClass string

	// BridgeKind selects the mixing behavior requested at bridge creation.
	BridgeKind string

	Record RecordPolicy

	// CustomerDialTimeout aborts the session if the customer leg has no
	// terminal dial status in time. Zero waits indefinitely.
	CustomerDialTimeout time.Duration

	// AgentDialTimeout gives up on an agent dial attempt after this long.
	// Zero waits indefinitely.
	AgentDialTimeout time.Duration

	// AgentDialRetries is the number of additional agent dial attempts
	// after a failed one. After the last failure the customer stays
	// parked on hold until an operator terminates the session.
	AgentDialRetries int

	// CommandTimeout bounds each individual control plane command.
	CommandTimeout time.Duration

	// QueueDepth is the session event queue size. Events beyond it are
	// dropped with a warning.
	QueueDepth int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		WelcomeMedia: "sound:welcome",
		MOHClass:     "default",
		Record: RecordPolicy{
			Enabled:  true,
			Format:   "wav",
			Beep:     true,
			IfExists: "overwrite",
		},
		CommandTimeout: 5 * time.Second,
		QueueDepth:     16,
	}
}

// Normalize fills in the fields a session cannot run without.
func (o Options) Normalize() Options {
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 5 * time.Second
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 16
	}
	if o.BridgeKind == "" {
		o.BridgeKind = string(controlplane.KindMixing)
	}
	if o.Record.Enabled && o.Record.Format == "" {
		o.Record.Format = "wav"
	}
	if o.AgentDialRetries < 0 {
		o.AgentDialRetries = 0
	}
	return o
}
