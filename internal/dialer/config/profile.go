package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile describes the call flow applied to every session: what the
// customer hears, how legs are dialed, and how the conversation is
// recorded. It is loaded once at startup and shared read-only.
type Profile struct {
	// WelcomeMedia is the media reference played to the customer after
	// answer, e.g. "sound:welcome". Empty skips the announcement.
	WelcomeMedia string `yaml:"welcome_media"`

	// MOHClass selects the hold music class started while the agent
	// leg is being dialed.
	MOHClass string `yaml:"moh_class"`

	Record RecordProfile `yaml:"record"`

	Customer LegPolicy `yaml:"customer"`
	Agent    LegPolicy `yaml:"agent"`

	// CommandTimeoutSeconds bounds each individual control plane
	// command. Zero falls back to the default.
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds"`

	// EventBuffer is the per-session event queue depth.
	EventBuffer int `yaml:"event_buffer"`
}

// RecordProfile configures the bridge recording started once both
// parties are connected.
type RecordProfile struct {
	// Enabled turns recording on. Recording failures never tear the
	// call down; they only mark the session.
	Enabled bool `yaml:"enabled"`

	Format     string `yaml:"format"`
	Beep       bool   `yaml:"beep"`
	MaxSeconds int    `yaml:"max_seconds"`
	IfExists   string `yaml:"if_exists"`
}

// LegPolicy configures dialing behavior for one call leg.
type LegPolicy struct {
	// DialTimeoutSeconds aborts the leg if no terminal dial status
	// arrives in time. Zero waits indefinitely.
	DialTimeoutSeconds int `yaml:"dial_timeout_seconds"`

	// DialRetries is the number of additional dial attempts after a
	// failed one. Only honored for the agent leg.
	DialRetries int `yaml:"dial_retries"`
}

// DefaultProfile returns the profile used when no YAML file is given.
func DefaultProfile() *Profile {
	return &Profile{
		WelcomeMedia: "sound:welcome",
		MOHClass:     "default",
		Record: RecordProfile{
			Enabled:  true,
			Format:   "wav",
			Beep:     true,
			IfExists: "overwrite",
		},
		CommandTimeoutSeconds: 5,
		EventBuffer:           16,
	}
}

// LoadProfile reads a call-flow profile from a YAML file. Fields not
// present in the file keep their defaults; unknown fields are rejected.
func LoadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()

	p := DefaultProfile()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the profile for values the orchestrator cannot work with.
func (p *Profile) Validate() error {
	if p.Record.Enabled && p.Record.Format == "" {
		return fmt.Errorf("record.format must be set when recording is enabled")
	}
	switch p.Record.IfExists {
	case "", "overwrite", "append", "fail":
	default:
		return fmt.Errorf("record.if_exists: unknown mode %q", p.Record.IfExists)
	}
	if p.Record.MaxSeconds < 0 {
		return fmt.Errorf("record.max_seconds must not be negative")
	}
	if p.Customer.DialTimeoutSeconds < 0 || p.Agent.DialTimeoutSeconds < 0 {
		return fmt.Errorf("dial_timeout_seconds must not be negative")
	}
	if p.Agent.DialRetries < 0 {
		return fmt.Errorf("agent.dial_retries must not be negative")
	}
	if p.EventBuffer < 0 {
		return fmt.Errorf("event_buffer must not be negative")
	}
	return nil
}

// CommandTimeout returns the per-command deadline as a duration.
func (p *Profile) CommandTimeout() time.Duration {
	if p.CommandTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.CommandTimeoutSeconds) * time.Second
}

// CustomerDialTimeout returns the customer leg dial deadline, zero if disabled.
func (p *Profile) CustomerDialTimeout() time.Duration {
	return time.Duration(p.Customer.DialTimeoutSeconds) * time.Second
}

// AgentDialTimeout returns the agent leg dial deadline, zero if disabled.
func (p *Profile) AgentDialTimeout() time.Duration {
	return time.Duration(p.Agent.DialTimeoutSeconds) * time.Second
}

// QueueDepth returns the per-session event buffer size.
func (p *Profile) QueueDepth() int {
	if p.EventBuffer <= 0 {
		return 16
	}
	return p.EventBuffer
}
