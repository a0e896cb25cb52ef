// Package config holds the dialer service configuration: process-level
// settings from flags and environment, and the call-flow profile loaded
// from a YAML file.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds the dialer daemon configuration.
type Config struct {
	// Control plane settings
	ControlURL  string // REST base URL, e.g. http://127.0.0.1:8088/ari
	ControlUser string
	ControlPass string
	Application string // application name announced on the event stream

	// Operator API settings
	APIAddr string

	// Logging
	LogLevel string
	LogFile  string // optional rotating log file; empty disables file output

	// Call-flow profile
	ProfilePath string

	// NodeID tags emitted session events; defaults to the hostname.
	NodeID string

	// ShutdownGrace bounds how long Shutdown waits for active sessions.
	ShutdownGrace time.Duration
}

// Load loads configuration from command line flags and environment variables.
func Load() *Config {
	cfg := &Config{
		ShutdownGrace: 15 * time.Second,
	}

	flag.StringVar(&cfg.ControlURL, "control-url", "http://127.0.0.1:8088/ari", "Control plane REST base URL")
	flag.StringVar(&cfg.ControlUser, "control-user", "outdial", "Control plane username")
	flag.StringVar(&cfg.ControlPass, "control-pass", "", "Control plane password")
	flag.StringVar(&cfg.Application, "app", "outdial", "Application name registered on the event stream")
	flag.StringVar(&cfg.APIAddr, "api", "0.0.0.0:8080", "Operator API listen address")
	flag.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFile, "logfile", "", "Rotating log file path (empty for stdout only)")
	flag.StringVar(&cfg.ProfilePath, "profile", "", "Path to call-flow profile YAML (defaults when empty)")
	flag.StringVar(&cfg.NodeID, "node", "", "Node identifier for emitted events (hostname if empty)")

	var graceSeconds int
	flag.IntVar(&graceSeconds, "shutdown-grace", 15, "Seconds to wait for sessions to drain on shutdown")

	flag.Parse()

	cfg.ShutdownGrace = time.Duration(graceSeconds) * time.Second

	// Override with environment variables if set
	if v := os.Getenv("CONTROL_URL"); v != "" {
		cfg.ControlURL = v
	}
	if v := os.Getenv("CONTROL_USER"); v != "" {
		cfg.ControlUser = v
	}
	if v := os.Getenv("CONTROL_PASS"); v != "" {
		cfg.ControlPass = v
	}
	if v := os.Getenv("CONTROL_APP"); v != "" {
		cfg.Application = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.APIAddr = v
	}
	if v := os.Getenv("LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOGFILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("PROFILE_PATH"); v != "" {
		cfg.ProfilePath = v
	}
	if v := os.Getenv("NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("SHUTDOWN_GRACE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ShutdownGrace = time.Duration(n) * time.Second
		}
	}

	if cfg.NodeID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.NodeID = host
		} else {
			cfg.NodeID = "outdial"
		}
	}

	return cfg
}
