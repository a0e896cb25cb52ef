package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sebas/outdial/internal/banner"
	"github.com/sebas/outdial/internal/dialer/api"
	"github.com/sebas/outdial/internal/dialer/ariclient"
	"github.com/sebas/outdial/internal/dialer/config"
	"github.com/sebas/outdial/internal/dialer/events"
	"github.com/sebas/outdial/internal/dialer/orchestrator"
	"github.com/sebas/outdial/internal/dialer/supervisor"
	"github.com/sebas/outdial/internal/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	if cfg.LogFile != "" {
		logger.InitLogger(os.Stdout, logger.NewRotatingFileWriter(cfg.LogFile))
	} else {
		logger.InitLogger(os.Stdout)
	}
	logger.SetLevel(cfg.LogLevel)

	// Load call-flow profile
	profile := config.DefaultProfile()
	if cfg.ProfilePath != "" {
		var err error
		profile, err = config.LoadProfile(cfg.ProfilePath)
		if err != nil {
			slog.Error("Failed to load call-flow profile", "path", cfg.ProfilePath, "error", err)
			os.Exit(1)
		}
	}

	recording := "disabled"
	if profile.Record.Enabled {
		recording = profile.Record.Format
	}

	// Print startup banner
	banner.Print("OUTBOUND DIALER", []banner.ConfigLine{
		{Label: "Control Plane", Value: cfg.ControlURL},
		{Label: "Application", Value: cfg.Application},
		{Label: "API Listen", Value: cfg.APIAddr},
		{Label: "Node ID", Value: cfg.NodeID},
		{Label: "Welcome Media", Value: profile.WelcomeMedia},
		{Label: "Hold Music", Value: profile.MOHClass},
		{Label: "Recording", Value: recording},
		{Label: "Log Level", Value: cfg.LogLevel},
	})

	if err := run(cfg, profile); err != nil {
		slog.Error("Dialer failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Dialer stopped")
}

func run(cfg *config.Config, profile *config.Profile) error {
	client, err := ariclient.New(ariclient.Config{
		BaseURL:  cfg.ControlURL,
		Username: cfg.ControlUser,
		Password: cfg.ControlPass,
		App:      cfg.Application,
		Logger:   slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("create control plane client: %w", err)
	}

	streamCtx, stopStream := context.WithCancel(context.Background())
	defer stopStream()

	stream, err := client.Events(streamCtx)
	if err != nil {
		return fmt.Errorf("connect control plane event stream: %w", err)
	}

	sup := supervisor.New(supervisor.Config{
		Client:    client,
		Options:   sessionOptions(profile),
		Logger:    slog.Default(),
		Publisher: events.NewLoggingPublisher(slog.Default()),
		NodeID:    cfg.NodeID,
	})

	apiSrv := api.NewServer(cfg.APIAddr, sup)
	if err := apiSrv.Start(); err != nil {
		return fmt.Errorf("start API server: %w", err)
	}

	// Event pump: every control plane event flows through here to the
	// owning session. The loop ends when the stream closes.
	streamClosed := make(chan struct{})
	go func() {
		defer close(streamClosed)
		for ev := range stream {
			sup.Route(ev)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reason string
	select {
	case <-ctx.Done():
		reason = "signal"
		slog.Info("Received signal, shutting down")
	case <-streamClosed:
		// Without events no session can make progress, so the node
		// drains and exits rather than orchestrate blind.
		reason = "event stream closed"
		slog.Error("Control plane event stream closed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := apiSrv.Stop(shutdownCtx); err != nil {
		slog.Error("Error stopping API server", "error", err)
	}
	if err := sup.Shutdown(shutdownCtx); err != nil {
		slog.Error("Session drain incomplete", "error", err)
	}
	stopStream()

	if reason == "event stream closed" {
		return fmt.Errorf("control plane event stream closed")
	}
	return nil
}

// sessionOptions maps the call-flow profile onto per-session options.
func sessionOptions(p *config.Profile) orchestrator.Options {
	return orchestrator.Options{
		WelcomeMedia: p.WelcomeMedia,
		MOHClass:     p.MOHClass,
		Record: orchestrator.RecordPolicy{
			Enabled:    p.Record.Enabled,
			Format:     p.Record.Format,
			Beep:       p.Record.Beep,
			MaxSeconds: p.Record.MaxSeconds,
			IfExists:   p.Record.IfExists,
		},
		CustomerDialTimeout: p.CustomerDialTimeout(),
		AgentDialTimeout:    p.AgentDialTimeout(),
		AgentDialRetries:    p.Agent.DialRetries,
		CommandTimeout:      p.CommandTimeout(),
		QueueDepth:          p.QueueDepth(),
	}
}
