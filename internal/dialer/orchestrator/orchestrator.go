package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sebas/outdial/internal/dialer/controlplane"
	"github.com/sebas/outdial/internal/dialer/events"
)

// EntityBinder maps control plane entity IDs to sessions so inbound
// events can be routed without polling. registry.Registry satisfies it.
type EntityBinder interface {
	Register(entityID, sessionID string)
	Unregister(entityID string)
}

// Config carries the identity and collaborators for one session.
type Config struct {
	ID             string
	CustomerTarget string
	AgentTarget    string

	Client  controlplane.Client
	Binder  EntityBinder
	Options Options

	Logger    *slog.Logger
	Publisher events.Publisher
	Events    *events.Builder

	// OnTerminated is invoked once, from the session goroutine, after
	// the session reaches Terminated.
	OnTerminated func(sessionID string)
}

type termRequest struct {
	reason events.EndReason
	detail string
}

// Orchestrator owns one session's state machine. All mutable state is
// confined to the run goroutine; Deliver, Terminate and Snapshot are the
// only concurrent entry points.
type Orchestrator struct {
	id             string
	customerTarget string
	agentTarget    string

	cp   controlplane.Client
	bind EntityBinder
	opts Options
	log  *slog.Logger
	pub  events.Publisher
	evb  *events.Builder

	onTerminated func(string)

	inbox  chan controlplane.Event
	termCh chan termRequest
	done   chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once

	// Session state below is owned by the run goroutine.
	state     SessionState
	customer  *CallLeg
	agent     *CallLeg
	bridge    *Bridge
	welcome   *Playback
	recording *Recording

	agentAttempts int
	startedAt     time.Time
	bridgedAt     time.Time
	endedAt       time.Time
	endReason     events.EndReason

	dialTimer  *time.Timer
	dialTimerC <-chan time.Time
	timerRole  Role

	snapMu sync.RWMutex
	snap   Snapshot
}

// New creates a session in Idle state. Call Start to begin dialing.
func New(cfg Config) *Orchestrator {
	opts := cfg.Options.Normalize()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = events.NewNoopPublisher()
	}
	evb := cfg.Events
	if evb == nil {
		evb = events.NewBuilder("")
	}

	o := &Orchestrator{
		id:             cfg.ID,
		customerTarget: cfg.CustomerTarget,
		agentTarget:    cfg.AgentTarget,
		cp:             cfg.Client,
		bind:           cfg.Binder,
		opts:           opts,
		log:            logger,
		pub:            pub,
		evb:            evb,
		onTerminated:   cfg.OnTerminated,
		inbox:          make(chan controlplane.Event, opts.QueueDepth),
		termCh:         make(chan termRequest, 1),
		done:           make(chan struct{}),
		state:          StateIdle,
		startedAt:      time.Now(),
	}
	o.syncSnapshot()
	return o
}

// ID returns the session identifier.
func (o *Orchestrator) ID() string { return o.id }

// Start launches the session goroutine and issues the customer dial.
// Calling Start more than once has no effect.
func (o *Orchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		o.ctx, o.cancel = context.WithCancel(ctx)
		go o.run()
	})
}

// Deliver hands a control plane event to the session. It never blocks:
// when the queue is full the event is dropped with a warning and Deliver
// returns false.
func (o *Orchestrator) Deliver(ev controlplane.Event) bool {
	select {
	case o.inbox <- ev:
		return true
	default:
		o.log.Warn("[Session] event queue full, dropping event",
			"session_id", o.id,
			"event", ev.Kind(),
			"entity_id", ev.EntityID())
		return false
	}
}

// Terminate requests best-effort teardown. It may be called from any
// state and any goroutine; repeated requests collapse into one.
func (o *Orchestrator) Terminate(reason events.EndReason, detail string) {
	select {
	case o.termCh <- termRequest{reason: reason, detail: detail}:
	default:
	}
}

// Done is closed once the session has reached Terminated.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Snapshot returns a copy of the session state for the operator surface.
func (o *Orchestrator) Snapshot() Snapshot {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	return o.snap
}

// State returns the session's current state.
func (o *Orchestrator) State() SessionState {
	return o.Snapshot().State
}

// run is the session's serialization point: every state mutation happens
// on this goroutine. State advances only on receipt of confirming events,
// never on a command call returning.
func (o *Orchestrator) run() {
	defer o.finish()
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("[Session] panic in session loop",
				"session_id", o.id, "panic", fmt.Sprint(r))
			if !o.state.IsTerminal() {
				o.beginTeardown(events.EndReasonError, "internal error")
			}
		}
	}()

	o.publishAsync(o.evb.SessionStarted(o.id).
		Targets(o.customerTarget, o.agentTarget).
		Build())

	o.dialCustomer()

	for !o.state.IsTerminal() {
		// Termination preempts queued events.
		select {
		case req := <-o.termCh:
			o.beginTeardown(req.reason, req.detail)
			continue
		default:
		}

		select {
		case req := <-o.termCh:
			o.beginTeardown(req.reason, req.detail)
		case ev := <-o.inbox:
			o.handleEvent(ev)
		case <-o.dialTimerC:
			o.onDialTimeout()
		case <-o.ctx.Done():
			o.beginTeardown(events.EndReasonShutdown, "session context canceled")
		}
	}
}

func (o *Orchestrator) finish() {
	o.disarmDialTimer()
	o.cancel()
	o.syncSnapshot()
	close(o.done)
	if o.onTerminated != nil {
		o.onTerminated(o.id)
	}
}

// handleEvent validates one inbound event against current state and
// issues the next command(s). Every failure is handled here; nothing
// propagates out of the event loop.
func (o *Orchestrator) handleEvent(ev controlplane.Event) {
	switch e := ev.(type) {
	case controlplane.DialStatusEvent:
		o.onDialStatus(e)
	case controlplane.ChannelStateChangeEvent:
		o.onChannelState(e)
	case controlplane.PlaybackStateEvent:
		o.onPlaybackState(e)
	default:
		o.log.Debug("[Session] ignoring unhandled event kind",
			"session_id", o.id, "event", ev.Kind())
	}
	o.syncSnapshot()
}

func (o *Orchestrator) onDialStatus(e controlplane.DialStatusEvent) {
	leg := o.legByChannel(e.Peer)
	if leg == nil {
		o.dropEvent("dial status for unknown channel", string(e.Peer))
		return
	}

	switch {
	case e.Status == controlplane.DialStatusRinging:
		o.legRinging(leg)
	case e.Status == controlplane.DialStatusAnswer:
		o.legAnswered(leg)
	case e.Status.IsTerminal():
		o.legDialFailed(leg, e.Status)
	default:
		o.log.Debug("[Session] ignoring dial status",
			"session_id", o.id,
			"status", e.Status.String(),
			"channel_id", string(e.Peer))
	}
}

func (o *Orchestrator) legRinging(leg *CallLeg) {
	if leg.State != controlplane.ChannelDialing && leg.State != controlplane.ChannelDown {
		return
	}
	leg.State = controlplane.ChannelRinging
	o.publishAsync(o.evb.LegRinging(o.id, legRole(leg.Role), string(leg.ID)))
	o.log.Info("[Session] leg ringing",
		"session_id", o.id, "role", leg.Role.String(), "channel_id", string(leg.ID))
}

func (o *Orchestrator) legAnswered(leg *CallLeg) {
	switch {
	case leg.Role == RoleCustomer && o.state == StateDialingCustomer:
		o.disarmDialTimer()
		leg.State = controlplane.ChannelAnswered
		leg.AnsweredAt = time.Now()
		o.setState(StateCustomerAnswered)
		o.publishAsync(o.evb.LegAnswered(o.id, events.LegCustomer, string(leg.ID)).
			RingDuration(leg.RingDuration()).
			Build())
		o.log.Info("[Session] customer answered",
			"session_id", o.id, "channel_id", string(leg.ID))
		o.playWelcome()

	case leg.Role == RoleAgent && o.state == StateDialingAgent:
		o.disarmDialTimer()
		leg.State = controlplane.ChannelAnswered
		leg.AnsweredAt = time.Now()
		o.setState(StateAgentAnswered)
		o.publishAsync(o.evb.LegAnswered(o.id, events.LegAgent, string(leg.ID)).
			RingDuration(leg.RingDuration()).
			Build())
		o.log.Info("[Session] agent answered",
			"session_id", o.id, "channel_id", string(leg.ID))
		o.joinAgent()

	default:
		o.dropEvent("answer does not match expected leg for state "+o.state.String(), string(leg.ID))
	}
}

func (o *Orchestrator) legDialFailed(leg *CallLeg, status controlplane.DialStatus) {
	if leg.Role == RoleCustomer {
		if o.state != StateDialingCustomer {
			o.dropEvent("customer dial status out of order", string(leg.ID))
			return
		}
		o.disarmDialTimer()
		leg.State = controlplane.ChannelFailed
		o.log.Warn("[Session] customer dial failed",
			"session_id", o.id, "status", status.String(), "channel_id", string(leg.ID))
		o.beginTeardown(endReasonForDialStatus(status), "customer dial failed: "+status.String())
		return
	}

	if o.state != StateDialingAgent {
		o.dropEvent("agent dial status out of order", string(leg.ID))
		return
	}
	leg.State = controlplane.ChannelFailed
	o.log.Warn("[Session] agent dial failed",
		"session_id", o.id, "status", status.String(), "channel_id", string(leg.ID))
	o.agentDialFailed("dial status " + status.String())
}

func (o *Orchestrator) onChannelState(e controlplane.ChannelStateChangeEvent) {
	leg := o.legByChannel(e.Channel)
	if leg == nil {
		o.dropEvent("channel state for unknown channel", string(e.Channel))
		return
	}

	switch {
	case e.State == controlplane.ChannelRinging:
		o.legRinging(leg)
	case e.State.IsTerminal():
		o.legHungup(leg, e.State)
	default:
		// Observed state only; transitions drive on dial status.
		leg.State = e.State
		o.log.Debug("[Session] channel state",
			"session_id", o.id, "role", leg.Role.String(), "state", e.State.String())
	}
}

func (o *Orchestrator) legHungup(leg *CallLeg, st controlplane.ChannelState) {
	leg.State = st
	o.publishAsync(o.evb.LegHungup(o.id, legRole(leg.Role), string(leg.ID)))
	o.log.Info("[Session] leg hung up",
		"session_id", o.id, "role", leg.Role.String(), "channel_id", string(leg.ID))

	if leg.Role == RoleAgent && o.state == StateDialingAgent {
		// Agent vanished before answer; counts as a failed attempt.
		o.agentDialFailed("agent channel hung up")
		return
	}

	var reason events.EndReason
	var detail string
	switch {
	case o.state.connected():
		reason, detail = events.EndReasonNormal, leg.Role.String()+" hung up"
	case leg.Role == RoleCustomer && o.state == StateDialingCustomer:
		reason, detail = events.EndReasonCancelled, "customer channel gone before answer"
	case leg.Role == RoleCustomer:
		reason, detail = events.EndReasonAbandoned, "customer left before agent joined"
	default:
		reason, detail = events.EndReasonError, "agent channel gone before join"
	}
	o.beginTeardown(reason, detail)
}

func (o *Orchestrator) onPlaybackState(e controlplane.PlaybackStateEvent) {
	if o.welcome == nil || e.Playback != o.welcome.ID {
		o.dropEvent("playback state for unknown playback", string(e.Playback))
		return
	}
	if o.state != StatePlayingWelcome {
		o.dropEvent("playback state out of order", string(e.Playback))
		return
	}

	o.welcome.State = e.State
	switch e.State {
	case controlplane.PlaybackPlaying:
		o.publishAsync(o.evb.PlaybackStarted(o.id, string(e.Playback), o.opts.WelcomeMedia))
		o.log.Debug("[Session] welcome announcement playing",
			"session_id", o.id, "playback_id", string(e.Playback))

	case controlplane.PlaybackDone:
		o.publishAsync(o.evb.PlaybackFinished(o.id, string(e.Playback), false))
		o.bind.Unregister(string(e.Playback))
		o.log.Info("[Session] welcome announcement finished",
			"session_id", o.id, "playback_id", string(e.Playback))
		o.setupBridge()

	case controlplane.PlaybackFailed:
		o.publishAsync(o.evb.PlaybackFinished(o.id, string(e.Playback), true))
		o.bind.Unregister(string(e.Playback))
		o.log.Error("[Session] welcome announcement failed",
			"session_id", o.id, "playback_id", string(e.Playback))
		o.beginTeardown(events.EndReasonError, "welcome playback failed")
	}
}

// dialCustomer issues the session's first commands: create the customer
// channel and dial it.
func (o *Orchestrator) dialCustomer() {
	ctx, cancel := o.cmdCtx()
	chID, err := o.cp.CreateChannel(ctx, o.customerTarget)
	cancel()
	if err != nil {
		o.log.Error("[Session] customer channel creation failed",
			"session_id", o.id, "target", o.customerTarget, "error", err.Error())
		o.beginTeardown(events.EndReasonRejected, "customer channel creation failed")
		return
	}

	o.customer = &CallLeg{
		ID:       chID,
		Role:     RoleCustomer,
		Target:   o.customerTarget,
		State:    controlplane.ChannelDialing,
		DialedAt: time.Now(),
	}
	o.bind.Register(string(chID), o.id)

	ctx, cancel = o.cmdCtx()
	err = o.cp.Dial(ctx, chID)
	cancel()
	if err != nil {
		o.log.Error("[Session] customer dial command failed",
			"session_id", o.id, "channel_id", string(chID), "error", err.Error())
		o.beginTeardown(events.EndReasonRejected, "customer dial failed")
		return
	}

	o.setState(StateDialingCustomer)
	o.armDialTimer(RoleCustomer, o.opts.CustomerDialTimeout)
	o.publishAsync(o.evb.LegDialing(o.id, events.LegCustomer).
		Target(o.customerTarget).
		Channel(string(chID)).
		Build())
	o.log.Info("[Session] dialing customer",
		"session_id", o.id, "target", o.customerTarget, "channel_id", string(chID))
	o.syncSnapshot()
}

// playWelcome starts the announcement on the answered customer leg.
func (o *Orchestrator) playWelcome() {
	if o.opts.WelcomeMedia == "" {
		o.setupBridge()
		return
	}

	ctx, cancel := o.cmdCtx()
	pbID, err := o.cp.PlayMedia(ctx, o.customer.ID, o.opts.WelcomeMedia)
	cancel()
	if err != nil {
		o.log.Error("[Session] welcome playback failed to start",
			"session_id", o.id, "media", o.opts.WelcomeMedia, "error", err.Error())
		o.beginTeardown(events.EndReasonError, "welcome playback failed to start")
		return
	}

	o.welcome = &Playback{
		ID:     pbID,
		Target: string(o.customer.ID),
		State:  controlplane.PlaybackQueued,
	}
	o.bind.Register(string(pbID), o.id)
	o.setState(StatePlayingWelcome)
	o.log.Info("[Session] playing welcome announcement",
		"session_id", o.id, "media", o.opts.WelcomeMedia, "playback_id", string(pbID))
}

// setupBridge creates the session's one bridge, parks the customer on it
// with hold music, and proceeds to the agent dial.
func (o *Orchestrator) setupBridge() {
	if o.bridge != nil {
		return
	}
	o.setState(StateBridgeSetup)

	ctx, cancel := o.cmdCtx()
	brID, err := o.cp.CreateBridge(ctx, controlplane.BridgeKind(o.opts.BridgeKind))
	cancel()
	if err != nil {
		o.log.Error("[Session] bridge creation failed",
			"session_id", o.id, "error", err.Error())
		o.beginTeardown(events.EndReasonError, "bridge creation failed")
		return
	}
	o.bridge = &Bridge{ID: brID, Kind: controlplane.BridgeKind(o.opts.BridgeKind)}
	o.bind.Register(string(brID), o.id)

	ctx, cancel = o.cmdCtx()
	err = o.cp.AddChannelToBridge(ctx, brID, o.customer.ID)
	cancel()
	if err != nil {
		o.log.Error("[Session] customer bridge join failed",
			"session_id", o.id, "bridge_id", string(brID), "error", err.Error())
		o.beginTeardown(events.EndReasonError, "customer bridge join failed")
		return
	}
	o.bridge.Members = append(o.bridge.Members, o.customer.ID)

	ctx, cancel = o.cmdCtx()
	err = o.cp.StartHoldMusic(ctx, brID, o.opts.MOHClass)
	cancel()
	if err != nil {
		// Hold music is cosmetic; the customer waits in silence.
		o.log.Warn("[Session] hold music failed to start",
			"session_id", o.id, "class", o.opts.MOHClass, "error", err.Error())
	} else {
		o.bridge.MOHActive = true
	}

	o.setState(StateCustomerOnHold)
	o.publishAsync(o.evb.SessionHeld(o.id, string(brID), o.opts.MOHClass))
	o.log.Info("[Session] customer parked on hold",
		"session_id", o.id, "bridge_id", string(brID))

	o.dialAgent()
}

// dialAgent creates and dials the agent leg. Called after bridge setup
// and again on retry.
func (o *Orchestrator) dialAgent() {
	o.agentAttempts++
	o.setState(StateDialingAgent)

	ctx, cancel := o.cmdCtx()
	chID, err := o.cp.CreateChannel(ctx, o.agentTarget)
	cancel()
	if err != nil {
		o.log.Error("[Session] agent channel creation failed",
			"session_id", o.id, "target", o.agentTarget, "error", err.Error())
		o.agentDialFailed("agent channel creation failed")
		return
	}

	o.agent = &CallLeg{
		ID:       chID,
		Role:     RoleAgent,
		Target:   o.agentTarget,
		State:    controlplane.ChannelDialing,
		DialedAt: time.Now(),
	}
	o.bind.Register(string(chID), o.id)

	ctx, cancel = o.cmdCtx()
	err = o.cp.Dial(ctx, chID)
	cancel()
	if err != nil {
		o.log.Error("[Session] agent dial command failed",
			"session_id", o.id, "channel_id", string(chID), "error", err.Error())
		o.agentDialFailed("agent dial failed")
		return
	}

	o.armDialTimer(RoleAgent, o.opts.AgentDialTimeout)
	o.publishAsync(o.evb.LegDialing(o.id, events.LegAgent).
		Target(o.agentTarget).
		Channel(string(chID)).
		Attempt(o.agentAttempts).
		Build())
	o.log.Info("[Session] dialing agent",
		"session_id", o.id,
		"target", o.agentTarget,
		"channel_id", string(chID),
		"attempt", o.agentAttempts)
}

// agentDialFailed releases the failed agent leg, then retries the dial or
// parks the customer on hold until an operator terminates the session.
// The bridge and hold music stay up either way.
func (o *Orchestrator) agentDialFailed(detail string) {
	o.disarmDialTimer()
	if o.agent != nil {
		o.releaseChannel(o.agent.ID)
		o.agent = nil
	}

	if o.agentAttempts <= o.opts.AgentDialRetries {
		o.log.Warn("[Session] retrying agent dial",
			"session_id", o.id,
			"detail", detail,
			"attempt", o.agentAttempts+1,
			"max_attempts", o.opts.AgentDialRetries+1)
		o.dialAgent()
		return
	}

	o.setState(StateCustomerOnHold)
	o.log.Warn("[Session] agent unreachable, customer parked on hold",
		"session_id", o.id, "detail", detail, "attempts", o.agentAttempts)
}

// joinAgent merges the answered agent into the bridge, stops hold music
// and requests recording.
func (o *Orchestrator) joinAgent() {
	ctx, cancel := o.cmdCtx()
	err := o.cp.AddChannelToBridge(ctx, o.bridge.ID, o.agent.ID)
	cancel()
	if err != nil {
		o.log.Error("[Session] agent bridge join failed",
			"session_id", o.id, "bridge_id", string(o.bridge.ID), "error", err.Error())
		o.beginTeardown(events.EndReasonError, "agent bridge join failed")
		return
	}
	o.bridge.Members = append(o.bridge.Members, o.agent.ID)

	if o.bridge.MOHActive {
		ctx, cancel = o.cmdCtx()
		err = o.cp.StopHoldMusic(ctx, o.bridge.ID)
		cancel()
		if err != nil {
			o.log.Warn("[Session] hold music failed to stop",
				"session_id", o.id, "bridge_id", string(o.bridge.ID), "error", err.Error())
		}
		o.bridge.MOHActive = false
	}

	o.bridgedAt = time.Now()
	o.setState(StateBridged)
	o.publishAsync(o.evb.SessionBridged(o.id, string(o.bridge.ID)))
	o.log.Info("[Session] parties bridged",
		"session_id", o.id, "bridge_id", string(o.bridge.ID))

	o.startRecording()
}

// startRecording requests the bridge recording. Failure is non-fatal: the
// parties keep talking unrecorded.
func (o *Orchestrator) startRecording() {
	if !o.opts.Record.Enabled || o.recording != nil {
		return
	}

	ctx, cancel := o.cmdCtx()
	recID, err := o.cp.StartRecording(ctx, o.bridge.ID, o.opts.Record.Format, controlplane.RecordOptions{
		Beep:       o.opts.Record.Beep,
		MaxSeconds: o.opts.Record.MaxSeconds,
		IfExists:   o.opts.Record.IfExists,
	})
	cancel()
	if err != nil {
		o.recording = &Recording{
			Format: o.opts.Record.Format,
			Bridge: o.bridge.ID,
			State:  RecordingFailedToStart,
		}
		o.publishAsync(o.evb.RecordingFailed(o.id, err.Error()))
		o.log.Warn("[Session] recording failed to start, continuing unrecorded",
			"session_id", o.id, "error", err.Error())
		return
	}

	o.recording = &Recording{
		ID:     recID,
		Format: o.opts.Record.Format,
		Bridge: o.bridge.ID,
		State:  RecordingRequested,
	}
	o.bind.Register(string(recID), o.id)
	o.setState(StateRecording)
	o.publishAsync(o.evb.RecordingStarted(o.id, string(recID), o.opts.Record.Format))
	o.log.Info("[Session] recording started",
		"session_id", o.id, "recording_id", string(recID), "format", o.opts.Record.Format)
}

func (o *Orchestrator) onDialTimeout() {
	o.dialTimerC = nil
	switch {
	case o.timerRole == RoleCustomer && o.state == StateDialingCustomer:
		o.log.Warn("[Session] customer dial timed out",
			"session_id", o.id, "timeout", o.opts.CustomerDialTimeout.String())
		o.beginTeardown(events.EndReasonNoAnswer, "customer dial timed out")
	case o.timerRole == RoleAgent && o.state == StateDialingAgent:
		o.log.Warn("[Session] agent dial timed out",
			"session_id", o.id, "timeout", o.opts.AgentDialTimeout.String())
		o.agentDialFailed("agent dial timed out")
	default:
		// Stale timer; the dial already resolved.
	}
	o.syncSnapshot()
}

// beginTeardown moves the session to Terminating, releases every entity
// best-effort, and declares the session Terminated. Teardown commands are
// fire-and-forget: the session never waits for their confirming events.
func (o *Orchestrator) beginTeardown(reason events.EndReason, detail string) {
	if o.state == StateTerminating || o.state.IsTerminal() {
		return
	}
	o.disarmDialTimer()
	o.endReason = reason
	o.setState(StateTerminating)
	o.log.Info("[Session] terminating",
		"session_id", o.id, "reason", string(reason), "detail", detail)

	if err := o.teardown(); err != nil {
		o.log.Warn("[Session] teardown completed with errors",
			"session_id", o.id, "error", err.Error())
	}

	o.endedAt = time.Now()
	o.setState(StateTerminated)
	o.publishAsync(o.endedEvent(reason, detail))
	o.log.Info("[Session] terminated",
		"session_id", o.id, "reason", string(reason))
	o.syncSnapshot()
}

// teardown releases every entity the session created: hangup customer,
// hangup agent, destroy bridge. Each command runs independently; failures
// are collected, never short-circuited. Entities never created are
// skipped, and already-gone entities are not errors.
func (o *Orchestrator) teardown() error {
	var errs []error

	if o.customer != nil {
		if err := o.hangupChannel(o.customer.ID); err != nil {
			errs = append(errs, fmt.Errorf("hangup customer %s: %w", o.customer.ID, err))
		}
	}
	if o.agent != nil {
		if err := o.hangupChannel(o.agent.ID); err != nil {
			errs = append(errs, fmt.Errorf("hangup agent %s: %w", o.agent.ID, err))
		}
	}
	if o.bridge != nil {
		ctx, cancel := o.teardownCtx()
		err := o.cp.DestroyBridge(ctx, o.bridge.ID)
		cancel()
		if err != nil && !isNotFound(err) {
			errs = append(errs, fmt.Errorf("destroy bridge %s: %w", o.bridge.ID, err))
		}
	}

	return errors.Join(errs...)
}

func (o *Orchestrator) hangupChannel(ch controlplane.ChannelID) error {
	ctx, cancel := o.teardownCtx()
	defer cancel()
	if err := o.cp.Hangup(ctx, ch); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// releaseChannel hangs up a channel best-effort and stops routing its
// events to this session.
func (o *Orchestrator) releaseChannel(ch controlplane.ChannelID) {
	if err := o.hangupChannel(ch); err != nil {
		o.log.Warn("[Session] channel release failed",
			"session_id", o.id, "channel_id", string(ch), "error", err.Error())
	}
	o.bind.Unregister(string(ch))
}

func (o *Orchestrator) setState(next SessionState) {
	if o.state == next {
		return
	}
	prev := o.state
	o.state = next
	o.log.Debug("[Session] state transition",
		"session_id", o.id, "from", prev.String(), "to", next.String())
}

func (o *Orchestrator) legByChannel(ch controlplane.ChannelID) *CallLeg {
	if o.customer != nil && o.customer.ID == ch {
		return o.customer
	}
	if o.agent != nil && o.agent.ID == ch {
		return o.agent
	}
	return nil
}

// dropEvent logs a correlation miss. Stale and cross-session events are
// expected; they produce no transition and no command.
func (o *Orchestrator) dropEvent(why, entityID string) {
	o.log.Debug("[Session] dropping event",
		"session_id", o.id, "reason", why, "entity_id", entityID)
}

func (o *Orchestrator) armDialTimer(role Role, d time.Duration) {
	o.disarmDialTimer()
	if d <= 0 {
		return
	}
	o.timerRole = role
	o.dialTimer = time.NewTimer(d)
	o.dialTimerC = o.dialTimer.C
}

func (o *Orchestrator) disarmDialTimer() {
	if o.dialTimer != nil {
		o.dialTimer.Stop()
		o.dialTimer = nil
	}
	o.dialTimerC = nil
}

// cmdCtx bounds one setup command; it inherits the session context so
// commands abort when the service shuts down.
func (o *Orchestrator) cmdCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(o.ctx, o.opts.CommandTimeout)
}

// teardownCtx bounds one release command. Detached from the session
// context so teardown proceeds during shutdown.
func (o *Orchestrator) teardownCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.opts.CommandTimeout)
}

func (o *Orchestrator) publishAsync(ev events.Event) {
	o.pub.PublishAsync(ev)
}

func (o *Orchestrator) endedEvent(reason events.EndReason, detail string) events.Event {
	var ring, talk time.Duration
	if o.customer != nil {
		ring = o.customer.RingDuration()
	}
	if !o.bridgedAt.IsZero() {
		talk = o.endedAt.Sub(o.bridgedAt)
	}
	recorded := o.recording != nil &&
		(o.recording.State == RecordingRequested || o.recording.State == RecordingActive)

	return o.evb.SessionEnded(o.id).
		Reason(reason, detail).
		Durations(ring, talk, o.endedAt.Sub(o.startedAt)).
		Disposition(o.disposition(reason)).
		Recorded(recorded).
		Build()
}

func (o *Orchestrator) disposition(reason events.EndReason) string {
	if o.customer != nil && !o.customer.AnsweredAt.IsZero() {
		return events.DispositionAnswered
	}
	switch reason {
	case events.EndReasonBusy:
		return events.DispositionBusy
	case events.EndReasonNoAnswer:
		return events.DispositionNoAnswer
	case events.EndReasonCancelled, events.EndReasonOperator, events.EndReasonShutdown:
		return events.DispositionCanceled
	default:
		return events.DispositionFailed
	}
}

func (o *Orchestrator) syncSnapshot() {
	snap := Snapshot{
		ID:             o.id,
		State:          o.state,
		CustomerTarget: o.customerTarget,
		AgentTarget:    o.agentTarget,
		AgentAttempts:  o.agentAttempts,
		StartedAt:      o.startedAt,
		BridgedAt:      o.bridgedAt,
		EndedAt:        o.endedAt,
		EndReason:      string(o.endReason),
	}
	if o.customer != nil {
		snap.CustomerChannel = o.customer.ID
		snap.CustomerState = o.customer.State
		snap.AnsweredAt = o.customer.AnsweredAt
	}
	if o.agent != nil {
		snap.AgentChannel = o.agent.ID
		snap.AgentState = o.agent.State
	}
	if o.bridge != nil {
		snap.Bridge = o.bridge.ID
	}
	if o.recording != nil {
		snap.RecordingID = o.recording.ID
		snap.RecordingState = o.recording.State
	}

	o.snapMu.Lock()
	o.snap = snap
	o.snapMu.Unlock()
}

func legRole(r Role) events.LegRole {
	if r == RoleAgent {
		return events.LegAgent
	}
	return events.LegCustomer
}

func endReasonForDialStatus(status controlplane.DialStatus) events.EndReason {
	switch status {
	case controlplane.DialStatusBusy:
		return events.EndReasonBusy
	case controlplane.DialStatusNoAnswer:
		return events.EndReasonNoAnswer
	case controlplane.DialStatusCanceled:
		return events.EndReasonCancelled
	case controlplane.DialStatusCongestion:
		return events.EndReasonCongestion
	case controlplane.DialStatusUnavailable:
		return events.EndReasonUnavailable
	default:
		return events.EndReasonRejected
	}
}

func isNotFound(err error) bool {
	var ce *controlplane.CommandError
	if errors.As(err, &ce) && ce.NotFound() {
		return true
	}
	return errors.Is(err, controlplane.ErrEntityNotFound)
}
