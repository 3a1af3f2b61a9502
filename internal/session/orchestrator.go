package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/backend"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/inquiry"
	"voice-agent-platform/internal/prompts"
	"voice-agent-platform/internal/telephony"
	"voice-agent-platform/internal/termination"
	"voice-agent-platform/pkg/logger"
)

// ErrSessionEnded is returned for turns arriving after teardown started.
var ErrSessionEnded = errors.New("session: call has ended")

// Deps bundles everything an orchestrator needs. Host handles
// (Room/Session/Agent/JobContext) may be nil; teardown skips what is
// absent.
type Deps struct {
	Config  config.SessionConfig
	Backend backend.Responder
	Guard   *inquiry.Guard
	Audit   *audit.Service
	Prompts *prompts.Instructions

	Room       telephony.Room
	Session    any
	Agent      any
	JobContext any
	Terminator telephony.CallTerminator

	Log   *slog.Logger
	Clock func() time.Time
}

// Orchestrator owns one live phone call end to end: lifecycle state,
// background tasks, the turn loop, inquiry persistence, and teardown.
type Orchestrator struct {
	call  CallSession
	cfg   config.SessionConfig
	log   *slog.Logger
	clock func() time.Time

	coord    *Coordinator
	pipeline *ReplyPipeline
	guard    *inquiry.Guard
	audit    *audit.Service
	prompts  *prompts.Instructions
	identity *identityExtractor
	target   termination.Target

	stateMu  sync.Mutex
	state    State
	reason   string
	deadline *time.Time

	// turnMu serializes turn processing; the caller hears replies in order.
	turnMu  sync.Mutex
	history []backend.Turn

	speakerMu sync.Mutex
	speaker   telephony.Speaker
	greeted   bool

	activityMu   sync.Mutex
	lastActivity time.Time

	terminateOnce sync.Once
	done          chan struct{}
}

func NewOrchestrator(parent context.Context, call CallSession, deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	log := logger.ForSession(deps.Log, call.ID, call.ProviderCallID)

	o := &Orchestrator{
		call:     call,
		cfg:      deps.Config,
		log:      log,
		clock:    deps.Clock,
		coord:    NewCoordinator(parent, log),
		pipeline: NewReplyPipeline(deps.Backend, deps.Config.TurnDeadline, log),
		guard:    deps.Guard,
		audit:    deps.Audit,
		prompts:  deps.Prompts,
		identity: newIdentityExtractor(deps.Room, deps.Config.IdentityRetryDelay, log),
		target: termination.Target{
			Room:       deps.Room,
			Session:    deps.Session,
			Agent:      deps.Agent,
			JobContext: deps.JobContext,
			Terminator: deps.Terminator,
		},
		state:        StateStarting,
		lastActivity: deps.Clock(),
		done:         make(chan struct{}),
	}
	return o
}

// Start moves the session to Active and launches the background tasks.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.advance(StateActive, "accepted"); err != nil {
		return err
	}
	if o.audit != nil {
		if err := o.audit.Append(ctx, audit.Event{
			SessionID:      o.call.ID,
			ProviderCallID: o.call.ProviderCallID,
			Type:           audit.EventTypeSessionStarted,
			Message:        "call accepted",
		}); err != nil {
			o.log.Warn("session start audit failed", "err", err)
		}
	}

	o.coord.Go("identity_extraction", o.identity.Run)
	o.coord.Go("inactivity_watchdog", o.watchInactivity)
	if o.cfg.MaxCallDuration > 0 {
		o.coord.Go("max_duration_watchdog", o.watchMaxDuration)
	}
	return nil
}

// AttachSpeaker hands the session its audio path. The greeting is
// spoken on first attach only; a reconnecting stream does not greet
// again.
func (o *Orchestrator) AttachSpeaker(s telephony.Speaker) {
	o.speakerMu.Lock()
	o.speaker = s
	greet := !o.greeted && o.cfg.SpeechEnabled
	if greet {
		o.greeted = true
	}
	o.speakerMu.Unlock()

	if greet && o.prompts != nil {
		o.coord.Go("greeting", func(ctx context.Context) {
			o.say(ctx, o.prompts.Greeting())
		})
	}
}

// HandleTurn processes one finished caller utterance. Turns run
// strictly one at a time.
func (o *Orchestrator) HandleTurn(ctx context.Context, text string) (string, error) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	switch o.State() {
	case StateTerminated:
		return "", ErrSessionEnded
	case StateTerminating:
		if o.prompts != nil {
			return o.prompts.EndingNotice(), nil
		}
		return "", ErrSessionEnded
	}

	o.touchActivity()
	o.history = append(o.history, backend.Turn{Role: backend.RoleCaller, Content: text})

	reply, fromBackend := o.pipeline.Generate(ctx, o.history)

	if fromBackend {
		for _, tc := range reply.ToolCalls {
			if tc.Name == backend.CreateInquiryToolName {
				o.dispatchInquiry(backend.DecodeCreateInquiryArgs(tc.Arguments))
			}
		}
	}

	if reply.Text == "" {
		// Tool-only completion; acknowledge so the line is never silent.
		reply.Text = "C'est noté, je m'occupe de transmettre votre demande."
	}

	o.history = append(o.history, backend.Turn{Role: backend.RoleAssistant, Content: reply.Text})
	return reply.Text, nil
}

// dispatchInquiry persists the inquiry off the turn path so a slow
// write never delays the spoken reply. A saved inquiry completes the
// call's purpose and starts the wind-down.
func (o *Orchestrator) dispatchInquiry(args backend.CreateInquiryArgs) {
	o.coord.Go("persist_inquiry", func(ctx context.Context) {
		outcome := o.guard.TryCreate(ctx, inquiry.CreateRequest{
			Category:          args.Category,
			Payload:           args.Payload,
			DisplayName:       args.DisplayName,
			ProvidedIdentity:  args.Identity,
			ExtractedIdentity: o.identity.Value(),
		})

		switch outcome.Status {
		case inquiry.OutcomeCreated:
			if o.audit != nil {
				_ = o.audit.Append(ctx, audit.Event{
					SessionID:      o.call.ID,
					ProviderCallID: o.call.ProviderCallID,
					Type:           audit.EventTypeInquirySaved,
					Message:        fmt.Sprintf("inquiry %s saved (%s)", outcome.Record.ID, outcome.Record.Category),
				})
			}
			o.BeginTermination(ReasonCallComplete)
		case inquiry.OutcomeDuplicate:
			o.log.Info("duplicate inquiry suppressed")
		case inquiry.OutcomeFailed:
			o.log.Error("inquiry persistence failed", "err", outcome.Err)
		}
	})
}

// NotifyHangup handles the remote side going away. No farewell is
// attempted; there is nobody left to hear it.
func (o *Orchestrator) NotifyHangup(reason string) {
	if reason == "" {
		reason = ReasonExternalHangup
	}
	o.log.Info("remote hangup", "reason", reason)
	o.terminate(ReasonExternalHangup)
}

// BeginTermination starts the graceful wind-down: move to Terminating,
// wait out the grace period so in-flight audio finishes, speak the
// farewell, then tear down. Idempotent; later callers with a different
// reason lose.
func (o *Orchestrator) BeginTermination(reason string) {
	if err := o.advanceWithReason(StateTerminating, reason); err != nil {
		return
	}

	// Runs outside the coordinator: terminate waits for coordinator
	// tasks, and this goroutine is the one calling it.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("teardown panicked", "panic", r)
			}
		}()

		select {
		case <-o.coord.Context().Done():
		case <-time.After(o.cfg.TerminationGrace):
		}

		if o.cfg.SpeechEnabled && o.prompts != nil {
			farewellCtx, cancel := context.WithTimeout(context.Background(), o.cfg.FarewellTimeout)
			o.say(farewellCtx, o.prompts.Farewell())
			cancel()
		}

		o.terminate(reason)
	}()
}

// terminate runs the teardown cascade exactly once and moves the
// session to Terminated.
func (o *Orchestrator) terminate(reason string) {
	o.terminateOnce.Do(func() {
		_ = o.advanceWithReason(StateTerminating, reason)

		o.coord.CancelAll()
		o.coord.Wait(5 * time.Second)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		seq := termination.NewSequence(o.target, o.audit, o.log, o.call.ID, o.call.ProviderCallID)
		seq.Run(ctx)

		_ = o.advanceWithReason(StateTerminated, reason)
		if o.audit != nil {
			_ = o.audit.Append(ctx, audit.Event{
				SessionID:      o.call.ID,
				ProviderCallID: o.call.ProviderCallID,
				Type:           audit.EventTypeTerminationCompleted,
				Message:        "reason: " + reason,
			})
		}
		close(o.done)
		o.log.Info("session terminated", "reason", reason)
	})
}

// Shutdown force-ends the session on operator request.
func (o *Orchestrator) Shutdown(ctx context.Context, operatorID, role string) {
	if o.audit != nil {
		_ = o.audit.LogOperatorAction(ctx, o.call.ID, operatorID, role, "force shutdown requested")
	}
	o.terminate(ReasonOperatorShutdown)
}

// Done closes when teardown has fully completed.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

func (o *Orchestrator) State() State {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.state
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.stateMu.Lock()
	state := o.state
	reason := o.reason
	deadline := o.deadline
	o.stateMu.Unlock()

	o.turnMu.Lock()
	turns := len(o.history)
	o.turnMu.Unlock()

	return Snapshot{
		SessionID:         o.call.ID,
		ProviderCallID:    o.call.ProviderCallID,
		State:             state.String(),
		CallerIdentity:    o.identity.Value(),
		IdentityResolved:  o.identity.Resolved(),
		InquiryPersisted:  o.guard != nil && o.guard.Persisted(),
		Turns:             turns / 2,
		StartedAt:         o.call.StartedAt,
		TerminationReason: reason,
		TeardownDeadline:  deadline,
	}
}

// advance moves the lifecycle forward. Backwards or repeated
// transitions are rejected, never applied.
func (o *Orchestrator) advance(to State, reason string) error {
	o.stateMu.Lock()
	from := o.state
	if to <= from {
		o.stateMu.Unlock()
		return fmt.Errorf("session: invalid transition %s -> %s", from, to)
	}
	o.state = to
	o.stateMu.Unlock()

	if o.audit != nil {
		_ = o.audit.LogStateChange(context.Background(), o.call.ID, o.call.ProviderCallID, from.String(), to.String(), reason)
	}
	return nil
}

func (o *Orchestrator) advanceWithReason(to State, reason string) error {
	if err := o.advance(to, reason); err != nil {
		return err
	}
	o.stateMu.Lock()
	if o.reason == "" {
		o.reason = reason
	}
	if to == StateTerminating && o.deadline == nil {
		d := o.clock().Add(o.cfg.TerminationGrace + o.cfg.FarewellTimeout)
		o.deadline = &d
	}
	o.stateMu.Unlock()
	return nil
}

func (o *Orchestrator) say(ctx context.Context, text string) {
	o.speakerMu.Lock()
	speaker := o.speaker
	o.speakerMu.Unlock()
	if speaker == nil || text == "" {
		return
	}
	if err := speaker.Say(ctx, text); err != nil {
		o.log.Warn("speech delivery failed", "err", err)
	}
}

func (o *Orchestrator) touchActivity() {
	o.activityMu.Lock()
	o.lastActivity = o.clock()
	o.activityMu.Unlock()
}

func (o *Orchestrator) idleFor() time.Duration {
	o.activityMu.Lock()
	defer o.activityMu.Unlock()
	return o.clock().Sub(o.lastActivity)
}

// watchInactivity ends the call when the caller stays silent past the
// configured window. The ending notice is spoken first so the hangup is
// never unexplained.
func (o *Orchestrator) watchInactivity(ctx context.Context) {
	if o.cfg.InactivityTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(o.cfg.InactivityTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if o.State() != StateActive {
				return
			}
			if o.idleFor() < o.cfg.InactivityTimeout {
				continue
			}
			o.log.Info("caller inactive, ending call", "idle", o.idleFor())
			if o.cfg.SpeechEnabled && o.prompts != nil {
				sayCtx, cancel := context.WithTimeout(ctx, o.cfg.FarewellTimeout)
				o.say(sayCtx, o.prompts.EndingNotice())
				cancel()
			}
			o.BeginTermination(ReasonInactivity)
			return
		}
	}
}

func (o *Orchestrator) watchMaxDuration(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(o.cfg.MaxCallDuration):
		o.log.Warn("max call duration reached")
		o.BeginTermination(ReasonCallComplete)
	}
}
