package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/backend"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/inquiry"
	"voice-agent-platform/internal/prompts"
	"voice-agent-platform/internal/telephony"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		TurnDeadline:       100 * time.Millisecond,
		TerminationGrace:   10 * time.Millisecond,
		FarewellTimeout:    50 * time.Millisecond,
		IdentityRetryDelay: 10 * time.Millisecond,
		InactivityTimeout:  0,
		SpeechEnabled:      true,
	}
}

// scriptedResponder returns queued replies in order.
type scriptedResponder struct {
	mu      sync.Mutex
	replies []backend.Reply
	err     error
}

func (r *scriptedResponder) GenerateReply(context.Context, []backend.Turn) (backend.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return backend.Reply{}, r.err
	}
	if len(r.replies) == 0 {
		return backend.Reply{Text: "D'accord."}, nil
	}
	next := r.replies[0]
	r.replies = r.replies[1:]
	return next, nil
}

// stallingResponder never returns before its context is cancelled.
type stallingResponder struct{}

func (stallingResponder) GenerateReply(ctx context.Context, _ []backend.Turn) (backend.Reply, error) {
	<-ctx.Done()
	return backend.Reply{}, ctx.Err()
}

type recordedSpeech struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordedSpeech) Say(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
	return nil
}

func (s *recordedSpeech) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func newTestOrchestrator(t *testing.T, responder backend.Responder, store inquiry.Store) (*Orchestrator, *recordedSpeech) {
	t.Helper()
	if store == nil {
		store = inquiry.NewMemoryStore()
	}
	call := CallSession{ID: "sess-1", ProviderCallID: "CA1", From: "+33612345678", StartedAt: time.Now().UTC()}
	o := NewOrchestrator(context.Background(), call, Deps{
		Config:  testSessionConfig(),
		Backend: responder,
		Guard:   inquiry.NewGuard(store, testLogger()),
		Audit:   audit.NewService(audit.NewMemoryRepo()),
		Prompts: prompts.Build(),
		Log:     testLogger(),
	})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	speech := &recordedSpeech{}
	o.AttachSpeaker(speech)
	return o, speech
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %v", timeout)
}

func TestHandleTurn_BackendReply(t *testing.T) {
	responder := &scriptedResponder{replies: []backend.Reply{{Text: "Bien sûr, quel secteur ?"}}}
	o, _ := newTestOrchestrator(t, responder, nil)

	reply, err := o.HandleTurn(context.Background(), "je cherche un appartement")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if reply != "Bien sûr, quel secteur ?" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestHandleTurn_DeadlineFallsBack(t *testing.T) {
	o, _ := newTestOrchestrator(t, stallingResponder{}, nil)

	start := time.Now()
	reply, err := o.HandleTurn(context.Background(), "je veux vendre ma maison")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("turn took %v, deadline not enforced", elapsed)
	}
	if !strings.Contains(reply, "vendre") {
		t.Fatalf("expected sell fallback, got %q", reply)
	}
}

func TestHandleTurn_BackendErrorFallsBack(t *testing.T) {
	responder := &scriptedResponder{err: errors.New("upstream down")}
	o, _ := newTestOrchestrator(t, responder, nil)

	reply, err := o.HandleTurn(context.Background(), "bonjour")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if !strings.Contains(strings.ToLower(reply), "bonjour") {
		t.Fatalf("expected greeting fallback, got %q", reply)
	}
}

func TestInquiryToolCall_PersistsOnceAndWindsDown(t *testing.T) {
	args, _ := json.Marshal(map[string]any{
		"category": "property_search",
		"payload":  map[string]any{"location": "Lyon", "max_budget": 300000},
		"identity": "+33612345678",
	})
	responder := &scriptedResponder{replies: []backend.Reply{{
		Text:      "C'est noté, un conseiller vous rappellera.",
		ToolCalls: []backend.ToolCall{{ID: "t1", Name: backend.CreateInquiryToolName, Arguments: args}},
	}}}
	store := inquiry.NewMemoryStore()
	o, speech := newTestOrchestrator(t, responder, store)

	if _, err := o.HandleTurn(context.Background(), "je cherche un appartement à Lyon, budget 300 000"); err != nil {
		t.Fatalf("turn: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return o.State() == StateTerminated })

	records := store.Records()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.IdentityKey != "+33612345678" {
		t.Fatalf("identity key = %q", rec.IdentityKey)
	}
	if rec.Category != inquiry.CategoryPropertySearch {
		t.Fatalf("category = %q", rec.Category)
	}
	if rec.Payload["location"] != "Lyon" {
		t.Fatalf("payload = %v", rec.Payload)
	}

	var farewell bool
	for _, line := range speech.all() {
		if strings.Contains(line, "Au revoir") {
			farewell = true
		}
	}
	if !farewell {
		t.Fatalf("farewell never spoken: %v", speech.all())
	}
}

func TestStateMonotonicity(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedResponder{}, nil)

	if err := o.advance(StateStarting, "backwards"); err == nil {
		t.Fatalf("backwards transition accepted")
	}
	if err := o.advance(StateActive, "repeat"); err == nil {
		t.Fatalf("repeated transition accepted")
	}
	if o.State() != StateActive {
		t.Fatalf("state = %s", o.State())
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedResponder{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.terminate(ReasonExternalHangup)
		}()
	}
	wg.Wait()

	if o.State() != StateTerminated {
		t.Fatalf("state = %s", o.State())
	}
	snap := o.Snapshot()
	if snap.TerminationReason != ReasonExternalHangup {
		t.Fatalf("reason = %q", snap.TerminationReason)
	}
}

func TestTurnAfterTerminationRejected(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedResponder{}, nil)
	o.terminate(ReasonExternalHangup)

	if _, err := o.HandleTurn(context.Background(), "allo ?"); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("err = %v, want ErrSessionEnded", err)
	}
}

func TestTurnDuringTerminatingGetsEndingNotice(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedResponder{}, nil)
	if err := o.advanceWithReason(StateTerminating, ReasonCallComplete); err != nil {
		t.Fatalf("advance: %v", err)
	}

	reply, err := o.HandleTurn(context.Background(), "attendez !")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if !strings.Contains(reply, "ending") && !strings.Contains(reply, "Au revoir") {
		t.Fatalf("unexpected ending notice %q", reply)
	}
}

func TestInactivityEndsCall(t *testing.T) {
	cfg := testSessionConfig()
	cfg.InactivityTimeout = 40 * time.Millisecond

	store := inquiry.NewMemoryStore()
	call := CallSession{ID: "sess-2", ProviderCallID: "CA2", StartedAt: time.Now().UTC()}
	o := NewOrchestrator(context.Background(), call, Deps{
		Config:  cfg,
		Backend: &scriptedResponder{},
		Guard:   inquiry.NewGuard(store, testLogger()),
		Prompts: prompts.Build(),
		Log:     testLogger(),
	})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	speech := &recordedSpeech{}
	o.AttachSpeaker(speech)

	waitFor(t, 2*time.Second, func() bool { return o.State() == StateTerminated })

	if o.Snapshot().TerminationReason != ReasonInactivity {
		t.Fatalf("reason = %q", o.Snapshot().TerminationReason)
	}
	var noticed bool
	for _, line := range speech.all() {
		if strings.Contains(line, "ending") {
			noticed = true
		}
	}
	if !noticed {
		t.Fatalf("ending notice never spoken: %v", speech.all())
	}
}

func TestGreetingSpokenOnceOnAttach(t *testing.T) {
	o, speech := newTestOrchestrator(t, &scriptedResponder{}, nil)

	waitFor(t, time.Second, func() bool { return len(speech.all()) >= 1 })
	o.AttachSpeaker(speech)
	time.Sleep(30 * time.Millisecond)

	var greetings int
	for _, line := range speech.all() {
		if strings.Contains(line, "Bonjour") {
			greetings++
		}
	}
	if greetings != 1 {
		t.Fatalf("greetings = %d, want 1: %v", greetings, speech.all())
	}
}

func TestManager_LaunchAndResolve(t *testing.T) {
	m := NewManager(context.Background(), ManagerDeps{
		Config:    testSessionConfig(),
		Responder: &scriptedResponder{},
		Store:     inquiry.NewMemoryStore(),
		Prompts:   prompts.Build(),
		Log:       testLogger(),
	})

	call := telephony.InboundCall{ProviderCallID: "CA9", From: "+33611111111", OccurredAt: time.Now().UTC()}
	id1, err := m.Launch(context.Background(), call)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	id2, err := m.Launch(context.Background(), call)
	if err != nil {
		t.Fatalf("relaunch: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("duplicate launch created a second session: %s vs %s", id1, id2)
	}

	if _, ok := m.Resolve("CA9"); !ok {
		t.Fatalf("resolve by call sid failed")
	}
	if _, err := m.Get(id1); err != nil {
		t.Fatalf("get: %v", err)
	}

	orch, _ := m.Get(id1)
	orch.terminate(ReasonExternalHangup)
	waitFor(t, 2*time.Second, func() bool {
		_, ok := m.Resolve("CA9")
		return !ok
	})
}
