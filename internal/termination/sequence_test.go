package termination

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/telephony"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeParticipant is a configurable room member.
type fakeParticipant struct {
	identity  string
	attrs     map[string]string
	discErr   error
	removeErr error

	mu           sync.Mutex
	disconnected int
	removed      int
}

func (p *fakeParticipant) Identity() string              { return p.identity }
func (p *fakeParticipant) Attributes() map[string]string { return p.attrs }
func (p *fakeParticipant) Metadata() string              { return "" }

func (p *fakeParticipant) Disconnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected++
	return p.discErr
}

func (p *fakeParticipant) Remove(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed++
	return p.removeErr
}

type fakeRoom struct {
	participants []telephony.Participant
	closeErr     error

	mu     sync.Mutex
	closed int
}

func (r *fakeRoom) RemoteParticipants(context.Context) []telephony.Participant {
	return r.participants
}

func (r *fakeRoom) Close(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return r.closeErr
}

type fakeTerminator struct {
	mu    sync.Mutex
	sids  []string
	allow bool
}

func (t *fakeTerminator) Terminate(_ context.Context, sid string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sids = append(t.sids, sid)
	return t.allow
}

// sessionHandle implements shutdown primitives with injectable failures.
type sessionHandle struct {
	disconnectErr error
	stopErr       error

	mu           sync.Mutex
	disconnected int
	stopped      int
}

func (h *sessionHandle) Disconnect(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected++
	return h.disconnectErr
}

func (h *sessionHandle) Stop(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped++
	return h.stopErr
}

func TestSequence_RunsEveryStrategy(t *testing.T) {
	room := &fakeRoom{}
	term := &fakeTerminator{allow: true}
	repo := audit.NewMemoryRepo()

	seq := NewSequence(Target{Room: room, Terminator: term}, audit.NewService(repo), testLogger(), "sess-1", "CA1")
	results := seq.Run(context.Background())

	if len(results) != 9 {
		t.Fatalf("results = %d, want 9", len(results))
	}
	if len(repo.Events()) != 9 {
		t.Fatalf("audit events = %d, want 9", len(repo.Events()))
	}
}

func TestSequence_FailuresDoNotStopCascade(t *testing.T) {
	sip := &fakeParticipant{
		identity: "sip_+33600000001",
		attrs:    map[string]string{telephony.CallSIDAttribute: "CA777"},
		discErr:  errors.New("host gone"),
	}
	room := &fakeRoom{
		participants: []telephony.Participant{sip},
		closeErr:     errors.New("room api down"),
	}
	term := &fakeTerminator{allow: true}
	session := &sessionHandle{disconnectErr: errors.New("nope"), stopErr: errors.New("nope")}

	seq := NewSequence(Target{Room: room, Session: session, Terminator: term}, nil, testLogger(), "sess-1", "CA777")
	results := seq.Run(context.Background())

	var failed, ran int
	for _, r := range results {
		ran++
		if r.Err != nil {
			failed++
		}
	}
	if ran != 9 {
		t.Fatalf("ran = %d, want 9", ran)
	}
	if failed == 0 {
		t.Fatalf("expected early strategies to fail")
	}

	// The provider-call strategy near the end must still have fired.
	if len(term.sids) != 1 || term.sids[0] != "CA777" {
		t.Fatalf("terminator sids = %v", term.sids)
	}
}

func TestSequence_PanickingStrategyIsContained(t *testing.T) {
	seq := &Sequence{
		strategies: []Strategy{
			strategyFunc{"boom", func(context.Context) error { panic("host sdk bug") }},
			strategyFunc{"after", func(context.Context) error { return nil }},
		},
		log:     testLogger(),
		timeout: time.Second,
	}

	results := seq.Run(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Err == nil || !strings.Contains(results[0].Err.Error(), "panic") {
		t.Fatalf("panic not surfaced: %v", results[0].Err)
	}
	if results[1].Err != nil {
		t.Fatalf("strategy after panic should succeed: %v", results[1].Err)
	}
}

func TestSequence_HangingStrategyTimesOut(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	seq := &Sequence{
		strategies: []Strategy{
			strategyFunc{"hang", func(context.Context) error { <-block; return nil }},
			strategyFunc{"after", func(context.Context) error { return nil }},
		},
		log:     testLogger(),
		timeout: 30 * time.Millisecond,
	}

	start := time.Now()
	results := seq.Run(context.Background())
	if time.Since(start) > 2*time.Second {
		t.Fatalf("sequence blocked on a hanging strategy")
	}
	if results[0].Err == nil {
		t.Fatalf("hanging strategy should report a timeout")
	}
	if results[1].Err != nil {
		t.Fatalf("next strategy should still run: %v", results[1].Err)
	}
}

func TestProbeShutdown_PreferenceOrder(t *testing.T) {
	h := &sessionHandle{}
	if err := probeShutdown(context.Background(), h); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if h.disconnected != 1 || h.stopped != 0 {
		t.Fatalf("expected Disconnect first, got disconnect=%d stop=%d", h.disconnected, h.stopped)
	}

	h = &sessionHandle{disconnectErr: errors.New("no")}
	if err := probeShutdown(context.Background(), h); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if h.stopped != 1 {
		t.Fatalf("expected fallback to Stop after Disconnect failed")
	}
}

func TestProbeShutdown_NoCapabilities(t *testing.T) {
	if err := probeShutdown(context.Background(), struct{}{}); !errors.Is(err, errNothingToDo) {
		t.Fatalf("err = %v, want errNothingToDo", err)
	}
}

func TestForceDisconnectSIPLegs_FallsBackToRemove(t *testing.T) {
	sip := &fakeParticipant{identity: "sip_+33600000001", discErr: errors.New("stuck")}
	web := &fakeParticipant{identity: "agent-web"}
	room := &fakeRoom{participants: []telephony.Participant{sip, web}}

	target := Target{Room: room}
	if err := target.forceDisconnectSIPLegs(context.Background()); err != nil {
		t.Fatalf("expected Remove fallback to clear the error, got %v", err)
	}
	if sip.removed != 1 {
		t.Fatalf("sip leg not removed")
	}
	if web.disconnected != 0 {
		t.Fatalf("non-sip participant must be left alone")
	}
}

func TestTerminateProviderCall_SkipsLegsWithoutSid(t *testing.T) {
	sip := &fakeParticipant{identity: "sip_+33600000001"}
	room := &fakeRoom{participants: []telephony.Participant{sip}}
	term := &fakeTerminator{allow: true}

	target := Target{Room: room, Terminator: term}
	if err := target.terminateProviderCall(context.Background()); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if len(term.sids) != 0 {
		t.Fatalf("terminator called without a call sid: %v", term.sids)
	}
}
