package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/backend"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/inquiry"
	"voice-agent-platform/internal/prompts"
	"voice-agent-platform/internal/telephony"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session: not found")

// RoomConnector joins the media room for an accepted call. Optional;
// deployments without a room host run speech over the turn stream only.
type RoomConnector func(ctx context.Context, call telephony.InboundCall) (telephony.Room, error)

// Manager tracks live sessions and builds a fresh orchestrator per
// accepted call. It implements telephony.SessionLauncher.
type Manager struct {
	cfg        config.SessionConfig
	responder  backend.Responder
	store      inquiry.Store
	audit      *audit.Service
	prompts    *prompts.Instructions
	terminator telephony.CallTerminator
	connect    RoomConnector
	log        *slog.Logger

	// root outlives HTTP request contexts; sessions run past the webhook.
	root context.Context

	mu       sync.Mutex
	byCallID map[string]*Orchestrator
	byID     map[string]*Orchestrator
}

type ManagerDeps struct {
	Config     config.SessionConfig
	Responder  backend.Responder
	Store      inquiry.Store
	Audit      *audit.Service
	Prompts    *prompts.Instructions
	Terminator telephony.CallTerminator
	Connect    RoomConnector
	Log        *slog.Logger
}

func NewManager(root context.Context, deps ManagerDeps) *Manager {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Manager{
		cfg:        deps.Config,
		responder:  deps.Responder,
		store:      deps.Store,
		audit:      deps.Audit,
		prompts:    deps.Prompts,
		terminator: deps.Terminator,
		connect:    deps.Connect,
		log:        deps.Log,
		root:       root,
		byCallID:   make(map[string]*Orchestrator),
		byID:       make(map[string]*Orchestrator),
	}
}

// Logger exposes the manager's logger for wiring code.
func (m *Manager) Logger() *slog.Logger { return m.log }

// Launch accepts one inbound call. A repeated launch for a live call
// returns the existing session instead of starting a second one.
func (m *Manager) Launch(ctx context.Context, call telephony.InboundCall) (string, error) {
	if call.ProviderCallID == "" {
		return "", errors.New("session: provider call id is required")
	}

	m.mu.Lock()
	if existing, ok := m.byCallID[call.ProviderCallID]; ok {
		m.mu.Unlock()
		return existing.call.ID, nil
	}
	m.mu.Unlock()

	var room telephony.Room
	if m.connect != nil {
		joined, err := m.connect(ctx, call)
		if err != nil {
			return "", fmt.Errorf("session: join room: %w", err)
		}
		room = joined
	}

	sess := newCallSession(uuid.NewString(), call)
	orch := NewOrchestrator(m.root, sess, Deps{
		Config:     m.cfg,
		Backend:    m.responder,
		Guard:      inquiry.NewGuard(m.store, m.log),
		Audit:      m.audit,
		Prompts:    m.prompts,
		Room:       room,
		Terminator: m.terminator,
		Log:        m.log,
	})

	m.mu.Lock()
	// Re-check under the lock; a concurrent duplicate webhook may have won.
	if existing, ok := m.byCallID[call.ProviderCallID]; ok {
		m.mu.Unlock()
		return existing.call.ID, nil
	}
	m.byCallID[call.ProviderCallID] = orch
	m.byID[sess.ID] = orch
	m.mu.Unlock()

	if err := orch.Start(ctx); err != nil {
		m.remove(orch)
		return "", err
	}

	go func() {
		<-orch.Done()
		m.remove(orch)
	}()

	m.log.Info("session launched", "session_id", sess.ID, "call_sid", call.ProviderCallID)
	return sess.ID, nil
}

// Resolve maps a provider call id to its live turn session.
func (m *Manager) Resolve(callSID string) (telephony.TurnSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orch, ok := m.byCallID[callSID]
	return orch, ok
}

// Get returns a live session by session id.
func (m *Manager) Get(sessionID string) (*Orchestrator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orch, ok := m.byID[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return orch, nil
}

// Snapshots lists every live session for the operator surface.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.Lock()
	orchs := make([]*Orchestrator, 0, len(m.byID))
	for _, o := range m.byID {
		orchs = append(orchs, o)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(orchs))
	for _, o := range orchs {
		out = append(out, o.Snapshot())
	}
	return out
}

// Shutdown force-ends every live session. Used on process exit.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	orchs := make([]*Orchestrator, 0, len(m.byID))
	for _, o := range m.byID {
		orchs = append(orchs, o)
	}
	m.mu.Unlock()

	for _, o := range orchs {
		o.terminate(ReasonOperatorShutdown)
	}
}

func (m *Manager) remove(orch *Orchestrator) {
	m.mu.Lock()
	delete(m.byCallID, orch.call.ProviderCallID)
	delete(m.byID, orch.call.ID)
	m.mu.Unlock()
}
