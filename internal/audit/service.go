package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for session events.
//
// It MUST be append-only.
// No Update/Delete methods are provided; events are append-only.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records call lifecycle information.
//
// IMPORTANT:
// - Callers must treat event logging as best-effort: a failed append is
//   logged by the caller at most; it never aborts session work.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.SessionID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogStateChange records a session state transition.
func (s *Service) LogStateChange(ctx context.Context, sessionID, providerCallID, from, to, reason string) error {
	return s.Append(ctx, Event{
		SessionID:      sessionID,
		ProviderCallID: providerCallID,
		Type:           EventTypeStateChanged,
		Message:        from + " -> " + to,
		Metadata:       reason,
	})
}

// LogTerminationAttempt records one teardown strategy attempt and its result.
func (s *Service) LogTerminationAttempt(ctx context.Context, sessionID, providerCallID, strategy, result string) error {
	return s.Append(ctx, Event{
		SessionID:      sessionID,
		ProviderCallID: providerCallID,
		Type:           EventTypeTerminationAttempt,
		Message:        strategy,
		Metadata:       result,
	})
}

// LogOperatorAction records a control-surface action against a live call.
func (s *Service) LogOperatorAction(ctx context.Context, sessionID, operatorID, role, message string) error {
	return s.Append(ctx, Event{
		SessionID: sessionID,
		Type:      EventTypeOperatorAction,
		Message:   message,
		Metadata:  `{"operator_id":"` + operatorID + `","role":"` + role + `"}`,
	})
}
