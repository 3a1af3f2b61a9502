package audit

import "time"

// Event is an immutable, append-only call-session log record.
//
// Invariants:
// - Events are never updated or deleted.
// - session_id is required; every event belongs to exactly one call.
// - Logging is best-effort; never block a caller-facing flow on it.
//
// Storage recommendation (Postgres):
// - Table session_events with an INSERT-only policy.
// - Optional: partition by time for retention.

type Event struct {
	ID        string `json:"id" db:"id"`
	SessionID string `json:"session_id" db:"session_id"`

	// ProviderCallID is the telephony provider's identifier for the call leg.
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	// Type indicates the lifecycle category of the record.
	Type EventType `json:"type" db:"type"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeSessionStarted       EventType = "session_started"
	EventTypeStateChanged         EventType = "state_changed"
	EventTypeInquirySaved         EventType = "inquiry_saved"
	EventTypeTerminationAttempt   EventType = "termination_attempt"
	EventTypeTerminationCompleted EventType = "termination_completed"
	EventTypeOperatorAction       EventType = "operator_action"
)
