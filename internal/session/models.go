package session

import (
	"time"

	"voice-agent-platform/internal/telephony"
)

// State is the session lifecycle phase. Transitions only move forward;
// Advance rejects anything else.
type State int

const (
	StateStarting State = iota
	StateActive
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Termination reasons recorded in the event log.
const (
	ReasonCallComplete     = "call_complete"
	ReasonInactivity       = "inactivity"
	ReasonOperatorShutdown = "operator_shutdown"
	ReasonExternalHangup   = "external_hangup"
)

// IdentityUnresolved marks a caller identity that both extraction
// attempts failed to produce. It is never used as a persistence key.
const IdentityUnresolved = "unresolved"

// CallSession is the immutable call context captured at accept time.
type CallSession struct {
	ID             string
	ProviderCallID string
	From           string
	To             string
	StartedAt      time.Time
}

// Snapshot is the operator-facing view of a live session.
type Snapshot struct {
	SessionID         string     `json:"session_id"`
	ProviderCallID    string     `json:"provider_call_id"`
	State             string     `json:"state"`
	CallerIdentity    string     `json:"caller_identity"`
	IdentityResolved  bool       `json:"identity_resolved"`
	InquiryPersisted  bool       `json:"inquiry_persisted"`
	Turns             int        `json:"turns"`
	StartedAt         time.Time  `json:"started_at"`
	TerminationReason string     `json:"termination_reason,omitempty"`
	TeardownDeadline  *time.Time `json:"teardown_deadline,omitempty"`
}

func newCallSession(id string, call telephony.InboundCall) CallSession {
	return CallSession{
		ID:             id,
		ProviderCallID: call.ProviderCallID,
		From:           call.From,
		To:             call.To,
		StartedAt:      call.OccurredAt,
	}
}
