package telephony

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// InboundCallForm captures the subset of voice webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
//
// Keep it minimal and provider-adapter-only; session decisions are not
// made here.
type InboundCallForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	Direction  string
	CallStatus string
	CallerName string
}

func ParseInboundCallForm(r *http.Request) (InboundCallForm, error) {
	if err := r.ParseForm(); err != nil {
		return InboundCallForm{}, err
	}
	f := InboundCallForm{
		CallSid:    r.PostFormValue("CallSid"),
		AccountSid: r.PostFormValue("AccountSid"),
		From:       normalizePhone(r.PostFormValue("From")),
		To:         normalizePhone(r.PostFormValue("To")),
		Direction:  r.PostFormValue("Direction"),
		CallStatus: r.PostFormValue("CallStatus"),
		CallerName: r.PostFormValue("CallerName"),
	}
	return f, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Providers sometimes send "anonymous" or empty; keep as-is.
	return s
}

// InboundCall is the normalized session-accept event handed to the launcher.
type InboundCall struct {
	ProviderCallID string
	From           string
	To             string
	OccurredAt     time.Time
}

func (f InboundCallForm) ToInboundCall(occurredAt time.Time) InboundCall {
	return InboundCall{
		ProviderCallID: f.CallSid,
		From:           f.From,
		To:             f.To,
		OccurredAt:     occurredAt,
	}
}

// SessionLauncher creates the orchestrator for an accepted call. It is
// injected by the process wiring to keep this adapter free of session
// package knowledge.
type SessionLauncher interface {
	Launch(ctx context.Context, call InboundCall) (sessionID string, err error)
}
