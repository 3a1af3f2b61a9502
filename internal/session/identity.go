package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"voice-agent-platform/internal/telephony"
)

// identityExtractor resolves the caller's phone identity from the media
// room. Two attempts, a fixed delay apart; participants often join with
// empty attributes that the provider backfills a moment later.
type identityExtractor struct {
	room       telephony.Room
	retryDelay time.Duration
	log        *slog.Logger

	mu    sync.Mutex
	value string
}

func newIdentityExtractor(room telephony.Room, retryDelay time.Duration, log *slog.Logger) *identityExtractor {
	return &identityExtractor{
		room:       room,
		retryDelay: retryDelay,
		log:        log,
		value:      IdentityUnresolved,
	}
}

// Run performs the two-attempt extraction. Safe to call once from a
// background task; Value is readable concurrently at any time.
func (e *identityExtractor) Run(ctx context.Context) {
	if e.attempt(ctx) {
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(e.retryDelay):
	}
	if !e.attempt(ctx) {
		e.log.Info("caller identity unresolved after retry")
	}
}

// attempt scans participants once. A resolved value is never
// overwritten.
func (e *identityExtractor) attempt(ctx context.Context) bool {
	if e.room == nil {
		return false
	}
	found := extractPhoneIdentity(e.room.RemoteParticipants(ctx))
	if found == "" {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.value == IdentityUnresolved {
		e.value = found
		e.log.Info("caller identity resolved", "identity", found)
	}
	return true
}

func (e *identityExtractor) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

func (e *identityExtractor) Resolved() bool {
	return e.Value() != IdentityUnresolved
}

// extractPhoneIdentity scans all participants per source, in priority
// order: phone embedded in a telephony-leg identity, then the provider
// phone attribute, then metadata keys.
func extractPhoneIdentity(participants []telephony.Participant) string {
	for _, p := range participants {
		if phone := telephony.LegPhoneNumber(p.Identity()); phone != "" {
			return phone
		}
	}
	for _, p := range participants {
		if phone := strings.TrimSpace(p.Attributes()[telephony.PhoneAttribute]); phone != "" {
			return phone
		}
	}
	for _, p := range participants {
		if phone := phoneFromMetadata(p.Metadata()); phone != "" {
			return phone
		}
	}
	return ""
}

func phoneFromMetadata(metadata string) string {
	if metadata == "" {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(metadata), &m); err != nil {
		return ""
	}
	for _, key := range []string{"phoneNumber", "from"} {
		if v, ok := m[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
