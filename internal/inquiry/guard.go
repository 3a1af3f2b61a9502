package inquiry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Guard enforces "at most one successfully stored inquiry per call".
//
// The guard, not the store, owns the persisted flag: the flag flips
// false→true exactly once and never resets. Concurrent attempts while a
// write is in flight are suppressed as duplicates; a failed write returns
// the guard to idle so the caller gets one more chance.
type Guard struct {
	store Store
	log   *slog.Logger
	clock func() time.Time

	// writeTimeout bounds the store round trip.
	writeTimeout time.Duration

	mu        sync.Mutex
	inflight  bool
	persisted bool
}

func NewGuard(store Store, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		store:        store,
		log:          log,
		clock:        time.Now,
		writeTimeout: 5 * time.Second,
	}
}

// OutcomeStatus classifies one TryCreate attempt.
type OutcomeStatus string

const (
	OutcomeCreated   OutcomeStatus = "created"
	OutcomeDuplicate OutcomeStatus = "duplicate_suppressed"
	OutcomeFailed    OutcomeStatus = "store_failed"
)

type Outcome struct {
	Status OutcomeStatus
	Record Record // populated only when Status == OutcomeCreated
	Err    error  // populated only when Status == OutcomeFailed
}

// CreateRequest carries one tool invocation's worth of inquiry data.
type CreateRequest struct {
	Category    string
	Payload     map[string]any
	DisplayName string

	// ProvidedIdentity is what the caller stated, if anything.
	ProvidedIdentity string
	// ExtractedIdentity is what identity extraction resolved from the
	// call itself; the sentinel "unresolved" means nothing was found.
	ExtractedIdentity string
}

// TryCreate sanitizes, resolves identity, and issues at most one store
// write. It is safe to call from any goroutine.
func (g *Guard) TryCreate(ctx context.Context, req CreateRequest) Outcome {
	g.mu.Lock()
	if g.persisted || g.inflight {
		g.mu.Unlock()
		return Outcome{Status: OutcomeDuplicate}
	}
	g.inflight = true
	g.mu.Unlock()

	rec := g.buildRecord(req)

	writeCtx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()
	stored, err := g.store.Create(writeCtx, rec)

	g.mu.Lock()
	g.inflight = false
	if err == nil {
		g.persisted = true
	}
	g.mu.Unlock()

	if err != nil {
		g.log.Warn("inquiry store write failed", "identity_key", rec.IdentityKey, "err", err)
		return Outcome{Status: OutcomeFailed, Err: err}
	}
	g.log.Info("inquiry saved", "inquiry_id", stored.ID, "category", stored.Category)
	return Outcome{Status: OutcomeCreated, Record: stored}
}

// Persisted reports whether a record has been successfully stored.
func (g *Guard) Persisted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.persisted
}

func (g *Guard) buildRecord(req CreateRequest) Record {
	key, source := resolveIdentity(req.ProvidedIdentity, req.ExtractedIdentity, g.clock())

	return Record{
		IdentityKey:    key,
		Category:       ParseCategory(req.Category),
		Payload:        SanitizePayload(req.Payload),
		DisplayName:    req.DisplayName,
		Status:         StatusNew,
		Source:         SourcePhoneCall,
		IdentitySource: source,
		CreatedAt:      g.clock().UTC(),
	}
}

// resolveIdentity picks the identity key: caller-stated number first, then
// the number extracted from the call, then the deterministic fallback.
func resolveIdentity(provided, extracted string, now time.Time) (string, IdentitySource) {
	if usable(provided) {
		return provided, IdentityProvidedByCustomer
	}
	if usable(extracted) {
		return extracted, IdentityExtractedFromCall
	}
	return FallbackIdentityKey(now), IdentityProvidedByCustomer
}

func usable(identity string) bool {
	switch identity {
	case "", "unknown", "unresolved":
		return false
	default:
		return true
	}
}
