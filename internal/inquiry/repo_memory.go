package inquiry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a simple in-memory Store useful for tests.
// It is not intended for production use.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record

	// CreateErr, when set, makes Create fail. Tests use it to exercise
	// the guard's retry semantics.
	CreateErr error
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Create(ctx context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return Record{}, m.CreateErr
	}
	if rec.IdentityKey == "" || rec.IdentityKey == "unknown" {
		return Record{}, ErrInvalidRecord
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *MemoryStore) FindLatestByKey(ctx context.Context, identityKey string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].IdentityKey == identityKey {
			return m.records[i], true, nil
		}
	}
	return Record{}, false, nil
}

// Records returns a snapshot of everything stored so far.
func (m *MemoryStore) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
