package inquiry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store is the persistence contract for inquiry records.
//
// Store failures are non-fatal to the call: the guard reports them as a
// failed outcome and the caller-facing path keeps going.
type Store interface {
	// Create persists the record and returns it with the store-assigned id.
	Create(ctx context.Context, rec Record) (Record, error)
	// FindLatestByKey returns the most recent record for an identity key.
	FindLatestByKey(ctx context.Context, identityKey string) (Record, bool, error)
}

var ErrInvalidRecord = errors.New("inquiry: invalid record")

// PostgresStore persists inquiries in Postgres with an optional Redis
// read-through cache of the latest record per identity key.
type PostgresStore struct {
	db    *sql.DB
	cache *redis.Client
	log   *slog.Logger

	cacheTTL time.Duration
	clock    func() time.Time
}

func NewPostgresStore(db *sql.DB, cache *redis.Client, log *slog.Logger) *PostgresStore {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresStore{
		db:       db,
		cache:    cache,
		log:      log,
		cacheTTL: 24 * time.Hour,
		clock:    time.Now,
	}
}

func (s *PostgresStore) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.IdentityKey == "" || rec.IdentityKey == "unknown" {
		return Record{}, ErrInvalidRecord
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}

	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("inquiry: marshal payload: %w", err)
	}

	const q = `
		INSERT INTO inquiries
			(id, identity_key, category, payload, display_name, status, source, identity_source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.IdentityKey, string(rec.Category), payloadJSON,
		nullable(rec.DisplayName), rec.Status, rec.Source,
		string(rec.IdentitySource), rec.CreatedAt,
	); err != nil {
		return Record{}, fmt.Errorf("inquiry: insert: %w", err)
	}

	s.cacheSet(ctx, rec)
	return rec, nil
}

func (s *PostgresStore) FindLatestByKey(ctx context.Context, identityKey string) (Record, bool, error) {
	if identityKey == "" {
		return Record{}, false, ErrInvalidRecord
	}
	if rec, ok := s.cacheGet(ctx, identityKey); ok {
		return rec, true, nil
	}

	const q = `
		SELECT id, identity_key, category, payload, display_name, status, source, identity_source, created_at
		FROM inquiries
		WHERE identity_key = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var (
		rec         Record
		category    string
		payloadJSON []byte
		displayName sql.NullString
		source      string
	)
	err := s.db.QueryRowContext(ctx, q, identityKey).Scan(
		&rec.ID, &rec.IdentityKey, &category, &payloadJSON,
		&displayName, &rec.Status, &rec.Source, &source, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("inquiry: select latest: %w", err)
	}

	rec.Category = Category(category)
	rec.IdentitySource = IdentitySource(source)
	rec.DisplayName = displayName.String
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &rec.Payload); err != nil {
			return Record{}, false, fmt.Errorf("inquiry: decode payload: %w", err)
		}
	}

	s.cacheSet(ctx, rec)
	return rec, true, nil
}

// Cache helpers are best-effort only; a broken cache never fails a read
// or a write.

func cacheKey(identityKey string) string { return "inquiry:latest:" + identityKey }

func (s *PostgresStore) cacheSet(ctx context.Context, rec Record) {
	if s.cache == nil {
		return
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(rec.IdentityKey), body, s.cacheTTL).Err(); err != nil {
		s.log.Debug("inquiry cache set failed", "err", err)
	}
}

func (s *PostgresStore) cacheGet(ctx context.Context, identityKey string) (Record, bool) {
	if s.cache == nil {
		return Record{}, false
	}
	body, err := s.cache.Get(ctx, cacheKey(identityKey)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Debug("inquiry cache get failed", "err", err)
		}
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return Record{}, false
	}
	return rec, true
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
