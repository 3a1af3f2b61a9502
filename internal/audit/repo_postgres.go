package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo appends session events to the session_events table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
		INSERT INTO session_events
			(id, session_id, provider_call_id, type, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, q,
		e.ID, e.SessionID, e.ProviderCallID, string(e.Type), e.Message, e.Metadata, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}
