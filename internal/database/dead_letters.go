package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const schema = `
CREATE TABLE IF NOT EXISTS relay_dead_letters (
	id            BIGSERIAL PRIMARY KEY,
	message_id    TEXT        NOT NULL UNIQUE,
	payload       BYTEA       NOT NULL,
	reason        TEXT        NOT NULL,
	status_code   INTEGER     NOT NULL DEFAULT 0,
	error_message TEXT        NOT NULL DEFAULT '',
	attempts      INTEGER     NOT NULL DEFAULT 1,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS relay_dead_letters_created_at_idx ON relay_dead_letters (created_at);
`

// DeadLetterRepository stores dead letters in the relay_dead_letters table
type DeadLetterRepository struct {
	db *DB
}

// NewDeadLetterRepository creates a new dead-letter repository
func NewDeadLetterRepository(db *DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

// EnsureSchema creates the table if it does not exist
func (r *DeadLetterRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create dead-letter table: %w", err)
	}
	return nil
}

// Save inserts a dead letter. Saving the same message id again replaces the
// failure details and keeps the original creation time.
func (r *DeadLetterRepository) Save(ctx context.Context, dl *DeadLetter) error {
	if dl.MessageID == "" {
		return fmt.Errorf("dead letter has no message id")
	}
	query := `
		INSERT INTO relay_dead_letters (message_id, payload, reason, status_code, error_message, attempts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			reason = EXCLUDED.reason,
			status_code = EXCLUDED.status_code,
			error_message = EXCLUDED.error_message,
			attempts = EXCLUDED.attempts,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		dl.MessageID, dl.Payload, dl.Reason, dl.StatusCode, dl.ErrorMsg, dl.Attempts,
	).Scan(&dl.ID, &dl.CreatedAt, &dl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save dead letter %s: %w", dl.MessageID, err)
	}
	return nil
}

// List returns up to limit dead letters, oldest first
func (r *DeadLetterRepository) List(ctx context.Context, limit, offset int) ([]*DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, message_id, payload, reason, status_code, error_message, attempts, created_at, updated_at
		FROM relay_dead_letters
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	letters, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[DeadLetter])
	if err != nil {
		return nil, fmt.Errorf("failed to scan dead letters: %w", err)
	}
	return letters, nil
}

// Get returns one dead letter by id
func (r *DeadLetterRepository) Get(ctx context.Context, id int64) (*DeadLetter, error) {
	query := `
		SELECT id, message_id, payload, reason, status_code, error_message, attempts, created_at, updated_at
		FROM relay_dead_letters
		WHERE id = $1
	`
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}
	dl, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[DeadLetter])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan dead letter: %w", err)
	}
	return dl, nil
}

// Delete removes a dead letter
func (r *DeadLetterRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM relay_dead_letters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dead letter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of stored dead letters
func (r *DeadLetterRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM relay_dead_letters`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return n, nil
}
