package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"deepname/internal/verification/models"
	"deepname/pkg/platform/sentinel"
)

// PostgresStore keeps one row per kind in verification_records.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Put upserts the row only when the incoming stamp is not older than the
// stored one, so the ordering decision happens inside a single statement.
func (s *PostgresStore) Put(ctx context.Context, entry models.Entry) error {
	query := `
		INSERT INTO verification_records (kind, payload, stored_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind) DO UPDATE SET
			payload = EXCLUDED.payload,
			stored_at = EXCLUDED.stored_at
		WHERE verification_records.stored_at <= EXCLUDED.stored_at
	`
	res, err := s.db.ExecContext(ctx, query, entry.Kind.String(), []byte(entry.Payload), entry.StoredAt)
	if err != nil {
		return fmt.Errorf("put verification record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put verification record: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrSuperseded
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, kind models.Kind) (models.Entry, error) {
	query := `SELECT payload, stored_at FROM verification_records WHERE kind = $1`
	var (
		payload []byte
		entry   = models.Entry{Kind: kind}
	)
	err := s.db.QueryRowContext(ctx, query, kind.String()).Scan(&payload, &entry.StoredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Entry{}, sentinel.ErrNotFound
		}
		return models.Entry{}, fmt.Errorf("get verification record: %w", err)
	}
	entry.Payload = payload
	entry.StoredAt = entry.StoredAt.UTC()
	return entry, nil
}

func (s *PostgresStore) Clear(ctx context.Context, kind models.Kind) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM verification_records WHERE kind = $1`, kind.String()); err != nil {
		return fmt.Errorf("clear verification record: %w", err)
	}
	return nil
}
