package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"deepname/internal/mint/models"
	"deepname/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore keeps attempts in mint_attempts. The partial unique index on
// nullifier_hash enforces one pending attempt per nullifier.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const attemptColumns = `id, owner, nullifier_hash, name, state, tx_hash, failure, message, redirect, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, a *models.Attempt) error {
	query := `INSERT INTO mint_attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Owner, a.NullifierHash, a.Name, string(a.State), a.TxHash,
		string(a.Failure), a.Message, a.Redirect, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create mint attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, a *models.Attempt) error {
	query := `
		UPDATE mint_attempts SET
			name = $2, state = $3, tx_hash = $4, failure = $5,
			message = $6, redirect = $7, updated_at = $8
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		a.ID, a.Name, string(a.State), a.TxHash, string(a.Failure),
		a.Message, a.Redirect, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update mint attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update mint attempt: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM mint_attempts WHERE id = $1`, id)
	return scanAttempt(row)
}

func (s *PostgresStore) FindPending(ctx context.Context, nullifierHash string) (*models.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM mint_attempts
		WHERE nullifier_hash = $1 AND state IN ('ready', 'minting')`
	return scanAttempt(s.db.QueryRowContext(ctx, query, nullifierHash))
}

func scanAttempt(row *sql.Row) (*models.Attempt, error) {
	var (
		a       models.Attempt
		state   string
		failure string
	)
	err := row.Scan(&a.ID, &a.Owner, &a.NullifierHash, &a.Name, &state, &a.TxHash,
		&failure, &a.Message, &a.Redirect, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan mint attempt: %w", err)
	}
	a.State = models.State(state)
	a.Failure = models.Failure(failure)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ Store = (*PostgresStore)(nil)
