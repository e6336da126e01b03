// Package store persists mint attempts.
package store

import (
	"context"

	"github.com/google/uuid"

	"deepname/internal/mint/models"
)

// Store keeps mint attempts. Create refuses a second pending attempt for the
// same nullifier with sentinel.ErrConflict; Update and Get return
// sentinel.ErrNotFound for unknown ids.
type Store interface {
	Create(ctx context.Context, a *models.Attempt) error
	Update(ctx context.Context, a *models.Attempt) error
	Get(ctx context.Context, id uuid.UUID) (*models.Attempt, error)
	FindPending(ctx context.Context, nullifierHash string) (*models.Attempt, error)
}
