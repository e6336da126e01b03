// Package store persists the latest verification record of each kind.
//
// Every backend honours the same contract: Put keeps the entry with the newest
// StoredAt and reports sentinel.ErrSuperseded when the incoming entry is older
// than the stored one; Get reports sentinel.ErrNotFound for an empty slot.
package store

import (
	"context"

	"deepname/internal/verification/models"
)

// Store is the record-slot contract shared by the memory, Postgres and Redis backends.
type Store interface {
	Put(ctx context.Context, entry models.Entry) error
	Get(ctx context.Context, kind models.Kind) (models.Entry, error)
	Clear(ctx context.Context, kind models.Kind) error
}
