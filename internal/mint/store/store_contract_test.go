package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepname/internal/mint/models"
	"deepname/pkg/platform/sentinel"
)

// runStoreContract exercises the behaviour every backend must share. newStore
// must return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ready := func(nullifier string) *models.Attempt {
		a := models.NewAttempt("0x00000000000000000000000000000000000000a1", base)
		a.NullifierHash = nullifier
		a.Name = "alice smith"
		require.NoError(t, a.TransitionTo(models.StateReady, base))
		return a
	}

	t.Run("create then get returns the attempt", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := ready("111")
		require.NoError(t, s.Create(ctx, a))

		got, err := s.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		assert.Equal(t, models.StateReady, got.State)
		assert.Equal(t, "alice smith", got.Name)
		assert.True(t, base.Equal(got.CreatedAt))
	})

	t.Run("get unknown id is not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), models.NewAttempt("x", base).ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("second pending attempt for a nullifier conflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, ready("222")))

		err := s.Create(ctx, ready("222"))
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("finished attempt frees the nullifier", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first := ready("333")
		require.NoError(t, s.Create(ctx, first))
		require.NoError(t, first.Fail(models.FailureReverted, "reverted", base.Add(time.Minute)))
		require.NoError(t, s.Update(ctx, first))

		_, err := s.FindPending(ctx, "333")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.NoError(t, s.Create(ctx, ready("333")))
	})

	t.Run("update persists tx hash and state", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := ready("444")
		require.NoError(t, s.Create(ctx, a))
		require.NoError(t, a.TransitionTo(models.StateMinting, base.Add(time.Second)))
		a.TxHash = "0xfeed"
		require.NoError(t, s.Update(ctx, a))

		pending, err := s.FindPending(ctx, "444")
		require.NoError(t, err)
		assert.Equal(t, a.ID, pending.ID)
		assert.Equal(t, models.StateMinting, pending.State)
		assert.Equal(t, "0xfeed", pending.TxHash)
	})

	t.Run("update unknown attempt is not found", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(context.Background(), ready("555"))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
