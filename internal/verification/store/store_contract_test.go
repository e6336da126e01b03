package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepname/internal/verification/models"
	"deepname/pkg/platform/sentinel"
	"deepname/pkg/testutil"
)

// runStoreContract exercises the behaviour every backend must share. newStore
// must return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := func(kind models.Kind, payload string, at time.Time) models.Entry {
		return models.Entry{Kind: kind, Payload: json.RawMessage(payload), StoredAt: at}
	}

	t.Run("get on empty slot is not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), models.KindHumanity)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("put then get returns the entry", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, entry(models.KindHumanity, `{"root":"123"}`, base)))

		got, err := s.Get(ctx, models.KindHumanity)
		require.NoError(t, err)
		assert.Equal(t, models.KindHumanity, got.Kind)
		assert.JSONEq(t, `{"root":"123"}`, string(got.Payload))
		assert.True(t, base.Equal(got.StoredAt), "stored_at %s", got.StoredAt)
	})

	t.Run("newer put replaces the previous record", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, entry(models.KindIdentity, `{"label":"old"}`, base)))
		require.NoError(t, s.Put(ctx, entry(models.KindIdentity, `{"label":"new"}`, base.Add(time.Second))))

		got, err := s.Get(ctx, models.KindIdentity)
		require.NoError(t, err)
		assert.JSONEq(t, `{"label":"new"}`, string(got.Payload))
	})

	t.Run("older put is superseded and leaves the newer record", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, entry(models.KindIdentity, `{"label":"newer"}`, base.Add(time.Minute))))

		err := s.Put(ctx, entry(models.KindIdentity, `{"label":"late arrival"}`, base))
		assert.ErrorIs(t, err, sentinel.ErrSuperseded)

		got, err := s.Get(ctx, models.KindIdentity)
		require.NoError(t, err)
		assert.JSONEq(t, `{"label":"newer"}`, string(got.Payload))
	})

	t.Run("kinds are independent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, entry(models.KindHumanity, `{"root":"1"}`, base.Add(time.Hour))))
		require.NoError(t, s.Put(ctx, entry(models.KindIdentity, `{"label":"a"}`, base)))

		_, err := s.Get(ctx, models.KindIdentity)
		assert.NoError(t, err)
	})

	t.Run("clear removes only its kind", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, entry(models.KindHumanity, `{"root":"1"}`, base)))
		require.NoError(t, s.Put(ctx, entry(models.KindIdentity, `{"label":"a"}`, base)))

		require.NoError(t, s.Clear(ctx, models.KindHumanity))
		_, err := s.Get(ctx, models.KindHumanity)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		_, err = s.Get(ctx, models.KindIdentity)
		assert.NoError(t, err)

		require.NoError(t, s.Clear(ctx, models.KindHumanity), "clearing an empty slot is not an error")
	})

	t.Run("after clear an older stamp is accepted", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, entry(models.KindHumanity, `{"root":"2"}`, base.Add(time.Hour))))
		require.NoError(t, s.Clear(ctx, models.KindHumanity))
		require.NoError(t, s.Put(ctx, entry(models.KindHumanity, `{"root":"1"}`, base)))
	})

	t.Run("racing writers keep the latest stamp", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		res := testutil.RunConcurrentCtx(ctx, 10, func(ctx context.Context, i int) error {
			payload := fmt.Sprintf(`{"root":"%d"}`, i)
			return s.Put(ctx, entry(models.KindHumanity, payload, base.Add(time.Duration(i)*time.Second)))
		})
		assert.Zero(t, res.Errors)
		assert.Equal(t, int32(10), res.Successes+res.Superseded)

		got, err := s.Get(ctx, models.KindHumanity)
		require.NoError(t, err)
		assert.JSONEq(t, `{"root":"9"}`, string(got.Payload))
	})
}
