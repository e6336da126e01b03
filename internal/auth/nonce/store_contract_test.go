package nonce

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepname/pkg/platform/sentinel"
	"deepname/pkg/testutil"
)

func runStoreContract(t *testing.T, newStore func(*testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("issued nonce is consumed once", func(t *testing.T) {
		st := newStore(t)
		n := New()
		require.NoError(t, st.Issue(ctx, n, time.Minute))

		require.NoError(t, st.Consume(ctx, n))
		assert.ErrorIs(t, st.Consume(ctx, n), sentinel.ErrAlreadyUsed)
	})

	t.Run("unknown nonce", func(t *testing.T) {
		st := newStore(t)
		assert.ErrorIs(t, st.Consume(ctx, "never-issued"), sentinel.ErrNotFound)
	})

	t.Run("duplicate issue conflicts", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Issue(ctx, "abcdef0123", time.Minute))
		assert.ErrorIs(t, st.Issue(ctx, "abcdef0123", time.Minute), sentinel.ErrConflict)
	})

	t.Run("nonces are independent", func(t *testing.T) {
		st := newStore(t)
		a, b := New(), New()
		require.NoError(t, st.Issue(ctx, a, time.Minute))
		require.NoError(t, st.Issue(ctx, b, time.Minute))

		require.NoError(t, st.Consume(ctx, b))
		require.NoError(t, st.Consume(ctx, a))
	})

	t.Run("racing consumers redeem once", func(t *testing.T) {
		st := newStore(t)
		n := New()
		require.NoError(t, st.Issue(ctx, n, time.Minute))

		res := testutil.RunConcurrentCtx(ctx, 20, func(ctx context.Context, _ int) error {
			return st.Consume(ctx, n)
		})
		assert.Equal(t, int32(1), res.Successes)
		assert.Equal(t, int32(19), res.AlreadyUsed)
		assert.Zero(t, res.Errors)
	})
}
