package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepname/pkg/platform/sentinel"
)

func entryAt(eventType string, at time.Time) *Entry {
	return &Entry{
		ID:        uuid.New(),
		EventType: eventType,
		Key:       "0xowner",
		Payload:   []byte(`{"type":"` + eventType + `"}`),
		CreatedAt: at,
	}
}

// runStoreContract checks behaviour every Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("fetches pending oldest first", func(t *testing.T) {
		st := newStore(t)
		second := entryAt("mint_confirmed", base.Add(time.Second))
		first := entryAt("mint_submitted", base)
		require.NoError(t, st.Append(ctx, second))
		require.NoError(t, st.Append(ctx, first))

		got, err := st.FetchUnprocessed(ctx, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, first.ID, got[0].ID)
		assert.Equal(t, second.ID, got[1].ID)
		assert.Equal(t, "0xowner", got[0].Key)
		assert.JSONEq(t, `{"type":"mint_submitted"}`, string(got[0].Payload))

		limited, err := st.FetchUnprocessed(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("processed entries leave the queue", func(t *testing.T) {
		st := newStore(t)
		e := entryAt("mint_failed", base)
		require.NoError(t, st.Append(ctx, e))

		require.NoError(t, st.MarkProcessed(ctx, e.ID, base.Add(time.Minute)))
		assert.ErrorIs(t, st.MarkProcessed(ctx, e.ID, base.Add(time.Minute)), sentinel.ErrNotFound)

		pending, err := st.CountPending(ctx)
		require.NoError(t, err)
		assert.Zero(t, pending)
		got, err := st.FetchUnprocessed(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("prunes processed entries before the cutoff", func(t *testing.T) {
		st := newStore(t)
		old := entryAt("mint_submitted", base)
		recent := entryAt("mint_confirmed", base)
		pending := entryAt("mint_failed", base)
		for _, e := range []*Entry{old, recent, pending} {
			require.NoError(t, st.Append(ctx, e))
		}
		require.NoError(t, st.MarkProcessed(ctx, old.ID, base.Add(time.Hour)))
		require.NoError(t, st.MarkProcessed(ctx, recent.ID, base.Add(3*time.Hour)))

		n, err := st.DeleteProcessedBefore(ctx, base.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		count, err := st.CountPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("unknown id", func(t *testing.T) {
		st := newStore(t)
		assert.ErrorIs(t, st.MarkProcessed(ctx, uuid.New(), base), sentinel.ErrNotFound)
	})
}

func TestInMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(*testing.T) Store { return NewInMemoryStore() })
}

func TestInMemoryStoreRejectsDuplicateIDs(t *testing.T) {
	st := NewInMemoryStore()
	e := entryAt("mint_submitted", time.Now())
	require.NoError(t, st.Append(context.Background(), e))
	assert.ErrorIs(t, st.Append(context.Background(), e), sentinel.ErrConflict)
}
