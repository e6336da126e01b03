package nonce

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepname/pkg/platform/sentinel"
	"deepname/pkg/requestcontext"
)

func TestInMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(*testing.T) Store { return NewInMemoryStore() })
}

func TestInMemoryStore_Expiry(t *testing.T) {
	st := NewInMemoryStore()
	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), issuedAt)
	require.NoError(t, st.Issue(ctx, "n1", time.Minute))
	require.NoError(t, st.Issue(ctx, "n2", time.Hour))

	late := requestcontext.WithTime(context.Background(), issuedAt.Add(time.Minute))
	assert.ErrorIs(t, st.Consume(late, "n1"), sentinel.ErrExpired)
	assert.ErrorIs(t, st.Consume(late, "n1"), sentinel.ErrNotFound, "expired nonce is dropped")

	deleted, err := st.DeleteExpired(context.Background(), issuedAt.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestNew(t *testing.T) {
	n := New()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), n)
	assert.NotEqual(t, n, New())
}
