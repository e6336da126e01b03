package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepname/internal/auth/nonce"
	"deepname/internal/media/models"
	mediastore "deepname/internal/media/store"
	ratemodels "deepname/internal/ratelimit/models"
	ratestore "deepname/internal/ratelimit/store"
	"deepname/pkg/requestcontext"
)

func TestRunOnceSweepsExpiredState(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), base)

	nonces := nonce.NewInMemoryStore()
	require.NoError(t, nonces.Issue(ctx, "expiredexpired", 30*time.Second))
	require.NoError(t, nonces.Issue(ctx, "freshfreshfresh", time.Hour))

	media := mediastore.NewInMemoryStore()
	require.NoError(t, media.PutSession(ctx, models.NewSession("", "old", base.Add(-2*time.Hour), time.Hour)))
	require.NoError(t, media.PutSession(ctx, models.NewSession("", "new", base, time.Hour)))

	svc, err := New(media, WithNonces(nonces), WithClock(func() time.Time { return base.Add(time.Minute) }))
	require.NoError(t, err)

	res, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{DeletedNonces: 1, DeletedMediaSessions: 1}, res)

	res, err = svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

type failingStore struct{}

func (failingStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, errors.New("boom")
}

type countingStore struct{ calls int }

func (c *countingStore) DeleteExpired(context.Context, time.Time) (int, error) {
	c.calls++
	return 2, nil
}

func TestRunOnceJoinsErrors(t *testing.T) {
	media := &countingStore{}
	svc, err := New(media, WithNonces(failingStore{}))
	require.NoError(t, err)

	res, err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete expired nonces")
	assert.Equal(t, 1, media.calls, "media sweep still runs")
	assert.Equal(t, 2, res.DeletedMediaSessions)
}

func TestNewRequiresMediaStore(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestStartStopsOnCancel(t *testing.T) {
	media := &countingStore{}
	svc, err := New(media, WithInterval(5*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Start(ctx), context.DeadlineExceeded)
	assert.Positive(t, media.calls)
}

func TestRunOnceSweepsIdleRateLimitWindows(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	clock := func() time.Time { return now }

	limits := ratestore.NewInMemory(ratestore.WithClock(clock))
	_, err := limits.AllowN(context.Background(), "proof:ip:10.0.0.1", 1, ratemodels.Limit{Requests: 5, Window: time.Minute})
	require.NoError(t, err)

	svc, err := New(mediastore.NewInMemoryStore(), WithRateLimits(limits, 10*time.Minute), WithClock(clock))
	require.NoError(t, err)

	res, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.DeletedRateLimitKeys, "window still inside the longest configured window")

	now = base.Add(11 * time.Minute)
	res, err = svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedRateLimitKeys)
}
