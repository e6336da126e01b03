package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"deepname/internal/events"
	"deepname/internal/platform/kafka/producer"
	"deepname/pkg/requestcontext"
)

type fakeProducer struct {
	producer.NoopProducer
	mu     sync.Mutex
	msgs   []*producer.Message
	failOn string
}

func (f *fakeProducer) Produce(_ context.Context, msg *producer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && msg.Headers["event_type"] == f.failOn {
		return errors.New("broker unavailable")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeProducer) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.Headers["event_type"])
	}
	return out
}

type WorkerSuite struct {
	suite.Suite
	store    *InMemoryStore
	producer *fakeProducer
	recorder *Recorder
	worker   *Worker
	now      time.Time
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	s.store = NewInMemoryStore()
	s.producer = &fakeProducer{}
	s.recorder = NewRecorder(s.store, logger)
	s.worker = NewWorker(s.store, s.producer, "deepname.events",
		WithLogger(logger),
		WithPollInterval(5*time.Millisecond),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *WorkerSuite) emit(t events.Type, offset time.Duration) {
	ctx := requestcontext.WithTime(context.Background(), s.now.Add(offset))
	s.recorder.Emit(ctx, events.Event{Type: t, Key: "0xowner", Data: map[string]string{"tx_hash": "0x01"}})
}

func (s *WorkerSuite) TestRecorderAppendsEncodedEvent() {
	ctx := requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), s.now), "req-7")
	s.recorder.Emit(ctx, events.Event{Type: events.MintSubmitted, Key: "0xowner"})

	entries, err := s.store.FetchUnprocessed(context.Background(), 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("mint_submitted", entries[0].EventType)
	s.Equal("0xowner", entries[0].Key)
	s.True(s.now.Equal(entries[0].CreatedAt))

	var evt events.Event
	s.Require().NoError(json.Unmarshal(entries[0].Payload, &evt))
	s.Equal(entries[0].ID.String(), evt.ID)
	s.Equal("req-7", evt.RequestID)
}

func (s *WorkerSuite) TestRecorderSurvivesCallerCancellation() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.recorder.Emit(ctx, events.Event{Type: events.MintFailed})

	n, err := s.store.CountPending(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *WorkerSuite) TestPollPublishesInOrder() {
	s.emit(events.MintConfirmed, time.Second)
	s.emit(events.MintSubmitted, 0)

	s.Equal(2, s.worker.Poll(context.Background()))
	s.Equal([]string{"mint_submitted", "mint_confirmed"}, s.producer.types())

	msg := s.producer.msgs[0]
	s.Equal("deepname.events", msg.Topic)
	s.Equal("0xowner", string(msg.Key))
	s.NotEmpty(msg.Headers["event_id"])

	s.Zero(s.worker.Poll(context.Background()), "published entries are not sent again")
}

func (s *WorkerSuite) TestFailedEntryStaysPending() {
	s.producer.failOn = "mint_failed"
	s.emit(events.MintSubmitted, 0)
	s.emit(events.MintFailed, time.Second)

	s.Equal(1, s.worker.Poll(context.Background()))
	pending, err := s.store.CountPending(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(1), pending)

	s.producer.failOn = ""
	s.Equal(1, s.worker.Poll(context.Background()))
	s.Equal([]string{"mint_submitted", "mint_failed"}, s.producer.types())
}

func (s *WorkerSuite) TestStartDrainsOnShutdown() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.worker.Start(ctx) }()

	s.emit(events.HumanityVerified, 0)
	cancel()

	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(5 * time.Second):
		s.FailNow("worker did not stop")
	}
	s.Equal([]string{"humanity_verified"}, s.producer.types())
}

func TestPruneKeepsRecentEntries(t *testing.T) {
	now := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	st := NewInMemoryStore()
	old := entryAt("mint_submitted", now.Add(-48*time.Hour))
	fresh := entryAt("mint_confirmed", now.Add(-time.Hour))
	for _, e := range []*Entry{old, fresh} {
		require.NoError(t, st.Append(context.Background(), e))
	}
	require.NoError(t, st.MarkProcessed(context.Background(), old.ID, now.Add(-47*time.Hour)))
	require.NoError(t, st.MarkProcessed(context.Background(), fresh.ID, now.Add(-time.Hour)))

	w := NewWorker(st, &fakeProducer{}, "t",
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return now }),
	)
	w.prune(context.Background())

	n, err := st.DeleteProcessedBefore(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the fresh entry was left to delete")
}
