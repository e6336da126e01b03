package outbox

import (
	"context"
	"log/slog"
	"time"

	"deepname/internal/platform/kafka/producer"
)

// Worker drains the outbox to Kafka. Entries are published oldest first; an
// entry that fails stays pending and blocks nothing but itself.
type Worker struct {
	store        Store
	producer     producer.Publisher
	topic        string
	batchSize    int
	pollInterval time.Duration
	retention    time.Duration
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time
}

type Option func(*Worker)

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithRetention sets how long published entries are kept before deletion.
func WithRetention(d time.Duration) Option {
	return func(w *Worker) {
		w.retention = d
	}
}

func WithMetrics(m *Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

func NewWorker(store Store, prod producer.Publisher, topic string, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		producer:     prod,
		topic:        topic,
		batchSize:    100,
		pollInterval: 250 * time.Millisecond,
		retention:    24 * time.Hour,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start polls until ctx is cancelled, then drains what is left with a short
// deadline of its own.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	lastPrune := w.now()
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case <-ticker.C:
			w.Poll(ctx)
			if w.retention > 0 && w.now().Sub(lastPrune) >= time.Hour {
				lastPrune = w.now()
				w.prune(ctx)
			}
		}
	}
}

// Poll publishes one batch and returns how many entries were published.
func (w *Worker) Poll(ctx context.Context) int {
	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to fetch outbox entries", "error", err)
		w.metrics.failed()
		return 0
	}
	if len(entries) == 0 {
		return 0
	}
	w.metrics.batch(len(entries))

	published := 0
	for _, entry := range entries {
		start := time.Now()
		if err := w.producer.Produce(ctx, w.message(entry)); err != nil {
			w.logger.ErrorContext(ctx, "failed to publish outbox entry",
				"id", entry.ID,
				"event_type", entry.EventType,
				"error", err,
			)
			w.metrics.failed()
			continue
		}
		if err := w.store.MarkProcessed(ctx, entry.ID, w.now()); err != nil {
			// Published but still pending: it goes out again next poll.
			w.logger.ErrorContext(ctx, "failed to mark outbox entry processed",
				"id", entry.ID,
				"error", err,
			)
			continue
		}
		w.metrics.published(time.Since(start).Seconds())
		published++
	}

	if pending, err := w.store.CountPending(ctx); err == nil {
		w.metrics.setPending(pending)
	}
	return published
}

func (w *Worker) message(entry *Entry) *producer.Message {
	return &producer.Message{
		Topic: w.topic,
		Key:   []byte(entry.Key),
		Value: entry.Payload,
		Headers: map[string]string{
			"event_type": entry.EventType,
			"event_id":   entry.ID.String(),
		},
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	w.logger.Info("draining outbox")
	for ctx.Err() == nil {
		if w.Poll(ctx) == 0 {
			return
		}
	}
}

func (w *Worker) prune(ctx context.Context) {
	n, err := w.store.DeleteProcessedBefore(ctx, w.now().Add(-w.retention))
	if err != nil {
		w.logger.WarnContext(ctx, "failed to prune outbox", "error", err)
		return
	}
	if n > 0 {
		w.logger.DebugContext(ctx, "pruned outbox", "deleted", n)
	}
}
