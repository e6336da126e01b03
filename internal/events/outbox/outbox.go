// Package outbox makes domain events durable before they reach Kafka: events
// are appended to a Postgres table and a worker publishes them in order.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"deepname/internal/events"
)

// Entry is one event waiting in (or already drained from) the outbox.
type Entry struct {
	ID          uuid.UUID
	EventType   string
	Key         string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// IsPending reports whether the entry has not been published yet.
func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

// Store is the outbox persistence. Implementations must be safe for
// concurrent use.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	// FetchUnprocessed returns up to limit pending entries, oldest first.
	FetchUnprocessed(ctx context.Context, limit int) ([]*Entry, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	CountPending(ctx context.Context) (int64, error)
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Recorder is an events.Emitter that appends to the outbox instead of
// producing directly.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, timeout: 5 * time.Second}
}

// Emit encodes the event and appends it. The write outlives the caller's
// cancellation; a failed append is logged and the event is lost.
func (r *Recorder) Emit(ctx context.Context, evt events.Event) {
	evt, payload, err := events.Encode(ctx, evt)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to encode event", "type", evt.Type, "error", err)
		return
	}
	id, err := uuid.Parse(evt.ID)
	if err != nil {
		id = uuid.New()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.store.Append(writeCtx, &Entry{
		ID:        id,
		EventType: string(evt.Type),
		Key:       evt.Key,
		Payload:   payload,
		CreatedAt: evt.OccurredAt,
	}); err != nil {
		r.logger.ErrorContext(ctx, "failed to append event to outbox",
			"type", evt.Type,
			"event_id", evt.ID,
			"error", err,
		)
	}
}

var _ events.Emitter = (*Recorder)(nil)
