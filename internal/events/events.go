// Package events publishes DeepName domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"deepname/internal/platform/kafka/producer"
	"deepname/pkg/requestcontext"
)

type Type string

const (
	HumanityVerified Type = "humanity_verified"
	IdentityVerified Type = "identity_verified"
	MintSubmitted    Type = "mint_submitted"
	MintConfirmed    Type = "mint_confirmed"
	MintFailed       Type = "mint_failed"
)

// Event is the envelope written to the topic. Key picks the partition so
// events about one wallet (or one nullifier) stay ordered.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Key        string            `json:"-"`
	OccurredAt time.Time         `json:"occurred_at"`
	RequestID  string            `json:"request_id,omitempty"`
	Data       map[string]string `json:"data"`
}

// Emitter is what flows depend on.
type Emitter interface {
	Emit(ctx context.Context, evt Event)
}

// Publisher emits events through a producer without blocking the caller.
type Publisher struct {
	producer producer.Publisher
	topic    string
	logger   *slog.Logger
}

func NewPublisher(p producer.Publisher, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{producer: p, topic: topic, logger: logger}
}

// Encode fills in ID, time and request ID and returns the completed event with
// its JSON form.
func Encode(ctx context.Context, evt Event) (Event, []byte, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = requestcontext.Now(ctx).UTC()
	}
	if evt.RequestID == "" {
		evt.RequestID = requestcontext.RequestID(ctx)
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return evt, nil, fmt.Errorf("encode %s event: %w", evt.Type, err)
	}
	return evt, value, nil
}

// Message builds the producer message for an encoded event.
func Message(topic string, evt Event, value []byte) *producer.Message {
	return &producer.Message{
		Topic: topic,
		Key:   []byte(evt.Key),
		Value: value,
		Headers: map[string]string{
			"event_type": string(evt.Type),
			"event_id":   evt.ID,
		},
	}
}

// Emit hands the event to the producer. Publishing is best effort: failures
// are logged and never reach the flow.
func (p *Publisher) Emit(ctx context.Context, evt Event) {
	evt, value, err := Encode(ctx, evt)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to encode event", "type", evt.Type, "error", err)
		return
	}
	if err := p.producer.ProduceAsync(Message(p.topic, evt, value)); err != nil {
		p.logger.WarnContext(ctx, "failed to publish event",
			"type", evt.Type,
			"event_id", evt.ID,
			"error", err,
		)
	}
}

// Discard drops every event. Used when Kafka is not configured and in tests.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}

var (
	_ Emitter = (*Publisher)(nil)
	_ Emitter = Discard{}
)
