// Package records is the typed facade over the verification record store.
// It stamps each write with the request clock and translates store sentinels
// into domain errors.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"deepname/internal/platform/metrics"
	"deepname/internal/verification/models"
	"deepname/internal/verification/store"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/platform/sentinel"
	"deepname/pkg/requestcontext"
)

// WriteResult tells the caller whether its record is now the stored one.
type WriteResult string

const (
	WriteStored     WriteResult = "stored"
	WriteSuperseded WriteResult = "superseded"
)

type Records struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Records)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Records) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Records) { r.metrics = m }
}

func New(st store.Store, opts ...Option) *Records {
	r := &Records{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// stamp truncates to microseconds so every backend round-trips it exactly.
func stamp(ctx context.Context) time.Time {
	return requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
}

// PutHumanity replaces the humanity record. The returned record carries the
// timestamp it was stored under.
func (r *Records) PutHumanity(ctx context.Context, rec models.HumanityProofRecord) (models.HumanityProofRecord, WriteResult, error) {
	rec.Timestamp = stamp(ctx)
	result, err := r.put(ctx, models.KindHumanity, rec, rec.Timestamp)
	return rec, result, err
}

// PutIdentity replaces the identity record.
func (r *Records) PutIdentity(ctx context.Context, rec models.IdentityAttributeRecord) (models.IdentityAttributeRecord, WriteResult, error) {
	rec.Timestamp = stamp(ctx)
	result, err := r.put(ctx, models.KindIdentity, rec, rec.Timestamp)
	return rec, result, err
}

// Humanity returns the latest humanity record or a not-found domain error.
func (r *Records) Humanity(ctx context.Context) (models.HumanityProofRecord, error) {
	var rec models.HumanityProofRecord
	if err := r.get(ctx, models.KindHumanity, &rec); err != nil {
		return models.HumanityProofRecord{}, err
	}
	return rec, nil
}

// Identity returns the latest identity record or a not-found domain error.
func (r *Records) Identity(ctx context.Context) (models.IdentityAttributeRecord, error) {
	var rec models.IdentityAttributeRecord
	if err := r.get(ctx, models.KindIdentity, &rec); err != nil {
		return models.IdentityAttributeRecord{}, err
	}
	return rec, nil
}

// Clear removes the record of kind.
func (r *Records) Clear(ctx context.Context, kind models.Kind) error {
	if !kind.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown record kind %q", kind))
	}
	if err := r.store.Clear(ctx, kind); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear verification record")
	}
	r.logger.InfoContext(ctx, "verification record cleared", "kind", kind)
	return nil
}

func (r *Records) put(ctx context.Context, kind models.Kind, rec any, at time.Time) (WriteResult, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode verification record")
	}

	err = r.store.Put(ctx, models.Entry{Kind: kind, Payload: payload, StoredAt: at})
	switch {
	case err == nil:
		r.recordWrite(kind, WriteStored)
		return WriteStored, nil
	case errors.Is(err, sentinel.ErrSuperseded):
		r.logger.InfoContext(ctx, "verification record superseded by newer write",
			"kind", kind,
			"stored_at", at,
			"request_id", requestcontext.RequestID(ctx),
		)
		r.recordWrite(kind, WriteSuperseded)
		return WriteSuperseded, nil
	default:
		r.recordWrite(kind, "error")
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store verification record")
	}
}

func (r *Records) get(ctx context.Context, kind models.Kind, out any) error {
	entry, err := r.store.Get(ctx, kind)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no %s verification record", kind))
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification record")
	}
	if err := json.Unmarshal(entry.Payload, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode verification record")
	}
	return nil
}

func (r *Records) recordWrite(kind models.Kind, result WriteResult) {
	if r.metrics != nil {
		r.metrics.IncrementRecordWrite(kind.String(), string(result))
	}
}
