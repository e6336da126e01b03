package tracer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	dErrors "deepname/pkg/domain-errors"
)

type recordingSpan struct {
	noop.Span
	attrs  []attribute.KeyValue
	status codes.Code
	ended  bool
}

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) { s.attrs = append(s.attrs, kv...) }
func (s *recordingSpan) SetStatus(code codes.Code, _ string)    { s.status = code }
func (s *recordingSpan) End(...trace.SpanEndOption)             { s.ended = true }

type recordingTracer struct {
	noop.Tracer
	kind trace.SpanKind
	span *recordingSpan
}

func (t *recordingTracer) Start(ctx context.Context, _ string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	t.kind = cfg.SpanKind()
	t.span = &recordingSpan{}
	return ctx, t.span
}

func TestNoopTracer(t *testing.T) {
	ctx := context.Background()
	newCtx, span := NewNoop().Start(ctx, SpanMintSubmit, String(AttrTxHash, "0x01"))

	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)
	span.AddEvent("submitted")
	span.End(errors.New("reverted"))
}

func TestOTelTracer_WithInjectedTracer(t *testing.T) {
	tr := NewOTel("deepname/test", WithOTelTracer(noop.NewTracerProvider().Tracer("test")))

	_, span := tr.Start(context.Background(), SpanHumanityVerify, Bool("signal_bound", true))
	require.NotNil(t, span)
	span.SetAttributes(Duration("latency", 1500*time.Millisecond))
	span.End(nil)
}

func TestOTelSpanKind(t *testing.T) {
	rec := &recordingTracer{}
	tr := NewOTel("deepname/test", WithOTelTracer(rec))

	_, span := tr.Start(context.Background(), SpanWorldIDCall)
	span.End(nil)
	assert.Equal(t, trace.SpanKindClient, rec.kind)

	_, span = tr.Start(context.Background(), SpanMintSubmit)
	span.End(nil)
	assert.Equal(t, trace.SpanKindUnspecified, rec.kind)
}

func TestOTelSpanEndRecordsErrorCode(t *testing.T) {
	rec := &recordingTracer{}
	tr := NewOTel("deepname/test", WithOTelTracer(rec))

	_, span := tr.Start(context.Background(), SpanHumanityVerify)
	span.End(dErrors.New(dErrors.CodeProofInvalid, "proof rejected"))

	require.True(t, rec.span.ended)
	assert.Equal(t, codes.Error, rec.span.status)
	assert.Contains(t, rec.span.attrs, attribute.String(AttrErrorCode, "proof_invalid"))

	_, span = tr.Start(context.Background(), SpanHumanityVerify)
	span.End(nil)
	assert.Equal(t, codes.Unset, rec.span.status)
	assert.Empty(t, rec.span.attrs)
}

func TestToOTelAttributes(t *testing.T) {
	got := toOTelAttributes([]Attribute{
		String(AttrKind, "humanity"),
		Bool("ok", true),
		Int64("words", 8),
		{Key: "count", Value: 3},
		{Key: "ignored", Value: struct{}{}},
	})

	assert.Equal(t, []attribute.KeyValue{
		attribute.String(AttrKind, "humanity"),
		attribute.Bool("ok", true),
		attribute.Int64("words", 8),
		attribute.Int64("count", 3),
	}, got)
	assert.Nil(t, toOTelAttributes(nil))
}

func TestHashIdentifier(t *testing.T) {
	assert.Empty(t, HashIdentifier(""))

	a := HashIdentifier("0xAbC0000000000000000000000000000000000001")
	b := HashIdentifier("0xabc0000000000000000000000000000000000001")
	assert.Len(t, a, 16)
	assert.Equal(t, a, b, "hash is case-insensitive for hex addresses")
	assert.NotEqual(t, a, HashIdentifier("0xabc0000000000000000000000000000000000002"))
}
