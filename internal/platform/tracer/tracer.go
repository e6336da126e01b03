// Package tracer provides a small tracing abstraction over OpenTelemetry.
//
// Services depend on the Tracer interface so tests can run with NoopTracer
// while the server wires OTelTracer against the global provider.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks the span failed.
	// End must be called exactly once, typically via defer.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span; the returned context carries it to children.
	//
	//   ctx, span := t.Start(ctx, tracer.SpanMintSubmit,
	//       tracer.String(tracer.AttrOwner, tracer.HashIdentifier(owner)),
	//   )
	//   defer span.End(err)
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashIdentifier returns a short SHA-256 prefix of an identifier (wallet
// address, nullifier hash) so traces can be correlated without carrying it.
func HashIdentifier(v string) string {
	if v == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(strings.ToLower(v)))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanHumanityVerify = "humanity.verify"
	SpanIdentityVerify = "identity.verify"
	SpanWorldIDCall    = "worldid.verify.call"
	SpanSelfCall       = "self.verify.call"
	SpanMintLoad       = "mint.load_records"
	SpanMintSubmit     = "mint.submit"
	SpanMintConfirm    = "mint.confirm"
	SpanEmbedCall      = "media.embed.call"
)

// Attribute keys.
const (
	AttrKind        = "verification.kind"
	AttrState       = "flow.state"
	AttrSource      = "records.source"
	AttrOwner       = "mint.owner_hash"
	AttrNullifier   = "mint.nullifier_hash"
	AttrTxHash      = "chain.tx_hash"
	AttrFailure     = "failure.class"
	AttrArtifactLen = "media.bytes"
	AttrErrorCode   = "error.code"
)
