// Package nonce stores Sign-In with Ethereum nonces. A nonce is issued with a
// TTL and can be consumed once.
package nonce

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store contract:
//   - Consume returns sentinel.ErrNotFound for an unknown nonce
//   - Consume returns sentinel.ErrExpired once the TTL has passed (backends
//     that expire keys natively report ErrNotFound instead)
//   - Consume returns sentinel.ErrAlreadyUsed on a second consume where the
//     backend can tell
type Store interface {
	Issue(ctx context.Context, nonce string, ttl time.Duration) error
	Consume(ctx context.Context, nonce string) error
}

// New returns a fresh alphanumeric nonce (32 hex characters).
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
