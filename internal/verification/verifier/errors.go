// Package verifier holds what the World ID and Self clients share: a
// normalized failure taxonomy and the HTTP seam used in tests.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Category classifies a verifier failure so the flows can map it onto the
// domain taxonomy without inspecting collaborator-specific payloads.
type Category string

const (
	// CategoryProofInvalid: the collaborator answered and rejected the proof.
	CategoryProofInvalid Category = "proof_invalid"
	// CategoryTimeout: no answer within the configured bound.
	CategoryTimeout Category = "timeout"
	// CategoryUnavailable: network failure or 5xx.
	CategoryUnavailable Category = "unavailable"
	// CategoryRateLimited: 429 from the collaborator.
	CategoryRateLimited Category = "rate_limited"
	// CategoryAuthentication: our app credentials were refused.
	CategoryAuthentication Category = "authentication"
	// CategoryBadData: the collaborator response could not be understood.
	CategoryBadData Category = "bad_data"
	CategoryInternal Category = "internal"
)

// Error wraps verifier failures with a normalized category. Detail carries the
// collaborator's machine-readable reason when it gave one.
type Error struct {
	Category   Category
	Verifier   string
	Message    string
	Detail     string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("verifier %s [%s]: %s: %v", e.Verifier, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("verifier %s [%s]: %s", e.Verifier, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func NewError(category Category, verifierID, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		Verifier:   verifierID,
		Message:    message,
		Underlying: underlying,
	}
}

// WithDetail attaches the collaborator's reason and returns e.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// CategoryOf returns the category of the first *Error in err's chain, or
// CategoryInternal when there is none.
func CategoryOf(err error) Category {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Category
	}
	return CategoryInternal
}

// TransportError classifies a failed round trip. ctx is the request context,
// checked to tell a deadline apart from a refused connection.
func TransportError(ctx context.Context, verifierID string, err error) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return NewError(CategoryTimeout, verifierID, "request timeout", err)
	}
	return NewError(CategoryUnavailable, verifierID, "request failed", err)
}

// StatusError classifies a non-2xx status that carried no usable rejection body.
func StatusError(verifierID string, status int) *Error {
	msg := fmt.Sprintf("unexpected status %d", status)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(CategoryAuthentication, verifierID, msg, nil)
	case status == http.StatusTooManyRequests:
		return NewError(CategoryRateLimited, verifierID, msg, nil)
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return NewError(CategoryTimeout, verifierID, msg, nil)
	case status >= 500:
		return NewError(CategoryUnavailable, verifierID, msg, nil)
	default:
		return NewError(CategoryBadData, verifierID, msg, nil)
	}
}

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
