package models

import "time"

// Class groups endpoints that share a request budget.
type Class string

const (
	// ClassProof covers endpoints that forward proofs to a verification provider.
	ClassProof Class = "proof"
	// ClassSession covers nonce issuance and sign-in.
	ClassSession Class = "session"
	// ClassMint covers mint triggers.
	ClassMint Class = "mint"
	// ClassMedia covers video uploads.
	ClassMedia Class = "media"
)

// Limit allows Requests per sliding Window. A zero Requests disables the limit.
type Limit struct {
	Requests int
	Window   time.Duration
}

func (l Limit) Enabled() bool {
	return l.Requests > 0 && l.Window > 0
}

// Result is the outcome of one budget check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns whole seconds until the window frees a slot, rounded up.
func (r Result) RetryAfter(now time.Time) int {
	if r.Allowed {
		return 0
	}
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// ExceededResponse is the 429 body.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}
