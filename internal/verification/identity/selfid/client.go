// Package selfid is the client for the Self identity-attribute verifier.
//
// Proof checking (Groth16 verification and the on-chain root lookups) runs in
// the verifier service; this client sends it the proof together with the
// application's scope, callback endpoint, identifier encoding and dev-mode flag.
package selfid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"deepname/internal/verification/verifier"
)

const (
	verifierID   = "self"
	maxBodyBytes = 1 << 20
)

// Settings is the application configuration the verifier checks proofs against.
type Settings struct {
	Scope      string
	Endpoint   string
	UserIDType UserIDType
	DevMode    bool
}

// Result is the verifier's answer. Valid is false when any check failed;
// Details names every check and whether it passed.
type Result struct {
	Valid             bool
	Details           map[string]bool
	UserID            string
	CredentialSubject CredentialSubject
	Raw               json.RawMessage
}

// FailedChecks lists the checks that did not pass, sorted.
func (r *Result) FailedChecks() []string {
	var failed []string
	for name, ok := range r.Details {
		if !ok {
			failed = append(failed, name)
		}
	}
	slices.Sort(failed)
	return failed
}

type verifyRequest struct {
	Scope         string          `json:"scope"`
	Endpoint      string          `json:"endpoint"`
	UserIDType    UserIDType      `json:"user_id_type"`
	DevMode       bool            `json:"dev_mode"`
	Proof         json.RawMessage `json:"proof"`
	PublicSignals []string        `json:"public_signals"`
}

type verifyResponse struct {
	IsValid           bool              `json:"isValid"`
	IsValidDetails    map[string]bool   `json:"isValidDetails"`
	UserID            string            `json:"userId"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
}

type Client struct {
	baseURL  string
	settings Settings
	client   verifier.HTTPDoer
}

type Option func(*Client)

func WithHTTPClient(doer verifier.HTTPDoer) Option {
	return func(c *Client) { c.client = doer }
}

func New(baseURL string, settings Settings, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		settings: settings,
		client:   &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings returns the application configuration sent with every proof.
func (c *Client) Settings() Settings {
	return c.settings
}

// Verify submits proof and publicSignals. An answered verification is
// returned as a Result even when Valid is false; errors are reserved for
// failures to get an answer.
func (c *Client) Verify(ctx context.Context, proof json.RawMessage, publicSignals []string) (*Result, error) {
	body, err := json.Marshal(verifyRequest{
		Scope:         c.settings.Scope,
		Endpoint:      c.settings.Endpoint,
		UserIDType:    c.settings.UserIDType,
		DevMode:       c.settings.DevMode,
		Proof:         proof,
		PublicSignals: publicSignals,
	})
	if err != nil {
		return nil, verifier.NewError(verifier.CategoryInternal, verifierID, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, verifier.NewError(verifier.CategoryInternal, verifierID, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, verifier.TransportError(ctx, verifierID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, verifier.TransportError(ctx, verifierID, err)
	}

	// The verifier answers a failed check with 200 or 400 and a details body.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return nil, verifier.StatusError(verifierID, resp.StatusCode)
	}
	var decoded verifyResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, verifier.NewError(verifier.CategoryBadData, verifierID, "failed to decode response", err)
	}
	if resp.StatusCode == http.StatusBadRequest && decoded.IsValidDetails == nil {
		return nil, verifier.NewError(verifier.CategoryBadData, verifierID, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	return &Result{
		Valid:             decoded.IsValid && resp.StatusCode == http.StatusOK,
		Details:           decoded.IsValidDetails,
		UserID:            decoded.UserID,
		CredentialSubject: decoded.CredentialSubject,
		Raw:               raw,
	}, nil
}
