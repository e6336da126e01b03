// Package worldid is the client for the World ID cloud verification API.
package worldid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deepname/internal/verification/verifier"
)

const (
	verifierID     = "worldid"
	defaultBaseURL = "https://developer.worldcoin.org"
	maxBodyBytes   = 1 << 20
)

// Proof is the result the World ID app hands the client after the user
// approves the action.
type Proof struct {
	MerkleRoot        string `json:"merkle_root"`
	NullifierHash     string `json:"nullifier_hash"`
	Proof             string `json:"proof"`
	VerificationLevel string `json:"verification_level"`
}

// Result is the collaborator's acceptance.
type Result struct {
	Success           bool   `json:"success"`
	Action            string `json:"action,omitempty"`
	NullifierHash     string `json:"nullifier_hash,omitempty"`
	VerificationLevel string `json:"verification_level,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
}

type verifyRequest struct {
	NullifierHash     string `json:"nullifier_hash"`
	MerkleRoot        string `json:"merkle_root"`
	Proof             string `json:"proof"`
	VerificationLevel string `json:"verification_level"`
	Action            string `json:"action"`
	SignalHash        string `json:"signal_hash"`
}

type rejection struct {
	Code      string `json:"code"`
	Detail    string `json:"detail"`
	Attribute string `json:"attribute"`
}

type Client struct {
	baseURL string
	appID   string
	client  verifier.HTTPDoer
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Tests pass an httptest server client.
func WithHTTPClient(doer verifier.HTTPDoer) Option {
	return func(c *Client) { c.client = doer }
}

// WithBaseURL points the client at another deployment of the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// New creates a client for appID. timeout bounds each call when the caller's
// context has no earlier deadline.
func New(appID string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: defaultBaseURL,
		appID:   appID,
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify submits proof bound to action and signal. A 2xx answer is success;
// a 400 or 422 answer with a code is a rejected proof; anything else is classified
// by verifier.StatusError or verifier.TransportError.
func (c *Client) Verify(ctx context.Context, proof Proof, action, signal string) (*Result, error) {
	body, err := json.Marshal(verifyRequest{
		NullifierHash:     proof.NullifierHash,
		MerkleRoot:        proof.MerkleRoot,
		Proof:             proof.Proof,
		VerificationLevel: proof.VerificationLevel,
		Action:            action,
		SignalHash:        SignalHash(signal),
	})
	if err != nil {
		return nil, verifier.NewError(verifier.CategoryInternal, verifierID, "failed to marshal request", err)
	}

	url := fmt.Sprintf("%s/api/v2/verify/%s", c.baseURL, c.appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
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

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result := &Result{Success: true}
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, result); err != nil {
				return nil, verifier.NewError(verifier.CategoryBadData, verifierID, "failed to decode response", err)
			}
		}
		result.Success = true
		return result, nil
	}

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		var rej rejection
		if json.Unmarshal(raw, &rej) == nil && rej.Code != "" {
			msg := rej.Detail
			if msg == "" {
				msg = "proof rejected"
			}
			return nil, verifier.NewError(verifier.CategoryProofInvalid, verifierID, msg, nil).WithDetail(rej.Code)
		}
	}
	return nil, verifier.StatusError(verifierID, resp.StatusCode)
}
