// Package stego is the client for the external video embedding service. The
// service hides a payload string in an uploaded video and answers with the
// encoded result in one or more containers.
package stego

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"deepname/internal/media/models"
	"deepname/internal/verification/verifier"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/platform/circuit"
)

// Encoded artifacts come back base64 in JSON, so the body is a bit larger
// than the videos themselves.
const maxResponseBytes = 512 << 20

type encodeResponse struct {
	MOV         string `json:"mov"`
	MP4         string `json:"mp4"`
	MOVFileName string `json:"mov_filename"`
	MP4FileName string `json:"mp4_filename"`
	Error       string `json:"error"`
}

// BreakerObserver is told when the breaker opens or closes.
type BreakerObserver func(open bool)

type Client struct {
	baseURL  string
	client   verifier.HTTPDoer
	breaker  *circuit.Breaker
	observer BreakerObserver
}

type Option func(*Client)

func WithHTTPClient(doer verifier.HTTPDoer) Option {
	return func(c *Client) { c.client = doer }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

func WithBreakerObserver(fn BreakerObserver) Option {
	return func(c *Client) { c.observer = fn }
}

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: circuit.New("stego"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an embedding service URL was given.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Embed uploads video with payload as multipart fields video and text to
// /encrypt. It returns the artifacts the service produced, mp4 first.
func (c *Client) Embed(ctx context.Context, video io.Reader, fileName, payload string) ([]models.Artifact, error) {
	if !c.Configured() {
		return nil, dErrors.NewWithDetail(dErrors.CodeConfiguration, "embedding service is not configured", "STEGO_URL")
	}
	if !c.breaker.Allow() {
		return nil, dErrors.NewWithDetail(dErrors.CodeUnavailable, "embedding service is unavailable, try again shortly", "circuit_open")
	}

	artifacts, err := c.embed(ctx, video, fileName, payload)
	if err != nil && countsAgainstBreaker(err) {
		if change := c.breaker.RecordFailure(); change.Opened && c.observer != nil {
			c.observer(true)
		}
		return nil, err
	}
	if change := c.breaker.RecordSuccess(); change.Closed && c.observer != nil {
		c.observer(false)
	}
	return artifacts, err
}

func (c *Client) embed(ctx context.Context, video io.Reader, fileName, payload string) ([]models.Artifact, error) {
	if fileName == "" {
		fileName = "recording.webm"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("video", fileName)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build upload")
	}
	if _, err := io.Copy(part, video); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read video")
	}
	if err := mw.WriteField("text", payload); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build upload")
	}
	if err := mw.Close(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build upload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/encrypt", &body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &dErrors.Error{Code: dErrors.CodeTimeout, Message: "embedding service timed out", Err: err}
		}
		return nil, &dErrors.Error{Code: dErrors.CodeUnavailable, Message: "embedding service request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &dErrors.Error{Code: dErrors.CodeUnavailable, Message: "failed to read embedding response", Err: err}
	}

	var decoded encodeResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := "Failed to process video"
		if decodeErr == nil && decoded.Error != "" {
			msg = decoded.Error
		}
		code := dErrors.CodeUnavailable
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			code = dErrors.CodeValidation
		}
		return nil, dErrors.NewWithDetail(code, msg, fmt.Sprintf("status_%d", resp.StatusCode))
	}
	if decodeErr != nil {
		return nil, &dErrors.Error{Code: dErrors.CodeUnavailable, Message: "embedding response is not valid JSON", Err: decodeErr}
	}

	var artifacts []models.Artifact
	for _, enc := range []struct {
		format models.Format
		data   string
		name   string
	}{
		{models.FormatMP4, decoded.MP4, decoded.MP4FileName},
		{models.FormatMOV, decoded.MOV, decoded.MOVFileName},
	} {
		if enc.data == "" {
			continue
		}
		data, err := decodeBase64(enc.data)
		if err != nil {
			return nil, &dErrors.Error{Code: dErrors.CodeUnavailable, Message: "embedding response carries invalid " + string(enc.format), Err: err}
		}
		name := enc.name
		if name == "" {
			name = enc.format.DefaultFileName()
		}
		artifacts = append(artifacts, models.Artifact{Format: enc.format, FileName: name, Data: data})
	}
	if len(artifacts) == 0 {
		return nil, dErrors.NewWithDetail(dErrors.CodeUnavailable, "embedding service returned no video", "no_artifacts")
	}
	return artifacts, nil
}

// decodeBase64 accepts padded or unpadded input, with or without a data: URL prefix.
func decodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	s = strings.TrimSpace(s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// countsAgainstBreaker is true for failures that say the service is unhealthy.
// A rejected upload is the caller's problem, not the service's.
func countsAgainstBreaker(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnavailable, dErrors.CodeTimeout:
		return true
	}
	return false
}
