package deploy

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrVerificationSkipped is returned for networks with no public explorer.
var ErrVerificationSkipped = errors.New("verification skipped for local network")

// LocalNetwork reports whether network has no explorer to verify against.
func LocalNetwork(network string) bool {
	switch strings.ToLower(network) {
	case "localhost", "hardhat", "simulated", "anvil":
		return true
	}
	return false
}

// HTTPDoer is the subset of *http.Client the verifier needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Verifier submits source to an Etherscan-compatible API and polls the result.
type Verifier struct {
	apiURL       string
	apiKey       string
	chainID      int64
	client       HTTPDoer
	pollInterval time.Duration
	maxPolls     int
	logger       *slog.Logger
}

type VerifierOption func(*Verifier)

func WithVerifierHTTPClient(c HTTPDoer) VerifierOption {
	return func(v *Verifier) { v.client = c }
}

func WithVerifierPolling(interval time.Duration, max int) VerifierOption {
	return func(v *Verifier) {
		v.pollInterval = interval
		if max > 0 {
			v.maxPolls = max
		}
	}
}

func WithVerifierLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func NewVerifier(apiURL, apiKey string, chainID int64, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		apiURL:       strings.TrimSpace(apiURL),
		apiKey:       strings.TrimSpace(apiKey),
		chainID:      chainID,
		client:       &http.Client{Timeout: 30 * time.Second},
		pollInterval: 5 * time.Second,
		maxPolls:     24,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type explorerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// Verify submits the standard JSON input of art for the contract at address.
func (v *Verifier) Verify(ctx context.Context, network string, art *Artifact, address common.Address, args []any) error {
	if LocalNetwork(network) {
		return ErrVerificationSkipped
	}
	if v.apiURL == "" || v.apiKey == "" {
		return fmt.Errorf("explorer api url and key are required for verification")
	}
	if art.BuildInfo == nil {
		return fmt.Errorf("no build info for %s; compile with hardhat first", art.ContractName)
	}

	encoded, err := art.ABI.Pack("", args...)
	if err != nil {
		return fmt.Errorf("encode constructor arguments: %w", err)
	}

	form := url.Values{}
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("apikey", v.apiKey)
	form.Set("contractaddress", address.Hex())
	form.Set("sourceCode", string(art.BuildInfo.Input))
	form.Set("codeformat", "solidity-standard-json-input")
	form.Set("contractname", art.FullyQualifiedName())
	form.Set("compilerversion", art.BuildInfo.CompilerVersion)
	// Explorer API spelling.
	form.Set("constructorArguements", hex.EncodeToString(encoded))

	resp, err := v.call(ctx, http.MethodPost, form)
	if err != nil {
		return err
	}
	if resp.Status != "1" {
		if alreadyVerified(resp.Result) {
			v.logger.Info("contract already verified", "address", address.Hex())
			return nil
		}
		return fmt.Errorf("verification rejected: %s", resp.Result)
	}

	guid := resp.Result
	v.logger.Info("verification submitted", "address", address.Hex(), "guid", guid)
	return v.poll(ctx, guid)
}

func (v *Verifier) poll(ctx context.Context, guid string) error {
	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "checkverifystatus")
	q.Set("guid", guid)
	q.Set("apikey", v.apiKey)

	for i := 0; i < v.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(v.pollInterval):
		}
		resp, err := v.call(ctx, http.MethodGet, q)
		if err != nil {
			return err
		}
		switch {
		case strings.HasPrefix(resp.Result, "Pending"):
			continue
		case resp.Status == "1", alreadyVerified(resp.Result):
			return nil
		default:
			return fmt.Errorf("verification failed: %s", resp.Result)
		}
	}
	return fmt.Errorf("verification still pending after %d checks", v.maxPolls)
}

func (v *Verifier) call(ctx context.Context, method string, params url.Values) (*explorerResponse, error) {
	target, err := url.Parse(v.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid explorer api url: %w", err)
	}
	q := target.Query()
	if v.chainID > 0 {
		q.Set("chainid", strconv.FormatInt(v.chainID, 10))
	}

	var body io.Reader
	if method == http.MethodGet {
		for k, vals := range params {
			q[k] = vals
		}
	} else {
		body = strings.NewReader(params.Encode())
	}
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build explorer request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	res, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("explorer returned status %d", res.StatusCode)
	}
	var out explorerResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode explorer response: %w", err)
	}
	return &out, nil
}

func alreadyVerified(result string) bool {
	return strings.Contains(strings.ToLower(result), "already verified")
}
