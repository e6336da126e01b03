package worldid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepname/internal/verification/verifier"
)

var testProof = Proof{
	MerkleRoot:        "0x1f38b57f3bdf96f05ea62fa68814871bf0ca8ce4dbe073d8497d5a6b0a53e5e0",
	NullifierHash:     "0x2bf8406809dcefb1a3e7d8d8c5ce0f7ec2e8df2c9dcd6ee3a6b64e0f7a2d3c10",
	Proof:             "0x" + "ab",
	VerificationLevel: "orb",
}

func TestSignalHash(t *testing.T) {
	// keccak256("") >> 8
	assert.Equal(t, "0x00c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a4", SignalHash(""))
	assert.Equal(t, SignalHash(""), SignalHash("0x"), "0x is the empty byte string")

	addr := SignalHash("0x00000000000000000000000000000000000000ff")
	assert.Len(t, addr, 66)
	assert.Equal(t, "0x00", addr[:4], "shifted hash always has a zero top byte")
	assert.NotEqual(t, addr, SignalHash("not hex"))
	assert.Equal(t, SignalHash("0x0ff"), SignalHash("0x00ff"), "odd-length hex is left padded")
}

func TestVerifySuccess(t *testing.T) {
	var got verifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/verify/app_staging_123", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true,"action":"proof-of-humanity","nullifier_hash":"0x2b","created_at":"2025-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c := New("app_staging_123", time.Second, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	res, err := c.Verify(context.Background(), testProof, "proof-of-humanity", "0xabc")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "proof-of-humanity", res.Action)
	assert.Equal(t, testProof.NullifierHash, got.NullifierHash)
	assert.Equal(t, testProof.MerkleRoot, got.MerkleRoot)
	assert.Equal(t, "orb", got.VerificationLevel)
	assert.Equal(t, "proof-of-humanity", got.Action)
	assert.Equal(t, SignalHash("0xabc"), got.SignalHash)
}

func TestVerifyEmptySuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := New("app", time.Second, WithBaseURL(srv.URL)).Verify(context.Background(), testProof, "a", "")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestVerifyFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCat    verifier.Category
		wantDetail string
	}{
		{"rejected proof", http.StatusBadRequest, `{"code":"invalid_proof","detail":"The provided proof is invalid.","attribute":null}`, verifier.CategoryProofInvalid, "invalid_proof"},
		{"max verifications", http.StatusBadRequest, `{"code":"max_verifications_reached","detail":"This person has already verified for this action."}`, verifier.CategoryProofInvalid, "max_verifications_reached"},
		{"bad request without code", http.StatusBadRequest, `oops`, verifier.CategoryBadData, ""},
		{"app not allowed", http.StatusForbidden, `{"code":"forbidden"}`, verifier.CategoryAuthentication, ""},
		{"rate limited", http.StatusTooManyRequests, ``, verifier.CategoryRateLimited, ""},
		{"server error", http.StatusInternalServerError, `{"code":"internal"}`, verifier.CategoryUnavailable, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New("app", time.Second, WithBaseURL(srv.URL)).Verify(context.Background(), testProof, "a", "")
			require.Error(t, err)
			var ve *verifier.Error
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantCat, ve.Category)
			assert.Equal(t, tt.wantDetail, ve.Detail)
		})
	}
}

func TestVerifyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New("app", time.Second, WithBaseURL(url)).Verify(context.Background(), testProof, "a", "")
	assert.Equal(t, verifier.CategoryUnavailable, verifier.CategoryOf(err))
}

func TestVerifyTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New("app", time.Minute, WithBaseURL(srv.URL)).Verify(ctx, testProof, "a", "")
	assert.Equal(t, verifier.CategoryTimeout, verifier.CategoryOf(err))
}
