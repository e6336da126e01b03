package selfid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepname/internal/verification/verifier"
)

func signalsWithUser(user string) []string {
	signals := make([]string, UserIdentifierIndex+1)
	for i := range signals {
		signals[i] = "0"
	}
	signals[UserIdentifierIndex] = user
	return signals
}

func TestUserIdentifier(t *testing.T) {
	id, err := UserIdentifier(signalsWithUser("255"), UserIDHex)
	require.NoError(t, err)
	assert.Equal(t, "0x"+strings.Repeat("0", 38)+"ff", id)

	id, err = UserIdentifier(signalsWithUser("0xff"), UserIDUUID)
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-0000000000ff", id)

	_, err = UserIdentifier([]string{"1", "2"}, UserIDHex)
	assert.Error(t, err, "too few signals")

	_, err = UserIdentifier(signalsWithUser("not-a-number"), UserIDHex)
	assert.Error(t, err)

	_, err = UserIdentifier(signalsWithUser("0x1"+strings.Repeat("0", 32)), UserIDUUID)
	assert.Error(t, err, "more than 128 bits")

	_, err = UserIdentifier(signalsWithUser("1"), UserIDType("base58"))
	assert.Error(t, err)
}

func subject(t *testing.T, raw string) CredentialSubject {
	t.Helper()
	var cs CredentialSubject
	require.NoError(t, json.Unmarshal([]byte(raw), &cs))
	return cs
}

func TestCredentialSubjectLabel(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"single name", `{"name":"Jane Doe"}`, "Jane Doe"},
		{"array name", `{"name":["JANE","DOE"]}`, "JANE DOE"},
		{"split fields in order", `{"family_name":"Doe","given_name":"Jane","middle_name":"Q"}`, "Jane Q Doe"},
		{"collapses whitespace", `{"first_name":"  Jane  ","last_name":"Doe "}`, "Jane Doe"},
		{"ignores other attributes", `{"nationality":"FRA","name":"Jane Doe"}`, "Jane Doe"},
		{"no names", `{"nationality":"FRA"}`, ""},
		{"non string name", `{"name":42}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, subject(t, tt.raw).Label())
		})
	}
}

func TestCredentialSubjectMerkleRoot(t *testing.T) {
	root, ok := subject(t, `{"merkle_root":"789"}`).MerkleRoot()
	assert.True(t, ok)
	assert.Equal(t, "789", root)

	root, ok = subject(t, `{"merkle_root":12345678901234567890}`).MerkleRoot()
	assert.True(t, ok)
	assert.Equal(t, "12345678901234567890", root)

	_, ok = subject(t, `{"merkle_root":""}`).MerkleRoot()
	assert.False(t, ok)
	_, ok = subject(t, `{}`).MerkleRoot()
	assert.False(t, ok)
}

func TestClientVerify(t *testing.T) {
	var got verifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"isValid":true,"isValidDetails":{"isValidScope":true,"isValidProof":true},"userId":"0xabc","credentialSubject":{"name":"Jane Doe","merkle_root":"789"}}`))
	}))
	defer srv.Close()

	settings := Settings{Scope: "Deep Name Minting", Endpoint: "https://deepname.example/api/self", UserIDType: UserIDHex, DevMode: true}
	c := New(srv.URL+"/", settings, time.Second, WithHTTPClient(srv.Client()))

	res, err := c.Verify(context.Background(), json.RawMessage(`{"a":["1","2"]}`), []string{"1", "2"})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "Jane Doe", res.CredentialSubject.Label())
	assert.Empty(t, res.FailedChecks())

	assert.Equal(t, "Deep Name Minting", got.Scope)
	assert.Equal(t, "https://deepname.example/api/self", got.Endpoint)
	assert.Equal(t, UserIDHex, got.UserIDType)
	assert.True(t, got.DevMode)
	assert.JSONEq(t, `{"a":["1","2"]}`, string(got.Proof))
}

func TestClientVerifyInvalid(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusBadRequest} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"isValid":false,"isValidDetails":{"isValidScope":true,"isValidProof":false,"isValidNationality":false}}`))
		}))

		res, err := New(srv.URL, Settings{}, time.Second).Verify(context.Background(), json.RawMessage(`{}`), nil)
		srv.Close()

		require.NoError(t, err, "status %d", status)
		assert.False(t, res.Valid)
		assert.Equal(t, []string{"isValidNationality", "isValidProof"}, res.FailedChecks())
	}
}

func TestClientVerifyFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   verifier.Category
	}{
		{"server error", http.StatusInternalServerError, `{}`, verifier.CategoryUnavailable},
		{"garbled", http.StatusOK, `<html>`, verifier.CategoryBadData},
		{"bad request without details", http.StatusBadRequest, `{"error":"missing proof"}`, verifier.CategoryBadData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, Settings{}, time.Second).Verify(context.Background(), json.RawMessage(`{}`), nil)
			assert.Equal(t, tt.want, verifier.CategoryOf(err))
		})
	}
}
