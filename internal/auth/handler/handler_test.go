package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,SessionReader

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"deepname/internal/auth/handler/mocks"
	"deepname/internal/auth/service"
	"deepname/internal/auth/session"
	"deepname/internal/auth/siwe"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/platform/middleware/auth"
)

const wallet = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"

type HandlerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	service  *mocks.MockService
	sessions *mocks.MockSessionReader
	router   http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.sessions = mocks.NewMockSessionReader(s.ctrl)
	h := New(s.service, s.sessions, slog.New(slog.NewTextHandler(io.Discard, nil)), true)
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *HandlerSuite) complete(body string, nonceCookie string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodPost, "/api/complete-siwe", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if nonceCookie != "" {
		req.AddCookie(&http.Cookie{Name: NonceCookie, Value: nonceCookie})
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func (s *HandlerSuite) TestNonce() {
	s.service.EXPECT().IssueNonce(gomock.Any()).Return("abcdef0123456789", nil)
	s.service.EXPECT().NonceTTL().Return(10 * time.Minute)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nonce", nil))

	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"nonce":"abcdef0123456789"}`, rec.Body.String())
	c := s.cookie(rec, NonceCookie)
	s.Require().NotNil(c)
	s.Equal("abcdef0123456789", c.Value)
	s.Equal(600, c.MaxAge)
	s.True(c.HttpOnly)
	s.True(c.Secure)
}

func (s *HandlerSuite) TestNonce_StoreFailure() {
	s.service.EXPECT().IssueNonce(gomock.Any()).Return("", dErrors.New(dErrors.CodeInternal, "failed to issue nonce"))

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nonce", nil))

	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Nil(s.cookie(rec, NonceCookie))
}

func (s *HandlerSuite) TestCompleteSIWE() {
	body := `{"payload":{"status":"success","message":"m","signature":"0xsig","address":"` + wallet + `","version":1},"nonce":"abcdef0123456789"}`

	s.Run("valid signature issues the session cookie", func() {
		exp := time.Now().Add(time.Hour)
		s.service.EXPECT().CompleteSignIn(gomock.Any(), siwe.Payload{Message: "m", Signature: "0xsig", Address: wallet}, "abcdef0123456789").
			Return(&service.SignIn{
				Token: "session-token",
				Claims: &session.Claims{
					Wallet:           wallet,
					RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
				},
			}, nil)

		rec, resp := s.complete(body, "abcdef0123456789")

		s.Equal(http.StatusOK, rec.Code)
		s.Equal("success", resp["status"])
		s.Equal(true, resp["isValid"])
		s.Equal(wallet, resp["address"])
		sc := s.cookie(rec, auth.SessionCookie)
		s.Require().NotNil(sc)
		s.Equal("session-token", sc.Value)
		s.Equal(-1, s.cookie(rec, NonceCookie).MaxAge)
	})

	s.Run("nonce must match the cookie", func() {
		rec, resp := s.complete(body, "someothernonce")

		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Equal("error", resp["status"])
		s.Equal(false, resp["isValid"])
		s.Equal("Invalid nonce", resp["message"])
		s.Nil(s.cookie(rec, auth.SessionCookie))
	})

	s.Run("missing cookie", func() {
		rec, _ := s.complete(body, "")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("rejected signature issues no session", func() {
		s.service.EXPECT().CompleteSignIn(gomock.Any(), gomock.Any(), "abcdef0123456789").
			Return(nil, dErrors.NewWithDetail(dErrors.CodeUnauthorized, "invalid signature", "invalid_signature"))

		rec, resp := s.complete(body, "abcdef0123456789")

		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Equal(false, resp["isValid"])
		s.Equal("invalid_signature", resp["detail"])
		s.Nil(s.cookie(rec, auth.SessionCookie))
	})

	s.Run("wallet reported an error", func() {
		rec, _ := s.complete(`{"payload":{"status":"error"},"nonce":"abcdef0123456789"}`, "abcdef0123456789")
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("missing signature", func() {
		rec, _ := s.complete(`{"payload":{"status":"success","message":"m"},"nonce":"abcdef0123456789"}`, "abcdef0123456789")
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestSession() {
	s.Run("current session", func() {
		exp := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
		s.sessions.EXPECT().Validate("tok").Return(&session.Claims{
			Wallet:           wallet,
			ChainID:          480,
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
		}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: "tok"})
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`{"address":"`+wallet+`","chainId":480,"expiresAt":"2026-03-02T10:00:00Z"}`, rec.Body.String())
	})

	s.Run("no session", func() {
		s.sessions.EXPECT().Validate("").Return(nil, dErrors.New(dErrors.CodeUnauthorized, "missing session"))

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))

		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}

func (s *HandlerSuite) TestLogout() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/logout", nil))

	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal(-1, s.cookie(rec, auth.SessionCookie).MaxAge)
}
