package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"deepname/pkg/requestcontext"
)

const testWallet = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"

// MockSessionValidator is a testify mock for SessionValidator
type MockSessionValidator struct {
	mock.Mock
}

func (m *MockSessionValidator) ValidateSession(token string) (*SessionClaims, error) {
	args := m.Called(token)
	if claims := args.Get(0); claims != nil {
		return claims.(*SessionClaims), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockHandler captures whether it was called and the context it saw
type mockHandler struct {
	called  bool
	context context.Context
}

func (m *mockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.called = true
	m.context = r.Context()
	w.WriteHeader(http.StatusOK)
}

type AuthMiddlewareTestSuite struct {
	suite.Suite
	validator   *MockSessionValidator
	logger      *slog.Logger
	nextHandler *mockHandler
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareTestSuite))
}

func (s *AuthMiddlewareTestSuite) SetupTest() {
	s.validator = new(MockSessionValidator)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.nextHandler = &mockHandler{}
}

func (s *AuthMiddlewareTestSuite) TearDownTest() {
	s.validator.AssertExpectations(s.T())
}

func (s *AuthMiddlewareTestSuite) serve(mw func(http.Handler) http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	}
	w := httptest.NewRecorder()
	mw(s.nextHandler).ServeHTTP(w, req)
	return w
}

func (s *AuthMiddlewareTestSuite) TestRequireWallet_ValidSession() {
	s.validator.On("ValidateSession", "good").Return(&SessionClaims{Wallet: testWallet, JTI: "jti-1"}, nil)

	w := s.serve(RequireWallet(s.validator, s.logger), "good")

	require.True(s.T(), s.nextHandler.called)
	assert.Equal(s.T(), http.StatusOK, w.Code)
	assert.Equal(s.T(), testWallet, requestcontext.Wallet(s.nextHandler.context))
}

func (s *AuthMiddlewareTestSuite) TestRequireWallet_MissingCookie() {
	w := s.serve(RequireWallet(s.validator, s.logger), "")

	assert.False(s.T(), s.nextHandler.called)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)
	assert.JSONEq(s.T(),
		`{"error":"unauthorized","error_description":"Sign in with your wallet first"}`,
		w.Body.String(),
	)
}

func (s *AuthMiddlewareTestSuite) TestRequireWallet_InvalidSession() {
	s.validator.On("ValidateSession", "bad").Return(nil, errors.New("token expired"))

	w := s.serve(RequireWallet(s.validator, s.logger), "bad")

	assert.False(s.T(), s.nextHandler.called)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)
	assert.JSONEq(s.T(),
		`{"error":"unauthorized","error_description":"Invalid or expired session"}`,
		w.Body.String(),
	)
}

func (s *AuthMiddlewareTestSuite) TestRequireWallet_EmptyWalletClaim() {
	s.validator.On("ValidateSession", "odd").Return(&SessionClaims{}, nil)

	w := s.serve(RequireWallet(s.validator, s.logger), "odd")

	assert.False(s.T(), s.nextHandler.called)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)
}

func (s *AuthMiddlewareTestSuite) TestOptionalWallet() {
	s.Run("no cookie passes through", func() {
		s.nextHandler = &mockHandler{}
		w := s.serve(OptionalWallet(s.validator, s.logger), "")

		assert.True(s.T(), s.nextHandler.called)
		assert.Equal(s.T(), http.StatusOK, w.Code)
		assert.Empty(s.T(), requestcontext.Wallet(s.nextHandler.context))
	})

	s.Run("invalid cookie passes through without wallet", func() {
		s.nextHandler = &mockHandler{}
		s.validator.On("ValidateSession", "stale").Return(nil, errors.New("token expired")).Once()

		s.serve(OptionalWallet(s.validator, s.logger), "stale")

		assert.True(s.T(), s.nextHandler.called)
		assert.Empty(s.T(), requestcontext.Wallet(s.nextHandler.context))
	})

	s.Run("valid cookie sets wallet", func() {
		s.nextHandler = &mockHandler{}
		s.validator.On("ValidateSession", "good").Return(&SessionClaims{Wallet: testWallet}, nil).Once()

		s.serve(OptionalWallet(s.validator, s.logger), "good")

		assert.Equal(s.T(), testWallet, requestcontext.Wallet(s.nextHandler.context))
	})
}
