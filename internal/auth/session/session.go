// Package session issues and validates wallet session tokens. A session is an
// HS256 JWT carried in the deepname_session cookie.
package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/platform/middleware/auth"
	"deepname/pkg/requestcontext"
)

// Claims represents the JWT claims of a wallet session.
type Claims struct {
	Wallet  string `json:"wallet"`
	ChainID int64  `json:"chain_id,omitempty"`
	jwt.RegisteredClaims
}

// Manager handles session token creation and validation.
type Manager struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewManager(signingKey, issuer string, ttl time.Duration) *Manager {
	return &Manager{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
	}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a session for wallet. The wallet is stored checksummed.
func (m *Manager) Issue(ctx context.Context, wallet string, chainID int64) (string, *Claims, error) {
	if !common.IsHexAddress(wallet) {
		return "", nil, dErrors.New(dErrors.CodeBadRequest, "invalid wallet address")
	}
	now := requestcontext.Now(ctx)
	claims := &Claims{
		Wallet:  common.HexToAddress(wallet).Hex(),
		ChainID: chainID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   common.HexToAddress(wallet).Hex(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign session")
	}
	return signed, claims, nil
}

func (m *Manager) Validate(token string) (*Claims, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing session")
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return m.signingKey, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || !common.IsHexAddress(claims.Wallet) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session claims")
	}
	return claims, nil
}

// ValidateSession adapts Validate to the wallet middleware.
func (m *Manager) ValidateSession(token string) (*auth.SessionClaims, error) {
	claims, err := m.Validate(token)
	if err != nil {
		return nil, err
	}
	return &auth.SessionClaims{Wallet: claims.Wallet, JTI: claims.ID}, nil
}

// WriteCookie sets the session cookie for token.
func WriteCookie(w http.ResponseWriter, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest returns the session token cookie value, or "".
func TokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(auth.SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

var _ auth.SessionValidator = (*Manager)(nil)
