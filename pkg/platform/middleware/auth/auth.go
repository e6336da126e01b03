package auth

import (
	"fmt"
	"log/slog"
	"net/http"

	"deepname/pkg/requestcontext"
)

// SessionCookie is the cookie carrying the wallet session token.
const SessionCookie = "deepname_session"

// SessionValidator validates a wallet session token.
type SessionValidator interface {
	ValidateSession(token string) (*SessionClaims, error)
}

// SessionClaims is what the middleware needs from a validated session.
type SessionClaims struct {
	Wallet string
	JTI    string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

func sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// RequireWallet rejects requests without a valid wallet session and stores the
// session wallet in the context.
func RequireWallet(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := sessionToken(r)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing session",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Sign in with your wallet first")
				return
			}

			claims, err := validator.ValidateSession(token)
			if err != nil || claims.Wallet == "" {
				logger.WarnContext(ctx, "unauthorized access - invalid session",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired session")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithWallet(ctx, claims.Wallet)))
		})
	}
}

// OptionalWallet stores the session wallet in the context when a valid session
// is present and otherwise passes the request through untouched.
func OptionalWallet(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := validator.ValidateSession(token)
			if err != nil || claims.Wallet == "" {
				logger.DebugContext(r.Context(), "ignoring invalid session cookie",
					"error", err,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithWallet(r.Context(), claims.Wallet)))
		})
	}
}
