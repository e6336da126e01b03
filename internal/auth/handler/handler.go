package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"deepname/internal/auth/service"
	"deepname/internal/auth/session"
	"deepname/internal/auth/siwe"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/platform/httputil"
	"deepname/pkg/requestcontext"
)

// NonceCookie binds an issued nonce to the browser that asked for it.
const NonceCookie = "siwe"

// Service defines the sign-in operations.
type Service interface {
	IssueNonce(ctx context.Context) (string, error)
	CompleteSignIn(ctx context.Context, p siwe.Payload, nonce string) (*service.SignIn, error)
	NonceTTL() time.Duration
}

// SessionReader validates session tokens.
type SessionReader interface {
	Validate(token string) (*session.Claims, error)
}

// Handler serves the Sign-In with Ethereum endpoints.
type Handler struct {
	auth          Service
	sessions      SessionReader
	logger        *slog.Logger
	secureCookies bool
}

func New(auth Service, sessions SessionReader, logger *slog.Logger, secureCookies bool) *Handler {
	return &Handler{
		auth:          auth,
		sessions:      sessions,
		logger:        logger,
		secureCookies: secureCookies,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/nonce", h.HandleNonce)
	r.Post("/api/complete-siwe", h.HandleCompleteSIWE)
	r.Get("/api/session", h.HandleSession)
	r.Post("/api/logout", h.HandleLogout)
}

// HandleNonce implements GET /api/nonce.
func (h *Handler) HandleNonce(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := h.auth.IssueNonce(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue nonce",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     NonceCookie,
		Value:    n,
		Path:     "/",
		MaxAge:   int(h.auth.NonceTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteJSON(w, http.StatusOK, nonceResponse{Nonce: n})
}

// HandleCompleteSIWE implements POST /api/complete-siwe.
//
// Input: { "payload": { "status": "success", "message": "...", "signature": "0x...", "address": "0x..." }, "nonce": "..." }
// Output: { "status": "success", "isValid": true, "address": "0x..." }
func (h *Handler) HandleCompleteSIWE(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[completeRequest](w, r, h.logger)
	if !ok {
		return
	}

	cookie, err := r.Cookie(NonceCookie)
	if err != nil || cookie.Value == "" || cookie.Value != req.Nonce {
		h.logger.WarnContext(ctx, "siwe nonce does not match cookie",
			"request_id", requestID,
		)
		h.writeSignInError(w, dErrors.NewWithDetail(dErrors.CodeUnauthorized, "Invalid nonce", "nonce_cookie_mismatch"))
		return
	}

	res, err := h.auth.CompleteSignIn(ctx, siwe.Payload{
		Message:   req.Payload.Message,
		Signature: req.Payload.Signature,
		Address:   req.Payload.Address,
	}, req.Nonce)
	h.clearNonceCookie(w)
	if err != nil {
		h.writeSignInError(w, err)
		return
	}

	session.WriteCookie(w, res.Token, res.Claims.ExpiresAt.Time, h.secureCookies)
	httputil.WriteJSON(w, http.StatusOK, completeResponse{
		Status:  "success",
		IsValid: true,
		Address: res.Claims.Wallet,
	})
}

// HandleSession implements GET /api/session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	claims, err := h.sessions.Validate(session.TokenFromRequest(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessionResponse{
		Address:   claims.Wallet,
		ChainID:   claims.ChainID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	})
}

// HandleLogout implements POST /api/logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, _ *http.Request) {
	session.ClearCookie(w, h.secureCookies)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearNonceCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     NonceCookie,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) writeSignInError(w http.ResponseWriter, err error) {
	httputil.WriteJSON(w, httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err)), completeResponse{
		Status:  "error",
		IsValid: false,
		Message: err.Error(),
		Detail:  dErrors.DetailOf(err),
	})
}

type walletPayload struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Address   string `json:"address"`
	Version   int    `json:"version"`
}

type completeRequest struct {
	Payload walletPayload `json:"payload"`
	Nonce   string        `json:"nonce"`
}

func (r *completeRequest) Normalize() {
	r.Nonce = strings.TrimSpace(r.Nonce)
	r.Payload.Address = strings.TrimSpace(r.Payload.Address)
}

func (r *completeRequest) Validate() error {
	switch {
	case r.Nonce == "":
		return dErrors.NewWithDetail(dErrors.CodeMissingField, "nonce is required", "nonce")
	case r.Payload.Status != "" && r.Payload.Status != "success":
		return dErrors.NewWithDetail(dErrors.CodeBadRequest, "wallet did not sign the message", "payload.status")
	case r.Payload.Message == "":
		return dErrors.NewWithDetail(dErrors.CodeMissingField, "message is required", "payload.message")
	case r.Payload.Signature == "":
		return dErrors.NewWithDetail(dErrors.CodeMissingField, "signature is required", "payload.signature")
	}
	return nil
}

type nonceResponse struct {
	Nonce string `json:"nonce"`
}

type completeResponse struct {
	Status  string `json:"status"`
	IsValid bool   `json:"isValid"`
	Address string `json:"address,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

type sessionResponse struct {
	Address   string    `json:"address"`
	ChainID   int64     `json:"chainId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}
