// Package handler serves the mint endpoints. Both routes require a wallet
// session; the owner is always the signed-in wallet.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"deepname/internal/mint/models"
	"deepname/internal/mint/sources"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/platform/httputil"
	"deepname/pkg/requestcontext"
)

// Service is the mint orchestrator.
type Service interface {
	Mint(ctx context.Context, owner string, cached sources.Cached) (*models.Attempt, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Attempt, error)
}

type Handler struct {
	mint   Service
	logger *slog.Logger
}

func New(mint Service, logger *slog.Logger) *Handler {
	return &Handler{mint: mint, logger: logger}
}

// Register mounts the mint routes. The router must already require a wallet.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/mint", h.HandleMint)
	r.Get("/api/mint/{attemptID}", h.HandleGetAttempt)
}

// HandleMint handles POST /api/mint. A submitted attempt is returned with 202;
// poll GET /api/mint/{attemptID} for the confirmation.
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	owner, err := httputil.RequireWallet(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req := &mintRequest{}
	if r.ContentLength != 0 {
		var ok bool
		if req, ok = httputil.DecodeAndPrepare[mintRequest](w, r, h.logger); !ok {
			return
		}
	}

	attempt, err := h.mint.Mint(ctx, owner, req.sources())
	if err != nil {
		h.logger.WarnContext(ctx, "mint failed",
			"error", err,
			"request_id", requestID,
		)
		code := dErrors.CodeOf(err)
		resp := mintFailure{
			Error:            httputil.DomainCodeToHTTPCode(code),
			ErrorDescription: err.Error(),
			Detail:           dErrors.DetailOf(err),
		}
		if attempt != nil {
			resp.Redirect = attempt.Redirect
			// Do not leak another wallet's attempt on a nullifier conflict.
			if strings.EqualFold(attempt.Owner, owner) {
				resp.Attempt = toAttemptResponse(attempt)
			}
		}
		httputil.WriteJSON(w, httputil.DomainCodeToHTTPStatus(code), resp)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, toAttemptResponse(attempt))
}

// HandleGetAttempt handles GET /api/mint/{attemptID}. Attempts owned by another
// wallet are reported as not found.
func (h *Handler) HandleGetAttempt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	owner, err := httputil.RequireWallet(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "attemptID"))
	if err != nil {
		httputil.WriteError(w, dErrors.NewWithDetail(dErrors.CodeBadRequest, "invalid attempt id", "attemptID"))
		return
	}

	attempt, err := h.mint.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !strings.EqualFold(attempt.Owner, owner) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "mint attempt not found"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAttemptResponse(attempt))
}
