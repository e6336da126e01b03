// Package handler serves the verification endpoints the DeepName front end
// calls. Response bodies keep the shapes the front end already reads.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"deepname/internal/verification/humanity"
	"deepname/internal/verification/humanity/worldid"
	"deepname/internal/verification/identity"
	"deepname/internal/verification/models"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/platform/httputil"
	"deepname/pkg/requestcontext"
)

// HumanityService runs the World ID flow.
type HumanityService interface {
	Verify(ctx context.Context, req humanity.Request) (*humanity.Outcome, error)
}

// IdentityService runs the Self flow.
type IdentityService interface {
	Verify(ctx context.Context, src identity.ProofSource) (*identity.Outcome, error)
}

// RecordStore reads and clears the stored verification records.
type RecordStore interface {
	Humanity(ctx context.Context) (models.HumanityProofRecord, error)
	Identity(ctx context.Context) (models.IdentityAttributeRecord, error)
	Clear(ctx context.Context, kind models.Kind) error
}

type Handler struct {
	humanity HumanityService
	identity IdentityService
	records  RecordStore
	logger   *slog.Logger
}

func New(h HumanityService, i IdentityService, records RecordStore, logger *slog.Logger) *Handler {
	return &Handler{humanity: h, identity: i, records: records, logger: logger}
}

// Register mounts the public verification routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/verify", h.HandleVerify)
	r.Post("/api/worldid", h.HandleWorldID)
	r.Get("/api/worldid/status", h.HandleWorldIDStatus)
	r.Post("/api/self", h.HandleSelf)
	r.Get("/api/self/status", h.HandleSelfStatus)
}

// RegisterAuthenticated mounts routes that need a wallet session.
func (h *Handler) RegisterAuthenticated(r chi.Router) {
	r.Delete("/api/verification/{kind}", h.HandleClear)
}

// HandleVerify handles POST /api/verify: the World ID result from the
// wallet app, checked against the cloud verifier.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := h.decode(w, r, &verifyRequest{})
	if !ok {
		return
	}
	verifyReq := req.(*verifyRequest)

	out, err := h.humanity.Verify(ctx, humanity.Request{
		Source: humanity.StaticProof(verifyReq.Payload.proof()),
		Action: verifyReq.Action,
		Signal: signalOrWallet(ctx, verifyReq.Signal),
	})
	if err != nil {
		status := verifyFailureStatus(err)
		h.logFailure(ctx, "humanity verification failed", err, requestID)
		httputil.WriteJSON(w, status, verifyFailure{
			Success: false,
			Error:   err.Error(),
			Code:    httputil.DomainCodeToHTTPCode(dErrors.CodeOf(err)),
			Detail:  dErrors.DetailOf(err),
			Status:  status,
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, verifySuccess{
		Success:   true,
		VerifyRes: out.Result,
		Status:    http.StatusOK,
	})
}

// HandleWorldID handles POST /api/worldid: a humanity record submitted
// directly. The proof is re-verified before it is stored.
func (h *Handler) HandleWorldID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := h.decode(w, r, &worldIDRequest{})
	if !ok {
		return
	}
	wr := req.(*worldIDRequest)

	_, err := h.humanity.Verify(ctx, humanity.Request{
		Source: humanity.StaticProof(worldid.Proof{
			MerkleRoot:        wr.Root,
			NullifierHash:     wr.NullifierHash,
			Proof:             wr.packed,
			VerificationLevel: wr.VerificationLevel,
		}),
		Signal: signalOrWallet(ctx, wr.Signal),
	})
	if err != nil {
		h.logFailure(ctx, "humanity record rejected", err, requestID)
		writeStatusError(w, err, dErrors.DetailOf(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusSuccess{Status: "success", Result: true})
}

// HandleWorldIDStatus handles GET /api/worldid/status.
func (h *Handler) HandleWorldIDStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Humanity(r.Context())
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	proof := rec.Proof
	if proof == nil {
		proof = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, recordResponse{
		Success: true,
		Data: humanityData{
			Root:          rec.Root,
			NullifierHash: rec.NullifierHash,
			Proof:         proof,
		},
	})
}

// HandleSelf handles POST /api/self: the Self proof and public signals from
// the companion app.
func (h *Handler) HandleSelf(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := h.decode(w, r, &selfRequest{})
	if !ok {
		return
	}
	sr := req.(*selfRequest)

	out, err := h.identity.Verify(ctx, identity.StaticSubmission{
		Proof:         sr.Proof,
		PublicSignals: sr.PublicSignals,
	})
	if err != nil {
		h.logFailure(ctx, "identity verification failed", err, requestID)
		var details any = dErrors.DetailOf(err)
		if out != nil && out.Result != nil && out.Result.Details != nil {
			details = out.Result.Details
		}
		writeStatusError(w, err, details)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, selfSuccess{
		Status:            "success",
		Result:            true,
		CredentialSubject: out.Result.CredentialSubject,
	})
}

// HandleSelfStatus handles GET /api/self/status.
func (h *Handler) HandleSelfStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Identity(r.Context())
	if err != nil {
		h.writeRecordError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recordResponse{
		Success: true,
		Data: identityData{
			Label:    rec.Label,
			SelfRoot: rec.RootCommitment,
		},
	})
}

// HandleClear handles DELETE /api/verification/{kind}.
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind := models.Kind(strings.ToLower(chi.URLParam(r, "kind")))
	if err := h.records.Clear(ctx, kind); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeRecordError(w http.ResponseWriter, r *http.Request, err error) {
	status := httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err))
	msg := "No verification data available"
	if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		h.logger.ErrorContext(r.Context(), "failed to read verification record",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		msg = "Internal server error"
	}
	httputil.WriteJSON(w, status, recordFailure{Success: false, Error: msg})
}

// decode reads the body into req and prepares it. Any failure is written in
// the shape the calling endpoint uses.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req any) (any, bool) {
	ctx := r.Context()
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode request body",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeDecodeError(w, r, req, http.StatusRequestEntityTooLarge, "request body exceeds limit", "request_too_large")
			return nil, false
		}
		h.writeDecodeError(w, r, req, http.StatusBadRequest, "invalid request body", "bad_request")
		return nil, false
	}
	if err := httputil.PrepareRequest(req); err != nil {
		status := httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err))
		h.writeDecodeError(w, r, req, status, err.Error(), dErrors.DetailOf(err))
		return nil, false
	}
	return req, true
}

func (h *Handler) writeDecodeError(w http.ResponseWriter, r *http.Request, req any, status int, msg, detail string) {
	if _, ok := req.(*verifyRequest); ok {
		// Body problems are always the caller's.
		status = http.StatusBadRequest
		httputil.WriteJSON(w, status, verifyFailure{Success: false, Error: msg, Detail: detail, Status: status})
		return
	}
	httputil.WriteJSON(w, status, statusFailure{Status: "error", Result: false, Message: msg, Details: detail})
}

// verifyFailureStatus folds a verification error into the two statuses
// /api/verify reports: 400 when the caller's proof or input is at fault and
// 500 for everything else.
func verifyFailureStatus(err error) int {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeProofInvalid, dErrors.CodeValidation, dErrors.CodeMissingField, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error, requestID string) {
	h.logger.InfoContext(ctx, msg,
		"code", dErrors.CodeOf(err),
		"detail", dErrors.DetailOf(err),
		"error", err,
		"request_id", requestID,
	)
}

func writeStatusError(w http.ResponseWriter, err error, details any) {
	httputil.WriteJSON(w, httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err)), statusFailure{
		Status:  "error",
		Result:  false,
		Message: err.Error(),
		Details: details,
	})
}

// signalOrWallet binds the proof to the signed-in wallet when the client sent
// no signal of its own.
func signalOrWallet(ctx context.Context, signal string) string {
	if signal != "" {
		return signal
	}
	return requestcontext.Wallet(ctx)
}
