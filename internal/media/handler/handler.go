// Package handler serves the video upload, status and download endpoints.
package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"deepname/internal/media/models"
	"deepname/internal/media/service"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/platform/httputil"
	"deepname/pkg/requestcontext"
)

// multipart parts above this size spill to temporary files.
const formMemoryBytes = 32 << 20

type Service interface {
	Encode(ctx context.Context, up service.Upload) (*models.Session, error)
	Session(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Artifact(ctx context.Context, id uuid.UUID, format models.Format) (models.Artifact, error)
}

type Handler struct {
	media          Service
	logger         *slog.Logger
	maxUploadBytes int64
	publicBaseURL  string
}

// New builds the handler. publicBaseURL prefixes artifact links; when empty
// links are built from the request host.
func New(media Service, logger *slog.Logger, maxUploadBytes int64, publicBaseURL string) *Handler {
	return &Handler{
		media:          media,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
		publicBaseURL:  strings.TrimRight(publicBaseURL, "/"),
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/media/encode", h.HandleEncode)
	r.Get("/api/media/sessions/{sessionID}", h.HandleSession)
	r.Get("/api/media/sessions/{sessionID}/artifacts/{format}", h.HandleArtifact)
	r.Get("/api/media/capture-hints", h.HandleCaptureHints)
}

// HandleCaptureHints handles GET /api/media/capture-hints. Phones record with
// the back camera; Safari only records mp4.
func (h *Handler) HandleCaptureHints(w http.ResponseWriter, r *http.Request) {
	d := requestcontext.DeviceOf(r.Context())
	hints := captureHints{
		Mobile:         d.Mobile,
		Camera:         "user",
		MimeTypes:      []string{"video/mp4", "video/webm;codecs=vp9", "video/webm"},
		MaxUploadBytes: h.maxUploadBytes,
	}
	if d.Mobile {
		hints.Camera = "environment"
	}
	if d.Browser == "safari" || strings.Contains(d.OS, "ios") || strings.Contains(d.OS, "iphone") {
		hints.MimeTypes = []string{"video/mp4"}
	}
	httputil.WriteJSON(w, http.StatusOK, hints)
}

// HandleEncode handles POST /api/media/encode: multipart field video, plus
// an optional title.
func (h *Handler) HandleEncode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(formMemoryBytes); err != nil {
		h.logger.WarnContext(ctx, "failed to parse upload", "error", err, "request_id", requestID)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.ErrorResponse{
				Error:            "request_too_large",
				ErrorDescription: "video exceeds the upload limit",
			})
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expected a multipart upload"))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp file cleanup

	file, header, err := r.FormFile("video")
	if err != nil {
		httputil.WriteError(w, dErrors.NewWithDetail(dErrors.CodeMissingField, "video is required", "video"))
		return
	}
	defer file.Close()

	session, err := h.media.Encode(ctx, service.Upload{
		Owner:       requestcontext.Wallet(ctx),
		Title:       r.FormValue("title"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Video:       file,
	})
	if err != nil {
		code := dErrors.CodeOf(err)
		status := httputil.DomainCodeToHTTPStatus(code)
		resp := encodeFailure{
			Error:            httputil.DomainCodeToHTTPCode(code),
			ErrorDescription: err.Error(),
			Detail:           dErrors.DetailOf(err),
		}
		if session != nil {
			resp.Session = h.toResponse(r, session)
		}
		httputil.WriteJSON(w, status, resp)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, h.toResponse(r, session))
}

// HandleSession handles GET /api/media/sessions/{sessionID}.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.media.Session(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.toResponse(r, session))
}

// HandleArtifact handles GET /api/media/sessions/{sessionID}/artifacts/{format}
// as a download.
func (h *Handler) HandleArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	format, ok := models.ParseFormat(chi.URLParam(r, "format"))
	if !ok {
		httputil.WriteError(w, dErrors.NewWithDetail(dErrors.CodeBadRequest, "format must be mp4 or mov", "format"))
		return
	}

	artifact, err := h.media.Artifact(r.Context(), id, format)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.FileName}))
	http.ServeContent(w, r, artifact.FileName, time.Time{}, bytes.NewReader(artifact.Data))
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.NewWithDetail(dErrors.CodeBadRequest, "invalid session id", "sessionID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) baseURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (h *Handler) toResponse(r *http.Request, s *models.Session) *sessionResponse {
	base := h.baseURL(r)
	resp := &sessionResponse{
		ID:        s.ID.String(),
		State:     string(s.State),
		Title:     s.Title,
		Message:   s.Message,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
	for _, a := range s.Artifacts {
		resp.Artifacts = append(resp.Artifacts, artifactResponse{
			Format:   string(a.Format),
			FileName: a.FileName,
			Size:     a.Size,
			URL:      base + "/api/media/sessions/" + s.ID.String() + "/artifacts/" + string(a.Format),
		})
	}
	if s.State == models.StateShareReady && len(resp.Artifacts) > 0 {
		title := s.Title
		if title == "" {
			title = "My Deep Truth"
		}
		resp.Share = service.ShareLinks(resp.Artifacts[0].URL, title)
	}
	return resp
}
