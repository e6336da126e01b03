// Package service runs the video processing flow: take an uploaded recording,
// have the embedding service encode it, and keep the results for download
// and sharing.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"deepname/internal/media/models"
	"deepname/internal/platform/metrics"
	"deepname/internal/platform/tracer"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/platform/sentinel"
	"deepname/pkg/requestcontext"
)

// Embedder hides payload in a video.
type Embedder interface {
	Embed(ctx context.Context, video io.Reader, fileName, payload string) ([]models.Artifact, error)
}

// Store keeps sessions and artifacts.
type Store interface {
	PutSession(ctx context.Context, s *models.Session) error
	PutArtifacts(ctx context.Context, id uuid.UUID, artifacts []models.Artifact) error
	Session(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Artifact(ctx context.Context, id uuid.UUID, format models.Format) (models.Artifact, error)
}

// Upload is a recorded buffer handed over by the client.
type Upload struct {
	Owner       string
	Title       string
	FileName    string
	ContentType string
	Video       io.Reader
}

type Service struct {
	embedder Embedder
	store    Store
	payload  string
	ttl      time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithTimeout bounds one embedding call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New builds the flow. embedder may be nil, in which case uploads skip
// processing and are offered as recorded.
func New(embedder Embedder, store Store, payload string, ttl time.Duration, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &Service{
		embedder: embedder,
		store:    store,
		payload:  payload,
		ttl:      ttl,
		timeout:  2 * time.Minute,
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Encode runs one upload through the flow. The returned session is in
// share_ready, or in failed alongside the error.
func (s *Service) Encode(ctx context.Context, up Upload) (*models.Session, error) {
	if up.Video == nil {
		return nil, dErrors.NewWithDetail(dErrors.CodeMissingField, "video is required", "video")
	}
	now := requestcontext.Now(ctx)
	session := models.NewSession(up.Owner, strings.TrimSpace(up.Title), now, s.ttl)
	if err := s.store.PutSession(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create media session")
	}

	var (
		artifacts []models.Artifact
		err       error
	)
	if s.embedder == nil {
		artifacts, err = s.passthrough(up, session.Title)
	} else {
		if tErr := session.TransitionTo(models.StateProcessing, requestcontext.Now(ctx)); tErr != nil {
			return nil, dErrors.Wrap(tErr, dErrors.CodeInternal, "failed to start processing")
		}
		s.save(ctx, session)
		artifacts, err = s.embed(ctx, up)
	}
	if err != nil {
		return s.failed(ctx, session, err)
	}

	if err := s.store.PutArtifacts(ctx, session.ID, artifacts); err != nil {
		return s.failed(ctx, session, dErrors.Wrap(err, dErrors.CodeInternal, "failed to keep encoded video"))
	}
	for _, a := range artifacts {
		session.Artifacts = append(session.Artifacts, models.ArtifactInfo{Format: a.Format, FileName: a.FileName, Size: len(a.Data)})
	}
	if err := session.TransitionTo(models.StateShareReady, requestcontext.Now(ctx)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to finish media session")
	}
	s.save(ctx, session)

	if s.metrics != nil {
		s.metrics.IncrementEmbed("success")
	}
	s.logger.InfoContext(ctx, "media session ready",
		"session_id", session.ID,
		"artifacts", len(session.Artifacts),
		"request_id", requestcontext.RequestID(ctx),
	)
	return session, nil
}

func (s *Service) Session(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := s.store.Session(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "media session not found")
	}
	return session, nil
}

func (s *Service) Artifact(ctx context.Context, id uuid.UUID, format models.Format) (models.Artifact, error) {
	a, err := s.store.Artifact(ctx, id, format)
	if err != nil {
		return models.Artifact{}, notFoundOr(err, "video not available in "+string(format))
	}
	return a, nil
}

func (s *Service) embed(ctx context.Context, up Upload) (artifacts []models.Artifact, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, tracer.SpanEmbedCall)
	defer func() { span.End(err) }()

	start := time.Now()
	artifacts, err = s.embedder.Embed(ctx, up.Video, up.FileName, s.payload)
	if s.metrics != nil {
		s.metrics.ObserveEmbedLatency(time.Since(start).Seconds())
	}
	total := 0
	for _, a := range artifacts {
		total += len(a.Data)
	}
	span.SetAttributes(tracer.Int64(tracer.AttrArtifactLen, int64(total)))
	return artifacts, err
}

// passthrough offers the recording as uploaded when no embedding service is
// configured. Only containers the download route can serve are accepted.
func (s *Service) passthrough(up Upload, title string) ([]models.Artifact, error) {
	format, ok := rawFormat(up.FileName, up.ContentType)
	if !ok {
		return nil, dErrors.NewWithDetail(dErrors.CodeConfiguration,
			"embedding service is not configured and the recording is not mp4 or mov", "STEGO_URL")
	}
	data, err := io.ReadAll(up.Video)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read video")
	}
	name := format.DefaultFileName()
	if title != "" {
		name = strings.Join(strings.Fields(title), "_") + "." + string(format)
	}
	return []models.Artifact{{Format: format, FileName: name, Data: data}}, nil
}

func rawFormat(fileName, contentType string) (models.Format, bool) {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "video/mp4":
		return models.FormatMP4, true
	case "video/quicktime":
		return models.FormatMOV, true
	}
	return models.ParseFormat(strings.TrimPrefix(path.Ext(fileName), "."))
}

func (s *Service) failed(ctx context.Context, session *models.Session, err error) (*models.Session, error) {
	session.Message = err.Error()
	if tErr := session.TransitionTo(models.StateFailed, requestcontext.Now(ctx)); tErr != nil {
		s.logger.ErrorContext(ctx, "media session in unexpected state", "session_id", session.ID, "error", tErr)
	}
	s.save(ctx, session)
	if s.metrics != nil {
		s.metrics.IncrementEmbed("failed")
	}
	s.logger.WarnContext(ctx, "media processing failed",
		"session_id", session.ID,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	return session, err
}

func (s *Service) save(ctx context.Context, session *models.Session) {
	if err := s.store.PutSession(ctx, session); err != nil {
		s.logger.ErrorContext(ctx, "failed to save media session", "session_id", session.ID, "error", err)
	}
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read media session")
}
