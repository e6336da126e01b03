package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"deepname/internal/media/handler/mocks"
	"deepname/internal/media/models"
	"deepname/internal/media/service"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/requestcontext"
)

type HandlerSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	media  *mocks.MockService
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.media = mocks.NewMockService(s.ctrl)

	h := New(s.media, slog.New(slog.NewTextHandler(io.Discard, nil)), 1<<20, "https://deepname.app")
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) upload(fields map[string]string, video []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		s.Require().NoError(mw.WriteField(k, v))
	}
	if video != nil {
		part, err := mw.CreateFormFile("video", "clip.webm")
		s.Require().NoError(err)
		_, err = part.Write(video)
		s.Require().NoError(err)
	}
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/media/encode", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func readySession() *models.Session {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	session := models.NewSession("", "my clip", now, time.Hour)
	session.State = models.StateShareReady
	session.Artifacts = []models.ArtifactInfo{{Format: models.FormatMP4, FileName: "deeptruth.mp4", Size: 3}}
	return session
}

func (s *HandlerSuite) TestEncode() {
	s.Run("returns session with links", func() {
		session := readySession()
		s.media.EXPECT().Encode(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, up service.Upload) (*models.Session, error) {
				data, _ := io.ReadAll(up.Video)
				s.Equal("raw", string(data))
				s.Equal("my clip", up.Title)
				s.Equal("clip.webm", up.FileName)
				return session, nil
			})

		rec := s.upload(map[string]string{"title": "my clip"}, []byte("raw"))
		s.Equal(http.StatusCreated, rec.Code)

		var resp sessionResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("share_ready", resp.State)
		s.Require().Len(resp.Artifacts, 1)
		s.Equal("https://deepname.app/api/media/sessions/"+session.ID.String()+"/artifacts/mp4", resp.Artifacts[0].URL)
		s.Len(resp.Share, 5)
	})

	s.Run("missing video", func() {
		rec := s.upload(map[string]string{"title": "x"}, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("too large", func() {
		rec := s.upload(nil, bytes.Repeat([]byte("a"), 2<<20))
		s.Equal(http.StatusRequestEntityTooLarge, rec.Code)
	})

	s.Run("embedding failure returns failed session", func() {
		session := models.NewSession("", "", time.Now(), time.Hour)
		session.State = models.StateFailed
		s.media.EXPECT().Encode(gomock.Any(), gomock.Any()).
			Return(session, dErrors.NewWithDetail(dErrors.CodeUnavailable, "embedding service is unavailable, try again shortly", "circuit_open"))

		rec := s.upload(nil, []byte("raw"))
		s.Equal(http.StatusBadGateway, rec.Code)
		var resp encodeFailure
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("circuit_open", resp.Detail)
		s.Require().NotNil(resp.Session)
		s.Equal("failed", resp.Session.State)
		s.Empty(resp.Session.Share)
	})
}

func (s *HandlerSuite) TestArtifactDownload() {
	session := readySession()
	s.media.EXPECT().Artifact(gomock.Any(), session.ID, models.FormatMOV).
		Return(models.Artifact{Format: models.FormatMOV, FileName: "deeptruth.mov", Data: []byte("mov-bytes")}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/media/sessions/"+session.ID.String()+"/artifacts/MOV", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("video/quicktime", rec.Header().Get("Content-Type"))
	s.Equal(`attachment; filename=deeptruth.mov`, rec.Header().Get("Content-Disposition"))
	s.Equal("mov-bytes", rec.Body.String())
}

func (s *HandlerSuite) TestArtifactErrors() {
	id := readySession().ID

	s.Run("bad format", func() {
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/media/sessions/"+id.String()+"/artifacts/avi", nil))
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("expired session", func() {
		s.media.EXPECT().Artifact(gomock.Any(), id, models.FormatMP4).
			Return(models.Artifact{}, dErrors.New(dErrors.CodeNotFound, "video not available in mp4"))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/media/sessions/"+id.String()+"/artifacts/mp4", nil))
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HandlerSuite) TestSessionStatus() {
	session := readySession()
	s.media.EXPECT().Session(gomock.Any(), session.ID).Return(session, nil)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/media/sessions/"+session.ID.String(), nil))
	s.Equal(http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/media/sessions/nope", nil))
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestCaptureHints() {
	tests := []struct {
		name       string
		device     requestcontext.Device
		wantCamera string
		wantMime   string
		mimeCount  int
	}{
		{"desktop chrome", requestcontext.Device{Browser: "chrome", OS: "linux x86_64"}, "user", "video/mp4", 3},
		{"android phone", requestcontext.Device{Mobile: true, Browser: "chrome", OS: "android 14"}, "environment", "video/mp4", 3},
		{"iphone safari", requestcontext.Device{Mobile: true, Browser: "safari", OS: "cpu iphone os 17_4 like mac os x"}, "environment", "video/mp4", 1},
		{"unclassified", requestcontext.Device{}, "user", "video/mp4", 3},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := httptest.NewRequest(http.MethodGet, "/api/media/capture-hints", nil)
			req = req.WithContext(requestcontext.WithDevice(req.Context(), tt.device))
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)
			s.Require().Equal(http.StatusOK, rec.Code)

			var body captureHints
			s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
			s.Equal(tt.device.Mobile, body.Mobile)
			s.Equal(tt.wantCamera, body.Camera)
			s.Len(body.MimeTypes, tt.mimeCount)
			s.Equal(tt.wantMime, body.MimeTypes[0])
			s.Equal(int64(1<<20), body.MaxUploadBytes)
		})
	}
}
