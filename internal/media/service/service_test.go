package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Embedder

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"deepname/internal/media/models"
	"deepname/internal/media/service/mocks"
	"deepname/internal/media/store"
	dErrors "deepname/pkg/domain-errors"
)

const payload = "abcdefghijklmnopqrstuvwxyz"

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	embedder *mocks.MockEmbedder
	store    *store.InMemoryStore
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.embedder = mocks.NewMockEmbedder(s.ctrl)
	s.store = store.NewInMemoryStore()
	s.service = New(s.embedder, s.store, payload, time.Hour, WithTimeout(time.Second))
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) TestEncodeReachesShareReady() {
	s.embedder.EXPECT().Embed(gomock.Any(), gomock.Any(), "clip.webm", payload).
		DoAndReturn(func(_ context.Context, video io.Reader, _, _ string) ([]models.Artifact, error) {
			data, _ := io.ReadAll(video)
			s.Equal("raw", string(data))
			return []models.Artifact{
				{Format: models.FormatMP4, FileName: "deeptruth.mp4", Data: []byte("mp4-bytes")},
				{Format: models.FormatMOV, FileName: "deeptruth.mov", Data: []byte("mov")},
			}, nil
		})

	session, err := s.service.Encode(context.Background(), Upload{
		Owner: "0xabc", Title: " my clip ", FileName: "clip.webm", Video: strings.NewReader("raw"),
	})
	s.Require().NoError(err)
	s.Equal(models.StateShareReady, session.State)
	s.Equal("my clip", session.Title)
	s.Require().Len(session.Artifacts, 2)
	s.Equal(9, session.Artifacts[0].Size)

	stored, err := s.service.Session(context.Background(), session.ID)
	s.Require().NoError(err)
	s.Equal(models.StateShareReady, stored.State)

	a, err := s.service.Artifact(context.Background(), session.ID, models.FormatMOV)
	s.Require().NoError(err)
	s.Equal("mov", string(a.Data))
}

func (s *ServiceSuite) TestEmbedFailureLeavesSessionFailed() {
	s.embedder.EXPECT().Embed(gomock.Any(), gomock.Any(), gomock.Any(), payload).
		Return(nil, dErrors.New(dErrors.CodeUnavailable, "embedding service request failed"))

	session, err := s.service.Encode(context.Background(), Upload{Video: strings.NewReader("raw")})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(models.StateFailed, session.State)

	stored, err := s.service.Session(context.Background(), session.ID)
	s.Require().NoError(err)
	s.Equal(models.StateFailed, stored.State)
	s.Equal("embedding service request failed", stored.Message)
}

func (s *ServiceSuite) TestEmbedCallIsBounded() {
	svc := New(s.embedder, s.store, payload, time.Hour, WithTimeout(20*time.Millisecond))
	s.embedder.EXPECT().Embed(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ io.Reader, _, _ string) ([]models.Artifact, error) {
			<-ctx.Done()
			return nil, &dErrors.Error{Code: dErrors.CodeTimeout, Message: "embedding service timed out", Err: ctx.Err()}
		})

	session, err := svc.Encode(context.Background(), Upload{Video: strings.NewReader("raw")})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Equal(models.StateFailed, session.State)
}

func (s *ServiceSuite) TestMissingVideo() {
	_, err := s.service.Encode(context.Background(), Upload{})
	s.True(dErrors.HasCode(err, dErrors.CodeMissingField))
}

func (s *ServiceSuite) TestUnknownSession() {
	_, err := s.service.Session(context.Background(), models.NewSession("", "", time.Now(), time.Hour).ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestPassthroughWithoutEmbedder(t *testing.T) {
	svc := New(nil, store.NewInMemoryStore(), payload, time.Hour)

	t.Run("mp4 upload is offered as recorded", func(t *testing.T) {
		session, err := svc.Encode(context.Background(), Upload{
			Title: "beach day", FileName: "blob", ContentType: "video/mp4;codecs=avc1", Video: strings.NewReader("raw"),
		})
		require.NoError(t, err)
		assert.Equal(t, models.StateShareReady, session.State)
		require.Len(t, session.Artifacts, 1)
		assert.Equal(t, "beach_day.mp4", session.Artifacts[0].FileName)
	})

	t.Run("webm upload needs the embedding service", func(t *testing.T) {
		session, err := svc.Encode(context.Background(), Upload{FileName: "clip.webm", ContentType: "video/webm", Video: strings.NewReader("raw")})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))
		assert.Equal(t, models.StateFailed, session.State)
	})
}

func TestShareLinks(t *testing.T) {
	links := ShareLinks("https://deepname.app/api/media/sessions/1/artifacts/mp4", "My Deep Truth")
	require.Len(t, links, 5)

	byPlatform := map[string]string{}
	for _, l := range links {
		byPlatform[l.Platform] = l.URL
	}
	for _, p := range []string{"x", "facebook", "linkedin", "telegram", "whatsapp"} {
		require.Contains(t, byPlatform, p)
		_, err := url.Parse(byPlatform[p])
		assert.NoError(t, err)
	}
	assert.Contains(t, byPlatform["x"], "text=My+Deep+Truth")
	assert.Contains(t, byPlatform["facebook"], "u=https%3A%2F%2Fdeepname.app")
	assert.Nil(t, ShareLinks("", "x"))
}
