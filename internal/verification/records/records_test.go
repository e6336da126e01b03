package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"deepname/internal/verification/models"
	"deepname/internal/verification/store"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/requestcontext"
)

type RecordsSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	records *Records
	now     time.Time
}

func TestRecordsSuite(t *testing.T) {
	suite.Run(t, new(RecordsSuite))
}

func (s *RecordsSuite) SetupTest() {
	s.store = store.NewInMemoryStore()
	s.records = New(s.store)
	s.now = time.Date(2025, 6, 1, 10, 0, 0, 123456789, time.UTC)
}

func (s *RecordsSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *RecordsSuite) TestPutThenGetHumanity() {
	in := models.HumanityProofRecord{Root: "123", NullifierHash: "456", Proof: []string{"0xabc"}}

	stored, result, err := s.records.PutHumanity(s.ctxAt(s.now), in)
	s.Require().NoError(err)
	s.Equal(WriteStored, result)
	s.Equal(s.now.Truncate(time.Microsecond), stored.Timestamp)

	got, err := s.records.Humanity(context.Background())
	s.Require().NoError(err)
	s.Equal(stored, got)
	s.Equal(in.Proof, got.Proof)
}

func (s *RecordsSuite) TestPutReplacesPreviousIdentity() {
	_, _, err := s.records.PutIdentity(s.ctxAt(s.now), models.IdentityAttributeRecord{Label: "Old Name", RootCommitment: "1"})
	s.Require().NoError(err)
	_, _, err = s.records.PutIdentity(s.ctxAt(s.now.Add(time.Second)), models.IdentityAttributeRecord{Label: "Jane Doe", RootCommitment: "789"})
	s.Require().NoError(err)

	got, err := s.records.Identity(context.Background())
	s.Require().NoError(err)
	s.Equal("Jane Doe", got.Label)
	s.Equal("789", got.RootCommitment)
}

func (s *RecordsSuite) TestStaleWriteIsSupersededNotFailed() {
	_, _, err := s.records.PutIdentity(s.ctxAt(s.now), models.IdentityAttributeRecord{Label: "Newer"})
	s.Require().NoError(err)

	_, result, err := s.records.PutIdentity(s.ctxAt(s.now.Add(-time.Second)), models.IdentityAttributeRecord{Label: "Older"})
	s.Require().NoError(err)
	s.Equal(WriteSuperseded, result)

	got, err := s.records.Identity(context.Background())
	s.Require().NoError(err)
	s.Equal("Newer", got.Label)
}

func (s *RecordsSuite) TestMissingRecordIsNotFound() {
	_, err := s.records.Humanity(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.records.Identity(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RecordsSuite) TestClear() {
	_, _, err := s.records.PutHumanity(s.ctxAt(s.now), models.HumanityProofRecord{Root: "1"})
	s.Require().NoError(err)

	s.Require().NoError(s.records.Clear(context.Background(), models.KindHumanity))
	_, err = s.records.Humanity(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.records.Clear(context.Background(), models.Kind("video"))
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

type failingStore struct{ store.Store }

func (failingStore) Put(context.Context, models.Entry) error { return errors.New("disk full") }
func (failingStore) Get(context.Context, models.Kind) (models.Entry, error) {
	return models.Entry{}, errors.New("connection reset")
}

func TestRecordsStoreFailuresAreInternal(t *testing.T) {
	r := New(failingStore{})

	_, _, err := r.PutHumanity(context.Background(), models.HumanityProofRecord{Root: "1"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

	_, err = r.Identity(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	assert.False(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
