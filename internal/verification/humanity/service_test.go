package humanity

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ProofSource,Verifier,RecordWriter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"deepname/internal/verification/humanity/mocks"
	"deepname/internal/verification/humanity/worldid"
	"deepname/internal/verification/models"
	"deepname/internal/verification/records"
	"deepname/internal/verification/store"
	"deepname/internal/verification/verifier"
	dErrors "deepname/pkg/domain-errors"
)

const testAction = "proof-of-humanity"

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	verifier *mocks.MockVerifier
	writer   *mocks.MockRecordWriter
	service  *Service
	proof    worldid.Proof
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.verifier = mocks.NewMockVerifier(s.ctrl)
	s.writer = mocks.NewMockRecordWriter(s.ctrl)
	s.service = New(s.verifier, s.writer, testAction, WithTimeouts(time.Second, time.Second))
	s.proof = worldid.Proof{
		MerkleRoot:        "123",
		NullifierHash:     "456",
		Proof:             "0xabc",
		VerificationLevel: "orb",
	}
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) TestVerifiedWritesRecord() {
	ctx := context.Background()
	s.verifier.EXPECT().Verify(gomock.Any(), s.proof, testAction, "0xwallet").
		Return(&worldid.Result{Success: true, Action: testAction}, nil)
	s.writer.EXPECT().PutHumanity(gomock.Any(), models.HumanityProofRecord{
		Root:          "123",
		NullifierHash: "456",
		Proof:         []string{"0xabc"},
	}).DoAndReturn(func(_ context.Context, rec models.HumanityProofRecord) (models.HumanityProofRecord, records.WriteResult, error) {
		rec.Timestamp = time.Unix(100, 0)
		return rec, records.WriteStored, nil
	})

	out, err := s.service.Verify(ctx, Request{Source: StaticProof(s.proof), Signal: "0xwallet"})

	s.Require().NoError(err)
	s.Equal(models.FlowVerified, out.State)
	s.Equal([]models.FlowState{
		models.FlowIdle,
		models.FlowAwaitingExternalProof,
		models.FlowAwaitingServerVerification,
		models.FlowVerified,
	}, out.History)
	s.Equal(records.WriteStored, out.Write)
	s.Equal("123", out.Record.Root)
	s.True(out.Result.Success)
}

func (s *ServiceSuite) TestRejectedProofFailsWithoutWrite() {
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, verifier.NewError(verifier.CategoryProofInvalid, "worldid", "The provided proof is invalid.", nil).WithDetail("invalid_proof"))

	out, err := s.service.Verify(context.Background(), Request{Source: StaticProof(s.proof)})

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeProofInvalid))
	s.Equal("invalid_proof", dErrors.DetailOf(err))
	s.Equal(models.FlowFailed, out.State)
}

func (s *ServiceSuite) TestVerifierOutageIsUnavailable() {
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, verifier.NewError(verifier.CategoryUnavailable, "worldid", "request failed", errors.New("connection refused")))

	out, err := s.service.Verify(context.Background(), Request{Source: StaticProof(s.proof)})

	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(models.FlowFailed, out.State)
}

func (s *ServiceSuite) TestActionMismatchIsRejectedBeforeAnyCall() {
	out, err := s.service.Verify(context.Background(), Request{Source: StaticProof(s.proof), Action: "other-action"})

	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(models.FlowFailed, out.State)
}

func (s *ServiceSuite) TestMissingProofFieldIsNamed() {
	s.proof.NullifierHash = ""
	out, err := s.service.Verify(context.Background(), Request{Source: StaticProof(s.proof)})

	s.True(dErrors.HasCode(err, dErrors.CodeMissingField))
	s.Equal("nullifier_hash", dErrors.DetailOf(err))
	s.Equal(models.FlowFailed, out.State)
}

func (s *ServiceSuite) TestProofWaitIsBounded() {
	src := mocks.NewMockProofSource(s.ctrl)
	src.EXPECT().Obtain(gomock.Any(), testAction, "").
		DoAndReturn(func(ctx context.Context, _, _ string) (worldid.Proof, error) {
			<-ctx.Done()
			return worldid.Proof{}, ctx.Err()
		})
	svc := New(s.verifier, s.writer, testAction, WithTimeouts(10*time.Millisecond, time.Second))

	out, err := svc.Verify(context.Background(), Request{Source: src})

	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Equal(models.FlowFailed, out.State)
	s.Equal(models.FlowAwaitingExternalProof, out.History[len(out.History)-2])
}

func (s *ServiceSuite) TestCallerCancellationEndsCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, worldid.Proof, string, string) (*worldid.Result, error) {
			cancel()
			return nil, context.Canceled
		})

	out, err := s.service.Verify(ctx, Request{Source: StaticProof(s.proof)})

	s.True(dErrors.HasCode(err, dErrors.CodeCancelled))
	s.Equal(models.FlowCancelled, out.State)
}

func (s *ServiceSuite) TestSupersededWriteStillVerifies() {
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(&worldid.Result{Success: true}, nil)
	s.writer.EXPECT().PutHumanity(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec models.HumanityProofRecord) (models.HumanityProofRecord, records.WriteResult, error) {
			return rec, records.WriteSuperseded, nil
		})

	out, err := s.service.Verify(context.Background(), Request{Source: StaticProof(s.proof)})

	s.Require().NoError(err)
	s.Equal(records.WriteSuperseded, out.Write)
	s.Equal(models.FlowVerified, out.State)
}

// The flow and the real record store together: a verified proof becomes
// readable through the facade.
func TestVerifyStoresReadableRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	v := mocks.NewMockVerifier(ctrl)
	v.EXPECT().Verify(gomock.Any(), gomock.Any(), testAction, "").Return(&worldid.Result{Success: true}, nil)

	recs := records.New(store.NewInMemoryStore())
	svc := New(v, recs, testAction)

	_, err := svc.Verify(context.Background(), Request{Source: StaticProof(worldid.Proof{
		MerkleRoot: "1", NullifierHash: "2", Proof: "0x03", VerificationLevel: "device",
	})})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	got, err := recs.Humanity(context.Background())
	if err != nil {
		t.Fatalf("humanity: %v", err)
	}
	if got.NullifierHash != "2" || len(got.Proof) != 1 || got.Proof[0] != "0x03" {
		t.Fatalf("unexpected record %+v", got)
	}
}
