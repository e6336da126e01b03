package sources

import (
	"context"

	vmodels "deepname/internal/verification/models"
	dErrors "deepname/pkg/domain-errors"
)

// RecordReader is the verification record facade.
type RecordReader interface {
	Humanity(ctx context.Context) (vmodels.HumanityProofRecord, error)
	Identity(ctx context.Context) (vmodels.IdentityAttributeRecord, error)
}

// Store reads the server-side verification record store.
type Store struct {
	records RecordReader
}

func NewStore(records RecordReader) *Store {
	return &Store{records: records}
}

func (s *Store) Name() string { return "store" }

func (s *Store) Humanity(ctx context.Context) (vmodels.HumanityProofRecord, bool, error) {
	rec, err := s.records.Humanity(ctx)
	return rec, err == nil, notFoundIsAbsent(err)
}

func (s *Store) Identity(ctx context.Context) (vmodels.IdentityAttributeRecord, bool, error) {
	rec, err := s.records.Identity(ctx)
	return rec, err == nil, notFoundIsAbsent(err)
}

func notFoundIsAbsent(err error) error {
	if err == nil || dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil
	}
	return err
}

// Cached is the copy of the records the client kept locally and sent along
// with the mint request. Either field may be nil.
type Cached struct {
	HumanityRecord *vmodels.HumanityProofRecord
	IdentityRecord *vmodels.IdentityAttributeRecord
}

func (c Cached) Name() string { return "client_cache" }

func (c Cached) Humanity(context.Context) (vmodels.HumanityProofRecord, bool, error) {
	if c.HumanityRecord == nil {
		return vmodels.HumanityProofRecord{}, false, nil
	}
	return *c.HumanityRecord, true, nil
}

func (c Cached) Identity(context.Context) (vmodels.IdentityAttributeRecord, bool, error) {
	if c.IdentityRecord == nil {
		return vmodels.IdentityAttributeRecord{}, false, nil
	}
	return *c.IdentityRecord, true, nil
}

var (
	_ Source = (*Store)(nil)
	_ Source = Cached{}
)
