package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vmodels "deepname/internal/verification/models"
	dErrors "deepname/pkg/domain-errors"
)

type stubReader struct {
	humanity    vmodels.HumanityProofRecord
	humanityErr error
	identity    vmodels.IdentityAttributeRecord
	identityErr error
}

func (s stubReader) Humanity(context.Context) (vmodels.HumanityProofRecord, error) {
	return s.humanity, s.humanityErr
}

func (s stubReader) Identity(context.Context) (vmodels.IdentityAttributeRecord, error) {
	return s.identity, s.identityErr
}

var notFound = dErrors.New(dErrors.CodeNotFound, "no record")

func TestChainPrefersEarlierSource(t *testing.T) {
	store := NewStore(stubReader{
		humanity: vmodels.HumanityProofRecord{Root: "1", NullifierHash: "2"},
		identity: vmodels.IdentityAttributeRecord{Label: "from store"},
	})
	cached := Cached{
		HumanityRecord: &vmodels.HumanityProofRecord{Root: "9"},
		IdentityRecord: &vmodels.IdentityAttributeRecord{Label: "from client"},
	}

	got, err := Chain{store, cached}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", got.Humanity.Root)
	assert.Equal(t, "store", got.HumanitySource)
	assert.Equal(t, "from store", got.Identity.Label)
}

func TestChainFallsThroughPerKind(t *testing.T) {
	store := NewStore(stubReader{
		humanity:    vmodels.HumanityProofRecord{Root: "1"},
		identityErr: notFound,
	})
	cached := Cached{IdentityRecord: &vmodels.IdentityAttributeRecord{Label: "alice smith"}}

	got, err := Chain{store, cached}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "store", got.HumanitySource)
	assert.Equal(t, "client_cache", got.IdentitySource)
	assert.Equal(t, "alice smith", got.Identity.Label)
}

func TestChainReportsMissingKinds(t *testing.T) {
	tests := []struct {
		name     string
		reader   stubReader
		kinds    []vmodels.Kind
		redirect string
	}{
		{
			name:     "both missing redirects to humanity first",
			reader:   stubReader{humanityErr: notFound, identityErr: notFound},
			kinds:    []vmodels.Kind{vmodels.KindHumanity, vmodels.KindIdentity},
			redirect: "/verify-world",
		},
		{
			name:     "identity missing",
			reader:   stubReader{humanity: vmodels.HumanityProofRecord{Root: "1"}, identityErr: notFound},
			kinds:    []vmodels.Kind{vmodels.KindIdentity},
			redirect: "/verify-self",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Chain{NewStore(tt.reader), Cached{}}.Load(context.Background())
			var missing *MissingError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, tt.kinds, missing.Kinds)
			assert.Equal(t, tt.redirect, missing.Redirect())
		})
	}
}

func TestChainStopsOnSourceFailure(t *testing.T) {
	boom := errors.New("connection refused")
	cached := Cached{HumanityRecord: &vmodels.HumanityProofRecord{Root: "9"}}

	_, err := Chain{NewStore(stubReader{humanityErr: boom}), cached}.Load(context.Background())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.ErrorIs(t, err, boom)
}
