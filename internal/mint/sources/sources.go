// Package sources resolves the verification records a mint needs from an
// ordered list of places they may live.
package sources

import (
	"context"
	"strings"

	vmodels "deepname/internal/verification/models"
	dErrors "deepname/pkg/domain-errors"
)

// Source is one place verification records may be found. found is false when
// the source simply has nothing; err is reserved for failures.
type Source interface {
	Name() string
	Humanity(ctx context.Context) (rec vmodels.HumanityProofRecord, found bool, err error)
	Identity(ctx context.Context) (rec vmodels.IdentityAttributeRecord, found bool, err error)
}

// Redirects point the client at the flow that produces a missing record.
var Redirects = map[vmodels.Kind]string{
	vmodels.KindHumanity: "/verify-world",
	vmodels.KindIdentity: "/verify-self",
}

// Loaded holds both records and where each came from.
type Loaded struct {
	Humanity       vmodels.HumanityProofRecord
	HumanitySource string
	Identity       vmodels.IdentityAttributeRecord
	IdentitySource string
}

// MissingError reports kinds absent from every source.
type MissingError struct {
	Kinds []vmodels.Kind
}

func (e *MissingError) Error() string {
	names := make([]string, len(e.Kinds))
	for i, k := range e.Kinds {
		names[i] = k.String()
	}
	return "verification records missing: " + strings.Join(names, ",")
}

// Redirect names the flow to re-run first.
func (e *MissingError) Redirect() string {
	if len(e.Kinds) == 0 {
		return ""
	}
	return Redirects[e.Kinds[0]]
}

// Chain tries sources in order, per kind. The first source that has a record
// wins, so a later source never shadows an earlier one.
type Chain []Source

// Load resolves both kinds. A source failure stops the lookup rather than
// falling through to a less trusted source.
func (c Chain) Load(ctx context.Context) (*Loaded, error) {
	out := &Loaded{}
	var missing []vmodels.Kind

	for _, src := range c {
		rec, found, err := src.Humanity(ctx)
		if err != nil {
			return nil, sourceFailure(src, err)
		}
		if found {
			out.Humanity, out.HumanitySource = rec, src.Name()
			break
		}
	}
	if out.HumanitySource == "" {
		missing = append(missing, vmodels.KindHumanity)
	}

	for _, src := range c {
		rec, found, err := src.Identity(ctx)
		if err != nil {
			return nil, sourceFailure(src, err)
		}
		if found {
			out.Identity, out.IdentitySource = rec, src.Name()
			break
		}
	}
	if out.IdentitySource == "" {
		missing = append(missing, vmodels.KindIdentity)
	}

	if len(missing) > 0 {
		return out, &MissingError{Kinds: missing}
	}
	return out, nil
}

func sourceFailure(src Source, err error) error {
	return &dErrors.Error{
		Code:    dErrors.CodeUnavailable,
		Message: "failed to read verification records from " + src.Name(),
		Err:     err,
	}
}
