package handler

import (
	"strings"
	"time"

	"deepname/internal/mint/models"
	"deepname/internal/mint/sources"
	vmodels "deepname/internal/verification/models"
)

// mintRequest optionally carries the records the client kept locally. They
// are used only for kinds the server store does not have.
type mintRequest struct {
	Cached *cachedRecords `json:"cached,omitempty"`
}

type cachedRecords struct {
	Humanity *cachedHumanity `json:"humanity,omitempty"`
	Identity *cachedIdentity `json:"identity,omitempty"`
}

type cachedHumanity struct {
	Root          string   `json:"root"`
	NullifierHash string   `json:"nullifierHash"`
	Proof         []string `json:"proof"`
}

type cachedIdentity struct {
	Label          string `json:"label"`
	RootCommitment string `json:"self_root"`
}

func (r *mintRequest) Sanitize() {
	if r.Cached == nil {
		return
	}
	if h := r.Cached.Humanity; h != nil {
		h.Root = strings.TrimSpace(h.Root)
		h.NullifierHash = strings.TrimSpace(h.NullifierHash)
	}
	if id := r.Cached.Identity; id != nil {
		id.Label = strings.TrimSpace(id.Label)
		id.RootCommitment = strings.TrimSpace(id.RootCommitment)
	}
}

// sources turns the client copy into a fallback source. Empty cached records
// count as absent.
func (r *mintRequest) sources() sources.Cached {
	var out sources.Cached
	if r == nil || r.Cached == nil {
		return out
	}
	if h := r.Cached.Humanity; h != nil && h.Root != "" {
		out.HumanityRecord = &vmodels.HumanityProofRecord{
			Root:          h.Root,
			NullifierHash: h.NullifierHash,
			Proof:         h.Proof,
		}
	}
	if id := r.Cached.Identity; id != nil && id.Label != "" {
		out.IdentityRecord = &vmodels.IdentityAttributeRecord{
			Label:          id.Label,
			RootCommitment: id.RootCommitment,
		}
	}
	return out
}

type attemptResponse struct {
	ID            string    `json:"id"`
	State         string    `json:"state"`
	Name          string    `json:"name,omitempty"`
	Owner         string    `json:"owner"`
	NullifierHash string    `json:"nullifierHash,omitempty"`
	TxHash        string    `json:"txHash,omitempty"`
	Failure       string    `json:"failure,omitempty"`
	Message       string    `json:"message,omitempty"`
	Redirect      string    `json:"redirect,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func toAttemptResponse(a *models.Attempt) *attemptResponse {
	if a == nil {
		return nil
	}
	return &attemptResponse{
		ID:            a.ID.String(),
		State:         string(a.State),
		Name:          a.Name,
		Owner:         a.Owner,
		NullifierHash: a.NullifierHash,
		TxHash:        a.TxHash,
		Failure:       string(a.Failure),
		Message:       a.Message,
		Redirect:      a.Redirect,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

type mintFailure struct {
	Error            string           `json:"error"`
	ErrorDescription string           `json:"error_description,omitempty"`
	Detail           string           `json:"detail,omitempty"`
	Redirect         string           `json:"redirect,omitempty"`
	Attempt          *attemptResponse `json:"attempt,omitempty"`
}
