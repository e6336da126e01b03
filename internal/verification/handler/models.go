package handler

import (
	"encoding/json"
	"strings"

	"deepname/internal/verification/humanity/worldid"
	dErrors "deepname/pkg/domain-errors"
)

// idkitResult is the success result the World ID widget hands the page.
type idkitResult struct {
	Proof             string `json:"proof"`
	MerkleRoot        string `json:"merkle_root"`
	NullifierHash     string `json:"nullifier_hash"`
	VerificationLevel string `json:"verification_level"`
}

func (p *idkitResult) proof() worldid.Proof {
	if p == nil {
		return worldid.Proof{}
	}
	return worldid.Proof{
		MerkleRoot:        p.MerkleRoot,
		NullifierHash:     p.NullifierHash,
		Proof:             p.Proof,
		VerificationLevel: p.VerificationLevel,
	}
}

type verifyRequest struct {
	Payload *idkitResult `json:"payload"`
	Action  string       `json:"action"`
	Signal  string       `json:"signal"`
}

func (r *verifyRequest) Normalize() {
	r.Action = strings.TrimSpace(r.Action)
	r.Signal = strings.TrimSpace(r.Signal)
	if r.Payload != nil && r.Payload.VerificationLevel == "" {
		r.Payload.VerificationLevel = defaultVerificationLevel
	}
}

func (r *verifyRequest) Validate() error {
	if r.Payload == nil {
		return dErrors.NewWithDetail(dErrors.CodeMissingField, "payload is required", "payload")
	}
	return nil
}

const defaultVerificationLevel = "orb"

// proofElements accepts either one proof string or an array of them.
type proofElements []string

func (p *proofElements) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*p = proofElements{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*p = many
	return nil
}

type worldIDRequest struct {
	Root              string        `json:"root"`
	NullifierHash     string        `json:"nullifierHash"`
	Proof             proofElements `json:"proof"`
	VerificationLevel string        `json:"verificationLevel"`
	Signal            string        `json:"signal"`

	packed string
}

func (r *worldIDRequest) Normalize() {
	r.Root = strings.TrimSpace(r.Root)
	r.NullifierHash = strings.TrimSpace(r.NullifierHash)
	r.Signal = strings.TrimSpace(r.Signal)
	if r.VerificationLevel == "" {
		r.VerificationLevel = defaultVerificationLevel
	}
}

func (r *worldIDRequest) Validate() error {
	switch {
	case r.Root == "":
		return dErrors.NewWithDetail(dErrors.CodeMissingField, "root is required", "root")
	case r.NullifierHash == "":
		return dErrors.NewWithDetail(dErrors.CodeMissingField, "nullifierHash is required", "nullifierHash")
	case len(r.Proof) == 0:
		return dErrors.NewWithDetail(dErrors.CodeMissingField, "proof is required", "proof")
	}
	packed, err := worldid.PackProof(r.Proof)
	if err != nil {
		return dErrors.NewWithDetail(dErrors.CodeValidation, err.Error(), "proof")
	}
	r.packed = packed
	return nil
}

type selfRequest struct {
	Proof         json.RawMessage `json:"proof"`
	PublicSignals []string        `json:"publicSignals"`
}

func (r *selfRequest) Validate() error {
	if len(r.Proof) == 0 || string(r.Proof) == "null" || len(r.PublicSignals) == 0 {
		return dErrors.NewWithDetail(dErrors.CodeMissingField, "Proof and publicSignals are required", "proof")
	}
	return nil
}

type verifySuccess struct {
	Success   bool            `json:"success"`
	VerifyRes *worldid.Result `json:"verifyRes"`
	Status    int             `json:"status"`
}

type verifyFailure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Status  int    `json:"status"`
}

type statusSuccess struct {
	Status string `json:"status"`
	Result bool   `json:"result"`
}

type statusFailure struct {
	Status  string `json:"status"`
	Result  bool   `json:"result"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type selfSuccess struct {
	Status            string `json:"status"`
	Result            bool   `json:"result"`
	CredentialSubject any    `json:"credentialSubject"`
}

type recordResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type recordFailure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type humanityData struct {
	Root          string   `json:"root"`
	NullifierHash string   `json:"nullifierHash"`
	Proof         []string `json:"proof"`
}

type identityData struct {
	Label    string `json:"label"`
	SelfRoot string `json:"self_root"`
}
