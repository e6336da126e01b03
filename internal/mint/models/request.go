package models

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	vmodels "deepname/internal/verification/models"
	dErrors "deepname/pkg/domain-errors"
)

// ProofWordCount is the fixed arity of the on-chain proof argument.
const ProofWordCount = 8

const wordHexLen = 64

// Request carries the registerWithProof arguments.
type Request struct {
	Name           string
	Owner          common.Address
	HumanityRoot   *big.Int
	NullifierHash  *big.Int
	ProofWords     [ProofWordCount]*big.Int
	RootCommitment *big.Int
}

// DeriveName lower-cases the first two whitespace tokens of label and joins
// them with a single space.
func DeriveName(label string) string {
	tokens := strings.Fields(label)
	if len(tokens) > 2 {
		tokens = tokens[:2]
	}
	return strings.ToLower(strings.Join(tokens, " "))
}

// ProofWords splits a hex proof into eight 32-byte words. Each 64-character
// segment is right-padded with zeros; segments past the end are zero and
// anything beyond eight segments is ignored.
func ProofWords(proof string) ([ProofWordCount]*big.Int, error) {
	var words [ProofWordCount]*big.Int
	hex := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(proof), "0x"), "0X")
	for i := range words {
		start := i * wordHexLen
		if start >= len(hex) {
			words[i] = new(big.Int)
			continue
		}
		seg := hex[start:min(start+wordHexLen, len(hex))]
		seg += strings.Repeat("0", wordHexLen-len(seg))
		w, ok := new(big.Int).SetString(seg, 16)
		if !ok {
			return words, fmt.Errorf("proof segment %d is not hex", i)
		}
		words[i] = w
	}
	return words, nil
}

// parseUint reads a decimal or 0x-prefixed hex integer.
func parseUint(v string) (*big.Int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, false
	}
	n, ok := new(big.Int).SetString(v, 0)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}

func missing(field string) error {
	return dErrors.NewWithDetail(dErrors.CodeMissingField, field+" is required", field)
}

func invalid(field string, err error) error {
	msg := field + " is not a valid integer"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", field, err)
	}
	return dErrors.NewWithDetail(dErrors.CodeValidation, msg, field)
}

// BuildRequest derives the chain call arguments and rejects any empty one,
// naming it in the error. An absent proof is sent as eight zero words.
func BuildRequest(owner string, h vmodels.HumanityProofRecord, id vmodels.IdentityAttributeRecord) (Request, error) {
	var req Request

	switch {
	case strings.TrimSpace(h.Root) == "":
		return req, missing("root")
	case strings.TrimSpace(h.NullifierHash) == "":
		return req, missing("nullifierHash")
	case strings.TrimSpace(id.RootCommitment) == "":
		return req, missing("rootCommitment")
	case strings.TrimSpace(owner) == "":
		return req, missing("owner")
	}
	if !common.IsHexAddress(owner) {
		return req, invalid("owner", fmt.Errorf("not an address"))
	}
	req.Owner = common.HexToAddress(owner)

	req.Name = DeriveName(id.Label)
	if req.Name == "" {
		return req, missing("name")
	}

	var ok bool
	if req.HumanityRoot, ok = parseUint(h.Root); !ok {
		return req, invalid("root", nil)
	}
	if req.NullifierHash, ok = parseUint(h.NullifierHash); !ok {
		return req, invalid("nullifierHash", nil)
	}
	if req.RootCommitment, ok = parseUint(id.RootCommitment); !ok {
		return req, invalid("rootCommitment", nil)
	}
	var proof string
	if len(h.Proof) > 0 {
		proof = h.Proof[0]
	}
	words, err := ProofWords(proof)
	if err != nil {
		return req, invalid("proof", err)
	}
	req.ProofWords = words
	return req, nil
}
