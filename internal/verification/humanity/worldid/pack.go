package worldid

import (
	"fmt"
	"math/big"
	"strings"
)

// proofWords is the arity of an unpacked Groth16 proof.
const proofWords = 8

// PackProof returns the single hex string the cloud API expects from the
// proof elements a client submitted. One element is taken as already packed;
// eight elements are treated as the uint256 words of an unpacked proof and
// concatenated as 64-digit hex.
func PackProof(elements []string) (string, error) {
	switch len(elements) {
	case 1:
		p := strings.TrimSpace(elements[0])
		if p == "" {
			return "", fmt.Errorf("proof is empty")
		}
		return p, nil
	case proofWords:
		var b strings.Builder
		b.WriteString("0x")
		for i, e := range elements {
			word, ok := parseUint256(e)
			if !ok {
				return "", fmt.Errorf("proof word %d is not a uint256", i)
			}
			fmt.Fprintf(&b, "%064x", word)
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("proof must have 1 or %d elements, got %d", proofWords, len(elements))
	}
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func parseUint256(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	if s == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
		return nil, false
	}
	return v, true
}
