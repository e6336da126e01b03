package selfid

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// UserIdentifierIndex is the position of the user identifier among the
// disclosure circuit's public signals.
const UserIdentifierIndex = 20

// UserIDType selects how the user identifier signal is rendered.
type UserIDType string

const (
	UserIDHex  UserIDType = "hex"
	UserIDUUID UserIDType = "uuid"
)

// UserIdentifier extracts the subject identifier from publicSignals and
// renders it as a 0x-prefixed 20-byte address (hex) or a UUID (uuid).
func UserIdentifier(publicSignals []string, idType UserIDType) (string, error) {
	if len(publicSignals) <= UserIdentifierIndex {
		return "", fmt.Errorf("public signals has %d entries, need more than %d", len(publicSignals), UserIdentifierIndex)
	}
	v, ok := parseSignal(publicSignals[UserIdentifierIndex])
	if !ok {
		return "", fmt.Errorf("user identifier signal is not an integer")
	}

	switch idType {
	case UserIDHex:
		return "0x" + leftPad(v.Text(16), 40), nil
	case UserIDUUID:
		if v.BitLen() > 128 {
			return "", fmt.Errorf("user identifier does not fit a uuid")
		}
		var raw [16]byte
		v.FillBytes(raw[:])
		id, err := uuid.FromBytes(raw[:])
		if err != nil {
			return "", err
		}
		return id.String(), nil
	default:
		return "", fmt.Errorf("unknown user id type %q", idType)
	}
}

func parseSignal(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	if s == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

func leftPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}
