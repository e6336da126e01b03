package selfid

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// nameFields are the credential subject keys that contribute to a label,
// in the order they are joined.
var nameFields = []string{
	"name",
	"given_name",
	"first_name",
	"middle_name",
	"family_name",
	"last_name",
	"surname",
}

// CredentialSubject is the disclosed attribute set returned by the verifier.
// Values keep their JSON form; only the name-like fields and the merkle root
// are interpreted.
type CredentialSubject map[string]json.RawMessage

// Label joins the name-like fields with single spaces. A field may be a string
// or an array of strings. Empty values are skipped.
func (c CredentialSubject) Label() string {
	var parts []string
	for _, key := range nameFields {
		raw, ok := c[key]
		if !ok {
			continue
		}
		for _, v := range stringsOf(raw) {
			parts = append(parts, strings.Fields(v)...)
		}
	}
	return strings.Join(parts, " ")
}

// MerkleRoot returns the subject's merkle root and whether it was present.
// Numbers and strings are both accepted.
func (c CredentialSubject) MerkleRoot() (string, bool) {
	raw, ok := c["merkle_root"]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func stringsOf(raw json.RawMessage) []string {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

// String renders the subject for logs without its attribute values.
func (c CredentialSubject) String() string {
	return fmt.Sprintf("CredentialSubject%v", slices.Sorted(maps.Keys(c)))
}
