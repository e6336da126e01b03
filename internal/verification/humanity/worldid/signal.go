package worldid

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

var hexSignal = regexp.MustCompile(`^0x[0-9a-fA-F]*$`)

// SignalHash maps a signal onto the field element World ID expects:
// keccak256 of the signal bytes shifted right by 8 bits, as 0x-prefixed
// 64-digit hex. A 0x-prefixed hex signal (a wallet address) is hashed as the
// bytes it encodes, anything else as its UTF-8 bytes.
func SignalHash(signal string) string {
	input := []byte(signal)
	if hexSignal.MatchString(signal) {
		digits := strings.TrimPrefix(signal, "0x")
		if len(digits)%2 == 1 {
			digits = "0" + digits
		}
		decoded, err := hex.DecodeString(digits)
		if err == nil {
			input = decoded
		}
	}
	h := new(big.Int).SetBytes(crypto.Keccak256(input))
	h.Rsh(h, 8)
	return fmt.Sprintf("0x%064x", h)
}
