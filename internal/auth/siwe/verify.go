package siwe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrNonceMismatch    = errors.New("nonce mismatch")
	ErrAddressMismatch  = errors.New("address mismatch")
	ErrDomainMismatch   = errors.New("domain mismatch")
	ErrExpired          = errors.New("message expired")
	ErrNotYetValid      = errors.New("message not yet valid")
	ErrInvalidSignature = errors.New("invalid signature")
)

// erc1271Magic is bytes4(keccak256("isValidSignature(bytes32,bytes)")).
var erc1271Magic = []byte{0x16, 0x26, 0xba, 0x7e}

const erc1271ABI = `[{"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"magicValue","type":"bytes4"}],"stateMutability":"view","type":"function"}]`

var erc1271 = mustParseABI(erc1271ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractCaller runs read-only contract calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Payload is what the wallet returns after signing.
type Payload struct {
	Message   string
	Signature string
	Address   string
}

type Verifier struct {
	domain string
	caller ContractCaller
}

type Option func(*Verifier)

// WithDomain requires messages to name domain.
func WithDomain(domain string) Option {
	return func(v *Verifier) {
		v.domain = domain
	}
}

// WithContractCaller enables ERC-1271 verification for contract wallets.
func WithContractCaller(caller ContractCaller) Option {
	return func(v *Verifier) {
		v.caller = caller
	}
}

func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the message against nonce and now, then checks the signature:
// first as an EOA signature, then through ERC-1271 on the signing address.
func (v *Verifier) Verify(ctx context.Context, p Payload, nonce string, now time.Time) (*Message, error) {
	msg, err := ParseMessage(p.Message)
	if err != nil {
		return nil, err
	}
	if msg.Nonce != nonce {
		return nil, ErrNonceMismatch
	}
	if p.Address != "" && (!common.IsHexAddress(p.Address) || common.HexToAddress(p.Address) != msg.Address) {
		return nil, ErrAddressMismatch
	}
	if v.domain != "" && !strings.EqualFold(msg.Domain, v.domain) {
		return nil, ErrDomainMismatch
	}
	if msg.ExpirationTime != nil && !now.Before(*msg.ExpirationTime) {
		return nil, ErrExpired
	}
	if msg.NotBefore != nil && now.Before(*msg.NotBefore) {
		return nil, ErrNotYetValid
	}

	sig, err := hexutil.Decode(p.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	hash := accounts.TextHash([]byte(p.Message))

	if signer, ok := recoverSigner(hash, sig); ok && signer == msg.Address {
		return msg, nil
	}
	if v.caller == nil {
		return nil, ErrInvalidSignature
	}
	valid, err := v.isValidContractSignature(ctx, msg.Address, hash, sig)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, ErrInvalidSignature
	}
	return msg, nil
}

func recoverSigner(hash, sig []byte) (common.Address, bool) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, false
	}
	normalized := bytes.Clone(sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, false
	}
	return crypto.PubkeyToAddress(*pub), true
}

func (v *Verifier) isValidContractSignature(ctx context.Context, wallet common.Address, hash, sig []byte) (bool, error) {
	var digest [32]byte
	copy(digest[:], hash)
	data, err := erc1271.Pack("isValidSignature", digest, sig)
	if err != nil {
		return false, fmt.Errorf("pack isValidSignature: %w", err)
	}
	out, err := v.caller.CallContract(ctx, ethereum.CallMsg{To: &wallet, Data: data}, nil)
	if err != nil {
		// Calls to accounts without code revert; that is a rejection, not an outage.
		if strings.Contains(err.Error(), "execution reverted") {
			return false, nil
		}
		return false, fmt.Errorf("isValidSignature call: %w", err)
	}
	return len(out) >= 4 && bytes.Equal(out[:4], erc1271Magic), nil
}
