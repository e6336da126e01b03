// Package chain submits name registrations to the on-chain registry and
// classifies what went wrong when they fail.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"deepname/internal/mint/models"
	"deepname/internal/platform/config"
	dErrors "deepname/pkg/domain-errors"
)

const registryABI = `[{
	"type": "function",
	"name": "registerWithProof",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "name", "type": "string"},
		{"name": "owner", "type": "address"},
		{"name": "root", "type": "uint256"},
		{"name": "nullifierHash", "type": "uint256"},
		{"name": "proof", "type": "uint256[8]"},
		{"name": "selfRoot", "type": "uint256"}
	],
	"outputs": []
}]`

// ErrReverted means the transaction was mined with a failed status.
var ErrReverted = errors.New("transaction reverted")

// Backend is what a Registrar needs from an RPC client. *ethclient.Client and
// the simulated backend client both satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Registrar signs and sends registerWithProof transactions from the server
// wallet. Every transaction comes from the same account, so Submit hands out
// nonces itself instead of asking the node for each one.
type Registrar struct {
	backend  Backend
	contract *bind.BoundContract
	address  common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasLimit uint64

	mu     sync.Mutex
	nonce  uint64
	synced bool
}

// NewRegistrar validates the sender key and registry address. Bad values are
// configuration errors, not chain errors.
func NewRegistrar(backend Backend, cfg config.ChainConfig, chainID *big.Int) (*Registrar, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, dErrors.NewWithDetail(dErrors.CodeConfiguration, "invalid PRIVATE_KEY", "PRIVATE_KEY")
	}
	if !common.IsHexAddress(cfg.RegistryAddress) {
		return nil, dErrors.NewWithDetail(dErrors.CodeConfiguration, "invalid REGISTRY_ADDRESS", "REGISTRY_ADDRESS")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, dErrors.NewWithDetail(dErrors.CodeConfiguration, "chain id is not set", "CHAIN_ID")
	}
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}

	address := common.HexToAddress(cfg.RegistryAddress)
	return &Registrar{
		backend:  backend,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		address:  address,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  new(big.Int).Set(chainID),
		gasLimit: cfg.GasLimit,
	}, nil
}

// From is the server wallet that pays for registrations.
func (r *Registrar) From() common.Address { return r.from }

// Submit signs and broadcasts the registration. It returns once the node has
// accepted the transaction. Calls are serialized so concurrent mints get
// consecutive nonces. After a failed send the next call re-reads the pending
// nonce from the node.
func (r *Registrar) Submit(ctx context.Context, req models.Request) (*types.Transaction, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(r.key, r.chainID)
	if err != nil {
		return nil, fmt.Errorf("create transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = r.gasLimit

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.synced {
		pending, err := r.backend.PendingNonceAt(ctx, r.from)
		if err != nil {
			return nil, fmt.Errorf("read pending nonce: %w", err)
		}
		r.nonce, r.synced = pending, true
	}
	opts.Nonce = new(big.Int).SetUint64(r.nonce)

	tx, err := r.contract.Transact(opts, "registerWithProof",
		req.Name,
		req.Owner,
		req.HumanityRoot,
		req.NullifierHash,
		req.ProofWords,
		req.RootCommitment,
	)
	if err != nil {
		r.synced = false
		return nil, err
	}
	r.nonce++
	return tx, nil
}

// WaitConfirmed blocks until tx is mined. A failed receipt status yields
// ErrReverted alongside the receipt.
func (r *Registrar) WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, r.backend, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, ErrReverted
	}
	return receipt, nil
}
