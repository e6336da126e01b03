package deploy

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Backend is the chain access a deployment needs. *ethclient.Client and the
// simulated backend client both satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Result is the outcome of one deployment.
type Result struct {
	Address     common.Address
	TxHash      common.Hash
	BlockNumber uint64
	// Args are the constructor arguments as sent.
	Args []any
}

// Deployer sends contract creation transactions from one key.
type Deployer struct {
	backend       Backend
	key           *ecdsa.PrivateKey
	chainID       *big.Int
	confirmations uint64
	pollInterval  time.Duration
	logger        *slog.Logger
}

type Option func(*Deployer)

// WithConfirmations sets how many blocks must sit on top of the deployment
// block before Deploy returns. Zero returns as soon as it is mined.
func WithConfirmations(n uint64) Option {
	return func(d *Deployer) { d.confirmations = n }
}

func WithPollInterval(interval time.Duration) Option {
	return func(d *Deployer) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Deployer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDeployer parses a hex private key (with or without 0x) and binds it to
// chainID.
func NewDeployer(backend Backend, privateKey string, chainID *big.Int, opts ...Option) (*Deployer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid deployer key: %w", err)
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain id %v", chainID)
	}
	d := &Deployer{
		backend:       backend,
		key:           key,
		chainID:       chainID,
		confirmations: 2,
		pollInterval:  2 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Address is the deployer account.
func (d *Deployer) Address() common.Address {
	return crypto.PubkeyToAddress(d.key.PublicKey)
}

// Balance reports the deployer balance at the latest block.
func (d *Deployer) Balance(ctx context.Context) (*big.Int, error) {
	return d.backend.BalanceAt(ctx, d.Address(), nil)
}

// Deploy creates the contract, waits for it to be mined and then for the
// configured number of confirmations.
func (d *Deployer) Deploy(ctx context.Context, art *Artifact, args ...any) (*Result, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(d.key, d.chainID)
	if err != nil {
		return nil, fmt.Errorf("create transactor: %w", err)
	}
	auth.Context = ctx

	addr, tx, _, err := bind.DeployContract(auth, art.ABI, art.Bytecode, d.backend, args...)
	if err != nil {
		return nil, fmt.Errorf("deploy %s: %w", art.ContractName, err)
	}
	d.logger.Info("deployment submitted",
		"contract", art.ContractName,
		"tx_hash", tx.Hash().Hex(),
		"address", addr.Hex(),
	)

	receipt, err := bind.WaitMined(ctx, d.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s deployment: %w", art.ContractName, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("deploy %s: creation transaction %s reverted", art.ContractName, tx.Hash().Hex())
	}
	if err := d.waitConfirmations(ctx, receipt.BlockNumber.Uint64()); err != nil {
		return nil, err
	}

	return &Result{
		Address:     receipt.ContractAddress,
		TxHash:      tx.Hash(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Args:        args,
	}, nil
}

func (d *Deployer) waitConfirmations(ctx context.Context, minedAt uint64) error {
	if d.confirmations <= 1 {
		return nil
	}
	// The mined block itself counts as the first confirmation.
	target := minedAt + d.confirmations - 1
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		head, err := d.backend.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("read block number: %w", err)
		}
		if head >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d confirmations: %w", d.confirmations, ctx.Err())
		case <-ticker.C:
		}
	}
}
