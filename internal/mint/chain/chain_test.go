package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"deepname/internal/mint/models"
	"deepname/internal/platform/config"
	dErrors "deepname/pkg/domain-errors"
)

// Init code that deploys a runtime which accepts any call and stops.
var acceptAllCode = hexutil.MustDecode("0x6001600c60003960016000f300")

// Init code that deploys a runtime which reverts every call.
var revertAllCode = hexutil.MustDecode("0x6005600c60003960056000f360006000fd")

func TestClassifyChainError(t *testing.T) {
	tests := []struct {
		err  error
		want models.Failure
	}{
		{nil, models.FailureNone},
		{context.DeadlineExceeded, models.FailureTimeout},
		{fmt.Errorf("wait: %w", context.DeadlineExceeded), models.FailureTimeout},
		{ErrReverted, models.FailureReverted},
		{errors.New("User rejected the request"), models.FailureUserRejected},
		{errors.New("MetaMask Tx Signature: User denied transaction signature"), models.FailureUserRejected},
		{errors.New("insufficient funds for gas * price + value"), models.FailureInsufficient},
		{errors.New("nonce too low: next nonce 5, tx nonce 4"), models.FailureNonceConflict},
		{errors.New("replacement transaction underpriced"), models.FailureNonceConflict},
		{errors.New("already known"), models.FailureNonceConflict},
		{errors.New("failed to estimate gas needed: execution reverted"), models.FailureGasEstimation},
		{errors.New("gas required exceeds allowance (30000000)"), models.FailureGasEstimation},
		{errors.New("execution reverted: name taken"), models.FailureReverted},
		{errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), models.FailureUnavailable},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyChainError(tt.err))
		})
	}
}

func TestNewRegistrarRejectsBadConfiguration(t *testing.T) {
	good := config.ChainConfig{
		PrivateKey:      "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		RegistryAddress: "0x00000000000000000000000000000000000000aa",
	}

	tests := []struct {
		name    string
		mutate  func(*config.ChainConfig)
		chainID *big.Int
		detail  string
	}{
		{"bad key", func(c *config.ChainConfig) { c.PrivateKey = "nope" }, big.NewInt(1), "PRIVATE_KEY"},
		{"bad address", func(c *config.ChainConfig) { c.RegistryAddress = "0x12" }, big.NewInt(1), "REGISTRY_ADDRESS"},
		{"no chain id", func(*config.ChainConfig) {}, nil, "CHAIN_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := good
			tt.mutate(&cfg)
			_, err := NewRegistrar(nil, cfg, tt.chainID)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))
			assert.Equal(t, tt.detail, dErrors.DetailOf(err))
		})
	}
}

type SimulatedRegistrarSuite struct {
	suite.Suite
	backend *simulated.Backend
	client  simulated.Client
	cfg     config.ChainConfig
	chainID *big.Int
}

func TestSimulatedRegistrarSuite(t *testing.T) {
	suite.Run(t, new(SimulatedRegistrarSuite))
}

func (s *SimulatedRegistrarSuite) SetupTest() {
	key, err := crypto.GenerateKey()
	s.Require().NoError(err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	s.backend = simulated.NewBackend(types.GenesisAlloc{
		from: {Balance: new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))},
	})
	s.client = s.backend.Client()

	s.chainID, err = s.client.ChainID(context.Background())
	s.Require().NoError(err)
	s.cfg = config.ChainConfig{
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
		GasLimit:   1_500_000,
	}
}

func (s *SimulatedRegistrarSuite) TearDownTest() {
	s.Require().NoError(s.backend.Close())
}

func (s *SimulatedRegistrarSuite) deploy(code []byte) common.Address {
	key, err := crypto.HexToECDSA(s.cfg.PrivateKey[2:])
	s.Require().NoError(err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, s.chainID)
	s.Require().NoError(err)

	addr, _, _, err := bind.DeployContract(opts, abi.ABI{}, code, s.client)
	s.Require().NoError(err)
	s.backend.Commit()
	return addr
}

func (s *SimulatedRegistrarSuite) request() models.Request {
	var words [models.ProofWordCount]*big.Int
	for i := range words {
		words[i] = big.NewInt(int64(i + 1))
	}
	return models.Request{
		Name:           "alice smith",
		Owner:          common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		HumanityRoot:   big.NewInt(11),
		NullifierHash:  big.NewInt(22),
		ProofWords:     words,
		RootCommitment: big.NewInt(33),
	}
}

func (s *SimulatedRegistrarSuite) TestSubmitAndConfirm() {
	s.cfg.RegistryAddress = s.deploy(acceptAllCode).Hex()
	reg, err := NewRegistrar(s.client, s.cfg, s.chainID)
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := reg.Submit(ctx, s.request())
	s.Require().NoError(err)
	s.Equal(s.cfg.GasLimit, tx.Gas())
	s.Equal(common.HexToAddress(s.cfg.RegistryAddress), *tx.To())

	s.backend.Commit()
	receipt, err := reg.WaitConfirmed(ctx, tx)
	s.Require().NoError(err)
	s.Equal(tx.Hash(), receipt.TxHash)
}

func (s *SimulatedRegistrarSuite) TestRevertedReceipt() {
	s.cfg.RegistryAddress = s.deploy(revertAllCode).Hex()
	reg, err := NewRegistrar(s.client, s.cfg, s.chainID)
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := reg.Submit(ctx, s.request())
	s.Require().NoError(err)
	s.backend.Commit()

	receipt, err := reg.WaitConfirmed(ctx, tx)
	s.ErrorIs(err, ErrReverted)
	s.Require().NotNil(receipt)
	s.Equal(models.FailureReverted, ClassifyChainError(err))
}

func (s *SimulatedRegistrarSuite) TestConfirmTimesOutWhenNotMined() {
	s.cfg.RegistryAddress = s.deploy(acceptAllCode).Hex()
	reg, err := NewRegistrar(s.client, s.cfg, s.chainID)
	s.Require().NoError(err)

	tx, err := reg.Submit(context.Background(), s.request())
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = reg.WaitConfirmed(ctx, tx)
	s.Equal(models.FailureTimeout, ClassifyChainError(err))
}

func (s *SimulatedRegistrarSuite) TestConcurrentSubmitsGetConsecutiveNonces() {
	s.cfg.RegistryAddress = s.deploy(acceptAllCode).Hex()
	reg, err := NewRegistrar(s.client, s.cfg, s.chainID)
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const mints = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		txs  []*types.Transaction
		errs []error
	)
	for range mints {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := reg.Submit(ctx, s.request())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			txs = append(txs, tx)
		}()
	}
	wg.Wait()

	s.Require().Empty(errs)
	s.Require().Len(txs, mints)
	seen := make(map[uint64]bool, mints)
	for _, tx := range txs {
		seen[tx.Nonce()] = true
	}
	// Nonce 0 went to the deployment.
	for n := uint64(1); n <= mints; n++ {
		s.True(seen[n], "nonce %d not used", n)
	}

	s.backend.Commit()
	s.backend.Commit()
	pending, err := s.client.PendingNonceAt(ctx, reg.From())
	s.Require().NoError(err)
	s.Equal(uint64(mints+1), pending)
}

func (s *SimulatedRegistrarSuite) TestSubmitResyncsAfterNonceConflict() {
	s.cfg.RegistryAddress = s.deploy(acceptAllCode).Hex()
	reg, err := NewRegistrar(s.client, s.cfg, s.chainID)
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first, err := reg.Submit(ctx, s.request())
	s.Require().NoError(err)

	// Another sender on the same key takes the next nonce behind our back.
	s.deploy(acceptAllCode)

	_, err = reg.Submit(ctx, s.request())
	s.Require().Error(err)
	s.Equal(models.FailureNonceConflict, ClassifyChainError(err))

	next, err := reg.Submit(ctx, s.request())
	s.Require().NoError(err)
	s.Equal(first.Nonce()+2, next.Nonce())
}
