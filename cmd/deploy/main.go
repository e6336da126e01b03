// Command deploy publishes the registry contracts and records their addresses.
//
//	PRIVATE_KEY=0x... deploy contract resolver --network worldchain --rpc https://...
//	deploy verify resolver --network worldchain --address 0x...
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"deepname/internal/deploy"
)

var (
	network       string
	rpcURL        string
	chainID       int64
	artifactsDir  string
	outDir        string
	confirmations uint64
	timeout       time.Duration
	skipVerify    bool
	explorerURL   string
	explorerKey   string
	address       string
	resolver      = deploy.DefaultResolverParams()
)

var rootCmd = &cobra.Command{
	Use:           "deploy",
	Short:         "Deploy and verify DeepName contracts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var contractCmd = &cobra.Command{
	Use:       "contract <" + strings.Join(deploy.ContractNames(), "|") + ">",
	Short:     "Deploy a contract, write the deployment record and verify the source",
	Args:      cobra.ExactArgs(1),
	ValidArgs: deploy.ContractNames(),
	RunE:      runContract,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <" + strings.Join(deploy.ContractNames(), "|") + ">",
	Short: "Verify an already deployed contract on the explorer",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("deploy failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&network, "network", envOr("DEPLOY_NETWORK", "localhost"), "network name used for the record file and verification")
	pf.StringVar(&rpcURL, "rpc", envOr("CHAIN_RPC_URL", "http://127.0.0.1:8545"), "JSON-RPC endpoint")
	pf.Int64Var(&chainID, "chain-id", 0, "chain id (default: ask the node)")
	pf.StringVar(&artifactsDir, "artifacts", "artifacts", "Hardhat artifacts directory")
	pf.DurationVar(&timeout, "timeout", 10*time.Minute, "overall deadline")
	pf.StringVar(&explorerURL, "explorer-url", envOr("ETHERSCAN_API_URL", "https://api.etherscan.io/v2/api"), "Etherscan-compatible API")
	pf.StringVar(&explorerKey, "explorer-key", os.Getenv("ETHERSCAN_API_KEY"), "explorer API key")
	pf.StringVar(&resolver.WorldID, "world-id", resolver.WorldID, "World ID router address")
	pf.StringVar(&resolver.AppID, "app-id", resolver.AppID, "World ID app id")
	pf.StringVar(&resolver.Action, "action", resolver.Action, "World ID action")
	pf.StringVar(&resolver.InputRegistry, "input-registry", resolver.InputRegistry, "registry that receives verified names")
	pf.StringVar(&resolver.Owner, "owner", "", "resolver owner (default: deployer)")

	contractCmd.Flags().StringVar(&outDir, "out", "deployments", "directory for <network>-deployment.json")
	contractCmd.Flags().Uint64Var(&confirmations, "confirmations", 2, "blocks to wait for before verifying")
	contractCmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "do not submit source to the explorer")

	verifyCmd.Flags().StringVar(&address, "address", "", "deployed contract address")
	verifyCmd.Flags().StringVar(&resolver.Owner, "deployer", "", "account that deployed the resolver")
	_ = verifyCmd.MarkFlagRequired("address")

	rootCmd.AddCommand(contractCmd, verifyCmd)
}

func runContract(cmd *cobra.Command, args []string) error {
	target, ok := deploy.Contracts(resolver)[args[0]]
	if !ok {
		return fmt.Errorf("unknown contract %q", args[0])
	}
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	client, id, err := dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	deployer, err := deploy.NewDeployer(client, os.Getenv("PRIVATE_KEY"), id,
		deploy.WithConfirmations(confirmations),
		deploy.WithLogger(slog.Default()),
	)
	if err != nil {
		return err
	}
	art, err := deploy.LoadArtifact(deploy.ArtifactPath(artifactsDir, target.Name))
	if err != nil {
		return err
	}
	ctorArgs, err := target.Args(deployer.Address())
	if err != nil {
		return err
	}

	balance, err := deployer.Balance(ctx)
	if err != nil {
		return fmt.Errorf("read deployer balance: %w", err)
	}
	slog.Info("deploying",
		"contract", target.Name,
		"network", network,
		"deployer", deployer.Address().Hex(),
		"balance_wei", balance.String(),
	)

	res, err := deployer.Deploy(ctx, art, ctorArgs...)
	if err != nil {
		return err
	}
	path, err := deploy.WriteRecord(outDir, deploy.Record{
		Network:   network,
		Contract:  target.Name,
		Key:       target.Key,
		Address:   res.Address.Hex(),
		TxHash:    res.TxHash.Hex(),
		Deployer:  deployer.Address().Hex(),
		ChainID:   id.Int64(),
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}
	slog.Info("deployed", "contract", target.Name, "address", res.Address.Hex(), "record", path)

	if skipVerify {
		return nil
	}
	verifier := deploy.NewVerifier(explorerURL, explorerKey, id.Int64(), deploy.WithVerifierLogger(slog.Default()))
	if err := verifier.Verify(ctx, network, art, res.Address, res.Args); err != nil {
		// The contract is live either way.
		logVerifyResult(err)
		return nil
	}
	slog.Info("contract verified", "address", res.Address.Hex())
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	target, ok := deploy.Contracts(resolver)[args[0]]
	if !ok {
		return fmt.Errorf("unknown contract %q", args[0])
	}
	if !common.IsHexAddress(address) {
		return fmt.Errorf("address %q is not valid", address)
	}
	if target.Key == "worldTesting" && resolver.Owner == "" {
		return errors.New("--deployer is required to rebuild resolver constructor arguments")
	}
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	id := big.NewInt(chainID)
	if chainID == 0 {
		client, dialed, err := dial(ctx)
		if err != nil {
			return err
		}
		client.Close()
		id = dialed
	}

	art, err := deploy.LoadArtifact(deploy.ArtifactPath(artifactsDir, target.Name))
	if err != nil {
		return err
	}
	ctorArgs, err := target.Args(common.HexToAddress(resolver.Owner))
	if err != nil {
		return err
	}
	verifier := deploy.NewVerifier(explorerURL, explorerKey, id.Int64(), deploy.WithVerifierLogger(slog.Default()))
	if err := verifier.Verify(ctx, network, art, common.HexToAddress(address), ctorArgs); err != nil {
		if errors.Is(err, deploy.ErrVerificationSkipped) {
			logVerifyResult(err)
			return nil
		}
		return err
	}
	slog.Info("contract verified", "address", address)
	return nil
}

func dial(ctx context.Context) (*ethclient.Client, *big.Int, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", rpcURL, err)
	}
	if chainID > 0 {
		return client, big.NewInt(chainID), nil
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("read chain id: %w", err)
	}
	return client, id, nil
}

func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func logVerifyResult(err error) {
	if errors.Is(err, deploy.ErrVerificationSkipped) {
		slog.Info("skipping verification", "network", network)
		return
	}
	slog.Warn("verification failed", "network", network, "error", err)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
