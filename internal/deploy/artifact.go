// Package deploy pushes the registry contracts to a chain, records where they
// landed and submits their source to an Etherscan-compatible explorer.
package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Artifact is a compiled contract as written by the Hardhat toolchain.
type Artifact struct {
	ContractName string
	SourceName   string
	ABI          abi.ABI
	Bytecode     []byte
	// BuildInfo is nil when the artifact has no debug file next to it.
	BuildInfo *BuildInfo
}

// BuildInfo carries what source verification needs.
type BuildInfo struct {
	CompilerVersion string
	Input           json.RawMessage
}

type hardhatArtifact struct {
	ContractName string          `json:"contractName"`
	SourceName   string          `json:"sourceName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

type hardhatDebug struct {
	BuildInfo string `json:"buildInfo"`
}

type hardhatBuildInfo struct {
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
}

// ArtifactPath is where Hardhat writes contract name from source file
// contracts/<name>.sol.
func ArtifactPath(artifactsDir, name string) string {
	return filepath.Join(artifactsDir, "contracts", name+".sol", name+".json")
}

// LoadArtifact reads a Hardhat artifact and, when present, its build info.
func LoadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var ha hardhatArtifact
	if err := json.Unmarshal(raw, &ha); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if ha.Bytecode == "" || ha.Bytecode == "0x" {
		return nil, fmt.Errorf("artifact %s has no bytecode (abstract contract or interface?)", path)
	}

	parsed, err := abi.JSON(strings.NewReader(string(ha.ABI)))
	if err != nil {
		return nil, fmt.Errorf("parse abi of %s: %w", ha.ContractName, err)
	}
	code, err := hexutil.Decode(ha.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("decode bytecode of %s: %w", ha.ContractName, err)
	}

	art := &Artifact{
		ContractName: ha.ContractName,
		SourceName:   ha.SourceName,
		ABI:          parsed,
		Bytecode:     code,
	}
	art.BuildInfo, err = loadBuildInfo(path)
	if err != nil {
		return nil, err
	}
	return art, nil
}

// loadBuildInfo follows <name>.dbg.json to the build info file.
func loadBuildInfo(artifactPath string) (*BuildInfo, error) {
	dbgPath := strings.TrimSuffix(artifactPath, ".json") + ".dbg.json"
	raw, err := os.ReadFile(dbgPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read debug file: %w", err)
	}
	var dbg hardhatDebug
	if err := json.Unmarshal(raw, &dbg); err != nil {
		return nil, fmt.Errorf("decode debug file %s: %w", dbgPath, err)
	}
	if dbg.BuildInfo == "" {
		return nil, nil
	}

	infoPath := filepath.Join(filepath.Dir(dbgPath), dbg.BuildInfo)
	raw, err = os.ReadFile(infoPath)
	if err != nil {
		return nil, fmt.Errorf("read build info: %w", err)
	}
	var bi hardhatBuildInfo
	if err := json.Unmarshal(raw, &bi); err != nil {
		return nil, fmt.Errorf("decode build info %s: %w", infoPath, err)
	}
	return &BuildInfo{CompilerVersion: "v" + strings.TrimPrefix(bi.SolcLongVersion, "v"), Input: bi.Input}, nil
}

// FullyQualifiedName is the sourceName:ContractName form explorers expect.
func (a *Artifact) FullyQualifiedName() string {
	if a.SourceName == "" {
		return a.ContractName
	}
	return a.SourceName + ":" + a.ContractName
}
