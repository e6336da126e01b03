package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record is what gets written to deployments/<network>-deployment.json. The
// contract address is stored under a contract specific key so frontends can
// keep reading worldTesting / videoRegistry.
type Record struct {
	Network   string
	Contract  string
	Key       string
	Address   string
	TxHash    string
	Deployer  string
	ChainID   int64
	Timestamp time.Time
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"network":   r.Network,
		"contract":  r.Contract,
		r.Key:       r.Address,
		"txHash":    r.TxHash,
		"deployer":  r.Deployer,
		"chainId":   r.ChainID,
		"timestamp": r.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	return json.Marshal(out)
}

// RecordPath returns the file a network's record is written to.
func RecordPath(dir, network string) string {
	return filepath.Join(dir, network+"-deployment.json")
}

// WriteRecord creates dir if needed and overwrites the network's record.
func WriteRecord(dir string, rec Record) (string, error) {
	if rec.Key == "" {
		return "", fmt.Errorf("record for %s has no address key", rec.Contract)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create deployments dir: %w", err)
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode deployment record: %w", err)
	}
	path := RecordPath(dir, rec.Network)
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write deployment record: %w", err)
	}
	return path, nil
}
