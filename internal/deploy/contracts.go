package deploy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ResolverParams are the WorldENSResolver constructor arguments. Owner
// defaults to the deployer.
type ResolverParams struct {
	WorldID       string
	AppID         string
	Action        string
	InputRegistry string
	Owner         string
}

// DefaultResolverParams targets the World ID router on World Chain.
func DefaultResolverParams() ResolverParams {
	return ResolverParams{
		WorldID:       "0x17B354dD2595411ff79041f930e491A4Df39A278",
		AppID:         "app_8fc33d2a1f61cc65a02c3db25559bf25",
		Action:        "proof-of-humanity",
		InputRegistry: "0x2565b1f8bfd174d3acb67fd1a377b8014350dc26",
	}
}

// Contract is one deployable target.
type Contract struct {
	Name string
	// Key names the address field in the deployment record.
	Key  string
	Args func(deployer common.Address) ([]any, error)
}

// Contracts returns the known targets by CLI name.
func Contracts(params ResolverParams) map[string]Contract {
	return map[string]Contract{
		"resolver": {
			Name: "WorldENSResolver",
			Key:  "worldTesting",
			Args: func(deployer common.Address) ([]any, error) {
				return params.args(deployer)
			},
		},
		"video": {
			Name: "VideoRegistry",
			Key:  "videoRegistry",
			Args: func(common.Address) ([]any, error) { return nil, nil },
		},
	}
}

// ContractNames lists the CLI names, sorted.
func ContractNames() []string {
	names := make([]string, 0, 2)
	for n := range Contracts(ResolverParams{}) {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (p ResolverParams) args(deployer common.Address) ([]any, error) {
	for field, v := range map[string]string{"world-id": p.WorldID, "input-registry": p.InputRegistry} {
		if !common.IsHexAddress(v) {
			return nil, fmt.Errorf("%s %q is not an address", field, v)
		}
	}
	if strings.TrimSpace(p.AppID) == "" || strings.TrimSpace(p.Action) == "" {
		return nil, fmt.Errorf("app-id and action are required")
	}
	owner := deployer
	if p.Owner != "" {
		if !common.IsHexAddress(p.Owner) {
			return nil, fmt.Errorf("owner %q is not an address", p.Owner)
		}
		owner = common.HexToAddress(p.Owner)
	}
	return []any{
		common.HexToAddress(p.WorldID),
		p.AppID,
		p.Action,
		common.HexToAddress(p.InputRegistry),
		owner,
	}, nil
}
