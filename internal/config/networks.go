package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed networks.yaml
var defaultNetworks []byte

// ErrUnknownNetwork is returned when a chain id has no entry in the table.
var ErrUnknownNetwork = errors.New("unknown network")

// Network describes one chain the pool can be provisioned on.
type Network struct {
	ChainID         int64  `yaml:"chain_id"`
	Name            string `yaml:"name"`
	EthUsdPriceFeed string `yaml:"eth_usd_price_feed"`
	Development     bool   `yaml:"development"`
	RPCURL          string `yaml:"rpc_url"`
}

// Networks is the chain table keyed by chain id.
type Networks map[int64]Network

type networkFile struct {
	Networks []Network `yaml:"networks"`
}

// LoadNetworks parses the built-in table and, when path is set, overlays the
// entries from that file. Entries in the file replace built-ins with the same
// chain id.
func LoadNetworks(path string) (Networks, error) {
	table := Networks{}
	if err := table.merge(defaultNetworks); err != nil {
		return nil, fmt.Errorf("parse built-in networks: %w", err)
	}
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read networks file: %w", err)
	}
	if err := table.merge(data); err != nil {
		return nil, fmt.Errorf("parse networks file: %w", err)
	}
	return table, nil
}

// Lookup returns the network for chainID.
func (n Networks) Lookup(chainID int64) (Network, error) {
	network, ok := n[chainID]
	if !ok {
		return Network{}, fmt.Errorf("%w: chain id %d", ErrUnknownNetwork, chainID)
	}
	return network, nil
}

func (n Networks) merge(data []byte) error {
	var file networkFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	for _, network := range file.Networks {
		if network.ChainID <= 0 {
			return fmt.Errorf("network %q: chain_id must be positive", network.Name)
		}
		n[network.ChainID] = network
	}
	return nil
}
