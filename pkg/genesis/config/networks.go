package config

import (
	"fmt"
)

// ShannonsPerCKB is the number of shannons in one CKB
const ShannonsPerCKB uint64 = 100_000_000

// Lock script code hashes, both referenced by type
const (
	SighashCodeHash  = "0x9bd7e06f3ecf4be0f2fcd2188b23f1b9fcc88e5d4b65a8637b17723bbda3cce8"
	MultisigCodeHash = "0x5c5069eb0857efc65e1bca0c07df34c31663b3622fd3876c876320fc9634e2a8"
	HashTypeType     = "type"
	HashTypeData     = "data"
)

// Burn cell lock. The zero code hash makes the cell unspendable.
const (
	BurnCodeHash = "0x0000000000000000000000000000000000000000000000000000000000000000"
	BurnArgs     = "0x62e907b15cbf27d5425399ebf6f0fb50ebb88f18"
)

// NetworkConfig contains the fixed parameters of a genesis
type NetworkConfig struct {
	Name string // chain spec name
	HRP  string // Human-readable part for addresses

	// Supply, in shannons
	TotalSupply uint64
	// Shares of the total supply as numerator/denominator pairs
	BurnShare        [2]uint64
	ImportedShare    [2]uint64
	FoundationShare  [2]uint64
	CompetitionShare [2]uint64

	FoundationAddress     string
	FoundationSince       string
	TestnetReserveAddress string
	// FoundationSpent is what the foundation already paid for system cells, in CKB
	FoundationSpent uint64

	// Defaults of the rendered spec before the last testnet header is known
	DefaultTimestamp     uint64
	DefaultCompactTarget uint32
	DefaultEpochLength   uint64

	// Chain observation of the source network
	Confirmations uint64
	EpochAvgCount uint64
	DefaultRPCURL string
}

// Networks contains predefined network configurations
var Networks = map[string]*NetworkConfig{
	"lina": {
		Name:                  "ckb",
		HRP:                   "ckb",
		TotalSupply:           33_600_000_000 * ShannonsPerCKB,
		BurnShare:             [2]uint64{1, 4},
		ImportedShare:         [2]uint64{725, 1000},
		FoundationShare:       [2]uint64{2, 100},
		CompetitionShare:      [2]uint64{1, 200},
		FoundationAddress:     "ckb1qyqyz340d4nhgtx2s75mp5wnavrsu7j5fcwqktprrp",
		FoundationSince:       "2020-07-01",
		TestnetReserveAddress: "ckb1qyqy6mtud5sgctjwgg6gydd0ea05mr339lnslczzrc",
		FoundationSpent:       1_264_963,
		DefaultTimestamp:      1_573_833_600_000,
		DefaultCompactTarget:  0x1000_0000,
		DefaultEpochLength:    1000,
		Confirmations:         11,
		EpochAvgCount:         4,
		DefaultRPCURL:         "http://127.0.0.1:8114",
	},
}

// GetNetwork returns the network configuration for a given name
func GetNetwork(name string) (*NetworkConfig, error) {
	config, ok := Networks[name]
	if !ok {
		return nil, fmt.Errorf("unknown network: %s", name)
	}
	return config, nil
}

// Share returns TotalSupply * share[0] / share[1] without intermediate overflow
func (n *NetworkConfig) Share(share [2]uint64) uint64 {
	q, r := n.TotalSupply/share[1], n.TotalSupply%share[1]
	return q*share[0] + r*share[0]/share[1]
}
