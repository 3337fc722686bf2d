package genesis

import (
	"fmt"
	"os"
	"strings"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/allocation"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/config"
)

// ValidatorResult summarises a valid spec
type ValidatorResult struct {
	Name          string
	Message       string
	CompactTarget uint32
	Cells         int
	Capacity      allocation.Amount
	Digest        string
}

// Validator checks a rendered spec against the network parameters
type Validator struct {
	network *config.NetworkConfig
	spender FoundationSpender
}

// NewValidator creates a validator for a network
func NewValidator(networkName string) (*Validator, error) {
	network, err := config.GetNetwork(networkName)
	if err != nil {
		return nil, err
	}
	return &Validator{network: network, spender: HistoricalSpend{Network: network}}, nil
}

// ValidateFile reads and validates a rendered spec
func (v *Validator) ValidateFile(path string) (*ValidatorResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec: %w", err)
	}
	return v.Validate(data)
}

// Validate checks the name, the genesis message, the burn cell and supply
// conservation of a rendered spec
func (v *Validator) Validate(data []byte) (*ValidatorResult, error) {
	spec, err := ParseSpec(data)
	if err != nil {
		return nil, err
	}
	if spec.Name != v.network.Name {
		return nil, fmt.Errorf("spec name %q, want %q", spec.Name, v.network.Name)
	}

	message := spec.Genesis.GenesisCell.Message
	hash, found := strings.CutPrefix(message, messagePrefix)
	if !found || len(hash) != len(zeroHash) || !strings.HasPrefix(hash, "0x") {
		return nil, fmt.Errorf("malformed genesis message %q", message)
	}

	cells := spec.Genesis.IssuedCells
	if len(cells) == 0 {
		return nil, fmt.Errorf("spec issues no cells")
	}
	burn := cells[0]
	if burn.Lock.CodeHash != config.BurnCodeHash || burn.Lock.Args != config.BurnArgs ||
		burn.Capacity != v.network.Share(v.network.BurnShare) {
		return nil, fmt.Errorf("first cell is not the burn cell: %+v", burn)
	}

	spent, err := v.spender.FoundationSpent()
	if err != nil {
		return nil, err
	}
	if err := VerifySupply(cells, spent, allocation.Amount(v.network.TotalSupply)); err != nil {
		return nil, err
	}
	capacity, err := spec.Capacity()
	if err != nil {
		return nil, err
	}

	return &ValidatorResult{
		Name:          spec.Name,
		Message:       message,
		CompactTarget: uint32(spec.Genesis.CompactTarget),
		Cells:         len(cells),
		Capacity:      capacity,
		Digest:        Digest(data),
	}, nil
}
