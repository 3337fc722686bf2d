package genesis

import (
	_ "embed"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/chain"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/address"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/allocation"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/config"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/ledger"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/logging"
)

//go:embed data/allocate/genesis_final.csv
var importedAllocations []byte

// FoundationSpender reports what the foundation already paid for the system
// cells of the genesis block
type FoundationSpender interface {
	FoundationSpent() (allocation.Amount, error)
}

// HistoricalSpend is the spend fixed by the network configuration
type HistoricalSpend struct {
	Network *config.NetworkConfig
}

// FoundationSpent implements FoundationSpender
func (h HistoricalSpend) FoundationSpent() (allocation.Amount, error) {
	return allocation.NewAmount(h.Network.FoundationSpent)
}

// BuilderOption configures a Builder
type BuilderOption func(*Builder)

// WithSpender replaces the historical foundation spend
func WithSpender(s FoundationSpender) BuilderOption {
	return func(b *Builder) { b.spender = s }
}

// WithImportedAllocations replaces the embedded allocation list
func WithImportedAllocations(data []byte) BuilderOption {
	return func(b *Builder) { b.imported = data }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) BuilderOption {
	return func(b *Builder) { b.log = logging.OrNop(log) }
}

// Builder projects a reconciled ledger onto the genesis cells
type Builder struct {
	network     *config.NetworkConfig
	addressConv *address.Converter
	params      allocation.SinceParams
	spender     FoundationSpender
	imported    []byte
	log         *zap.Logger
}

// NewBuilder creates a genesis builder for a specific network
func NewBuilder(networkName string, params allocation.SinceParams, opts ...BuilderOption) (*Builder, error) {
	network, err := config.GetNetwork(networkName)
	if err != nil {
		return nil, err
	}

	b := &Builder{
		network:     network,
		addressConv: address.NewConverter(network.HRP),
		params:      params,
		spender:     HistoricalSpend{Network: network},
		imported:    importedAllocations,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Network returns the network configuration
func (b *Builder) Network() *config.NetworkConfig {
	return b.network
}

// Reserved returns the pool reserved for the competition ledger
func (b *Builder) Reserved() allocation.Amount {
	return allocation.Amount(b.network.Share(b.network.CompetitionShare))
}

// FoundationSpent returns the spend reported by the configured spender
func (b *Builder) FoundationSpent() (allocation.Amount, error) {
	return b.spender.FoundationSpent()
}

// ImportedAssets parses the allocation list. Each line is
// address,amount[,date]; a date locks the cell until that day.
// Blank lines are rejected.
func (b *Builder) ImportedAssets() ([]allocation.Asset, error) {
	var assets []allocation.Asset
	n := 0
	for line := range strings.Lines(string(b.imported)) {
		n++
		line = strings.TrimSpace(line)
		if line == "" {
			return nil, fmt.Errorf("allocation line %d: empty record", n)
		}
		fields := strings.Split(line, ",")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("allocation line %d: %d fields, want 2 or 3", n, len(fields))
		}

		hash, ok, err := b.addressConv.ParseShort(fields[0])
		if err != nil {
			return nil, fmt.Errorf("allocation line %d: %w", n, err)
		}
		if !ok {
			return nil, fmt.Errorf("allocation line %d: undecodable address %q", n, fields[0])
		}
		amount, err := allocation.ParseCKBAmount(fields[1])
		if err != nil {
			return nil, fmt.Errorf("allocation line %d: %w", n, err)
		}

		owner := allocation.NewSingle(hash)
		if len(fields) == 3 && fields[2] != "" && fields[2] != `""` {
			if owner, err = allocation.NewTimeLocked(hash, fields[2], b.params); err != nil {
				return nil, fmt.Errorf("allocation line %d: %w", n, err)
			}
		}
		assets = append(assets, owner.With(amount))
	}
	return assets, nil
}

// Build returns the genesis cells in order: burn, imported allocations,
// foundation reserve, competition ledger, testnet remainder
func (b *Builder) Build(merged *Ledger) ([]allocation.Cell, error) {
	var cells []allocation.Cell

	burn := b.network.Share(b.network.BurnShare)
	cells = append(cells, allocation.Cell{
		Capacity: burn,
		Lock: allocation.Lock{
			CodeHash: config.BurnCodeHash,
			Args:     config.BurnArgs,
			HashType: config.HashTypeData,
		},
	})

	imported, err := b.ImportedAssets()
	if err != nil {
		return nil, err
	}
	var importedTotal allocation.Amount
	for _, asset := range imported {
		if importedTotal, err = importedTotal.Add(asset.Amount); err != nil {
			return nil, fmt.Errorf("imported allocations: %w", err)
		}
		cells = append(cells, asset.Cell())
	}
	if want := allocation.Amount(b.network.Share(b.network.ImportedShare)); importedTotal != want {
		return nil, fmt.Errorf("%w: imported allocations sum to %s, want %s", ErrConservation, importedTotal, want)
	}

	foundation, err := b.foundationReserve()
	if err != nil {
		return nil, err
	}
	cells = append(cells, foundation.Cell())

	for _, asset := range merged.Assets {
		cells = append(cells, asset.Cell())
	}

	remainder, err := b.testnetReserve(merged.Remainder)
	if err != nil {
		return nil, err
	}
	cells = append(cells, remainder.Cell())

	b.log.Info("projected genesis cells",
		zap.Int("cells", len(cells)),
		zap.Int("imported", len(imported)),
		zap.Int("ledger", len(merged.Assets)),
		zap.Stringer("burn", allocation.Amount(burn)),
		zap.Stringer("foundation", foundation.Amount),
		zap.Stringer("remainder", merged.Remainder),
	)
	return cells, nil
}

func (b *Builder) foundationReserve() (allocation.Asset, error) {
	spent, err := b.spender.FoundationSpent()
	if err != nil {
		return allocation.Asset{}, fmt.Errorf("failed to get foundation spend: %w", err)
	}
	share := allocation.Amount(b.network.Share(b.network.FoundationShare))
	reserve, err := share.Sub(spent)
	if err != nil {
		return allocation.Asset{}, fmt.Errorf("foundation reserve: %w", err)
	}

	hash, ok, err := b.addressConv.ParseShort(b.network.FoundationAddress)
	if err != nil || !ok {
		return allocation.Asset{}, fmt.Errorf("invalid foundation address %q: %v", b.network.FoundationAddress, err)
	}
	owner, err := allocation.NewTimeLocked(hash, b.network.FoundationSince, b.params)
	if err != nil {
		return allocation.Asset{}, fmt.Errorf("foundation owner: %w", err)
	}
	return owner.With(reserve), nil
}

func (b *Builder) testnetReserve(amount allocation.Amount) (allocation.Asset, error) {
	hash, ok, err := b.addressConv.ParseShort(b.network.TestnetReserveAddress)
	if err != nil || !ok {
		return allocation.Asset{}, fmt.Errorf("invalid testnet reserve address %q: %v", b.network.TestnetReserveAddress, err)
	}
	return allocation.NewSingle(hash).With(amount), nil
}

// VerifySupply requires the cells plus the foundation spend to equal the
// total supply exactly
func VerifySupply(cells []allocation.Cell, spent, total allocation.Amount) error {
	sum := spent
	for i, cell := range cells {
		var err error
		if sum, err = sum.Add(allocation.Amount(cell.Capacity)); err != nil {
			return fmt.Errorf("cell %d: %w", i, err)
		}
	}
	if sum != total {
		return fmt.Errorf("%w: cells and spend sum to %s, want %s", ErrConservation, sum, total)
	}
	return nil
}

// Assemble reconciles a ledger report, projects it onto cells and returns
// the spec anchored to header. A nil header keeps the default anchor.
func (b *Builder) Assemble(report *ledger.Report, header *chain.Header) (*Spec, *Ledger, error) {
	merged, err := Merge(report.Assets, report.Expected, b.Reserved())
	if err != nil {
		return nil, nil, err
	}
	b.log.Info("merged competition ledger",
		zap.Int("owners", len(merged.Assets)),
		zap.Stringer("total", merged.Total),
		zap.Stringer("expected", report.Expected),
	)

	cells, err := b.Build(merged)
	if err != nil {
		return nil, nil, err
	}
	spent, err := b.spender.FoundationSpent()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get foundation spend: %w", err)
	}
	if err := VerifySupply(cells, spent, allocation.Amount(b.network.TotalSupply)); err != nil {
		return nil, nil, err
	}

	spec := NewSpec(b.network)
	if header != nil {
		spec.UpdateByHeader(header)
	}
	if report.Target != 0 {
		spec.UpdateTarget(report.Target)
	}
	spec.AppendCells(cells)
	return spec, merged, nil
}
