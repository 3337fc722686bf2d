package genesis

import (
	"errors"
	"fmt"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/allocation"
)

// ErrConservation is returned when amounts do not add up to what they must
var ErrConservation = errors.New("supply is not conserved")

// Ledger is the reconciled competition ledger
type Ledger struct {
	// Assets holds one entry per owner, sorted by owner
	Assets []allocation.Asset
	Total  allocation.Amount
	// Remainder is what is left of the reserved pool
	Remainder allocation.Amount
}

// Merge groups assets by owner and checks the total against the expected
// payout and the reserved pool
func Merge(assets []allocation.Asset, expected, reserved allocation.Amount) (*Ledger, error) {
	builder := allocation.NewBuilder()
	if err := builder.AddAll(assets); err != nil {
		return nil, fmt.Errorf("failed to merge assets: %w", err)
	}

	total := builder.Total()
	if total > expected {
		return nil, fmt.Errorf("%w: merged %s exceeds expected %s", ErrConservation, total, expected)
	}
	if total > reserved {
		return nil, fmt.Errorf("%w: merged %s exceeds reserved %s", ErrConservation, total, reserved)
	}

	return &Ledger{
		Assets:    builder.Assets(),
		Total:     total,
		Remainder: reserved - total,
	}, nil
}
