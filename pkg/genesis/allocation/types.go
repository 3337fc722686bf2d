package allocation

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/config"
)

// ErrOverflow is returned when an amount does not fit in 64 bits
var ErrOverflow = errors.New("amount overflow")

// Amount is a CKB amount in shannons
type Amount uint64

// Constants for CKB amounts (with 8 decimals)
const (
	OneCKB      = Amount(config.ShannonsPerCKB)
	ThousandCKB = 1_000 * OneCKB
	MillionCKB  = 1_000_000 * OneCKB
	BillionCKB  = 1_000_000_000 * OneCKB
)

// NewAmount converts whole CKB to an amount
func NewAmount(ckb uint64) (Amount, error) {
	hi, lo := bits.Mul64(ckb, config.ShannonsPerCKB)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d CKB", ErrOverflow, ckb)
	}
	return Amount(lo), nil
}

// Shannons returns the raw subunit count
func (a Amount) Shannons() uint64 {
	return uint64(a)
}

// CKB returns the whole CKB part
func (a Amount) CKB() uint64 {
	return uint64(a) / config.ShannonsPerCKB
}

// Add returns a + b, failing on overflow
func (a Amount) Add(b Amount) (Amount, error) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return Amount(sum), nil
}

// Sub returns a - b, failing when b exceeds a
func (a Amount) Sub(b Amount) (Amount, error) {
	diff, borrow := bits.Sub64(uint64(a), uint64(b), 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d is negative", ErrOverflow, a, b)
	}
	return Amount(diff), nil
}

// Sum adds amounts, failing on overflow
func Sum(amounts ...Amount) (Amount, error) {
	var total Amount
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// ParseCKBAmount parses a whole CKB amount (e.g. "1000000")
func ParseCKBAmount(amountStr string) (Amount, error) {
	ckb, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amountStr, err)
	}
	return NewAmount(ckb)
}

// String formats the amount as CKB with up to 8 decimals
func (a Amount) String() string {
	remainder := uint64(a) % config.ShannonsPerCKB
	if remainder == 0 {
		return fmt.Sprintf("%d CKB", a.CKB())
	}
	return fmt.Sprintf("%d.%08d CKB", a.CKB(), remainder)
}

// Lock is the lock script of an output cell
type Lock struct {
	CodeHash string `toml:"code_hash" json:"code_hash"`
	Args     string `toml:"args" json:"args"`
	HashType string `toml:"hash_type" json:"hash_type"`
}

// Cell is a genesis output cell
type Cell struct {
	Capacity uint64 `toml:"capacity" json:"capacity"`
	Lock     Lock   `toml:"lock" json:"lock"`
}

// Asset is an amount held by an owner
type Asset struct {
	Owner  Owner
	Amount Amount
}

// Cell converts the asset to a genesis output cell
func (a Asset) Cell() Cell {
	return Cell{Capacity: a.Amount.Shannons(), Lock: a.Owner.Lock()}
}

func (a Asset) String() string {
	return fmt.Sprintf("Asset{owner: %s, shannons: %d}", a.Owner, a.Amount)
}
