package chain

import (
	"github.com/holiman/uint256"
)

var (
	// hashSpace is 2^255, half of the hash space
	hashSpace = new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	diffTwo   = uint256.NewInt(2)
	one       = uint256.NewInt(1)
)

// CompactToTarget expands a compact target. The boolean reports an
// exponent too large to represent.
func CompactToTarget(compact uint32) (*uint256.Int, bool) {
	exponent := compact >> 24
	mantissa := uint64(compact & 0x00ff_ffff)

	target := new(uint256.Int)
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		target.SetUint64(mantissa)
	} else {
		target.SetUint64(mantissa)
		target.Lsh(target, uint(8*(exponent-3)))
	}
	overflow := mantissa != 0 && exponent > 32
	return target, overflow
}

// TargetToCompact packs a target into compact form
func TargetToCompact(target *uint256.Int) uint32 {
	exponent := uint32((target.BitLen() + 7) / 8)
	var compact uint32
	if exponent <= 3 {
		compact = uint32(target.Uint64() << (8 * (3 - exponent)))
	} else {
		compact = uint32(new(uint256.Int).Rsh(target, uint(8*(exponent-3))).Uint64())
	}
	return compact | exponent<<24
}

// TargetToDifficulty converts a target to difficulty, 2 * (2^255 / target)
func TargetToDifficulty(target *uint256.Int) *uint256.Int {
	if target.Eq(one) {
		return new(uint256.Int).SetAllOne()
	}
	quotient := new(uint256.Int).Div(hashSpace, target)
	return quotient.Mul(quotient, diffTwo)
}

// DifficultyToTarget is the inverse of TargetToDifficulty
func DifficultyToTarget(difficulty *uint256.Int) *uint256.Int {
	return TargetToDifficulty(difficulty)
}

// CompactToDifficulty returns zero for an empty or overflowing target
func CompactToDifficulty(compact uint32) *uint256.Int {
	target, overflow := CompactToTarget(compact)
	if target.IsZero() || overflow {
		return new(uint256.Int)
	}
	return TargetToDifficulty(target)
}

// DifficultyToCompact converts a difficulty to compact target form
func DifficultyToCompact(difficulty *uint256.Int) uint32 {
	return TargetToCompact(DifficultyToTarget(difficulty))
}
