// Package ledger validates the historical reward ledgers and the chain
// observation, and turns them into genesis assets
package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/big"

	"go.uber.org/zap"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/address"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/allocation"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/logging"
)

// ErrValidation is returned when a ledger breaks one of its rules
var ErrValidation = errors.New("ledger validation failed")

// Rules are the checks a source must pass
type Rules struct {
	// Fields is the exact number of fields of every record
	Fields int
	// RewardPool is the pool in whole CKB. Zero means the expected total is
	// whatever the source pays out.
	RewardPool uint64
	// Winners is the exact number of assets the source must produce, zero disables the check
	Winners int
	// Proportional sources split the pool by block reward
	Proportional   bool
	MinBlockReward uint64
	MinTokenReward uint64
}

// Entry is a record mapped to its meaning
type Entry struct {
	Address     string
	BlockReward uint64
	TokenReward uint64 // whole CKB
}

// Mapper maps a record. Records mapped with keep false are dropped before
// any rule is applied.
type Mapper func(index int, record []string) (entry Entry, keep bool, err error)

// AddressParser extracts the lock hash of an address. Records whose address
// does not decode (ok false) are counted but produce no asset.
type AddressParser func(addr string) (hash address.Hash, ok bool, err error)

// Source is a historical reward ledger
type Source struct {
	Name         string
	Data         []byte // CSV with a header row
	Rules        Rules
	Map          Mapper
	ParseAddress AddressParser
}

// Result is the validated output of one source
type Result struct {
	Name     string
	Assets   []allocation.Asset
	Expected allocation.Amount
	// Records counts the records the rules were applied to
	Records int
	// Skipped counts records without a decodable address
	Skipped int
}

// Total returns the sum of the produced assets
func (r *Result) Total() (allocation.Amount, error) {
	var total allocation.Amount
	for _, asset := range r.Assets {
		var err error
		if total, err = total.Add(asset.Amount); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Loader loads and validates sources
type Loader struct {
	log *zap.Logger
}

// NewLoader creates a loader. A nil logger disables logging.
func NewLoader(log *zap.Logger) *Loader {
	return &Loader{log: logging.OrNop(log)}
}

type proportionalCheck struct {
	index       int
	blockReward uint64
	tokenReward uint64
}

// Load parses a source and checks all of its rules
func (l *Loader) Load(src Source) (*Result, error) {
	rules := src.Rules
	reader := csv.NewReader(bytes.NewReader(src.Data))
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("%s: failed to read header: %w", src.Name, err)
	}

	result := &Result{Name: src.Name}
	var (
		totalBlock, totalToken uint64
		checks                 []proportionalCheck
	)
	for index := 0; ; index++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read record %d: %w", src.Name, index, err)
		}
		if len(record) != rules.Fields {
			return nil, fmt.Errorf("%w: %s record %d has %d fields, want %d",
				ErrValidation, src.Name, index, len(record), rules.Fields)
		}

		entry, keep, err := src.Map(index, record)
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", src.Name, index, err)
		}
		if !keep {
			continue
		}
		result.Records++

		if rules.Proportional {
			if entry.BlockReward < rules.MinBlockReward {
				return nil, fmt.Errorf("%w: %s record %d block reward %d < %d",
					ErrValidation, src.Name, index, entry.BlockReward, rules.MinBlockReward)
			}
			if entry.TokenReward < rules.MinTokenReward {
				return nil, fmt.Errorf("%w: %s record %d token reward %d < %d",
					ErrValidation, src.Name, index, entry.TokenReward, rules.MinTokenReward)
			}
			if totalBlock, err = checkedAdd(totalBlock, entry.BlockReward); err != nil {
				return nil, fmt.Errorf("%s block rewards: %w", src.Name, err)
			}
			if totalToken, err = checkedAdd(totalToken, entry.TokenReward); err != nil {
				return nil, fmt.Errorf("%s token rewards: %w", src.Name, err)
			}
			checks = append(checks, proportionalCheck{index, entry.BlockReward, entry.TokenReward})
		}

		hash, ok, err := src.ParseAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", src.Name, index, err)
		}
		if !ok {
			result.Skipped++
			l.log.Warn("skipping record with undecodable address",
				zap.String("source", src.Name),
				zap.Int("record", index),
				zap.String("address", entry.Address),
			)
			continue
		}
		amount, err := allocation.NewAmount(entry.TokenReward)
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", src.Name, index, err)
		}
		result.Assets = append(result.Assets, allocation.NewSingle(hash).With(amount))
	}

	if rules.Proportional {
		for _, c := range checks {
			expected := proportionalShare(c.blockReward, rules.RewardPool, totalBlock)
			if expected != c.tokenReward {
				return nil, fmt.Errorf("%w: %s record %d token reward %d, want %d",
					ErrValidation, src.Name, c.index, c.tokenReward, expected)
			}
		}
		if err := checkConservation(src.Name, totalToken, rules.RewardPool, result.Records); err != nil {
			return nil, err
		}
	}

	if rules.Winners > 0 && len(result.Assets) != rules.Winners {
		return nil, fmt.Errorf("%w: %s has %d winners, want %d",
			ErrValidation, src.Name, len(result.Assets), rules.Winners)
	}

	total, err := result.Total()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Name, err)
	}
	if rules.RewardPool > 0 {
		if result.Expected, err = allocation.NewAmount(rules.RewardPool); err != nil {
			return nil, fmt.Errorf("%s: %w", src.Name, err)
		}
	} else {
		result.Expected = total
	}

	l.log.Info("loaded reward ledger",
		zap.String("source", src.Name),
		zap.Int("records", result.Records),
		zap.Int("accounts", len(result.Assets)),
		zap.Int("skipped", result.Skipped),
		zap.Uint64("ckb", total.CKB()),
	)
	if ce := l.log.Check(zap.DebugLevel, "asset"); ce != nil {
		for _, asset := range result.Assets {
			l.log.Debug("asset", zap.String("source", src.Name), zap.Stringer("asset", asset))
		}
	}
	return result, nil
}

// proportionalShare returns floor(part * pool / total)
func proportionalShare(part, pool, total uint64) uint64 {
	if total == 0 {
		return 0
	}
	share := new(big.Int).SetUint64(part)
	share.Mul(share, new(big.Int).SetUint64(pool))
	share.Quo(share, new(big.Int).SetUint64(total))
	return share.Uint64()
}

// checkConservation requires pool - count <= total <= pool, allowing one unit
// of rounding loss per record
func checkConservation(name string, total, pool uint64, count int) error {
	var lower uint64
	if uint64(count) < pool {
		lower = pool - uint64(count)
	}
	if total < lower || total > pool {
		return fmt.Errorf("%w: %s pays %d of a %d pool over %d records",
			ErrValidation, name, total, pool, count)
	}
	return nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("%w: %d + %d", allocation.ErrOverflow, a, b)
	}
	return sum, nil
}
