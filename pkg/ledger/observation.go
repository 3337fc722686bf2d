package ledger

import (
	"fmt"
	"slices"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/chain"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/collector"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/address"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/allocation"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/config"
)

// ChainRules parameterise the source built from the chain observation
type ChainRules struct {
	Name string
	// RewardPool in whole CKB
	RewardPool uint64
	// MinBlockReward in shannons, smaller miners are ignored
	MinBlockReward uint64
}

// Round53 is the last competition stage, paid from chain data
var Round53 = ChainRules{Name: "round-5.3 mined", RewardPool: 18_000_000, MinBlockReward: 1_000}

// FromObservation splits the pool over the observed miners in proportion to
// their block rewards. It also derives the initial compact target of the new
// chain from the observed difficulty.
func (l *Loader) FromObservation(obs *collector.Observation, rules ChainRules) (*Result, uint32, error) {
	pool, err := allocation.NewAmount(rules.RewardPool)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", rules.Name, err)
	}

	identities := make([]string, 0, len(obs.Rewards))
	for id := range obs.Rewards {
		identities = append(identities, id)
	}
	slices.Sort(identities)

	var all, total uint64
	var eligible []string
	for _, id := range identities {
		reward := obs.Rewards[id]
		if all, err = checkedAdd(all, reward); err != nil {
			return nil, 0, fmt.Errorf("%s: %w", rules.Name, err)
		}
		if reward < rules.MinBlockReward {
			continue
		}
		if total, err = checkedAdd(total, reward); err != nil {
			return nil, 0, fmt.Errorf("%s: %w", rules.Name, err)
		}
		eligible = append(eligible, id)
	}
	if total == 0 {
		return nil, 0, fmt.Errorf("%w: %s observed no rewards", ErrValidation, rules.Name)
	}

	result := &Result{Name: rules.Name}
	var totalToken uint64
	for _, id := range eligible {
		token := proportionalShare(obs.Rewards[id], pool.Shannons(), total) / config.ShannonsPerCKB
		result.Records++

		hash, ok := address.HashFromSlice([]byte(id))
		if !ok {
			result.Skipped++
			l.log.Warn("skipping miner with unexpected lock args",
				zap.String("source", rules.Name),
				zap.Binary("args", []byte(id)),
			)
			continue
		}
		amount, err := allocation.NewAmount(token)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", rules.Name, err)
		}
		result.Assets = append(result.Assets, allocation.NewSingle(hash).With(amount))
		// skipped miners stay out of the paid total
		totalToken += token
	}
	if err := checkConservation(rules.Name, totalToken, rules.RewardPool, result.Records); err != nil {
		return nil, 0, err
	}
	result.Expected = pool

	target, err := initialTarget(obs.DifficultyAvg, all, pool.Shannons())
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", rules.Name, err)
	}

	l.log.Info("loaded chain observation",
		zap.String("source", rules.Name),
		zap.Int("miners", len(identities)),
		zap.Int("accounts", len(result.Assets)),
		zap.Int("skipped", result.Skipped),
		zap.Uint64("ckb", totalToken),
		zap.String("compact_target", fmt.Sprintf("%#x", target)),
	)
	return result, target, nil
}

// initialTarget scales the average difficulty by 3/2 and by the ratio of all
// observed rewards to the pool
func initialTarget(avg *uint256.Int, rewards, pool uint64) (uint32, error) {
	if avg == nil || avg.IsZero() {
		return 0, fmt.Errorf("%w: zero average difficulty", ErrValidation)
	}
	difficulty, overflow := new(uint256.Int).MulOverflow(avg, uint256.NewInt(3))
	if overflow {
		return 0, fmt.Errorf("%w: difficulty", allocation.ErrOverflow)
	}
	difficulty.Div(difficulty, uint256.NewInt(2))
	if _, overflow := difficulty.MulOverflow(difficulty, uint256.NewInt(rewards)); overflow {
		return 0, fmt.Errorf("%w: difficulty", allocation.ErrOverflow)
	}
	difficulty.Div(difficulty, uint256.NewInt(pool))
	if difficulty.IsZero() {
		return 0, fmt.Errorf("%w: scaled difficulty is zero", ErrValidation)
	}
	return chain.DifficultyToCompact(difficulty), nil
}
