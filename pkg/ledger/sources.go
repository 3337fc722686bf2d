package ledger

import (
	"embed"
	"fmt"
	"path"
	"strconv"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/address"
)

//go:embed data/competitions
var competitions embed.FS

const competitionsDir = "data/competitions"

// Per-epoch lucky draws pay the first 80 epochs
const luckyEpochs = 80

// minTokenReward is the smallest token reward of every mined source
const minTokenReward = 61

// HistoricalSources returns the nine testnet competition ledgers in
// processing order
func HistoricalSources() ([]Source, error) {
	deprecated := address.Testnet.ParseDeprecated
	short := address.Testnet.ParseShort

	specs := []struct {
		name  string
		file  string
		rules Rules
		mapf  Mapper
		parse AddressParser
	}{
		{
			name:  "round-1 awards",
			file:  "round-1/awards.csv",
			rules: Rules{Fields: 2, Winners: 3},
			mapf:  rankedMapper(200_000, 100_000, 60_000),
			parse: deprecated,
		},
		{
			name:  "round-1 lottery",
			file:  "round-1/lottery.csv",
			rules: Rules{Fields: 2, RewardPool: 640_000, Winners: 64},
			mapf:  fixedMapper(10_000),
			parse: deprecated,
		},
		{
			name:  "round-2 mined",
			file:  "round-2/miner_reward_finally.csv",
			rules: minedRules(2_000_000, 4_000),
			mapf:  minedMapper(1, 3),
			parse: deprecated,
		},
		{
			name:  "round-2 lucky",
			file:  "round-2/epoch_reward_finally.csv",
			rules: luckyRules(2_000_000),
			mapf:  luckyMapper(2_000_000),
			parse: deprecated,
		},
		{
			name:  "round-3 mined",
			file:  "round-3/miner_reward.csv",
			rules: minedRules(3_000_000, 3_000),
			mapf:  minedMapper(2, 3),
			parse: short,
		},
		{
			name:  "round-3 lucky",
			file:  "round-3/epoch_reward.csv",
			rules: luckyRules(3_000_000),
			mapf:  luckyMapper(3_000_000),
			parse: short,
		},
		{
			name:  "round-4 mined",
			file:  "round-4/miner_reward.csv",
			rules: minedRules(9_000_000, 1_000),
			mapf:  minedMapper(1, 3),
			parse: short,
		},
		{
			name:  "round-5.1 mined",
			file:  "round-5/stage-1/miner_reward.csv",
			rules: minedRules(12_000_000, 1_000),
			mapf:  minedMapper(2, 3),
			parse: short,
		},
		{
			name:  "round-5.2 mined",
			file:  "round-5/stage-2/miner_reward.csv",
			rules: minedRules(15_000_000, 1_000),
			mapf:  minedMapper(2, 3),
			parse: short,
		},
	}

	sources := make([]Source, 0, len(specs))
	for _, s := range specs {
		data, err := competitions.ReadFile(path.Join(competitionsDir, s.file))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", s.name, err)
		}
		sources = append(sources, Source{
			Name:         s.name,
			Data:         data,
			Rules:        s.rules,
			Map:          s.mapf,
			ParseAddress: s.parse,
		})
	}
	return sources, nil
}

func minedRules(pool, minBlock uint64) Rules {
	return Rules{
		Fields:         4,
		RewardPool:     pool,
		Proportional:   true,
		MinBlockReward: minBlock,
		MinTokenReward: minTokenReward,
	}
}

func luckyRules(pool uint64) Rules {
	return Rules{Fields: 3, RewardPool: pool, Winners: luckyEpochs}
}

// rankedMapper pays the i-th record the i-th reward
func rankedMapper(rewards ...uint64) Mapper {
	return func(index int, record []string) (Entry, bool, error) {
		if index >= len(rewards) {
			return Entry{}, false, fmt.Errorf("%w: only %d winners are rewarded", ErrValidation, len(rewards))
		}
		return Entry{Address: record[0], TokenReward: rewards[index]}, true, nil
	}
}

// fixedMapper pays every record the same reward
func fixedMapper(reward uint64) Mapper {
	return func(_ int, record []string) (Entry, bool, error) {
		return Entry{Address: record[0], TokenReward: reward}, true, nil
	}
}

// luckyMapper splits the pool over the winners of epochs 1 to 80. Layout is
// epoch,address,block_number.
func luckyMapper(pool uint64) Mapper {
	reward := pool / luckyEpochs
	return func(_ int, record []string) (Entry, bool, error) {
		epoch, err := strconv.ParseUint(record[0], 10, 64)
		if err != nil {
			return Entry{}, false, fmt.Errorf("invalid epoch %q: %w", record[0], err)
		}
		if epoch == 0 || epoch > luckyEpochs {
			return Entry{}, false, nil
		}
		return Entry{Address: record[1], TokenReward: reward}, true, nil
	}
}

// minedMapper reads the address from field 0 and the rewards from the given fields
func minedMapper(blockField, tokenField int) Mapper {
	return func(_ int, record []string) (Entry, bool, error) {
		block, err := strconv.ParseUint(record[blockField], 10, 64)
		if err != nil {
			return Entry{}, false, fmt.Errorf("invalid block reward %q: %w", record[blockField], err)
		}
		token, err := strconv.ParseUint(record[tokenField], 10, 64)
		if err != nil {
			return Entry{}, false, fmt.Errorf("invalid token reward %q: %w", record[tokenField], err)
		}
		return Entry{Address: record[0], BlockReward: block, TokenReward: token}, true, nil
	}
}
