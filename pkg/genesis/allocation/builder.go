package allocation

import (
	"fmt"
	"slices"
)

// Builder accumulates assets into one entry per distinct owner
type Builder struct {
	index  map[string]int
	assets []Asset
	total  Amount
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int)}
}

// Add merges an asset into the entry of its owner
func (b *Builder) Add(asset Asset) error {
	total, err := b.total.Add(asset.Amount)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", asset, err)
	}

	key := asset.Owner.key()
	if i, exists := b.index[key]; exists {
		merged, err := b.assets[i].Amount.Add(asset.Amount)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", asset, err)
		}
		b.assets[i].Amount = merged
	} else {
		b.index[key] = len(b.assets)
		b.assets = append(b.assets, asset)
	}
	b.total = total
	return nil
}

// AddAll merges every asset
func (b *Builder) AddAll(assets []Asset) error {
	for _, asset := range assets {
		if err := b.Add(asset); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of distinct owners
func (b *Builder) Len() int {
	return len(b.assets)
}

// Total returns the sum over all owners
func (b *Builder) Total() Amount {
	return b.total
}

// Assets returns one asset per owner, sorted by owner
func (b *Builder) Assets() []Asset {
	out := slices.Clone(b.assets)
	slices.SortFunc(out, func(x, y Asset) int {
		return x.Owner.Compare(y.Owner)
	})
	return out
}
