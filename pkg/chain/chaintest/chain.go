// Package chaintest provides a deterministic in-memory CKB chain for tests
package chaintest

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/chain"
)

// Config describes the simulated chain
type Config struct {
	// EpochLength is the number of blocks in every epoch
	EpochLength uint64
	// InitialTip is the tip before the first TipHeader call
	InitialTip uint64
	// Step is how far the tip advances after each TipHeader call
	Step uint64
	// MaxTip bounds the tip
	MaxTip uint64
	// Miner returns the cellbase lock args of a block
	Miner func(number uint64) []byte
	// Reward returns the primary reward paid by the cellbase of a block
	Reward func(number uint64) uint64
	// CompactTarget returns the compact target of an epoch
	CompactTarget func(epoch uint64) uint32
}

// Chain is a simulated node. It implements chain.Node.
type Chain struct {
	cfg Config

	mu          sync.Mutex
	tip         uint64
	failures    map[uint64]int
	hashQueries []uint64
}

var _ chain.Node = (*Chain)(nil)

// SighashCodeHash is the code hash used for simulated miner locks
var SighashCodeHash = chain.Hash{0x9b, 0xd7, 0xe0, 0x6f}

// New creates a simulated chain
func New(cfg Config) *Chain {
	if cfg.EpochLength == 0 {
		cfg.EpochLength = 10
	}
	if cfg.Miner == nil {
		cfg.Miner = func(number uint64) []byte { return IdentityOf(number % 3) }
	}
	if cfg.Reward == nil {
		cfg.Reward = func(number uint64) uint64 { return 1_000_000 + number }
	}
	if cfg.CompactTarget == nil {
		cfg.CompactTarget = func(uint64) uint32 { return 0x20010000 }
	}
	if cfg.MaxTip < cfg.InitialTip {
		cfg.MaxTip = cfg.InitialTip
	}
	return &Chain{cfg: cfg, tip: cfg.InitialTip, failures: make(map[uint64]int)}
}

// IdentityOf returns a deterministic 20-byte identity
func IdentityOf(seed uint64) []byte {
	id := make([]byte, 20)
	for i := range id {
		id[i] = byte(seed) + byte(i)*7 + 1
	}
	return id
}

// HashOf returns the hash of the block at the given height
func HashOf(number uint64) chain.Hash {
	var h chain.Hash
	binary.BigEndian.PutUint64(h[:8], number)
	for i := 8; i < len(h); i++ {
		h[i] = 0xab
	}
	return h
}

// FailBlock makes the next n BlockByNumber calls for number fail
func (c *Chain) FailBlock(number uint64, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[number] += n
}

// Tip returns the current tip height
func (c *Chain) Tip() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tip
}

// HashQueries returns every height passed to BlockHash so far, sorted
func (c *Chain) HashQueries() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]uint64(nil), c.hashQueries...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Epoch returns the epoch data of an epoch number
func (c *Chain) Epoch(number uint64) *chain.Epoch {
	return &chain.Epoch{
		Number:        number,
		StartNumber:   number * c.cfg.EpochLength,
		Length:        c.cfg.EpochLength,
		CompactTarget: c.cfg.CompactTarget(number),
	}
}

// Header returns the header at the given height regardless of the tip
func (c *Chain) Header(number uint64) *chain.Header {
	epoch := number / c.cfg.EpochLength
	header := &chain.Header{
		Number:        number,
		Hash:          HashOf(number),
		Timestamp:     1_573_833_600_000 + number*8_000,
		CompactTarget: c.cfg.CompactTarget(epoch),
		Epoch:         chain.NewEpochNumberWithFraction(epoch, number%c.cfg.EpochLength, c.cfg.EpochLength),
	}
	if number > 0 {
		header.ParentHash = HashOf(number - 1)
	}
	return header
}

// Block returns the block at the given height regardless of the tip
func (c *Chain) Block(number uint64) *chain.Block {
	witness := &chain.CellbaseWitness{
		Lock: chain.Script{
			CodeHash: SighashCodeHash,
			HashType: 1,
			Args:     c.cfg.Miner(number),
		},
	}
	return &chain.Block{
		Header: *c.Header(number),
		Transactions: []chain.Transaction{{
			Hash:      HashOf(number ^ 1<<63),
			Witnesses: [][]byte{witness.Bytes()},
		}},
	}
}

// TipHeader returns the tip and then advances it
func (c *Chain) TipHeader(ctx context.Context) (*chain.Header, error) {
	c.mu.Lock()
	tip := c.tip
	c.tip += c.cfg.Step
	if c.tip > c.cfg.MaxTip {
		c.tip = c.cfg.MaxTip
	}
	c.mu.Unlock()
	return c.Header(tip), nil
}

// BlockByNumber returns a block at or below the tip
func (c *Chain) BlockByNumber(ctx context.Context, number uint64) (*chain.Block, error) {
	c.mu.Lock()
	if c.failures[number] > 0 {
		c.failures[number]--
		c.mu.Unlock()
		return nil, fmt.Errorf("simulated failure for block %d", number)
	}
	beyond := number > c.tip
	c.mu.Unlock()
	if beyond {
		return nil, fmt.Errorf("block %d: %w", number, chain.ErrNotFound)
	}
	return c.Block(number), nil
}

// BlockHash returns the hash of a block at or below the tip
func (c *Chain) BlockHash(ctx context.Context, number uint64) (chain.Hash, error) {
	c.mu.Lock()
	c.hashQueries = append(c.hashQueries, number)
	beyond := number > c.tip
	c.mu.Unlock()
	if beyond {
		return chain.Hash{}, fmt.Errorf("block hash %d: %w", number, chain.ErrNotFound)
	}
	return HashOf(number), nil
}

// HeaderByNumber returns a header at or below the tip
func (c *Chain) HeaderByNumber(ctx context.Context, number uint64) (*chain.Header, error) {
	if number > c.Tip() {
		return nil, fmt.Errorf("header %d: %w", number, chain.ErrNotFound)
	}
	return c.Header(number), nil
}

// EpochByNumber returns an epoch that has started
func (c *Chain) EpochByNumber(ctx context.Context, number uint64) (*chain.Epoch, error) {
	epoch := c.Epoch(number)
	if epoch.StartNumber > c.Tip() {
		return nil, fmt.Errorf("epoch %d: %w", number, chain.ErrNotFound)
	}
	return epoch, nil
}

// CellbaseOutputCapacityDetails returns the reward of the block with the given hash
func (c *Chain) CellbaseOutputCapacityDetails(ctx context.Context, hash chain.Hash) (*chain.BlockReward, error) {
	number := binary.BigEndian.Uint64(hash[:8])
	if HashOf(number) != hash || number > c.Tip() {
		return nil, fmt.Errorf("block reward %s: %w", hash.Hex(), chain.ErrNotFound)
	}
	primary := c.cfg.Reward(number)
	return &chain.BlockReward{Primary: primary, Total: primary}, nil
}
