// Package chain provides access to CKB chain data needed for genesis generation
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotFound is returned when the node has no data for the requested item
var ErrNotFound = errors.New("not found")

// Hash is a 32-byte block or transaction hash
type Hash = common.Hash

const (
	epochNumberBits = 24
	epochIndexBits  = 16
	epochLengthBits = 16

	epochIndexOffset  = epochNumberBits
	epochLengthOffset = epochNumberBits + epochIndexBits

	epochNumberMask = 1<<epochNumberBits - 1
	epochIndexMask  = 1<<epochIndexBits - 1
	epochLengthMask = 1<<epochLengthBits - 1
)

// EpochNumberWithFraction packs an epoch number, the index of a block inside
// that epoch and the epoch length into a single value
type EpochNumberWithFraction uint64

// NewEpochNumberWithFraction packs the three components
func NewEpochNumberWithFraction(number, index, length uint64) EpochNumberWithFraction {
	return EpochNumberWithFraction(
		(length&epochLengthMask)<<epochLengthOffset |
			(index&epochIndexMask)<<epochIndexOffset |
			number&epochNumberMask,
	)
}

// Number returns the epoch number
func (e EpochNumberWithFraction) Number() uint64 {
	return uint64(e) & epochNumberMask
}

// Index returns the position of the block inside its epoch
func (e EpochNumberWithFraction) Index() uint64 {
	return uint64(e) >> epochIndexOffset & epochIndexMask
}

// Length returns the epoch length
func (e EpochNumberWithFraction) Length() uint64 {
	return uint64(e) >> epochLengthOffset & epochLengthMask
}

// FullValue returns the packed representation
func (e EpochNumberWithFraction) FullValue() uint64 {
	return uint64(e)
}

func (e EpochNumberWithFraction) String() string {
	return fmt.Sprintf("%d(%d/%d)", e.Number(), e.Index(), e.Length())
}

// Header holds the header fields used during generation
type Header struct {
	Number        uint64
	Hash          Hash
	ParentHash    Hash
	Timestamp     uint64
	CompactTarget uint32
	Epoch         EpochNumberWithFraction
}

// Transaction holds the transaction fields used during generation
type Transaction struct {
	Hash      Hash
	Witnesses [][]byte
}

// Block is a header plus its transactions, cellbase first
type Block struct {
	Header       Header
	Transactions []Transaction
}

// Epoch describes an epoch
type Epoch struct {
	Number        uint64
	StartNumber   uint64
	Length        uint64
	CompactTarget uint32
}

// BlockReward is the reward breakdown paid by a cellbase, in shannons
type BlockReward struct {
	Primary        uint64
	Secondary      uint64
	ProposalReward uint64
	TxFee          uint64
	Total          uint64
}

// Node is the subset of the CKB node API used by the collector
type Node interface {
	TipHeader(ctx context.Context) (*Header, error)
	BlockByNumber(ctx context.Context, number uint64) (*Block, error)
	BlockHash(ctx context.Context, number uint64) (Hash, error)
	HeaderByNumber(ctx context.Context, number uint64) (*Header, error)
	EpochByNumber(ctx context.Context, number uint64) (*Epoch, error)
	CellbaseOutputCapacityDetails(ctx context.Context, hash Hash) (*BlockReward, error)
}
