package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// JSON views as served by the node. Quantities are 0x-prefixed hex.

type headerJSON struct {
	Number        hexutil.Uint64 `json:"number"`
	Hash          common.Hash    `json:"hash"`
	ParentHash    common.Hash    `json:"parent_hash"`
	Timestamp     hexutil.Uint64 `json:"timestamp"`
	CompactTarget hexutil.Uint64 `json:"compact_target"`
	Epoch         hexutil.Uint64 `json:"epoch"`
}

type transactionJSON struct {
	Hash      common.Hash     `json:"hash"`
	Witnesses []hexutil.Bytes `json:"witnesses"`
}

type blockJSON struct {
	Header       headerJSON        `json:"header"`
	Transactions []transactionJSON `json:"transactions"`
}

type epochJSON struct {
	Number        hexutil.Uint64 `json:"number"`
	StartNumber   hexutil.Uint64 `json:"start_number"`
	Length        hexutil.Uint64 `json:"length"`
	CompactTarget hexutil.Uint64 `json:"compact_target"`
}

type blockRewardJSON struct {
	Primary        hexutil.Uint64 `json:"primary"`
	Secondary      hexutil.Uint64 `json:"secondary"`
	ProposalReward hexutil.Uint64 `json:"proposal_reward"`
	TxFee          hexutil.Uint64 `json:"tx_fee"`
	Total          hexutil.Uint64 `json:"total"`
}

func (h *headerJSON) header() *Header {
	return &Header{
		Number:        uint64(h.Number),
		Hash:          h.Hash,
		ParentHash:    h.ParentHash,
		Timestamp:     uint64(h.Timestamp),
		CompactTarget: uint32(h.CompactTarget),
		Epoch:         EpochNumberWithFraction(h.Epoch),
	}
}

func (b *blockJSON) block() *Block {
	block := &Block{
		Header:       *b.Header.header(),
		Transactions: make([]Transaction, 0, len(b.Transactions)),
	}
	for _, tx := range b.Transactions {
		witnesses := make([][]byte, 0, len(tx.Witnesses))
		for _, w := range tx.Witnesses {
			witnesses = append(witnesses, w)
		}
		block.Transactions = append(block.Transactions, Transaction{Hash: tx.Hash, Witnesses: witnesses})
	}
	return block
}

func (e *epochJSON) epoch() *Epoch {
	return &Epoch{
		Number:        uint64(e.Number),
		StartNumber:   uint64(e.StartNumber),
		Length:        uint64(e.Length),
		CompactTarget: uint32(e.CompactTarget),
	}
}

func (r *blockRewardJSON) reward() *BlockReward {
	return &BlockReward{
		Primary:        uint64(r.Primary),
		Secondary:      uint64(r.Secondary),
		ProposalReward: uint64(r.ProposalReward),
		TxFee:          uint64(r.TxFee),
		Total:          uint64(r.Total),
	}
}

// Marshal helpers used by simulated nodes.

// MarshalHeader returns the JSON view of a header
func MarshalHeader(h *Header) any {
	return newHeaderJSON(h)
}

func newHeaderJSON(h *Header) *headerJSON {
	return &headerJSON{
		Number:        hexutil.Uint64(h.Number),
		Hash:          h.Hash,
		ParentHash:    h.ParentHash,
		Timestamp:     hexutil.Uint64(h.Timestamp),
		CompactTarget: hexutil.Uint64(h.CompactTarget),
		Epoch:         hexutil.Uint64(h.Epoch),
	}
}

// MarshalBlock returns the JSON view of a block
func MarshalBlock(b *Block) any {
	out := &blockJSON{Header: *newHeaderJSON(&b.Header)}
	for _, tx := range b.Transactions {
		view := transactionJSON{Hash: tx.Hash, Witnesses: make([]hexutil.Bytes, 0, len(tx.Witnesses))}
		for _, w := range tx.Witnesses {
			view.Witnesses = append(view.Witnesses, w)
		}
		out.Transactions = append(out.Transactions, view)
	}
	return out
}

// MarshalEpoch returns the JSON view of an epoch
func MarshalEpoch(e *Epoch) any {
	return &epochJSON{
		Number:        hexutil.Uint64(e.Number),
		StartNumber:   hexutil.Uint64(e.StartNumber),
		Length:        hexutil.Uint64(e.Length),
		CompactTarget: hexutil.Uint64(e.CompactTarget),
	}
}

// MarshalBlockReward returns the JSON view of a block reward
func MarshalBlockReward(r *BlockReward) any {
	return &blockRewardJSON{
		Primary:        hexutil.Uint64(r.Primary),
		Secondary:      hexutil.Uint64(r.Secondary),
		ProposalReward: hexutil.Uint64(r.ProposalReward),
		TxFee:          hexutil.Uint64(r.TxFee),
		Total:          hexutil.Uint64(r.Total),
	}
}
