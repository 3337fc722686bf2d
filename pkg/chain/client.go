package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client talks to a CKB node over JSON-RPC
type Client struct {
	rpcClient *rpc.Client
	url       string
}

var _ Node = (*Client)(nil)

// Dial connects to a CKB node and checks it answers before returning
func Dial(ctx context.Context, url string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	client := &Client{rpcClient: rpcClient, url: url}

	// Test connection
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.TipHeader(probeCtx); err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to query %s: %w", url, err)
	}

	return client, nil
}

// URL returns the node endpoint
func (c *Client) URL() string {
	return c.url
}

// Close closes the client connection
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// TipHeader returns the header of the current tip block
func (c *Client) TipHeader(ctx context.Context) (*Header, error) {
	var raw *headerJSON
	if err := c.rpcClient.CallContext(ctx, &raw, "get_tip_header"); err != nil {
		return nil, fmt.Errorf("get_tip_header: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("get_tip_header: %w", ErrNotFound)
	}
	return raw.header(), nil
}

// BlockByNumber returns the block at the given height
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*Block, error) {
	var raw *blockJSON
	if err := c.rpcClient.CallContext(ctx, &raw, "get_block_by_number", hexutil.Uint64(number)); err != nil {
		return nil, fmt.Errorf("get_block_by_number(%d): %w", number, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("block %d: %w", number, ErrNotFound)
	}
	return raw.block(), nil
}

// BlockHash returns the hash of the block at the given height
func (c *Client) BlockHash(ctx context.Context, number uint64) (Hash, error) {
	var raw *common.Hash
	if err := c.rpcClient.CallContext(ctx, &raw, "get_block_hash", hexutil.Uint64(number)); err != nil {
		return Hash{}, fmt.Errorf("get_block_hash(%d): %w", number, err)
	}
	if raw == nil {
		return Hash{}, fmt.Errorf("block hash %d: %w", number, ErrNotFound)
	}
	return *raw, nil
}

// HeaderByNumber returns the header at the given height
func (c *Client) HeaderByNumber(ctx context.Context, number uint64) (*Header, error) {
	var raw *headerJSON
	if err := c.rpcClient.CallContext(ctx, &raw, "get_header_by_number", hexutil.Uint64(number)); err != nil {
		return nil, fmt.Errorf("get_header_by_number(%d): %w", number, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("header %d: %w", number, ErrNotFound)
	}
	return raw.header(), nil
}

// EpochByNumber returns the epoch with the given number
func (c *Client) EpochByNumber(ctx context.Context, number uint64) (*Epoch, error) {
	var raw *epochJSON
	if err := c.rpcClient.CallContext(ctx, &raw, "get_epoch_by_number", hexutil.Uint64(number)); err != nil {
		return nil, fmt.Errorf("get_epoch_by_number(%d): %w", number, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("epoch %d: %w", number, ErrNotFound)
	}
	return raw.epoch(), nil
}

// CellbaseOutputCapacityDetails returns the reward paid by the cellbase of the given block
func (c *Client) CellbaseOutputCapacityDetails(ctx context.Context, hash Hash) (*BlockReward, error) {
	var raw *blockRewardJSON
	if err := c.rpcClient.CallContext(ctx, &raw, "get_cellbase_output_capacity_details", hash); err != nil {
		return nil, fmt.Errorf("get_cellbase_output_capacity_details(%s): %w", hash.Hex(), err)
	}
	if raw == nil {
		return nil, fmt.Errorf("block reward %s: %w", hash.Hex(), ErrNotFound)
	}
	return raw.reward(), nil
}
