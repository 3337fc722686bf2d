package chaintest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/chain"
)

type request struct {
	Version string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type response struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Handler serves the chain over CKB JSON-RPC. Missing data is answered
// with a null result like a real node.
func (c *Chain) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := response{Version: "2.0", ID: req.ID}
		result, err := c.dispatch(r, &req)
		switch {
		case errors.Is(err, chain.ErrNotFound):
			resp.Result = nil
		case err != nil:
			resp.Error = &rpcError{Code: -32000, Message: err.Error()}
		default:
			resp.Result = result
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&resp)
	})
}

func (c *Chain) dispatch(r *http.Request, req *request) (any, error) {
	ctx := r.Context()
	switch req.Method {
	case "get_tip_header":
		header, err := c.TipHeader(ctx)
		if err != nil {
			return nil, err
		}
		return chain.MarshalHeader(header), nil
	case "get_block_by_number":
		number, err := numberParam(req)
		if err != nil {
			return nil, err
		}
		block, err := c.BlockByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		return chain.MarshalBlock(block), nil
	case "get_block_hash":
		number, err := numberParam(req)
		if err != nil {
			return nil, err
		}
		return c.BlockHash(ctx, number)
	case "get_header_by_number":
		number, err := numberParam(req)
		if err != nil {
			return nil, err
		}
		header, err := c.HeaderByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		return chain.MarshalHeader(header), nil
	case "get_epoch_by_number":
		number, err := numberParam(req)
		if err != nil {
			return nil, err
		}
		epoch, err := c.EpochByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		return chain.MarshalEpoch(epoch), nil
	case "get_cellbase_output_capacity_details":
		if len(req.Params) != 1 {
			return nil, fmt.Errorf("%s expects 1 param", req.Method)
		}
		var hash common.Hash
		if err := json.Unmarshal(req.Params[0], &hash); err != nil {
			return nil, fmt.Errorf("invalid hash: %w", err)
		}
		reward, err := c.CellbaseOutputCapacityDetails(ctx, hash)
		if err != nil {
			return nil, err
		}
		return chain.MarshalBlockReward(reward), nil
	default:
		return nil, fmt.Errorf("method %q not supported", req.Method)
	}
}

func numberParam(req *request) (uint64, error) {
	if len(req.Params) != 1 {
		return 0, fmt.Errorf("%s expects 1 param", req.Method)
	}
	var number hexutil.Uint64
	if err := json.Unmarshal(req.Params[0], &number); err != nil {
		return 0, fmt.Errorf("invalid number: %w", err)
	}
	return uint64(number), nil
}
