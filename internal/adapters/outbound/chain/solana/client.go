package solana

import (
	"context"
	"math/big"
	"time"

	"depositwatch/internal/adapters/outbound/chain/jsonrpc"
	"depositwatch/internal/application/dto"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

const (
	errSlotSkipped        = -32007
	errLongTermStorage    = -32009
	finalizedCommitment   = "finalized"
	supportedTxVersionMax = 0
)

type rpcCaller interface {
	Call(ctx context.Context, method string, params any, out any) *apperrors.AppError
}

type getBlockResult struct {
	BlockTime    *int64          `json:"blockTime"`
	Transactions []blockTxResult `json:"transactions"`
}

type blockTxResult struct {
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
	Meta *struct {
		Err             any      `json:"err"`
		PreBalances     []uint64 `json:"preBalances"`
		PostBalances    []uint64 `json:"postBalances"`
		LoadedAddresses *struct {
			Writable []string `json:"writable"`
			Readonly []string `json:"readonly"`
		} `json:"loadedAddresses"`
	} `json:"meta"`
}

// Client reads finalized slots over the Solana JSON-RPC API. Deposits are
// positive lamport balance changes, which covers plain transfers as well as
// program-driven credits.
type Client struct {
	rpc rpcCaller
}

func NewClient(endpoint string, options jsonrpc.Options) *Client {
	return &Client{rpc: jsonrpc.NewClient(endpoint, options)}
}

func (c *Client) CurrentHeight(ctx context.Context) (int64, *apperrors.AppError) {
	var slot int64
	if appErr := c.rpc.Call(ctx, "getSlot", []any{map[string]any{"commitment": finalizedCommitment}}, &slot); appErr != nil {
		return 0, appErr
	}
	return slot, nil
}

func (c *Client) Block(ctx context.Context, slot int64) (dto.ObservedBlock, *apperrors.AppError) {
	var result *getBlockResult
	appErr := c.rpc.Call(ctx, "getBlock", []any{slot, map[string]any{
		"commitment":                     finalizedCommitment,
		"encoding":                       "json",
		"transactionDetails":             "full",
		"rewards":                        false,
		"maxSupportedTransactionVersion": supportedTxVersionMax,
	}}, &result)
	if appErr != nil {
		if code, ok := jsonrpc.RemoteCode(appErr); ok && (code == errSlotSkipped || code == errLongTermStorage) {
			return dto.ObservedBlock{Height: slot}, nil
		}
		return dto.ObservedBlock{}, appErr
	}
	// Only the skip codes above mark an empty slot. A finalized slot with a
	// null body has not been observed.
	if result == nil {
		return dto.ObservedBlock{}, jsonrpc.Malformed("getBlock", "node returned no block for finalized slot", nil)
	}

	block := dto.ObservedBlock{Height: slot}
	if result.BlockTime != nil {
		block.Timestamp = time.Unix(*result.BlockTime, 0).UTC()
	}
	for _, tx := range result.Transactions {
		transfers, txErr := balanceCredits(tx, slot)
		if txErr != nil {
			return dto.ObservedBlock{}, txErr
		}
		block.Transfers = append(block.Transfers, transfers...)
	}
	return block, nil
}

func balanceCredits(tx blockTxResult, slot int64) ([]dto.ObservedTransfer, *apperrors.AppError) {
	if tx.Meta == nil {
		return nil, jsonrpc.Malformed("getBlock", "transaction status metadata is missing", nil)
	}
	if tx.Meta.Err != nil || len(tx.Transaction.Signatures) == 0 {
		return nil, nil
	}

	keys := append([]string{}, tx.Transaction.Message.AccountKeys...)
	if loaded := tx.Meta.LoadedAddresses; loaded != nil {
		keys = append(keys, loaded.Writable...)
		keys = append(keys, loaded.Readonly...)
	}
	if len(tx.Meta.PreBalances) != len(keys) || len(tx.Meta.PostBalances) != len(keys) {
		return nil, jsonrpc.Malformed("getBlock", "balance arrays do not match account keys", nil)
	}

	signature := tx.Transaction.Signatures[0]
	credits := make([]dto.ObservedTransfer, 0, 1)
	for i, key := range keys {
		pre, post := tx.Meta.PreBalances[i], tx.Meta.PostBalances[i]
		if post <= pre {
			continue
		}
		credits = append(credits, dto.ObservedTransfer{
			TxRef:       signature,
			To:          key,
			AmountMinor: new(big.Int).SetUint64(post - pre),
			Height:      slot,
		})
	}
	// One transaction can credit several accounts; each needs its own ref.
	if len(credits) > 1 {
		for i := range credits {
			credits[i].TxRef = signature + ":" + credits[i].To
		}
	}
	return credits, nil
}
