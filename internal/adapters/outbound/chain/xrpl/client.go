package xrpl

import (
	"context"
	"encoding/json"
	"math/big"

	"depositwatch/internal/adapters/outbound/chain/jsonrpc"
	"depositwatch/internal/application/dto"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

const pageLimit = 200

type rpcCaller interface {
	Call(ctx context.Context, method string, params any, out any) *apperrors.AppError
}

// resultEnvelope covers the fields rippled puts on every result object.
type resultEnvelope struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

type ledgerResult struct {
	resultEnvelope
	LedgerIndex int64 `json:"ledger_index"`
	Validated   bool  `json:"validated"`
}

type accountTxResult struct {
	resultEnvelope
	LedgerIndexMax int64           `json:"ledger_index_max"`
	Marker         json.RawMessage `json:"marker"`
	Transactions   []accountTxItem `json:"transactions"`
}

type accountTxItem struct {
	Meta struct {
		TransactionResult string          `json:"TransactionResult"`
		DeliveredAmount   json.RawMessage `json:"delivered_amount"`
	} `json:"meta"`
	Tx struct {
		TransactionType string  `json:"TransactionType"`
		Destination     string  `json:"Destination"`
		DestinationTag  *uint32 `json:"DestinationTag"`
		Hash            string  `json:"hash"`
		LedgerIndex     int64   `json:"ledger_index"`
	} `json:"tx"`
	Validated bool `json:"validated"`
}

// Client pages through the validated history of one shared receiving
// account. Only native XRP payments that delivered funds are reported.
type Client struct {
	rpc rpcCaller
}

func NewClient(endpoint string, options jsonrpc.Options) *Client {
	return &Client{rpc: jsonrpc.NewClient(endpoint, options)}
}

func (c *Client) CurrentCursor(ctx context.Context) (int64, *apperrors.AppError) {
	var result ledgerResult
	if appErr := c.call(ctx, "ledger", map[string]any{"ledger_index": "validated"}, &result, &result.resultEnvelope); appErr != nil {
		return 0, appErr
	}
	if result.LedgerIndex <= 0 {
		return 0, jsonrpc.Malformed("ledger", "validated ledger index is missing", nil)
	}
	return result.LedgerIndex, nil
}

func (c *Client) AccountTransactions(ctx context.Context, query dto.AccountHistoryQuery) (dto.AccountHistoryPage, *apperrors.AppError) {
	params := map[string]any{
		"account":          query.Address,
		"ledger_index_min": query.SinceCursor + 1,
		"ledger_index_max": -1,
		"forward":          true,
		"limit":            pageLimit,
	}
	if query.Marker != "" {
		params["marker"] = json.RawMessage(query.Marker)
	}

	var result accountTxResult
	if appErr := c.call(ctx, "account_tx", params, &result, &result.resultEnvelope); appErr != nil {
		return dto.AccountHistoryPage{}, appErr
	}

	page := dto.AccountHistoryPage{UpperBound: result.LedgerIndexMax}
	if len(result.Marker) > 0 && string(result.Marker) != "null" {
		page.Marker = string(result.Marker)
	}
	for _, item := range result.Transactions {
		if transfer, ok := incomingPayment(item, query.Address); ok {
			page.Transfers = append(page.Transfers, transfer)
		}
	}
	return page, nil
}

func (c *Client) call(ctx context.Context, method string, params map[string]any, out any, envelope *resultEnvelope) *apperrors.AppError {
	if appErr := c.rpc.Call(ctx, method, []any{params}, out); appErr != nil {
		return appErr
	}
	if envelope.Status != "success" {
		return apperrors.NewUnavailable(
			jsonrpc.CodeRemoteError,
			"xrpl request failed",
			map[string]any{"method": method, "rpc_error": envelope.Error, "rpc_message": envelope.ErrorMessage},
		)
	}
	return nil
}

func incomingPayment(item accountTxItem, account string) (dto.ObservedTransfer, bool) {
	if !item.Validated || item.Tx.TransactionType != "Payment" || item.Meta.TransactionResult != "tesSUCCESS" {
		return dto.ObservedTransfer{}, false
	}
	if item.Tx.Destination != account {
		return dto.ObservedTransfer{}, false
	}

	// Issued currencies deliver an object; native XRP is a string of drops.
	var drops string
	if err := json.Unmarshal(item.Meta.DeliveredAmount, &drops); err != nil {
		return dto.ObservedTransfer{}, false
	}
	amount, ok := new(big.Int).SetString(drops, 10)
	if !ok || amount.Sign() <= 0 {
		return dto.ObservedTransfer{}, false
	}

	return dto.ObservedTransfer{
		TxRef:       item.Tx.Hash,
		To:          item.Tx.Destination,
		Memo:        item.Tx.DestinationTag,
		AmountMinor: amount,
		Height:      item.Tx.LedgerIndex,
	}, true
}
