package evm

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"depositwatch/internal/application/dto"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/ratelimit"
)

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

type TokenContract struct {
	Symbol   string
	Address  string
	Decimals int32
}

type Config struct {
	Chain         valueobjects.Chain
	Endpoint      string
	Timeout       time.Duration
	RatePerSecond int
	Tokens        []TokenContract
	HTTPClient    *http.Client
}

// Client reads blocks, receipts and ERC-20 Transfer logs from one EVM node.
type Client struct {
	chain   valueobjects.Chain
	rpc     *rpc.Client
	eth     *ethclient.Client
	timeout time.Duration
	limiter ratelimit.Limiter
	tokens  map[common.Address]TokenContract
	filter  []common.Address
}

type rpcBlock struct {
	Number       hexutil.Uint64   `json:"number"`
	Timestamp    hexutil.Uint64   `json:"timestamp"`
	Transactions []rpcTransaction `json:"transactions"`
}

type rpcTransaction struct {
	Hash  common.Hash     `json:"hash"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
}

type rpcReceipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	Status          hexutil.Uint64 `json:"status"`
}

func NewClient(config Config) (*Client, *apperrors.AppError) {
	endpoint := strings.TrimSpace(config.Endpoint)
	if endpoint == "" {
		return nil, apperrors.NewInternal(
			"chain_rpc_endpoint_missing",
			"evm rpc endpoint is required",
			map[string]any{"chain": config.Chain.String()},
		)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	rpcClient, err := rpc.DialOptions(context.Background(), endpoint, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, apperrors.NewInternal(
			"chain_rpc_endpoint_invalid",
			"failed to create evm rpc client",
			map[string]any{"chain": config.Chain.String(), "error": err.Error()},
		)
	}

	limiter := ratelimit.NewUnlimited()
	if config.RatePerSecond > 0 {
		limiter = ratelimit.New(config.RatePerSecond)
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		chain:   config.Chain,
		rpc:     rpcClient,
		eth:     ethclient.NewClient(rpcClient),
		timeout: timeout,
		limiter: limiter,
		tokens:  map[common.Address]TokenContract{},
	}
	for _, token := range config.Tokens {
		if !common.IsHexAddress(token.Address) {
			return nil, apperrors.NewInternal(
				"token_contract_invalid",
				"token contract address is invalid",
				map[string]any{"chain": config.Chain.String(), "symbol": token.Symbol},
			)
		}
		address := common.HexToAddress(token.Address)
		client.tokens[address] = token
		client.filter = append(client.filter, address)
	}

	return client, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) CurrentHeight(ctx context.Context) (int64, *apperrors.AppError) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	height, err := c.eth.BlockNumber(callCtx)
	if err != nil {
		return 0, c.rpcFailure("eth_blockNumber", err)
	}
	return int64(height), nil
}

func (c *Client) Block(ctx context.Context, height int64) (dto.ObservedBlock, *apperrors.AppError) {
	block, appErr := c.fetchBlock(ctx, height)
	if appErr != nil {
		return dto.ObservedBlock{}, appErr
	}

	observed := dto.ObservedBlock{
		Height:    height,
		Timestamp: time.Unix(int64(block.Timestamp), 0).UTC(),
	}

	native := make([]rpcTransaction, 0)
	for _, tx := range block.Transactions {
		if tx.To == nil || tx.Value == nil || tx.Value.ToInt().Sign() <= 0 {
			continue
		}
		native = append(native, tx)
	}
	if len(native) > 0 {
		succeeded, appErr := c.successfulTransactions(ctx, height)
		if appErr != nil {
			return dto.ObservedBlock{}, appErr
		}
		for _, tx := range native {
			ok, found := succeeded[tx.Hash]
			if !found {
				return dto.ObservedBlock{}, apperrors.NewUnavailable(
					"chain_rpc_malformed_response",
					"block receipts are missing a transaction",
					map[string]any{"chain": c.chain.String(), "height": height, "tx_hash": tx.Hash.Hex()},
				)
			}
			if !ok {
				continue
			}
			observed.Transfers = append(observed.Transfers, dto.ObservedTransfer{
				TxRef:       tx.Hash.Hex(),
				To:          tx.To.Hex(),
				AmountMinor: new(big.Int).Set(tx.Value.ToInt()),
				Height:      height,
			})
		}
	}

	tokenTransfers, appErr := c.tokenTransfers(ctx, height)
	if appErr != nil {
		return dto.ObservedBlock{}, appErr
	}
	observed.Transfers = append(observed.Transfers, tokenTransfers...)

	return observed, nil
}

func (c *Client) fetchBlock(ctx context.Context, height int64) (*rpcBlock, *apperrors.AppError) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	var block *rpcBlock
	if err := c.rpc.CallContext(callCtx, &block, "eth_getBlockByNumber", hexutil.EncodeUint64(uint64(height)), true); err != nil {
		return nil, c.rpcFailure("eth_getBlockByNumber", err)
	}
	if block == nil {
		return nil, apperrors.NewUnavailable(
			"chain_block_unavailable",
			"block is not available yet",
			map[string]any{"chain": c.chain.String(), "height": height},
		)
	}
	if int64(block.Number) != height {
		return nil, apperrors.NewUnavailable(
			"chain_rpc_malformed_response",
			"node returned a different block than requested",
			map[string]any{"chain": c.chain.String(), "height": height, "returned": uint64(block.Number)},
		)
	}
	return block, nil
}

// successfulTransactions fetches all receipts of one block and maps each
// hash to whether it has status 1. Reverted transactions move no value.
func (c *Client) successfulTransactions(ctx context.Context, height int64) (map[common.Hash]bool, *apperrors.AppError) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	var receipts []rpcReceipt
	if err := c.rpc.CallContext(callCtx, &receipts, "eth_getBlockReceipts", hexutil.EncodeUint64(uint64(height))); err != nil {
		return nil, c.rpcFailure("eth_getBlockReceipts", err)
	}
	if receipts == nil {
		return nil, apperrors.NewUnavailable(
			"chain_rpc_malformed_response",
			"node returned no receipts for block",
			map[string]any{"chain": c.chain.String(), "height": height},
		)
	}

	succeeded := make(map[common.Hash]bool, len(receipts))
	for _, receipt := range receipts {
		succeeded[receipt.TransactionHash] = receipt.Status == 1
	}
	return succeeded, nil
}

func (c *Client) tokenTransfers(ctx context.Context, height int64) ([]dto.ObservedTransfer, *apperrors.AppError) {
	if len(c.filter) == 0 {
		return nil, nil
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	number := new(big.Int).SetInt64(height)
	logs, err := c.eth.FilterLogs(callCtx, ethereum.FilterQuery{
		FromBlock: number,
		ToBlock:   number,
		Addresses: c.filter,
		Topics:    [][]common.Hash{{transferTopic}},
	})
	if err != nil {
		return nil, c.rpcFailure("eth_getLogs", err)
	}

	transfers := make([]dto.ObservedTransfer, 0, len(logs))
	for _, log := range logs {
		if log.Removed || len(log.Topics) != 3 || len(log.Data) != 32 {
			continue
		}
		token, ok := c.tokens[log.Address]
		if !ok {
			continue
		}
		transfers = append(transfers, dto.ObservedTransfer{
			TxRef:       log.TxHash.Hex() + ":" + strconv.FormatUint(uint64(log.Index), 10),
			To:          common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
			Token:       token.Symbol,
			Decimals:    token.Decimals,
			AmountMinor: new(big.Int).SetBytes(log.Data),
			Height:      height,
		})
	}
	return transfers, nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	c.limiter.Take()
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) rpcFailure(method string, err error) *apperrors.AppError {
	code := "chain_rpc_unavailable"
	if errors.Is(err, context.DeadlineExceeded) {
		code = "chain_rpc_timeout"
	}

	details := map[string]any{"chain": c.chain.String(), "method": method, "error": err.Error()}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		code = "chain_rpc_error"
		details["rpc_code"] = rpcErr.ErrorCode()
	}
	return apperrors.NewUnavailable(code, "evm rpc call failed", details)
}
