package tron

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"time"

	"depositwatch/internal/application/dto"
	apperrors "depositwatch/internal/shared_kernel/errors"

	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/fbsobreira/gotron-sdk/pkg/client"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"go.uber.org/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

type Config struct {
	GRPCAddress   string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond int
}

// blockAPI is the subset of the gotron-sdk client used for scanning.
type blockAPI interface {
	GetNowBlock() (*api.BlockExtention, error)
	GetBlockByNum(num int64) (*api.BlockExtention, error)
}

type Client struct {
	api     blockAPI
	stop    func()
	limiter ratelimit.Limiter
}

func NewClient(config Config) (*Client, *apperrors.AppError) {
	grpcAddress := strings.TrimSpace(config.GRPCAddress)
	if grpcAddress == "" {
		return nil, apperrors.NewInternal("chain_rpc_endpoint_missing", "tron grpc address is required", nil)
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	grpcClient := client.NewGrpcClientWithTimeout(grpcAddress, timeout)
	if config.APIKey != "" {
		grpcClient.SetAPIKey(config.APIKey)
	}
	if err := grpcClient.Start(grpc.WithTransportCredentials(insecure.NewCredentials())); err != nil {
		return nil, apperrors.NewInternal(
			"chain_rpc_endpoint_invalid",
			"failed to start tron grpc client",
			map[string]any{"error": err.Error(), "address": grpcAddress},
		)
	}

	return newClient(grpcClient, func() { grpcClient.Stop() }, config.RatePerSecond), nil
}

func newClient(blocks blockAPI, stop func(), ratePerSecond int) *Client {
	limiter := ratelimit.NewUnlimited()
	if ratePerSecond > 0 {
		limiter = ratelimit.New(ratePerSecond)
	}
	if stop == nil {
		stop = func() {}
	}
	return &Client{api: blocks, stop: stop, limiter: limiter}
}

func (c *Client) Close() {
	c.stop()
}

func (c *Client) CurrentHeight(ctx context.Context) (int64, *apperrors.AppError) {
	if err := ctx.Err(); err != nil {
		return 0, rpcFailure("GetNowBlock", err)
	}
	c.limiter.Take()

	block, err := c.api.GetNowBlock()
	if err != nil {
		return 0, rpcFailure("GetNowBlock", err)
	}
	header := block.GetBlockHeader().GetRawData()
	if header == nil {
		return 0, apperrors.NewUnavailable("chain_rpc_malformed_response", "tron block has no header", nil)
	}
	return header.GetNumber(), nil
}

func (c *Client) Block(ctx context.Context, height int64) (dto.ObservedBlock, *apperrors.AppError) {
	if err := ctx.Err(); err != nil {
		return dto.ObservedBlock{}, rpcFailure("GetBlockByNum", err)
	}
	c.limiter.Take()

	block, err := c.api.GetBlockByNum(height)
	if err != nil {
		return dto.ObservedBlock{}, rpcFailure("GetBlockByNum", err)
	}
	return observeBlock(block, height)
}

// observeBlock extracts successful native TransferContract payments. TRC-20
// transfers are not decoded.
func observeBlock(block *api.BlockExtention, height int64) (dto.ObservedBlock, *apperrors.AppError) {
	header := block.GetBlockHeader().GetRawData()
	if header == nil || header.GetNumber() != height {
		return dto.ObservedBlock{}, apperrors.NewUnavailable(
			"chain_rpc_malformed_response",
			"tron node returned a different block than requested",
			map[string]any{"height": height},
		)
	}

	observed := dto.ObservedBlock{
		Height:    height,
		Timestamp: time.UnixMilli(header.GetTimestamp()).UTC(),
	}
	for _, tx := range block.GetTransactions() {
		transaction := tx.GetTransaction()
		if transaction == nil || !succeeded(transaction) {
			continue
		}
		txID := hex.EncodeToString(tx.GetTxid())
		contracts := transaction.GetRawData().GetContract()
		for index, contract := range contracts {
			if contract.GetType() != core.Transaction_Contract_TransferContract {
				continue
			}
			var transfer core.TransferContract
			if err := proto.Unmarshal(contract.GetParameter().GetValue(), &transfer); err != nil {
				return dto.ObservedBlock{}, apperrors.NewUnavailable(
					"chain_rpc_malformed_response",
					"failed to decode tron transfer contract",
					map[string]any{"height": height, "txid": txID, "error": err.Error()},
				)
			}
			if transfer.GetAmount() <= 0 {
				continue
			}
			txRef := txID
			if len(contracts) > 1 {
				txRef = txID + ":" + strconv.Itoa(index)
			}
			observed.Transfers = append(observed.Transfers, dto.ObservedTransfer{
				TxRef:       txRef,
				To:          address.Address(transfer.GetToAddress()).String(),
				AmountMinor: big.NewInt(transfer.GetAmount()),
				Height:      height,
			})
		}
	}
	return observed, nil
}

func succeeded(transaction *core.Transaction) bool {
	for _, ret := range transaction.GetRet() {
		switch ret.GetContractRet() {
		case core.Transaction_Result_DEFAULT, core.Transaction_Result_SUCCESS:
		default:
			return false
		}
	}
	return true
}

func rpcFailure(method string, err error) *apperrors.AppError {
	code := "chain_rpc_unavailable"
	if errors.Is(err, context.DeadlineExceeded) || status.Code(err) == codes.DeadlineExceeded {
		code = "chain_rpc_timeout"
	}
	return apperrors.NewUnavailable(code, "tron grpc call failed", map[string]any{"method": method, "error": err.Error()})
}
