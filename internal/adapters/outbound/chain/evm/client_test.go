//go:build !integration

package evm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

const (
	aliceAddress = "0x7840bdf042f7ac9d6382e643c3b78b746233dbad"
	usdcAddress  = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	okTxHash     = "0x1111111111111111111111111111111111111111111111111111111111111111"
	failedTxHash = "0x2222222222222222222222222222222222222222222222222222222222222222"
	createTxHash = "0x3333333333333333333333333333333333333333333333333333333333333333"
	tokenTxHash  = "0x4444444444444444444444444444444444444444444444444444444444444444"
	blockHash    = "0x5555555555555555555555555555555555555555555555555555555555555555"
)

type fakeNode struct {
	mu      sync.Mutex
	methods []string
	results map[string]string
	errors  map[string]string
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.methods = append(n.methods, request.Method)
	result, hasResult := n.results[request.Method]
	rpcErr, hasErr := n.errors[request.Method]
	n.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case hasErr:
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(request.ID) + `,"error":` + rpcErr + `}`))
	case hasResult:
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(request.ID) + `,"result":` + result + `}`))
	default:
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(request.ID) + `,"error":{"code":-32601,"message":"method not found"}}`))
	}
}

func (n *fakeNode) called(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, m := range n.methods {
		if m == method {
			count++
		}
	}
	return count
}

func newTestClient(t *testing.T, node *fakeNode, tokens []TokenContract) *Client {
	t.Helper()
	server := httptest.NewServer(node)
	t.Cleanup(server.Close)

	client, appErr := NewClient(Config{
		Chain:    valueobjects.ChainETH,
		Endpoint: server.URL,
		Timeout:  time.Second,
		Tokens:   tokens,
	})
	if appErr != nil {
		t.Fatalf("new client: %v", appErr)
	}
	t.Cleanup(client.Close)
	return client
}

func testBlockJSON() string {
	return `{
		"number": "0x10",
		"timestamp": "0x6553f100",
		"transactions": [
			{"hash": "` + okTxHash + `", "to": "` + aliceAddress + `", "value": "0x22b1c8c1227a0000"},
			{"hash": "` + failedTxHash + `", "to": "` + aliceAddress + `", "value": "0x1"},
			{"hash": "` + createTxHash + `", "to": null, "value": "0x5"},
			{"hash": "0x6666666666666666666666666666666666666666666666666666666666666666", "to": "` + aliceAddress + `", "value": "0x0"}
		]
	}`
}

func testReceiptsJSON() string {
	return `[
		{"transactionHash": "` + okTxHash + `", "status": "0x1"},
		{"transactionHash": "` + failedTxHash + `", "status": "0x0"},
		{"transactionHash": "` + createTxHash + `", "status": "0x1"}
	]`
}

func TestClientCurrentHeight(t *testing.T) {
	node := &fakeNode{results: map[string]string{"eth_blockNumber": `"0x1b4"`}}
	client := newTestClient(t, node, nil)

	height, appErr := client.CurrentHeight(context.Background())
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}
	if height != 436 {
		t.Fatalf("expected 436, got %d", height)
	}
}

func TestClientBlockSkipsFailedAndZeroValueTransactions(t *testing.T) {
	node := &fakeNode{results: map[string]string{
		"eth_getBlockByNumber": testBlockJSON(),
		"eth_getBlockReceipts": testReceiptsJSON(),
	}}
	client := newTestClient(t, node, nil)

	block, appErr := client.Block(context.Background(), 16)
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}
	if block.Height != 16 || block.Timestamp.Unix() != 0x6553f100 {
		t.Fatalf("unexpected block header: %+v", block)
	}
	if len(block.Transfers) != 1 {
		t.Fatalf("expected one native transfer, got %+v", block.Transfers)
	}

	transfer := block.Transfers[0]
	if transfer.TxRef != okTxHash || !strings.EqualFold(transfer.To, aliceAddress) {
		t.Fatalf("unexpected transfer: %+v", transfer)
	}
	if transfer.AmountMinor.String() != "2500000000000000000" || transfer.Token != "" {
		t.Fatalf("unexpected amount: %s", transfer.AmountMinor)
	}
	if node.called("eth_getLogs") != 0 {
		t.Fatalf("expected no log query without tokens")
	}
}

func TestClientBlockFailsWhenReceiptsAreIncomplete(t *testing.T) {
	cases := map[string]string{
		"null result":   `null`,
		"empty list":    `[]`,
		"missing entry": `[{"transactionHash": "` + failedTxHash + `", "status": "0x0"}]`,
	}
	for name, receipts := range cases {
		t.Run(name, func(t *testing.T) {
			node := &fakeNode{results: map[string]string{
				"eth_getBlockByNumber": testBlockJSON(),
				"eth_getBlockReceipts": receipts,
			}}
			client := newTestClient(t, node, nil)

			block, appErr := client.Block(context.Background(), 16)
			if appErr == nil || appErr.Code != "chain_rpc_malformed_response" || appErr.Type != apperrors.TypeUnavailable {
				t.Fatalf("expected malformed response, got %+v (transfers %+v)", appErr, block.Transfers)
			}
		})
	}
}

func TestClientBlockIncludesTokenTransferLogs(t *testing.T) {
	logs := `[{
		"address": "` + usdcAddress + `",
		"topics": [
			"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
			"0x000000000000000000000000000000000000000000000000000000000000beef",
			"0x000000000000000000000000` + strings.TrimPrefix(aliceAddress, "0x") + `"
		],
		"data": "0x000000000000000000000000000000000000000000000000000000000016e360",
		"blockNumber": "0x10",
		"transactionHash": "` + tokenTxHash + `",
		"transactionIndex": "0x3",
		"blockHash": "` + blockHash + `",
		"logIndex": "0x4",
		"removed": false
	}]`
	node := &fakeNode{results: map[string]string{
		"eth_getBlockByNumber": `{"number": "0x10", "timestamp": "0x1", "transactions": []}`,
		"eth_getLogs":          logs,
	}}
	client := newTestClient(t, node, []TokenContract{{Symbol: "USDC", Address: usdcAddress, Decimals: 6}})

	block, appErr := client.Block(context.Background(), 16)
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}
	if len(block.Transfers) != 1 {
		t.Fatalf("expected one token transfer, got %+v", block.Transfers)
	}

	transfer := block.Transfers[0]
	if transfer.TxRef != tokenTxHash+":4" || transfer.Token != "USDC" || transfer.Decimals != 6 {
		t.Fatalf("unexpected token transfer: %+v", transfer)
	}
	if !strings.EqualFold(transfer.To, aliceAddress) || transfer.AmountMinor.Int64() != 1500000 {
		t.Fatalf("unexpected token transfer target: %+v", transfer)
	}
	if node.called("eth_getBlockReceipts") != 0 {
		t.Fatalf("expected no receipt query for a block without value transfers")
	}
}

func TestClientBlockNotYetAvailable(t *testing.T) {
	node := &fakeNode{results: map[string]string{"eth_getBlockByNumber": `null`}}
	client := newTestClient(t, node, nil)

	_, appErr := client.Block(context.Background(), 99)
	if appErr == nil || appErr.Code != "chain_block_unavailable" || appErr.Type != apperrors.TypeUnavailable {
		t.Fatalf("expected unavailable block, got %+v", appErr)
	}
}

func TestClientSurfacesRemoteErrors(t *testing.T) {
	node := &fakeNode{errors: map[string]string{"eth_blockNumber": `{"code":-32005,"message":"limit exceeded"}`}}
	client := newTestClient(t, node, nil)

	_, appErr := client.CurrentHeight(context.Background())
	if appErr == nil || appErr.Code != "chain_rpc_error" || appErr.Details["rpc_code"] != -32005 {
		t.Fatalf("expected remote error, got %+v", appErr)
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	if _, appErr := NewClient(Config{Chain: valueobjects.ChainBNB}); appErr == nil || appErr.Code != "chain_rpc_endpoint_missing" {
		t.Fatalf("expected missing endpoint, got %+v", appErr)
	}
	_, appErr := NewClient(Config{
		Chain:    valueobjects.ChainETH,
		Endpoint: "http://127.0.0.1:8545",
		Tokens:   []TokenContract{{Symbol: "BAD", Address: "nope"}},
	})
	if appErr == nil || appErr.Code != "token_contract_invalid" {
		t.Fatalf("expected invalid token contract, got %+v", appErr)
	}
}
