// Package jsonrpc is the shared HTTP JSON-RPC transport for chain clients that
// have no dedicated SDK. Each call is bounded by the configured timeout and
// paced by a rate limiter; nothing is retried here.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	apperrors "depositwatch/internal/shared_kernel/errors"

	"go.uber.org/ratelimit"
)

const (
	CodeUnavailable = "chain_rpc_unavailable"
	CodeTimeout     = "chain_rpc_timeout"
	CodeRemoteError = "chain_rpc_error"
	CodeMalformed   = "chain_rpc_malformed_response"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	// RatePerSecond <= 0 disables pacing.
	RatePerSecond int
	Headers       map[string]string
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	limiter    ratelimit.Limiter
	headers    map[string]string
	nextID     atomic.Uint64
}

func NewClient(endpoint string, options Options) *Client {
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limiter := ratelimit.NewUnlimited()
	if options.RatePerSecond > 0 {
		limiter = ratelimit.New(options.RatePerSecond)
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		timeout:    timeout,
		limiter:    limiter,
		headers:    options.Headers,
	}
}

// Call invokes method and decodes the result into out. A JSON-RPC error object
// is returned as CodeRemoteError with the remote code under "rpc_code".
func (c *Client) Call(ctx context.Context, method string, params any, out any) *apperrors.AppError {
	payload := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewInternal(
			"chain_rpc_request_invalid",
			"failed to encode rpc request",
			map[string]any{"error": err.Error(), "method": method},
		)
	}

	c.limiter.Take()

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return apperrors.NewInternal(
			"chain_rpc_request_invalid",
			"failed to build rpc request",
			map[string]any{"error": err.Error(), "method": method},
		)
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		request.Header.Set(key, value)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		code := CodeUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			code = CodeTimeout
		}
		return apperrors.NewUnavailable(
			code,
			"failed to call rpc endpoint",
			map[string]any{"error": err.Error(), "method": method},
		)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return apperrors.NewUnavailable(
			CodeUnavailable,
			"rpc endpoint returned non-200 status",
			map[string]any{"status_code": response.StatusCode, "method": method},
		)
	}

	rpcResp := rpcResponse{}
	if err := json.NewDecoder(response.Body).Decode(&rpcResp); err != nil {
		return Malformed(method, "failed to decode rpc response", err)
	}
	if rpcResp.Error != nil {
		return apperrors.NewUnavailable(
			CodeRemoteError,
			"rpc endpoint returned error",
			map[string]any{
				"method":    method,
				"rpc_error": rpcResp.Error.Message,
				"rpc_code":  rpcResp.Error.Code,
			},
		)
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return Malformed(method, "rpc response has no result", nil)
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return Malformed(method, "failed to decode rpc result", err)
	}

	return nil
}

// RemoteCode extracts the JSON-RPC error code from an error returned by Call.
func RemoteCode(appErr *apperrors.AppError) (int, bool) {
	if appErr == nil || appErr.Code != CodeRemoteError {
		return 0, false
	}
	code, ok := appErr.Details["rpc_code"].(int)
	return code, ok
}

// Malformed reports a response that decoded but cannot be trusted.
func Malformed(method string, message string, cause error) *apperrors.AppError {
	details := map[string]any{"method": method}
	if cause != nil {
		details["error"] = cause.Error()
	}
	return apperrors.NewUnavailable(CodeMalformed, message, details)
}
