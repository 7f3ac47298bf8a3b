// Package chain provides payment-network interaction for the game server:
// the wire codec for transfer transactions and a JSON-RPC client for tip
// queries and broadcasting.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is the payment-network collaborator consumed by the payments
// service. It is intentionally narrow: building and decoding transactions is
// pure codec work and lives at package level.
type Client interface {
	// LatestTip returns the current chain tip transactions are pinned to.
	LatestTip(ctx context.Context) (string, error)
	// Broadcast submits a signed transaction blob and returns its id.
	Broadcast(ctx context.Context, blob string) (string, error)
}

// Config holds RPC client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// RPCClient talks JSON-RPC 2.0 to a payment-network node.
type RPCClient struct {
	rpcURL     string
	httpClient *http.Client
}

var _ Client = (*RPCClient)(nil)

// NewRPCClient creates a client for the configured node.
func NewRPCClient(cfg Config) (*RPCClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &RPCClient{
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call makes a JSON-RPC call to the node.
func (c *RPCClient) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// LatestTip queries the node for the latest block hash.
func (c *RPCClient) LatestTip(ctx context.Context) (string, error) {
	raw, err := c.Call(ctx, "getLatestBlockhash", nil)
	if err != nil {
		return "", err
	}

	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("unmarshal tip: %w", err)
	}
	if result.Value.Blockhash == "" {
		return "", fmt.Errorf("node returned empty tip")
	}
	return result.Value.Blockhash, nil
}

// Broadcast submits the raw transaction and returns the network's id for it.
func (c *RPCClient) Broadcast(ctx context.Context, blob string) (string, error) {
	raw, err := c.Call(ctx, "sendTransaction", []interface{}{blob})
	if err != nil {
		return "", err
	}

	var txID string
	if err := json.Unmarshal(raw, &txID); err != nil {
		return "", fmt.Errorf("unmarshal txid: %w", err)
	}
	if txID == "" {
		return "", fmt.Errorf("node returned empty txid")
	}
	return txID, nil
}
