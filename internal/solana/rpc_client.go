package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"pump-candles/internal/observability"
)

// DefaultCommitment is used when no commitment level is configured.
const DefaultCommitment = "confirmed"

// RPCClientConfig holds HTTP JSON-RPC client settings.
type RPCClientConfig struct {
	Timeout    time.Duration // per attempt
	MaxRetries int
	RetryDelay time.Duration // doubled after every failed attempt
	MaxDelay   time.Duration
	Commitment string
	HTTPClient *http.Client // overrides Timeout when set
	Logger     *log.Logger
}

// DefaultRPCConfig returns default RPC client configuration.
func DefaultRPCConfig() RPCClientConfig {
	return RPCClientConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
		MaxDelay:   10 * time.Second,
		Commitment: DefaultCommitment,
	}
}

// RPCError is an error object returned by the node. It is never retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RPCClient implements AccountReader over HTTP JSON-RPC 2.0.
type RPCClient struct {
	endpoint string
	config   RPCClientConfig
	http     *http.Client
	logger   *log.Logger
	nextID   atomic.Uint64
}

var _ AccountReader = (*RPCClient)(nil)

// NewRPCClient creates a client for endpoint. A nil config uses DefaultRPCConfig.
func NewRPCClient(endpoint string, config *RPCClientConfig) *RPCClient {
	cfg := DefaultRPCConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Commitment == "" {
		cfg.Commitment = DefaultCommitment
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxDelay < cfg.RetryDelay {
		cfg.MaxDelay = cfg.RetryDelay
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &RPCClient{
		endpoint: endpoint,
		config:   cfg,
		http:     httpClient,
		logger:   logger,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// errRetryable marks failures worth another attempt.
var errRetryable = errors.New("retryable")

// call runs method until it succeeds, fails with a non-retryable error or
// runs out of attempts.
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.config.RetryDelay
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Printf("%s attempt %d failed: %v", method, attempt, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, c.config.MaxDelay)
		}

		lastErr = c.attempt(ctx, body, result)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(lastErr, errRetryable) {
			return lastErr
		}
	}
	return fmt.Errorf("%s: retries exhausted: %w", method, lastErr)
}

func (c *RPCClient) attempt(ctx context.Context, body []byte, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: http request: %w", errRetryable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", errRetryable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, payload)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(payload, &rpcResp); err != nil {
		return fmt.Errorf("%w: unmarshal response: %w", errRetryable, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

type accountInfoResult struct {
	Context struct {
		Slot int64 `json:"slot"`
	} `json:"context"`
	Value *struct {
		Lamports uint64   `json:"lamports"`
		Owner    string   `json:"owner"`
		Data     []string `json:"data"` // [payload, encoding]
	} `json:"value"`
}

// GetAccountInfo reads pubkey at the configured commitment.
// Returns nil, nil if the account does not exist.
func (c *RPCClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	params := []interface{}{
		pubkey,
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": c.config.Commitment,
		},
	}

	var res accountInfoResult
	if err := c.call(ctx, "getAccountInfo", params, &res); err != nil {
		return nil, err
	}
	if res.Value == nil {
		return nil, nil
	}

	info := &AccountInfo{
		Lamports: res.Value.Lamports,
		Owner:    res.Value.Owner,
		Slot:     res.Context.Slot,
	}
	if len(res.Value.Data) > 0 && res.Value.Data[0] != "" {
		data, err := base64.StdEncoding.DecodeString(res.Value.Data[0])
		if err != nil {
			return nil, fmt.Errorf("decode account %s data: %w", pubkey, err)
		}
		info.Data = data
	}
	return info, nil
}
