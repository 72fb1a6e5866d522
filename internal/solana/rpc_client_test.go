package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// accountServer answers getAccountInfo with value, recording every decoded request.
func accountServer(t *testing.T, value interface{}, seen *[]rpcRequest) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if seen != nil {
			mu.Lock()
			*seen = append(*seen, req)
			mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": 321},
				"value":   value,
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func testRPCConfig() *RPCClientConfig {
	cfg := DefaultRPCConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	cfg.Logger = log.New(io.Discard, "", 0)
	return &cfg
}

func TestRPCClient_GetAccountInfo(t *testing.T) {
	var seen []rpcRequest
	server := accountServer(t, map[string]interface{}{
		"lamports": uint64(1000000),
		"owner":    "11111111111111111111111111111111",
		"data":     []string{"SGVsbG8gV29ybGQ=", "base64"},
	}, &seen)

	info, err := NewRPCClient(server.URL, testRPCConfig()).GetAccountInfo(context.Background(), "testpubkey")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info == nil {
		t.Fatal("expected account info, got nil")
	}
	if info.Lamports != 1000000 || info.Owner != "11111111111111111111111111111111" {
		t.Errorf("unexpected account %+v", info)
	}
	if !bytes.Equal(info.Data, []byte("Hello World")) {
		t.Errorf("data = %q", info.Data)
	}
	if info.Slot != 321 {
		t.Errorf("slot = %d, want 321", info.Slot)
	}

	if len(seen) != 1 {
		t.Fatalf("expected 1 request, got %d", len(seen))
	}
	req := seen[0]
	if req.Method != "getAccountInfo" || len(req.Params) != 2 || req.Params[0] != "testpubkey" {
		t.Fatalf("unexpected request %+v", req)
	}
	opts, _ := req.Params[1].(map[string]interface{})
	if opts["encoding"] != "base64" || opts["commitment"] != DefaultCommitment {
		t.Errorf("unexpected options %v", opts)
	}
}

func TestRPCClient_GetAccountInfo_NotFound(t *testing.T) {
	server := accountServer(t, nil, nil)

	info, err := NewRPCClient(server.URL, testRPCConfig()).GetAccountInfo(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil for missing account, got %+v", info)
	}
}

func TestRPCClient_Commitment(t *testing.T) {
	var seen []rpcRequest
	server := accountServer(t, nil, &seen)

	cfg := testRPCConfig()
	cfg.Commitment = "finalized"
	if _, err := NewRPCClient(server.URL, cfg).GetAccountInfo(context.Background(), "x"); err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	opts, _ := seen[0].Params[1].(map[string]interface{})
	if opts["commitment"] != "finalized" {
		t.Errorf("commitment = %v, want finalized", opts["commitment"])
	}
}

func TestRPCClient_RetriesRateLimit(t *testing.T) {
	var attempts atomic.Int32
	ok := accountServer(t, map[string]interface{}{"lamports": uint64(5), "owner": "o", "data": []string{"", "base64"}}, nil)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		resp, err := http.Post(ok.URL, "application/json", r.Body)
		if err != nil {
			t.Errorf("proxy: %v", err)
			return
		}
		defer resp.Body.Close()
		io.Copy(w, resp.Body)
	}))
	defer server.Close()

	info, err := NewRPCClient(server.URL, testRPCConfig()).GetAccountInfo(context.Background(), "retry")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info == nil || info.Lamports != 5 || len(info.Data) != 0 {
		t.Errorf("unexpected account %+v", info)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestRPCClient_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testRPCConfig()
	cfg.MaxRetries = 2
	if _, err := NewRPCClient(server.URL, cfg).GetAccountInfo(context.Background(), "x"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestRPCClient_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	if _, err := NewRPCClient(server.URL, testRPCConfig()).GetAccountInfo(context.Background(), "x"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestRPCClient_RPCError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32600, "message": "Invalid Request"},
		})
	}))
	defer server.Close()

	_, err := NewRPCClient(server.URL, testRPCConfig()).GetAccountInfo(context.Background(), "x")
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T (%v)", err, err)
	}
	if rpcErr.Code != -32600 {
		t.Errorf("code = %d, want -32600", rpcErr.Code)
	}
	if attempts.Load() != 1 {
		t.Errorf("rpc errors must not be retried, got %d attempts", attempts.Load())
	}
}

func TestRPCClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRPCClient(server.URL, testRPCConfig()).GetAccountInfo(ctx, "x")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
