package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newHTTPTestClient(t *testing.T, handler http.Handler) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewHTTPClient(&Config{
		Endpoint: server.URL,
		Protocol: ProtocolHTTP,
		Timeout:  5,
		Retry:    fastRetry(),
	})
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHTTPCall(t *testing.T) {
	c := newHTTPTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.JSONRPC != "2.0" || req.Method != "eth_chainId" {
			t.Errorf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID, "result": "0x1",
		})
	}))

	result, err := c.Call(context.Background(), "eth_chainId", nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if result != "0x1" {
		t.Errorf("result = %v, want 0x1", result)
	}
}

// 5xx 响应走退避重试，恢复后成功
func TestHTTPCallRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	c := newHTTPTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "temporarily down", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": 1, "result": "0x1",
		})
	}))

	result, err := c.Call(context.Background(), "eth_chainId", nil)
	if err != nil {
		t.Fatalf("Call failed after retries: %v", err)
	}
	if result != "0x1" {
		t.Errorf("result = %v", result)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3", got)
	}
}

func TestHTTPCallExhaustedRetriesIsNetworkError(t *testing.T) {
	c := newHTTPTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))

	_, err := c.Call(context.Background(), "eth_chainId", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNetworkError(err) {
		t.Errorf("error = %v, want network error", err)
	}
}

func TestHTTPCallRPCError(t *testing.T) {
	c := newHTTPTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": 1,
			"error": map[string]interface{}{"code": -32601, "message": "method not found"},
		})
	}))

	_, err := c.Call(context.Background(), "bogus_method", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if IsNetworkError(err) {
		t.Error("RPC error must not be classified as network error")
	}
}

func TestHTTPSubscribeNotSupported(t *testing.T) {
	c := newHTTPTestClient(t, http.NotFoundHandler())
	_, err := c.Subscribe(context.Background(), &EventFilter{})
	if err == nil {
		t.Fatal("expected error")
	}
}
