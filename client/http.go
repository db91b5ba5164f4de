package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// httpClient HTTP客户端实现
type httpClient struct {
	endpoint string
	client   *http.Client
	logger   Logger
	debug    bool
	nextID   atomic.Uint64
	retry    *RetryConfig
}

// NewHTTPClient 创建HTTP客户端
func NewHTTPClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	httpCli := &http.Client{
		Timeout: time.Duration(config.Timeout) * time.Second,
	}

	retryConfig := config.Retry
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
		if config.Debug && config.Logger != nil {
			retryConfig.OnRetry = func(attempt int, err error) {
				config.Logger.Warn("Retrying request", "attempt", attempt, "error", err)
			}
		}
	}

	return &httpClient{
		endpoint: config.Endpoint,
		client:   httpCli,
		logger:   config.Logger,
		debug:    config.Debug,
		retry:    retryConfig,
	}, nil
}

// Call 调用JSON-RPC方法
func (c *httpClient) Call(ctx context.Context, method string, params interface{}) (interface{}, error) {
	// 使用原子计数器生成唯一ID
	req := &jsonrpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("JSON-RPC request", "method", method, "body", string(reqBody))
	}

	// 发送请求（带重试）
	var resp *http.Response
	err = withRetry(ctx, func() error {
		// 每次重试都创建新的请求（因为 Body 只能读取一次）
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
		if reqErr != nil {
			return fmt.Errorf("create request failed: %w", reqErr)
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")

		httpResp, reqErr := c.client.Do(httpReq)
		if reqErr != nil {
			return reqErr
		}

		if isRetryableHTTPError(httpResp.StatusCode) {
			httpResp.Body.Close()
			return fmt.Errorf("HTTP error: %d", httpResp.StatusCode)
		}

		resp = httpResp
		return nil
	}, c.retry)
	if err != nil {
		return nil, NewNetworkError(err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			if c.logger != nil {
				c.logger.Warn("Failed to close response body", "error", err)
			}
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("read response failed: %w", err))
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("JSON-RPC response", "status", resp.StatusCode, "body", string(respBody))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, NewNetworkError(fmt.Errorf("HTTP error: %d, body: %s", resp.StatusCode, string(respBody)))
	}

	var jsonResp jsonrpcResponseGeneric
	if err := json.Unmarshal(respBody, &jsonResp); err != nil {
		return nil, fmt.Errorf("unmarshal response failed: %w", err)
	}

	if jsonResp.Error != nil {
		return nil, &Error{
			Code:    ErrCodeRPCError,
			Message: fmt.Sprintf("JSON-RPC error: code=%d, message=%s", jsonResp.Error.Code, jsonResp.Error.Message),
		}
	}

	return jsonResp.Result, nil
}

// Subscribe 订阅事件（HTTP不支持，需要使用WebSocket）
func (c *httpClient) Subscribe(ctx context.Context, filter *EventFilter) (<-chan *Event, error) {
	return nil, &Error{
		Code:    ErrCodeNotSupported,
		Message: "HTTP client does not support event subscription, use WebSocket client instead",
	}
}

// Close 关闭连接（HTTP客户端无需特殊处理）
func (c *httpClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// jsonrpcRequest JSON-RPC 请求结构
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      uint64      `json:"id"`
}

// jsonrpcResponseGeneric JSON-RPC 响应结构（非类型化 Result）
type jsonrpcResponseGeneric struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *jsonrpcError `json:"error,omitempty"`
	ID      uint64        `json:"id"`
}

// jsonrpcError JSON-RPC 错误结构
type jsonrpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
