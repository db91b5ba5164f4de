package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/safecoord/coordinator-sdk-go/types"
)

// TxService 远端提案服务接口（Remote Proposal Service）
//
// 远端服务保存各 Safe 的提案及签名集合，是"权威但可能不可达"的一方；
// 所有调用失败都映射为可重试的 NetworkError，本地状态不受影响
type TxService interface {
	// ListProposals 列出指定 Safe 在指定链上的全部提案文档
	ListProposals(ctx context.Context, safeAddress string, chainID types.ChainID) ([]*types.TransferDocument, error)

	// ProposeTransaction 上传一个本地提案（含当前签名集合）
	ProposeTransaction(ctx context.Context, doc *types.TransferDocument) error

	// AddSignatures 为远端已有提案追加签名（增量上传）
	AddSignatures(ctx context.Context, safeTxHash string, sigs []types.DocumentSignature) error
}

// txServiceClient TxService 的 REST 实现
type txServiceClient struct {
	baseURL string
	client  *http.Client
	retry   *RetryConfig
	logger  Logger
	debug   bool
}

// NewTxService 创建远端提案服务客户端
//
// baseURL 形如 https://transaction.example.org（不带尾部斜杠）
func NewTxService(baseURL string, config *Config) TxService {
	if config == nil {
		config = DefaultConfig()
	}
	retryConfig := config.Retry
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
	}
	return &txServiceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
		retry:  retryConfig,
		logger: config.Logger,
		debug:  config.Debug,
	}
}

// doJSON 发送请求并解析 JSON 响应（带重试）
//
// 4xx 响应视为最终失败（不重试），5xx/连接错误走退避重试
func (c *txServiceClient) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request failed: %w", err)
		}
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("tx-service request", "method", method, "path", path, "body", string(reqBody))
	}

	var respBody []byte
	err := withRetry(ctx, func() error {
		var reader io.Reader
		if reqBody != nil {
			reader = bytes.NewReader(reqBody)
		}
		httpReq, reqErr := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if reqErr != nil {
			return fmt.Errorf("create request failed: %w", reqErr)
		}
		if reqBody != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		httpReq.Header.Set("Accept", "application/json")

		resp, reqErr := c.client.Do(httpReq)
		if reqErr != nil {
			return reqErr
		}
		defer resp.Body.Close()

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("read response failed: %w", readErr)
		}

		if isRetryableHTTPError(resp.StatusCode) {
			return fmt.Errorf("HTTP error: %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &Error{
				Code:    ErrCodeInvalidResponse,
				Message: fmt.Sprintf("HTTP error: %d, body: %s", resp.StatusCode, string(data)),
			}
		}

		respBody = data
		return nil
	}, c.retry)
	if err != nil {
		var ce *Error
		if isNonRetryable(err, &ce) {
			return ce
		}
		return types.ErrNetwork(fmt.Sprintf("%s %s failed", method, path), err)
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("tx-service response", "path", path, "body", string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response failed: %w", err)
		}
	}
	return nil
}

// isNonRetryable 判断错误是否为最终失败（非网络类）
func isNonRetryable(err error, out **Error) bool {
	if ce, ok := err.(*Error); ok && ce.Code == ErrCodeInvalidResponse {
		*out = ce
		return true
	}
	return false
}

// ListProposals 列出指定 Safe 在指定链上的全部提案文档
func (c *txServiceClient) ListProposals(ctx context.Context, safeAddress string, chainID types.ChainID) ([]*types.TransferDocument, error) {
	path := fmt.Sprintf("/api/v1/safes/%s/proposals/?chainId=%s",
		url.PathEscape(safeAddress), url.QueryEscape(string(chainID)))

	var result struct {
		Results []*types.TransferDocument `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// ProposeTransaction 上传一个本地提案
func (c *txServiceClient) ProposeTransaction(ctx context.Context, doc *types.TransferDocument) error {
	path := fmt.Sprintf("/api/v1/safes/%s/proposals/", url.PathEscape(doc.SafeAddress))
	return c.doJSON(ctx, http.MethodPost, path, doc, nil)
}

// AddSignatures 为远端已有提案追加签名
func (c *txServiceClient) AddSignatures(ctx context.Context, safeTxHash string, sigs []types.DocumentSignature) error {
	path := fmt.Sprintf("/api/v1/proposals/%s/signatures/", url.PathEscape(safeTxHash))
	body := map[string]interface{}{
		"signatures": sigs,
	}
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}
