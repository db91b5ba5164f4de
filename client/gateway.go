package client

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/safecoord/coordinator-sdk-go/types"
)

// Safe 合约视图函数的 4 字节选择器
const (
	selGetOwners    = "0xa0e67e2b" // getOwners()
	selGetThreshold = "0xe75235b8" // getThreshold()
	selNonce        = "0xaffed0e0" // nonce()
)

// ChainGateway 链上网关接口
// 提供类型化的链上读写封装，避免直接使用 Call(method, params)
//
// **用途**：
// - owner/threshold 实时读取（阈值判定必须走这里，不使用本地缓存）
// - 已签名交易提交与链上确认观察
type ChainGateway interface {
	// GetOwners 实时读取 Safe 的 owner 集合
	GetOwners(ctx context.Context, safe common.Address) ([]common.Address, error)

	// GetThreshold 实时读取 Safe 的签名阈值
	GetThreshold(ctx context.Context, safe common.Address) (int, error)

	// GetNonce 实时读取 Safe 的下一个 nonce
	GetNonce(ctx context.Context, safe common.Address) (uint64, error)

	// IsDeployed 判断 Safe 合约是否已部署
	IsDeployed(ctx context.Context, safe common.Address) (bool, error)

	// Submit 提交已签名的执行交易，返回链上交易哈希
	Submit(ctx context.Context, signedTxHex string) (string, error)

	// TransactionConfirmed 检查链上交易是否已确认成功
	TransactionConfirmed(ctx context.Context, txHash string) (bool, error)

	// 底层通道（不推荐上层直接使用）
	Call(ctx context.Context, method string, params interface{}) (interface{}, error)

	// Close 关闭连接
	Close() error
}

// chainGateway ChainGateway 实现类
type chainGateway struct {
	client Client
}

// NewChainGateway 从现有 Client 创建链上网关
func NewChainGateway(c Client) ChainGateway {
	return &chainGateway{client: c}
}

// NewChainGatewayFromConfig 按配置创建链上网关
func NewChainGatewayFromConfig(config *Config) (ChainGateway, error) {
	c, err := NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &chainGateway{client: c}, nil
}

// ethCall 对 Safe 合约发起只读调用并返回十六进制结果
func (g *chainGateway) ethCall(ctx context.Context, safe common.Address, selector string) (string, error) {
	raw, err := g.client.Call(ctx, "eth_call", []interface{}{
		map[string]interface{}{
			"to":   safe.Hex(),
			"data": selector,
		},
		"latest",
	})
	if err != nil {
		return "", wrapGatewayError("eth_call", err)
	}

	result, ok := raw.(string)
	if !ok {
		return "", &Error{
			Code:    ErrCodeInvalidResponse,
			Message: fmt.Sprintf("invalid eth_call response: expected hex string, got %T", raw),
		}
	}
	return result, nil
}

// GetOwners 实时读取 Safe 的 owner 集合
func (g *chainGateway) GetOwners(ctx context.Context, safe common.Address) ([]common.Address, error) {
	result, err := g.ethCall(ctx, safe, selGetOwners)
	if err != nil {
		return nil, err
	}
	owners, err := decodeAddressArray(result)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeInvalidResponse,
			Message: fmt.Sprintf("decode getOwners result failed: %v", err),
			Err:     err,
		}
	}
	return owners, nil
}

// GetThreshold 实时读取 Safe 的签名阈值
func (g *chainGateway) GetThreshold(ctx context.Context, safe common.Address) (int, error) {
	result, err := g.ethCall(ctx, safe, selGetThreshold)
	if err != nil {
		return 0, err
	}
	v, err := decodeUint256(result)
	if err != nil {
		return 0, &Error{
			Code:    ErrCodeInvalidResponse,
			Message: fmt.Sprintf("decode getThreshold result failed: %v", err),
			Err:     err,
		}
	}
	// 阈值不可能超过 owner 数量；超界值说明响应已损坏
	if !v.IsInt64() || v.Int64() > math.MaxInt32 {
		return 0, &Error{
			Code:    ErrCodeInvalidResponse,
			Message: fmt.Sprintf("getThreshold result out of range: %s", v),
		}
	}
	return int(v.Int64()), nil
}

// GetNonce 实时读取 Safe 的下一个 nonce
func (g *chainGateway) GetNonce(ctx context.Context, safe common.Address) (uint64, error) {
	result, err := g.ethCall(ctx, safe, selNonce)
	if err != nil {
		return 0, err
	}
	v, err := decodeUint256(result)
	if err != nil {
		return 0, &Error{
			Code:    ErrCodeInvalidResponse,
			Message: fmt.Sprintf("decode nonce result failed: %v", err),
			Err:     err,
		}
	}
	return v.Uint64(), nil
}

// IsDeployed 判断 Safe 合约是否已部署（eth_getCode 非空）
func (g *chainGateway) IsDeployed(ctx context.Context, safe common.Address) (bool, error) {
	raw, err := g.client.Call(ctx, "eth_getCode", []interface{}{safe.Hex(), "latest"})
	if err != nil {
		return false, wrapGatewayError("eth_getCode", err)
	}
	code, ok := raw.(string)
	if !ok {
		return false, &Error{
			Code:    ErrCodeInvalidResponse,
			Message: fmt.Sprintf("invalid eth_getCode response: expected hex string, got %T", raw),
		}
	}
	return code != "" && code != "0x", nil
}

// Submit 提交已签名的执行交易
func (g *chainGateway) Submit(ctx context.Context, signedTxHex string) (string, error) {
	raw, err := g.client.Call(ctx, "eth_sendRawTransaction", []interface{}{signedTxHex})
	if err != nil {
		return "", wrapGatewayError("eth_sendRawTransaction", err)
	}
	txHash, ok := raw.(string)
	if !ok || txHash == "" {
		return "", &Error{
			Code:    ErrCodeInvalidResponse,
			Message: "invalid eth_sendRawTransaction response: missing transaction hash",
		}
	}
	return txHash, nil
}

// TransactionConfirmed 检查链上交易是否已确认成功
//
// 回执不存在 → (false, nil)；回执 status != 1 → (false, nil)
func (g *chainGateway) TransactionConfirmed(ctx context.Context, txHash string) (bool, error) {
	raw, err := g.client.Call(ctx, "eth_getTransactionReceipt", []interface{}{txHash})
	if err != nil {
		return false, wrapGatewayError("eth_getTransactionReceipt", err)
	}
	if raw == nil {
		return false, nil
	}
	receipt, ok := raw.(map[string]interface{})
	if !ok {
		return false, &Error{
			Code:    ErrCodeInvalidResponse,
			Message: fmt.Sprintf("invalid receipt response: expected object, got %T", raw),
		}
	}
	status, _ := receipt["status"].(string)
	return status == "0x1", nil
}

// Call 底层 JSON-RPC 通道
func (g *chainGateway) Call(ctx context.Context, method string, params interface{}) (interface{}, error) {
	return g.client.Call(ctx, method, params)
}

// Close 关闭连接
func (g *chainGateway) Close() error {
	return g.client.Close()
}

// wrapGatewayError 传输层失败映射为可重试的 NetworkError
func wrapGatewayError(method string, err error) error {
	if IsNetworkError(err) {
		return types.ErrNetwork(fmt.Sprintf("%s failed", method), err)
	}
	return fmt.Errorf("%s failed: %w", method, err)
}

// decodeUint256 解析 32 字节 ABI 编码的无符号整数
func decodeUint256(result string) (*big.Int, error) {
	data, err := hexutil.Decode(result)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if len(data) < 32 {
		return nil, fmt.Errorf("result too short: %d bytes", len(data))
	}
	return new(big.Int).SetBytes(data[:32]), nil
}

// decodeAddressArray 解析 ABI 编码的动态 address[] 返回值
//
// 布局：32字节偏移 + 32字节长度 + N×32字节（地址右对齐）
func decodeAddressArray(result string) ([]common.Address, error) {
	result = strings.TrimSpace(result)
	data, err := hexutil.Decode(result)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if len(data) < 64 {
		return nil, fmt.Errorf("result too short: %d bytes", len(data))
	}

	// 响应内容不可信：所有下标运算必须防回绕
	size := uint64(len(data))
	offset := new(big.Int).SetBytes(data[:32]).Uint64()
	if offset > size-32 {
		return nil, fmt.Errorf("array offset out of range: %d", offset)
	}
	length := new(big.Int).SetBytes(data[offset : offset+32]).Uint64()
	if length > (size-offset-32)/32 {
		return nil, fmt.Errorf("truncated array: %d elements do not fit in %d bytes", length, size)
	}

	owners := make([]common.Address, 0, length)
	for i := uint64(0); i < length; i++ {
		word := data[offset+32+i*32 : offset+64+i*32]
		owners = append(owners, common.BytesToAddress(word[12:]))
	}
	return owners, nil
}
