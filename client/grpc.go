package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// grpcClient gRPC 客户端实现
type grpcClient struct {
	conn     *grpc.ClientConn
	endpoint string
}

// NewGRPCClient 创建 gRPC 客户端
func NewGRPCClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	endpoint := config.Endpoint
	// 如果 endpoint 包含 http:// 或 https://，移除协议前缀
	if len(endpoint) >= 7 && endpoint[:7] == "http://" {
		endpoint = endpoint[7:]
	} else if len(endpoint) >= 8 && endpoint[:8] == "https://" {
		endpoint = endpoint[8:]
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 注意：当前使用 insecure 连接，生产环境应该使用 TLS
	conn, err := grpc.DialContext(ctx, endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("dial gRPC: %w", err))
	}

	return &grpcClient{
		conn:     conn,
		endpoint: endpoint,
	}, nil
}

// Call 调用 JSON-RPC 方法（通过 gRPC）
//
// 注意：当前实现假设节点提供 gRPC 接口，如果节点只提供 JSON-RPC over HTTP，
// 则 gRPC 客户端需要通过 HTTP 适配器实现。
func (c *grpcClient) Call(ctx context.Context, method string, params interface{}) (interface{}, error) {
	// 实际实现需要节点侧的 gRPC 服务定义；当前节点未提供，返回明确错误
	return nil, &Error{
		Code:    ErrCodeNotSupported,
		Message: "gRPC transport requires a node-side service definition; use HTTP or WebSocket client",
	}
}

// Subscribe 订阅事件（gRPC 流式接口待节点侧支持）
func (c *grpcClient) Subscribe(ctx context.Context, filter *EventFilter) (<-chan *Event, error) {
	return nil, &Error{
		Code:    ErrCodeNotSupported,
		Message: "gRPC transport does not support subscriptions yet; use WebSocket client",
	}
}

// Close 关闭连接
func (c *grpcClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
