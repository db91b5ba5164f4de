package client

import (
	"context"
	"fmt"
)

// Client 链上节点客户端接口
type Client interface {
	// Call 调用 JSON-RPC 方法
	Call(ctx context.Context, method string, params interface{}) (interface{}, error)

	// Subscribe 订阅事件（仅 WebSocket 协议支持）
	Subscribe(ctx context.Context, filter *EventFilter) (<-chan *Event, error)

	// Close 关闭连接
	Close() error
}

// EventFilter 事件过滤器
type EventFilter struct {
	// Kind 订阅类型（如 "newHeads" / "logs"）
	Kind string
	// Address 合约地址过滤（可选，20字节）
	Address []byte
	// Topics 日志主题过滤（可选）
	Topics []string
}

// Event 事件
type Event struct {
	SubscriptionID string
	Data           []byte
}

// NewClient 创建新的客户端
func NewClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Protocol {
	case ProtocolHTTP:
		return NewHTTPClient(config)
	case ProtocolGRPC:
		return NewGRPCClient(config)
	case ProtocolWebSocket:
		return NewWebSocketClient(config)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", config.Protocol)
	}
}
