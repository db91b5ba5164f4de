package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// websocketClient WebSocket 客户端实现
type websocketClient struct {
	endpoint string
	conn     *websocket.Conn
	mu       sync.RWMutex
	closed   int32
	nextID   uint64
	requests map[uint64]chan *jsonrpcResponse
	muReq    sync.RWMutex

	// 订阅ID → 事件通道
	subs  map[string]chan *Event
	muSub sync.RWMutex
}

// jsonrpcResponse JSON-RPC 响应（含订阅通知字段）
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
	ID      uint64          `json:"id"`

	// 订阅通知
	Method string `json:"method,omitempty"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params,omitempty"`
}

// NewWebSocketClient 创建 WebSocket 客户端
func NewWebSocketClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	endpoint := config.Endpoint
	// 将 http:// 或 https:// 转换为 ws:// 或 wss://
	if len(endpoint) >= 7 && endpoint[:7] == "http://" {
		endpoint = "ws://" + endpoint[7:]
	} else if len(endpoint) >= 8 && endpoint[:8] == "https://" {
		endpoint = "wss://" + endpoint[8:]
	} else if len(endpoint) < 5 || (endpoint[:5] != "ws://" && endpoint[:6] != "wss://") {
		endpoint = "ws://" + endpoint
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("dial websocket: %w", err))
	}

	client := &websocketClient{
		endpoint: endpoint,
		conn:     conn,
		requests: make(map[uint64]chan *jsonrpcResponse),
		subs:     make(map[string]chan *Event),
	}

	// 启动消息读取循环
	go client.readLoop()

	return client, nil
}

// readLoop 消息读取循环
//
// 按 ID 将响应路由给等待中的请求；无 ID 的订阅通知路由给对应的事件通道
func (c *websocketClient) readLoop() {
	defer func() {
		atomic.StoreInt32(&c.closed, 1)
		c.muReq.Lock()
		for _, ch := range c.requests {
			close(ch)
		}
		c.requests = make(map[uint64]chan *jsonrpcResponse)
		c.muReq.Unlock()

		c.muSub.Lock()
		for _, ch := range c.subs {
			close(ch)
		}
		c.subs = make(map[string]chan *Event)
		c.muSub.Unlock()
	}()

	for {
		if atomic.LoadInt32(&c.closed) == 1 {
			return
		}

		var resp jsonrpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			// 连接关闭或错误
			return
		}

		// 订阅通知
		if resp.Params != nil && resp.Params.Subscription != "" {
			c.muSub.RLock()
			ch, exists := c.subs[resp.Params.Subscription]
			c.muSub.RUnlock()
			if exists {
				select {
				case ch <- &Event{
					SubscriptionID: resp.Params.Subscription,
					Data:           append([]byte(nil), resp.Params.Result...),
				}:
				default:
					// 通道已满，丢弃（订阅方消费过慢）
				}
			}
			continue
		}

		// 请求响应
		c.muReq.Lock()
		ch, exists := c.requests[resp.ID]
		if exists {
			delete(c.requests, resp.ID)
		}
		c.muReq.Unlock()

		if exists && ch != nil {
			select {
			case ch <- &resp:
			default:
			}
		}
	}
}

// Call 调用 JSON-RPC 方法
func (c *websocketClient) Call(ctx context.Context, method string, params interface{}) (interface{}, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return nil, NewNetworkError(fmt.Errorf("websocket client is closed"))
	}

	reqID := atomic.AddUint64(&c.nextID, 1)

	req := jsonrpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      reqID,
	}

	respCh := make(chan *jsonrpcResponse, 1)
	c.muReq.Lock()
	c.requests[reqID] = respCh
	c.muReq.Unlock()

	c.mu.RLock()
	err := c.conn.WriteJSON(req)
	c.mu.RUnlock()
	if err != nil {
		c.muReq.Lock()
		delete(c.requests, reqID)
		c.muReq.Unlock()
		return nil, NewNetworkError(fmt.Errorf("write request: %w", err))
	}

	select {
	case resp := <-respCh:
		if resp == nil {
			return nil, NewNetworkError(fmt.Errorf("response channel closed"))
		}
		if resp.Error != nil {
			return nil, &Error{
				Code:    ErrCodeRPCError,
				Message: fmt.Sprintf("RPC error %d: %s", resp.Error.Code, resp.Error.Message),
			}
		}

		var result interface{}
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		return result, nil

	case <-ctx.Done():
		c.muReq.Lock()
		delete(c.requests, reqID)
		c.muReq.Unlock()
		return nil, ctx.Err()

	case <-time.After(30 * time.Second):
		c.muReq.Lock()
		delete(c.requests, reqID)
		c.muReq.Unlock()
		return nil, NewNetworkError(fmt.Errorf("request timeout"))
	}
}

// Subscribe 订阅事件
//
// 通过 eth_subscribe 建立订阅，通知经 readLoop 路由到返回的通道；
// ctx 取消时自动退订并关闭通道
func (c *websocketClient) Subscribe(ctx context.Context, filter *EventFilter) (<-chan *Event, error) {
	if filter == nil || filter.Kind == "" {
		return nil, fmt.Errorf("subscription kind is required")
	}

	params := []interface{}{filter.Kind}
	if filter.Kind == "logs" {
		logFilter := map[string]interface{}{}
		if len(filter.Address) > 0 {
			logFilter["address"] = fmt.Sprintf("0x%x", filter.Address)
		}
		if len(filter.Topics) > 0 {
			logFilter["topics"] = filter.Topics
		}
		params = append(params, logFilter)
	}

	result, err := c.Call(ctx, "eth_subscribe", params)
	if err != nil {
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}

	subscriptionID, ok := result.(string)
	if !ok || subscriptionID == "" {
		return nil, fmt.Errorf("invalid subscription response")
	}

	eventCh := make(chan *Event, 100)
	c.muSub.Lock()
	c.subs[subscriptionID] = eventCh
	c.muSub.Unlock()

	go func() {
		<-ctx.Done()
		c.muSub.Lock()
		ch, exists := c.subs[subscriptionID]
		delete(c.subs, subscriptionID)
		c.muSub.Unlock()

		if exists {
			// 尽力退订；连接可能已经关闭
			unsubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, _ = c.Call(unsubCtx, "eth_unsubscribe", []interface{}{subscriptionID})
			close(ch)
		}
	}()

	return eventCh, nil
}

// Close 关闭连接
func (c *websocketClient) Close() error {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	}
	return nil
}
