package integration

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safecoord/coordinator-sdk-go/client"
	"github.com/safecoord/coordinator-sdk-go/services/store"
	"github.com/safecoord/coordinator-sdk-go/types"
	"github.com/safecoord/coordinator-sdk-go/wallet"
)

// Safe 合约视图函数选择器（与网关一致）
const (
	selGetOwners    = "0xa0e67e2b"
	selGetThreshold = "0xe75235b8"
	selNonce        = "0xaffed0e0"
)

// FakeNode 进程内 JSON-RPC 节点
//
// owner/threshold 可在测试中途改写，模拟 owner 轮换场景
type FakeNode struct {
	Server *httptest.Server

	mu        sync.Mutex
	owners    []common.Address
	threshold uint64
	// confirmed 已确认的链上交易哈希集合
	confirmed map[string]bool
}

// StartFakeNode 启动进程内节点
func StartFakeNode(t *testing.T, owners []common.Address, threshold uint64) *FakeNode {
	t.Helper()
	node := &FakeNode{
		owners:    owners,
		threshold: threshold,
		confirmed: make(map[string]bool),
	}
	node.Server = httptest.NewServer(http.HandlerFunc(node.handle))
	t.Cleanup(node.Server.Close)
	return node
}

// SetOwners 改写 owner 集合（模拟链上 owner 轮换）
func (n *FakeNode) SetOwners(owners []common.Address, threshold uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.owners = owners
	n.threshold = threshold
}

// MarkConfirmed 将交易标记为已确认
func (n *FakeNode) MarkConfirmed(txHash string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed[txHash] = true
}

func (n *FakeNode) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string        `json:"method"`
		Params []interface{} `json:"params"`
		ID     uint64        `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var result interface{}
	switch req.Method {
	case "eth_call":
		callObj := req.Params[0].(map[string]interface{})
		switch callObj["data"].(string) {
		case selGetOwners:
			result = encodeAddressArray(n.owners)
		case selGetThreshold:
			result = encodeUint256(n.threshold)
		case selNonce:
			result = encodeUint256(0)
		}
	case "eth_getCode":
		result = "0x6080604052"
	case "eth_sendRawTransaction":
		txHash := "0x" + strings.Repeat("cd", 32)
		n.confirmed[txHash] = true
		result = txHash
	case "eth_getTransactionReceipt":
		txHash := req.Params[0].(string)
		if n.confirmed[txHash] {
			result = map[string]interface{}{"status": "0x1"}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0", "id": req.ID, "result": result,
	})
}

func encodeAddressArray(addrs []common.Address) string {
	var sb strings.Builder
	sb.WriteString("0x")
	sb.WriteString(hex.EncodeToString(common.LeftPadBytes([]byte{0x20}, 32)))
	sb.WriteString(hex.EncodeToString(common.LeftPadBytes([]byte{byte(len(addrs))}, 32)))
	for _, a := range addrs {
		sb.WriteString(hex.EncodeToString(common.LeftPadBytes(a.Bytes(), 32)))
	}
	return sb.String()
}

func encodeUint256(v uint64) string {
	return "0x" + hex.EncodeToString(common.LeftPadBytes([]byte{byte(v)}, 32))
}

// FakeTxService 进程内远端提案服务
//
// 实现网关客户端约定的 REST 路径，文档按 safeTxHash 存储
type FakeTxService struct {
	Server *httptest.Server

	mu   sync.Mutex
	docs map[string]*types.TransferDocument
}

// StartFakeTxService 启动进程内提案服务
func StartFakeTxService(t *testing.T) *FakeTxService {
	t.Helper()
	svc := &FakeTxService{docs: make(map[string]*types.TransferDocument)}
	svc.Server = httptest.NewServer(http.HandlerFunc(svc.handle))
	t.Cleanup(svc.Server.Close)
	return svc
}

// DocumentCount 当前存储的提案数
func (s *FakeTxService) DocumentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

func (s *FakeTxService) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v1/safes/"):
		safeAddr := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/safes/"), "/proposals/")
		chainID := r.URL.Query().Get("chainId")
		var results []*types.TransferDocument
		for _, doc := range s.docs {
			if doc.SafeAddress == safeAddr && doc.ChainID == chainID {
				results = append(results, doc)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": results})

	case r.Method == http.MethodPost && strings.HasPrefix(path, "/api/v1/safes/"):
		var doc types.TransferDocument
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.docs[doc.SafeTxHash] = &doc
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodPost && strings.HasPrefix(path, "/api/v1/proposals/"):
		hash := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/proposals/"), "/signatures/")
		doc, ok := s.docs[hash]
		if !ok {
			http.Error(w, "proposal not found", http.StatusNotFound)
			return
		}
		var body struct {
			Signatures []types.DocumentSignature `json:"signatures"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		doc.Signatures = append(doc.Signatures, body.Signatures...)
		w.WriteHeader(http.StatusOK)

	default:
		http.NotFound(w, r)
	}
}

// NewTestGateway 连接到进程内节点的链上网关
func NewTestGateway(t *testing.T, node *FakeNode) client.ChainGateway {
	t.Helper()
	gateway, err := client.NewChainGatewayFromConfig(&client.Config{
		Endpoint: node.Server.URL,
		Protocol: client.ProtocolHTTP,
		Timeout:  5,
	})
	if err != nil {
		t.Fatalf("创建链上网关失败: %v", err)
	}
	t.Cleanup(func() { _ = gateway.Close() })
	return gateway
}

// NewTestStore 独立临时目录中的本地存储
func NewTestStore(t *testing.T) store.Service {
	t.Helper()
	return store.NewFileStore(filepath.Join(t.TempDir(), "transactions.json"))
}

// CreateTestWallet 创建随机测试钱包
func CreateTestWallet(t *testing.T) *wallet.SimpleWallet {
	t.Helper()
	w, err := wallet.NewWallet()
	if err != nil {
		t.Fatalf("创建钱包失败: %v", err)
	}
	return w
}
