package types

import (
	"bytes"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ChainID 链标识（不透明字符串，例如 "1" 表示以太坊主网）
type ChainID string

// Status 提案状态
// 状态机单调推进：pending → signed → executed 或 pending → rejected
// executed 与 rejected 为终态，不允许任何后续迁移
type Status string

const (
	StatusPending  Status = "pending"
	StatusSigned   Status = "signed"
	StatusExecuted Status = "executed"
	StatusRejected Status = "rejected"
)

// Valid 判断状态值是否合法
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSigned, StatusExecuted, StatusRejected:
		return true
	}
	return false
}

// Terminal 判断是否为终态
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusRejected
}

// CanTransitionTo 判断状态迁移是否允许
//
// 允许的迁移：
// - pending → signed / executed / rejected
// - signed → executed
// 其他一律拒绝（包括原地迁移与任何离开终态的迁移）
func (s Status) CanTransitionTo(next Status) bool {
	if !s.Valid() || !next.Valid() || s == next {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusSigned || next == StatusExecuted || next == StatusRejected
	case StatusSigned:
		return next == StatusExecuted
	}
	return false
}

// SafeAccount 多签账户（Safe）的本地缓存视图
//
// **注意**：
// - Owners/Threshold 为缓存值，可能过期
// - 阈值判定必须使用链上网关实时读取的数据（见 services/signing）
type SafeAccount struct {
	Address   common.Address `json:"address"`
	ChainID   ChainID        `json:"chainId"`
	Owners    []common.Address `json:"owners"`
	Threshold int            `json:"threshold"`
	Deployed  bool           `json:"deployed"`
}

// IsOwner 判断地址是否在缓存的 owner 集合中（大小写不敏感，20字节值比较）
func (s *SafeAccount) IsOwner(addr common.Address) bool {
	for _, o := range s.Owners {
		if o == addr {
			return true
		}
	}
	return false
}

// TxMetadata 提案交易元数据
//
// 字段与 Safe 交易字段一一对应；同一 safeTxHash 的元数据不可变
type TxMetadata struct {
	To             common.Address `json:"to"`
	Value          *big.Int       `json:"value"`
	Data           []byte         `json:"data"`
	Operation      uint8          `json:"operation"`
	SafeTxGas      *big.Int       `json:"safeTxGas"`
	BaseGas        *big.Int       `json:"baseGas"`
	GasPrice       *big.Int       `json:"gasPrice"`
	GasToken       common.Address `json:"gasToken"`
	RefundReceiver common.Address `json:"refundReceiver"`
	Nonce          uint64         `json:"nonce"`
}

// bigEqual 比较两个大整数，nil 按 0 处理
func bigEqual(a, b *big.Int) bool {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	return a.Cmp(b) == 0
}

// Equal 判断两份元数据在语义上是否一致
// 相同 safeTxHash 的提案必须携带一致的元数据，否则视为冲突
func (m *TxMetadata) Equal(other *TxMetadata) bool {
	if other == nil {
		return false
	}
	return m.To == other.To &&
		bigEqual(m.Value, other.Value) &&
		bytes.Equal(m.Data, other.Data) &&
		m.Operation == other.Operation &&
		bigEqual(m.SafeTxGas, other.SafeTxGas) &&
		bigEqual(m.BaseGas, other.BaseGas) &&
		bigEqual(m.GasPrice, other.GasPrice) &&
		m.GasToken == other.GasToken &&
		m.RefundReceiver == other.RefundReceiver &&
		m.Nonce == other.Nonce
}

// Signature 单个 owner 对 safeTxHash 的签名
type Signature struct {
	Signer   common.Address `json:"signer"`
	Bytes    []byte         `json:"signature"`
	SignedAt time.Time      `json:"signedAt"`
}

// StoredTransaction 本地存储的提案记录
//
// **不变量**：
// - SafeTxHash 一经赋值不可变
// - Signatures 按 signer 去重（重复签名替换，不追加）
// - Status 只能按状态机单调推进
type StoredTransaction struct {
	SafeTxHash  common.Hash    `json:"safeTxHash"`
	SafeAddress common.Address `json:"safeAddress"`
	ChainID     ChainID        `json:"chainId"`
	Metadata    TxMetadata     `json:"transaction"`
	Status      Status         `json:"status"`
	Signatures  []Signature    `json:"signatures"`
	Proposer    common.Address `json:"createdBy"`
	CreatedAt   time.Time      `json:"createdAt"`
	ExecutedAt  *time.Time     `json:"executedAt,omitempty"`
	OnChainTxID string         `json:"onChainTxId,omitempty"`

	// RemoteExecuted 远端服务报告的执行状态，仅用于展示
	// 本地状态只有在链上确认后才会迁移到 executed
	RemoteExecuted bool `json:"remoteExecuted,omitempty"`
}

// SignatureBy 查找指定 signer 的签名
func (t *StoredTransaction) SignatureBy(signer common.Address) (Signature, bool) {
	for _, sig := range t.Signatures {
		if sig.Signer == signer {
			return sig, true
		}
	}
	return Signature{}, false
}

// Signers 返回当前签名者集合（保持首次出现顺序）
func (t *StoredTransaction) Signers() []common.Address {
	out := make([]common.Address, 0, len(t.Signatures))
	for _, sig := range t.Signatures {
		out = append(out, sig.Signer)
	}
	return out
}

// Clone 深拷贝记录（签名列表与元数据独立，避免共享底层切片）
func (t *StoredTransaction) Clone() *StoredTransaction {
	cp := *t
	cp.Signatures = make([]Signature, len(t.Signatures))
	for i, sig := range t.Signatures {
		cp.Signatures[i] = Signature{
			Signer:   sig.Signer,
			Bytes:    append([]byte(nil), sig.Bytes...),
			SignedAt: sig.SignedAt,
		}
	}
	cp.Metadata.Data = append([]byte(nil), t.Metadata.Data...)
	if t.Metadata.Value != nil {
		cp.Metadata.Value = new(big.Int).Set(t.Metadata.Value)
	}
	if t.Metadata.SafeTxGas != nil {
		cp.Metadata.SafeTxGas = new(big.Int).Set(t.Metadata.SafeTxGas)
	}
	if t.Metadata.BaseGas != nil {
		cp.Metadata.BaseGas = new(big.Int).Set(t.Metadata.BaseGas)
	}
	if t.Metadata.GasPrice != nil {
		cp.Metadata.GasPrice = new(big.Int).Set(t.Metadata.GasPrice)
	}
	if t.ExecutedAt != nil {
		at := *t.ExecutedAt
		cp.ExecutedAt = &at
	}
	return &cp
}
