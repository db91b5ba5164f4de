package types

// DocumentVersion 当前传输文档版本
const DocumentVersion = "1.0"

// TransferDocument 可移植的提案传输文档
//
// 用于离线（带外）签名交换以及远端交易服务的上行/下行载荷。
// 字段顺序与线上契约保持一致；不包含任何私密材料。
//
// 数值字段使用十进制字符串，字节字段使用 0x 前缀十六进制，
// 时间字段使用 RFC3339 UTC 字符串
type TransferDocument struct {
	Version     string              `json:"version"`
	ChainID     string              `json:"chainId"`
	SafeTxHash  string              `json:"safeTxHash"`
	SafeAddress string              `json:"safeAddress"`
	Transaction DocumentTransaction `json:"transaction"`
	Signatures  []DocumentSignature `json:"signatures"`
	CreatedBy   string              `json:"createdBy"`
	CreatedAt   string              `json:"createdAt"`

	// Executed 执行状态声明。这是 1.0 基础字段表之外的扩展字段：
	// omitempty 保证未执行文档的字节与基础契约完全一致。
	// 仅作展示与转发用途；本地状态迁移必须经链上确认，绝不直接采信该字段
	Executed bool `json:"executed,omitempty"`
}

// DocumentTransaction 文档内的交易元数据
type DocumentTransaction struct {
	To             string `json:"to"`
	Value          string `json:"value"`
	Data           string `json:"data"`
	Operation      uint8  `json:"operation"`
	SafeTxGas      string `json:"safeTxGas"`
	BaseGas        string `json:"baseGas"`
	GasPrice       string `json:"gasPrice"`
	GasToken       string `json:"gasToken"`
	RefundReceiver string `json:"refundReceiver"`
	Nonce          uint64 `json:"nonce"`
}

// DocumentSignature 文档内的单个签名条目
type DocumentSignature struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
	SignedAt  string `json:"signedAt"`
}
