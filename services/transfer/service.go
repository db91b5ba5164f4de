package transfer

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gowebpki/jcs"

	"github.com/safecoord/coordinator-sdk-go/services/store"
	"github.com/safecoord/coordinator-sdk-go/types"
)

// Mode 导入模式
type Mode string

const (
	// ModeNew 本地不存在该 hash，作为新记录导入
	ModeNew Mode = "new"
	// ModeMerged 本地已存在该 hash，签名做幂等并集合并
	ModeMerged Mode = "merged"
)

// ImportResult 导入结果
type ImportResult struct {
	Mode Mode
	// NewSigners 本次导入新增的签名者（导入前后签名者集合的差）
	NewSigners []common.Address
	// Record 导入后的记录
	Record *types.StoredTransaction
}

// BuildDocument 将本地记录转换为传输文档
//
// 输出确定性：地址按 EIP-55 大小写、数值按十进制字符串、时间按 RFC3339 UTC；
// 不包含任何私密材料
func BuildDocument(record *types.StoredTransaction) *types.TransferDocument {
	sigs := make([]types.DocumentSignature, 0, len(record.Signatures))
	for _, sig := range record.Signatures {
		sigs = append(sigs, types.DocumentSignature{
			Signer:    sig.Signer.Hex(),
			Signature: hexutil.Encode(sig.Bytes),
			SignedAt:  sig.SignedAt.UTC().Format(time.RFC3339),
		})
	}

	return &types.TransferDocument{
		Version:     types.DocumentVersion,
		ChainID:     string(record.ChainID),
		SafeTxHash:  record.SafeTxHash.Hex(),
		SafeAddress: record.SafeAddress.Hex(),
		Transaction: types.DocumentTransaction{
			To:             record.Metadata.To.Hex(),
			Value:          bigToString(record.Metadata.Value),
			Data:           hexutil.Encode(record.Metadata.Data),
			Operation:      record.Metadata.Operation,
			SafeTxGas:      bigToString(record.Metadata.SafeTxGas),
			BaseGas:        bigToString(record.Metadata.BaseGas),
			GasPrice:       bigToString(record.Metadata.GasPrice),
			GasToken:       record.Metadata.GasToken.Hex(),
			RefundReceiver: record.Metadata.RefundReceiver.Hex(),
			Nonce:          record.Metadata.Nonce,
		},
		Signatures: sigs,
		CreatedBy:  record.Proposer.Hex(),
		CreatedAt:  record.CreatedAt.UTC().Format(time.RFC3339),
		Executed:   record.Status == types.StatusExecuted || record.RemoteExecuted,
	}
}

// Export 导出记录为规范化 JSON 字节（RFC 8785 / JCS）
//
// 同一记录的导出字节逐位稳定，可用于带外交换与比对
func Export(record *types.StoredTransaction) ([]byte, error) {
	data, err := json.Marshal(BuildDocument(record))
	if err != nil {
		return nil, fmt.Errorf("marshal document failed: %w", err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("canonicalize document failed: %w", err)
	}
	return canonical, nil
}

// Decode 解析传输文档字节（仅做 JSON 解码，不做字段校验）
func Decode(docBytes []byte) (*types.TransferDocument, error) {
	var doc types.TransferDocument
	if err := json.Unmarshal(docBytes, &doc); err != nil {
		return nil, types.ErrInvalidDocument(fmt.Sprintf("malformed JSON: %v", err))
	}
	return &doc, nil
}

// ParseDocument 严格校验文档并转换为本地记录（parse-then-validate）
//
// 任何字段非法都返回 InvalidDocument，不产生部分填充的记录
func ParseDocument(doc *types.TransferDocument) (*types.StoredTransaction, error) {
	if doc == nil {
		return nil, types.ErrInvalidDocument("nil document")
	}
	if doc.Version == "" {
		return nil, types.ErrInvalidDocument("missing version")
	}
	if doc.Version != types.DocumentVersion {
		return nil, types.ErrInvalidDocument(fmt.Sprintf("unsupported version %q, expected %q", doc.Version, types.DocumentVersion))
	}
	if doc.ChainID == "" {
		return nil, types.ErrInvalidDocument("missing chainId")
	}

	hash, err := parseHash(doc.SafeTxHash)
	if err != nil {
		return nil, types.ErrInvalidDocument(fmt.Sprintf("safeTxHash: %v", err))
	}
	safeAddr, err := parseAddress(doc.SafeAddress, "safeAddress")
	if err != nil {
		return nil, err
	}
	proposer, err := parseAddress(doc.CreatedBy, "createdBy")
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339, doc.CreatedAt)
	if err != nil {
		return nil, types.ErrInvalidDocument(fmt.Sprintf("createdAt: %v", err))
	}

	metadata, err := parseTransaction(&doc.Transaction)
	if err != nil {
		return nil, err
	}

	sigs := make([]types.Signature, 0, len(doc.Signatures))
	seen := make(map[common.Address]struct{}, len(doc.Signatures))
	for i, ds := range doc.Signatures {
		signer, err := parseAddress(ds.Signer, fmt.Sprintf("signatures[%d].signer", i))
		if err != nil {
			return nil, err
		}
		if _, dup := seen[signer]; dup {
			return nil, types.ErrInvalidDocument(fmt.Sprintf("duplicate signer %s", ds.Signer))
		}
		seen[signer] = struct{}{}

		sigBytes, err := hexutil.Decode(ds.Signature)
		if err != nil || len(sigBytes) == 0 {
			return nil, types.ErrInvalidDocument(fmt.Sprintf("signatures[%d].signature is not valid hex", i))
		}
		signedAt, err := time.Parse(time.RFC3339, ds.SignedAt)
		if err != nil {
			return nil, types.ErrInvalidDocument(fmt.Sprintf("signatures[%d].signedAt: %v", i, err))
		}
		sigs = append(sigs, types.Signature{
			Signer:   signer,
			Bytes:    sigBytes,
			SignedAt: signedAt,
		})
	}

	return &types.StoredTransaction{
		SafeTxHash:     hash,
		SafeAddress:    safeAddr,
		ChainID:        types.ChainID(doc.ChainID),
		Metadata:       *metadata,
		Status:         types.StatusPending,
		Signatures:     sigs,
		Proposer:       proposer,
		CreatedAt:      createdAt,
		RemoteExecuted: doc.Executed,
	}, nil
}

// Import 导入文档字节（解码 + 校验 + 入库）
func Import(docBytes []byte, st store.Service) (*ImportResult, error) {
	doc, err := Decode(docBytes)
	if err != nil {
		return nil, err
	}
	return ImportDocument(doc, st)
}

// ImportDocument 导入已解码的文档
//
// - hash 本地未知：新建记录（ModeNew）
// - hash 已知：元数据必须与本地一致（否则 ConflictingMetadata），
//   签名按 signer 做幂等并集合并——本地已有签名绝不被覆盖或丢弃
//
// 返回本次新增的签名者列表，供调用方反馈
func ImportDocument(doc *types.TransferDocument, st store.Service) (*ImportResult, error) {
	incoming, err := ParseDocument(doc)
	if err != nil {
		return nil, err
	}

	existing, err := st.Get(incoming.SafeTxHash)
	if err != nil {
		if !types.HasCode(err, types.ErrorCodeNotFound) {
			return nil, err
		}

		// 本地未知：整体落库
		if err := st.Put(incoming); err != nil {
			return nil, err
		}
		newSigners := make([]common.Address, 0, len(incoming.Signatures))
		for _, sig := range incoming.Signatures {
			newSigners = append(newSigners, sig.Signer)
		}
		return &ImportResult{
			Mode:       ModeNew,
			NewSigners: newSigners,
			Record:     incoming,
		}, nil
	}

	// 相同 hash 必须携带相同元数据
	if !existing.Metadata.Equal(&incoming.Metadata) {
		return nil, types.ErrConflictingMetadata(incoming.SafeTxHash.Hex())
	}

	merged, newSigners := MergeSignatures(existing, incoming.Signatures)
	if incoming.RemoteExecuted {
		merged.RemoteExecuted = true
	}

	if len(newSigners) > 0 || merged.RemoteExecuted != existing.RemoteExecuted {
		if err := st.Put(merged); err != nil {
			return nil, err
		}
	}

	return &ImportResult{
		Mode:       ModeMerged,
		NewSigners: newSigners,
		Record:     merged,
	}, nil
}

// MergeSignatures 将外来签名合并进记录（幂等并集）
//
// 本地已有 signer 的签名保持不变；只追加本地缺失的 signer。
// 返回合并后的记录与新增签名者列表
func MergeSignatures(existing *types.StoredTransaction, incoming []types.Signature) (*types.StoredTransaction, []common.Address) {
	merged := existing.Clone()
	have := make(map[common.Address]struct{}, len(merged.Signatures))
	for _, sig := range merged.Signatures {
		have[sig.Signer] = struct{}{}
	}

	var newSigners []common.Address
	for _, sig := range incoming {
		if _, ok := have[sig.Signer]; ok {
			continue
		}
		merged.Signatures = append(merged.Signatures, types.Signature{
			Signer:   sig.Signer,
			Bytes:    append([]byte(nil), sig.Bytes...),
			SignedAt: sig.SignedAt,
		})
		have[sig.Signer] = struct{}{}
		newSigners = append(newSigners, sig.Signer)
	}
	return merged, newSigners
}

// parseTransaction 校验并转换文档内的交易元数据
func parseTransaction(tx *types.DocumentTransaction) (*types.TxMetadata, error) {
	to, err := parseAddress(tx.To, "transaction.to")
	if err != nil {
		return nil, err
	}
	gasToken, err := parseAddress(tx.GasToken, "transaction.gasToken")
	if err != nil {
		return nil, err
	}
	refundReceiver, err := parseAddress(tx.RefundReceiver, "transaction.refundReceiver")
	if err != nil {
		return nil, err
	}

	value, err := parseBigString(tx.Value, "transaction.value")
	if err != nil {
		return nil, err
	}
	safeTxGas, err := parseBigString(tx.SafeTxGas, "transaction.safeTxGas")
	if err != nil {
		return nil, err
	}
	baseGas, err := parseBigString(tx.BaseGas, "transaction.baseGas")
	if err != nil {
		return nil, err
	}
	gasPrice, err := parseBigString(tx.GasPrice, "transaction.gasPrice")
	if err != nil {
		return nil, err
	}

	var data []byte
	if tx.Data != "" && tx.Data != "0x" {
		data, err = hexutil.Decode(tx.Data)
		if err != nil {
			return nil, types.ErrInvalidDocument(fmt.Sprintf("transaction.data is not valid hex: %v", err))
		}
	}

	if tx.Operation > 1 {
		return nil, types.ErrInvalidDocument(fmt.Sprintf("transaction.operation must be 0 or 1, got %d", tx.Operation))
	}

	return &types.TxMetadata{
		To:             to,
		Value:          value,
		Data:           data,
		Operation:      tx.Operation,
		SafeTxGas:      safeTxGas,
		BaseGas:        baseGas,
		GasPrice:       gasPrice,
		GasToken:       gasToken,
		RefundReceiver: refundReceiver,
		Nonce:          tx.Nonce,
	}, nil
}

// parseAddress 校验 20 字节十六进制地址字段
func parseAddress(s, field string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, types.ErrInvalidDocument(fmt.Sprintf("%s is not a 20-byte hex address: %q", field, s))
	}
	return common.HexToAddress(s), nil
}

// parseHash 校验 32 字节十六进制哈希字段
func parseHash(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return common.Hash{}, fmt.Errorf("not a 32-byte hex hash: %q", s)
	}
	if _, err := hexutil.Decode(s); err != nil {
		return common.Hash{}, fmt.Errorf("not valid hex: %q", s)
	}
	return common.HexToHash(s), nil
}

// parseBigString 校验十进制数值字符串（空串按 0 处理）
func parseBigString(s, field string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, types.ErrInvalidDocument(fmt.Sprintf("%s is not a non-negative decimal string: %q", field, s))
	}
	return v, nil
}

// bigToString 数值转十进制字符串（nil 按 0 处理）
func bigToString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
