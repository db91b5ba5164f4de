package account

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safecoord/coordinator-sdk-go/types"
)

// Registry 链注册表（短名 ↔ ChainID 双向映射）
type Registry struct {
	byShort map[string]types.ChainID
	byChain map[types.ChainID]string
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		byShort: make(map[string]types.ChainID),
		byChain: make(map[types.ChainID]string),
	}
}

// DefaultRegistry 创建带常见网络短名的注册表（EIP-3770 短名）
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for short, chain := range map[string]types.ChainID{
		"eth":   "1",
		"oeth":  "10",
		"gno":   "100",
		"matic": "137",
		"base":  "8453",
		"arb1":  "42161",
		"sep":   "11155111",
	} {
		r.Register(short, chain)
	}
	return r
}

// Register 登记一条短名映射（重复登记覆盖旧值）
func (r *Registry) Register(shortName string, chainID types.ChainID) {
	// 双向映射必须保持一致：覆盖前先清掉旧的反向条目
	if old, ok := r.byShort[shortName]; ok {
		delete(r.byChain, old)
	}
	if old, ok := r.byChain[chainID]; ok {
		delete(r.byShort, old)
	}
	r.byShort[shortName] = chainID
	r.byChain[chainID] = shortName
}

// ChainID 按短名查 ChainID
func (r *Registry) ChainID(shortName string) (types.ChainID, bool) {
	id, ok := r.byShort[shortName]
	return id, ok
}

// ShortName 按 ChainID 查短名
func (r *Registry) ShortName(chainID types.ChainID) (string, bool) {
	short, ok := r.byChain[chainID]
	return short, ok
}

// ChainAddress 解析后的链限定地址
type ChainAddress struct {
	// ChainID 为空表示输入未携带链限定前缀
	ChainID types.ChainID
	Address common.Address
}

// Parse 解析地址输入
//
// 接受三种形式：
// - 裸地址："0xABC…"（ChainID 为空）
// - 链限定短名："eth:0xABC…"
// - 回退形式："chain:<chainId>:0xABC…"（Format 对未登记链的输出）
//
// 地址部分必须是 40 位十六进制（可带 0x 前缀），否则返回 InvalidAddress；
// 未登记的短名返回 UnknownChain
func Parse(input string, registry *Registry) (*ChainAddress, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, types.ErrInvalidAddress("empty input")
	}

	var chainID types.ChainID
	addrPart := input

	if strings.HasPrefix(input, "chain:") {
		// 回退形式 chain:<chainId>:<address>
		rest := strings.TrimPrefix(input, "chain:")
		idx := strings.LastIndex(rest, ":")
		if idx <= 0 || idx == len(rest)-1 {
			return nil, types.ErrInvalidAddress(fmt.Sprintf("malformed chain-qualified form: %q", input))
		}
		chainID = types.ChainID(rest[:idx])
		addrPart = rest[idx+1:]
	} else if idx := strings.Index(input, ":"); idx >= 0 {
		shortName := input[:idx]
		addrPart = input[idx+1:]
		id, ok := registry.ChainID(shortName)
		if !ok {
			return nil, types.ErrUnknownChain(shortName)
		}
		chainID = id
	}

	if !common.IsHexAddress(addrPart) {
		return nil, types.ErrInvalidAddress(fmt.Sprintf("%q is not a 20-byte hex address", addrPart))
	}

	return &ChainAddress{
		ChainID: chainID,
		Address: common.HexToAddress(addrPart),
	}, nil
}

// Format 输出链限定地址
//
// ChainID 已登记 → "shortName:0xEIP55…"；未登记 → "chain:<chainId>:0xEIP55…"
// 地址始终按 EIP-55 校验和大小写输出
func Format(addr common.Address, chainID types.ChainID, registry *Registry) string {
	if short, ok := registry.ShortName(chainID); ok {
		return fmt.Sprintf("%s:%s", short, addr.Hex())
	}
	return fmt.Sprintf("chain:%s:%s", chainID, addr.Hex())
}
