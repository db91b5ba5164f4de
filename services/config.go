package services

import "github.com/safecoord/coordinator-sdk-go/types"

// Config 统一的业务服务配置结构，用于为各个具体 Service 提供存储路径、
// 链注册表条目、远端交易服务地址等运行时参数。
//
// **设计目的**：
// - 避免在各个 service 内部硬编码路径 / 服务地址
// - 不使用模块级单例：所有依赖都通过构造函数显式注入，测试可以构造隔离实例
//
// **说明**：
// - 所有字段均为可选，未提供时各 service 采用合理的默认行为或返回错误
type Config struct {
	// StorePath 本地提案存储文件路径
	StorePath string

	// TxServiceURLs 各链的远端交易服务地址（按 ChainID 索引）
	TxServiceURLs map[types.ChainID]string

	// Chains 额外的链注册表条目（短名 → ChainID），与默认表合并
	Chains []ChainEntry

	// SyncConcurrency 多 Safe 同步的并发上限（<=0 时使用默认值）
	SyncConcurrency int
}

// ChainEntry 链注册表条目
type ChainEntry struct {
	// ShortName EIP-3770 风格的链短名（如 "eth"）
	ShortName string
	// ChainID 链标识
	ChainID types.ChainID
}
