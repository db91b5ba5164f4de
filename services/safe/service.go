package safe

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safecoord/coordinator-sdk-go/client"
	"github.com/safecoord/coordinator-sdk-go/services/signing"
	"github.com/safecoord/coordinator-sdk-go/services/store"
	"github.com/safecoord/coordinator-sdk-go/services/sync"
	"github.com/safecoord/coordinator-sdk-go/services/transfer"
	"github.com/safecoord/coordinator-sdk-go/types"
)

// Service Safe 交易协调服务接口
//
// 这是暴露给命令/UI 层的功能入口，组合存储、签名聚合、
// 传输编解码、同步与链上网关
type Service interface {
	// CreateTransaction 新建提案（hash 由外部内容哈希原语产生后传入）
	CreateTransaction(ctx context.Context, hash common.Hash, safeAddress common.Address, chainID types.ChainID, metadata types.TxMetadata, proposer common.Address) (*types.StoredTransaction, error)

	// AddSignature 为提案添加一个 owner 签名
	// 签名者必须在链上实时 owner 集合中；达到阈值时记录迁移到 signed
	AddSignature(ctx context.Context, hash common.Hash, signer common.Address, sigBytes []byte) (*types.StoredTransaction, error)

	// GetTransaction 查询提案
	GetTransaction(hash common.Hash) (*types.StoredTransaction, error)

	// ListTransactions 列出提案（按创建时间排序）
	ListTransactions(filter *store.Filter) ([]*types.StoredTransaction, error)

	// ExportTransaction 导出提案为可移植文档字节（规范化 JSON）
	ExportTransaction(hash common.Hash) ([]byte, error)

	// ImportTransaction 导入带外交换的文档字节
	ImportTransaction(docBytes []byte) (*transfer.ImportResult, error)

	// SyncTransactions 与远端提案服务双向同步多个 Safe
	SyncTransactions(ctx context.Context, refs []sync.SafeRef) []sync.SafeResult

	// ExecuteTransaction 提交已签名的执行交易
	// 预检查基于链上实时数据：签名不足返回 InsufficientSignatures
	ExecuteTransaction(ctx context.Context, hash common.Hash, signedTxHex string) (string, error)

	// ConfirmExecution 用链上回执佐证执行；确认成功才迁移到 executed
	ConfirmExecution(ctx context.Context, hash common.Hash, onChainTxID string) (bool, error)

	// RejectTransaction 显式拒绝提案（pending → rejected）
	RejectTransaction(hash common.Hash) (*types.StoredTransaction, error)

	// Readiness 基于链上实时 owner/threshold 计算提案的阈值判定
	Readiness(ctx context.Context, hash common.Hash) (signing.Readiness, error)
}

// service Safe 协调服务实现
type service struct {
	store   store.Service
	gateway client.ChainGateway
	syncer  sync.Service
	now     func() time.Time
}

// NewService 创建 Safe 协调服务
// 所有依赖显式注入，不使用模块级单例
func NewService(st store.Service, gateway client.ChainGateway, syncer sync.Service) Service {
	return &service{
		store:   st,
		gateway: gateway,
		syncer:  syncer,
		now:     time.Now,
	}
}

// CreateTransaction 新建提案
func (s *service) CreateTransaction(ctx context.Context, hash common.Hash, safeAddress common.Address, chainID types.ChainID, metadata types.TxMetadata, proposer common.Address) (*types.StoredTransaction, error) {
	return s.store.Create(hash, safeAddress, chainID, metadata, proposer)
}

// AddSignature 为提案添加一个 owner 签名
func (s *service) AddSignature(ctx context.Context, hash common.Hash, signer common.Address, sigBytes []byte) (*types.StoredTransaction, error) {
	record, err := s.store.Get(hash)
	if err != nil {
		return nil, err
	}
	if record.Status.Terminal() {
		return nil, types.ErrInvalidTransition(record.Status, types.StatusSigned)
	}

	// 实时读取 owner/threshold；网关不可达时不改动本地状态
	owners, err := s.gateway.GetOwners(ctx, record.SafeAddress)
	if err != nil {
		return nil, err
	}
	threshold, err := s.gateway.GetThreshold(ctx, record.SafeAddress)
	if err != nil {
		return nil, err
	}

	if !containsAddress(owners, signer) {
		return nil, types.ErrNotAnOwner(signer.Hex())
	}

	updated := signing.AddSignature(record, signer, sigBytes, s.now().UTC())
	if err := s.store.Put(updated); err != nil {
		return nil, err
	}

	readiness := signing.ComputeReadiness(updated, owners, threshold)
	if readiness.Ready && updated.Status == types.StatusPending {
		return s.store.UpdateStatus(hash, types.StatusSigned, "")
	}
	return updated, nil
}

// GetTransaction 查询提案
func (s *service) GetTransaction(hash common.Hash) (*types.StoredTransaction, error) {
	return s.store.Get(hash)
}

// ListTransactions 列出提案
func (s *service) ListTransactions(filter *store.Filter) ([]*types.StoredTransaction, error) {
	return s.store.List(filter)
}

// ExportTransaction 导出提案为可移植文档字节
func (s *service) ExportTransaction(hash common.Hash) ([]byte, error) {
	record, err := s.store.Get(hash)
	if err != nil {
		return nil, err
	}
	return transfer.Export(record)
}

// ImportTransaction 导入带外交换的文档字节
func (s *service) ImportTransaction(docBytes []byte) (*transfer.ImportResult, error) {
	return transfer.Import(docBytes, s.store)
}

// SyncTransactions 与远端提案服务双向同步多个 Safe
func (s *service) SyncTransactions(ctx context.Context, refs []sync.SafeRef) []sync.SafeResult {
	return s.syncer.SyncAll(ctx, refs)
}

// ExecuteTransaction 提交已签名的执行交易
func (s *service) ExecuteTransaction(ctx context.Context, hash common.Hash, signedTxHex string) (string, error) {
	record, err := s.store.Get(hash)
	if err != nil {
		return "", err
	}
	if record.Status.Terminal() {
		return "", types.ErrInvalidTransition(record.Status, types.StatusExecuted)
	}

	readiness, _, err := signing.ReadinessFromChain(ctx, s.gateway, record)
	if err != nil {
		return "", err
	}
	if !readiness.Ready {
		return "", types.ErrInsufficientSignatures(readiness.Collected, readiness.Required)
	}

	txID, err := s.gateway.Submit(ctx, signedTxHex)
	if err != nil {
		return "", err
	}

	if _, err := s.store.UpdateStatus(hash, types.StatusExecuted, txID); err != nil {
		return txID, err
	}
	return txID, nil
}

// ConfirmExecution 用链上回执佐证执行
//
// 远端服务报告的执行状态不被信任；只有链上回执确认成功，
// 本地记录才迁移到 executed
func (s *service) ConfirmExecution(ctx context.Context, hash common.Hash, onChainTxID string) (bool, error) {
	record, err := s.store.Get(hash)
	if err != nil {
		return false, err
	}
	if record.Status == types.StatusExecuted {
		return true, nil
	}

	confirmed, err := s.gateway.TransactionConfirmed(ctx, onChainTxID)
	if err != nil {
		return false, err
	}
	if !confirmed {
		return false, nil
	}

	if _, err := s.store.UpdateStatus(hash, types.StatusExecuted, onChainTxID); err != nil {
		return true, err
	}
	return true, nil
}

// RejectTransaction 显式拒绝提案
func (s *service) RejectTransaction(hash common.Hash) (*types.StoredTransaction, error) {
	return s.store.UpdateStatus(hash, types.StatusRejected, "")
}

// Readiness 基于链上实时数据计算阈值判定
func (s *service) Readiness(ctx context.Context, hash common.Hash) (signing.Readiness, error) {
	record, err := s.store.Get(hash)
	if err != nil {
		return signing.Readiness{}, err
	}
	readiness, _, err := signing.ReadinessFromChain(ctx, s.gateway, record)
	return readiness, err
}

// containsAddress 判断地址是否在集合中
func containsAddress(addrs []common.Address, target common.Address) bool {
	for _, a := range addrs {
		if a == target {
			return true
		}
	}
	return false
}
