package sync

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safecoord/coordinator-sdk-go/client"
	"github.com/safecoord/coordinator-sdk-go/services/store"
	"github.com/safecoord/coordinator-sdk-go/services/transfer"
	"github.com/safecoord/coordinator-sdk-go/types"
	"github.com/safecoord/coordinator-sdk-go/utils"
)

// SafeRef 同步目标（Safe 地址 + 链）
type SafeRef struct {
	Address common.Address
	ChainID types.ChainID
}

// Report 单个 Safe 的同步统计
type Report struct {
	Safe SafeRef
	// New 本地新建的记录数（远端有、本地没有）
	New int
	// Updated 签名集合实际增长的记录数（双向合计）
	Updated int
	// Proposed 上传到远端的本地记录数
	Proposed int
}

// SafeResult 多 Safe 同步的单项结果
type SafeResult struct {
	Safe   SafeRef
	Report *Report
	// Err 该 Safe 的同步错误；一个 Safe 失败不影响其他 Safe
	Err error
}

// Service 双向同步服务接口
//
// **冲突策略**：
// - 签名双向只增不减，同步绝不删除签名
// - 状态/阈值判定由本地基于链上实时数据重算，不信任远端传来的状态
// - 远端报告的执行状态只复制到 RemoteExecuted 供展示
type Service interface {
	// Pull 拉取远端提案并合并进本地存储
	Pull(ctx context.Context, safeAddress common.Address, chainID types.ChainID) (*Report, error)

	// Push 将本地新提案与签名增量上传到远端
	Push(ctx context.Context, safeAddress common.Address, chainID types.ChainID) (*Report, error)

	// Sync 先 Pull 后 Push
	Sync(ctx context.Context, safeAddress common.Address, chainID types.ChainID) (*Report, error)

	// SyncAll 并发同步多个 Safe（partial-failure isolation）
	SyncAll(ctx context.Context, refs []SafeRef) []SafeResult
}

// service 同步服务实现
type service struct {
	store       store.Service
	txService   client.TxService
	concurrency int
}

// NewService 创建同步服务
func NewService(st store.Service, txService client.TxService) Service {
	return &service{
		store:       st,
		txService:   txService,
		concurrency: 5,
	}
}

// NewServiceWithConcurrency 创建指定并发上限的同步服务
func NewServiceWithConcurrency(st store.Service, txService client.TxService, concurrency int) Service {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &service{
		store:       st,
		txService:   txService,
		concurrency: concurrency,
	}
}

// Pull 拉取远端提案并合并进本地存储
//
// 远端列表在任何本地写入之前完整取回：NetworkError 时本地状态完全不变。
// 单个非法远端文档跳过，不影响同一 Safe 的其余文档
func (s *service) Pull(ctx context.Context, safeAddress common.Address, chainID types.ChainID) (*Report, error) {
	docs, err := s.txService.ListProposals(ctx, safeAddress.Hex(), chainID)
	if err != nil {
		return nil, err
	}

	report := &Report{Safe: SafeRef{Address: safeAddress, ChainID: chainID}}
	for _, doc := range docs {
		result, err := transfer.ImportDocument(doc, s.store)
		if err != nil {
			if types.HasCode(err, types.ErrorCodeInvalidDocument) ||
				types.HasCode(err, types.ErrorCodeConflictingMetadata) {
				// 远端坏数据不中断本 Safe 的同步
				continue
			}
			return nil, err
		}
		switch {
		case result.Mode == transfer.ModeNew:
			report.New++
		case len(result.NewSigners) > 0:
			report.Updated++
		}
	}
	return report, nil
}

// Push 将本地新提案与签名增量上传到远端
//
// 远端缺失的记录整体上传（proposed）；远端已有的记录只上传
// 本地多出的签名（updated）。上传失败只中断当前 Safe，本地状态不变
func (s *service) Push(ctx context.Context, safeAddress common.Address, chainID types.ChainID) (*Report, error) {
	remoteDocs, err := s.txService.ListProposals(ctx, safeAddress.Hex(), chainID)
	if err != nil {
		return nil, err
	}

	remoteByHash := make(map[common.Hash]*types.TransferDocument, len(remoteDocs))
	for _, doc := range remoteDocs {
		remoteByHash[common.HexToHash(doc.SafeTxHash)] = doc
	}

	locals, err := s.store.List(&store.Filter{
		SafeAddress: &safeAddress,
		ChainID:     &chainID,
	})
	if err != nil {
		return nil, err
	}

	report := &Report{Safe: SafeRef{Address: safeAddress, ChainID: chainID}}
	for _, record := range locals {
		remote, exists := remoteByHash[record.SafeTxHash]
		if !exists {
			if err := s.txService.ProposeTransaction(ctx, transfer.BuildDocument(record)); err != nil {
				return nil, err
			}
			report.Proposed++
			continue
		}

		delta := signatureDelta(record, remote)
		if len(delta) == 0 {
			continue
		}
		if err := s.txService.AddSignatures(ctx, record.SafeTxHash.Hex(), delta); err != nil {
			return nil, err
		}
		report.Updated++
	}
	return report, nil
}

// Sync 先 Pull 后 Push
func (s *service) Sync(ctx context.Context, safeAddress common.Address, chainID types.ChainID) (*Report, error) {
	pulled, err := s.Pull(ctx, safeAddress, chainID)
	if err != nil {
		return nil, err
	}
	pushed, err := s.Push(ctx, safeAddress, chainID)
	if err != nil {
		return nil, err
	}
	return &Report{
		Safe:     pulled.Safe,
		New:      pulled.New,
		Updated:  pulled.Updated + pushed.Updated,
		Proposed: pushed.Proposed,
	}, nil
}

// SyncAll 并发同步多个 Safe
//
// 各 Safe 的远端调用并发发出，全部 join 后返回；一个 Safe 的失败
// 只记录在该项的 Err 上，不影响其他 Safe
func (s *service) SyncAll(ctx context.Context, refs []SafeRef) []SafeResult {
	batch := utils.BatchRun(ctx, refs, func(ctx context.Context, ref SafeRef, index int) (*Report, error) {
		return s.Sync(ctx, ref.Address, ref.ChainID)
	}, &utils.BatchConfig{Concurrency: s.concurrency})

	out := make([]SafeResult, len(refs))
	for i, ref := range refs {
		out[i] = SafeResult{
			Safe:   ref,
			Report: batch.Results[i],
			Err:    batch.Errors[i],
		}
	}
	return out
}

// signatureDelta 计算本地有而远端没有的签名（按 signer 差集）
func signatureDelta(record *types.StoredTransaction, remote *types.TransferDocument) []types.DocumentSignature {
	remoteSigners := make(map[common.Address]struct{}, len(remote.Signatures))
	for _, ds := range remote.Signatures {
		if common.IsHexAddress(ds.Signer) {
			remoteSigners[common.HexToAddress(ds.Signer)] = struct{}{}
		}
	}

	doc := transfer.BuildDocument(record)
	var delta []types.DocumentSignature
	for i, sig := range record.Signatures {
		if _, ok := remoteSigners[sig.Signer]; !ok {
			delta = append(delta, doc.Signatures[i])
		}
	}
	return delta
}
