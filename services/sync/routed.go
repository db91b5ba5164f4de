package sync

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safecoord/coordinator-sdk-go/client"
	"github.com/safecoord/coordinator-sdk-go/services/store"
	"github.com/safecoord/coordinator-sdk-go/types"
	"github.com/safecoord/coordinator-sdk-go/utils"
)

// routedService 多链同步服务
//
// 每条链有独立的远端交易服务；按记录的 ChainID 路由到对应客户端。
// 未配置远端服务的链返回 NetworkError（可重试：配置补齐后重跑即可）
type routedService struct {
	store       store.Service
	perChain    map[types.ChainID]Service
	concurrency int
}

// NewRoutedService 创建按链路由的同步服务
func NewRoutedService(st store.Service, txServices map[types.ChainID]client.TxService, concurrency int) Service {
	if concurrency <= 0 {
		concurrency = 5
	}
	perChain := make(map[types.ChainID]Service, len(txServices))
	for chainID, txService := range txServices {
		perChain[chainID] = NewServiceWithConcurrency(st, txService, concurrency)
	}
	return &routedService{
		store:       st,
		perChain:    perChain,
		concurrency: concurrency,
	}
}

func (s *routedService) forChain(chainID types.ChainID) (Service, error) {
	svc, ok := s.perChain[chainID]
	if !ok {
		return nil, types.ErrNetwork(fmt.Sprintf("no transaction service configured for chain %s", chainID), nil)
	}
	return svc, nil
}

// Pull 拉取远端提案并合并进本地存储
func (s *routedService) Pull(ctx context.Context, safeAddress common.Address, chainID types.ChainID) (*Report, error) {
	svc, err := s.forChain(chainID)
	if err != nil {
		return nil, err
	}
	return svc.Pull(ctx, safeAddress, chainID)
}

// Push 将本地新提案与签名增量上传到远端
func (s *routedService) Push(ctx context.Context, safeAddress common.Address, chainID types.ChainID) (*Report, error) {
	svc, err := s.forChain(chainID)
	if err != nil {
		return nil, err
	}
	return svc.Push(ctx, safeAddress, chainID)
}

// Sync 先 Pull 后 Push
func (s *routedService) Sync(ctx context.Context, safeAddress common.Address, chainID types.ChainID) (*Report, error) {
	svc, err := s.forChain(chainID)
	if err != nil {
		return nil, err
	}
	return svc.Sync(ctx, safeAddress, chainID)
}

// SyncAll 并发同步多个 Safe（可跨链）
func (s *routedService) SyncAll(ctx context.Context, refs []SafeRef) []SafeResult {
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
