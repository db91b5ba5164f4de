package services

import (
	"fmt"

	"github.com/safecoord/coordinator-sdk-go/client"
	"github.com/safecoord/coordinator-sdk-go/services/account"
	"github.com/safecoord/coordinator-sdk-go/services/safe"
	"github.com/safecoord/coordinator-sdk-go/services/store"
	"github.com/safecoord/coordinator-sdk-go/services/sync"
	"github.com/safecoord/coordinator-sdk-go/types"
)

// Coordinator 按配置装配好的整套服务
type Coordinator struct {
	// Registry 链注册表（默认表 + 配置追加的条目）
	Registry *account.Registry

	// Store 本地提案存储
	Store store.Service

	// Safe 协调服务入口
	Safe safe.Service

	// Syncer 双向同步服务；未配置远端交易服务地址时为 nil
	Syncer sync.Service

	// TxServices 各链的远端交易服务客户端（按 ChainID 索引）
	TxServices map[types.ChainID]client.TxService
}

// NewCoordinator 按配置装配整套服务
//
// gateway 必须由调用方创建（节点端点属于 client.Config 的职责范围）；
// clientConfig 仅用于远端交易服务的超时/重试，传 nil 使用默认值
func NewCoordinator(cfg *Config, gateway client.ChainGateway, clientConfig *client.Config) (*Coordinator, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.StorePath == "" {
		return nil, fmt.Errorf("store path is required")
	}

	registry := account.DefaultRegistry()
	for _, entry := range cfg.Chains {
		registry.Register(entry.ShortName, entry.ChainID)
	}

	txStore := store.NewFileStore(cfg.StorePath)

	var (
		syncer     sync.Service
		txServices map[types.ChainID]client.TxService
	)
	if len(cfg.TxServiceURLs) > 0 {
		txServices = make(map[types.ChainID]client.TxService, len(cfg.TxServiceURLs))
		for chainID, baseURL := range cfg.TxServiceURLs {
			txServices[chainID] = client.NewTxService(baseURL, clientConfig)
		}
		// 同步服务按链路由远端客户端
		syncer = sync.NewRoutedService(txStore, txServices, cfg.SyncConcurrency)
	}

	return &Coordinator{
		Registry:   registry,
		Store:      txStore,
		Safe:       safe.NewService(txStore, gateway, syncer),
		Syncer:     syncer,
		TxServices: txServices,
	}, nil
}
