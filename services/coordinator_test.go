package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safecoord/coordinator-sdk-go/types"
)

func TestNewCoordinatorRequiresStorePath(t *testing.T) {
	if _, err := NewCoordinator(&Config{}, nil, nil); err == nil {
		t.Fatal("expected error without store path")
	}
}

func TestNewCoordinatorAssemblesServices(t *testing.T) {
	cfg := &Config{
		StorePath: filepath.Join(t.TempDir(), "tx.json"),
		TxServiceURLs: map[types.ChainID]string{
			"1": "https://tx.example.org",
		},
		Chains: []ChainEntry{
			{ShortName: "devnet", ChainID: "31337"},
		},
		SyncConcurrency: 3,
	}

	coord, err := NewCoordinator(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}

	// 默认表 + 追加条目都可解析
	if id, ok := coord.Registry.ChainID("eth"); !ok || id != "1" {
		t.Errorf("eth → %q, want 1", id)
	}
	if id, ok := coord.Registry.ChainID("devnet"); !ok || id != "31337" {
		t.Errorf("devnet → %q, want 31337", id)
	}

	if coord.Syncer == nil {
		t.Error("syncer must be assembled when TxServiceURLs is set")
	}
	if len(coord.TxServices) != 1 {
		t.Errorf("TxServices = %d, want 1", len(coord.TxServices))
	}

	// 存储立即可用
	hash := common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa")
	_, err = coord.Safe.CreateTransaction(context.Background(), hash,
		common.HexToAddress("0x1111111111111111111111111111111111111111"), "1",
		types.TxMetadata{To: common.HexToAddress("0x2222222222222222222222222222222222222222")},
		common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	if err != nil {
		t.Fatalf("CreateTransaction through assembled stack failed: %v", err)
	}
	if _, err := coord.Store.Get(hash); err != nil {
		t.Fatalf("Get through assembled store failed: %v", err)
	}
}

func TestNewCoordinatorWithoutRemoteService(t *testing.T) {
	coord, err := NewCoordinator(&Config{
		StorePath: filepath.Join(t.TempDir(), "tx.json"),
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	if coord.Syncer != nil {
		t.Error("syncer must be nil without remote service URLs")
	}
}

func TestRoutedSyncRejectsUnconfiguredChain(t *testing.T) {
	coord, err := NewCoordinator(&Config{
		StorePath: filepath.Join(t.TempDir(), "tx.json"),
		TxServiceURLs: map[types.ChainID]string{
			"1": "https://tx.example.org",
		},
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}

	_, err = coord.Syncer.Pull(context.Background(),
		common.HexToAddress("0x1111111111111111111111111111111111111111"), "999")
	if !types.HasCode(err, types.ErrorCodeNetworkError) {
		t.Errorf("error = %v, want NetworkError for unconfigured chain", err)
	}
}
