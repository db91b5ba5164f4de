package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safecoord/coordinator-sdk-go/types"
	"github.com/safecoord/coordinator-sdk-go/utils"
)

// Filter 列表查询过滤器
type Filter struct {
	// SafeAddress 按 Safe 地址过滤（可选）
	SafeAddress *common.Address
	// ChainID 按链过滤（可选）
	ChainID *types.ChainID
	// Statuses 按状态集合过滤（可选，空表示全部）
	Statuses []types.Status
}

// Service 提案记录存储接口
type Service interface {
	// Create 新建提案记录（status=pending，签名集合为空）
	Create(hash common.Hash, safeAddress common.Address, chainID types.ChainID, metadata types.TxMetadata, proposer common.Address) (*types.StoredTransaction, error)

	// Get 按 safeTxHash 查询记录
	Get(hash common.Hash) (*types.StoredTransaction, error)

	// List 按过滤器列出记录（按创建时间排序）
	List(filter *Filter) ([]*types.StoredTransaction, error)

	// UpdateStatus 按状态机迁移记录状态
	// newStatus=executed 时记录 onChainTxID 与执行时间
	UpdateStatus(hash common.Hash, newStatus types.Status, onChainTxID string) (*types.StoredTransaction, error)

	// Put 整体写回记录（用于签名合并等增量写入；hash 必须已赋值）
	Put(record *types.StoredTransaction) error
}

// storeFile 磁盘存储结构（整体读写）
type storeFile struct {
	Version      int                                  `json:"version"`
	Transactions map[string]*types.StoredTransaction `json:"transactions"`
}

// fileStore 磁盘文件存储实现
//
// **变更纪律**：
// 每次变更都重新读取磁盘最新状态 → 应用变更 → 整体原子写回。
// 跨进程并发写入为 last-writer-wins；签名合并操作对不同 signer 可交换且幂等
type fileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore 创建磁盘文件存储
func NewFileStore(path string) Service {
	return &fileStore{
		path: path,
		now:  time.Now,
	}
}

// NewFileStoreWithClock 创建可注入时钟的存储（测试用）
func NewFileStoreWithClock(path string, now func() time.Time) Service {
	return &fileStore{path: path, now: now}
}

// load 读取磁盘最新状态；文件不存在按空存储处理
func (s *fileStore) load() (*storeFile, error) {
	data, err := utils.ReadFileOrEmpty(s.path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &storeFile{
			Version:      1,
			Transactions: make(map[string]*types.StoredTransaction),
		}, nil
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse store file failed: %w", err)
	}
	if f.Transactions == nil {
		f.Transactions = make(map[string]*types.StoredTransaction)
	}
	return &f, nil
}

// save 整体原子写回
func (s *fileStore) save(f *storeFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store file failed: %w", err)
	}
	return utils.WriteFileAtomic(s.path, data, 0o600)
}

// Create 新建提案记录
func (s *fileStore) Create(hash common.Hash, safeAddress common.Address, chainID types.ChainID, metadata types.TxMetadata, proposer common.Address) (*types.StoredTransaction, error) {
	f, err := s.load()
	if err != nil {
		return nil, err
	}

	key := hash.Hex()
	if _, exists := f.Transactions[key]; exists {
		return nil, types.ErrAlreadyExists(key)
	}

	record := &types.StoredTransaction{
		SafeTxHash:  hash,
		SafeAddress: safeAddress,
		ChainID:     chainID,
		Metadata:    metadata,
		Status:      types.StatusPending,
		Signatures:  []types.Signature{},
		Proposer:    proposer,
		CreatedAt:   s.now().UTC(),
	}
	f.Transactions[key] = record

	if err := s.save(f); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// Get 按 safeTxHash 查询记录
func (s *fileStore) Get(hash common.Hash) (*types.StoredTransaction, error) {
	f, err := s.load()
	if err != nil {
		return nil, err
	}
	record, exists := f.Transactions[hash.Hex()]
	if !exists {
		return nil, types.ErrNotFound(hash.Hex())
	}
	return record.Clone(), nil
}

// List 按过滤器列出记录，按创建时间升序（时间相同按 hash 保证稳定顺序）
func (s *fileStore) List(filter *Filter) ([]*types.StoredTransaction, error) {
	f, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make([]*types.StoredTransaction, 0, len(f.Transactions))
	for _, record := range f.Transactions {
		if filter != nil && !matches(record, filter) {
			continue
		}
		out = append(out, record.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].SafeTxHash.Hex() < out[j].SafeTxHash.Hex()
	})
	return out, nil
}

// matches 判断记录是否满足过滤条件
func matches(record *types.StoredTransaction, filter *Filter) bool {
	if filter.SafeAddress != nil && record.SafeAddress != *filter.SafeAddress {
		return false
	}
	if filter.ChainID != nil && record.ChainID != *filter.ChainID {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, st := range filter.Statuses {
			if record.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// UpdateStatus 按状态机迁移记录状态
func (s *fileStore) UpdateStatus(hash common.Hash, newStatus types.Status, onChainTxID string) (*types.StoredTransaction, error) {
	f, err := s.load()
	if err != nil {
		return nil, err
	}

	key := hash.Hex()
	record, exists := f.Transactions[key]
	if !exists {
		return nil, types.ErrNotFound(key)
	}

	if !record.Status.CanTransitionTo(newStatus) {
		return nil, types.ErrInvalidTransition(record.Status, newStatus)
	}

	record.Status = newStatus
	if newStatus == types.StatusExecuted {
		at := s.now().UTC()
		record.ExecutedAt = &at
		record.OnChainTxID = onChainTxID
	}

	if err := s.save(f); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// Put 整体写回记录（upsert）
//
// hash 为记录主键且不可变；已有记录被整体替换，调用方负责保证
// 合并语义（签名只增不减）
func (s *fileStore) Put(record *types.StoredTransaction) error {
	if record == nil || record.SafeTxHash == (common.Hash{}) {
		return fmt.Errorf("record with unset safeTxHash")
	}

	f, err := s.load()
	if err != nil {
		return err
	}
	f.Transactions[record.SafeTxHash.Hex()] = record.Clone()
	return s.save(f)
}
