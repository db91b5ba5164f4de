package signing

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safecoord/coordinator-sdk-go/client"
	"github.com/safecoord/coordinator-sdk-go/types"
)

// Readiness 阈值判定结果
type Readiness struct {
	// Collected 有效签名数（仅统计当前实时 owner 的签名）
	Collected int
	// Required 链上实时阈值
	Required int
	// Ready 是否达到可执行条件
	Ready bool
}

// AddSignature 向记录插入或替换指定 signer 的签名（按 signer 幂等）
//
// 同一 signer 重复签名替换旧条目，不追加；新 signer 追加到末尾，
// 保持首次出现顺序。返回新记录，入参不被修改
func AddSignature(record *types.StoredTransaction, signer common.Address, sigBytes []byte, signedAt time.Time) *types.StoredTransaction {
	out := record.Clone()
	entry := types.Signature{
		Signer:   signer,
		Bytes:    append([]byte(nil), sigBytes...),
		SignedAt: signedAt,
	}
	for i, sig := range out.Signatures {
		if sig.Signer == signer {
			out.Signatures[i] = entry
			return out
		}
	}
	out.Signatures = append(out.Signatures, entry)
	return out
}

// ComputeReadiness 基于链上实时 owner/threshold 数据计算阈值判定
//
// **设计要点**：
// - 这是一个纯函数：liveOwners/liveThreshold 由调用方实时读取后传入，
//   不使用 SafeAccount 中可能过期的缓存值
// - 非实时 owner 的签名（已被移除的 owner、从未是 owner 的签名者）
//   一律不计入 Collected
func ComputeReadiness(record *types.StoredTransaction, liveOwners []common.Address, liveThreshold int) Readiness {
	ownerSet := make(map[common.Address]struct{}, len(liveOwners))
	for _, o := range liveOwners {
		ownerSet[o] = struct{}{}
	}

	collected := 0
	for _, sig := range record.Signatures {
		if _, ok := ownerSet[sig.Signer]; ok {
			collected++
		}
	}

	return Readiness{
		Collected: collected,
		Required:  liveThreshold,
		Ready:     collected >= liveThreshold && liveThreshold > 0,
	}
}

// ReadinessFromChain 通过链上网关实时读取 owner/threshold 后计算阈值判定
//
// 网关读取失败（NetworkError）原样返回，调用方不应改动本地状态
func ReadinessFromChain(ctx context.Context, gateway client.ChainGateway, record *types.StoredTransaction) (Readiness, []common.Address, error) {
	owners, err := gateway.GetOwners(ctx, record.SafeAddress)
	if err != nil {
		return Readiness{}, nil, err
	}
	threshold, err := gateway.GetThreshold(ctx, record.SafeAddress)
	if err != nil {
		return Readiness{}, nil, err
	}
	return ComputeReadiness(record, owners, threshold), owners, nil
}
