package utils

import (
	"context"
	"sync"
)

// BatchConfig 批量操作配置
type BatchConfig struct {
	// Concurrency 并发数量
	Concurrency int
	// OnProgress 进度回调函数
	OnProgress func(progress BatchProgress)
}

// BatchProgress 批量操作进度
type BatchProgress struct {
	// Completed 已完成数量
	Completed int
	// Total 总数量
	Total int
	// Success 成功数量
	Success int
	// Failed 失败数量
	Failed int
}

// DefaultBatchConfig 返回默认批量配置
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		Concurrency: 5,
		OnProgress:  nil,
	}
}

// BatchResult 批量操作结果
type BatchResult[R any] struct {
	// Results 各项结果（与输入同序；失败项为零值）
	Results []R
	// Errors 各项错误（与输入同序；成功项为 nil）
	Errors []error
	// Total 总数量
	Total int
	// Success 成功数量
	Success int
	// Failed 失败数量
	Failed int
}

// BatchRun 并发执行一组独立任务
//
// 对每个输入项并发调用 fn，单项失败只记录在对应位置，不影响其他项
// （partial-failure isolation）。所有任务 join 完成后才返回。
//
// 示例：
//
//	safes := []SafeRef{s1, s2, s3}
//	result := BatchRun(ctx, safes, func(ctx context.Context, s SafeRef, index int) (*SyncReport, error) {
//	    return syncer.Pull(ctx, s.Address, s.ChainID)
//	}, DefaultBatchConfig())
func BatchRun[T any, R any](
	ctx context.Context,
	items []T,
	fn func(ctx context.Context, item T, index int) (R, error),
	config *BatchConfig,
) *BatchResult[R] {
	if config == nil {
		config = DefaultBatchConfig()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultBatchConfig().Concurrency
	}

	result := &BatchResult[R]{
		Results: make([]R, len(items)),
		Errors:  make([]error, len(items)),
		Total:   len(items),
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, config.Concurrency)

	var progressMu sync.Mutex
	completed := 0

	updateProgress := func(failed bool) {
		progressMu.Lock()
		defer progressMu.Unlock()
		completed++
		if failed {
			result.Failed++
		} else {
			result.Success++
		}
		if config.OnProgress != nil {
			config.OnProgress(BatchProgress{
				Completed: completed,
				Total:     len(items),
				Success:   result.Success,
				Failed:    result.Failed,
			})
		}
	}

	for i, item := range items {
		wg.Add(1)
		go func(index int, it T) {
			defer wg.Done()

			// 获取信号量
			sem <- struct{}{}
			defer func() { <-sem }()

			// 检查上下文是否已取消
			select {
			case <-ctx.Done():
				result.Errors[index] = ctx.Err()
				updateProgress(true)
				return
			default:
			}

			r, err := fn(ctx, it, index)
			if err != nil {
				result.Errors[index] = err
				updateProgress(true)
				return
			}
			result.Results[index] = r
			updateProgress(false)
		}(i, item)
	}

	wg.Wait()
	return result
}
