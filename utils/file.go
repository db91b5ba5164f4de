package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// ReadFileOrEmpty 读取文件内容；文件不存在时返回空内容（不报错）
//
// **用途**：
// - 本地存储每次变更前重新读取磁盘最新状态（read-modify-write 纪律）
// - 首次使用时存储文件尚未创建，按空存储处理
func ReadFileOrEmpty(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read file failed: %w", err)
	}
	return data, nil
}

// WriteFileAtomic 原子写入文件
//
// **实现**：
// - 先写入同目录下的临时文件并 fsync
// - 再通过 rename 原子替换目标文件
// - 任何并发读取方观察到的要么是旧内容要么是新内容，不会出现半写状态
//
// **注意**：
// - 跨进程并发写入遵循 last-writer-wins 语义，由调用方的合并操作保证可交换性
func WriteFileAtomic(filePath string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir failed: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(filePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file failed: %w", err)
	}
	tmpName := tmp.Name()

	// 写失败时清理临时文件
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file failed: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file failed: %w", err)
	}

	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file failed: %w", err)
	}
	return nil
}
