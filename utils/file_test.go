package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestReadFileOrEmpty(t *testing.T) {
	dir := t.TempDir()

	// 不存在的文件按空内容处理
	data, err := ReadFileOrEmpty(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("ReadFileOrEmpty failed: %v", err)
	}
	if data != nil {
		t.Errorf("data = %q, want nil", data)
	}

	path := filepath.Join(dir, "present.json")
	if err := os.WriteFile(path, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err = ReadFileOrEmpty(path)
	if err != nil {
		t.Fatalf("ReadFileOrEmpty failed: %v", err)
	}
	if !bytes.Equal(data, []byte(`{"a":1}`)) {
		t.Errorf("data = %q", data)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "store.json")

	if err := WriteFileAtomic(path, []byte("v1"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("v2"), 0o600); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "v2" {
		t.Errorf("content = %q, want v2", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	// 临时文件不得残留
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1 (no leftover temp files)", len(entries))
	}
}
