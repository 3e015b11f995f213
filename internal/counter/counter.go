// Package counter 提供订单号计数器的各种存储实现。
//
// 计数器只是尽力而为：任何后端不可用都不应让提交失败，
// 调用方在出错时记录警告并留空订单号。
package counter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Counter 读取、加一、持久化并返回新值
type Counter interface {
	Next(ctx context.Context) (int64, error)
}

// Pinger 由需要网络连接的后端实现，用于就绪检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// Memory 进程内计数器，重启后归零
type Memory struct {
	mu sync.Mutex
	n  int64
}

// NewMemory 创建从 start 开始计数的内存计数器
func NewMemory(start int64) *Memory {
	return &Memory{n: start}
}

// Next 实现 Counter
func (m *Memory) Next(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return m.n, nil
}

// File 把计数值保存在本地 JSON 文件中，格式为 {"<name>": n}
//
// 同一文件可以保存多个命名计数器。写入先落临时文件再原子替换。
type File struct {
	mu   sync.Mutex
	path string
	name string
}

// NewFile 创建文件计数器
func NewFile(path, name string) *File {
	return &File{path: path, name: name}
}

// Next 实现 Counter
func (f *File) Next(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return 0, err
	}

	values[f.name]++
	next := values[f.name]

	if err := f.store(values); err != nil {
		return 0, err
	}
	return next, nil
}

func (f *File) load() (map[string]int64, error) {
	values := map[string]int64{}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read counter file: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode counter file: %w", err)
	}
	return values, nil
}

func (f *File) store(values map[string]int64) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create counter dir: %w", err)
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".counter-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write counter file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace counter file: %w", err)
	}
	return nil
}
