// Package attachment 维护联系表单当前选中的附件集合。
package attachment

import (
	"fmt"
	"sync"

	"portfolio/backend/internal/domain"
)

// DefaultMaxTotalBytes 附件总大小默认上限（10MB）
const DefaultMaxTotalBytes int64 = 10 * 1024 * 1024

// Selection 是附件集合的唯一数据源，并发安全。
//
// 每次 Select 都替换整个集合（与浏览器文件选择框一致），
// 超过上限时整批拒绝并清空之前的选择。
type Selection struct {
	mu       sync.RWMutex
	maxBytes int64
	files    []domain.Attachment
}

// NewSelection 创建附件集合，maxBytes <= 0 时使用默认上限
func NewSelection(maxBytes int64) *Selection {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxTotalBytes
	}
	return &Selection{maxBytes: maxBytes}
}

// Select 用新的文件列表替换当前选择
//
// 返回值:
//   - []domain.Attachment: 重新编号后的附件列表
//   - error: 总大小超过上限时返回 domain.ErrSizeExceeded，此时集合已被清空
func (s *Selection) Select(files []domain.Attachment) ([]domain.Attachment, error) {
	total := domain.TotalSize(files)

	s.mu.Lock()
	defer s.mu.Unlock()

	if total > s.maxBytes {
		s.files = nil
		return nil, fmt.Errorf("%w (%d bytes selected, limit %d)", domain.ErrSizeExceeded, total, s.maxBytes)
	}

	next := make([]domain.Attachment, len(files))
	copy(next, files)
	renumber(next)
	s.files = next

	return s.snapshot(), nil
}

// Remove 按位置删除一个附件，剩余附件重新编号
func (s *Selection) Remove(index int) ([]domain.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.files) {
		return nil, fmt.Errorf("%w: %d", domain.ErrAttachmentIndex, index)
	}

	next := make([]domain.Attachment, 0, len(s.files)-1)
	next = append(next, s.files[:index]...)
	next = append(next, s.files[index+1:]...)
	renumber(next)
	s.files = next

	return s.snapshot(), nil
}

// Clear 清空所有附件
func (s *Selection) Clear() {
	s.mu.Lock()
	s.files = nil
	s.mu.Unlock()
}

// Files 返回当前附件列表的副本
func (s *Selection) Files() []domain.Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// TotalBytes 返回当前附件总大小
func (s *Selection) TotalBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.TotalSize(s.files)
}

// Len 返回附件数量
func (s *Selection) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// MaxBytes 返回总大小上限
func (s *Selection) MaxBytes() int64 {
	return s.maxBytes
}

func (s *Selection) snapshot() []domain.Attachment {
	out := make([]domain.Attachment, len(s.files))
	copy(out, s.files)
	return out
}

func renumber(files []domain.Attachment) {
	for i := range files {
		files[i].Index = i
	}
}
