// Package notify 管理短暂显示的提示消息（toast），到期自动消失，不做持久化。
package notify

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL 提示消息默认显示时长
const DefaultTTL = 5 * time.Second

// Level 提示级别
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification 一条提示消息
type Notification struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Level     Level     `json:"level"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type entry struct {
	n     Notification
	timer *time.Timer
}

// Center 按会话保存提示消息，并发安全
type Center struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry // notification id -> entry
}

// NewCenter 创建提示中心，ttl <= 0 时使用默认时长
func NewCenter(ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Center{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// TTL 返回提示消息显示时长
func (c *Center) TTL() time.Duration {
	return c.ttl
}

// Push 新增一条提示，到期后自动移除
func (c *Center) Push(sessionID string, level Level, text string) Notification {
	now := c.now()
	n := Notification{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Level:     level,
		Text:      text,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{n: n}
	e.timer = time.AfterFunc(c.ttl, func() { c.Dismiss(n.ID) })
	c.entries[n.ID] = e
	return n
}

// Dismiss 立即移除一条提示，返回是否存在
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(c.entries, id)
	return true
}

// Get 返回指定提示
func (c *Center) Get(id string) (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return Notification{}, false
	}
	return e.n, true
}

// List 返回会话当前可见的提示，按创建时间排序
func (c *Center) List(sessionID string) []Notification {
	c.mu.Lock()
	out := make([]Notification, 0)
	for _, e := range c.entries {
		if e.n.SessionID == sessionID {
			out = append(out, e.n)
		}
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ClearSession 移除会话的所有提示
func (c *Center) ClearSession(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, e := range c.entries {
		if e.n.SessionID == sessionID {
			e.timer.Stop()
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}
