// Package session 管理表单会话的生命周期和访问令牌。
//
// 每个浏览器标签页对应一个会话，会话只保存在内存中，空闲超时后被清理。
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"portfolio/backend/internal/submission"
)

// ErrNotFound 会话不存在或已被清理
var ErrNotFound = errors.New("session not found")

// Registry 保存所有活跃会话，并发安全
type Registry struct {
	svc    *submission.Service
	tokens *TokenManager
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*submission.Session
}

// NewRegistry 创建会话注册表
func NewRegistry(svc *submission.Service, tokens *TokenManager, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		svc:      svc,
		tokens:   tokens,
		logger:   logger,
		sessions: make(map[string]*submission.Session),
	}
}

// Tokens 返回令牌管理器
func (r *Registry) Tokens() *TokenManager {
	return r.tokens
}

// Create 创建一个新会话并签发令牌
func (r *Registry) Create() (*submission.Session, string, error) {
	id := uuid.NewString()
	token, err := r.tokens.Issue(id)
	if err != nil {
		return nil, "", err
	}

	s := r.svc.NewSession(id)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Debug("Session created", zap.String("session", id))
	return s, token, nil
}

// Get 返回指定会话
func (r *Registry) Get(id string) (*submission.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete 关闭并移除会话
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

// Len 返回活跃会话数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Cleanup 移除空闲超过 idle 的会话，正在提交的会话不会被移除
func (r *Registry) Cleanup(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	var expired []*submission.Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.Status().Busy() || s.LastActive().After(cutoff) {
			continue
		}
		expired = append(expired, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		r.logger.Info("Idle sessions removed", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Close 关闭所有会话
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*submission.Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
