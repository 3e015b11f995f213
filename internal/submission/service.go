// Package submission 编排联系表单的提交流程：校验、上传附件、构建载荷、发送。
//
// 每个表单实例对应一个 Session，同一时刻只允许一次提交在进行。
package submission

import (
	"go.uber.org/zap"

	"portfolio/backend/internal/attachment"
	"portfolio/backend/internal/mail"
	"portfolio/backend/internal/notify"
	"portfolio/backend/internal/payload"
	"portfolio/backend/internal/upload"
)

// Options 会话共享的依赖
type Options struct {
	Uploader           upload.Uploader
	Dispatcher         mail.Dispatcher
	Builder            *payload.Builder
	Notifier           *notify.Center
	Recorder           Recorder
	Logger             *zap.Logger
	MaxAttachmentBytes int64  // 附件总大小上限，0 使用默认值
	MaxPayloadBytes    int    // 载荷大小上限，0 使用默认值
	RecipientOverride  string // 固定收件人，可为空
}

// Service 创建会话并为其提供共享依赖
type Service struct {
	opts Options
}

// configurable 由可以报告凭据是否齐全的组件实现
type configurable interface {
	Configured() bool
}

// NewService 创建提交服务
func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Builder == nil {
		opts.Builder = payload.NewBuilder(nil, opts.Logger)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewCenter(0)
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.MaxAttachmentBytes <= 0 {
		opts.MaxAttachmentBytes = attachment.DefaultMaxTotalBytes
	}
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = payload.DefaultMaxBytes
	}
	return &Service{opts: opts}
}

// Notifier 返回提示中心
func (s *Service) Notifier() *notify.Center {
	return s.opts.Notifier
}

// MailConfigured 报告发送服务是否可用
func (s *Service) MailConfigured() bool {
	if s.opts.Dispatcher == nil {
		return false
	}
	if c, ok := s.opts.Dispatcher.(configurable); ok {
		return c.Configured()
	}
	return true
}

// UploadConfigured 报告上传服务是否可用
func (s *Service) UploadConfigured() bool {
	if s.opts.Uploader == nil {
		return false
	}
	if c, ok := s.opts.Uploader.(configurable); ok {
		return c.Configured()
	}
	return true
}

// MaxAttachmentBytes 返回附件总大小上限
func (s *Service) MaxAttachmentBytes() int64 {
	return s.opts.MaxAttachmentBytes
}

// MaxPayloadBytes 返回载荷大小上限
func (s *Service) MaxPayloadBytes() int {
	return s.opts.MaxPayloadBytes
}

// NewSession 创建一个空闲状态的会话
func (s *Service) NewSession(id string) *Session {
	return newSession(id, s)
}
