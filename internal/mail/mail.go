// Package mail 把构建好的提交载荷交给邮件发送服务。
//
// 发送不做任何自动重试，每次重试都由用户重新提交触发。
package mail

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"portfolio/backend/internal/config"
	"portfolio/backend/internal/domain"
)

// DefaultTimeout 单次发送默认超时
const DefaultTimeout = 15 * time.Second

// Dispatcher 发送一条联系消息
//
// 返回的错误属于以下之一：domain.ErrConfigurationMissing、
// domain.ErrRecipientEmpty，或 Kind 为 ErrTransportFailure / ErrRejected 的 *domain.DispatchError。
type Dispatcher interface {
	Send(ctx context.Context, p *domain.SubmissionPayload) error
}

// Config 邮件发送配置
type Config struct {
	Provider    string // "emailjs"（默认）或 "smtp"
	ServiceID   string
	TemplateID  string
	PublicKey   string
	AccessToken string
	Endpoint    string
	Timeout     time.Duration
	SMTP        config.SMTPConfig
	HTTPClient  *http.Client // 为空时使用默认客户端
}

// NewConfig 从系统配置构建发送配置
func NewConfig(m config.MailConfig, smtp config.SMTPConfig) *Config {
	return &Config{
		Provider:    m.Provider,
		ServiceID:   m.ServiceID,
		TemplateID:  m.TemplateID,
		PublicKey:   m.PublicKey,
		AccessToken: m.AccessToken,
		Endpoint:    m.Endpoint,
		Timeout:     m.Timeout,
		SMTP:        smtp,
	}
}

// Configured 报告所选发送服务的凭据是否齐全
func (c *Config) Configured() bool {
	if c == nil {
		return false
	}
	return config.MailConfig{
		Provider:   c.Provider,
		ServiceID:  c.ServiceID,
		TemplateID: c.TemplateID,
		PublicKey:  c.PublicKey,
	}.Configured(c.SMTP)
}

// New 按配置创建发送器
//
// 凭据缺失时返回的发送器在 Send 时直接返回 domain.ErrConfigurationMissing。
func New(cfg *Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{logger: logger}
	if !cfg.Configured() {
		return c, nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.timeout = timeout

	switch cfg.Provider {
	case "", "emailjs":
		c.sender = newEmailJS(cfg)
	case "smtp":
		c.sender = newSMTP(cfg.SMTP)
	default:
		return nil, fmt.Errorf("unknown mail provider: %q", cfg.Provider)
	}
	return c, nil
}

// sender 由具体的发送服务实现
type sender interface {
	send(ctx context.Context, p *domain.SubmissionPayload) error
}

// Client 默认的 Dispatcher 实现
type Client struct {
	sender  sender
	timeout time.Duration
	logger  *zap.Logger
}

// Configured 报告发送服务是否可用
func (c *Client) Configured() bool {
	return c.sender != nil
}

// Send 实现 Dispatcher
func (c *Client) Send(ctx context.Context, p *domain.SubmissionPayload) error {
	if c.sender == nil {
		return fmt.Errorf("%w: email service credentials are not set", domain.ErrConfigurationMissing)
	}
	if p == nil {
		return fmt.Errorf("payload is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.sender.send(ctx, p)
	if err != nil {
		c.logger.Warn("Message dispatch failed",
			zap.String("order_id", p.OrderID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return err
	}

	c.logger.Info("Message dispatched",
		zap.String("order_id", p.OrderID),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// mentionsEmptyRecipient 判断服务端说明是否指向收件人为空
func mentionsEmptyRecipient(detail string) bool {
	d := strings.ToLower(detail)
	return strings.Contains(d, "recipient") && strings.Contains(d, "empty")
}

func recipientEmpty(detail string) error {
	if detail == "" {
		return domain.ErrRecipientEmpty
	}
	return fmt.Errorf("%w: %s", domain.ErrRecipientEmpty, detail)
}
