package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"portfolio/backend/internal/config"
	"portfolio/backend/internal/domain"
)

// smtpSender 通过 SMTP 投递，收件人为载荷中的覆盖地址或默认收件人
type smtpSender struct {
	cfg       config.SMTPConfig
	tlsConfig *tls.Config // 为空时按服务地址的主机名校验证书
	now       func() time.Time
}

func newSMTP(cfg config.SMTPConfig) *smtpSender {
	return &smtpSender{cfg: cfg, now: time.Now}
}

func (s *smtpSender) send(ctx context.Context, p *domain.SubmissionPayload) error {
	to := p.RecipientOverride
	if to == "" {
		to = s.cfg.DefaultRecipient
	}
	if to == "" {
		return recipientEmpty("no recipient override and no smtp default recipient configured")
	}

	msg, err := buildMessage(s.cfg.From, to, p, s.now())
	if err != nil {
		return fmt.Errorf("compose message: %w", err)
	}

	if err := s.deliver(ctx, to, msg); err != nil {
		return classifySMTPError(ctx, err)
	}
	return nil
}

func (s *smtpSender) deliver(ctx context.Context, to string, msg []byte) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	var c *gosmtp.Client
	if s.cfg.StartTLS {
		// 失败时 NewClientStartTLS 会关闭连接
		c, err = gosmtp.NewClientStartTLS(conn, s.startTLSConfig())
		if err != nil {
			return err
		}
	} else {
		c = gosmtp.NewClient(conn)
	}
	defer c.Close()

	if s.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)); err != nil {
			return err
		}
	}

	if err := c.SendMail(s.cfg.From, []string{to}, bytes.NewReader(msg)); err != nil {
		return err
	}

	// 消息已被接受，QUIT 失败不影响结果
	_ = c.Quit()
	return nil
}

func (s *smtpSender) startTLSConfig() *tls.Config {
	if s.tlsConfig != nil {
		return s.tlsConfig
	}
	host, _, _ := net.SplitHostPort(s.cfg.Addr)
	return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
}

// classifySMTPError 永久性错误（5xx）视为被拒绝，其余视为传输失败
func classifySMTPError(ctx context.Context, err error) error {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		if mentionsEmptyRecipient(smtpErr.Message) {
			return recipientEmpty(smtpErr.Message)
		}
		if smtpErr.Code >= 500 {
			return domain.NewRejected(smtpErr.Code, smtpErr.Message)
		}
		return &domain.DispatchError{Kind: domain.ErrTransportFailure, Status: smtpErr.Code, Detail: smtpErr.Message}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewTransportFailure("request timed out")
	}
	return domain.NewTransportFailure(err.Error())
}
