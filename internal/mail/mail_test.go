package mail

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"net/http/httptest"
	netmail "net/mail"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/backend/internal/config"
	"portfolio/backend/internal/domain"
)

func samplePayload() *domain.SubmissionPayload {
	return &domain.SubmissionPayload{
		SenderName:         "Ann",
		SenderEmail:        "ann@example.com",
		MessageBody:        "I love the blue series.",
		AttachmentNames:    "a.jpg",
		AttachmentURLs:     "https://cdn.example.com/a.jpg",
		AttachmentURLsHTML: `<ul><li><a href="https://cdn.example.com/a.jpg">https://cdn.example.com/a.jpg</a></li></ul>`,
		OrderID:            "ORD-000042",
	}
}

func emailJSConfig(endpoint string) *Config {
	return &Config{
		Provider:   "emailjs",
		ServiceID:  "service_x",
		TemplateID: "template_y",
		PublicKey:  "public_z",
		Endpoint:   endpoint,
		Timeout:    2 * time.Second,
	}
}

func TestEmailJS_Send(t *testing.T) {
	t.Run("成功发送并携带全部模板参数", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1.0/email/send", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte("OK"))
		}))
		defer srv.Close()

		c, err := New(emailJSConfig(srv.URL), nil)
		require.NoError(t, err)

		require.NoError(t, c.Send(context.Background(), samplePayload()))

		assert.Equal(t, "service_x", got["service_id"])
		assert.Equal(t, "template_y", got["template_id"])
		assert.Equal(t, "public_z", got["user_id"])
		assert.NotContains(t, got, "accessToken")

		params := got["template_params"].(map[string]any)
		assert.Equal(t, "Ann", params["from_name"])
		assert.Equal(t, "ann@example.com", params["reply_to"])
		assert.Equal(t, "I love the blue series.", params["message"])
		assert.Equal(t, "a.jpg", params["attachment_names"])
		assert.Equal(t, "https://cdn.example.com/a.jpg", params["file_urls"])
		assert.Equal(t, "ORD-000042", params["order_id"])
		assert.NotContains(t, params, "to_email")
	})

	t.Run("收件人覆盖地址写入to_email", func(t *testing.T) {
		var got struct {
			AccessToken    string            `json:"accessToken"`
			TemplateParams map[string]string `json:"template_params"`
		}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		}))
		defer srv.Close()

		cfg := emailJSConfig(srv.URL)
		cfg.AccessToken = "private"
		c, err := New(cfg, nil)
		require.NoError(t, err)

		p := samplePayload()
		p.RecipientOverride = "studio@example.com"
		require.NoError(t, c.Send(context.Background(), p))

		assert.Equal(t, "private", got.AccessToken)
		assert.Equal(t, "studio@example.com", got.TemplateParams["to_email"])
	})

	tests := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"收件人为空", http.StatusUnprocessableEntity, "The recipients address is empty", domain.ErrRecipientEmpty},
		{"模板错误被拒绝", http.StatusBadRequest, "The template ID is invalid", domain.ErrRejected},
		{"额度用尽被拒绝", http.StatusTooManyRequests, "", domain.ErrRejected},
		{"服务端错误", http.StatusBadGateway, "upstream down", domain.ErrTransportFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := New(emailJSConfig(srv.URL), nil)
			require.NoError(t, err)

			err = c.Send(context.Background(), samplePayload())

			assert.ErrorIs(t, err, tt.kind)
			if tt.body != "" {
				assert.Contains(t, err.Error(), tt.body)
			}
		})
	}

	t.Run("超时视为传输失败", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		cfg := emailJSConfig(srv.URL)
		cfg.Timeout = 50 * time.Millisecond
		c, err := New(cfg, nil)
		require.NoError(t, err)

		err = c.Send(context.Background(), samplePayload())

		assert.ErrorIs(t, err, domain.ErrTransportFailure)
		assert.Contains(t, err.Error(), "timed out")
	})

	t.Run("连接失败视为传输失败", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		endpoint := srv.URL
		srv.Close()

		c, err := New(emailJSConfig(endpoint), nil)
		require.NoError(t, err)

		err = c.Send(context.Background(), samplePayload())

		assert.ErrorIs(t, err, domain.ErrTransportFailure)
	})
}

func TestClient_NotConfigured(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c, err := New(&Config{Endpoint: srv.URL, ServiceID: "only-this"}, nil)
	require.NoError(t, err)

	assert.False(t, c.Configured())
	assert.ErrorIs(t, c.Send(context.Background(), samplePayload()), domain.ErrConfigurationMissing)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(&Config{Provider: "pigeon", ServiceID: "a", TemplateID: "b", PublicKey: "c"}, nil)
	assert.Error(t, err)
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(
		config.MailConfig{Provider: "smtp", Timeout: time.Second},
		config.SMTPConfig{Addr: "localhost:25", From: "site@example.com"},
	)
	assert.True(t, cfg.Configured())

	var nilCfg *Config
	assert.False(t, nilCfg.Configured())
}

// ---- SMTP ----

type receivedMail struct {
	from string
	to   []string
	data []byte
	tls  bool
}

type testBackend struct {
	mu       sync.Mutex
	messages []receivedMail
	rcptErr  error
	sessions int32
}

func (b *testBackend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	atomic.AddInt32(&b.sessions, 1)
	return &testSession{backend: b, conn: c}, nil
}

type testSession struct {
	backend *testBackend
	conn    *gosmtp.Conn
	current receivedMail
}

func (s *testSession) Mail(from string, opts *gosmtp.MailOptions) error {
	s.current.from = from
	_, s.current.tls = s.conn.TLSConnectionState()
	return nil
}

func (s *testSession) Rcpt(to string, opts *gosmtp.RcptOptions) error {
	if s.backend.rcptErr != nil {
		return s.backend.rcptErr
	}
	s.current.to = append(s.current.to, to)
	return nil
}

func (s *testSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.current.data = data
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, s.current)
	s.backend.mu.Unlock()
	return nil
}

func (s *testSession) Reset() {
	s.current = receivedMail{}
}

func (s *testSession) Logout() error {
	return nil
}

func startSMTPServer(t *testing.T, be *testBackend) string {
	t.Helper()
	return startSMTPServerTLS(t, be, nil)
}

// startSMTPServerTLS 启动测试服务器，tlsConfig 非空时支持 STARTTLS
func startSMTPServerTLS(t *testing.T, be *testBackend, tlsConfig *tls.Config) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := gosmtp.NewServer(be)
	s.TLSConfig = tlsConfig
	s.Domain = "localhost"
	s.AllowInsecureAuth = true
	s.ReadTimeout = 5 * time.Second
	s.WriteTimeout = 5 * time.Second

	go func() { _ = s.Serve(l) }()
	t.Cleanup(func() { _ = s.Close() })

	return l.Addr().String()
}

func smtpConfig(addr string) *Config {
	return &Config{
		Provider: "smtp",
		Timeout:  5 * time.Second,
		SMTP: config.SMTPConfig{
			Addr:             addr,
			From:             "site@example.com",
			DefaultRecipient: "studio@example.com",
		},
	}
}

func TestSMTP_Send(t *testing.T) {
	t.Run("投递到默认收件人", func(t *testing.T) {
		be := &testBackend{}
		addr := startSMTPServer(t, be)

		c, err := New(smtpConfig(addr), nil)
		require.NoError(t, err)

		require.NoError(t, c.Send(context.Background(), samplePayload()))

		be.mu.Lock()
		defer be.mu.Unlock()
		require.Len(t, be.messages, 1)
		got := be.messages[0]
		assert.Equal(t, "site@example.com", got.from)
		assert.Equal(t, []string{"studio@example.com"}, got.to)

		msg, err := netmail.ReadMessage(strings.NewReader(string(got.data)))
		require.NoError(t, err)
		assert.Equal(t, "ann@example.com", msg.Header.Get("Reply-To"))

		subj, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
		require.NoError(t, err)
		assert.Equal(t, "New contact message from Ann (ORD-000042)", subj)

		mediaType, _, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/alternative", mediaType)

		body, err := io.ReadAll(msg.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "I love the blue series.")
	})

	t.Run("覆盖地址优先", func(t *testing.T) {
		be := &testBackend{}
		addr := startSMTPServer(t, be)

		c, err := New(smtpConfig(addr), nil)
		require.NoError(t, err)

		p := samplePayload()
		p.RecipientOverride = "owner@example.com"
		require.NoError(t, c.Send(context.Background(), p))

		be.mu.Lock()
		defer be.mu.Unlock()
		assert.Equal(t, []string{"owner@example.com"}, be.messages[0].to)
	})

	t.Run("没有收件人时不建立连接", func(t *testing.T) {
		be := &testBackend{}
		addr := startSMTPServer(t, be)

		cfg := smtpConfig(addr)
		cfg.SMTP.DefaultRecipient = ""
		c, err := New(cfg, nil)
		require.NoError(t, err)

		err = c.Send(context.Background(), samplePayload())

		assert.ErrorIs(t, err, domain.ErrRecipientEmpty)
		assert.Equal(t, int32(0), atomic.LoadInt32(&be.sessions))
	})

	t.Run("永久性错误视为被拒绝", func(t *testing.T) {
		be := &testBackend{rcptErr: &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "mailbox unavailable",
		}}
		addr := startSMTPServer(t, be)

		c, err := New(smtpConfig(addr), nil)
		require.NoError(t, err)

		err = c.Send(context.Background(), samplePayload())

		assert.ErrorIs(t, err, domain.ErrRejected)
		var de *domain.DispatchError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, 550, de.Status)
		assert.Contains(t, de.Detail, "mailbox unavailable")
	})

	t.Run("临时性错误视为传输失败", func(t *testing.T) {
		be := &testBackend{rcptErr: &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "try again later",
		}}
		addr := startSMTPServer(t, be)

		c, err := New(smtpConfig(addr), nil)
		require.NoError(t, err)

		err = c.Send(context.Background(), samplePayload())

		assert.ErrorIs(t, err, domain.ErrTransportFailure)
	})

	t.Run("服务不可达视为传输失败", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := l.Addr().String()
		l.Close()

		c, err := New(smtpConfig(addr), nil)
		require.NoError(t, err)

		err = c.Send(context.Background(), samplePayload())

		assert.ErrorIs(t, err, domain.ErrTransportFailure)
	})
}

func TestBuildMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := samplePayload()
	p.SenderName = "Zoë"
	p.MessageBody = "line one\nline <two>"

	raw, err := buildMessage("site@example.com", "studio@example.com", p, now)
	require.NoError(t, err)

	msg, err := netmail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	assert.Equal(t, "studio@example.com", msg.Header.Get("To"))
	assert.Equal(t, now.Format(time.RFC1123Z), msg.Header.Get("Date"))
	assert.True(t, strings.HasPrefix(msg.Header.Get("Message-ID"), "<"))

	subj, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "New contact message from Zoë (ORD-000042)", subj)

	assert.Contains(t, htmlBody(p), "line one<br>line &lt;two&gt;")
	assert.Contains(t, htmlBody(p), p.AttachmentURLsHTML)
	assert.Contains(t, plainBody(p), "Attachments: a.jpg")
}

func TestMentionsEmptyRecipient(t *testing.T) {
	assert.True(t, mentionsEmptyRecipient("The recipients address is empty"))
	assert.True(t, mentionsEmptyRecipient("RECIPIENT list EMPTY"))
	assert.False(t, mentionsEmptyRecipient("The template ID is invalid"))
}

func TestSMTP_StartTLS(t *testing.T) {
	// 借用 httptest 的自签名证书，签发给 127.0.0.1
	certSrv := httptest.NewTLSServer(http.NotFoundHandler())
	t.Cleanup(certSrv.Close)
	pool := x509.NewCertPool()
	pool.AddCert(certSrv.Certificate())

	newClient := func(t *testing.T, addr string) *Client {
		cfg := smtpConfig(addr)
		cfg.SMTP.StartTLS = true
		c, err := New(cfg, nil)
		require.NoError(t, err)
		c.sender.(*smtpSender).tlsConfig = &tls.Config{ServerName: "127.0.0.1", RootCAs: pool}
		return c
	}

	t.Run("升级为加密连接后投递", func(t *testing.T) {
		be := &testBackend{}
		addr := startSMTPServerTLS(t, be, &tls.Config{Certificates: certSrv.TLS.Certificates})

		require.NoError(t, newClient(t, addr).Send(context.Background(), samplePayload()))

		be.mu.Lock()
		defer be.mu.Unlock()
		require.Len(t, be.messages, 1)
		assert.True(t, be.messages[0].tls)
	})

	t.Run("服务器不支持 STARTTLS", func(t *testing.T) {
		be := &testBackend{}
		addr := startSMTPServer(t, be)

		err := newClient(t, addr).Send(context.Background(), samplePayload())

		require.ErrorIs(t, err, domain.ErrTransportFailure)
		assert.ErrorContains(t, err, "STARTTLS")
		assert.Empty(t, be.messages)
	})

	t.Run("未开启时使用明文连接", func(t *testing.T) {
		be := &testBackend{}
		addr := startSMTPServerTLS(t, be, &tls.Config{Certificates: certSrv.TLS.Certificates})

		c, err := New(smtpConfig(addr), nil)
		require.NoError(t, err)
		require.NoError(t, c.Send(context.Background(), samplePayload()))

		be.mu.Lock()
		defer be.mu.Unlock()
		require.Len(t, be.messages, 1)
		assert.False(t, be.messages[0].tls)
	})
}
