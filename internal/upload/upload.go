// Package upload 负责把附件并发上传到远程文件服务并返回公开地址。
package upload

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"portfolio/backend/internal/config"
	"portfolio/backend/internal/domain"
)

// Uploader 上传一批附件，返回与输入一一对应的公开地址
//
// 进度事件写入 progress（可为 nil）。任意一个附件失败时整批失败，
// 返回 domain.ErrUploadFailed 且不返回部分结果。
type Uploader interface {
	UploadAll(ctx context.Context, files []domain.Attachment, progress chan<- domain.Progress) ([]domain.UploadResult, error)
}

// Config 上传客户端配置，启动时构建一次后以指针传递
type Config struct {
	Provider   string // "cloudinary"（默认）或 "s3"
	CloudName  string
	Preset     string
	Endpoint   string
	Timeout    time.Duration // 单个文件的上传超时，0 表示不限制
	S3         config.S3Config
	HTTPClient *http.Client // 为空时使用默认客户端
}

// NewConfig 从系统配置构建上传配置
func NewConfig(u config.UploadConfig, s3 config.S3Config) *Config {
	return &Config{
		Provider:  u.Provider,
		CloudName: u.CloudName,
		Preset:    u.Preset,
		Endpoint:  u.Endpoint,
		Timeout:   u.Timeout,
		S3:        s3,
	}
}

// Configured 报告所选上传服务的凭据是否齐全
func (c *Config) Configured() bool {
	if c == nil {
		return false
	}
	return config.UploadConfig{Provider: c.Provider, CloudName: c.CloudName, Preset: c.Preset}.Configured(c.S3)
}

// provider 把单个附件传到远程服务，report 汇报已发送字节数
type provider interface {
	put(ctx context.Context, file domain.Attachment, report func(sent, total int64)) (string, error)
}

// Client 默认的 Uploader 实现，每个附件一个协程
type Client struct {
	provider provider
	timeout  time.Duration
	logger   *zap.Logger
}

// New 创建上传客户端
//
// 凭据缺失时不会返回错误，UploadAll 调用时才返回 domain.ErrConfigurationMissing，
// 且不发起任何网络请求。
func New(ctx context.Context, cfg *Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{logger: logger}
	if !cfg.Configured() {
		return c, nil
	}
	c.timeout = cfg.Timeout

	switch cfg.Provider {
	case "s3":
		p, err := newS3Provider(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("create s3 uploader: %w", err)
		}
		c.provider = p
	case "", "cloudinary":
		c.provider = newCloudinaryProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown upload provider: %q", cfg.Provider)
	}
	return c, nil
}

// Configured 报告上传服务是否可用
func (c *Client) Configured() bool {
	return c.provider != nil
}

// UploadAll 实现 Uploader
func (c *Client) UploadAll(ctx context.Context, files []domain.Attachment, progress chan<- domain.Progress) ([]domain.UploadResult, error) {
	if c.provider == nil {
		return nil, fmt.Errorf("%w: upload service credentials are not set", domain.ErrConfigurationMissing)
	}
	if len(files) == 0 {
		return []domain.UploadResult{}, nil
	}

	results := make([]domain.UploadResult, len(files))
	g, gctx := errgroup.WithContext(ctx)

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			url, err := c.uploadOne(gctx, i, file, progress)
			if err != nil {
				c.log().Warn("Attachment upload failed",
					zap.Int("index", i),
					zap.String("name", file.Name),
					zap.Error(err))
				return fmt.Errorf("%s: %w", file.Name, err)
			}
			results[i] = domain.UploadResult{Index: i, URL: url}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}

	c.log().Debug("Attachments uploaded", zap.Int("count", len(results)))
	return results, nil
}

func (c *Client) log() *zap.Logger {
	if c.logger == nil {
		return zap.NewNop()
	}
	return c.logger
}

func (c *Client) uploadOne(ctx context.Context, index int, file domain.Attachment, progress chan<- domain.Progress) (string, error) {
	if file.Handle == nil {
		return "", fmt.Errorf("attachment has no content")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	t := newTracker(ctx, index, progress)
	t.start()

	url, err := c.provider.put(ctx, file, t.report)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", fmt.Errorf("upload response has no url")
	}

	t.finish()
	return url, nil
}
