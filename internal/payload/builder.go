// Package payload 把表单字段和上传结果组装成邮件发送载荷。
package payload

import (
	"context"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"

	"portfolio/backend/internal/counter"
	"portfolio/backend/internal/domain"
)

// DefaultMaxBytes 发送载荷编码后大小默认上限（50KB）
const DefaultMaxBytes = 50 * 1024

const listSeparator = ", "

// Builder 组装 SubmissionPayload
type Builder struct {
	counter counter.Counter
	logger  *zap.Logger
}

// NewBuilder 创建载荷构建器，counter 可以为 nil（订单号留空）
func NewBuilder(c counter.Counter, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{counter: c, logger: logger}
}

// Build 组装发送载荷
//
// results 必须与 files 一一对应（数量相同且序号对齐），否则返回
// domain.ErrIncompleteUploads，不会基于部分结果构建载荷。
// 计数器失败只记录警告，订单号留空。
func (b *Builder) Build(
	ctx context.Context,
	form domain.FormFields,
	results []domain.UploadResult,
	files []domain.Attachment,
	recipientOverride string,
) (*domain.SubmissionPayload, error) {
	if err := checkAligned(results, files); err != nil {
		return nil, err
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	urls := make([]string, len(results))
	for i, r := range results {
		urls[i] = r.URL
	}

	return &domain.SubmissionPayload{
		SenderName:         form.Name,
		SenderEmail:        form.Email,
		MessageBody:        form.Message,
		RecipientOverride:  strings.TrimSpace(recipientOverride),
		AttachmentNames:    strings.Join(names, listSeparator),
		AttachmentURLs:     strings.Join(urls, listSeparator),
		AttachmentURLsHTML: LinksHTML(urls),
		OrderID:            b.nextOrderID(ctx),
	}, nil
}

func (b *Builder) nextOrderID(ctx context.Context) string {
	if b.counter == nil {
		return ""
	}
	n, err := b.counter.Next(ctx)
	if err != nil {
		b.logger.Warn("Order counter unavailable, sending without order id", zap.Error(err))
		return ""
	}
	return FormatOrderID(n)
}

func checkAligned(results []domain.UploadResult, files []domain.Attachment) error {
	if len(results) != len(files) {
		return fmt.Errorf("%w: %d results for %d attachments", domain.ErrIncompleteUploads, len(results), len(files))
	}
	for i, r := range results {
		if r.Index != i || r.URL == "" {
			return fmt.Errorf("%w: result %d is missing or out of order", domain.ErrIncompleteUploads, i)
		}
	}
	return nil
}

// FormatOrderID 把计数值格式化为 ORD-000042
func FormatOrderID(n int64) string {
	return fmt.Sprintf("ORD-%06d", n)
}

// LinksHTML 生成 <ul><li><a href="URL">URL</a></li>...</ul>，没有地址时返回空串
func LinksHTML(urls []string) string {
	if len(urls) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("<ul>")
	for _, u := range urls {
		escaped := html.EscapeString(u)
		sb.WriteString(`<li><a href="`)
		sb.WriteString(escaped)
		sb.WriteString(`">`)
		sb.WriteString(escaped)
		sb.WriteString("</a></li>")
	}
	sb.WriteString("</ul>")
	return sb.String()
}

// EstimateEncodedSize 估算载荷编码后的大小：所有字段 UTF-8 字节数之和
func EstimateEncodedSize(p *domain.SubmissionPayload) int {
	if p == nil {
		return 0
	}
	return len(p.SenderName) +
		len(p.SenderEmail) +
		len(p.MessageBody) +
		len(p.RecipientOverride) +
		len(p.AttachmentNames) +
		len(p.AttachmentURLs) +
		len(p.AttachmentURLsHTML) +
		len(p.OrderID)
}

// CheckSize 载荷超过 limit 字节时返回 domain.ErrPayloadTooLarge，limit <= 0 使用默认上限
func CheckSize(p *domain.SubmissionPayload, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if size := EstimateEncodedSize(p); size > limit {
		return fmt.Errorf("%w: %d bytes (limit %d)", domain.ErrPayloadTooLarge, size, limit)
	}
	return nil
}
