package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"

	"portfolio/backend/internal/config"
	"portfolio/backend/internal/domain"
)

// objectPutter 是 s3.Client 中上传用到的部分
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Provider 把附件写入 S3 兼容存储，返回 public_base 下的公开地址
type s3Provider struct {
	bucket     string
	publicBase string
	api        objectPutter
	now        func() time.Time
}

func newS3Provider(ctx context.Context, cfg config.S3Config) (*s3Provider, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &s3Provider{
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(cfg.PublicBase, "/"),
		api:        client,
		now:        time.Now,
	}, nil
}

func (p *s3Provider) put(ctx context.Context, file domain.Attachment, report func(sent, total int64)) (string, error) {
	rc, err := file.Handle.Open()
	if err != nil {
		return "", fmt.Errorf("open attachment: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return "", fmt.Errorf("read attachment: %w", err)
	}

	key := objectKey(p.now(), file.Name)
	total := int64(len(data))

	input := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          newProgressReader(bytes.NewReader(data), total, report),
		ContentLength: aws.Int64(total),
	}
	if file.ContentType != "" {
		input.ContentType = aws.String(file.ContentType)
	}

	if _, err := p.api.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return p.publicBase + "/" + key, nil
}

// objectKey 生成 uploads/<毫秒时间戳>-<文件名 slug><扩展名>
func objectKey(now time.Time, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	base := slug.Make(strings.TrimSuffix(name, filepath.Ext(name)))
	if base == "" {
		base = "file"
	}
	return fmt.Sprintf("uploads/%d-%s%s", now.UnixMilli(), base, ext)
}
