package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"portfolio/backend/internal/domain"
)

const defaultCloudinaryEndpoint = "https://api.cloudinary.com/v1_1"

// cloudinaryProvider 使用无签名 preset 上传到 Cloudinary 风格的接口
type cloudinaryProvider struct {
	endpoint  string
	cloudName string
	preset    string
	client    *http.Client
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newCloudinaryProvider(cfg *Config) *cloudinaryProvider {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultCloudinaryEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &cloudinaryProvider{
		endpoint:  endpoint,
		cloudName: cfg.CloudName,
		preset:    cfg.Preset,
		client:    client,
	}
}

func (p *cloudinaryProvider) uploadURL() string {
	return fmt.Sprintf("%s/%s/auto/upload", p.endpoint, url.PathEscape(p.cloudName))
}

func (p *cloudinaryProvider) put(ctx context.Context, file domain.Attachment, report func(sent, total int64)) (string, error) {
	body, contentType, err := p.buildBody(file)
	if err != nil {
		return "", err
	}

	total := int64(len(body))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uploadURL(),
		newProgressReader(bytes.NewReader(body), total, report))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out cloudinaryResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("status %d: %s", resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode response: %w", decodeErr)
	}
	if out.SecureURL == "" {
		return "", fmt.Errorf("response missing secure_url")
	}
	return out.SecureURL, nil
}

// buildBody 把附件编码为 multipart 请求体，整体缓存在内存中以便统计进度
func (p *cloudinaryProvider) buildBody(file domain.Attachment) ([]byte, string, error) {
	rc, err := file.Handle.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open attachment: %w", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("upload_preset", p.preset); err != nil {
		return nil, "", err
	}
	part, err := w.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, rc); err != nil {
		return nil, "", fmt.Errorf("read attachment: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
