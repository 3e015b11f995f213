package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"portfolio/backend/internal/domain"
)

const defaultEmailJSEndpoint = "https://api.emailjs.com"

type emailJSRequest struct {
	ServiceID      string                    `json:"service_id"`
	TemplateID     string                    `json:"template_id"`
	UserID         string                    `json:"user_id"`
	AccessToken    string                    `json:"accessToken,omitempty"`
	TemplateParams *domain.SubmissionPayload `json:"template_params"`
}

// emailJS 调用 EmailJS 风格的 REST 接口，模板参数即载荷字段
type emailJS struct {
	endpoint    string
	serviceID   string
	templateID  string
	publicKey   string
	accessToken string
	client      *http.Client
}

func newEmailJS(cfg *Config) *emailJS {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEmailJSEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &emailJS{
		endpoint:    endpoint,
		serviceID:   cfg.ServiceID,
		templateID:  cfg.TemplateID,
		publicKey:   cfg.PublicKey,
		accessToken: cfg.AccessToken,
		client:      client,
	}
}

func (e *emailJS) send(ctx context.Context, p *domain.SubmissionPayload) error {
	body, err := json.Marshal(emailJSRequest{
		ServiceID:      e.serviceID,
		TemplateID:     e.templateID,
		UserID:         e.publicKey,
		AccessToken:    e.accessToken,
		TemplateParams: p,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/v1.0/email/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.NewTransportFailure("request timed out")
		}
		return domain.NewTransportFailure(err.Error())
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(raw))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		if mentionsEmptyRecipient(detail) {
			return recipientEmpty(detail)
		}
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return domain.NewRejected(resp.StatusCode, detail)
	default:
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return &domain.DispatchError{Kind: domain.ErrTransportFailure, Status: resp.StatusCode, Detail: detail}
	}
}
