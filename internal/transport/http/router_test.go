package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/backend/internal/config"
	"portfolio/backend/internal/counter"
	"portfolio/backend/internal/domain"
	"portfolio/backend/internal/middleware"
	"portfolio/backend/internal/monitoring"
	"portfolio/backend/internal/notify"
	"portfolio/backend/internal/payload"
	"portfolio/backend/internal/session"
	"portfolio/backend/internal/submission"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeUploader 为每个附件返回固定地址
type fakeUploader struct{}

func (fakeUploader) UploadAll(_ context.Context, files []domain.Attachment, progress chan<- domain.Progress) ([]domain.UploadResult, error) {
	results := make([]domain.UploadResult, len(files))
	for i := range files {
		progress <- domain.Progress{Index: i, Percent: 100}
		results[i] = domain.UploadResult{Index: i, URL: "https://cdn.example.com/" + files[i].Name}
	}
	return results, nil
}

// fakeDispatcher 记录发送的载荷，err 非空时返回该错误
type fakeDispatcher struct {
	mu   sync.Mutex
	sent []*domain.SubmissionPayload
	err  error
}

func (d *fakeDispatcher) Send(_ context.Context, p *domain.SubmissionPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, p)
	return nil
}

type testServer struct {
	router   *gin.Engine
	registry *session.Registry
	mailer   *fakeDispatcher
}

func newTestServer(t *testing.T, limiter *middleware.IPRateLimiter) *testServer {
	t.Helper()

	mailer := &fakeDispatcher{}
	svc := submission.NewService(submission.Options{
		Uploader:           fakeUploader{},
		Dispatcher:         mailer,
		Builder:            payload.NewBuilder(counter.NewMemory(0), nil),
		Notifier:           notify.NewCenter(time.Minute),
		MaxAttachmentBytes: 1024,
	})
	tokens := session.NewTokenManager(strings.Repeat("k", 32), "portfolio-test", time.Hour)
	registry := session.NewRegistry(svc, tokens, nil)
	t.Cleanup(registry.Close)

	cfg := &config.Config{}
	cfg.CORS.AllowedOrigins = []string{"https://portfolio.example.com"}

	metrics := monitoring.NewMetrics()
	router := NewRouter(RouterDependencies{
		Config:   cfg,
		Registry: registry,
		Service:  svc,
		Metrics:  metrics,
		Report:   monitoring.NewHealthChecker(monitoring.HealthDeps{}, metrics, nil, "test"),
		Limiter:  limiter,
	})
	return &testServer{router: router, registry: registry, mailer: mailer}
}

func (ts *testServer) do(method, path, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("X-Session-Token", token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createSession(t *testing.T) (string, string) {
	t.Helper()

	rec := ts.do(http.MethodPost, "/v1/sessions", "", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data createSessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.ID)
	require.NotEmpty(t, resp.Data.Token)
	assert.Equal(t, int64(3600), resp.Data.ExpiresIn)
	return resp.Data.ID, resp.Data.Token
}

func multipartBody(t *testing.T, files map[string][]byte) ([]byte, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

var submitBody = []byte(`{"name":"Ann","email":"ann@example.com","message":"Hello there"}`)

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	id, token := ts.createSession(t)
	base := "/v1/sessions/" + id

	t.Run("缺少令牌", func(t *testing.T) {
		rec := ts.do(http.MethodGet, base, "", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("获取快照", func(t *testing.T) {
		rec := ts.do(http.MethodGet, base, token, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data submission.Snapshot `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, id, resp.Data.ID)
		assert.Equal(t, domain.StatusIdle, resp.Data.Status)
		assert.Equal(t, int64(1024), resp.Data.MaxBytes)
	})

	t.Run("选择附件并提交", func(t *testing.T) {
		body, ct := multipartBody(t, map[string][]byte{"a.png": bytes.Repeat([]byte("a"), 100)})
		rec := ts.do(http.MethodPut, base+"/attachments", token, body, ct)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = ts.do(http.MethodPost, base+"/submit", token, submitBody, "application/json")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode(t, rec)
		assert.Equal(t, MsgMessageSent, resp.Msg)

		require.Len(t, ts.mailer.sent, 1)
		p := ts.mailer.sent[0]
		assert.Equal(t, "ORD-000001", p.OrderID)
		assert.Equal(t, "a.png", p.AttachmentNames)
		assert.Equal(t, "https://cdn.example.com/a.png", p.AttachmentURLs)
	})

	t.Run("提示列表", func(t *testing.T) {
		rec := ts.do(http.MethodGet, base+"/notifications", token, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data []notify.Notification `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Data)
		last := resp.Data[len(resp.Data)-1]
		assert.Contains(t, last.Text, "ORD-000001")

		rec = ts.do(http.MethodDelete, base+"/notifications/"+last.ID, token, nil, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = ts.do(http.MethodDelete, base+"/notifications/"+last.ID, token, nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("删除会话", func(t *testing.T) {
		rec := ts.do(http.MethodDelete, base, token, nil, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = ts.do(http.MethodGet, base, token, nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, 0, ts.registry.Len())
	})
}

func TestAttachmentEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	id, token := ts.createSession(t)
	base := "/v1/sessions/" + id

	t.Run("超出总大小", func(t *testing.T) {
		body, ct := multipartBody(t, map[string][]byte{"big.png": bytes.Repeat([]byte("b"), 2048)})
		rec := ts.do(http.MethodPut, base+"/attachments", token, body, ct)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

		s, err := ts.registry.Get(id)
		require.NoError(t, err)
		snap := s.Snapshot()
		assert.Empty(t, snap.Files)
		assert.NotEmpty(t, snap.InlineError)
	})

	t.Run("请求体超过接口上限时清空已有选择", func(t *testing.T) {
		body, ct := multipartBody(t, map[string][]byte{"a.png": []byte("aa")})
		rec := ts.do(http.MethodPut, base+"/attachments", token, body, ct)
		require.Equal(t, http.StatusOK, rec.Code)

		limit := middleware.AttachmentBodyLimit(1024)
		body, ct = multipartBody(t, map[string][]byte{"huge.tif": bytes.Repeat([]byte("h"), int(limit)+1)})
		rec = ts.do(http.MethodPut, base+"/attachments", token, body, ct)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, domain.UserMessage(domain.ErrSizeExceeded), decode(t, rec).Msg)

		s, err := ts.registry.Get(id)
		require.NoError(t, err)
		snap := s.Snapshot()
		assert.Empty(t, snap.Files)
		assert.NotEmpty(t, snap.InlineError)
		assert.NotEmpty(t, snap.Notifications)
	})

	t.Run("没有文件", func(t *testing.T) {
		body, ct := multipartBody(t, nil)
		rec := ts.do(http.MethodPut, base+"/attachments", token, body, ct)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("删除与清空", func(t *testing.T) {
		body, ct := multipartBody(t, map[string][]byte{"a.png": []byte("aa")})
		rec := ts.do(http.MethodPut, base+"/attachments", token, body, ct)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = ts.do(http.MethodDelete, base+"/attachments/5", token, nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = ts.do(http.MethodDelete, base+"/attachments/abc", token, nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = ts.do(http.MethodDelete, base+"/attachments/0", token, nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = ts.do(http.MethodDelete, base+"/attachments", token, nil, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestSubmitErrors(t *testing.T) {
	t.Run("表单无效", func(t *testing.T) {
		ts := newTestServer(t, nil)
		id, token := ts.createSession(t)

		rec := ts.do(http.MethodPost, "/v1/sessions/"+id+"/submit", token,
			[]byte(`{"name":"","email":"nope","message":""}`), "application/json")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Empty(t, ts.mailer.sent)
	})

	t.Run("发送被拒绝时返回结果", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.mailer.err = domain.NewRejected(http.StatusBadRequest, "template not found")
		id, token := ts.createSession(t)

		rec := ts.do(http.MethodPost, "/v1/sessions/"+id+"/submit", token, submitBody, "application/json")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var resp struct {
			Msg  string         `json:"msg"`
			Data domain.Outcome `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, domain.StatusFailed, resp.Data.Status)
		assert.Contains(t, resp.Msg, "template not found")
	})

	t.Run("请求体不是 JSON", func(t *testing.T) {
		ts := newTestServer(t, nil)
		id, token := ts.createSession(t)

		rec := ts.do(http.MethodPost, "/v1/sessions/"+id+"/submit", token, []byte("name=Ann"), "text/plain")
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("提交限流", func(t *testing.T) {
		ts := newTestServer(t, middleware.NewIPRateLimiter(1, 1))
		id, token := ts.createSession(t)
		path := "/v1/sessions/" + id + "/submit"

		rec := ts.do(http.MethodPost, path, token, submitBody, "application/json")
		require.Equal(t, http.StatusOK, rec.Code)
		rec = ts.do(http.MethodPost, path, token, submitBody, "application/json")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func TestPublicEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("公开配置", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/v1/public/config", "", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, float64(1024), resp.Data["maxAttachmentBytes"])
		assert.Equal(t, float64(payload.DefaultMaxBytes), resp.Data["maxPayloadBytes"])
		assert.Equal(t, true, resp.Data["mailConfigured"])
		assert.Equal(t, true, resp.Data["uploadConfigured"])
	})

	t.Run("健康报告", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/health", "", nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("指标", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/metrics", "", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "http_requests_total")
	})

	t.Run("CORS 预检", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/sessions", nil)
		req.Header.Set("Origin", "https://portfolio.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "X-Session-Token")
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://portfolio.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("未知会话", func(t *testing.T) {
		tokens := ts.registry.Tokens()
		token, err := tokens.Issue("missing")
		require.NoError(t, err)
		rec := ts.do(http.MethodGet, "/v1/sessions/missing", token, nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"会话不存在", session.ErrNotFound, http.StatusNotFound},
		{"正在提交", domain.ErrSubmitInProgress, http.StatusConflict},
		{"未配置", domain.ErrConfigurationMissing, http.StatusServiceUnavailable},
		{"上传失败", domain.ErrUploadFailed, http.StatusBadGateway},
		{"载荷过大", domain.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{"传输失败", domain.NewTransportFailure("timeout"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, StatusFor(tt.err))
		})
	}
}
