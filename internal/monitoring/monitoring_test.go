package monitoring

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("独立注册表可重复创建", func(t *testing.T) {
		a := NewMetrics()
		b := NewMetrics()

		a.ObserveSubmission("succeeded")
		assert.Equal(t, float64(1), testutil.ToFloat64(a.SubmissionsTotal.WithLabelValues("succeeded")))
		assert.Equal(t, float64(0), testutil.ToFloat64(b.SubmissionsTotal.WithLabelValues("succeeded")))
	})

	t.Run("提交流程指标", func(t *testing.T) {
		m := NewMetrics()

		m.ObserveUpload("success", 2, 2*1024*1024)
		m.ObserveUpload("failure", 1, 10)
		m.ObserveDispatch("success", 120*time.Millisecond)
		m.RecordRateLimitBlock("/v1/sessions/:id/submit")

		assert.Equal(t, float64(1), testutil.ToFloat64(m.UploadsTotal.WithLabelValues("success")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.UploadsTotal.WithLabelValues("failure")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.DispatchTotal.WithLabelValues("success")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitBlocks.WithLabelValues("/v1/sessions/:id/submit")))
	})

	t.Run("导出文本格式", func(t *testing.T) {
		m := NewMetrics()
		m.ObserveSubmission("failed")

		rec := httptest.NewRecorder()
		m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		body, err := io.ReadAll(rec.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, string(body), `portfolio_submissions_total{status="failed"} 1`)
		assert.Contains(t, string(body), "go_goroutines")
	})
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func yes() bool { return true }

func TestHealthChecker(t *testing.T) {
	t.Run("全部正常", func(t *testing.T) {
		hc := NewHealthChecker(HealthDeps{
			Counter:          pingerFunc(func(context.Context) error { return nil }),
			MailConfigured:   yes,
			UploadConfigured: yes,
		}, nil, nil, "test")

		report := hc.CheckHealth(context.Background())

		assert.Equal(t, HealthStatusHealthy, report.Status)
		assert.Len(t, report.Checks, 5)
		assert.Equal(t, "test", report.Version)
	})

	t.Run("未配置服务为 degraded", func(t *testing.T) {
		hc := NewHealthChecker(HealthDeps{UploadConfigured: yes}, nil, nil, "test")

		report := hc.CheckHealth(context.Background())

		assert.Equal(t, HealthStatusDegraded, report.Status)
		assert.Equal(t, "mail", report.Checks[1].Name)
		assert.Equal(t, HealthStatusDegraded, report.Checks[1].Status)
	})

	t.Run("计数器不可用为 unhealthy", func(t *testing.T) {
		hc := NewHealthChecker(HealthDeps{
			Counter: pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
		}, nil, nil, "test")

		report := hc.CheckHealth(context.Background())

		assert.Equal(t, HealthStatusUnhealthy, report.Status)
		assert.Contains(t, report.Checks[0].Message, "connection refused")
	})

	t.Run("刷新指标", func(t *testing.T) {
		m := NewMetrics()
		hc := NewHealthChecker(HealthDeps{
			Sessions: func() int { return 3 },
			Clients:  func() int { return 2 },
		}, m, nil, "test")

		hc.RefreshMetrics()

		assert.Equal(t, float64(3), testutil.ToFloat64(m.SessionsActive))
		assert.Equal(t, float64(2), testutil.ToFloat64(m.WebsocketClients))
		assert.Greater(t, testutil.ToFloat64(m.MemoryUsage), float64(0))
	})
}
