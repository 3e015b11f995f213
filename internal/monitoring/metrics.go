package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
//
// 每个实例使用独立的注册表，测试中可以重复创建。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 提交流程指标
	SubmissionsTotal *prometheus.CounterVec
	UploadsTotal     *prometheus.CounterVec
	UploadFiles      prometheus.Histogram
	UploadBytes      *prometheus.HistogramVec
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	// 会话指标
	SessionsActive   prometheus.Gauge
	WebsocketClients prometheus.Gauge

	// 系统指标
	SystemUptime prometheus.Gauge
	MemoryUsage  prometheus.Gauge

	// 错误指标
	PanicsTotal     prometheus.Counter
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		SubmissionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_submissions_total",
				Help: "Contact form submissions by final status",
			},
			[]string{"status"},
		),

		UploadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_uploads_total",
				Help: "Attachment upload batches by result",
			},
			[]string{"result"},
		),

		UploadFiles: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "portfolio_upload_files",
				Help:    "Number of files per upload batch",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),

		UploadBytes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_upload_size_bytes",
				Help:    "Total attachment size per upload batch",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
			[]string{"result"},
		),

		DispatchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_dispatch_total",
				Help: "Email dispatches by result",
			},
			[]string{"result"},
		),

		DispatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_dispatch_duration_seconds",
				Help:    "Email dispatch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),

		SessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "portfolio_sessions_active",
				Help: "Number of active form sessions",
			},
		),

		WebsocketClients: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "portfolio_websocket_clients",
				Help: "Number of connected event stream clients",
			},
		),

		SystemUptime: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "portfolio_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),

		MemoryUsage: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "portfolio_memory_usage_bytes",
				Help: "Memory usage in bytes",
			},
		),

		PanicsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "portfolio_panics_total",
				Help: "Total number of panics",
			},
		),

		RateLimitBlocks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_rate_limit_blocks_total",
				Help: "Total number of rate limited requests",
			},
			[]string{"endpoint"},
		),
	}
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// ObserveSubmission 记录一次提交的最终状态
func (m *Metrics) ObserveSubmission(status string) {
	m.SubmissionsTotal.WithLabelValues(status).Inc()
}

// ObserveUpload 记录一批附件上传
func (m *Metrics) ObserveUpload(result string, files int, bytes int64) {
	m.UploadsTotal.WithLabelValues(result).Inc()
	m.UploadFiles.Observe(float64(files))
	m.UploadBytes.WithLabelValues(result).Observe(float64(bytes))
}

// ObserveDispatch 记录一次邮件发送
func (m *Metrics) ObserveDispatch(result string, elapsed time.Duration) {
	m.DispatchTotal.WithLabelValues(result).Inc()
	m.DispatchDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(endpoint string) {
	m.RateLimitBlocks.WithLabelValues(endpoint).Inc()
}

// UpdateSessionsActive 更新活跃会话数
func (m *Metrics) UpdateSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
}

// UpdateWebsocketClients 更新事件流连接数
func (m *Metrics) UpdateWebsocketClients(count int) {
	m.WebsocketClients.Set(float64(count))
}

// UpdateSystemUptime 更新系统运行时间
func (m *Metrics) UpdateSystemUptime(uptime time.Duration) {
	m.SystemUptime.Set(uptime.Seconds())
}

// UpdateMemoryUsage 更新内存使用量
func (m *Metrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
