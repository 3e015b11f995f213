package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// HealthStatus 健康状态
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck 单项检查结果
type HealthCheck struct {
	Name        string        `json:"name"`
	Status      HealthStatus  `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
	LastChecked time.Time     `json:"last_checked"`
}

// HealthReport 健康报告
type HealthReport struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime"`
	Checks    []HealthCheck `json:"checks"`
	Version   string        `json:"version"`
}

// Pinger 可以探测连通性的后端
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthDeps 健康检查依赖，字段均可为空
type HealthDeps struct {
	Counter          Pinger      // 订单号计数器后端
	MailConfigured   func() bool // 邮件发送服务是否已配置
	UploadConfigured func() bool // 上传服务是否已配置
	Sessions         func() int  // 活跃会话数
	Clients          func() int  // 事件流连接数
}

// HealthChecker 健康检查器，同时定期刷新系统指标
type HealthChecker struct {
	deps      HealthDeps
	metrics   *Metrics
	logger    *zap.Logger
	startTime time.Time
	version   string
}

// NewHealthChecker 创建健康检查器，metrics 可为空
func NewHealthChecker(deps HealthDeps, metrics *Metrics, logger *zap.Logger, version string) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		deps:      deps,
		metrics:   metrics,
		logger:    logger,
		startTime: time.Now(),
		version:   version,
	}
}

// CheckHealth 执行健康检查
//
// 计数器不可用时整体为 unhealthy；上传或邮件服务未配置时为 degraded，
// 表单仍可访问但提交会失败。
func (hc *HealthChecker) CheckHealth(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Timestamp: time.Now(),
		Uptime:    time.Since(hc.startTime),
		Version:   hc.version,
		Checks:    make([]HealthCheck, 0, 5),
	}

	checks := []func(context.Context) HealthCheck{
		hc.checkCounter,
		hc.checkMail,
		hc.checkUpload,
		hc.checkMemory,
		hc.checkSystem,
	}

	overallStatus := HealthStatusHealthy
	for _, check := range checks {
		healthCheck := check(ctx)
		report.Checks = append(report.Checks, healthCheck)

		switch healthCheck.Status {
		case HealthStatusUnhealthy:
			overallStatus = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overallStatus != HealthStatusUnhealthy {
				overallStatus = HealthStatusDegraded
			}
		}
	}

	report.Status = overallStatus
	return report
}

// checkCounter 检查订单号计数器后端
func (hc *HealthChecker) checkCounter(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{Name: "counter", LastChecked: start}

	if hc.deps.Counter == nil {
		check.Status = HealthStatusHealthy
		check.Message = "Counter backend needs no connection"
		return check
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := hc.deps.Counter.Ping(ctx); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = fmt.Sprintf("Counter backend unreachable: %v", err)
	} else {
		check.Status = HealthStatusHealthy
		check.Message = "Counter backend is healthy"
	}

	check.Duration = time.Since(start)
	return check
}

func (hc *HealthChecker) checkMail(context.Context) HealthCheck {
	return configuredCheck("mail", hc.deps.MailConfigured)
}

func (hc *HealthChecker) checkUpload(context.Context) HealthCheck {
	return configuredCheck("upload", hc.deps.UploadConfigured)
}

func configuredCheck(name string, configured func() bool) HealthCheck {
	check := HealthCheck{Name: name, LastChecked: time.Now()}
	if configured != nil && configured() {
		check.Status = HealthStatusHealthy
		check.Message = "Service credentials are set"
	} else {
		check.Status = HealthStatusDegraded
		check.Message = "Service credentials are not set"
	}
	return check
}

// checkMemory 检查内存使用
func (hc *HealthChecker) checkMemory(context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{Name: "memory", LastChecked: start}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	memoryUsageMB := float64(m.Alloc) / 1024 / 1024
	memoryLimitMB := 1024.0 // 1GB 限制

	if memoryUsageMB > memoryLimitMB {
		check.Status = HealthStatusDegraded
		check.Message = fmt.Sprintf("High memory usage: %.2f MB", memoryUsageMB)
	} else {
		check.Status = HealthStatusHealthy
		check.Message = fmt.Sprintf("Memory usage: %.2f MB", memoryUsageMB)
	}

	check.Duration = time.Since(start)
	return check
}

// checkSystem 检查 Goroutine 数量
func (hc *HealthChecker) checkSystem(context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{Name: "system", LastChecked: start}

	numGoroutines := runtime.NumGoroutine()
	if numGoroutines > 1000 {
		check.Status = HealthStatusDegraded
		check.Message = fmt.Sprintf("High goroutine count: %d", numGoroutines)
	} else {
		check.Status = HealthStatusHealthy
		check.Message = fmt.Sprintf("Goroutines: %d", numGoroutines)
	}

	check.Duration = time.Since(start)
	return check
}

// GetUptime 获取系统运行时间
func (hc *HealthChecker) GetUptime() time.Duration {
	return time.Since(hc.startTime)
}

// RefreshMetrics 刷新系统和会话指标
func (hc *HealthChecker) RefreshMetrics() {
	if hc.metrics == nil {
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	hc.metrics.UpdateMemoryUsage(m.Alloc)
	hc.metrics.UpdateSystemUptime(hc.GetUptime())

	if hc.deps.Sessions != nil {
		hc.metrics.UpdateSessionsActive(hc.deps.Sessions())
	}
	if hc.deps.Clients != nil {
		hc.metrics.UpdateWebsocketClients(hc.deps.Clients())
	}
}

// StartPeriodicHealthCheck 启动定期健康检查，直到 ctx 取消
func (hc *HealthChecker) StartPeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hc.RefreshMetrics()
			report := hc.CheckHealth(ctx)

			switch report.Status {
			case HealthStatusUnhealthy:
				hc.logger.Error("System health check failed",
					zap.String("status", string(report.Status)),
					zap.Duration("uptime", report.Uptime),
				)
			case HealthStatusDegraded:
				hc.logger.Warn("System health check degraded",
					zap.String("status", string(report.Status)),
					zap.Duration("uptime", report.Uptime),
				)
			default:
				hc.logger.Debug("System health check passed",
					zap.String("status", string(report.Status)),
					zap.Duration("uptime", report.Uptime),
				)
			}
		}
	}
}
