package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"portfolio/backend/internal/config"
	"portfolio/backend/internal/health"
	"portfolio/backend/internal/middleware"
	"portfolio/backend/internal/monitoring"
	"portfolio/backend/internal/session"
	"portfolio/backend/internal/submission"
	"portfolio/backend/internal/websocket"
)

// 附件选择接口的路由模板，用于放宽请求体上限
const attachmentsRoute = "/v1/sessions/:id/attachments"

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config   *config.Config
	Registry *session.Registry
	Service  *submission.Service
	Hub      *websocket.Hub            // 事件流 Hub，可为空
	Metrics  *monitoring.Metrics       // Prometheus 指标，可为空
	Health   *health.HealthChecker     // 存活/就绪探针，可为空
	Report   *monitoring.HealthChecker // 详细健康报告，可为空
	Limiter  *middleware.IPRateLimiter // 提交限流，可为空
	Logger   *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, logger)
	router.Use(monitor.PanicRecovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	if deps.Metrics != nil {
		router.Use(monitor.HTTPMetrics())
	}

	// 附件接口的上限按附件总大小放宽，其余接口使用小上限；
	// 附件超限由处理器按超限选择处理
	router.Use(middleware.DynamicBodySizeLimit(map[string]int64{
		attachmentsRoute: middleware.AttachmentBodyLimit(deps.Service.MaxAttachmentBytes()),
	}, middleware.SmallBodyLimit, attachmentsRoute))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:  deps.Config.CORS.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Session-Token"},
		ExposeHeaders: []string{"Content-Length", "Retry-After", "X-Max-Body-Size"},
		MaxAge:        12 * time.Hour,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"*"}
	}

	// 如果允许所有来源，则需清空凭证支持。
	corsConfig.AllowCredentials = true
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	sessionHandler := NewSessionHandler(deps.Registry, deps.Service.Notifier(), logger)
	publicHandler := NewPublicHandler(deps.Service)

	// 创建中间件
	sessionAuth := middleware.NewSessionAuth(deps.Registry.Tokens(), logger)

	// 健康检查与指标
	router.GET("/health", healthReport(deps.Report))
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	v1 := router.Group("/v1")
	{
		// 公开接口
		v1.GET("/public/config", publicHandler.GetSystemConfig)
		v1.POST("/sessions", sessionHandler.Create)

		// 事件流自行校验令牌（浏览器无法为 WebSocket 设置请求头）
		if deps.Hub != nil {
			v1.GET("/sessions/:id/events", websocket.HandleWebSocket(deps.Hub))
		}

		// 需要会话令牌的接口
		sessions := v1.Group("/sessions/:id", sessionAuth.RequireSession())
		{
			sessions.GET("", sessionHandler.Get)
			sessions.DELETE("", sessionHandler.Delete)

			sessions.PUT("/attachments", sessionHandler.SelectAttachments)
			sessions.DELETE("/attachments", sessionHandler.ClearAttachments)
			sessions.DELETE("/attachments/:index", sessionHandler.RemoveAttachment)

			submit := []gin.HandlerFunc{middleware.ValidateContentType("application/json")}
			if deps.Limiter != nil {
				submit = append([]gin.HandlerFunc{deps.Limiter.Middleware()}, submit...)
			}
			sessions.POST("/submit", append(submit, sessionHandler.Submit)...)

			sessions.GET("/notifications", sessionHandler.ListNotifications)
			sessions.DELETE("/notifications/:nid", sessionHandler.DismissNotification)
		}
	}

	return router
}

// healthReport 返回详细健康报告，unhealthy 时状态码为 503
func healthReport(report *monitoring.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if report == nil {
			c.JSON(http.StatusOK, gin.H{"status": monitoring.HealthStatusHealthy})
			return
		}

		r := report.CheckHealth(c.Request.Context())
		status := http.StatusOK
		if r.Status == monitoring.HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, r)
	}
}
