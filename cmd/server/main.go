package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"portfolio/backend/internal/config"
	"portfolio/backend/internal/counter"
	"portfolio/backend/internal/health"
	"portfolio/backend/internal/logger"
	"portfolio/backend/internal/mail"
	"portfolio/backend/internal/middleware"
	"portfolio/backend/internal/monitoring"
	"portfolio/backend/internal/notify"
	"portfolio/backend/internal/payload"
	"portfolio/backend/internal/session"
	"portfolio/backend/internal/submission"
	httptransport "portfolio/backend/internal/transport/http"
	"portfolio/backend/internal/upload"
	"portfolio/backend/internal/websocket"
)

const version = "1.0.0"

// main 启动联系表单 HTTP 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	if err := cfg.Session.Validate(); err != nil {
		panic(fmt.Sprintf("invalid session config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(logger.FromConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting portfolio contact server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化订单号计数器（后端连不上时降级，订单号留空；只有配置错误才退出）
	orderCounter, counterCloser, err := counter.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("invalid order counter configuration", zap.String("backend", cfg.Counter.Backend), zap.Error(err))
	}
	defer counterCloser.Close()
	log.Info("order counter initialized", zap.String("backend", cfg.Counter.Backend))

	// 初始化上传与发送服务（凭据缺失时服务仍启动，提交会返回配置缺失）
	uploader, err := upload.New(ctx, upload.NewConfig(cfg.Upload, cfg.S3), log)
	if err != nil {
		log.Fatal("failed to initialize upload client", zap.Error(err))
	}
	if !uploader.Configured() {
		log.Warn("upload service credentials are not set, attachments cannot be sent")
	}

	mailer, err := mail.New(mail.NewConfig(cfg.Mail, cfg.SMTP), log)
	if err != nil {
		log.Fatal("failed to initialize mail client", zap.Error(err))
	}
	if !mailer.Configured() {
		log.Warn("mail service credentials are not set, submissions will fail")
	}

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 初始化提交服务与会话
	svc := submission.NewService(submission.Options{
		Uploader:           uploader,
		Dispatcher:         mailer,
		Builder:            payload.NewBuilder(orderCounter, log),
		Notifier:           notify.NewCenter(cfg.Notify.TTL),
		Recorder:           metrics,
		Logger:             log,
		MaxAttachmentBytes: cfg.Limits.MaxAttachmentBytes,
		MaxPayloadBytes:    cfg.Limits.MaxPayloadBytes,
		RecipientOverride:  cfg.Mail.Recipient,
	})

	tokens := session.NewTokenManager(cfg.Session.Secret, cfg.Session.Issuer, cfg.Session.TokenTTL)
	registry := session.NewRegistry(svc, tokens, log)
	defer registry.Close()

	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, registry, tokens, log)
	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.SubmitPerMinute, cfg.RateLimit.Burst)

	// 初始化健康检查
	pinger, _ := orderCounter.(counter.Pinger)
	healthChecks := health.NewHealthChecker(pinger, log)
	report := monitoring.NewHealthChecker(monitoring.HealthDeps{
		Counter:          pinger,
		MailConfigured:   svc.MailConfigured,
		UploadConfigured: svc.UploadConfigured,
		Sessions:         registry.Len,
		Clients:          wsHub.Count,
	}, metrics, log, version)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:   cfg,
		Registry: registry,
		Service:  svc,
		Hub:      wsHub,
		Metrics:  metrics,
		Health:   healthChecks,
		Report:   report,
		Limiter:  limiter,
		Logger:   log,
	})

	// 提交请求要等待上传和发送完成，写超时需覆盖上传超时
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 定时清理空闲会话和限流记录 goroutine
	group.Go(func() error {
		interval := cfg.Session.IdleTTL / 4
		if interval < time.Minute {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info("starting idle session cleanup task", zap.Duration("interval", interval))

		for {
			select {
			case <-groupCtx.Done():
				log.Info("cleanup task stopped")
				return nil
			case <-ticker.C:
				if count := registry.Cleanup(cfg.Session.IdleTTL); count > 0 {
					log.Info("idle sessions cleaned up", zap.Int("count", count))
				}
				limiter.Cleanup(10 * time.Minute)
			}
		}
	})

	// 监控服务 goroutine
	group.Go(func() error {
		log.Info("starting monitoring services")
		report.StartPeriodicHealthCheck(groupCtx, 30*time.Second)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
