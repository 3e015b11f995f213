package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到控制台
}

// LimitsConfig 定义联系表单的大小上限
type LimitsConfig struct {
	MaxAttachmentBytes int64 // 所有附件总大小上限，默认 10MB
	MaxPayloadBytes    int   // 发送载荷编码后大小上限，默认 50KB
}

// UploadConfig 定义附件上传服务配置
type UploadConfig struct {
	Provider  string        // 上传服务类型: "cloudinary" 或 "s3"
	CloudName string        // Cloudinary cloud name
	Preset    string        // 无签名上传 preset
	Endpoint  string        // 上传 API 根地址
	Timeout   time.Duration // 单个文件上传超时
}

// S3Config 定义 S3 兼容对象存储配置
type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string // 自定义端点（MinIO 等），留空使用 AWS
	PublicBase string // 公开访问 URL 前缀
}

// MailConfig 定义邮件发送服务配置
type MailConfig struct {
	Provider    string        // 发送服务类型: "emailjs" 或 "smtp"
	ServiceID   string        // EmailJS service id
	TemplateID  string        // EmailJS template id
	PublicKey   string        // EmailJS public key
	AccessToken string        // EmailJS private key（可选）
	Endpoint    string        // EmailJS API 根地址
	Recipient   string        // 固定收件人（可选），覆盖模板默认收件人
	Timeout     time.Duration // 单次发送超时
}

// SMTPConfig 定义 SMTP 发送配置（mail.provider=smtp 时使用）
type SMTPConfig struct {
	Addr             string // SMTP 服务地址，格式 "host:port"
	Username         string // 认证用户名，留空表示匿名
	Password         string
	From             string // 发件人地址
	DefaultRecipient string // 默认收件人
	StartTLS         bool   // 连接后必须通过 STARTTLS 升级为加密连接
}

// CounterConfig 定义订单号计数器配置
type CounterConfig struct {
	Backend string // 计数器存储: memory, file, redis, postgres, mysql, sql, none
	Name    string // 计数器名称
	Path    string // file 后端的数据文件路径
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 10
	MaxIdleConns    int           // 最大空闲连接数，默认 2
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// SessionConfig 定义表单会话配置
type SessionConfig struct {
	Secret   string        // 会话令牌签名密钥，必须至少 32 字符
	Issuer   string        // 令牌签发者标识
	TokenTTL time.Duration // 会话令牌有效期
	IdleTTL  time.Duration // 会话空闲多久后被清理
}

// NotifyConfig 定义提示消息配置
type NotifyConfig struct {
	TTL time.Duration // 提示消息自动消失时间
}

// RateLimitConfig 定义提交接口限流配置
type RateLimitConfig struct {
	SubmitPerMinute int // 每个 IP 每分钟允许的提交次数
	Burst           int
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	Log       LogConfig
	Limits    LimitsConfig
	Upload    UploadConfig
	S3        S3Config
	Mail      MailConfig
	SMTP      SMTPConfig
	Counter   CounterConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	Notify    NotifyConfig
	RateLimit RateLimitConfig
}

const defaultSessionSecret = "change-me-in-production"

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: PORTFOLIO_
// 例如: PORTFOLIO_UPLOAD_CLOUD_NAME, PORTFOLIO_MAIL_SERVICE_ID
//
// 上传与邮件配置缺失不会导致加载失败，调用时才返回 ErrConfigurationMissing。
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("portfolio")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("limits.max_attachment_bytes", 10*1024*1024)
	v.SetDefault("limits.max_payload_bytes", 50*1024)
	v.SetDefault("upload.provider", "cloudinary")
	v.SetDefault("upload.cloud_name", "")
	v.SetDefault("upload.preset", "")
	v.SetDefault("upload.endpoint", "https://api.cloudinary.com/v1_1")
	v.SetDefault("upload.timeout", "2m")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.public_base", "")
	v.SetDefault("mail.provider", "emailjs")
	v.SetDefault("mail.service_id", "")
	v.SetDefault("mail.template_id", "")
	v.SetDefault("mail.public_key", "")
	v.SetDefault("mail.access_token", "")
	v.SetDefault("mail.endpoint", "https://api.emailjs.com")
	v.SetDefault("mail.recipient", "")
	v.SetDefault("mail.timeout", "15s")
	v.SetDefault("smtp.addr", "")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.default_recipient", "")
	v.SetDefault("smtp.starttls", false)
	v.SetDefault("counter.backend", "file")
	v.SetDefault("counter.name", "orderCounter")
	v.SetDefault("counter.path", "./data/order-counter.json")
	v.SetDefault("database.type", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("session.secret", defaultSessionSecret)
	v.SetDefault("session.issuer", "portfolio")
	v.SetDefault("session.token_ttl", "2h")
	v.SetDefault("session.idle_ttl", "30m")
	v.SetDefault("notify.ttl", "5s")
	v.SetDefault("ratelimit.submit_per_minute", 5)
	v.SetDefault("ratelimit.burst", 2)

	uploadTimeout, err := time.ParseDuration(v.GetString("upload.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid upload.timeout: %w", err)
	}

	mailTimeout, err := time.ParseDuration(v.GetString("mail.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid mail.timeout: %w", err)
	}
	if mailTimeout <= 0 {
		return nil, fmt.Errorf("invalid mail.timeout: must be positive")
	}

	tokenTTL, err := time.ParseDuration(v.GetString("session.token_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid session.token_ttl: %w", err)
	}

	idleTTL, err := time.ParseDuration(v.GetString("session.idle_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid session.idle_ttl: %w", err)
	}

	notifyTTL, err := time.ParseDuration(v.GetString("notify.ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid notify.ttl: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(v.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	maxAttachment := v.GetInt64("limits.max_attachment_bytes")
	if maxAttachment <= 0 {
		maxAttachment = 10 * 1024 * 1024
	}
	maxPayload := v.GetInt("limits.max_payload_bytes")
	if maxPayload <= 0 {
		maxPayload = 50 * 1024
	}

	corsOrigins := parseList(v.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	backend := strings.ToLower(strings.TrimSpace(v.GetString("counter.backend")))
	switch backend {
	case "memory", "file", "redis", "postgres", "mysql", "sql", "none":
	default:
		return nil, fmt.Errorf("invalid counter.backend: %q", backend)
	}

	submitPerMinute := v.GetInt("ratelimit.submit_per_minute")
	if submitPerMinute <= 0 {
		submitPerMinute = 5
	}
	burst := v.GetInt("ratelimit.burst")
	if burst <= 0 {
		burst = 1
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
		},
		Limits: LimitsConfig{
			MaxAttachmentBytes: maxAttachment,
			MaxPayloadBytes:    maxPayload,
		},
		Upload: UploadConfig{
			Provider:  strings.ToLower(v.GetString("upload.provider")),
			CloudName: v.GetString("upload.cloud_name"),
			Preset:    v.GetString("upload.preset"),
			Endpoint:  strings.TrimRight(v.GetString("upload.endpoint"), "/"),
			Timeout:   uploadTimeout,
		},
		S3: S3Config{
			Region:     v.GetString("s3.region"),
			Bucket:     v.GetString("s3.bucket"),
			AccessKey:  v.GetString("s3.access_key"),
			SecretKey:  v.GetString("s3.secret_key"),
			Endpoint:   v.GetString("s3.endpoint"),
			PublicBase: strings.TrimRight(v.GetString("s3.public_base"), "/"),
		},
		Mail: MailConfig{
			Provider:    strings.ToLower(v.GetString("mail.provider")),
			ServiceID:   v.GetString("mail.service_id"),
			TemplateID:  v.GetString("mail.template_id"),
			PublicKey:   v.GetString("mail.public_key"),
			AccessToken: v.GetString("mail.access_token"),
			Endpoint:    strings.TrimRight(v.GetString("mail.endpoint"), "/"),
			Recipient:   strings.TrimSpace(v.GetString("mail.recipient")),
			Timeout:     mailTimeout,
		},
		SMTP: SMTPConfig{
			Addr:             v.GetString("smtp.addr"),
			Username:         v.GetString("smtp.username"),
			Password:         v.GetString("smtp.password"),
			From:             v.GetString("smtp.from"),
			DefaultRecipient: strings.TrimSpace(v.GetString("smtp.default_recipient")),
			StartTLS:         v.GetBool("smtp.starttls"),
		},
		Counter: CounterConfig{
			Backend: backend,
			Name:    v.GetString("counter.name"),
			Path:    v.GetString("counter.path"),
		},
		Database: DatabaseConfig{
			Type:            strings.ToLower(v.GetString("database.type")),
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Session: SessionConfig{
			Secret:   v.GetString("session.secret"),
			Issuer:   v.GetString("session.issuer"),
			TokenTTL: tokenTTL,
			IdleTTL:  idleTTL,
		},
		Notify: NotifyConfig{
			TTL: notifyTTL,
		},
		RateLimit: RateLimitConfig{
			SubmitPerMinute: submitPerMinute,
			Burst:           burst,
		},
	}

	return cfg, nil
}

// Configured 报告上传服务所需的配置是否齐全
func (u UploadConfig) Configured(s3 S3Config) bool {
	switch u.Provider {
	case "s3":
		return s3.Region != "" && s3.Bucket != "" && s3.PublicBase != ""
	default:
		return u.CloudName != "" && u.Preset != ""
	}
}

// Configured 报告邮件发送服务所需的配置是否齐全
func (m MailConfig) Configured(smtp SMTPConfig) bool {
	switch m.Provider {
	case "smtp":
		return smtp.Addr != "" && smtp.From != ""
	default:
		return m.ServiceID != "" && m.TemplateID != "" && m.PublicKey != ""
	}
}

// Validate 校验会话密钥
//
// 只有 HTTP 服务需要签发会话令牌，因此该检查不放在 Load 中，
// 命令行工具可以在没有密钥的情况下运行。
func (s SessionConfig) Validate() error {
	// 安全检查：禁止使用默认的会话密钥
	if s.Secret == defaultSessionSecret {
		return fmt.Errorf("SECURITY ERROR: session secret cannot be the default value. Please set PORTFOLIO_SESSION_SECRET environment variable")
	}

	if len(s.Secret) < 32 {
		return fmt.Errorf("SECURITY ERROR: session secret must be at least 32 characters long")
	}

	return nil
}

// Redacted 返回隐藏敏感字段后的配置副本，用于打印
func (c Config) Redacted() Config {
	out := c
	out.S3.SecretKey = mask(out.S3.SecretKey)
	out.Mail.AccessToken = mask(out.Mail.AccessToken)
	out.SMTP.Password = mask(out.SMTP.Password)
	out.Redis.Password = mask(out.Redis.Password)
	out.Session.Secret = mask(out.Session.Secret)
	out.Database.DSN = mask(out.Database.DSN)
	return out
}

func mask(value string) string {
	if value == "" {
		return ""
	}
	return "******"
}

// parseList 将逗号分隔的字符串解析为字符串切片
//
// 参数:
//   - value: 逗号分隔的字符串，如 "item1,item2,item3"
//
// 返回值:
//   - []string: 解析后的字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env
//
// 如果文件不存在，静默失败；已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
