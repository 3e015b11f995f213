package counter

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"portfolio/backend/internal/config"
	"portfolio/backend/internal/storage/postgres"
	"portfolio/backend/internal/storage/redis"
	sqlstore "portfolio/backend/internal/storage/sql"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open 按 counter.backend 创建计数器
//
// 返回的 io.Closer 用于释放底层连接。backend 为 "none" 时返回 nil 计数器，
// 订单号将始终为空。redis、postgres、sql 后端连接失败时只记录警告并返回
// 不可用计数器，提交照常进行但订单号为空；只有配置错误才返回 error。
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (Counter, io.Closer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	name := cfg.Counter.Name

	switch cfg.Counter.Backend {
	case "none":
		return nil, nopCloser{}, nil

	case "memory":
		return NewMemory(0), nopCloser{}, nil

	case "", "file":
		return NewFile(cfg.Counter.Path, name), nopCloser{}, nil

	case "redis":
		client, err := redis.New(ctx, &cfg.Redis, log)
		if err != nil {
			return degrade(log, cfg.Counter.Backend, err)
		}
		return &pinged{Counter: client.Counter(name), Pinger: client}, client, nil

	case "postgres":
		client, err := postgres.New(ctx, &cfg.Database, log)
		if err != nil {
			return degrade(log, cfg.Counter.Backend, err)
		}
		c := client.Counter(name)
		if err := c.EnsureSchema(ctx); err != nil {
			client.Close()
			return degrade(log, cfg.Counter.Backend, err)
		}
		return &pinged{Counter: c, Pinger: client}, client, nil

	case "mysql", "sql":
		driver := cfg.Database.Type
		if cfg.Counter.Backend == "mysql" {
			driver = "mysql"
		}
		if driver != "mysql" && driver != "postgres" {
			return nil, nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driver)
		}
		store, err := sqlstore.NewStore(driver, cfg.Database.DSN,
			cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
		if err != nil {
			return degrade(log, cfg.Counter.Backend, err)
		}
		if err := store.Migrate(); err != nil {
			store.Close()
			return degrade(log, cfg.Counter.Backend, fmt.Errorf("failed to migrate database: %w", err))
		}
		return &pinged{Counter: store.Counter(name), Pinger: healthPinger(store.Health)}, store, nil

	default:
		return nil, nil, fmt.Errorf("unknown counter backend: %q", cfg.Counter.Backend)
	}
}

// degrade 记录连接失败并返回不可用计数器
func degrade(log *zap.Logger, backend string, err error) (Counter, io.Closer, error) {
	log.Warn("Counter backend unavailable, order ids will be empty",
		zap.String("backend", backend),
		zap.Error(err),
	)
	return &Unavailable{Err: fmt.Errorf("counter backend %s unavailable: %w", backend, err)}, nopCloser{}, nil
}

// Unavailable 后端连接失败时使用的计数器，Next 和 Ping 都返回连接错误
type Unavailable struct {
	Err error
}

// Next 实现 Counter
func (u *Unavailable) Next(context.Context) (int64, error) {
	return 0, u.Err
}

// Ping 实现 Pinger，就绪检查会报告后端不可用
func (u *Unavailable) Ping(context.Context) error {
	return u.Err
}

// pinged 把计数器和它依赖的连接绑定在一起，供就绪检查使用
type pinged struct {
	Counter
	Pinger
}

type healthPinger func() error

func (h healthPinger) Ping(context.Context) error { return h() }
