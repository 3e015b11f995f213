package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

const counterKeyPrefix = "portfolio:counter:"

// incrementer 是计数器用到的 Redis 命令子集
type incrementer interface {
	Incr(ctx context.Context, key string) *goredis.IntCmd
}

// Counter 基于 INCR 的订单号计数器，多个实例共享同一序列
type Counter struct {
	rdb incrementer
	key string
}

// NewCounter 创建 Redis 计数器，键为 portfolio:counter:<name>
func NewCounter(rdb incrementer, name string) *Counter {
	return &Counter{rdb: rdb, key: counterKeyPrefix + name}
}

// Next 原子地加一并返回新值
func (c *Counter) Next(ctx context.Context) (int64, error) {
	n, err := c.rdb.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", c.key, err)
	}
	return n, nil
}
