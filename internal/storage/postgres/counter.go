package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	createCounterTableSQL = `
CREATE TABLE IF NOT EXISTS order_counters (
	name       VARCHAR(64) PRIMARY KEY,
	value      BIGINT      NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

	nextCounterSQL = `
INSERT INTO order_counters (name, value, updated_at)
VALUES ($1, 1, NOW())
ON CONFLICT (name) DO UPDATE
SET value = order_counters.value + 1, updated_at = NOW()
RETURNING value`
)

// querier 是 pgxpool.Pool 中计数器用到的部分
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Counter 基于 upsert 的订单号计数器，单条语句完成读取和递增
type Counter struct {
	db   querier
	name string
}

// NewCounter 创建 PostgreSQL 计数器
func NewCounter(db querier, name string) *Counter {
	return &Counter{db: db, name: name}
}

// EnsureSchema 创建计数器表（如果不存在）
func (c *Counter) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.Exec(ctx, createCounterTableSQL); err != nil {
		return fmt.Errorf("create order_counters table: %w", err)
	}
	return nil
}

// Next 实现计数器接口
func (c *Counter) Next(ctx context.Context) (int64, error) {
	var value int64
	if err := c.db.QueryRow(ctx, nextCounterSQL, c.name).Scan(&value); err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", c.name, err)
	}
	return value, nil
}
