package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const counterTable = "order_counters"

// Counter 基于 SQL upsert 的订单号计数器
//
// MySQL 使用 LAST_INSERT_ID(expr) 在同一条语句里带回新值，
// PostgreSQL 使用 RETURNING。
type Counter struct {
	store *Store
	name  string
	now   func() time.Time
}

// Counter 返回指定名称的计数器
func (s *Store) Counter(name string) *Counter {
	return &Counter{store: s, name: name, now: func() time.Time { return time.Now().UTC() }}
}

// Next 实现计数器接口
func (c *Counter) Next(ctx context.Context) (int64, error) {
	var (
		value int64
		err   error
	)
	switch c.store.driverName {
	case "mysql":
		value, err = c.nextMySQL(ctx)
	default:
		value, err = c.nextPostgres(ctx)
	}
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", c.name, err)
	}
	return value, nil
}

func (c *Counter) nextMySQL(ctx context.Context) (int64, error) {
	query, args, err := sq.Insert(counterTable).
		Columns("name", "value", "updated_at").
		Values(c.name, sq.Expr("LAST_INSERT_ID(1)"), c.now()).
		Suffix("ON DUPLICATE KEY UPDATE value = LAST_INSERT_ID(value + 1), updated_at = VALUES(updated_at)").
		ToSql()
	if err != nil {
		return 0, err
	}

	res, err := c.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (c *Counter) nextPostgres(ctx context.Context) (int64, error) {
	query, args, err := sq.Insert(counterTable).
		Columns("name", "value", "updated_at").
		Values(c.name, 1, c.now()).
		Suffix("ON CONFLICT (name) DO UPDATE SET value = " + counterTable + ".value + 1, updated_at = EXCLUDED.updated_at RETURNING value").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, err
	}

	var value int64
	if err := c.store.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

// Current 读取当前值，计数器不存在时返回 0
func (c *Counter) Current(ctx context.Context) (int64, error) {
	builder := sq.Select("value").From(counterTable).Where(sq.Eq{"name": c.name})
	if c.store.driverName == "postgres" {
		builder = builder.PlaceholderFormat(sq.Dollar)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}

	var value int64
	err = c.store.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", c.name, err)
	}
	return value, nil
}
