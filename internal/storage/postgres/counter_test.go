package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/backend/internal/config"
)

type fakeRow struct {
	value int64
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.value
	return nil
}

// fakeDB 在内存中模拟 upsert 语义
type fakeDB struct {
	values  map[string]int64
	execSQL []string
	err     error
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), f.err
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if f.err != nil {
		return fakeRow{err: f.err}
	}
	name := args[0].(string)
	f.values[name]++
	return fakeRow{value: f.values[name]}
}

func TestCounter_Next(t *testing.T) {
	t.Run("首次调用返回1", func(t *testing.T) {
		db := &fakeDB{values: map[string]int64{}}
		c := NewCounter(db, "orderCounter")

		n, err := c.Next(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("在已有值上递增", func(t *testing.T) {
		db := &fakeDB{values: map[string]int64{"orderCounter": 41}}
		c := NewCounter(db, "orderCounter")

		n, err := c.Next(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(42), n)
	})

	t.Run("数据库错误被包装返回", func(t *testing.T) {
		c := NewCounter(&fakeDB{err: errors.New("connection reset")}, "orderCounter")

		_, err := c.Next(context.Background())

		assert.ErrorContains(t, err, "connection reset")
	})
}

func TestCounter_EnsureSchema(t *testing.T) {
	db := &fakeDB{values: map[string]int64{}}
	c := NewCounter(db, "orderCounter")

	require.NoError(t, c.EnsureSchema(context.Background()))
	require.Len(t, db.execSQL, 1)
	assert.True(t, strings.Contains(db.execSQL[0], "CREATE TABLE IF NOT EXISTS order_counters"))
}

func TestNew_RequiresDSN(t *testing.T) {
	_, err := New(context.Background(), &config.DatabaseConfig{}, nil)
	assert.Error(t, err)
}
