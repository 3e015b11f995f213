package sql

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlmock "gopkg.in/DATA-DOG/go-sqlmock.v1"
)

func newMockStore(t *testing.T, driver string) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStoreWithDB(db, driver), mock
}

func TestCounter_NextMySQL(t *testing.T) {
	t.Run("通过LAST_INSERT_ID带回新值", func(t *testing.T) {
		store, mock := newMockStore(t, "mysql")
		mock.ExpectExec("INSERT INTO order_counters .*LAST_INSERT_ID\\(1\\).* ON DUPLICATE KEY UPDATE value = LAST_INSERT_ID\\(value \\+ 1\\)").
			WithArgs("orderCounter", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(7, 2))

		n, err := store.Counter("orderCounter").Next(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("执行失败时返回错误", func(t *testing.T) {
		store, mock := newMockStore(t, "mysql")
		mock.ExpectExec("INSERT INTO order_counters").
			WillReturnError(errors.New("deadlock"))

		_, err := store.Counter("orderCounter").Next(context.Background())

		assert.ErrorContains(t, err, "deadlock")
		assert.ErrorContains(t, err, "orderCounter")
	})
}

func TestCounter_NextPostgres(t *testing.T) {
	store, mock := newMockStore(t, "postgres")
	mock.ExpectQuery("INSERT INTO order_counters .*VALUES \\(\\$1,\\$2,\\$3\\) ON CONFLICT \\(name\\) DO UPDATE .* RETURNING value").
		WithArgs("orderCounter", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(12))

	n, err := store.Counter("orderCounter").Next(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounter_Current(t *testing.T) {
	t.Run("读取已有值", func(t *testing.T) {
		store, mock := newMockStore(t, "mysql")
		mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM order_counters WHERE name = ?")).
			WithArgs("orderCounter").
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(5))

		n, err := store.Counter("orderCounter").Current(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	})

	t.Run("不存在时返回0", func(t *testing.T) {
		store, mock := newMockStore(t, "postgres")
		mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM order_counters WHERE name = $1")).
			WithArgs("fresh").
			WillReturnRows(sqlmock.NewRows([]string{"value"}))

		n, err := store.Counter("fresh").Current(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestNewStore_UnsupportedDriver(t *testing.T) {
	_, err := NewStore("sqlite", "file::memory:", 1, 1, 0)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestStore_Health(t *testing.T) {
	assert.Error(t, (&Store{}).Health())
	assert.NoError(t, (&Store{}).Close())
}
