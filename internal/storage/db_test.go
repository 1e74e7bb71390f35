package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "food_rescue.db?_busy_timeout=5000", sqliteDSN(""))
	assert.Equal(t, "x.db?_busy_timeout=5000", sqliteDSN("x.db"))
	assert.Equal(t, "file:x?mode=memory&_busy_timeout=5000", sqliteDSN("file:x?mode=memory"))
	assert.Equal(t, "x.db?_busy_timeout=100", sqliteDSN("x.db?_busy_timeout=100"))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported DB_DRIVER")
}

func TestOpen_SQLiteMigrates(t *testing.T) {
	db, err := Open(DriverSQLite, "file:storage_open_test?mode=memory&cache=shared")
	require.NoError(t, err)

	for _, table := range []string{"food_listings", "reservations", "notifications"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}
