package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir keeps a developer's .env out of the test.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 20, cfg.ReserveRateLimit)
	assert.Equal(t, time.Minute, cfg.ReserveRateWindow)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
}

func TestLoadFromEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_DSN", "host=db user=food")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("RESERVE_RATE_LIMIT", "5")
	t.Setenv("RESERVE_RATE_WINDOW_SEC", "10")
	t.Setenv("SWEEP_INTERVAL_SEC", "30")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "host=db user=food", cfg.DBDSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5, cfg.ReserveRateLimit)
	assert.Equal(t, 10*time.Second, cfg.ReserveRateWindow)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 2, cfg.RedisDB)
}

func TestLoadDotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HTTP_ADDR=:9999\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "warn", cfg.LogLevel, "real environment wins over .env")

	// godotenv.Load sets variables process-wide
	require.NoError(t, os.Unsetenv("HTTP_ADDR"))
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"RESERVE_RATE_LIMIT":      "0",
		"RESERVE_RATE_WINDOW_SEC": "-1",
		"IDEMPOTENCY_TTL_HOUR":    "x",
		"SWEEP_INTERVAL_SEC":      "0",
		"REDIS_DB":                "one",
		"DB_DRIVER":               "mysql",
		"KAFKA_BROKERS":           " , ",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			inTempDir(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
