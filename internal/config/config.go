package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	LogLevel string

	// DBDriver 为 sqlite（默认）或 postgres
	DBDriver string
	DBDSN    string

	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（提交后入流，Relay 异步转 Kafka）
	EventStream   string
	EventGroup    string
	EventConsumer string

	// 预约接口限流与幂等键保留时间
	ReserveRateLimit  int
	ReserveRateWindow time.Duration
	IdempotencyTTL    time.Duration

	// 过期扫描间隔
	SweepInterval time.Duration

	AdminToken string
	JWTSecret  string
}

// Load 读取并校验配置，缺失时使用默认值。当前目录下的 .env 会先被加载，
// 已存在的环境变量优先。
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := AppConfig{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DBDriver:          strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:             getEnv("DB_DSN", "food_rescue.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:      splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "food-rescue-reservation-events"),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "food-rescue-notifier"),
		EventStream:       getEnv("EVENT_STREAM", "food_rescue:reservation_events"),
		EventGroup:        getEnv("EVENT_GROUP", "food-rescue-relay-group"),
		EventConsumer:     getEnv("EVENT_CONSUMER", "food-rescue-relay-1"),
		ReserveRateLimit:  20,
		ReserveRateWindow: time.Minute,
		IdempotencyTTL:    24 * time.Hour,
		SweepInterval:     time.Minute,
		AdminToken:        getEnv("ADMIN_TOKEN", "dev-admin-token"),
		JWTSecret:         getEnv("JWT_SECRET", "dev-jwt-secret"),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	if cfg.ReserveRateLimit, err = getEnvPositive("RESERVE_RATE_LIMIT", cfg.ReserveRateLimit); err != nil {
		return AppConfig{}, err
	}
	windowSec, err := getEnvPositive("RESERVE_RATE_WINDOW_SEC", int(cfg.ReserveRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, err
	}
	cfg.ReserveRateWindow = time.Duration(windowSec) * time.Second

	ttlHour, err := getEnvPositive("IDEMPOTENCY_TTL_HOUR", int(cfg.IdempotencyTTL.Hours()))
	if err != nil {
		return AppConfig{}, err
	}
	cfg.IdempotencyTTL = time.Duration(ttlHour) * time.Hour

	sweepSec, err := getEnvPositive("SWEEP_INTERVAL_SEC", int(cfg.SweepInterval.Seconds()))
	if err != nil {
		return AppConfig{}, err
	}
	cfg.SweepInterval = time.Duration(sweepSec) * time.Second

	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return AppConfig{}, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}
	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.KafkaGroupID == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}
	if cfg.EventStream == "" {
		return AppConfig{}, fmt.Errorf("EVENT_STREAM must not be empty")
	}
	if cfg.EventGroup == "" {
		return AppConfig{}, fmt.Errorf("EVENT_GROUP must not be empty")
	}
	if cfg.EventConsumer == "" {
		return AppConfig{}, fmt.Errorf("EVENT_CONSUMER must not be empty")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvPositive(key string, fallback int) (int, error) {
	n, err := getEnvInt(key, fallback)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return n, nil
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
