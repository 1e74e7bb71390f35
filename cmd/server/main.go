package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"food_rescue/internal/config"
	"food_rescue/internal/ledger"
	"food_rescue/internal/logger"
	"food_rescue/internal/middleware"
	"food_rescue/internal/queue"
	"food_rescue/internal/router"
	"food_rescue/internal/storage"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// streamMaxLen 限制 outbox Stream 长度，Relay 长时间不可用时丢弃最旧事件。
const streamMaxLen = 100000

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger 依赖配置，这里只能直接退出
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. 连接数据库，自动建表
	db, err := storage.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("open database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}

	// 2. Redis：限流、幂等键、事件 outbox
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		log.Fatal("connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	l := ledger.New(db,
		ledger.WithNotifier(queue.NewStreamNotifier(rdb, cfg.EventStream, streamMaxLen)),
		ledger.WithLogger(log.Named("ledger")),
	)

	// 3. 后台任务：过期扫描、Stream -> Kafka 中继、通知消费者
	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()
	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, db,
		queue.NewLogSender(log), log)
	defer consumer.Close()

	sweeper := ledger.NewSweeper(l, cfg.SweepInterval, log.Named("sweeper"))
	relay := queue.NewRelay(rdb, producer, cfg.EventStream, cfg.EventGroup, cfg.EventConsumer, log)

	sweeper.Start(ctx)

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){relay.Run, consumer.Run} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	// 4. HTTP
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log.Named("http")))
	router.Setup(r, l, rdb, cfg, log.Named("api"))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	sweeper.Stop()
	wg.Wait()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("bye")
}
