package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/sudo-init-do/skillmarket/internal/alerts"
	"github.com/sudo-init-do/skillmarket/internal/config"
	"github.com/sudo-init-do/skillmarket/internal/db"
)

// worker consumes notification tasks and persists in-app notifications.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if cfg.StoreDriver != config.StoreDriverPostgres {
		logger.Fatal("worker requires STORE_DRIVER=postgres; the memory driver runs the processor inside the server")
	}

	dsn := cfg.PostgresConfig.DSN()
	if cfg.AutoMigrate {
		if err := db.MigrateUp(dsn, logger); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
	}
	pool, err := db.Connect(context.Background(), dsn)
	if err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}
	defer pool.Close()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisConfig.Addr, Password: cfg.RedisConfig.Password, DB: cfg.RedisConfig.DB}
	srv := alerts.NewServer(redisOpt, cfg.WorkerConcurrency, logger)
	mux := alerts.NewServeMux(alerts.NewProcessor(db.NewNotificationStore(pool), logger))

	logger.Info("notification worker started", zap.Int("concurrency", cfg.WorkerConcurrency))
	// Run blocks until SIGTERM or SIGINT.
	if err := srv.Run(mux); err != nil {
		logger.Fatal("worker stopped", zap.Error(err))
	}
}
