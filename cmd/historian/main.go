// cmd/historian/main.go is an asynchronous historian service that pops round
// actions from a Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/memoria/internal/cache"
	"github.com/jason-s-yu/memoria/internal/config"
	"github.com/jason-s-yu/memoria/internal/database"
	"github.com/jason-s-yu/memoria/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()
	if cfg.DatabaseURL == "" || cfg.RedisAddr == "" {
		logger.Fatal("historian needs DATABASE_URL and REDIS_ADDR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.ConnectDB(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer database.Close()

	if err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisDB); err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer cache.Close()

	svc := historian.NewService(
		historian.RedisSource{Client: cache.Rdb, Queue: cfg.QueueName},
		database.NewStore(database.DB),
		historian.Options{
			BatchSize:  cfg.HistorianBatchSize,
			FlushDelay: cfg.HistorianFlush,
			Inactivity: cfg.HistorianInactivity,
		},
		logger.WithField("service", "historian"),
	)
	svc.Run(ctx)
}
