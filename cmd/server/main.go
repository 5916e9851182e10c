// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/memoria/internal/auth"
	"github.com/jason-s-yu/memoria/internal/cache"
	"github.com/jason-s-yu/memoria/internal/config"
	"github.com/jason-s-yu/memoria/internal/handlers"
	"github.com/jason-s-yu/memoria/internal/identity"
	"github.com/jason-s-yu/memoria/internal/store"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()

	if err := auth.Init(cfg.TokenExpire); err != nil {
		logger.Fatalf("auth: %v", err)
	}

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		logger.Fatalf("rules: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	defer backend.Close()

	if cfg.RedisAddr != "" {
		cache.QueueName = cfg.QueueName
		if err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisDB); err != nil {
			logger.WithError(err).Warn("Round action log disabled")
		} else {
			defer cache.Close()
			logger.Infof("Publishing round actions to %s", cfg.QueueName)
		}
	}

	srv := handlers.NewServer(identity.NewGate(backend.Players), backend.Rankings, rules, logger)
	srv.AllowedOrigins = cfg.AllowedOrigins

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":  httpSrv.Addr,
			"store": backend.Name,
			"pairs": rules.Pairs(),
			"round": rules.RoundDuration,
		}).Info("Running")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server exited: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP shutdown")
	}
	srv.Shutdown()
}
