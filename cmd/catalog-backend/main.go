package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cadm/internal/backend"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

// readConfig формирует конфигурацию бэкенда, позволяя переопределить её через переменные окружения.
func readConfig() backend.Config {
	cfg := backend.DefaultConfig()
	if v := os.Getenv("CADM_BACKEND_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.PostgresDSN = os.Getenv("CADM_POSTGRES_DSN")
	cfg.RedisAddr = os.Getenv("CADM_REDIS_ADDR")
	return cfg
}

func main() {
	setupLogger()
	cfg := readConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("http_addr", cfg.HTTPAddr).Info("starting catalog backend")

	logger := log.WithField("component", "catalog-backend")
	if err := backend.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("application exited with error")
	}

	log.Info("catalog backend stopped")
}
