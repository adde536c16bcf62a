package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cadm/internal/app"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

// readConfig формирует конфигурацию агента, позволяя переопределить её через переменные окружения.
func readConfig() app.Config {
	cfg := app.DefaultConfig()
	if v := os.Getenv("CADM_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("CADM_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("CADM_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("CADM_PAGE_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 {
			cfg.PageSize = size
		}
	}
	if v := os.Getenv("CADM_REFRESH_INTERVAL"); v != "" {
		if interval, err := time.ParseDuration(v); err == nil {
			cfg.RefreshInterval = interval
		}
	}
	return cfg
}

func main() {
	setupLogger()
	cfg := readConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"backend_url":  cfg.BackendURL,
	}).Info("starting sync agent")

	logger := log.WithField("component", "app")
	if err := app.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("application exited with error")
	}

	log.Info("sync agent stopped")
}
