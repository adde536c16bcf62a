package backend

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cadm/internal/domain"
	"github.com/vladislavdragonenkov/cadm/internal/health"
	"github.com/vladislavdragonenkov/cadm/internal/media"
	"github.com/vladislavdragonenkov/cadm/internal/storage/memory"
	"github.com/vladislavdragonenkov/cadm/internal/storage/postgres"
	"github.com/vladislavdragonenkov/cadm/internal/storage/redisguard"
	"github.com/vladislavdragonenkov/cadm/internal/version"
)

// Config — конфигурация каталожного бэкенда. Пустой PostgresDSN
// переключает хранилище на in-memory реализацию, пустой RedisAddr
// отключает идемпотентный гвард стока.
type Config struct {
	HTTPAddr    string
	PostgresDSN string
	RedisAddr   string
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr: ":8081",
	}
}

// Run собирает каталожный бэкенд и блокируется до отмены контекста
// или фатальной ошибки HTTP-сервера.
func Run(ctx context.Context, cfg Config, logger *log.Entry) error {
	if logger == nil {
		logger = log.New().WithField("component", "catalog-backend")
	}

	var (
		orders   domain.OrderRepository
		products domain.ProductRepository
	)

	var store *postgres.Store
	if cfg.PostgresDSN != "" {
		var err error
		store, err = postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer store.Close()

		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
		orders = postgres.NewOrderRepository(store)
		products = postgres.NewProductRepository(store)
		logger.Info("using postgres storage")
	} else {
		orders = memory.NewOrderRepository()
		products = memory.NewProductRepository()
		logger.Info("using in-memory storage")
	}

	var guard *redisguard.Guard
	if cfg.RedisAddr != "" {
		g, err := redisguard.Open(ctx, cfg.RedisAddr, logger)
		if err != nil {
			return fmt.Errorf("open redis guard: %w", err)
		}
		guard = g
		defer guard.Close()
		logger.WithField("addr", cfg.RedisAddr).Info("stock guard enabled")
	}

	var mediaStore *media.Store
	if os.Getenv("CADM_MEDIA_S3_BUCKET") != "" {
		ms, err := media.OpenFromEnv(ctx, logger)
		if err != nil {
			logger.WithError(err).Warn("media store init failed, uploads disabled")
		} else {
			mediaStore = ms
			logger.Info("media store enabled")
		}
	}

	healthHandler := health.NewHandler(version.String())
	if store != nil {
		healthHandler.RegisterChecker("postgres", health.NewSimpleChecker("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return store.DB().PingContext(pingCtx)
		}))
	}

	server := NewServer(orders, products, guard, mediaStore, healthHandler, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	server.Routes(router)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.WithError(err).Error("server failed")
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http server shutdown failed")
	}

	logger.Info("catalog backend stopped")
	return runErr
}
