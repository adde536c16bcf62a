package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cadm/internal/client"
	"github.com/vladislavdragonenkov/cadm/internal/domain"
	"github.com/vladislavdragonenkov/cadm/internal/health"
	"github.com/vladislavdragonenkov/cadm/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cadm/internal/metrics"
	"github.com/vladislavdragonenkov/cadm/internal/mirror"
	"github.com/vladislavdragonenkov/cadm/internal/service/transition"
	"github.com/vladislavdragonenkov/cadm/internal/version"
)

// Config — конфигурация агента синхронизации.
type Config struct {
	HTTPAddr        string
	MetricsAddr     string
	BackendURL      string
	PageSize        int
	RefreshInterval time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		MetricsAddr:     ":9090",
		BackendURL:      "http://localhost:8081",
		PageSize:        20,
		RefreshInterval: 30 * time.Second,
	}
}

// Run собирает агент синхронизации и блокируется до отмены контекста
// или фатальной ошибки одного из серверов.
func Run(ctx context.Context, cfg Config, logger *log.Entry) error {
	if logger == nil {
		logger = log.New().WithField("component", "app")
	}

	logger.WithFields(log.Fields{
		"backend":   cfg.BackendURL,
		"page_size": cfg.PageSize,
	}).Info("starting sync agent")

	rest := client.New(cfg.BackendURL, logger)
	syncMetrics := metrics.NewSyncMetrics()

	ordersView := mirror.NewView[domain.Order]()
	ordersCtrl := mirror.NewController("orders", ordersView, rest.Orders(), cfg.PageSize, logger, syncMetrics)
	ordersApplier := mirror.NewApplier("orders", ordersView, logger, syncMetrics)
	ordersAnchor := mirror.NewSentinelTrigger(ordersCtrl, logger)

	productsView := mirror.NewView[domain.Product]()
	productsCtrl := mirror.NewController("products", productsView, rest.Products(), cfg.PageSize, logger, syncMetrics)
	productsApplier := mirror.NewApplier("products", productsView, logger, syncMetrics)
	productsAnchor := mirror.NewSentinelTrigger(productsCtrl, logger)

	// Kafka опциональна: без брокеров переходы статусов просто не
	// публикуют события.
	var kafkaProducer *kafka.Producer
	if brokers := os.Getenv("CADM_KAFKA_BROKERS"); brokers != "" {
		producer, err := kafka.NewProducer(strings.Split(brokers, ","))
		if err != nil {
			logger.WithError(err).Warn("kafka producer init failed, events disabled")
		} else {
			kafkaProducer = producer
			logger.WithField("brokers", brokers).Info("kafka producer initialized")
		}
	}

	machine := transition.NewMachineWithKafka(
		rest.Orders(), rest, rest, ordersApplier, kafkaProducer, logger, syncMetrics)

	agent := &Agent{
		rest:            rest,
		ordersCtrl:      ordersCtrl,
		ordersApplier:   ordersApplier,
		ordersAnchor:    ordersAnchor,
		productsCtrl:    productsCtrl,
		productsApplier: productsApplier,
		productsAnchor:  productsAnchor,
		machine:         machine,
		metrics:         syncMetrics,
		logger:          logger,
	}

	healthHandler := health.NewHandler(version.String())
	healthHandler.RegisterChecker("backend", health.NewSimpleChecker("backend", func() error {
		reqCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, err := rest.Orders().List(reqCtx, domain.Query{Limit: 1})
		return err
	}))

	// Начальная выборка обоих представлений; ошибка не фатальна,
	// периодический refresh повторит её.
	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if err := ordersCtrl.Replace(initCtx, domain.Filter{}); err != nil {
		logger.WithError(err).Warn("initial orders replace failed")
	}
	if err := productsCtrl.Replace(initCtx, domain.Filter{}); err != nil {
		logger.WithError(err).Warn("initial products replace failed")
	}
	cancel()

	if cfg.RefreshInterval > 0 {
		go agent.refreshLoop(ctx, cfg.RefreshInterval)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	agent.Routes(router)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	metricsServer := newMetricsServer(cfg.MetricsAddr, healthHandler)

	errCh := make(chan error, 2)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.WithField("addr", cfg.MetricsAddr).Info("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
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
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("metrics server shutdown failed")
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.WithError(err).Warn("kafka producer close failed")
		}
	}

	logger.Info("sync agent stopped")
	return runErr
}

func newMetricsServer(addr string, healthHandler *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return &http.Server{Addr: addr, Handler: mux}
}
