package main

import (
	"context"
	"flag"
	"fmt"
	"lc_escrow/internal/api"
	"lc_escrow/internal/config"
	"lc_escrow/internal/processor"
	"lc_escrow/internal/repository/memory"
	"lc_escrow/internal/repository/sqlite"
	"lc_escrow/internal/service"
	"lc_escrow/internal/token"
	"lc_escrow/pkg/crypto"
	"lc_escrow/pkg/metrics"
	"lc_escrow/pkg/ratelimit"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const (
	appName = "lc_escrow"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("admin", cfg.Protocol.AdminAccount),
		slog.String("engine", cfg.Protocol.EngineAccount))

	ctx := context.Background()
	metricsCollector := metrics.NewMetricsCollector(logger)

	journal, err := openJournal(ctx, cfg.Journal.Path)
	if err != nil {
		logger.Error("Failed to open event journal", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer journal.Close()

	sinks, kafkaSink := setupSinks(cfg, journal, logger)
	notificationService := service.NewNotificationService(sinks, cfg.Notifications.Workers, metricsCollector, logger,
		service.WithQueueSize(cfg.Notifications.QueueSize),
		service.WithDeliveryTimeout(cfg.Notifications.DeliveryTimeout))

	exec := processor.NewExecutor(logger,
		processor.WithPublisher(notificationService),
		processor.WithMetrics(metricsCollector))
	roles, err := processor.NewRoleRegistry(ctx, memory.NewRoleRepository(), exec, cfg.Protocol.AdminAccount, logger)
	if err != nil {
		logger.Error("Failed to bootstrap role registry", slog.String("error", err.Error()))
		os.Exit(1)
	}
	ledger := token.NewLedger(cfg.Protocol.TokenSymbol, cfg.Protocol.TokenMinter, logger)
	products := processor.NewProductLedger(memory.NewProductRepository(), roles, exec, logger)
	engine := processor.NewLetterOfCreditEngine(
		memory.NewLetterOfCreditRepository(),
		memory.NewSettlementRepository(),
		roles, products, ledger,
		cfg.Protocol.EngineAccount,
		exec, logger)

	signer, err := crypto.NewSigner(cfg.Auth.JWTSecret, logger)
	if err != nil {
		logger.Error("Failed to create token signer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	apiHandler := api.NewAPIHandler(roles, products, engine, ledger, journal, logger)
	router := api.NewRouter(apiHandler, api.RouterOptions{
		Verifier: signer,
		Limiter:  ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute),
		Recorder: metricsCollector,
		Logger:   logger,
	})

	var metricsServer *http.Server
	if cfg.Server.MetricsAddr != "" {
		metricsServer = metricsCollector.StartMetricsServer(cfg.Server.MetricsAddr)
	}
	httpServer := startHTTPServer(cfg.Server.HTTPAddr, router, logger)
	waitForShutdown(logger, cfg.Server.ShutdownTimeout, httpServer, metricsServer, notificationService, metricsCollector)
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Error("Kafka writer close failed", slog.String("error", err.Error()))
		}
	}
	logger.Info("Application shutdown complete")
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level: lvl,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

func openJournal(ctx context.Context, path string) (*sqlite.Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	return sqlite.Open(ctx, path)
}

// setupSinks always journals and logs events; Kafka is added when brokers are
// configured.
func setupSinks(cfg config.Config, journal *sqlite.Journal, logger *slog.Logger) ([]service.Sink, *service.KafkaSink) {
	sinks := []service.Sink{
		service.NewJournalSink(journal),
		service.NewLogSink(logger),
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return sinks, nil
	}
	kafkaSink, err := service.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		logger.Error("Kafka sink disabled", slog.String("error", err.Error()))
		return sinks, nil
	}
	logger.Info("Streaming events to Kafka",
		slog.String("brokers", strings.Join(cfg.Kafka.Brokers, ",")),
		slog.String("topic", cfg.Kafka.Topic))
	return append(sinks, kafkaSink), kafkaSink
}

func startHTTPServer(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(
	logger *slog.Logger,
	timeout time.Duration,
	httpServer *http.Server,
	metricsServer *http.Server,
	notificationService *service.NotificationService,
	metricsCollector *metrics.MetricsCollector,
) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
		}
	}

	if err := notificationService.Shutdown(ctx); err != nil {
		logger.Error("Notification service shutdown failed", slog.String("error", err.Error()))
	}
	if err := metricsCollector.Shutdown(ctx); err != nil {
		logger.Error("Metrics collector shutdown failed", slog.String("error", err.Error()))
	}
}
