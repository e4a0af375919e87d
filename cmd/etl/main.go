package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weather-etl/internal/client"
	"weather-etl/internal/columnar"
	"weather-etl/internal/config"
	"weather-etl/internal/repository"
	"weather-etl/internal/scheduler"
	"weather-etl/internal/services"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewStructuredLogger("weather-etl", version, cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[STARTUP] Starting weather ETL pipeline", logging.Fields{
		"version":            version,
		"targets":            len(cfg.Targets),
		"poll_interval":      cfg.PollInterval.String(),
		"run_once":           cfg.RunOnce,
		"export_window_days": cfg.ExportWindowDays,
		"db_path":            cfg.DBPath,
		"export_dir":         cfg.ExportDir,
	})
	for _, warning := range cfg.Warnings {
		logger.Warn(ctx, "[CONFIG_WARNING] "+warning, logging.Fields{})
	}

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("weather_etl")

	// Initialize the row store
	db, err := database.NewSQLiteDB(&database.Config{
		Path:        cfg.DBPath,
		BusyTimeout: 5 * time.Second,
	}, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to open row store", logging.Fields{
			"db_path": cfg.DBPath,
		}, err)
	}
	defer db.Close()

	// Initialize repository; the schema create is idempotent and is
	// retried by every load, so a failure here is not fatal.
	weatherRepo := repository.NewWeatherRepository(db, logger, metricsCollector)
	if err := weatherRepo.InitSchema(ctx); err != nil {
		logger.Error(ctx, "[STARTUP_WARNING] Initial schema create failed; will retry each cycle", logging.Fields{}, err)
	}

	// Initialize the extractor
	weatherClient, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.BaseURL, cfg.HTTPTimeout, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to create weather client", logging.Fields{}, err)
	}

	// Initialize services
	exportService := services.NewExportService(weatherRepo, cfg.ExportDir, cfg.ExportWindowDays, columnar.NewParquetWriter(), logger, metricsCollector)
	pipelineService := services.NewPipelineService(weatherClient, weatherRepo, exportService, cfg.Targets, logger, metricsCollector)

	// Optional ops endpoint for continuous deployments
	if cfg.MetricsAddr != "" && !cfg.RunOnce {
		go serveOps(ctx, cfg.MetricsAddr, weatherRepo, logger)
	}

	runner := scheduler.NewRunner(pipelineService, cfg.PollInterval, cfg.RunOnce, logger, metricsCollector)
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal(ctx, "[RUNNER_ERROR] Runner stopped unexpectedly", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN] Weather ETL pipeline stopped", logging.Fields{})
}

// serveOps exposes /metrics and /healthz while the pipeline cycles
func serveOps(ctx context.Context, addr string, repo repository.WeatherRepository, logger *logging.StructuredLogger) {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := repo.HealthCheck(r.Context()); err != nil {
			http.Error(w, "unhealthy: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "[OPS_LISTEN] Serving metrics and health endpoints", logging.Fields{
		"addr": addr,
	})

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error(ctx, "[OPS_ERROR] Ops server failed", logging.Fields{
			"addr": addr,
		}, err)
	}
}
