package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/sensorcal/sensorcal/server/internal/alerts"
	"github.com/sensorcal/sensorcal/server/internal/api"
	"github.com/sensorcal/sensorcal/server/internal/artifacts"
	"github.com/sensorcal/sensorcal/server/internal/config"
	"github.com/sensorcal/sensorcal/server/internal/logging"
	"github.com/sensorcal/sensorcal/server/internal/metrics"
	"github.com/sensorcal/sensorcal/server/internal/runner"
	"github.com/sensorcal/sensorcal/server/internal/store"
	"github.com/sensorcal/sensorcal/server/internal/ws"
)

// retentionSweep is how often old rows are pruned when retention is set.
const retentionSweep = time.Hour

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	uiDir := flag.String("ui-dir", "", "serve the dashboard static files from this directory; leave empty to disable")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load env file", "path", *envFile, "err", err)
		os.Exit(1)
	}

	cfg, watch, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		slog.Error("failed to set up logging", "err", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("sensorcal-server starting",
		"config", *configPath,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"storage", cfg.Storage.Backend,
		"min_val", cfg.Pipeline.Min,
		"max_val", cfg.Pipeline.Max,
		"spike_threshold", cfg.Pipeline.Spike,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.Storage)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()
	go store.RunRetention(ctx, st, cfg.Storage.Retention, retentionSweep)

	// Alerts engine: evaluates rules against the last reading of every run.
	var sinks []alerts.Sink
	if cfg.Alerts.Kafka.Enabled() {
		k := alerts.NewKafkaSink(cfg.Alerts.Kafka)
		defer k.Close()
		sinks = append(sinks, k)
		slog.Info("kafka alert sink enabled", "brokers", cfg.Alerts.Kafka.Brokers, "topic", cfg.Alerts.Kafka.Topic)
	}
	alertEngine := alerts.New(cfg.Alerts, sinks...)

	reg := metrics.New()

	// WebSocket hub: pushes the live status on every run and every interval.
	hub := ws.New(st, alertEngine, cfg.Stream.Interval)
	go hub.Run(ctx)

	opts := []runner.Option{
		runner.WithEvaluator(alertEngine),
		runner.WithNotifier(hub),
		runner.WithMetrics(reg),
	}
	if cfg.Artifacts.Enabled() {
		bucket, err := artifacts.New(cfg.Artifacts)
		if err != nil {
			slog.Error("failed to set up artifact upload", "err", err)
			os.Exit(1)
		}
		opts = append(opts, runner.WithPublisher(bucket))
		slog.Info("artifact upload enabled", "endpoint", cfg.Artifacts.Endpoint, "bucket", cfg.Artifacts.Bucket)
	}
	run, err := runner.New(st, cfg.Pipeline, cfg.Reports, opts...)
	if err != nil {
		slog.Error("failed to build runner", "err", err)
		os.Exit(1)
	}

	if watch {
		go func() {
			if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				if err := run.SetThresholds(updated.Pipeline); err != nil {
					slog.Error("config: thresholds not applied", "err", err)
				}
				alertEngine.SetRules(updated.Alerts.Rules)
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.New(api.Deps{
		Store:          st,
		Runner:         run,
		Alerts:         alertEngine,
		Metrics:        reg,
		Stream:         hub,
		Auth:           cfg.Server.Auth,
		UploadMaxBytes: cfg.Server.UploadMaxBytes,
		ReportsDir:     cfg.Reports.Dir,
	})

	// Optional: serve the pre-built dashboard from a local directory. Unknown
	// paths fall back to index.html for client-side routing.
	if *uiDir != "" {
		router.NoRoute(func(c *gin.Context) {
			path := filepath.Join(*uiDir, filepath.Clean("/"+c.Request.URL.Path))
			if info, err := os.Stat(path); err != nil || info.IsDir() {
				c.File(filepath.Join(*uiDir, "index.html"))
				return
			}
			c.File(path)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("sensorcal-server shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	alertEngine.Wait()
}

// loadConfig loads path, or falls back to defaults when the file does not
// exist. watch reports whether the file should be watched for changes.
func loadConfig(path string) (cfg *config.Config, watch bool, err error) {
	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		slog.Warn("config file not found, using defaults", "path", path)
		return config.Default(), false, nil
	}
	cfg, err = config.Load(path)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}
