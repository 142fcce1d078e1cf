package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	genesisconfig "stablecore/config"
	"stablecore/core/events"
	"stablecore/integrations/eventlog"
	"stablecore/integrations/webhooks"
	"stablecore/observability/logging"
	telemetry "stablecore/observability/otel"
	"stablecore/services/hubd"
	"stablecore/services/hubd/config"
	"stablecore/storage"
)

const shutdownTimeout = 10 * time.Second

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/hubd/config.example.yaml", "path to hubd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("HUBD_ENV"))
	logger, logCloser := logging.SetupWithFile("hubd", env, logging.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer logCloser.Close()

	if err := run(cfg, env, logger); err != nil {
		logger.Error("hubd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, env string, logger *slog.Logger) error {
	if cfg.Telemetry.Enabled {
		otelCfg := telemetry.FromEnv("hubd", env)
		otelCfg.ServiceVersion = version
		if cfg.Telemetry.Endpoint != "" {
			otelCfg.Endpoint = cfg.Telemetry.Endpoint
		}
		otelCfg.Traces = otelCfg.Traces && cfg.Telemetry.Exports("traces")
		otelCfg.Metrics = otelCfg.Metrics && cfg.Telemetry.Exports("metrics")
		shutdownTelemetry, err := telemetry.Init(context.Background(), otelCfg)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = shutdownTelemetry(ctx)
		}()
	}

	genesis, err := genesisconfig.Load(cfg.GenesisPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return err
	}
	defer db.Close()

	journalDB, err := eventlog.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if err := eventlog.AutoMigrate(journalDB); err != nil {
		return err
	}
	if err := hubd.MigrateIdempotency(journalDB); err != nil {
		return err
	}
	journal := eventlog.NewSink(journalDB, logger)
	broadcaster := hubd.NewBroadcaster()
	emitters := []events.Emitter{broadcaster, journal}

	if cfg.Webhook.URL != "" {
		dispatcher, err := webhooks.NewDispatcher(cfg.Webhook.URL, []byte(cfg.Webhook.Secret),
			webhooks.WithTopics(cfg.Webhook.Topics...),
			webhooks.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		defer dispatcher.Close()
		emitters = append(emitters, dispatcher)
	}

	runtime, err := hubd.NewRuntime(genesis, db, hubd.WithEmitters(emitters...), hubd.WithLogger(logger))
	if err != nil {
		return err
	}
	server, err := hubd.New(hubd.Config{
		Runtime:     runtime,
		Broadcaster: broadcaster,
		Journal:     journal,
		DB:          journalDB,
		Auth: hubd.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		},
		RateLimit: hubd.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	api := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metrics := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{api, metrics} {
		srv := srv
		g.Go(func() error {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(api.Shutdown(shutdownCtx), metrics.Shutdown(shutdownCtx))
	})
	return g.Wait()
}
