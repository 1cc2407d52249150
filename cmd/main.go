package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sensor-anomaly/internal/analytics"
	"sensor-anomaly/internal/api"
	"sensor-anomaly/internal/cache"
	"sensor-anomaly/internal/config"
	"sensor-anomaly/internal/ingest"
	"sensor-anomaly/internal/logging"
)

type readingBuffer interface {
	api.ReadingStore
	Close() error
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "anomaly-service",
		Short:         "Serve sensor anomaly detection over HTTP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("ANOMALY_CONFIG"), "path to the YAML config file (env ANOMALY_CONFIG)")
	return cmd
}

func serve(configPath string) error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, loader, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		return err
	}
	return nil
}

func run(cfg *config.ServiceConfig, loader *config.Loader, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	detection, err := config.NewStore(cfg.Detection)
	if err != nil {
		return err
	}
	loader.WatchDetection(detection, logger)

	buffer, err := newBuffer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := buffer.Close(); err != nil {
			logger.Warn("failed to close reading buffer", zap.Error(err))
		}
	}()

	analyzer := analytics.NewAnalyzer(detection, logger.Named("analytics"), cfg.Pipeline.Workers)
	server := api.NewServer(cfg.Server, cfg.Buffer, buffer, analyzer, logger.Named("api"))

	if cfg.Kafka.Enabled {
		consumer := ingest.NewConsumer(cfg.Kafka, server, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
		defer func() { _ = consumer.Close() }()
	}

	logger.Info("starting sensor anomaly service",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("kafka", cfg.Kafka.Enabled),
	)
	return server.Run(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
}

func newBuffer(ctx context.Context, cfg *config.ServiceConfig) (readingBuffer, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryStore(cfg.Buffer.TTL, cfg.Buffer.MaxReadings), nil
	}
	store, err := cache.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Buffer.TTL, cfg.Buffer.MaxReadings)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return store, nil
}
