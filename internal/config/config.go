// Package config loads the service configuration.
//
// Sources, highest priority first:
//   1. Environment variables (ANOMALY_* prefix, "." replaced by "_")
//   2. .env file in the working directory
//   3. YAML config file (optional)
//   4. Built-in defaults
//
// The detection section seeds the effective DetectionConfig held by a Store;
// later edits of the config file are applied through the same Store.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	QueueSize      int      `mapstructure:"queue_size"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BufferConfig bounds the buffered readings that detection over the ingest
// buffer works on.
type BufferConfig struct {
	MaxReadings int64         `mapstructure:"max_readings"`
	TTL         time.Duration `mapstructure:"ttl"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File enables a rotating file sink in addition to stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type PipelineConfig struct {
	// Workers bounds per-entity fan-out; 0 means one per CPU.
	Workers int `mapstructure:"workers"`
}

// ServiceConfig contains all configuration of the detection service.
type ServiceConfig struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Buffer    BufferConfig    `mapstructure:"buffer"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Detection DetectionConfig `mapstructure:"detection"`
}

// DefaultServiceConfig returns a configuration with all default values.
func DefaultServiceConfig() *ServiceConfig {
	cfg := &ServiceConfig{}

	cfg.Server.Port = 8080
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.QueueSize = 10000

	cfg.Redis.Enabled = false
	cfg.Redis.Addr = "localhost:6379"

	cfg.Buffer.MaxReadings = 50000
	cfg.Buffer.TTL = 48 * time.Hour

	cfg.Kafka.Enabled = false
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Topic = "sensor.readings"
	cfg.Kafka.GroupID = "sensor-anomaly"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30

	cfg.Detection = DefaultDetectionConfig()

	return cfg
}

// Loader reads ServiceConfig through viper.
type Loader struct {
	path string
	v    *viper.Viper
}

// NewLoader creates a loader for the YAML file at path. An empty path means
// defaults and environment only.
func NewLoader(path string) *Loader {
	return &Loader{path: path, v: viper.New()}
}

// Load loads configuration from all sources and validates it.
func (l *Loader) Load() (*ServiceConfig, error) {
	_ = godotenv.Load(".env")

	l.v.SetEnvPrefix("ANOMALY")
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	l.setDefaults()

	if l.path != "" {
		l.v.SetConfigFile(l.path)
		l.v.SetConfigType("yaml")
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := &ServiceConfig{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// WatchDetection applies edits of the detection section to store. Invalid
// edits are logged and ignored.
func (l *Loader) WatchDetection(store *Store, logger *zap.Logger) {
	if l.path == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		var det DetectionConfig
		if err := l.v.UnmarshalKey("detection", &det); err != nil {
			logger.Warn("config reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := store.Replace(det); err != nil {
			logger.Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("detection config reloaded", zap.String("file", e.Name))
	})
	l.v.WatchConfig()
}

func (l *Loader) setDefaults() {
	d := DefaultServiceConfig()

	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	l.v.SetDefault("server.queue_size", d.Server.QueueSize)

	l.v.SetDefault("redis.enabled", d.Redis.Enabled)
	l.v.SetDefault("redis.addr", d.Redis.Addr)
	l.v.SetDefault("redis.password", d.Redis.Password)
	l.v.SetDefault("redis.db", d.Redis.DB)

	l.v.SetDefault("buffer.max_readings", d.Buffer.MaxReadings)
	l.v.SetDefault("buffer.ttl", d.Buffer.TTL)

	l.v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	l.v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	l.v.SetDefault("kafka.topic", d.Kafka.Topic)
	l.v.SetDefault("kafka.group_id", d.Kafka.GroupID)

	l.v.SetDefault("logging.level", d.Logging.Level)
	l.v.SetDefault("logging.format", d.Logging.Format)
	l.v.SetDefault("logging.file", d.Logging.File)
	l.v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	l.v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	l.v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)

	l.v.SetDefault("pipeline.workers", d.Pipeline.Workers)

	l.v.SetDefault("detection.z_score_threshold", d.Detection.ZScoreThreshold)
	l.v.SetDefault("detection.iqr_multiplier", d.Detection.IQRMultiplier)
	l.v.SetDefault("detection.min_data_points", d.Detection.MinDataPoints)
	l.v.SetDefault("detection.exclude_states", d.Detection.ExcludeStates)
	l.v.SetDefault("detection.exclude_domains", d.Detection.ExcludeDomains)
	l.v.SetDefault("detection.require_daily_reporting", d.Detection.RequireDailyReporting)
}
