package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

// chdir keeps godotenv from picking up a .env of the developer's checkout.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestDefaultServiceConfigIsValid(t *testing.T) {
	cfg := DefaultServiceConfig()

	assert.Empty(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 48*time.Hour, cfg.Buffer.TTL)
	assert.Equal(t, DefaultDetectionConfig(), cfg.Detection)
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*ServiceConfig)
		wantField string
	}{
		{name: "port too high", mutate: func(c *ServiceConfig) { c.Server.Port = 70000 }, wantField: "server.port"},
		{name: "zero queue", mutate: func(c *ServiceConfig) { c.Server.QueueSize = 0 }, wantField: "server.queue_size"},
		{name: "redis address", mutate: func(c *ServiceConfig) { c.Redis.Enabled = true; c.Redis.Addr = "localhost" }, wantField: "redis.addr"},
		{name: "buffer size", mutate: func(c *ServiceConfig) { c.Buffer.MaxReadings = 0 }, wantField: "buffer.max_readings"},
		{name: "kafka brokers", mutate: func(c *ServiceConfig) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }, wantField: "kafka.brokers"},
		{name: "kafka topic", mutate: func(c *ServiceConfig) { c.Kafka.Enabled = true; c.Kafka.Topic = "" }, wantField: "kafka.topic"},
		{name: "log level", mutate: func(c *ServiceConfig) { c.Logging.Level = "verbose" }, wantField: "logging.level"},
		{name: "log format", mutate: func(c *ServiceConfig) { c.Logging.Format = "xml" }, wantField: "logging.format"},
		{name: "workers", mutate: func(c *ServiceConfig) { c.Pipeline.Workers = -1 }, wantField: "pipeline.workers"},
		{name: "detection", mutate: func(c *ServiceConfig) { c.Detection.IQRMultiplier = 0 }, wantField: "iqrMultiplier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServiceConfig()
			tt.mutate(cfg)

			errs := cfg.Validate()
			require.Len(t, errs, 1)
			var verr *ValidationError
			require.True(t, errors.As(errs[0], &verr))
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestDetectionConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultDetectionConfig().Validate())

	cfg := DetectionConfig{ZScoreThreshold: -1, IQRMultiplier: 0, MinDataPoints: 0}
	err := cfg.Validate()
	require.Error(t, err)

	var fields []string
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var verr *ValidationError
		require.True(t, errors.As(e, &verr))
		fields = append(fields, verr.Field)
	}
	assert.Equal(t, []string{"zScoreThreshold", "iqrMultiplier", "minDataPoints"}, fields)
}

func TestDetectionConfigValidateNonFinite(t *testing.T) {
	tests := []struct {
		name  string
		z     float64
		iqr   float64
		field string
	}{
		{name: "NaN z-score", z: math.NaN(), iqr: 1.5, field: "zScoreThreshold"},
		{name: "+Inf z-score", z: math.Inf(1), iqr: 1.5, field: "zScoreThreshold"},
		{name: "-Inf z-score", z: math.Inf(-1), iqr: 1.5, field: "zScoreThreshold"},
		{name: "NaN IQR", z: 2.5, iqr: math.NaN(), field: "iqrMultiplier"},
		{name: "+Inf IQR", z: 2.5, iqr: math.Inf(1), field: "iqrMultiplier"},
		{name: "-Inf IQR", z: 2.5, iqr: math.Inf(-1), field: "iqrMultiplier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDetectionConfig()
			cfg.ZScoreThreshold = tt.z
			cfg.IQRMultiplier = tt.iqr

			err := cfg.Validate()
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Contains(t, verr.Message, "finite")
		})
	}
}

func TestDetectionConfigApply(t *testing.T) {
	base := DefaultDetectionConfig()

	got := base.Apply(DetectionPatch{
		ZScoreThreshold: ptr(3.0),
		ExcludeDomains:  ptr([]string{"light"}),
	})

	assert.Equal(t, 3.0, got.ZScoreThreshold)
	assert.Equal(t, []string{"light"}, got.ExcludeDomains)
	assert.Equal(t, base.IQRMultiplier, got.IQRMultiplier)
	assert.Equal(t, base.ExcludeStates, got.ExcludeStates)
	// receiver untouched
	assert.Equal(t, DefaultDetectionConfig(), base)

	// an explicit empty list clears the exclusions
	cleared := base.Apply(DetectionPatch{ExcludeStates: ptr([]string{})})
	assert.Empty(t, cleared.ExcludeStates)
}

func TestDetectionConfigCloneIsDeep(t *testing.T) {
	cfg := DefaultDetectionConfig()
	clone := cfg.Clone()
	clone.ExcludeStates[0] = "changed"
	assert.Equal(t, "unknown", cfg.ExcludeStates[0])
}

func TestDetectionPatchIsEmpty(t *testing.T) {
	assert.True(t, DetectionPatch{}.IsEmpty())
	assert.False(t, DetectionPatch{RequireDailyReporting: ptr(false)}.IsEmpty())
}

func TestStore(t *testing.T) {
	_, err := NewStore(DetectionConfig{})
	require.Error(t, err)

	store, err := NewStore(DefaultDetectionConfig())
	require.NoError(t, err)

	snapshot := store.Get()
	snapshot.ExcludeDomains[0] = "mutated"
	assert.Equal(t, "automation", store.Get().ExcludeDomains[0])

	updated, err := store.Update(DetectionPatch{IQRMultiplier: ptr(3.0)})
	require.NoError(t, err)
	assert.Equal(t, 3.0, updated.IQRMultiplier)
	assert.Equal(t, 3.0, store.Get().IQRMultiplier)

	current, err := store.Update(DetectionPatch{IQRMultiplier: ptr(-3.0), ZScoreThreshold: ptr(9.0)})
	require.Error(t, err)
	assert.Equal(t, 3.0, current.IQRMultiplier)
	assert.Equal(t, DefaultZScoreThreshold, store.Get().ZScoreThreshold, "rejected patch is not partially applied")

	_, err = store.Update(DetectionPatch{ZScoreThreshold: ptr(math.NaN())})
	require.Error(t, err)
	assert.Equal(t, DefaultZScoreThreshold, store.Get().ZScoreThreshold)

	require.Error(t, store.Replace(DetectionConfig{}))
	replacement := DefaultDetectionConfig()
	replacement.MinDataPoints = 42
	require.NoError(t, store.Replace(replacement))
	assert.Equal(t, 42, store.Get().MinDataPoints)
}

func TestStoreConcurrentAccess(t *testing.T) {
	store, err := NewStore(DefaultDetectionConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_, _ = store.Update(DetectionPatch{MinDataPoints: ptr(n + 1)})
		}(i)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Get().Validate())
		}()
	}
	wg.Wait()
}

func TestLoaderDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := NewLoader("").Load()
	require.NoError(t, err)

	want := DefaultServiceConfig()
	assert.Equal(t, want.Server, cfg.Server)
	assert.Equal(t, want.Buffer, cfg.Buffer)
	assert.Equal(t, want.Detection, cfg.Detection)
}

func TestLoaderFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
buffer:
  ttl: 12h
detection:
  z_score_threshold: 3.5
  exclude_domains: [light]
  require_daily_reporting: true
`), 0o600))
	t.Setenv("ANOMALY_SERVER_QUEUE_SIZE", "50")
	t.Setenv("ANOMALY_LOGGING_LEVEL", "debug")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Server.QueueSize)
	assert.Equal(t, 12*time.Hour, cfg.Buffer.TTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 3.5, cfg.Detection.ZScoreThreshold)
	assert.Equal(t, []string{"light"}, cfg.Detection.ExcludeDomains)
	assert.True(t, cfg.Detection.RequireDailyReporting)
	assert.Equal(t, DefaultIQRMultiplier, cfg.Detection.IQRMultiplier)
}

func TestLoaderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detection:\n  min_data_points: 0\n"), 0o600))

	_, err := NewLoader(path).Load()
	require.Error(t, err)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestLoaderRejectsNaNThreshold(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detection:\n  z_score_threshold: .nan\n"), 0o600))

	_, err := NewLoader(path).Load()
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "zScoreThreshold", verr.Field)
}

func TestLoaderMissingFileFallsBackToDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}
