package analytics

import (
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sensor-anomaly/internal/config"
	"sensor-anomaly/internal/metrics"
	"sensor-anomaly/internal/models"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	store, err := config.NewStore(config.DefaultDetectionConfig())
	require.NoError(t, err)
	return NewAnalyzer(store, zaptest.NewLogger(t), 2)
}

func ptr[T any](v T) *T { return &v }

func TestAnalyzerAnalyze(t *testing.T) {
	a := newTestAnalyzer(t)
	readings := evenSeries("sensor.temp", base, 10*time.Minute, append(cycling(20, 19, 21), 35)...)

	result := a.Analyze(readings)

	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, models.SeverityCritical, result.Anomalies[0].Severity)
}

func TestAnalyzerAnalyzeWithOverride(t *testing.T) {
	a := newTestAnalyzer(t)
	readings := evenSeries("sensor.temp", base, 10*time.Minute, append(cycling(20, 19, 21), 35)...)

	// z = 4.28 stays under a threshold of 5; IQR still flags it
	result, err := a.AnalyzeWith(readings, config.DetectionPatch{ZScoreThreshold: ptr(5.0)})
	require.NoError(t, err)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, models.MethodIQR, result.Anomalies[0].Method)

	assert.Equal(t, config.DefaultZScoreThreshold, a.Config().ZScoreThreshold, "override must not leak into the store")
}

func TestAnalyzerAnalyzeWithInvalidOverride(t *testing.T) {
	a := newTestAnalyzer(t)

	_, err := a.AnalyzeWith(nil, config.DetectionPatch{IQRMultiplier: ptr(-1.0)})

	require.Error(t, err)
	var verr *config.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "iqrMultiplier", verr.Field)
}

func TestAnalyzerUpdateConfig(t *testing.T) {
	a := newTestAnalyzer(t)

	cfg, err := a.UpdateConfig(config.DetectionPatch{
		MinDataPoints:         ptr(20),
		RequireDailyReporting: ptr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.MinDataPoints)
	assert.True(t, cfg.RequireDailyReporting)
	assert.Equal(t, cfg, a.Config())

	// entities now need 20 readings
	result := a.Analyze(evenSeries("sensor.a", base, time.Minute, cycling(10, 1, 2)...))
	assert.Empty(t, result.EntityStats)
}

func TestAnalyzerUpdateConfigRejectsInvalid(t *testing.T) {
	a := newTestAnalyzer(t)
	before := a.Config()

	_, err := a.UpdateConfig(config.DetectionPatch{
		ZScoreThreshold: ptr(0.0),
		MinDataPoints:   ptr(0),
	})

	require.Error(t, err)
	var verr *config.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "zScoreThreshold")
	assert.Contains(t, err.Error(), "minDataPoints")
	assert.Equal(t, before, a.Config())
}

func lastRunAnomalies(t *testing.T, method models.Method, severity models.Severity) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.AnomaliesLastRun.WithLabelValues(string(method), string(severity)).Write(&m))
	return m.GetGauge().GetValue()
}

func TestAnalyzerLastRunGaugeDoesNotGrowWithPolling(t *testing.T) {
	a := newTestAnalyzer(t)
	spike := evenSeries("sensor.temp", base, 10*time.Minute, append(cycling(20, 19, 21), 35)...)

	a.Analyze(spike)
	a.Analyze(spike)
	assert.Equal(t, 1.0, lastRunAnomalies(t, models.MethodZScore, models.SeverityCritical))

	a.Analyze(evenSeries("sensor.temp", base, 10*time.Minute, cycling(20, 19, 21)...))
	assert.Zero(t, lastRunAnomalies(t, models.MethodZScore, models.SeverityCritical))
}
