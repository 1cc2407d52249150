package analytics

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"sensor-anomaly/internal/config"
	"sensor-anomaly/internal/metrics"
	"sensor-anomaly/internal/models"
)

// Analyzer runs detections against the effective config held by a Store and
// records Prometheus metrics for each run.
type Analyzer struct {
	store    *config.Store
	pipeline *Pipeline
	logger   *zap.Logger

	publish sync.Mutex // serializes reset-and-set of the last-run gauges
}

func NewAnalyzer(store *config.Store, logger *zap.Logger, workers int) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		store:    store,
		pipeline: NewPipeline(WithLogger(logger), WithWorkers(workers)),
		logger:   logger,
	}
}

// Analyze runs a detection with a snapshot of the effective config.
func (a *Analyzer) Analyze(readings []models.Reading) models.DetectionResult {
	return a.run(readings, a.store.Get())
}

// AnalyzeWith runs a detection with patch merged over the effective config
// for this run only. The stored config is not changed.
func (a *Analyzer) AnalyzeWith(readings []models.Reading, patch config.DetectionPatch) (models.DetectionResult, error) {
	cfg := a.store.Get().Apply(patch)
	if err := cfg.Validate(); err != nil {
		return models.DetectionResult{}, fmt.Errorf("invalid detection override: %w", err)
	}
	return a.run(readings, cfg), nil
}

// Config returns the effective detection config.
func (a *Analyzer) Config() config.DetectionConfig {
	return a.store.Get()
}

// UpdateConfig merges patch into the effective config. Results of earlier
// runs are not recomputed.
func (a *Analyzer) UpdateConfig(patch config.DetectionPatch) (config.DetectionConfig, error) {
	cfg, err := a.store.Update(patch)
	if err != nil {
		return cfg, err
	}
	a.logger.Info("detection config updated",
		zap.Float64("z_score_threshold", cfg.ZScoreThreshold),
		zap.Float64("iqr_multiplier", cfg.IQRMultiplier),
		zap.Int("min_data_points", cfg.MinDataPoints),
		zap.Bool("require_daily_reporting", cfg.RequireDailyReporting),
	)
	return cfg, nil
}

func (a *Analyzer) run(readings []models.Reading, cfg config.DetectionConfig) models.DetectionResult {
	result, report := a.pipeline.Run(readings, cfg)

	metrics.ReadingsNormalized.WithLabelValues("kept").Add(float64(report.Kept))
	metrics.ReadingsNormalized.WithLabelValues("dropped").Add(float64(report.Dropped))
	metrics.EntitiesSkipped.Add(float64(report.EntitiesSkipped))
	metrics.DetectionDuration.Observe(report.Duration.Seconds())
	a.publishLastRun(result)

	if result.Summary.CriticalCount > 0 {
		a.logger.Info("critical anomalies detected",
			zap.Int("critical", result.Summary.CriticalCount),
			zap.Int("total", result.Summary.TotalAnomalies),
		)
	}
	return result
}

func (a *Analyzer) publishLastRun(result models.DetectionResult) {
	type key struct {
		method   models.Method
		severity models.Severity
	}
	counts := make(map[key]int)
	for _, an := range result.Anomalies {
		counts[key{an.Method, an.Severity}]++
	}

	a.publish.Lock()
	defer a.publish.Unlock()
	metrics.EntitiesAnalyzed.Set(float64(result.Summary.TotalEntities))
	metrics.EntitiesHealthy.Set(float64(result.Summary.HealthyEntities))
	metrics.AnomaliesLastRun.Reset()
	for k, n := range counts {
		metrics.AnomaliesLastRun.WithLabelValues(string(k.method), string(k.severity)).Set(float64(n))
	}
}
