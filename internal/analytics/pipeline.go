package analytics

import (
	"fmt"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sensor-anomaly/internal/config"
	"sensor-anomaly/internal/models"
)

// Pipeline runs normalization, per-entity statistics, the four detectors,
// deduplication and ranking over one batch of readings. It holds no state
// between runs and is safe for concurrent use.
type Pipeline struct {
	logger    *zap.Logger
	workers   int
	detectors []detector
}

type Option func(*Pipeline)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// withDetectors replaces the detector set, in run order.
func withDetectors(ds ...detector) Option {
	return func(p *Pipeline) {
		p.detectors = ds
	}
}

// WithWorkers bounds how many entities are processed at once. n <= 0 means
// one worker per CPU.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:  zap.NewNop(),
		workers: runtime.NumCPU(),
	}
	for _, m := range models.Methods {
		p.detectors = append(p.detectors, detectorFor(m))
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Report describes what a run did with its input, for logging and metrics.
type Report struct {
	Received        int
	Kept            int
	Dropped         int
	EntitiesSkipped int
	Duration        time.Duration
}

// Detect runs the default pipeline. It always returns a well-formed result.
func Detect(readings []models.Reading, cfg config.DetectionConfig) models.DetectionResult {
	result, _ := NewPipeline().Run(readings, cfg)
	return result
}

type entityResult struct {
	stats     *models.EntityStats
	anomalies []models.Anomaly
}

// Run executes one detection. cfg is copied on entry.
func (p *Pipeline) Run(readings []models.Reading, cfg config.DetectionConfig) (models.DetectionResult, Report) {
	start := time.Now()
	cfg = p.sanitize(cfg.Clone())

	normalized := newNormalizer(cfg).normalizeAll(readings)
	report := Report{
		Received: len(readings),
		Kept:     len(normalized),
		Dropped:  len(readings) - len(normalized),
	}
	p.logger.Debug("readings normalized",
		zap.Int("kept", report.Kept),
		zap.Int("dropped", report.Dropped),
	)

	groups, ids, latest := groupByEntity(normalized)

	results := make([]entityResult, len(ids))
	skipped := make([]bool, len(ids))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			res, err := p.processEntity(id, groups[id], cfg, latest)
			if err != nil {
				p.logger.Warn("entity skipped", zap.String("entity_id", id), zap.Error(err))
				skipped[i] = true
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	stats := make([]models.EntityStats, 0, len(ids))
	var pooled []models.Anomaly
	for i, res := range results {
		if skipped[i] {
			report.EntitiesSkipped++
		}
		if res.stats == nil {
			continue
		}
		stats = append(stats, *res.stats)
		pooled = append(pooled, res.anomalies...)
	}

	anomalies := Rank(Deduplicate(pooled))
	report.Duration = time.Since(start)

	p.logger.Debug("detection finished",
		zap.Int("entities", len(stats)),
		zap.Int("candidates", len(pooled)),
		zap.Int("anomalies", len(anomalies)),
		zap.Duration("duration", report.Duration),
	)

	return models.DetectionResult{
		Anomalies:   anomalies,
		EntityStats: stats,
		Summary:     Summarize(stats, anomalies),
	}, report
}

// processEntity computes statistics and runs every detector for one entity.
// A panic inside is turned into an error so one bad entity cannot abort the
// batch.
func (p *Pipeline) processEntity(id string, readings []models.NormalizedReading, cfg config.DetectionConfig, latest time.Time) (res entityResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = entityResult{}, fmt.Errorf("entity %s: %v", id, r)
		}
	}()

	if len(readings) < cfg.MinDataPoints {
		p.logger.Debug("entity below minimum data points",
			zap.String("entity_id", id),
			zap.Int("data_points", len(readings)),
			zap.Int("min_data_points", cfg.MinDataPoints),
		)
		return entityResult{}, nil
	}

	sorted := make([]models.NormalizedReading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	stats := computeStats(id, sorted, cfg, latest)
	series := entitySeries{ID: id, Readings: sorted, Stats: stats}

	var anomalies []models.Anomaly
	for _, d := range p.detectors {
		found := d.detect(series, cfg)
		if len(found) > 0 {
			p.logger.Debug("anomalies found",
				zap.String("entity_id", id),
				zap.String("method", string(d.method())),
				zap.Int("count", len(found)),
			)
		}
		anomalies = append(anomalies, found...)
	}
	return entityResult{stats: &stats, anomalies: anomalies}, nil
}

// groupByEntity partitions readings by entity. ids come back sorted so the
// pooling order, and therefore deduplication, does not depend on map order or
// scheduling.
func groupByEntity(readings []models.NormalizedReading) (map[string][]models.NormalizedReading, []string, time.Time) {
	groups := make(map[string][]models.NormalizedReading)
	var latest time.Time
	for _, r := range readings {
		groups[r.EntityID] = append(groups[r.EntityID], r)
		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return groups, ids, latest
}

// sanitize replaces invalid thresholds with defaults. Store.Update rejects
// such values; this covers callers that build a DetectionConfig by hand.
func (p *Pipeline) sanitize(cfg config.DetectionConfig) config.DetectionConfig {
	err := cfg.Validate()
	if err == nil {
		return cfg
	}
	p.logger.Warn("invalid detection config, falling back to defaults for invalid fields", zap.Error(err))
	if !config.PositiveFinite(cfg.ZScoreThreshold) {
		cfg.ZScoreThreshold = config.DefaultZScoreThreshold
	}
	if !config.PositiveFinite(cfg.IQRMultiplier) {
		cfg.IQRMultiplier = config.DefaultIQRMultiplier
	}
	if cfg.MinDataPoints < 1 {
		cfg.MinDataPoints = config.DefaultMinDataPoints
	}
	return cfg
}
