package analytics

import (
	"math"
	"sort"
	"time"

	"sensor-anomaly/internal/config"
	"sensor-anomaly/internal/models"
)

const (
	dailyReportingWindow = 24 * time.Hour
	dailyReportingMin    = 4
)

// computeStats summarizes one entity's readings. readings must be sorted by
// timestamp and hold at least one element.
func computeStats(entityID string, readings []models.NormalizedReading, cfg config.DetectionConfig, batchLatest time.Time) models.EntityStats {
	n := len(readings)

	values := make([]float64, n)
	var sum float64
	for i, r := range readings {
		values[i] = r.Value
		sum += r.Value
	}
	mean := sum / float64(n)

	// Population variance: divide by n.
	var variance float64
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(n))

	sort.Float64s(values)
	q1 := values[int(math.Floor(float64(n)*0.25))]
	q3 := values[int(math.Floor(float64(n)*0.75))]

	first := readings[0].Timestamp
	last := readings[n-1].Timestamp
	daySpan := math.Max(last.Sub(first).Hours()/24, 1)

	return models.EntityStats{
		EntityID:           entityID,
		Mean:               mean,
		Median:             median(values),
		StdDev:             stdDev,
		Q1:                 q1,
		Q3:                 q3,
		IQR:                q3 - q1,
		DataPoints:         n,
		LastReporting:      last,
		ReportingFrequency: float64(n) / daySpan,
		IsHealthy:          isHealthy(readings, cfg, batchLatest),
	}
}

// median expects sorted values.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

func isHealthy(readings []models.NormalizedReading, cfg config.DetectionConfig, batchLatest time.Time) bool {
	if !cfg.RequireDailyReporting {
		return len(readings) >= cfg.MinDataPoints
	}
	cutoff := batchLatest.Add(-dailyReportingWindow)
	recent := 0
	for _, r := range readings {
		if !r.Timestamp.Before(cutoff) {
			recent++
		}
	}
	return recent >= dailyReportingMin
}
