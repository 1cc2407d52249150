package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"sensor-anomaly/internal/config"
	"sensor-anomaly/internal/models"
)

const (
	gapToleranceFactor = 3.0

	stuckMinRun       = 10
	stuckMinReadings  = 5
	stuckFullRunScore = 20.0
)

// entitySeries is the per-entity input every detector shares.
type entitySeries struct {
	ID       string
	Readings []models.NormalizedReading // sorted by timestamp
	Stats    models.EntityStats
}

// detector is one detection strategy. The set is closed: see detectorFor.
type detector interface {
	method() models.Method
	detect(s entitySeries, cfg config.DetectionConfig) []models.Anomaly
}

// detectorFor maps every Method to its strategy.
func detectorFor(m models.Method) detector {
	switch m {
	case models.MethodZScore:
		return zScoreDetector{}
	case models.MethodIQR:
		return iqrDetector{}
	case models.MethodMissingData:
		return gapDetector{}
	case models.MethodPattern:
		return stuckDetector{}
	}
	panic(fmt.Sprintf("analytics: unknown detection method %q", m))
}

var anomalyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:sensor-anomaly:anomaly"))

// anomalyID is stable for a given (method, entity, timestamp).
func anomalyID(m models.Method, entityID string, ts time.Time) string {
	name := string(m) + "|" + entityID + "|" + ts.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(anomalyNamespace, []byte(name)).String()
}

func stamp(a models.Anomaly) models.Anomaly {
	a.ID = anomalyID(a.Method, a.EntityID, a.Timestamp)
	return a
}

// clamp01 bounds v to [0, 1]; NaN maps to 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(v, 1))
}

type zScoreDetector struct{}

func (zScoreDetector) method() models.Method { return models.MethodZScore }

func (zScoreDetector) detect(s entitySeries, cfg config.DetectionConfig) []models.Anomaly {
	st := s.Stats
	if st.StdDev == 0 {
		return nil
	}

	var out []models.Anomaly
	for _, r := range s.Readings {
		deviation := math.Abs(r.Value - st.Mean)
		z := deviation / st.StdDev
		if z <= cfg.ZScoreThreshold {
			continue
		}

		typ, direction := models.AnomalyTypeDrop, "below"
		if r.Value > st.Mean {
			typ, direction = models.AnomalyTypeSpike, "above"
		}
		out = append(out, stamp(models.Anomaly{
			Timestamp:     r.Timestamp,
			EntityID:      s.ID,
			Value:         r.Value,
			ExpectedValue: st.Mean,
			Deviation:     deviation,
			Severity:      zScoreSeverity(z),
			Type:          typ,
			Description:   fmt.Sprintf("Value %.2f is %.2f standard deviations %s the mean of %.2f", r.Value, z, direction, st.Mean),
			Confidence:    clamp01(z / cfg.ZScoreThreshold),
			Method:        models.MethodZScore,
		}))
	}
	return out
}

func zScoreSeverity(z float64) models.Severity {
	switch {
	case z > 4:
		return models.SeverityCritical
	case z > 3.5:
		return models.SeverityHigh
	case z > 3:
		return models.SeverityMedium
	}
	return models.SeverityLow
}

type iqrDetector struct{}

func (iqrDetector) method() models.Method { return models.MethodIQR }

func (iqrDetector) detect(s entitySeries, cfg config.DetectionConfig) []models.Anomaly {
	st := s.Stats
	if st.IQR == 0 {
		return nil
	}
	lower := st.Q1 - cfg.IQRMultiplier*st.IQR
	upper := st.Q3 + cfg.IQRMultiplier*st.IQR

	var out []models.Anomaly
	for _, r := range s.Readings {
		var (
			deviation float64
			typ       models.AnomalyType
			bound     string
		)
		switch {
		case r.Value > upper:
			deviation, typ, bound = r.Value-upper, models.AnomalyTypeSpike, fmt.Sprintf("above the upper fence %.2f", upper)
		case r.Value < lower:
			deviation, typ, bound = lower-r.Value, models.AnomalyTypeDrop, fmt.Sprintf("below the lower fence %.2f", lower)
		default:
			continue
		}

		out = append(out, stamp(models.Anomaly{
			Timestamp:     r.Timestamp,
			EntityID:      s.ID,
			Value:         r.Value,
			ExpectedValue: st.Median,
			Deviation:     deviation,
			Severity:      iqrSeverity(deviation / st.IQR),
			Type:          typ,
			Description:   fmt.Sprintf("Value %.2f is %.2f %s (IQR %.2f)", r.Value, deviation, bound, st.IQR),
			Confidence:    clamp01(deviation / (st.IQR * cfg.IQRMultiplier)),
			Method:        models.MethodIQR,
		}))
	}
	return out
}

func iqrSeverity(ratio float64) models.Severity {
	switch {
	case ratio > 3:
		return models.SeverityCritical
	case ratio > 2.5:
		return models.SeverityHigh
	case ratio > 2:
		return models.SeverityMedium
	}
	return models.SeverityLow
}

// gapDetector reports reporting gaps. Value 0 / expected 1 stand for
// "reading absent" / "reading present".
type gapDetector struct{}

func (gapDetector) method() models.Method { return models.MethodMissingData }

func (gapDetector) detect(s entitySeries, _ config.DetectionConfig) []models.Anomaly {
	rs := s.Readings
	if len(rs) < 2 {
		return nil
	}

	var total time.Duration
	for i := 1; i < len(rs); i++ {
		total += rs[i].Timestamp.Sub(rs[i-1].Timestamp)
	}
	avgInterval := float64(total) / float64(len(rs)-1)
	expected := avgInterval * gapToleranceFactor
	if expected <= 0 {
		return nil
	}

	var out []models.Anomaly
	for i := 1; i < len(rs); i++ {
		gap := rs[i].Timestamp.Sub(rs[i-1].Timestamp)
		if float64(gap) <= expected {
			continue
		}
		out = append(out, stamp(models.Anomaly{
			Timestamp:     rs[i-1].Timestamp,
			EntityID:      s.ID,
			Value:         0,
			ExpectedValue: 1,
			Deviation:     gap.Hours(),
			Severity:      durationSeverity(gap),
			Type:          models.AnomalyTypeMissing,
			Description: fmt.Sprintf("No readings for %s (expected roughly every %s)",
				gap.Round(time.Second), time.Duration(expected).Round(time.Second)),
			Confidence: clamp01(float64(gap)/expected - 1),
			Method:     models.MethodMissingData,
		}))
	}
	return out
}

// durationSeverity grades gaps and stuck runs; both boundaries are exclusive.
func durationSeverity(d time.Duration) models.Severity {
	switch {
	case d > 24*time.Hour:
		return models.SeverityHigh
	case d > 6*time.Hour:
		return models.SeverityMedium
	}
	return models.SeverityLow
}

// stuckDetector reports runs of exactly equal consecutive values.
type stuckDetector struct{}

func (stuckDetector) method() models.Method { return models.MethodPattern }

func (stuckDetector) detect(s entitySeries, _ config.DetectionConfig) []models.Anomaly {
	rs := s.Readings
	if len(rs) < stuckMinReadings {
		return nil
	}

	var out []models.Anomaly
	start := 0
	for i := 1; i <= len(rs); i++ {
		if i < len(rs) && rs[i].Value == rs[start].Value {
			continue
		}
		if run := i - start; run >= stuckMinRun {
			first, last := rs[start], rs[i-1]
			span := last.Timestamp.Sub(first.Timestamp)
			out = append(out, stamp(models.Anomaly{
				Timestamp:     first.Timestamp,
				EntityID:      s.ID,
				Value:         first.Value,
				ExpectedValue: first.Value,
				Deviation:     float64(run),
				Severity:      durationSeverity(span),
				Type:          models.AnomalyTypeStuck,
				Description:   fmt.Sprintf("Value stuck at %.2f for %d consecutive readings over %s", first.Value, run, span.Round(time.Second)),
				Confidence:    clamp01(float64(run) / stuckFullRunScore),
				Method:        models.MethodPattern,
			}))
		}
		start = i
	}
	return out
}
