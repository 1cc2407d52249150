package analytics

import (
	"time"

	"sensor-anomaly/internal/models"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// evenSeries builds readings spaced by step starting at start.
func evenSeries(entity string, start time.Time, step time.Duration, values ...float64) []models.Reading {
	out := make([]models.Reading, len(values))
	for i, v := range values {
		out[i] = models.Reading{
			Timestamp: start.Add(time.Duration(i) * step),
			EntityID:  entity,
			Value:     v,
		}
	}
	return out
}

func normalizedOf(readings []models.Reading) []models.NormalizedReading {
	out := make([]models.NormalizedReading, len(readings))
	for i, r := range readings {
		out[i] = models.NormalizedReading{Timestamp: r.Timestamp, EntityID: r.EntityID, Value: r.Value.(float64)}
	}
	return out
}

// cycling returns n values repeating the pattern, so no two neighbours are
// equal when the pattern has distinct adjacent values.
func cycling(n int, pattern ...float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = pattern[i%len(pattern)]
	}
	return out
}

func ofType(anomalies []models.Anomaly, typ models.AnomalyType) []models.Anomaly {
	var out []models.Anomaly
	for _, a := range anomalies {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func ofEntity(anomalies []models.Anomaly, entity string) []models.Anomaly {
	var out []models.Anomaly
	for _, a := range anomalies {
		if a.EntityID == entity {
			out = append(out, a)
		}
	}
	return out
}
