package analytics

import (
	"sort"
	"time"

	"sensor-anomaly/internal/models"
)

type dedupeKey struct {
	entityID string
	typ      models.AnomalyType
	hour     int64
}

// Deduplicate keeps the first anomaly per (entity, type, clock hour); later
// ones are dropped even when another method produced them.
func Deduplicate(anomalies []models.Anomaly) []models.Anomaly {
	seen := make(map[dedupeKey]struct{}, len(anomalies))
	out := make([]models.Anomaly, 0, len(anomalies))
	for _, a := range anomalies {
		key := dedupeKey{
			entityID: a.EntityID,
			typ:      a.Type,
			hour:     a.Timestamp.UTC().Truncate(time.Hour).Unix(),
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Rank returns a copy ordered by severity (critical first), then by timestamp
// (most recent first). Ties fall back to the id so the order is total.
func Rank(anomalies []models.Anomaly) []models.Anomaly {
	out := make([]models.Anomaly, len(anomalies))
	copy(out, anomalies)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
