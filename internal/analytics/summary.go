package analytics

import "sensor-anomaly/internal/models"

// Summarize aggregates the counts a dashboard shows next to the anomaly list.
// Every method and severity is present in the maps, zero or not.
func Summarize(stats []models.EntityStats, anomalies []models.Anomaly) models.Summary {
	s := models.Summary{
		TotalEntities:  len(stats),
		TotalAnomalies: len(anomalies),
		ByMethod:       make(map[models.Method]int, len(models.Methods)),
		BySeverity:     make(map[models.Severity]int, 4),
	}
	for _, m := range models.Methods {
		s.ByMethod[m] = 0
	}
	for _, sev := range []models.Severity{models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical} {
		s.BySeverity[sev] = 0
	}

	for _, st := range stats {
		if st.IsHealthy {
			s.HealthyEntities++
		}
	}
	for _, a := range anomalies {
		s.ByMethod[a.Method]++
		s.BySeverity[a.Severity]++
		switch a.Severity {
		case models.SeverityCritical:
			s.CriticalCount++
		case models.SeverityHigh:
			s.HighCount++
		}
	}
	return s
}
