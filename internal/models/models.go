package models

import "time"

// Reading is one raw observation of one sensor, as delivered by the data
// source. Value is either a JSON number or a string.
type Reading struct {
	Timestamp time.Time   `json:"timestamp"`
	EntityID  string      `json:"entity_id"`
	Value     interface{} `json:"value"`
	State     string      `json:"state"`
}

// NormalizedReading is a Reading with a resolved, finite numeric value.
type NormalizedReading struct {
	Timestamp time.Time `json:"timestamp"`
	EntityID  string    `json:"entity_id"`
	Value     float64   `json:"value"`
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so that low < medium < high < critical.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

type AnomalyType string

const (
	AnomalyTypeSpike   AnomalyType = "spike"
	AnomalyTypeDrop    AnomalyType = "drop"
	AnomalyTypeMissing AnomalyType = "missing"
	AnomalyTypeStuck   AnomalyType = "stuck"
)

// Method identifies the detector that produced an anomaly.
type Method string

const (
	MethodZScore      Method = "z-score"
	MethodIQR         Method = "iqr"
	MethodMissingData Method = "missing-data"
	MethodPattern     Method = "pattern"
)

// Methods lists every detection method in pooling order.
var Methods = []Method{MethodZScore, MethodIQR, MethodMissingData, MethodPattern}

type Anomaly struct {
	ID            string      `json:"id"`
	Timestamp     time.Time   `json:"timestamp"`
	EntityID      string      `json:"entity_id"`
	Value         float64     `json:"value"`
	ExpectedValue float64     `json:"expectedValue"`
	Deviation     float64     `json:"deviation"`
	Severity      Severity    `json:"severity"`
	Type          AnomalyType `json:"type"`
	Description   string      `json:"description"`
	Confidence    float64     `json:"confidence"`
	Method        Method      `json:"method"`
}

type EntityStats struct {
	EntityID           string    `json:"entity_id"`
	Mean               float64   `json:"mean"`
	Median             float64   `json:"median"`
	StdDev             float64   `json:"stdDev"`
	Q1                 float64   `json:"q1"`
	Q3                 float64   `json:"q3"`
	IQR                float64   `json:"iqr"`
	DataPoints         int       `json:"dataPoints"`
	LastReporting      time.Time `json:"lastReporting"`
	ReportingFrequency float64   `json:"reportingFrequency"`
	IsHealthy          bool      `json:"isHealthy"`
}

type Summary struct {
	TotalEntities   int              `json:"totalEntities"`
	HealthyEntities int              `json:"healthyEntities"`
	TotalAnomalies  int              `json:"totalAnomalies"`
	CriticalCount   int              `json:"criticalCount"`
	HighCount       int              `json:"highCount"`
	ByMethod        map[Method]int   `json:"byMethod"`
	BySeverity      map[Severity]int `json:"bySeverity"`
}

// DetectionResult is everything one detection run hands to the presentation
// layer.
type DetectionResult struct {
	Anomalies   []Anomaly     `json:"anomalies"`
	EntityStats []EntityStats `json:"entityStats"`
	Summary     Summary       `json:"summary"`
}
