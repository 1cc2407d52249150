package analytics

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"sensor-anomaly/internal/config"
	"sensor-anomaly/internal/models"
)

// stateLexicon maps boolean-like states to a numeric level.
var stateLexicon = map[string]float64{
	"on":     1,
	"open":   1,
	"home":   1,
	"true":   1,
	"off":    0,
	"closed": 0,
	"away":   0,
	"false":  0,
}

type normalizer struct {
	excludeStates  map[string]struct{}
	excludeDomains map[string]struct{}
}

func newNormalizer(cfg config.DetectionConfig) normalizer {
	n := normalizer{
		excludeStates:  make(map[string]struct{}, len(cfg.ExcludeStates)),
		excludeDomains: make(map[string]struct{}, len(cfg.ExcludeDomains)),
	}
	for _, s := range cfg.ExcludeStates {
		n.excludeStates[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	for _, d := range cfg.ExcludeDomains {
		n.excludeDomains[strings.TrimSpace(d)] = struct{}{}
	}
	return n
}

// Normalize validates raw readings and resolves each into a finite numeric
// value. Unusable readings are dropped; order is preserved.
func Normalize(readings []models.Reading, cfg config.DetectionConfig) []models.NormalizedReading {
	return newNormalizer(cfg).normalizeAll(readings)
}

func (n normalizer) normalizeAll(readings []models.Reading) []models.NormalizedReading {
	out := make([]models.NormalizedReading, 0, len(readings))
	for _, r := range readings {
		if nr, ok := n.normalize(r); ok {
			out = append(out, nr)
		}
	}
	return out
}

func (n normalizer) normalize(r models.Reading) (models.NormalizedReading, bool) {
	if r.EntityID == "" || r.Timestamp.IsZero() {
		return models.NormalizedReading{}, false
	}
	if _, excluded := n.excludeStates[strings.ToLower(strings.TrimSpace(r.State))]; excluded {
		return models.NormalizedReading{}, false
	}
	if _, excluded := n.excludeDomains[domainOf(r.EntityID)]; excluded {
		return models.NormalizedReading{}, false
	}

	value, ok := resolveValue(r.Value, r.State)
	if !ok {
		return models.NormalizedReading{}, false
	}
	return models.NormalizedReading{
		Timestamp: r.Timestamp,
		EntityID:  r.EntityID,
		Value:     value,
	}, true
}

// domainOf returns the entity-id prefix before the first dot.
func domainOf(entityID string) string {
	if i := strings.IndexByte(entityID, '.'); i >= 0 {
		return entityID[:i]
	}
	return entityID
}

// resolveValue tries, in order: a numeric value, a numeric string value, a
// numeric state, and the boolean-like state lexicon.
func resolveValue(value interface{}, state string) (float64, bool) {
	if f, ok := numericValue(value); ok {
		return f, true
	}
	if s, ok := value.(string); ok {
		if f, ok := parseFinite(s); ok {
			return f, true
		}
	}
	if f, ok := parseFinite(state); ok {
		return f, true
	}
	if f, ok := stateLexicon[strings.ToLower(strings.TrimSpace(state))]; ok {
		return f, true
	}
	return 0, false
}

func numericValue(value interface{}) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	return f, isFinite(f)
}

func parseFinite(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(f) {
		return 0, false
	}
	return f, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
