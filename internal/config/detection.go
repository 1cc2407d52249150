package config

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultZScoreThreshold = 2.5
	DefaultIQRMultiplier   = 1.5
	DefaultMinDataPoints   = 5
)

// DetectionConfig holds the thresholds of one detection run. A run works on
// its own copy; callers never share a DetectionConfig with a running pipeline.
type DetectionConfig struct {
	// ZScoreThreshold is the z-score above which a reading is flagged.
	ZScoreThreshold float64 `json:"zScoreThreshold" yaml:"zScoreThreshold" mapstructure:"z_score_threshold"`
	// IQRMultiplier is the Tukey fence multiplier.
	IQRMultiplier float64 `json:"iqrMultiplier" yaml:"iqrMultiplier" mapstructure:"iqr_multiplier"`
	// MinDataPoints is the minimum number of readings an entity needs before
	// its statistics are trusted.
	MinDataPoints int `json:"minDataPoints" yaml:"minDataPoints" mapstructure:"min_data_points"`
	// ExcludeStates are state values treated as invalid, matched
	// case-insensitively.
	ExcludeStates []string `json:"excludeStates" yaml:"excludeStates" mapstructure:"exclude_states"`
	// ExcludeDomains are entity-id prefixes (text before the first dot)
	// dropped entirely.
	ExcludeDomains []string `json:"excludeDomains" yaml:"excludeDomains" mapstructure:"exclude_domains"`
	// RequireDailyReporting marks entities with fewer than four readings in
	// the trailing 24h of the batch as unhealthy.
	RequireDailyReporting bool `json:"requireDailyReporting" yaml:"requireDailyReporting" mapstructure:"require_daily_reporting"`
}

// DefaultDetectionConfig returns the built-in thresholds.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		ZScoreThreshold: DefaultZScoreThreshold,
		IQRMultiplier:   DefaultIQRMultiplier,
		MinDataPoints:   DefaultMinDataPoints,
		ExcludeStates:   []string{"unknown", "unavailable"},
		ExcludeDomains:  []string{"automation", "scene", "script", "zone"},
	}
}

// Clone returns a deep copy.
func (c DetectionConfig) Clone() DetectionConfig {
	out := c
	out.ExcludeStates = append([]string(nil), c.ExcludeStates...)
	out.ExcludeDomains = append([]string(nil), c.ExcludeDomains...)
	return out
}

// Validate reports every invalid threshold. The returned error joins one
// *ValidationError per field.
func (c DetectionConfig) Validate() error {
	var errs []error
	if !PositiveFinite(c.ZScoreThreshold) {
		errs = append(errs, &ValidationError{
			Field:   "zScoreThreshold",
			Message: fmt.Sprintf("must be a finite number greater than 0, got %g", c.ZScoreThreshold),
		})
	}
	if !PositiveFinite(c.IQRMultiplier) {
		errs = append(errs, &ValidationError{
			Field:   "iqrMultiplier",
			Message: fmt.Sprintf("must be a finite number greater than 0, got %g", c.IQRMultiplier),
		})
	}
	if c.MinDataPoints < 1 {
		errs = append(errs, &ValidationError{
			Field:   "minDataPoints",
			Message: fmt.Sprintf("must be at least 1, got %d", c.MinDataPoints),
		})
	}
	return errors.Join(errs...)
}

// PositiveFinite reports whether v is a usable threshold. NaN fails every
// comparison, so it is rejected along with zero, negatives and infinities.
func PositiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// DetectionPatch is a partial DetectionConfig. Nil fields keep their current
// value.
type DetectionPatch struct {
	ZScoreThreshold       *float64  `json:"zScoreThreshold,omitempty" yaml:"zScoreThreshold,omitempty"`
	IQRMultiplier         *float64  `json:"iqrMultiplier,omitempty" yaml:"iqrMultiplier,omitempty"`
	MinDataPoints         *int      `json:"minDataPoints,omitempty" yaml:"minDataPoints,omitempty"`
	ExcludeStates         *[]string `json:"excludeStates,omitempty" yaml:"excludeStates,omitempty"`
	ExcludeDomains        *[]string `json:"excludeDomains,omitempty" yaml:"excludeDomains,omitempty"`
	RequireDailyReporting *bool     `json:"requireDailyReporting,omitempty" yaml:"requireDailyReporting,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p DetectionPatch) IsEmpty() bool {
	return p.ZScoreThreshold == nil && p.IQRMultiplier == nil && p.MinDataPoints == nil &&
		p.ExcludeStates == nil && p.ExcludeDomains == nil && p.RequireDailyReporting == nil
}

// Apply returns a copy of c with the patch merged in. c is left untouched.
func (c DetectionConfig) Apply(p DetectionPatch) DetectionConfig {
	out := c.Clone()
	if p.ZScoreThreshold != nil {
		out.ZScoreThreshold = *p.ZScoreThreshold
	}
	if p.IQRMultiplier != nil {
		out.IQRMultiplier = *p.IQRMultiplier
	}
	if p.MinDataPoints != nil {
		out.MinDataPoints = *p.MinDataPoints
	}
	if p.ExcludeStates != nil {
		out.ExcludeStates = append([]string(nil), (*p.ExcludeStates)...)
	}
	if p.ExcludeDomains != nil {
		out.ExcludeDomains = append([]string(nil), (*p.ExcludeDomains)...)
	}
	if p.RequireDailyReporting != nil {
		out.RequireDailyReporting = *p.RequireDailyReporting
	}
	return out
}
