package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// Every threshold in the fall, audio, and geo pipelines is an empirically
// chosen constant, so all of them live here rather than as hardcoded
// values. Fields omitted from the JSON retain their defaults, so partial
// configs are safe.
type TuningConfig struct {
	// Fall detector params
	FreeFallThreshold          *float64 `json:"free_fall_threshold,omitempty"`           // m/s²
	ImpactThreshold            *float64 `json:"impact_threshold,omitempty"`              // m/s²
	FreeFallMinDuration        *string  `json:"free_fall_min_duration,omitempty"`        // duration string like "80ms"
	FreeFallMaxDuration        *string  `json:"free_fall_max_duration,omitempty"`        // duration string like "600ms"
	ImpactWindow               *string  `json:"impact_window,omitempty"`                 // duration string like "800ms"
	StillnessDuration          *string  `json:"stillness_duration,omitempty"`            // duration string like "1500ms"
	StillnessVarianceThreshold *float64 `json:"stillness_variance_threshold,omitempty"`  // (m/s²)²
	SmoothingAlpha             *float64 `json:"smoothing_alpha,omitempty"`               // EMA factor in (0,1]
	MagnitudeRingCapacity      *int     `json:"magnitude_ring_capacity,omitempty"`       // variance window
	ConfidenceImpactWeight     *float64 `json:"confidence_impact_weight,omitempty"`      // blend weight
	ConfidenceVarianceWeight   *float64 `json:"confidence_variance_weight,omitempty"`    // blend weight
	ConfidenceStillnessWeight  *float64 `json:"confidence_stillness_weight,omitempty"`   // blend weight
	ImpactConfidenceReference  *float64 `json:"impact_confidence_reference,omitempty"`   // peak that maps to full impact confidence

	// Audio feature extractor params
	FFTSize         *int     `json:"fft_size,omitempty"`
	HopLength       *int     `json:"hop_length,omitempty"`
	MelBins         *int     `json:"mel_bins,omitempty"`
	AudioSampleRate *int     `json:"audio_sample_rate,omitempty"` // Hz
	MelFreqMin      *float64 `json:"mel_freq_min,omitempty"`      // Hz
	MelFreqMax      *float64 `json:"mel_freq_max,omitempty"`      // Hz

	// Geo cluster engine params
	DBSCANEpsDegrees       *float64 `json:"dbscan_eps_degrees,omitempty"` // converted to metres via ×111000
	DBSCANMinPoints        *int     `json:"dbscan_min_points,omitempty"`
	MinClusterRadiusMeters *float64 `json:"min_cluster_radius_meters,omitempty"`
	RiskRecencyWeight      *float64 `json:"risk_recency_weight,omitempty"`
	RiskSeverityWeight     *float64 `json:"risk_severity_weight,omitempty"`
	RiskDensityWeight      *float64 `json:"risk_density_weight,omitempty"`
	RecencyDecayDays       *float64 `json:"recency_decay_days,omitempty"`
	DensitySaturationCount *int     `json:"density_saturation_count,omitempty"`
	ClusterCacheTTL        *string  `json:"cluster_cache_ttl,omitempty"` // duration string like "5m"
	EventRetentionLimit    *int     `json:"event_retention_limit,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.SmoothingAlpha != nil {
		if *c.SmoothingAlpha <= 0 || *c.SmoothingAlpha > 1 {
			return fmt.Errorf("smoothing_alpha must be in (0,1], got %f", *c.SmoothingAlpha)
		}
	}

	if c.FreeFallThreshold != nil && *c.FreeFallThreshold <= 0 {
		return fmt.Errorf("free_fall_threshold must be positive, got %f", *c.FreeFallThreshold)
	}

	if c.MagnitudeRingCapacity != nil && *c.MagnitudeRingCapacity < 2 {
		return fmt.Errorf("magnitude_ring_capacity must be at least 2, got %d", *c.MagnitudeRingCapacity)
	}

	for name, field := range map[string]*string{
		"free_fall_min_duration": c.FreeFallMinDuration,
		"free_fall_max_duration": c.FreeFallMaxDuration,
		"impact_window":          c.ImpactWindow,
		"stillness_duration":     c.StillnessDuration,
		"cluster_cache_ttl":      c.ClusterCacheTTL,
	} {
		if field != nil && *field != "" {
			if _, err := time.ParseDuration(*field); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *field, err)
			}
		}
	}

	if c.FFTSize != nil && *c.FFTSize < 2 {
		return fmt.Errorf("fft_size must be at least 2, got %d", *c.FFTSize)
	}
	if c.HopLength != nil && *c.HopLength < 1 {
		return fmt.Errorf("hop_length must be positive, got %d", *c.HopLength)
	}
	if c.MelBins != nil && *c.MelBins < 1 {
		return fmt.Errorf("mel_bins must be positive, got %d", *c.MelBins)
	}

	if c.DBSCANEpsDegrees != nil && *c.DBSCANEpsDegrees <= 0 {
		return fmt.Errorf("dbscan_eps_degrees must be positive, got %f", *c.DBSCANEpsDegrees)
	}
	if c.DBSCANMinPoints != nil && *c.DBSCANMinPoints < 1 {
		return fmt.Errorf("dbscan_min_points must be positive, got %d", *c.DBSCANMinPoints)
	}

	return nil
}

// parseDurationOr parses a duration pointer field, returning def when the
// field is unset, empty, or malformed.
func parseDurationOr(field *string, def time.Duration) time.Duration {
	if field == nil || *field == "" {
		return def
	}
	d, err := time.ParseDuration(*field)
	if err != nil {
		return def
	}
	return d
}

// GetFreeFallThreshold returns the free_fall_threshold value or the default.
func (c *TuningConfig) GetFreeFallThreshold() float64 {
	if c.FreeFallThreshold == nil {
		return 3.0
	}
	return *c.FreeFallThreshold
}

// GetImpactThreshold returns the impact_threshold value or the default.
func (c *TuningConfig) GetImpactThreshold() float64 {
	if c.ImpactThreshold == nil {
		return 20.0
	}
	return *c.ImpactThreshold
}

// GetFreeFallMinDuration parses and returns the free_fall_min_duration.
func (c *TuningConfig) GetFreeFallMinDuration() time.Duration {
	return parseDurationOr(c.FreeFallMinDuration, 80*time.Millisecond)
}

// GetFreeFallMaxDuration parses and returns the free_fall_max_duration.
func (c *TuningConfig) GetFreeFallMaxDuration() time.Duration {
	return parseDurationOr(c.FreeFallMaxDuration, 600*time.Millisecond)
}

// GetImpactWindow parses and returns the impact_window.
func (c *TuningConfig) GetImpactWindow() time.Duration {
	return parseDurationOr(c.ImpactWindow, 800*time.Millisecond)
}

// GetStillnessDuration parses and returns the stillness_duration.
func (c *TuningConfig) GetStillnessDuration() time.Duration {
	return parseDurationOr(c.StillnessDuration, 1500*time.Millisecond)
}

// GetStillnessVarianceThreshold returns the stillness_variance_threshold value or the default.
func (c *TuningConfig) GetStillnessVarianceThreshold() float64 {
	if c.StillnessVarianceThreshold == nil {
		return 0.5
	}
	return *c.StillnessVarianceThreshold
}

// GetSmoothingAlpha returns the smoothing_alpha value or the default.
func (c *TuningConfig) GetSmoothingAlpha() float64 {
	if c.SmoothingAlpha == nil {
		return 0.2
	}
	return *c.SmoothingAlpha
}

// GetMagnitudeRingCapacity returns the magnitude_ring_capacity value or the default.
func (c *TuningConfig) GetMagnitudeRingCapacity() int {
	if c.MagnitudeRingCapacity == nil {
		return 50
	}
	return *c.MagnitudeRingCapacity
}

// GetConfidenceImpactWeight returns the confidence_impact_weight value or the default.
func (c *TuningConfig) GetConfidenceImpactWeight() float64 {
	if c.ConfidenceImpactWeight == nil {
		return 0.4
	}
	return *c.ConfidenceImpactWeight
}

// GetConfidenceVarianceWeight returns the confidence_variance_weight value or the default.
func (c *TuningConfig) GetConfidenceVarianceWeight() float64 {
	if c.ConfidenceVarianceWeight == nil {
		return 0.3
	}
	return *c.ConfidenceVarianceWeight
}

// GetConfidenceStillnessWeight returns the confidence_stillness_weight value or the default.
func (c *TuningConfig) GetConfidenceStillnessWeight() float64 {
	if c.ConfidenceStillnessWeight == nil {
		return 0.3
	}
	return *c.ConfidenceStillnessWeight
}

// GetImpactConfidenceReference returns the impact_confidence_reference value or the default.
func (c *TuningConfig) GetImpactConfidenceReference() float64 {
	if c.ImpactConfidenceReference == nil {
		return 30.0
	}
	return *c.ImpactConfidenceReference
}

// GetFFTSize returns the fft_size value or the default.
func (c *TuningConfig) GetFFTSize() int {
	if c.FFTSize == nil {
		return 512
	}
	return *c.FFTSize
}

// GetHopLength returns the hop_length value or the default.
func (c *TuningConfig) GetHopLength() int {
	if c.HopLength == nil {
		return 256
	}
	return *c.HopLength
}

// GetMelBins returns the mel_bins value or the default.
func (c *TuningConfig) GetMelBins() int {
	if c.MelBins == nil {
		return 40
	}
	return *c.MelBins
}

// GetAudioSampleRate returns the audio_sample_rate value or the default.
func (c *TuningConfig) GetAudioSampleRate() int {
	if c.AudioSampleRate == nil {
		return 16000
	}
	return *c.AudioSampleRate
}

// GetMelFreqMin returns the mel_freq_min value or the default.
func (c *TuningConfig) GetMelFreqMin() float64 {
	if c.MelFreqMin == nil {
		return 0
	}
	return *c.MelFreqMin
}

// GetMelFreqMax returns the mel_freq_max value or the default.
func (c *TuningConfig) GetMelFreqMax() float64 {
	if c.MelFreqMax == nil {
		return 8000
	}
	return *c.MelFreqMax
}

// GetDBSCANEpsDegrees returns the dbscan_eps_degrees value or the default.
func (c *TuningConfig) GetDBSCANEpsDegrees() float64 {
	if c.DBSCANEpsDegrees == nil {
		return 0.00045 // ≈50m
	}
	return *c.DBSCANEpsDegrees
}

// GetDBSCANMinPoints returns the dbscan_min_points value or the default.
func (c *TuningConfig) GetDBSCANMinPoints() int {
	if c.DBSCANMinPoints == nil {
		return 3
	}
	return *c.DBSCANMinPoints
}

// GetMinClusterRadiusMeters returns the min_cluster_radius_meters value or the default.
func (c *TuningConfig) GetMinClusterRadiusMeters() float64 {
	if c.MinClusterRadiusMeters == nil {
		return 50.0
	}
	return *c.MinClusterRadiusMeters
}

// GetRiskRecencyWeight returns the risk_recency_weight value or the default.
func (c *TuningConfig) GetRiskRecencyWeight() float64 {
	if c.RiskRecencyWeight == nil {
		return 0.4
	}
	return *c.RiskRecencyWeight
}

// GetRiskSeverityWeight returns the risk_severity_weight value or the default.
func (c *TuningConfig) GetRiskSeverityWeight() float64 {
	if c.RiskSeverityWeight == nil {
		return 0.3
	}
	return *c.RiskSeverityWeight
}

// GetRiskDensityWeight returns the risk_density_weight value or the default.
func (c *TuningConfig) GetRiskDensityWeight() float64 {
	if c.RiskDensityWeight == nil {
		return 0.3
	}
	return *c.RiskDensityWeight
}

// GetRecencyDecayDays returns the recency_decay_days value or the default.
func (c *TuningConfig) GetRecencyDecayDays() float64 {
	if c.RecencyDecayDays == nil {
		return 30.0
	}
	return *c.RecencyDecayDays
}

// GetDensitySaturationCount returns the density_saturation_count value or the default.
func (c *TuningConfig) GetDensitySaturationCount() int {
	if c.DensitySaturationCount == nil {
		return 10
	}
	return *c.DensitySaturationCount
}

// GetClusterCacheTTL parses and returns the cluster_cache_ttl.
func (c *TuningConfig) GetClusterCacheTTL() time.Duration {
	return parseDurationOr(c.ClusterCacheTTL, 5*time.Minute)
}

// GetEventRetentionLimit returns the event_retention_limit value or the default.
func (c *TuningConfig) GetEventRetentionLimit() int {
	if c.EventRetentionLimit == nil {
		return 1000
	}
	return *c.EventRetentionLimit
}
