package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestEmptyTuningConfig_Defaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetFreeFallThreshold(); got != 3.0 {
		t.Errorf("GetFreeFallThreshold = %f, want 3.0", got)
	}
	if got := cfg.GetImpactThreshold(); got != 20.0 {
		t.Errorf("GetImpactThreshold = %f, want 20.0", got)
	}
	if got := cfg.GetFreeFallMinDuration(); got != 80*time.Millisecond {
		t.Errorf("GetFreeFallMinDuration = %v, want 80ms", got)
	}
	if got := cfg.GetFreeFallMaxDuration(); got != 600*time.Millisecond {
		t.Errorf("GetFreeFallMaxDuration = %v, want 600ms", got)
	}
	if got := cfg.GetStillnessDuration(); got != 1500*time.Millisecond {
		t.Errorf("GetStillnessDuration = %v, want 1.5s", got)
	}
	if got := cfg.GetSmoothingAlpha(); got != 0.2 {
		t.Errorf("GetSmoothingAlpha = %f, want 0.2", got)
	}
	if got := cfg.GetMagnitudeRingCapacity(); got != 50 {
		t.Errorf("GetMagnitudeRingCapacity = %d, want 50", got)
	}
	if got := cfg.GetFFTSize(); got != 512 {
		t.Errorf("GetFFTSize = %d, want 512", got)
	}
	if got := cfg.GetHopLength(); got != 256 {
		t.Errorf("GetHopLength = %d, want 256", got)
	}
	if got := cfg.GetMelBins(); got != 40 {
		t.Errorf("GetMelBins = %d, want 40", got)
	}
	if got := cfg.GetMelFreqMax(); got != 8000 {
		t.Errorf("GetMelFreqMax = %f, want 8000", got)
	}
	if got := cfg.GetDBSCANMinPoints(); got != 3 {
		t.Errorf("GetDBSCANMinPoints = %d, want 3", got)
	}
	if got := cfg.GetMinClusterRadiusMeters(); got != 50.0 {
		t.Errorf("GetMinClusterRadiusMeters = %f, want 50.0", got)
	}
	if got := cfg.GetClusterCacheTTL(); got != 5*time.Minute {
		t.Errorf("GetClusterCacheTTL = %v, want 5m", got)
	}
	if got := cfg.GetEventRetentionLimit(); got != 1000 {
		t.Errorf("GetEventRetentionLimit = %d, want 1000", got)
	}
}

func TestLoadTuningConfig_PartialOverride(t *testing.T) {
	path := writeConfig(t, `{"free_fall_threshold": 2.5, "cluster_cache_ttl": "90s"}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	if got := cfg.GetFreeFallThreshold(); got != 2.5 {
		t.Errorf("GetFreeFallThreshold = %f, want 2.5", got)
	}
	if got := cfg.GetClusterCacheTTL(); got != 90*time.Second {
		t.Errorf("GetClusterCacheTTL = %v, want 90s", got)
	}
	// Untouched fields keep defaults
	if got := cfg.GetImpactThreshold(); got != 20.0 {
		t.Errorf("GetImpactThreshold = %f, want default 20.0", got)
	}
}

func TestLoadTuningConfig_RejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := LoadTuningConfig(path); err == nil {
		t.Error("expected error for non-.json extension")
	}
}

func TestLoadTuningConfig_RejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"free_fall_threshold": `)
	if _, err := LoadTuningConfig(path); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{"valid full", `{"smoothing_alpha": 0.5, "fft_size": 1024, "dbscan_eps_degrees": 0.001}`, false},
		{"alpha zero", `{"smoothing_alpha": 0}`, true},
		{"alpha above one", `{"smoothing_alpha": 1.5}`, true},
		{"negative free fall threshold", `{"free_fall_threshold": -1}`, true},
		{"ring capacity too small", `{"magnitude_ring_capacity": 1}`, true},
		{"bad duration", `{"stillness_duration": "soon"}`, true},
		{"bad ttl", `{"cluster_cache_ttl": "whenever"}`, true},
		{"fft too small", `{"fft_size": 1}`, true},
		{"zero hop", `{"hop_length": 0}`, true},
		{"zero mel bins", `{"mel_bins": 0}`, true},
		{"negative eps", `{"dbscan_eps_degrees": -0.1}`, true},
		{"zero min points", `{"dbscan_min_points": 0}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.json)
			_, err := LoadTuningConfig(path)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadTuningConfig error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	// The defaults file must agree with the accessor fallbacks so that a
	// missing file and the canonical file behave identically.
	if got := cfg.GetFreeFallThreshold(); got != 3.0 {
		t.Errorf("defaults file free_fall_threshold = %f, want 3.0", got)
	}
	if got := cfg.GetFFTSize(); got != 512 {
		t.Errorf("defaults file fft_size = %d, want 512", got)
	}
	if got := cfg.GetDBSCANEpsDegrees(); got != 0.00045 {
		t.Errorf("defaults file dbscan_eps_degrees = %f, want 0.00045", got)
	}
	if got := cfg.GetRiskRecencyWeight(); got != 0.4 {
		t.Errorf("defaults file risk_recency_weight = %f, want 0.4", got)
	}
}
