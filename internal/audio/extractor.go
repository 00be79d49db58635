// Package audio converts fixed-length windows of normalized PCM samples
// into mel-spectrogram feature maps for an external classifier. The
// extractor is stateless and side-effect-free: each Compute call is
// independent and safe to run concurrently with any other.
package audio

import (
	"github.com/banshee-data/safety.signal/internal/config"
	"gonum.org/v1/gonum/dsp/fourier"
)

// MelFeatureMap is a [frame][melBin] grid of log-power values, normalized
// to [0,1] by Normalize. It is immutable once produced.
type MelFeatureMap [][]float32

// NumFrames returns the number of time frames in the map.
func (m MelFeatureMap) NumFrames() int {
	return len(m)
}

// NumBins returns the number of mel bins per frame.
func (m MelFeatureMap) NumBins() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// ExtractorConfig holds the spectrogram geometry. Defaults live in
// config/tuning.defaults.json.
type ExtractorConfig struct {
	FFTSize    int     // Analysis window length in samples
	HopLength  int     // Stride between successive windows
	MelBins    int     // Triangular filters in the bank
	SampleRate int     // Hz of the incoming PCM
	FreqMin    float64 // Lower edge of the filter bank (Hz)
	FreqMax    float64 // Upper edge of the filter bank (Hz)
}

// DefaultExtractorConfig returns the extractor configuration from the
// canonical tuning defaults file. Panics if the file cannot be found —
// intended for tests and tools.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfigFromTuning(config.MustLoadDefaultConfig())
}

// ExtractorConfigFromTuning builds an ExtractorConfig from a loaded TuningConfig.
func ExtractorConfigFromTuning(cfg *config.TuningConfig) ExtractorConfig {
	return ExtractorConfig{
		FFTSize:    cfg.GetFFTSize(),
		HopLength:  cfg.GetHopLength(),
		MelBins:    cfg.GetMelBins(),
		SampleRate: cfg.GetAudioSampleRate(),
		FreqMin:    cfg.GetMelFreqMin(),
		FreqMax:    cfg.GetMelFreqMax(),
	}
}

// Extractor computes mel feature maps from audio frames. The window and
// filter bank are precomputed once; per-call scratch is allocated inside
// Compute so the extractor itself carries no mutable state.
type Extractor struct {
	cfg     ExtractorConfig
	window  []float64
	filters []melFilter
}

// NewExtractor creates an extractor with precomputed Hann window and mel
// filter bank.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	return &Extractor{
		cfg:     cfg,
		window:  hannWindow(cfg.FFTSize),
		filters: melFilterBank(cfg.MelBins, cfg.FFTSize, cfg.SampleRate, cfg.FreqMin, cfg.FreqMax),
	}
}

// Compute converts one audio frame (samples in [-1,1]) into an
// un-normalized mel feature map. An empty input yields an empty map; an
// input shorter than the FFT size is zero-padded into a single frame.
// Degenerate results are valid outputs, not errors — the caller treats an
// empty map as "skip this classification tick".
func (e *Extractor) Compute(frame []float32) MelFeatureMap {
	n := len(frame)
	if n == 0 {
		return MelFeatureMap{}
	}

	numFrames := (n-e.cfg.FFTSize)/e.cfg.HopLength + 1
	if numFrames < 1 {
		numFrames = 1 // zero-pad the tail of a short input
	}

	// The transform carries per-call scratch, keeping Compute pure and
	// safe for concurrent use across sessions.
	fft := fourier.NewFFT(e.cfg.FFTSize)
	bins := e.cfg.FFTSize/2 + 1
	windowed := make([]float64, e.cfg.FFTSize)
	coeffs := make([]complex128, bins)
	magnitude := make([]float64, bins)
	power := make([]float64, bins)

	out := make(MelFeatureMap, numFrames)
	for f := 0; f < numFrames; f++ {
		start := f * e.cfg.HopLength
		for i := 0; i < e.cfg.FFTSize; i++ {
			var s float64
			if start+i < n {
				s = float64(frame[start+i])
			}
			windowed[i] = s * e.window[i]
		}

		spectrum(fft, windowed, coeffs, magnitude)
		for i, v := range magnitude {
			power[i] = v * v
		}

		row := make([]float32, len(e.filters))
		for m, filter := range e.filters {
			row[m] = float32(filter.apply(power))
		}
		out[f] = row
	}
	return out
}

// FlattenTo adapts a feature map to a classifier's expected tensor shape:
// row-major [time][melBin], zero-padded or truncated to frames×bins.
func FlattenTo(m MelFeatureMap, frames, bins int) []float32 {
	out := make([]float32, frames*bins)
	for f := 0; f < frames && f < len(m); f++ {
		row := m[f]
		for b := 0; b < bins && b < len(row); b++ {
			out[f*bins+b] = row[b]
		}
	}
	return out
}

// ClassificationResult is what the external classifier returns for one
// feature map.
type ClassificationResult struct {
	Label      string  // Predicted class, e.g. "scream", "background"
	Confidence float32 // Probability of the predicted class
	Model      string  // Model identifier/version
}

// Classifier is the boundary to the external inference engine. The core
// only shapes the feature map; the trained model lives outside this module.
type Classifier interface {
	Classify(m MelFeatureMap) (ClassificationResult, error)
	Model() string
}
