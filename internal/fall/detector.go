// Package fall classifies triaxial accelerometer magnitude sequences into
// confirmed-fall events using a five-phase state machine. A fall must show
// the full physical signature — weightlessness, impact, then stillness —
// each within a bounded time window; anything that misses a window degrades
// back to idle rather than erroring.
package fall

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/safety.signal/internal/config"
	"github.com/banshee-data/safety.signal/internal/monitoring"
)

// Phase represents the detector's position in the fall signature.
type Phase string

const (
	PhaseIdle            Phase = "idle"             // Normal motion, watching for weightlessness
	PhaseFreeFall        Phase = "free_fall"        // Magnitude below the free-fall threshold
	PhaseImpactDetection Phase = "impact_detection" // Free fall ended, watching for an impact spike
	PhasePostImpact      Phase = "post_impact"      // Impact seen, watching for sustained stillness
	PhaseFallConfirmed   Phase = "fall_confirmed"   // Terminal until Reset
)

// Gravity is standard gravity in m/s², the seed for magnitude smoothing and
// the reference for the post-impact stillness band.
const Gravity = 9.81

// gravityBandHalfWidth bounds |smoothed − Gravity| for the stillness check.
const gravityBandHalfWidth = 3.0

// DetectorConfig holds the tuning parameters for one detector. All of these
// are empirically chosen knobs; see config/tuning.defaults.json.
type DetectorConfig struct {
	FreeFallThreshold          float64       // m/s² below which the body is in free fall
	ImpactThreshold            float64       // m/s² peak required to count as an impact
	FreeFallMinDuration        time.Duration // Shorter free fall is a bump, not a fall
	FreeFallMaxDuration        time.Duration // Longer free fall is sensor garbage or a dropped phone
	ImpactWindow               time.Duration // How long after free fall an impact may arrive
	StillnessDuration          time.Duration // Continuous stillness required for confirmation
	StillnessVarianceThreshold float64       // (m/s²)² variance bound for "still"
	SmoothingAlpha             float64       // EMA factor for magnitude smoothing
	MagnitudeRingCapacity      int           // Samples in the variance window
	ConfidenceImpactWeight     float64       // Blend weight for impact strength
	ConfidenceVarianceWeight   float64       // Blend weight for stillness quality
	ConfidenceStillnessWeight  float64       // Blend weight for stillness length
	ImpactConfidenceReference  float64       // Peak magnitude mapping to full impact confidence
}

// DefaultDetectorConfig returns a detector configuration loaded from the
// canonical tuning defaults file (config/tuning.defaults.json).
// Panics if the file cannot be found — intended for tests and tools that
// have already validated config availability.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfigFromTuning(config.MustLoadDefaultConfig())
}

// DetectorConfigFromTuning builds a DetectorConfig from a loaded TuningConfig.
// Use this in production code where the TuningConfig is already loaded.
func DetectorConfigFromTuning(cfg *config.TuningConfig) DetectorConfig {
	return DetectorConfig{
		FreeFallThreshold:          cfg.GetFreeFallThreshold(),
		ImpactThreshold:            cfg.GetImpactThreshold(),
		FreeFallMinDuration:        cfg.GetFreeFallMinDuration(),
		FreeFallMaxDuration:        cfg.GetFreeFallMaxDuration(),
		ImpactWindow:               cfg.GetImpactWindow(),
		StillnessDuration:          cfg.GetStillnessDuration(),
		StillnessVarianceThreshold: cfg.GetStillnessVarianceThreshold(),
		SmoothingAlpha:             cfg.GetSmoothingAlpha(),
		MagnitudeRingCapacity:      cfg.GetMagnitudeRingCapacity(),
		ConfidenceImpactWeight:     cfg.GetConfidenceImpactWeight(),
		ConfidenceVarianceWeight:   cfg.GetConfidenceVarianceWeight(),
		ConfidenceStillnessWeight:  cfg.GetConfidenceStillnessWeight(),
		ImpactConfidenceReference:  cfg.GetImpactConfidenceReference(),
	}
}

// Result is the per-sample output of Analyze.
type Result struct {
	Phase             Phase
	RawMagnitude      float64
	SmoothedMagnitude float64
	Variance          float64
	FallConfirmed     bool
	Confidence        float64
	Note              string
}

// Detector is the per-session fall state machine. It is single-writer:
// callers must serialize Analyze calls (one detector per monitoring
// session, never shared across goroutines).
type Detector struct {
	cfg DetectorConfig
	now func() time.Time

	phase          Phase
	phaseEnteredAt time.Time
	smoothed       float64
	ring           *Ring

	// armed gates re-entry into free fall: after any degradation to idle
	// while still weightless, the magnitude must return above the free-fall
	// threshold before a new fall sequence can start. Without this a timed
	// out free fall would immediately restart its own window.
	armed bool

	peakSincePhaseStart float64
	stillActive         bool
	stillSince          time.Time
	confirmConfidence   float64
	confirmedReported   bool
}

// NewDetector creates a detector for one monitoring session.
func NewDetector(cfg DetectorConfig) *Detector {
	return NewDetectorWithClock(cfg, time.Now)
}

// NewDetectorWithClock creates a detector with an injected clock.
// Phase windows are measured against this clock, so replay tools and tests
// can drive the machine deterministically.
func NewDetectorWithClock(cfg DetectorConfig, now func() time.Time) *Detector {
	d := &Detector{
		cfg: cfg,
		now: now,
	}
	d.Reset()
	return d
}

// Reset returns the detector to its initial state. Callers must invoke this
// after handling a confirmed fall or the detector stays locked in
// PhaseFallConfirmed. Reset is idempotent.
func (d *Detector) Reset() {
	d.phase = PhaseIdle
	d.phaseEnteredAt = time.Time{}
	d.smoothed = Gravity
	if d.ring == nil {
		d.ring = NewRing(d.cfg.MagnitudeRingCapacity)
	} else {
		d.ring.Reset()
	}
	d.armed = true
	d.peakSincePhaseStart = 0
	d.stillActive = false
	d.stillSince = time.Time{}
	d.confirmConfidence = 0
	d.confirmedReported = false
}

// IsFallConfirmed reports whether the detector is in the terminal
// confirmed state.
func (d *Detector) IsFallConfirmed() bool {
	return d.phase == PhaseFallConfirmed
}

// Analyze consumes one accelerometer sample (m/s²) and advances the state
// machine. It never fails: garbage readings simply miss their phase windows
// and the machine degrades back to idle.
func (d *Detector) Analyze(x, y, z float64) Result {
	t := d.now()
	m := math.Sqrt(x*x + y*y + z*z)

	d.smoothed = d.smoothed*(1-d.cfg.SmoothingAlpha) + m*d.cfg.SmoothingAlpha
	d.ring.Push(m)
	variance := d.ring.Variance()

	var note string

	switch d.phase {
	case PhaseIdle:
		if m >= d.cfg.FreeFallThreshold {
			d.armed = true
		} else if d.armed {
			d.enterPhase(PhaseFreeFall, t)
			note = "free-fall onset"
		}

	case PhaseFreeFall:
		elapsed := t.Sub(d.phaseEnteredAt)
		if m >= d.cfg.FreeFallThreshold {
			if elapsed >= d.cfg.FreeFallMinDuration && elapsed <= d.cfg.FreeFallMaxDuration {
				d.enterPhase(PhaseImpactDetection, t)
				d.peakSincePhaseStart = m
				note = "free fall ended, watching for impact"
			} else {
				d.enterPhase(PhaseIdle, t)
				d.armed = true
				note = fmt.Sprintf("free fall lasted %s, outside window", elapsed)
			}
		} else if elapsed > d.cfg.FreeFallMaxDuration {
			d.enterPhase(PhaseIdle, t)
			d.armed = false
			note = "free fall timeout"
		}

	case PhaseImpactDetection:
		if m > d.peakSincePhaseStart {
			d.peakSincePhaseStart = m
		}
		if d.peakSincePhaseStart >= d.cfg.ImpactThreshold {
			d.enterPhase(PhasePostImpact, t)
			d.stillActive = false
			note = fmt.Sprintf("impact %.1f m/s², watching for stillness", d.peakSincePhaseStart)
		} else if t.Sub(d.phaseEnteredAt) > d.cfg.ImpactWindow {
			d.enterPhase(PhaseIdle, t)
			d.armed = false
			note = "no impact within window"
		}

	case PhasePostImpact:
		still := variance < d.cfg.StillnessVarianceThreshold &&
			math.Abs(d.smoothed-Gravity) < gravityBandHalfWidth
		if still {
			if !d.stillActive {
				d.stillActive = true
				d.stillSince = t
			}
			if stillFor := t.Sub(d.stillSince); stillFor >= d.cfg.StillnessDuration {
				d.confirmConfidence = d.confidence(variance, stillFor)
				d.enterPhase(PhaseFallConfirmed, t)
				note = "fall confirmed"
				monitoring.Logf("fall: confirmed (peak=%.1f m/s² variance=%.3f confidence=%.2f)",
					d.peakSincePhaseStart, variance, d.confirmConfidence)
			}
		} else {
			d.stillActive = false
			if t.Sub(d.phaseEnteredAt) > 2*d.cfg.StillnessDuration {
				d.enterPhase(PhaseIdle, t)
				d.armed = false
				note = "movement resumed, alarm cleared"
			}
		}

	case PhaseFallConfirmed:
		// Terminal until Reset.
	}

	res := Result{
		Phase:             d.phase,
		RawMagnitude:      m,
		SmoothedMagnitude: d.smoothed,
		Variance:          variance,
		Note:              note,
	}
	if d.phase == PhaseFallConfirmed {
		res.FallConfirmed = true
		if d.confirmedReported {
			res.Confidence = 1.0
		} else {
			res.Confidence = d.confirmConfidence
			d.confirmedReported = true
		}
	}
	return res
}

// enterPhase records a phase transition.
func (d *Detector) enterPhase(p Phase, t time.Time) {
	monitoring.Debugf("fall: %s -> %s", d.phase, p)
	d.phase = p
	d.phaseEnteredAt = t
}

// confidence blends impact strength, stillness quality, and stillness
// length into a [0.5, 1] score at confirmation time.
func (d *Detector) confidence(variance float64, stillFor time.Duration) float64 {
	impact := clamp(d.peakSincePhaseStart/d.cfg.ImpactConfidenceReference, 0.5, 1)
	quiet := clamp(1-variance/d.cfg.StillnessVarianceThreshold, 0.5, 1)
	held := clamp(stillFor.Seconds()/(2*d.cfg.StillnessDuration.Seconds()), 0.5, 1)
	return d.cfg.ConfidenceImpactWeight*impact +
		d.cfg.ConfidenceVarianceWeight*quiet +
		d.cfg.ConfidenceStillnessWeight*held
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
