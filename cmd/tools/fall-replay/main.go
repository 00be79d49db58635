// Command fall-replay drives the fall state machine over a recorded
// accelerometer trace and reports every phase transition, so threshold
// tuning can be done against field recordings instead of live devices.
//
// The trace is a CSV of `timestamp_ms,x,y,z` rows (header optional),
// timestamps relative to the start of the recording. Replay time comes
// from the trace, not the wall clock, so runs are deterministic.
//
// Usage:
//
//	go run ./cmd/tools/fall-replay -trace fall01.csv [flags]
//
// Flags:
//
//	-trace    Path to the CSV trace (required)
//	-config   Tuning config path (default config/tuning.defaults.json)
//	-plot     Write a magnitude/threshold PNG to this path
//	-verbose  Log every phase transition
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"image/color"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/safety.signal/internal/config"
	"github.com/banshee-data/safety.signal/internal/fall"
	"github.com/banshee-data/safety.signal/internal/monitoring"
	"github.com/banshee-data/safety.signal/internal/version"
)

type traceSample struct {
	offset  time.Duration
	x, y, z float64
}

func main() {
	tracePath := flag.String("trace", "", "Path to CSV accelerometer trace (required)")
	configPath := flag.String("config", config.DefaultConfigPath, "Tuning config path")
	plotPath := flag.String("plot", "", "Write a magnitude plot PNG to this path")
	verbose := flag.Bool("verbose", false, "Log every phase transition")
	flag.Parse()

	if *tracePath == "" {
		log.Fatal("Error: -trace flag is required")
	}
	monitoring.Verbose = *verbose
	log.Printf("fall-replay %s", version.String())

	tuning, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load tuning config: %v", err)
	}
	cfg := fall.DetectorConfigFromTuning(tuning)

	samples, err := loadTrace(*tracePath)
	if err != nil {
		log.Fatalf("Failed to load trace: %v", err)
	}
	if len(samples) == 0 {
		log.Fatal("Trace contains no samples")
	}
	log.Printf("Loaded %d samples spanning %s", len(samples), samples[len(samples)-1].offset)

	// The detector's clock follows the trace timestamps.
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	detector := fall.NewDetectorWithClock(cfg, func() time.Time { return clock })

	results := make([]fall.Result, 0, len(samples))
	lastPhase := fall.PhaseIdle
	for _, s := range samples {
		clock = start.Add(s.offset)
		r := detector.Analyze(s.x, s.y, s.z)
		results = append(results, r)

		if r.Phase != lastPhase {
			log.Printf("%8s  %s -> %s  (raw=%.2f smoothed=%.2f var=%.3f)",
				s.offset, lastPhase, r.Phase, r.RawMagnitude, r.SmoothedMagnitude, r.Variance)
			lastPhase = r.Phase
		}
		if r.FallConfirmed && r.Confidence < 1 {
			log.Printf("%8s  FALL CONFIRMED confidence=%.3f", s.offset, r.Confidence)
		}
	}

	final := results[len(results)-1]
	fmt.Printf("final phase: %s\n", final.Phase)
	fmt.Printf("fall confirmed: %v\n", final.FallConfirmed)

	if *plotPath != "" {
		if err := writePlot(*plotPath, samples, results, cfg); err != nil {
			log.Fatalf("Failed to write plot: %v", err)
		}
		log.Printf("Wrote %s", *plotPath)
	}
}

// loadTrace parses a timestamp_ms,x,y,z CSV. A non-numeric first row is
// treated as a header and skipped.
func loadTrace(path string) ([]traceSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 4

	var samples []traceSample
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		ms, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("line %d: bad timestamp %q", line, record[0])
		}

		var axes [3]float64
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad axis value %q", line, record[i+1])
			}
			axes[i] = v
		}

		samples = append(samples, traceSample{
			offset: time.Duration(ms * float64(time.Millisecond)),
			x:      axes[0],
			y:      axes[1],
			z:      axes[2],
		})
	}
	return samples, nil
}

// writePlot saves raw and smoothed magnitude over the replay, with the
// free-fall and impact thresholds as horizontal reference lines.
func writePlot(path string, samples []traceSample, results []fall.Result, cfg fall.DetectorConfig) error {
	p := plot.New()
	p.Title.Text = "Fall replay magnitude"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Acceleration (m/s²)"

	rawPts := make(plotter.XYs, len(results))
	smoothPts := make(plotter.XYs, len(results))
	for i, r := range results {
		t := samples[i].offset.Seconds()
		rawPts[i] = plotter.XY{X: t, Y: r.RawMagnitude}
		smoothPts[i] = plotter.XY{X: t, Y: r.SmoothedMagnitude}
	}

	rawLine, err := plotter.NewLine(rawPts)
	if err != nil {
		return err
	}
	rawLine.Color = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	rawLine.Width = vg.Points(1)

	smoothLine, err := plotter.NewLine(smoothPts)
	if err != nil {
		return err
	}
	smoothLine.Color = color.RGBA{B: 255, A: 255}
	smoothLine.Width = vg.Points(1.5)

	end := samples[len(samples)-1].offset.Seconds()
	freeFallLine, err := thresholdLine(cfg.FreeFallThreshold, end)
	if err != nil {
		return err
	}
	impactLine, err := thresholdLine(cfg.ImpactThreshold, end)
	if err != nil {
		return err
	}

	p.Add(rawLine, smoothLine, freeFallLine, impactLine)
	p.Legend.Add("raw", rawLine)
	p.Legend.Add("smoothed", smoothLine)
	p.Legend.Add("free-fall threshold", freeFallLine)
	p.Legend.Add("impact threshold", impactLine)

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}

func thresholdLine(y, end float64) (*plotter.Line, error) {
	line, err := plotter.NewLine(plotter.XYs{{X: 0, Y: y}, {X: end, Y: y}})
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{R: 255, A: 255}
	line.Width = vg.Points(1)
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	return line, nil
}
