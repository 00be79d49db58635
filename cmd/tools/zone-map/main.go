// Command zone-map renders the danger zones in a stored event log as an
// HTML heatmap, for eyeballing clustering output against a real incident
// history.
//
// Usage:
//
//	go run ./cmd/tools/zone-map -db events.db [flags]
//
// Flags:
//
//	-db       Path to the sqlite event log (required)
//	-out      Output HTML path (default zone-map.html)
//	-config   Tuning config path (default config/tuning.defaults.json)
//	-grid     Raster size per side (default 64)
//	-limit    Max events to cluster, newest first (0 = all)
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/safety.signal/internal/config"
	"github.com/banshee-data/safety.signal/internal/geo"
	"github.com/banshee-data/safety.signal/internal/storage/sqlite"
	"github.com/banshee-data/safety.signal/internal/version"
)

func main() {
	dbPath := flag.String("db", "", "Path to sqlite event log (required)")
	outPath := flag.String("out", "zone-map.html", "Output HTML path")
	configPath := flag.String("config", config.DefaultConfigPath, "Tuning config path")
	gridSize := flag.Int("grid", 64, "Raster size per side")
	limit := flag.Int("limit", 0, "Max events to cluster, newest first (0 = all)")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("Error: -db flag is required")
	}
	log.Printf("zone-map %s", version.String())

	tuning, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load tuning config: %v", err)
	}

	store, err := sqlite.NewEventStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open event store: %v", err)
	}
	defer store.Close()

	events, err := store.Snapshot(*limit)
	if err != nil {
		log.Fatalf("Failed to snapshot events: %v", err)
	}
	if len(events) == 0 {
		log.Fatal("Event log is empty; nothing to map")
	}

	engine := geo.NewEngine(geo.EngineConfigFromTuning(tuning))
	clusters, err := engine.Cluster(events)
	if err != nil {
		log.Fatalf("Clustering failed: %v", err)
	}
	log.Printf("Clustered %d events into %d zones", len(events), len(clusters))
	for _, c := range clusters {
		log.Printf("  zone %d: %d members, centroid (%.5f, %.5f), radius %.0fm, risk %.3f",
			c.ID, len(c.Members), c.CentroidLat, c.CentroidLng, c.RadiusMeters, c.RiskScore)
	}

	bounds := eventBounds(events)
	grid := engine.HeatmapGrid(bounds, *gridSize)

	if err := renderHeatmap(*outPath, grid, bounds, len(clusters)); err != nil {
		log.Fatalf("Failed to render heatmap: %v", err)
	}
	log.Printf("Wrote %s", *outPath)
}

// eventBounds computes a bounding box around the events, padded ~20% so
// cluster falloff bands stay inside the raster.
func eventBounds(events []geo.GeoEvent) geo.Bounds {
	b := geo.Bounds{
		North: events[0].Latitude, South: events[0].Latitude,
		East: events[0].Longitude, West: events[0].Longitude,
	}
	for _, e := range events[1:] {
		if e.Latitude > b.North {
			b.North = e.Latitude
		}
		if e.Latitude < b.South {
			b.South = e.Latitude
		}
		if e.Longitude > b.East {
			b.East = e.Longitude
		}
		if e.Longitude < b.West {
			b.West = e.Longitude
		}
	}

	latPad := (b.North - b.South) * 0.2
	lngPad := (b.East - b.West) * 0.2
	// Degenerate box around a single tight group: pad ~500m instead.
	const minPad = 0.005
	if latPad < minPad {
		latPad = minPad
	}
	if lngPad < minPad {
		lngPad = minPad
	}
	b.North += latPad
	b.South -= latPad
	b.East += lngPad
	b.West -= lngPad
	return b
}

// renderHeatmap writes the risk raster as a go-echarts heatmap, row 0 at
// the southern edge.
func renderHeatmap(path string, grid [][]float32, b geo.Bounds, clusterCount int) error {
	gridSize := len(grid)

	data := make([]opts.HeatMapData, 0, gridSize*gridSize)
	xLabels := make([]string, gridSize)
	yLabels := make([]string, gridSize)
	for i := 0; i < gridSize; i++ {
		xLabels[i] = fmt.Sprintf("%.4f", b.West+(b.East-b.West)*float64(i)/float64(gridSize-1))
		yLabels[i] = fmt.Sprintf("%.4f", b.South+(b.North-b.South)*float64(i)/float64(gridSize-1))
	}
	for row := range grid {
		for col, v := range grid[row] {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{col, row, v}})
		}
	}

	heatmap := charts.NewHeatMap()
	heatmap.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Danger Zones", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Danger Zone Heatmap", Subtitle: fmt.Sprintf("zones=%d grid=%dx%d", clusterCount, gridSize, gridSize)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xLabels, Name: "Longitude", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: yLabels, Name: "Latitude", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)
	heatmap.AddSeries("risk", data)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return heatmap.Render(f)
}
