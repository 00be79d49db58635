package geo

import (
	"math"
	"sort"
	"time"
)

// DangerCluster is a scored risk zone derived from one clustering run.
// Clusters are recomputed wholesale, never mutated incrementally.
type DangerCluster struct {
	ID           int
	Members      []GeoEvent
	CentroidLat  float64
	CentroidLng  float64
	RadiusMeters float64
	RiskScore    float64 // [0,1]
}

// RiskParams controls cluster synthesis and scoring.
type RiskParams struct {
	RecencyWeight          float64 // Blend weight for incident age decay
	SeverityWeight         float64 // Blend weight for mean severity
	DensityWeight          float64 // Blend weight for member count
	RecencyDecayDays       float64 // e-folding time of the age decay
	DensitySaturationCount int     // Member count scoring as full density
	MinRadiusMeters        float64 // Floor for degenerate tight clusters
}

// synthesizeCluster computes centroid, radius, and risk score for one
// member set. Members must be non-empty.
func synthesizeCluster(id int, members []GeoEvent, now time.Time, p RiskParams) DangerCluster {
	n := float64(len(members))

	var sumLat, sumLng float64
	for _, e := range members {
		sumLat += e.Latitude
		sumLng += e.Longitude
	}
	centroidLat := sumLat / n
	centroidLng := sumLng / n

	var radius float64
	for _, e := range members {
		if d := Haversine(centroidLat, centroidLng, e.Latitude, e.Longitude); d > radius {
			radius = d
		}
	}
	if radius < p.MinRadiusMeters {
		radius = p.MinRadiusMeters
	}

	return DangerCluster{
		ID:           id,
		Members:      members,
		CentroidLat:  centroidLat,
		CentroidLng:  centroidLng,
		RadiusMeters: radius,
		RiskScore:    riskScore(members, now, p),
	}
}

// riskScore blends recency, severity, and density into [0,1]. Each
// component is non-decreasing in incident count, recency, and severity, so
// the blend is too.
func riskScore(members []GeoEvent, now time.Time, p RiskParams) float64 {
	n := float64(len(members))

	var recencySum, severitySum float64
	for _, e := range members {
		ageDays := now.Sub(e.Time()).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		recencySum += math.Exp(-ageDays / p.RecencyDecayDays)
		severitySum += float64(e.Severity)
	}

	recency := recencySum / n
	severity := severitySum / n / SeverityMax
	density := math.Min(n/float64(p.DensitySaturationCount), 1)

	return p.RecencyWeight*recency + p.SeverityWeight*severity + p.DensityWeight*density
}

// sortClusters orders clusters by descending risk score, breaking ties by
// centroid so repeated runs over the same events produce identical output.
func sortClusters(clusters []DangerCluster) {
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].RiskScore != clusters[j].RiskScore {
			return clusters[i].RiskScore > clusters[j].RiskScore
		}
		if clusters[i].CentroidLat != clusters[j].CentroidLat {
			return clusters[i].CentroidLat < clusters[j].CentroidLat
		}
		return clusters[i].CentroidLng < clusters[j].CentroidLng
	})
}

// RiskLevel returns the risk in [0,1] at a point against a cluster set:
// the full cluster score inside a cluster's radius, a linear falloff out
// to twice the radius, zero beyond, maximized over all clusters.
func RiskLevel(lat, lng float64, clusters []DangerCluster) float64 {
	var level float64
	for _, c := range clusters {
		d := Haversine(c.CentroidLat, c.CentroidLng, lat, lng)
		var contribution float64
		switch {
		case d <= c.RadiusMeters:
			contribution = c.RiskScore
		case d <= 2*c.RadiusMeters:
			contribution = c.RiskScore * (1 - (d-c.RadiusMeters)/c.RadiusMeters)
		}
		if contribution > level {
			level = contribution
		}
	}
	return level
}

// Bounds is a geographic bounding box for heatmap rasters.
type Bounds struct {
	North float64
	South float64
	East  float64
	West  float64
}

// HeatmapGrid evaluates RiskLevel on a regular gridSize×gridSize raster
// over the bounds, row 0 at the southern edge. The result feeds map
// overlay rendering.
func HeatmapGrid(clusters []DangerCluster, gridSize int, b Bounds) [][]float32 {
	grid := make([][]float32, gridSize)
	if gridSize < 1 {
		return grid
	}

	latStep := (b.North - b.South) / float64(gridSize-1)
	lngStep := (b.East - b.West) / float64(gridSize-1)
	if gridSize == 1 {
		latStep, lngStep = 0, 0
	}

	for row := range grid {
		grid[row] = make([]float32, gridSize)
		lat := b.South + float64(row)*latStep
		for col := range grid[row] {
			lng := b.West + float64(col)*lngStep
			grid[row][col] = float32(RiskLevel(lat, lng, clusters))
		}
	}
	return grid
}
