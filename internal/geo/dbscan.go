// Package geo groups geotagged incident reports into weighted danger zones
// using DBSCAN over haversine distance, scores each zone by recency,
// severity, and density, and answers point-risk and heatmap queries against
// a TTL-cached cluster set.
package geo

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidInput marks programming-contract violations: malformed
// coordinates, NaN/Inf values, severity out of range. Degraded signal
// (empty logs, sparse events) never produces an error.
var ErrInvalidInput = errors.New("invalid input")

// MetersPerDegree approximates the metres spanned by one degree of
// latitude, used to convert the configured eps from degrees to metres.
const MetersPerDegree = 111000.0

// SeverityMin and SeverityMax bound the severity tag on incident events.
const (
	SeverityMin = 1
	SeverityMax = 5
)

// GeoEvent is one geotagged incident report from the alert pipeline.
type GeoEvent struct {
	ID        string  // Assigned by the event log on append
	Latitude  float64 // Degrees
	Longitude float64 // Degrees
	UnixNanos int64   // Incident time
	EventType string  // e.g. "fall", "sos", "distress_audio"
	Severity  int     // 1 (low) .. 5 (critical)
}

// Time returns the incident time.
func (e GeoEvent) Time() time.Time {
	return time.Unix(0, e.UnixNanos)
}

// Validate checks the event against the input contract.
func (e GeoEvent) Validate() error {
	if math.IsNaN(e.Latitude) || math.IsInf(e.Latitude, 0) ||
		math.IsNaN(e.Longitude) || math.IsInf(e.Longitude, 0) {
		return fmt.Errorf("%w: non-finite coordinates (%f, %f)", ErrInvalidInput, e.Latitude, e.Longitude)
	}
	if e.Latitude < -90 || e.Latitude > 90 {
		return fmt.Errorf("%w: latitude %f out of [-90, 90]", ErrInvalidInput, e.Latitude)
	}
	if e.Longitude < -180 || e.Longitude > 180 {
		return fmt.Errorf("%w: longitude %f out of [-180, 180]", ErrInvalidInput, e.Longitude)
	}
	if e.Severity < SeverityMin || e.Severity > SeverityMax {
		return fmt.Errorf("%w: severity %d out of [%d, %d]", ErrInvalidInput, e.Severity, SeverityMin, SeverityMax)
	}
	return nil
}

// DBSCANParams contains the clustering parameters.
type DBSCANParams struct {
	EpsMeters float64 // Neighborhood radius
	MinPoints int     // Minimum neighborhood size for a core point
}

// neighborIndex abstracts the region query so a spatial index (grid or
// R-tree) can replace the linear scan without changing cluster or
// risk-score semantics.
type neighborIndex interface {
	// regionQuery returns indices of all events within eps metres of
	// events[idx], including idx itself.
	regionQuery(events []GeoEvent, idx int, epsMeters float64) []int
}

// linearIndex scans every event per query: O(n) per query, O(n²) overall.
// Fine at the hundreds-to-low-thousands scale of a retained incident log.
type linearIndex struct{}

func (linearIndex) regionQuery(events []GeoEvent, idx int, epsMeters float64) []int {
	p := events[idx]
	var neighbors []int
	for i, e := range events {
		if Haversine(p.Latitude, p.Longitude, e.Latitude, e.Longitude) <= epsMeters {
			neighbors = append(neighbors, i)
		}
	}
	return neighbors
}

// dbscan performs density-based clustering and returns member index lists,
// one per cluster, plus the count of noise points. Noise points may be
// re-labeled into a cluster as border points during another point's
// expansion, matching canonical DBSCAN semantics; border points are full
// members for density and scoring purposes.
func dbscan(events []GeoEvent, params DBSCANParams, index neighborIndex) (clusters [][]int, noiseCount int) {
	if len(events) == 0 {
		return nil, 0
	}

	n := len(events)
	labels := make([]int, n) // 0=unvisited, -1=noise, >0=clusterID
	clusterID := 0

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}

		neighbors := index.regionQuery(events, i, params.EpsMeters)
		if len(neighbors) < params.MinPoints {
			labels[i] = -1
			continue
		}

		clusterID++
		expandCluster(events, index, labels, i, neighbors, clusterID, params)
	}

	members := make([][]int, clusterID)
	for i, label := range labels {
		switch {
		case label > 0:
			members[label-1] = append(members[label-1], i)
		case label == -1:
			noiseCount++
		}
	}
	return members, noiseCount
}

// expandCluster absorbs all density-reachable neighbors of a core point
// using queue-based breadth-first expansion.
func expandCluster(events []GeoEvent, index neighborIndex, labels []int,
	seedIdx int, neighbors []int, clusterID int, params DBSCANParams) {

	labels[seedIdx] = clusterID

	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]

		if labels[idx] == -1 {
			labels[idx] = clusterID // noise becomes a border point
		}
		if labels[idx] != 0 {
			continue
		}

		labels[idx] = clusterID
		newNeighbors := index.regionQuery(events, idx, params.EpsMeters)
		if len(newNeighbors) >= params.MinPoints {
			// Core point: its neighborhood joins the expansion queue.
			neighbors = append(neighbors, newNeighbors...)
		}
	}
}
