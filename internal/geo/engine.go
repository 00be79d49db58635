package geo

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/safety.signal/internal/config"
	"github.com/banshee-data/safety.signal/internal/monitoring"
	"github.com/google/uuid"
)

// EngineConfig holds the clustering and scoring parameters. Defaults live
// in config/tuning.defaults.json.
type EngineConfig struct {
	EpsDegrees float64 // Neighborhood radius in degrees (×111000 → metres)
	MinPoints  int
	Risk       RiskParams
	CacheTTL   time.Duration
}

// DefaultEngineConfig returns the engine configuration from the canonical
// tuning defaults file. Panics if the file cannot be found — intended for
// tests and tools.
func DefaultEngineConfig() EngineConfig {
	return EngineConfigFromTuning(config.MustLoadDefaultConfig())
}

// EngineConfigFromTuning builds an EngineConfig from a loaded TuningConfig.
func EngineConfigFromTuning(cfg *config.TuningConfig) EngineConfig {
	return EngineConfig{
		EpsDegrees: cfg.GetDBSCANEpsDegrees(),
		MinPoints:  cfg.GetDBSCANMinPoints(),
		Risk: RiskParams{
			RecencyWeight:          cfg.GetRiskRecencyWeight(),
			SeverityWeight:         cfg.GetRiskSeverityWeight(),
			DensityWeight:          cfg.GetRiskDensityWeight(),
			RecencyDecayDays:       cfg.GetRecencyDecayDays(),
			DensitySaturationCount: cfg.GetDensitySaturationCount(),
			MinRadiusMeters:        cfg.GetMinClusterRadiusMeters(),
		},
		CacheTTL: cfg.GetClusterCacheTTL(),
	}
}

// resultCache holds one clustering run with its computation time and TTL,
// so staleness is testable on its own with an injected clock.
type resultCache struct {
	clusters   []DangerCluster
	noiseCount int
	computedAt time.Time
	ttl        time.Duration
	populated  bool
}

// fresh reports whether the cached run is still usable at time now.
func (c *resultCache) fresh(now time.Time) bool {
	return c.populated && now.Sub(c.computedAt) < c.ttl
}

func (c *resultCache) invalidate() {
	c.populated = false
	c.clusters = nil
	c.noiseCount = 0
}

// EngineStats summarizes the last completed clustering run.
type EngineStats struct {
	ClusterCount int
	NoiseCount   int
	ComputedAt   time.Time
	CacheFresh   bool
}

// Engine clusters incident events into danger zones and serves point-risk
// and heatmap queries from a cached result set. Recomputes are a
// single-writer critical section; queries read the immutable cached
// snapshot under the same lock.
type Engine struct {
	cfg EngineConfig
	now func() time.Time

	mu    sync.Mutex
	cache resultCache
	index neighborIndex
}

// NewEngine creates an engine using the wall clock.
func NewEngine(cfg EngineConfig) *Engine {
	return NewEngineWithClock(cfg, time.Now)
}

// NewEngineWithClock creates an engine with an injected clock, used by
// tests to exercise cache TTL and recency decay deterministically.
func NewEngineWithClock(cfg EngineConfig, now func() time.Time) *Engine {
	return &Engine{
		cfg:   cfg,
		now:   now,
		index: linearIndex{},
		cache: resultCache{ttl: cfg.CacheTTL},
	}
}

// Cluster recomputes danger zones from a snapshot of the event log and
// caches the result. An empty snapshot, or one where every event is noise,
// yields an empty cluster list — not an error. Events that violate the
// input contract fail fast with ErrInvalidInput.
func (g *Engine) Cluster(events []GeoEvent) ([]DangerCluster, error) {
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.recomputeLocked(events), nil
}

// ClustersCached returns the cached cluster set, recomputing from the
// given snapshot only when the cache is stale, invalidated, or
// forceRefresh is set.
func (g *Engine) ClustersCached(events []GeoEvent, forceRefresh bool) ([]DangerCluster, error) {
	g.mu.Lock()
	if !forceRefresh && g.cache.fresh(g.now()) {
		clusters := g.cache.clusters
		g.mu.Unlock()
		return clusters, nil
	}
	g.mu.Unlock()

	return g.Cluster(events)
}

// Invalidate drops the cached result. Call it whenever a new event is
// appended to the log so the next query reclusters.
func (g *Engine) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache.invalidate()
}

// RiskLevel returns the risk in [0,1] at a point against the cached
// cluster set. Non-finite coordinates fail fast with ErrInvalidInput.
func (g *Engine) RiskLevel(lat, lng float64) (float64, error) {
	probe := GeoEvent{Latitude: lat, Longitude: lng, Severity: SeverityMin}
	if err := probe.Validate(); err != nil {
		return 0, err
	}

	g.mu.Lock()
	clusters := g.cache.clusters
	g.mu.Unlock()
	return RiskLevel(lat, lng, clusters), nil
}

// HeatmapGrid rasterizes the cached cluster set over the bounds.
func (g *Engine) HeatmapGrid(b Bounds, gridSize int) [][]float32 {
	g.mu.Lock()
	clusters := g.cache.clusters
	g.mu.Unlock()
	return HeatmapGrid(clusters, gridSize, b)
}

// Stats reports the last completed run.
func (g *Engine) Stats() EngineStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return EngineStats{
		ClusterCount: len(g.cache.clusters),
		NoiseCount:   g.cache.noiseCount,
		ComputedAt:   g.cache.computedAt,
		CacheFresh:   g.cache.fresh(g.now()),
	}
}

// recomputeLocked runs DBSCAN and cluster synthesis, refreshing the cache.
// Callers must hold g.mu.
func (g *Engine) recomputeLocked(events []GeoEvent) []DangerCluster {
	now := g.now()
	params := DBSCANParams{
		EpsMeters: g.cfg.EpsDegrees * MetersPerDegree,
		MinPoints: g.cfg.MinPoints,
	}

	memberSets, noiseCount := dbscan(events, params, g.index)

	clusters := make([]DangerCluster, 0, len(memberSets))
	for i, members := range memberSets {
		memberEvents := make([]GeoEvent, len(members))
		for j, idx := range members {
			memberEvents[j] = events[idx]
		}
		clusters = append(clusters, synthesizeCluster(i+1, memberEvents, now, g.cfg.Risk))
	}
	sortClusters(clusters)

	g.cache = resultCache{
		clusters:   clusters,
		noiseCount: noiseCount,
		computedAt: now,
		ttl:        g.cfg.CacheTTL,
		populated:  true,
	}

	monitoring.Debugf("geo: recompute %s: %d events -> %d clusters, %d noise",
		uuid.NewString()[:8], len(events), len(clusters), noiseCount)
	return clusters
}
