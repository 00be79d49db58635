package geo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngineConfig() EngineConfig {
	return EngineConfig{
		EpsDegrees: 0.0005,
		MinPoints:  3,
		Risk:       testRiskParams(),
		CacheTTL:   5 * time.Minute,
	}
}

// engineClock is a settable clock for cache and recency tests.
type engineClock struct {
	t time.Time
}

func (c *engineClock) now() time.Time          { return c.t }
func (c *engineClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestEngine_SingleNeighborhood(t *testing.T) {
	clock := &engineClock{t: testTime}
	engine := NewEngineWithClock(testEngineConfig(), clock.now)

	events := []GeoEvent{
		eventAt(14.5764, 121.0851, 3, testTime),
		eventAt(14.5766, 121.0853, 4, testTime),
		eventAt(14.5762, 121.0849, 3, testTime),
	}

	clusters, err := engine.Cluster(events)
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	c := clusters[0]
	assert.Len(t, c.Members, 3)
	assert.InDelta(t, 14.57640, c.CentroidLat, 1e-5)
	assert.InDelta(t, 121.08510, c.CentroidLng, 1e-5)
	assert.Greater(t, c.RiskScore, 0.0)
	assert.LessOrEqual(t, c.RiskScore, 1.0)
	assert.GreaterOrEqual(t, c.RadiusMeters, 50.0)
}

func TestEngine_EmptyLog(t *testing.T) {
	engine := NewEngine(testEngineConfig())

	clusters, err := engine.Cluster(nil)
	require.NoError(t, err)
	assert.Empty(t, clusters)

	level, err := engine.RiskLevel(14.5764, 121.0851)
	require.NoError(t, err)
	assert.Zero(t, level)
}

func TestEngine_InvalidEventFailsFast(t *testing.T) {
	engine := NewEngine(testEngineConfig())

	events := []GeoEvent{
		eventAt(14.5764, 121.0851, 3, testTime),
		eventAt(math.NaN(), 121.0851, 3, testTime),
	}
	_, err := engine.Cluster(events)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = engine.RiskLevel(math.Inf(1), 121.0851)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngine_CacheTTL(t *testing.T) {
	clock := &engineClock{t: testTime}
	engine := NewEngineWithClock(testEngineConfig(), clock.now)

	dense := []GeoEvent{
		eventAt(14.5764, 121.0851, 3, testTime),
		eventAt(14.5766, 121.0853, 4, testTime),
		eventAt(14.5762, 121.0849, 3, testTime),
	}

	clusters, err := engine.Cluster(dense)
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	// Within the TTL the cached run is served even though the new snapshot
	// would cluster differently.
	clock.advance(1 * time.Minute)
	clusters, err = engine.ClustersCached(nil, false)
	require.NoError(t, err)
	assert.Len(t, clusters, 1, "cached result should be reused within TTL")

	// Past the TTL the snapshot is reclustered.
	clock.advance(5 * time.Minute)
	clusters, err = engine.ClustersCached(nil, false)
	require.NoError(t, err)
	assert.Empty(t, clusters, "stale cache should trigger a recompute")
}

func TestEngine_InvalidateForcesRecompute(t *testing.T) {
	clock := &engineClock{t: testTime}
	engine := NewEngineWithClock(testEngineConfig(), clock.now)

	dense := []GeoEvent{
		eventAt(14.5764, 121.0851, 3, testTime),
		eventAt(14.5766, 121.0853, 4, testTime),
		eventAt(14.5762, 121.0849, 3, testTime),
	}
	_, err := engine.Cluster(dense)
	require.NoError(t, err)

	engine.Invalidate()
	clusters, err := engine.ClustersCached(nil, false)
	require.NoError(t, err)
	assert.Empty(t, clusters, "invalidated cache should recompute from the new snapshot")
}

func TestEngine_ForceRefresh(t *testing.T) {
	clock := &engineClock{t: testTime}
	engine := NewEngineWithClock(testEngineConfig(), clock.now)

	dense := []GeoEvent{
		eventAt(14.5764, 121.0851, 3, testTime),
		eventAt(14.5766, 121.0853, 4, testTime),
		eventAt(14.5762, 121.0849, 3, testTime),
	}
	_, err := engine.Cluster(dense)
	require.NoError(t, err)

	clusters, err := engine.ClustersCached(nil, true)
	require.NoError(t, err)
	assert.Empty(t, clusters, "forceRefresh should bypass a fresh cache")
}

func TestEngine_RiskLevelAtCentroid(t *testing.T) {
	clock := &engineClock{t: testTime}
	engine := NewEngineWithClock(testEngineConfig(), clock.now)

	dense := []GeoEvent{
		eventAt(14.5764, 121.0851, 3, testTime),
		eventAt(14.5766, 121.0853, 4, testTime),
		eventAt(14.5762, 121.0849, 3, testTime),
	}
	clusters, err := engine.Cluster(dense)
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	level, err := engine.RiskLevel(clusters[0].CentroidLat, clusters[0].CentroidLng)
	require.NoError(t, err)
	assert.InDelta(t, clusters[0].RiskScore, level, 1e-9)
}

func TestEngine_HeatmapFromCache(t *testing.T) {
	clock := &engineClock{t: testTime}
	engine := NewEngineWithClock(testEngineConfig(), clock.now)

	dense := []GeoEvent{
		eventAt(14.5764, 121.0851, 3, testTime),
		eventAt(14.5766, 121.0853, 4, testTime),
		eventAt(14.5762, 121.0849, 3, testTime),
	}
	_, err := engine.Cluster(dense)
	require.NoError(t, err)

	grid := engine.HeatmapGrid(Bounds{
		North: 14.5864, South: 14.5664,
		East: 121.0951, West: 121.0751,
	}, 5)
	require.Len(t, grid, 5)
	assert.Greater(t, grid[2][2], float32(0), "center cell should carry the cluster's risk")
}

func TestEngine_Stats(t *testing.T) {
	clock := &engineClock{t: testTime}
	engine := NewEngineWithClock(testEngineConfig(), clock.now)

	events := []GeoEvent{
		eventAt(14.5764, 121.0851, 3, testTime),
		eventAt(14.5766, 121.0853, 4, testTime),
		eventAt(14.5762, 121.0849, 3, testTime),
		eventAt(14.6500, 121.0000, 5, testTime), // isolated
	}
	_, err := engine.Cluster(events)
	require.NoError(t, err)

	stats := engine.Stats()
	assert.Equal(t, 1, stats.ClusterCount)
	assert.Equal(t, 1, stats.NoiseCount)
	assert.Equal(t, testTime, stats.ComputedAt)
	assert.True(t, stats.CacheFresh)

	clock.advance(10 * time.Minute)
	assert.False(t, engine.Stats().CacheFresh)
}
