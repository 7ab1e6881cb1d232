package cluster

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomPoints returns n points spread over lon/lat ranges, items are the input positions
func randomPoints(seed int64, n int, west, south, east, north float64) []Point[int] {
	r := rand.New(rand.NewSource(seed))
	points := make([]Point[int], n)
	for i := range points {
		points[i] = Point[int]{
			Lon:  west + r.Float64()*(east-west),
			Lat:  south + r.Float64()*(north-south),
			Item: i,
		}
	}
	return points
}

func buildIndex(t *testing.T, points []Point[int]) *Index[int] {
	t.Helper()
	idx := NewIndex[int](DefaultOptions())
	require.NoError(t, idx.Build(points))
	return idx
}

func weight[T any](nodes []VisibleNode[T]) int {
	total := 0
	for _, n := range nodes {
		if n.IsCluster() {
			total += n.PointCount
		} else {
			total++
		}
	}
	return total
}

var world = BoundingBox{West: -180, South: -85, East: 180, North: 85}

func TestNewIndex(t *testing.T) {
	idx := NewIndex[int](DefaultOptions())
	assert.Equal(t, 0, idx.Options().MinZoom, "they should be equal")
	assert.Equal(t, 16, idx.Options().MaxZoom, "they should be equal")
	assert.Equal(t, 40.0, idx.Options().Radius, "they should be equal")
	assert.Equal(t, 512, idx.Options().Extent, "they should be equal")
	assert.Equal(t, 64, idx.Options().NodeSize, "they should be equal")

	idx = NewIndex[int](Options{MinZoom: 25, MaxZoom: 30})
	assert.Equal(t, MaxAllowedZoom, idx.Options().MaxZoom)
	assert.Equal(t, MaxAllowedZoom, idx.Options().MinZoom)
	assert.Equal(t, 40.0, idx.Options().Radius)
	assert.Equal(t, 512, idx.Options().Extent)
	assert.Equal(t, 64, idx.Options().NodeSize)
}

func TestGetClustersNotInitialized(t *testing.T) {
	idx := NewIndex[int](DefaultOptions())
	_, err := idx.GetClusters(world, 3)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = idx.GetLeaves(100, 10, 0)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestGetClustersEmptySnapshot(t *testing.T) {
	idx := buildIndex(t, nil)
	nodes, err := idx.GetClusters(world, 3)
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.Equal(t, 0, idx.Len())
}

func TestGetClustersInsideBox(t *testing.T) {
	idx := buildIndex(t, randomPoints(1, 2000, -20, 30, 40, 60))

	boxes := []BoundingBox{
		{West: -10, South: 35, East: 10, North: 50},
		{West: 0, South: 40, East: 5, North: 45},
		{West: 20, South: 50, East: 40, North: 60},
	}
	for _, box := range boxes {
		for z := 0; z <= 17; z++ {
			nodes, err := idx.GetClusters(box, z)
			require.NoError(t, err)
			for _, n := range nodes {
				assert.True(t, n.Coordinate.Longitude >= box.West-1e-9 && n.Coordinate.Longitude <= box.East+1e-9,
					"zoom %d lon %v outside %+v", z, n.Coordinate.Longitude, box)
				assert.True(t, n.Coordinate.Latitude >= box.South-1e-9 && n.Coordinate.Latitude <= box.North+1e-9,
					"zoom %d lat %v outside %+v", z, n.Coordinate.Latitude, box)
			}
		}
	}
}

func TestGetClustersIdempotent(t *testing.T) {
	idx := buildIndex(t, randomPoints(2, 500, -50, -40, 50, 40))
	box := BoundingBox{West: -30, South: -20, East: 30, North: 20}
	for z := 0; z <= 17; z++ {
		first, err := idx.GetClusters(box, z)
		require.NoError(t, err)
		second, err := idx.GetClusters(box, z)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestGetClustersMonotonicDeclustering(t *testing.T) {
	const n = 1000
	idx := buildIndex(t, randomPoints(3, n, -120, -60, 120, 60))

	prev, prevMarkers := 0, 0
	for z := 0; z <= idx.Options().MaxZoom+1; z++ {
		nodes, err := idx.GetClusters(world, z)
		require.NoError(t, err)
		markers := 0
		for _, node := range nodes {
			if !node.IsCluster() {
				markers++
			}
		}
		assert.GreaterOrEqual(t, len(nodes), prev, "zoom %d", z)
		assert.GreaterOrEqual(t, markers, prevMarkers, "markers at zoom %d", z)
		assert.Equal(t, n, weight(nodes), "zoom %d", z)
		prev, prevMarkers = len(nodes), markers
	}
	assert.Equal(t, n, prevMarkers)
	assert.Equal(t, n, prev, "everything is split at max zoom + 1")
}

func TestGetClustersAntimeridian(t *testing.T) {
	idx := buildIndex(t, []Point[int]{
		{Lon: 179.5, Lat: -17, Item: 0},
		{Lon: -179.5, Lat: -17, Item: 1},
		{Lon: 0, Lat: -17, Item: 2},
	})

	nodes, err := idx.GetClusters(BoundingBox{West: 170, South: -20, East: -170, North: -10}, 17)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.ElementsMatch(t, []int{0, 1}, []int{nodes[0].Item, nodes[1].Item})

	nodes, err = idx.GetClusters(BoundingBox{West: -540, South: -20, East: 540, North: -10}, 17)
	require.NoError(t, err)
	assert.Len(t, nodes, 3)

	// a box collapsed onto the antimeridian stays there
	idx = buildIndex(t, []Point[int]{
		{Lon: 0, Lat: 0, Item: 0},
		{Lon: 179.99, Lat: 0, Item: 1},
	})
	nodes, err = idx.GetClusters(BoundingBox{West: 180, South: -1, East: 180, North: 1}, 16)
	require.NoError(t, err)
	for _, n := range nodes {
		assert.NotEqual(t, 0.0, n.Coordinate.Longitude)
		assert.NotEqual(t, 0, n.Item)
	}
}

func TestLeafNodes(t *testing.T) {
	points := []Point[int]{{Lon: 10.123456789, Lat: 20.987654321, Item: 42}}
	idx := buildIndex(t, points)

	nodes, err := idx.GetClusters(world, 10)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.False(t, nodes[0].IsCluster())
	assert.Equal(t, 42, nodes[0].Item)
	assert.Equal(t, 0, nodes[0].ID)
	assert.Equal(t, points[0].Coordinate(), nodes[0].Coordinate)
	assert.Empty(t, nodes[0].PointCountAbbreviated)
}

func TestBuildReplacesSnapshot(t *testing.T) {
	idx := NewIndex[int](DefaultOptions())
	require.NoError(t, idx.Build(randomPoints(4, 300, -10, -10, 10, 10)))

	replacement := randomPoints(5, 20, 100, 10, 110, 20)
	for i := range replacement {
		replacement[i].Item = 1000 + i
	}
	require.NoError(t, idx.Build(replacement))
	assert.Equal(t, 20, idx.Len())
	assert.Equal(t, 100, idx.ClusterIdxSeed)

	nodes, err := idx.GetClusters(world, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, weight(nodes))

	nodes, err = idx.GetClusters(BoundingBox{West: -10, South: -10, East: 10, North: 10}, 5)
	require.NoError(t, err)
	assert.Empty(t, nodes, "nothing of the old snapshot survives")

	nodes, err = idx.GetClusters(world, idx.Options().MaxZoom+1)
	require.NoError(t, err)
	for _, n := range nodes {
		assert.GreaterOrEqual(t, n.Item, 1000)
	}
}

func TestInputIsCopied(t *testing.T) {
	points := randomPoints(6, 10, 0, 0, 1, 1)
	idx := buildIndex(t, points)
	points[0] = Point[int]{Lon: 100, Lat: 50, Item: -1}

	leaves, err := idx.GetClusters(world, idx.Options().MaxZoom+1)
	require.NoError(t, err)
	for _, n := range leaves {
		assert.NotEqual(t, -1, n.Item)
	}
}

func TestGetLeaves(t *testing.T) {
	idx := buildIndex(t, randomPoints(7, 150, 0, 0, 0.01, 0.01))

	nodes, err := idx.GetClusters(world, 0)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	c := nodes[0]
	require.True(t, c.IsCluster())
	assert.Equal(t, 150, c.PointCount)
	assert.Equal(t, "150", c.PointCountAbbreviated)

	all, err := idx.GetLeaves(c.ID, 1000, 0)
	require.NoError(t, err)
	assert.Len(t, all, 150)
	assert.ElementsMatch(t, seq(150), all)

	limited, err := idx.GetLeaves(c.ID, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, all[:100], limited)

	page, err := idx.GetLeaves(c.ID, 10, 95)
	require.NoError(t, err)
	assert.Equal(t, all[95:105], page)

	tail, err := idx.GetLeaves(c.ID, 10, 145)
	require.NoError(t, err)
	assert.Equal(t, all[145:], tail)

	none, err := idx.GetLeaves(c.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = idx.GetLeaves(12345, 10, 0)
	assert.ErrorIs(t, err, ErrClusterNotFound)
	_, err = idx.GetLeaves(3, 10, 0)
	assert.ErrorIs(t, err, ErrClusterNotFound, "leaf ids are not clusters")
}

func TestGetChildrenAndExpansionZoom(t *testing.T) {
	idx := buildIndex(t, randomPoints(8, 400, -5, -5, 5, 5))

	for z := 0; z <= idx.Options().MaxZoom; z++ {
		nodes, err := idx.GetClusters(world, z)
		require.NoError(t, err)
		for _, n := range nodes {
			if !n.IsCluster() {
				continue
			}
			children, err := idx.GetChildren(n.ID)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, len(children), 2)
			assert.Equal(t, n.PointCount, weight(children))

			ez, err := idx.GetClusterExpansionZoom(n.ID)
			require.NoError(t, err)
			assert.Greater(t, ez, z)
			assert.LessOrEqual(t, ez, idx.Options().MaxZoom+1)
		}
	}

	_, err := idx.GetChildren(-1)
	assert.ErrorIs(t, err, ErrClusterNotFound)
}

func TestClusterIDs(t *testing.T) {
	idx := buildIndex(t, randomPoints(9, 78, 0, 0, 1, 1))
	assert.Equal(t, 100, idx.ClusterIdxSeed)

	for z := 0; z <= idx.Options().MaxZoom+1; z++ {
		nodes, err := idx.GetClusters(world, z)
		require.NoError(t, err)
		for _, n := range nodes {
			if n.IsCluster() {
				assert.GreaterOrEqual(t, n.ID, idx.ClusterIdxSeed)
			} else {
				assert.Less(t, n.ID, 78)
				assert.Equal(t, n.ID, n.Item)
			}
		}
	}
}

func TestClusterIdxSeed(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 1},
		{1, 10},
		{9, 10},
		{10, 100},
		{78, 100},
		{986, 1000},
		{1000, 10000},
		{123356, 1000000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clusterIdxSeed(tt.n), "n=%d", tt.n)
	}
}

func TestAbbreviate(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{2, "2"},
		{950, "950"},
		{1000, "1k"},
		{1234, "1.2k"},
		{1250, "1.3k"},
		{9949, "9.9k"},
		{15300, "15k"},
		{123456, "123k"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, abbreviate(tt.n), "n=%d", tt.n)
	}
}

func TestNormalizeLongitude(t *testing.T) {
	assert.InDelta(t, 0.0, normalizeLongitude(360), 1e-9)
	assert.InDelta(t, -170.0, normalizeLongitude(190), 1e-9)
	assert.InDelta(t, 170.0, normalizeLongitude(-190), 1e-9)
	assert.InDelta(t, -180.0, normalizeLongitude(180), 1e-9)
}

func TestProjectionRoundTrip(t *testing.T) {
	for _, c := range []Coordinate{{0, 0}, {48.8566, 2.3522}, {-33.8688, 151.2093}, {85, -179}} {
		x, y := MercatorProjection(c)
		back := ReverseMercatorProjection(x, y)
		assert.InDelta(t, c.Latitude, back.Latitude, 1e-9)
		assert.InDelta(t, c.Longitude, back.Longitude, 1e-9)
	}
	_, y := MercatorProjection(Coordinate{Latitude: 90})
	assert.Equal(t, 0.0, y)
	_, y = MercatorProjection(Coordinate{Latitude: -90})
	assert.Equal(t, 1.0, y)
}

func seq(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}
