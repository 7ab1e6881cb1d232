package cluster

import (
	"math"
	"strconv"

	"github.com/MadAppGang/kdbush"
)

// That Zoom level indicate impossible large zoom level (Cluster's max is 21)
const InfinityZoomLevel = 100

// MaxAllowedZoom is the deepest zoom level the index builds.
const MaxAllowedZoom = 21

// Options of the index.
// MinZoom - minimum zoom level to generate clusters
// MaxZoom - maximum zoom level to generate clusters, limited by MaxAllowedZoom
// Radius - cluster radius in pixels
// Extent - size of tile in pixels, affects clustering radius
// NodeSize - size of the KD-tree node. Higher means faster indexing but slower search, and vise versa.
type Options struct {
	MinZoom  int
	MaxZoom  int
	Radius   float64
	Extent   int
	NodeSize int
}

// DefaultOptions returns
// MinZoom = 0
// MaxZoom = 16
// Radius = 40
// Extent = 512 (GMaps and OSM default)
// NodeSize = 64
func DefaultOptions() Options {
	return Options{
		MinZoom:  0,
		MaxZoom:  16,
		Radius:   40,
		Extent:   512,
		NodeSize: 64,
	}
}

// Point is the normalized index input: one per item, rebuilt on every snapshot.
type Point[T any] struct {
	Lon  float64
	Lat  float64
	Item T
}

// Coordinate returns the point position
func (p Point[T]) Coordinate() Coordinate {
	return Coordinate{Latitude: p.Lat, Longitude: p.Lon}
}

// ClusterPoint is a node of one zoom level:
// a single input point or a cluster of points.
// X and Y are mercator coordinates in [0..1].
type ClusterPoint struct {
	X, Y      float64
	zoom      int
	Id        int //Index for point, Id for cluster
	NumPoints int
	ParentId  int // cluster this node was merged into, -1 if never merged

	originZoom int
	children   []*ClusterPoint
}

func (cp *ClusterPoint) Coordinates() (float64, float64) {
	return cp.X, cp.Y
}

// VisibleNode is one thing to draw: a cluster (PointCount > 0)
// or a single marker (PointCount == 0) wrapping its item.
type VisibleNode[T any] struct {
	ID                    int        `json:"id"`
	Coordinate            Coordinate `json:"coordinate"`
	PointCount            int        `json:"pointCount"`
	PointCountAbbreviated string     `json:"pointCountAbbreviated,omitempty"`
	Item                  T          `json:"item,omitempty"`
}

// IsCluster reports whether the node aggregates several items.
func (n VisibleNode[T]) IsCluster() bool {
	return n.PointCount > 0
}

// Index owns all zoom levels of clusters for one item snapshot.
// Build replaces the whole state; queries never mutate it.
type Index[T any] struct {
	opts Options

	Indexes []*kdbush.KDBush
	points  []Point[T]

	clusters       map[int]*ClusterPoint
	ClusterIdxSeed int

	built bool
}

// NewIndex creates an empty index. Zero Radius, Extent and NodeSize fall back to
// DefaultOptions values, zoom levels are clamped to 0..MaxAllowedZoom.
func NewIndex[T any](opts Options) *Index[T] {
	def := DefaultOptions()
	if opts.MinZoom < 0 {
		opts.MinZoom = 0
	}
	if opts.MaxZoom < 0 {
		opts.MaxZoom = 0
	}
	//limit max Zoom
	if opts.MaxZoom > MaxAllowedZoom {
		opts.MaxZoom = MaxAllowedZoom
	}
	if opts.MinZoom > opts.MaxZoom {
		opts.MinZoom = opts.MaxZoom
	}
	if opts.Radius <= 0 {
		opts.Radius = def.Radius
	}
	if opts.Extent <= 0 {
		opts.Extent = def.Extent
	}
	if opts.NodeSize <= 0 {
		opts.NodeSize = def.NodeSize
	}
	return &Index[T]{opts: opts}
}

// Options returns the effective options
func (idx *Index[T]) Options() Options {
	return idx.opts
}

// Len returns the number of indexed points.
func (idx *Index[T]) Len() int {
	return len(idx.points)
}

// Build creates multilevel clustered indexes for points.
// Everything is assembled in local state and published at the end,
// so readers never see a half built index.
func (idx *Index[T]) Build(points []Point[T]) error {
	own := make([]Point[T], len(points))
	copy(own, points)

	b := &builder{
		opts:     idx.opts,
		clusters: make(map[int]*ClusterPoint),
	}
	//adding extra layer for infinite zoom (initial) layers data storage
	indexes := make([]*kdbush.KDBush, idx.opts.MaxZoom+2)

	//get digits number, start from next exponent
	//if we have 78, all cluster will start from 100...
	//if we have 986 points, all clusters ids will start from 1000
	seed := clusterIdxSeed(len(own))
	b.clusterIDLast = seed

	if len(own) > 0 {
		clusters := translatePointsToClusterPoints(own)
		for z := idx.opts.MaxZoom; z >= idx.opts.MinZoom; z-- {
			//create index from clusters from previous iteration
			indexes[z+1] = kdbush.NewBush(clustersToPoints(clusters), idx.opts.NodeSize)

			//create clusters for level up using just created index
			clusters = b.clusterize(clusters, z, indexes[z+1])
		}
		//index topmost points
		indexes[idx.opts.MinZoom] = kdbush.NewBush(clustersToPoints(clusters), idx.opts.NodeSize)
	}

	idx.Indexes = indexes
	idx.points = own
	idx.clusters = b.clusters
	idx.ClusterIdxSeed = seed
	idx.built = true
	return nil
}

// GetClusters returns clusters and single markers inside bbox for the zoom level.
// A box with West > East is treated as crossing the antimeridian.
func (idx *Index[T]) GetClusters(bbox BoundingBox, zoom int) ([]VisibleNode[T], error) {
	if !idx.built {
		return nil, ErrNotInitialized
	}
	if len(idx.points) == 0 {
		return []VisibleNode[T]{}, nil
	}

	minLng := normalizeLongitude(bbox.West)
	if bbox.West == 180 {
		minLng = 180
	}
	minLat := math.Max(-90, math.Min(90, bbox.South))
	maxLng := 180.0
	if bbox.East != 180 {
		maxLng = normalizeLongitude(bbox.East)
	}
	maxLat := math.Max(-90, math.Min(90, bbox.North))

	if bbox.East-bbox.West >= 360 {
		minLng, maxLng = -180, 180
	} else if minLng > maxLng {
		eastern, _ := idx.GetClusters(BoundingBox{West: minLng, South: minLat, East: 180, North: maxLat}, zoom)
		western, _ := idx.GetClusters(BoundingBox{West: -180, South: minLat, East: maxLng, North: maxLat}, zoom)
		return append(eastern, western...), nil
	}

	index := idx.Indexes[idx.limitZoom(zoom)]
	minX, maxY := MercatorProjection(Coordinate{Latitude: minLat, Longitude: minLng})
	maxX, minY := MercatorProjection(Coordinate{Latitude: maxLat, Longitude: maxLng})
	ids := index.Range(minX, minY, maxX, maxY)
	result := make([]VisibleNode[T], len(ids))
	for i := range ids {
		result[i] = idx.node(index.Points[ids[i]].(*ClusterPoint))
	}
	return result, nil
}

// GetChildren returns the nodes a cluster splits into one zoom level deeper.
func (idx *Index[T]) GetChildren(clusterID int) ([]VisibleNode[T], error) {
	c, err := idx.cluster(clusterID)
	if err != nil {
		return nil, err
	}
	result := make([]VisibleNode[T], len(c.children))
	for i, ch := range c.children {
		result[i] = idx.node(ch)
	}
	return result, nil
}

// GetLeaves returns up to limit items of the cluster, skipping the first offset ones.
func (idx *Index[T]) GetLeaves(clusterID, limit, offset int) ([]T, error) {
	points, err := idx.GetLeafPoints(clusterID, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]T, len(points))
	for i := range points {
		items[i] = points[i].Item
	}
	return items, nil
}

// GetLeafPoints is GetLeaves keeping the leaf coordinates.
func (idx *Index[T]) GetLeafPoints(clusterID, limit, offset int) ([]Point[T], error) {
	c, err := idx.cluster(clusterID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []Point[T]{}, nil
	}
	if offset < 0 {
		offset = 0
	}
	ids := make([]int, 0, min(limit, c.NumPoints))
	ids, _ = appendLeaves(ids, c, limit, offset, 0)
	result := make([]Point[T], len(ids))
	for i, id := range ids {
		result[i] = idx.points[id]
	}
	return result, nil
}

// GetClusterExpansionZoom returns the zoom level at which the cluster splits.
func (idx *Index[T]) GetClusterExpansionZoom(clusterID int) (int, error) {
	c, err := idx.cluster(clusterID)
	if err != nil {
		return 0, err
	}
	return min(c.originZoom+1, idx.opts.MaxZoom+1), nil
}

func (idx *Index[T]) cluster(clusterID int) (*ClusterPoint, error) {
	if !idx.built {
		return nil, ErrNotInitialized
	}
	c, ok := idx.clusters[clusterID]
	if !ok {
		return nil, ErrClusterNotFound
	}
	return c, nil
}

// node converts an index entry to a result, leaf coordinates are reported as given
func (idx *Index[T]) node(p *ClusterPoint) VisibleNode[T] {
	if p.Id < idx.ClusterIdxSeed {
		pt := idx.points[p.Id]
		return VisibleNode[T]{ID: p.Id, Coordinate: pt.Coordinate(), Item: pt.Item}
	}
	return VisibleNode[T]{
		ID:                    p.Id,
		Coordinate:            ReverseMercatorProjection(p.X, p.Y),
		PointCount:            p.NumPoints,
		PointCountAbbreviated: abbreviate(p.NumPoints),
	}
}

func (idx *Index[T]) limitZoom(zoom int) int {
	if zoom > idx.opts.MaxZoom+1 {
		zoom = idx.opts.MaxZoom + 1
	}
	if zoom < idx.opts.MinZoom {
		zoom = idx.opts.MinZoom
	}
	return zoom
}

////////// End of Index implementation

type builder struct {
	opts          Options
	clusters      map[int]*ClusterPoint
	clusterIDLast int
}

//clusterize points for zoom level, tree holds points of zoom+1 in the same order
func (b *builder) clusterize(points []*ClusterPoint, zoom int, tree *kdbush.KDBush) []*ClusterPoint {
	var result []*ClusterPoint
	r := b.opts.Radius / (float64(b.opts.Extent) * math.Pow(2, float64(zoom)))

	//iterate all clusters
	for _, p := range points {
		//skip points we have already clustered
		if p.zoom <= zoom {
			continue
		}
		//mark this point as visited
		p.zoom = zoom

		//find all neighbours
		neighbourIds := tree.Within(&kdbush.SimplePoint{X: p.X, Y: p.Y}, r)

		nPoints := p.NumPoints
		wx := p.X * float64(nPoints)
		wy := p.Y * float64(nPoints)

		var foundNeighbours []*ClusterPoint
		for _, j := range neighbourIds {
			nb := points[j]
			//Filter out neighbours, that are already processed (and processed point "p" as well)
			if zoom < nb.zoom {
				wx += nb.X * float64(nb.NumPoints)
				wy += nb.Y * float64(nb.NumPoints)
				nPoints += nb.NumPoints
				nb.zoom = zoom //set the zoom to skip in other iterations
				foundNeighbours = append(foundNeighbours, nb)
			}
		}

		if len(foundNeighbours) == 0 {
			result = append(result, p)
			continue
		}

		//create new cluster
		c := &ClusterPoint{
			X:          wx / float64(nPoints),
			Y:          wy / float64(nPoints),
			NumPoints:  nPoints,
			zoom:       InfinityZoomLevel,
			Id:         b.clusterIDLast,
			ParentId:   -1,
			originZoom: zoom,
			children:   append([]*ClusterPoint{p}, foundNeighbours...),
		}
		b.clusterIDLast++
		for _, ch := range c.children {
			ch.ParentId = c.Id
		}
		b.clusters[c.Id] = c
		result = append(result, c)
	}
	return result
}

/////////////////////////////////
// private stuff
/////////////////////////////////

//translate points to ClusterPoints with projection coordinates
func translatePointsToClusterPoints[T any](points []Point[T]) []*ClusterPoint {
	var result = make([]*ClusterPoint, len(points))
	for i, p := range points {
		cp := ClusterPoint{
			zoom:      InfinityZoomLevel,
			Id:        i,
			NumPoints: 1,
			ParentId:  -1,
		}
		cp.X, cp.Y = MercatorProjection(p.Coordinate())
		result[i] = &cp
	}
	return result
}

// appendLeaves walks the cluster tree depth first.
// skipped counts leaves passed over because of offset.
func appendLeaves(ids []int, c *ClusterPoint, limit, offset, skipped int) ([]int, int) {
	for _, ch := range c.children {
		if len(ids) >= limit {
			break
		}
		if len(ch.children) > 0 {
			if skipped+ch.NumPoints <= offset {
				//skip the whole cluster
				skipped += ch.NumPoints
				continue
			}
			ids, skipped = appendLeaves(ids, ch, limit, offset, skipped)
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		ids = append(ids, ch.Id)
	}
	return ids, skipped
}

func clusterIdxSeed(n int) int {
	if n <= 0 {
		return 1
	}
	return int(math.Pow(10, float64(digitsCount(n))))
}

//count number of digits, for example 123356 will return 6
func digitsCount(a int) int {
	if a < 0 {
		a = -a
	}
	result := 0
	for a != 0 {
		a /= 10
		result += 1
	}
	return result
}

func clustersToPoints(points []*ClusterPoint) []kdbush.Point {
	result := make([]kdbush.Point, len(points))
	for i, v := range points {
		result[i] = v
	}
	return result
}

func normalizeLongitude(lng float64) float64 {
	return math.Mod(math.Mod(lng+180, 360)+360, 360) - 180
}

// abbreviate renders point counts the way map UIs show them: 950, 1.2k, 15k
func abbreviate(n int) string {
	switch {
	case n >= 10000:
		return strconv.Itoa(int(math.Round(float64(n)/1000))) + "k"
	case n >= 1000:
		return strconv.FormatFloat(math.Round(float64(n)/100)/10, 'f', -1, 64) + "k"
	}
	return strconv.Itoa(n)
}
