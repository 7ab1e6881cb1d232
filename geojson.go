package cluster

import (
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders a visible set as GeoJSON points.
// Clusters carry cluster, cluster_id, point_count and point_count_abbreviated
// properties. Markers carry the item under "item".
func FeatureCollection[T any](nodes []VisibleNode[T]) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, n := range nodes {
		f := geojson.NewFeature(n.Coordinate.Point())
		f.ID = n.ID
		if n.IsCluster() {
			f.Properties["cluster"] = true
			f.Properties["cluster_id"] = n.ID
			f.Properties["point_count"] = n.PointCount
			f.Properties["point_count_abbreviated"] = n.PointCountAbbreviated
		} else {
			f.Properties["cluster"] = false
			f.Properties["item"] = n.Item
		}
		fc.Append(f)
	}
	return fc
}
