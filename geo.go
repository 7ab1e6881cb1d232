package cluster

import (
	"math"

	"github.com/paulmach/orb"
)

// Coordinate is a WGS84 position
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Point returns the coordinate as orb.Point, longitude first.
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// CoordinateFromPoint is the inverse of Coordinate.Point
func CoordinateFromPoint(p orb.Point) Coordinate {
	return Coordinate{Latitude: p.Lat(), Longitude: p.Lon()}
}

func (c Coordinate) valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// Region is the visible map extent as the map widget reports it.
type Region struct {
	CenterLatitude  float64 `json:"latitude"`
	CenterLongitude float64 `json:"longitude"`
	LatitudeDelta   float64 `json:"latitudeDelta"`
	LongitudeDelta  float64 `json:"longitudeDelta"`
}

// BoundingBox is a geographic rectangle in degrees.
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Bound converts the box to orb.Bound
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Contains reports whether c lies inside the box, edges included.
func (b BoundingBox) Contains(c Coordinate) bool {
	return b.Bound().Contains(c.Point())
}

// BoundingBoxOf returns the smallest box holding all coordinates.
// The zero box is returned for an empty slice.
func BoundingBoxOf(coords []Coordinate) BoundingBox {
	if len(coords) == 0 {
		return BoundingBox{}
	}
	mp := make(orb.MultiPoint, len(coords))
	for i, c := range coords {
		mp[i] = c.Point()
	}
	b := mp.Bound()
	return BoundingBox{West: b.Left(), South: b.Bottom(), East: b.Right(), North: b.Top()}
}

// EdgePadding is the margin, in pixels, kept free when fitting the map to coordinates.
type EdgePadding struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// UniformPadding returns the same padding on all four sides.
func UniformPadding(px int) EdgePadding {
	return EdgePadding{Top: px, Right: px, Bottom: px, Left: px}
}
