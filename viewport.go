package cluster

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// WorldViewLongitudeDelta is the longitude span from which a region is treated
// as a world view and queried at the minimum zoom.
const WorldViewLongitudeDelta = 40.0

// DefaultViewportTileSize is the slippy map tile size in pixels.
const DefaultViewportTileSize = 256

// fractions are taken at a deep zoom and scaled back,
// maptile clamps the poles to the last tile row
const fractionZoom = 20

// Dimensions is the viewport size in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Viewport is what the index is queried with.
type Viewport struct {
	BBox BoundingBox `json:"bbox"`
	Zoom int         `json:"zoom"`
}

// RegionToBoundingBox returns center ± delta/2, clamped to the valid lon/lat ranges.
// Regions crossing the antimeridian are clamped, not wrapped.
func RegionToBoundingBox(r Region) BoundingBox {
	return BoundingBox{
		West:  clamp(r.CenterLongitude-r.LongitudeDelta/2, -180, 180),
		South: clamp(r.CenterLatitude-r.LatitudeDelta/2, -90, 90),
		East:  clamp(r.CenterLongitude+r.LongitudeDelta/2, -180, 180),
		North: clamp(r.CenterLatitude+r.LatitudeDelta/2, -90, 90),
	}
}

// ComputeViewport maps a region and the viewport size to a bbox and a zoom level.
// tileSize <= 0 means DefaultViewportTileSize.
func ComputeViewport(r Region, dims Dimensions, minZoom, maxZoom, tileSize int) Viewport {
	bbox := RegionToBoundingBox(r)
	if r.LongitudeDelta >= WorldViewLongitudeDelta {
		return Viewport{BBox: bbox, Zoom: minZoom}
	}
	if tileSize <= 0 {
		tileSize = DefaultViewportTileSize
	}
	return Viewport{BBox: bbox, Zoom: fitZoom(bbox, dims, minZoom, maxZoom, float64(tileSize))}
}

// fitZoom is the deepest zoom at which bbox still fits into dims
func fitZoom(bbox BoundingBox, dims Dimensions, minZoom, maxZoom int, tile float64) int {
	scale := float64(uint32(1) << fractionZoom)
	nw := maptile.Fraction(orb.Point{bbox.West, bbox.North}, fractionZoom)
	se := maptile.Fraction(orb.Point{bbox.East, bbox.South}, fractionZoom)
	fw := math.Abs(se.X()-nw.X()) / scale
	fh := math.Abs(se.Y()-nw.Y()) / scale

	ratio := math.Inf(1)
	if fw > 0 {
		ratio = float64(dims.Width) / (tile * fw)
	}
	if fh > 0 {
		ratio = math.Min(ratio, float64(dims.Height)/(tile*fh))
	}
	if math.IsInf(ratio, 1) {
		return maxZoom
	}
	if ratio <= 0 {
		return minZoom
	}
	z := math.Floor(math.Log2(ratio))
	return int(clamp(z, float64(minZoom), float64(maxZoom)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
