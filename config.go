package cluster

import (
	"log/slog"
	"reflect"
	"time"
)

// RadiusWidthRatio is the clustering radius, as a share of the viewport width,
// used when Config.Radius is zero.
const RadiusWidthRatio = 0.045

// Renderer draws the visible set. Both methods are called by Session.Render.
type Renderer[T any] interface {
	RenderMarker(item T)
	RenderCluster(node VisibleNode[T])
}

// RendererFuncs adapts two functions to Renderer. Both are required.
type RendererFuncs[T any] struct {
	Marker  func(item T)
	Cluster func(node VisibleNode[T])
}

func (r RendererFuncs[T]) RenderMarker(item T) { r.Marker(item) }

func (r RendererFuncs[T]) RenderCluster(node VisibleNode[T]) { r.Cluster(node) }

// Validate reports a missing function as *ConfigError.
func (r RendererFuncs[T]) Validate() error {
	switch {
	case r.Marker == nil:
		return &ConfigError{Field: "Renderer", Reason: "Marker is required"}
	case r.Cluster == nil:
		return &ConfigError{Field: "Renderer", Reason: "Cluster is required"}
	}
	return nil
}

// isNil also catches typed nil values stored in an interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Chan, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// MapWidget is the part of the map the session drives.
type MapWidget interface {
	// FitToCoordinates moves the camera so all coordinates are visible,
	// keeping padding pixels free on each side.
	FitToCoordinates(coords []Coordinate, padding EdgePadding)
}

// Config is the single validated configuration of a Session.
// Start from DefaultConfig and override what is needed.
type Config[T any] struct {
	MinZoom  int
	MaxZoom  int
	Extent   int
	Radius   float64 // pixels, 0 means RadiusWidthRatio of Width
	NodeSize int

	Accessor Accessor[T]

	ClusterPressMaxChildren      int
	PreserveClusterPressBehavior bool // true: fit the map to the leaves, false: only call OnClusterPress
	EdgePadding                  EdgePadding

	ClusteringEnabled bool
	AnimateClusters   bool

	Width            int
	Height           int
	ViewportTileSize int

	// ReadyFallback opens the readiness gate after this delay
	// even if the widget never reports layout or engine readiness. Zero disables it.
	ReadyFallback time.Duration

	Renderer  Renderer[T]
	MapWidget MapWidget
	Logger    *slog.Logger

	OnRegionChangeComplete func(region Region, nodes []VisibleNode[T])
	OnClusterPress         func(clusterID int, items []T)
	OnLayout               func()
	OnMapReady             func()
	OnVisibleCountChanged  func(prev, next int)
}

// DefaultConfig returns the defaults of the map component.
// Width, Height and Renderer still have to be set, and MapWidget too
// unless PreserveClusterPressBehavior is turned off.
func DefaultConfig[T any]() Config[T] {
	return Config[T]{
		MinZoom:                      1,
		MaxZoom:                      16,
		Extent:                       512,
		NodeSize:                     64,
		Accessor:                     ByFieldName[T](DefaultAccessorField),
		ClusterPressMaxChildren:      100,
		PreserveClusterPressBehavior: true,
		EdgePadding:                  UniformPadding(10),
		ClusteringEnabled:            true,
		AnimateClusters:              true,
		ViewportTileSize:             DefaultViewportTileSize,
	}
}

// Validate reports the first invalid setting as *ConfigError.
func (c Config[T]) Validate() error {
	switch {
	case c.MinZoom < 0 || c.MinZoom > MaxAllowedZoom:
		return &ConfigError{Field: "MinZoom", Reason: "must be within 0..21"}
	case c.MaxZoom < 0 || c.MaxZoom > MaxAllowedZoom:
		return &ConfigError{Field: "MaxZoom", Reason: "must be within 0..21"}
	case c.MinZoom > c.MaxZoom:
		return &ConfigError{Field: "MinZoom", Reason: "must not exceed MaxZoom"}
	case c.Extent <= 0:
		return &ConfigError{Field: "Extent", Reason: "must be positive"}
	case c.Radius < 0:
		return &ConfigError{Field: "Radius", Reason: "must not be negative"}
	case c.NodeSize <= 0:
		return &ConfigError{Field: "NodeSize", Reason: "must be positive"}
	case c.Width <= 0:
		return &ConfigError{Field: "Width", Reason: "must be positive"}
	case c.Height <= 0:
		return &ConfigError{Field: "Height", Reason: "must be positive"}
	case c.ViewportTileSize < 0:
		return &ConfigError{Field: "ViewportTileSize", Reason: "must not be negative"}
	case c.ClusterPressMaxChildren <= 0:
		return &ConfigError{Field: "ClusterPressMaxChildren", Reason: "must be positive"}
	case c.ReadyFallback < 0:
		return &ConfigError{Field: "ReadyFallback", Reason: "must not be negative"}
	case isNil(c.Renderer):
		return &ConfigError{Field: "Renderer", Reason: "is required"}
	case c.PreserveClusterPressBehavior && isNil(c.MapWidget):
		return &ConfigError{Field: "MapWidget", Reason: "is required when PreserveClusterPressBehavior is set"}
	}
	if v, ok := c.Renderer.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return c.Accessor.Validate()
}

// IndexOptions derives the index options.
func (c Config[T]) IndexOptions() Options {
	radius := c.Radius
	if radius == 0 {
		radius = float64(c.Width) * RadiusWidthRatio
	}
	return Options{
		MinZoom:  c.MinZoom,
		MaxZoom:  c.MaxZoom,
		Radius:   radius,
		Extent:   c.Extent,
		NodeSize: c.NodeSize,
	}
}

// Dimensions returns the viewport size.
func (c Config[T]) Dimensions() Dimensions {
	return Dimensions{Width: c.Width, Height: c.Height}
}
