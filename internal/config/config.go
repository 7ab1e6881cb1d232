// Package config reads the settings of the binaries from the environment.
// A .env file is loaded first when present, real environment variables win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	cluster "github.com/MadAppGang/clustermap"
)

// Settings are the process level settings: server and clustering knobs.
type Settings struct {
	Addr         string
	DataPath     string
	RateLimitRPS float64

	Width    int
	Height   int
	TileSize int

	MinZoom  int
	MaxZoom  int
	Extent   int
	Radius   float64
	NodeSize int

	AccessorField                string
	ClusterPressMaxChildren      int
	PreserveClusterPressBehavior bool
	EdgePadding                  int
	ClusteringEnabled            bool
	AnimateClusters              bool
	ReadyFallback                time.Duration
}

// Default returns the settings used when nothing is set.
func Default() Settings {
	def := cluster.DefaultConfig[any]()
	return Settings{
		Addr:                         ":8080",
		DataPath:                     "testdata/places.geojson",
		RateLimitRPS:                 50,
		Width:                        1024,
		Height:                       768,
		TileSize:                     def.ViewportTileSize,
		MinZoom:                      def.MinZoom,
		MaxZoom:                      def.MaxZoom,
		Extent:                       def.Extent,
		Radius:                       def.Radius,
		NodeSize:                     def.NodeSize,
		AccessorField:                cluster.DefaultAccessorField,
		ClusterPressMaxChildren:      def.ClusterPressMaxChildren,
		PreserveClusterPressBehavior: def.PreserveClusterPressBehavior,
		EdgePadding:                  def.EdgePadding.Top,
		ClusteringEnabled:            def.ClusteringEnabled,
		AnimateClusters:              def.AnimateClusters,
		ReadyFallback:                def.ReadyFallback,
	}
}

// Load reads the given env files, .env when none is given, and then the environment.
// Missing files are ignored.
func Load(files ...string) (Settings, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

// FromEnv builds settings from environment variables over Default.
func FromEnv() (Settings, error) {
	s := Default()
	p := parser{}
	p.str("ADDR", &s.Addr)
	p.str("DATA_PATH", &s.DataPath)
	p.float("RATE_LIMIT_RPS", &s.RateLimitRPS)
	p.int("CLUSTER_WIDTH", &s.Width)
	p.int("CLUSTER_HEIGHT", &s.Height)
	p.int("CLUSTER_TILE_SIZE", &s.TileSize)
	p.int("CLUSTER_MIN_ZOOM", &s.MinZoom)
	p.int("CLUSTER_MAX_ZOOM", &s.MaxZoom)
	p.int("CLUSTER_EXTENT", &s.Extent)
	p.float("CLUSTER_RADIUS", &s.Radius)
	p.int("CLUSTER_NODE_SIZE", &s.NodeSize)
	p.str("CLUSTER_ACCESSOR", &s.AccessorField)
	p.int("CLUSTER_PRESS_MAX_CHILDREN", &s.ClusterPressMaxChildren)
	p.bool("CLUSTER_PRESERVE_PRESS", &s.PreserveClusterPressBehavior)
	p.int("CLUSTER_EDGE_PADDING", &s.EdgePadding)
	p.bool("CLUSTER_ENABLED", &s.ClusteringEnabled)
	p.bool("CLUSTER_ANIMATE", &s.AnimateClusters)
	p.duration("CLUSTER_READY_FALLBACK", &s.ReadyFallback)
	if p.err != nil {
		return Settings{}, p.err
	}
	return s, nil
}

// Apply copies the clustering knobs onto cfg. Renderer, MapWidget and hooks are left as they are.
func Apply[T any](s Settings, cfg cluster.Config[T]) cluster.Config[T] {
	cfg.Width = s.Width
	cfg.Height = s.Height
	cfg.ViewportTileSize = s.TileSize
	cfg.MinZoom = s.MinZoom
	cfg.MaxZoom = s.MaxZoom
	cfg.Extent = s.Extent
	cfg.Radius = s.Radius
	cfg.NodeSize = s.NodeSize
	cfg.Accessor = cluster.ByFieldName[T](s.AccessorField)
	cfg.ClusterPressMaxChildren = s.ClusterPressMaxChildren
	cfg.PreserveClusterPressBehavior = s.PreserveClusterPressBehavior
	cfg.EdgePadding = cluster.UniformPadding(s.EdgePadding)
	cfg.ClusteringEnabled = s.ClusteringEnabled
	cfg.AnimateClusters = s.AnimateClusters
	cfg.ReadyFallback = s.ReadyFallback
	return cfg
}

// parser keeps the first error so the caller checks once
type parser struct {
	err error
}

func (p *parser) lookup(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) fail(key, v string, err error) {
	p.err = fmt.Errorf("config %s=%q: %w", key, v, err)
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.lookup(key); ok {
		*dst = v
	}
}

func (p *parser) int(key string, dst *int) {
	if v, ok := p.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (p *parser) float(key string, dst *float64) {
	if v, ok := p.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (p *parser) bool(key string, dst *bool) {
	if v, ok := p.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (p *parser) duration(key string, dst *time.Duration) {
	if v, ok := p.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = d
	}
}
