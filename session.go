package cluster

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MadAppGang/clustermap/internal/logger"
	"github.com/MadAppGang/clustermap/internal/metrics"
)

// Session is the clustering orchestrator of one map view.
// It owns the live index, the current region and the visible set,
// and reacts to widget and host events.
//
// Events are serialized by one mutex. Hooks, renderer and map widget calls
// are made after the mutex is released, so they may call back into the session.
type Session[T any] struct {
	mu sync.Mutex

	cfg  Config[T]
	opts Options
	id   string
	log  *slog.Logger

	index     *Index[T]
	items     []T
	region    Region
	hasRegion bool
	nodes     []VisibleNode[T]

	layoutDone  bool
	engineReady bool
	gateOpen    bool
	fallback    *time.Timer

	closed bool
}

// NewSession validates cfg and creates a session.
// No index exists until OnInit.
func NewSession[T any](cfg Config[T]) (*Session[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := cfg.Logger
	if l == nil {
		l = logger.L()
	}
	id := uuid.New().String()
	s := &Session[T]{
		cfg:  cfg,
		opts: cfg.IndexOptions(),
		id:   id,
		log:  l.With("session", id),
	}
	metrics.SessionsActive.Inc()
	s.log.Debug("session_created",
		"min_zoom", s.opts.MinZoom,
		"max_zoom", s.opts.MaxZoom,
		"radius", s.opts.Radius,
		"accessor", cfg.Accessor.String(),
	)
	return s, nil
}

// ID returns the session id used in logs.
func (s *Session[T]) ID() string {
	return s.id
}

// OnInit loads the first snapshot and the initial region.
// It starts the readiness fallback timer when one is configured.
func (s *Session[T]) OnInit(items []T, region Region) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.region, s.hasRegion = region, true
	if s.cfg.ReadyFallback > 0 && s.fallback == nil && !s.ready() {
		s.fallback = time.AfterFunc(s.cfg.ReadyFallback, s.forceReady)
	}
	calls, err := s.rebuild(items)
	s.mu.Unlock()

	run(calls)
	return err
}

// OnItemsChanged replaces the snapshot: full rebuild, then the current region is queried again.
func (s *Session[T]) OnItemsChanged(items []T) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	calls, err := s.rebuild(items)
	s.mu.Unlock()

	run(calls)
	return err
}

// OnRegionSettled recomputes the visible set for region
// and reports it to OnRegionChangeComplete.
func (s *Session[T]) OnRegionSettled(region Region) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.index == nil {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	calls, err := s.query(region)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.region, s.hasRegion = region, true
	if h := s.cfg.OnRegionChangeComplete; h != nil {
		nodes := s.visible()
		calls = append(calls, func() { h(region, nodes) })
	}
	s.mu.Unlock()

	run(calls)
	return nil
}

// OnLayoutComplete records that the widget finished its layout.
func (s *Session[T]) OnLayoutComplete() error {
	return s.markReady(func() { s.layoutDone = true }, "layout", s.cfg.OnLayout)
}

// OnEngineReady records that the map engine is ready.
func (s *Session[T]) OnEngineReady() error {
	return s.markReady(func() { s.engineReady = true }, "engine", s.cfg.OnMapReady)
}

// OnClusterTapped resolves a tap on a cluster.
// With PreserveClusterPressBehavior off the id is handed to OnClusterPress as is.
// Otherwise up to ClusterPressMaxChildren leaves are fetched, the map is fit
// around them and OnClusterPress receives the id and the leaf items.
func (s *Session[T]) OnClusterTapped(clusterID int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if !s.cfg.PreserveClusterPressBehavior {
		s.mu.Unlock()
		metrics.ClusterPressTotal.WithLabelValues("delegate").Inc()
		s.log.Debug("cluster_press", "cluster_id", clusterID, "mode", "delegate")
		if h := s.cfg.OnClusterPress; h != nil {
			h(clusterID, nil)
		}
		return nil
	}
	if s.index == nil {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	leaves, err := s.index.GetLeafPoints(clusterID, s.cfg.ClusterPressMaxChildren, 0)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("cluster press %d: %w", clusterID, err)
	}

	coords := make([]Coordinate, len(leaves))
	items := make([]T, len(leaves))
	for i, p := range leaves {
		coords[i] = p.Coordinate()
		items[i] = p.Item
	}
	metrics.ClusterPressTotal.WithLabelValues("expand").Inc()
	s.log.Debug("cluster_press", "cluster_id", clusterID, "mode", "expand", "leaves", len(leaves))
	s.cfg.MapWidget.FitToCoordinates(coords, s.cfg.EdgePadding)
	if h := s.cfg.OnClusterPress; h != nil {
		h(clusterID, items)
	}
	return nil
}

// OnTeardown stops the fallback timer and closes the session.
// Later events return ErrSessionClosed. Calling it twice is a no-op.
func (s *Session[T]) OnTeardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
	metrics.SessionsActive.Dec()
	s.log.Debug("session_teardown")
}

// VisibleNodes returns a copy of the current visible set.
func (s *Session[T]) VisibleNodes() []VisibleNode[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible()
}

// Region returns the last settled region, false before any region is known.
func (s *Session[T]) Region() (Region, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.region, s.hasRegion
}

// Ready reports whether both layout and engine readiness were seen.
func (s *Session[T]) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready()
}

// Index returns the live clustering index, nil before OnInit.
// The returned index is never mutated, a rebuild replaces it.
func (s *Session[T]) Index() *Index[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Render draws the render set through the configured Renderer and returns
// the number of drawn nodes. Nothing is drawn until the session is ready.
// With clustering disabled every item of the snapshot is drawn as a marker.
func (s *Session[T]) Render() (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSessionClosed
	}
	if !s.ready() {
		s.mu.Unlock()
		return 0, nil
	}
	r := s.cfg.Renderer
	if !s.cfg.ClusteringEnabled {
		items := s.items
		s.mu.Unlock()
		for _, item := range items {
			r.RenderMarker(item)
		}
		return len(items), nil
	}
	nodes := s.nodes
	s.mu.Unlock()

	for _, n := range nodes {
		if n.IsCluster() {
			r.RenderCluster(n)
		} else {
			r.RenderMarker(n.Item)
		}
	}
	return len(nodes), nil
}

// CountChanged is the signal used to animate cluster transitions:
// the visible set changed size.
func CountChanged(prev, next int) bool {
	return prev != next
}

// rebuild converts items and swaps a freshly built index in.
// The current region, if any, is queried against the new index.
func (s *Session[T]) rebuild(items []T) ([]func(), error) {
	start := time.Now()
	points, skipped := ConvertItems(items, s.cfg.Accessor, s.log)
	idx := NewIndex[T](s.opts)
	if err := idx.Build(points); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	s.index = idx
	s.items = items

	dur := time.Since(start)
	metrics.RebuildsTotal.Inc()
	metrics.RebuildDurationMs.Observe(float64(dur.Microseconds()) / 1000)
	metrics.IndexedPoints.Set(float64(len(points)))
	metrics.SkippedItemsTotal.Add(float64(skipped))
	s.log.Info("index_rebuilt",
		"items", len(items),
		"points", len(points),
		"skipped", skipped,
		"duration_ms", dur.Milliseconds(),
	)

	if !s.hasRegion {
		return nil, nil
	}
	return s.query(s.region)
}

// query replaces the visible set with the index answer for region
func (s *Session[T]) query(region Region) ([]func(), error) {
	start := time.Now()
	vp := ComputeViewport(region, s.cfg.Dimensions(), s.opts.MinZoom, s.opts.MaxZoom, s.cfg.ViewportTileSize)
	nodes, err := s.index.GetClusters(vp.BBox, vp.Zoom)
	if err != nil {
		return nil, fmt.Errorf("query zoom %d: %w", vp.Zoom, err)
	}
	prev := len(s.nodes)
	s.nodes = nodes

	metrics.QueriesTotal.Inc()
	metrics.QueryDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
	metrics.VisibleNodes.Set(float64(len(nodes)))
	s.log.Debug("viewport_query", "zoom", vp.Zoom, "nodes", len(nodes))

	next := len(nodes)
	if h := s.cfg.OnVisibleCountChanged; h != nil && s.cfg.AnimateClusters && CountChanged(prev, next) {
		return []func(){func() { h(prev, next) }}, nil
	}
	return nil, nil
}

func (s *Session[T]) markReady(set func(), what string, hook func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	set()
	s.log.Debug("widget_ready", "what", what)
	s.openGate("widget")
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (s *Session[T]) forceReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ready() {
		return
	}
	s.layoutDone, s.engineReady = true, true
	s.openGate("fallback")
}

// openGate logs the gate opening and drops the fallback timer, mu must be held
func (s *Session[T]) openGate(reason string) {
	if !s.ready() || s.gateOpen {
		return
	}
	s.gateOpen = true
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
	s.log.Info("readiness_open", "reason", reason)
}

func (s *Session[T]) ready() bool {
	return s.layoutDone && s.engineReady
}

func (s *Session[T]) visible() []VisibleNode[T] {
	out := make([]VisibleNode[T], len(s.nodes))
	copy(out, s.nodes)
	return out
}

func run(calls []func()) {
	for _, f := range calls {
		f()
	}
}
