package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/time/rate"

	cluster "github.com/MadAppGang/clustermap"
	"github.com/MadAppGang/clustermap/internal/dataset"
	"github.com/MadAppGang/clustermap/internal/metrics"
)

// fitInstruction is the last camera move the session asked for
type fitInstruction struct {
	Coordinates []cluster.Coordinate `json:"coordinates"`
	Padding     cluster.EdgePadding  `json:"padding"`
}

// widget stands in for the map: it records fit instructions for the client to apply
type widget struct {
	mu   sync.Mutex
	last *fitInstruction
}

func (w *widget) FitToCoordinates(coords []cluster.Coordinate, padding cluster.EdgePadding) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = &fitInstruction{Coordinates: coords, Padding: padding}
}

func (w *widget) take() *fitInstruction {
	w.mu.Lock()
	defer w.mu.Unlock()
	f := w.last
	w.last = nil
	return f
}

// collector is the Renderer, it gathers what Session.Render draws
type collector struct {
	nodes []cluster.VisibleNode[dataset.Place]
}

func (c *collector) RenderMarker(item dataset.Place) {
	if item.Location == nil {
		return
	}
	c.nodes = append(c.nodes, cluster.VisibleNode[dataset.Place]{Coordinate: *item.Location, Item: item})
}

func (c *collector) RenderCluster(node cluster.VisibleNode[dataset.Place]) {
	c.nodes = append(c.nodes, node)
}

type server struct {
	session  *cluster.Session[dataset.Place]
	widget   *widget
	dataPath string
	log      *slog.Logger

	renderMu sync.Mutex
	rendered *collector

	// pressMu is held for a whole press request, OnClusterPress writes pressed under it
	pressMu sync.Mutex
	pressed []dataset.Place
}

// newServer creates the session from cfg, loads dataPath and wires the hooks.
func newServer(cfg cluster.Config[dataset.Place], dataPath string, initial cluster.Region, l *slog.Logger) (*server, error) {
	s := &server{
		widget:   &widget{},
		dataPath: dataPath,
		log:      l,
		rendered: &collector{},
	}
	cfg.Renderer = s.rendered
	cfg.MapWidget = s.widget
	cfg.Logger = l
	cfg.OnClusterPress = func(_ int, items []dataset.Place) {
		s.pressed = items
	}
	cfg.OnRegionChangeComplete = func(r cluster.Region, nodes []cluster.VisibleNode[dataset.Place]) {
		l.Debug("region_change_complete", "latitude", r.CenterLatitude, "longitude", r.CenterLongitude, "nodes", len(nodes))
	}

	session, err := cluster.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	places, err := dataset.Load(dataPath)
	if err != nil {
		session.OnTeardown()
		return nil, err
	}
	if err := session.OnInit(places, initial); err != nil {
		session.OnTeardown()
		return nil, err
	}
	s.session = session
	return s, nil
}

func (s *server) routes(rps float64) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	if rps > 0 {
		r.Use(rateLimit(rps))
	}

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.POST("/layout", func(c *gin.Context) {
		s.respond(c, s.session.OnLayoutComplete(), gin.H{"ready": s.session.Ready()})
	})
	api.POST("/ready", func(c *gin.Context) {
		s.respond(c, s.session.OnEngineReady(), gin.H{"ready": s.session.Ready()})
	})
	api.POST("/region", func(c *gin.Context) {
		var region cluster.Region
		if err := c.ShouldBindJSON(&region); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid region"})
			return
		}
		if err := s.session.OnRegionSettled(region); err != nil {
			s.respond(c, err, nil)
			return
		}
		var nodes []cluster.VisibleNode[dataset.Place]
		ready := s.session.Ready()
		if ready {
			nodes = s.session.VisibleNodes()
		}
		c.JSON(http.StatusOK, gin.H{
			"ready":      ready,
			"collection": collection(nodes),
		})
	})
	api.GET("/clusters", func(c *gin.Context) {
		nodes, err := s.render()
		if err != nil {
			s.respond(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ready":      s.session.Ready(),
			"collection": collection(nodes),
		})
	})
	api.POST("/clusters/:id/press", func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cluster id"})
			return
		}
		s.pressMu.Lock()
		s.pressed = nil
		err = s.session.OnClusterTapped(id)
		items, fit := s.pressed, s.widget.take()
		s.pressMu.Unlock()
		if err != nil {
			s.respond(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"clusterId": id,
			"items":     items,
			"fit":       fit,
		})
	})
	api.POST("/items/reload", func(c *gin.Context) {
		places, err := dataset.Load(s.dataPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		s.respond(c, s.session.OnItemsChanged(places), gin.H{"items": len(places)})
	})
	return r
}

// render runs Session.Render into a fresh collector
func (s *server) render() ([]cluster.VisibleNode[dataset.Place], error) {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	s.rendered.nodes = s.rendered.nodes[:0]
	if _, err := s.session.Render(); err != nil {
		return nil, err
	}
	out := make([]cluster.VisibleNode[dataset.Place], len(s.rendered.nodes))
	copy(out, s.rendered.nodes)
	return out, nil
}

// collection is cluster.FeatureCollection with marker features keyed by place id
func collection(nodes []cluster.VisibleNode[dataset.Place]) *geojson.FeatureCollection {
	fc := cluster.FeatureCollection(nodes)
	for i, n := range nodes {
		if !n.IsCluster() {
			fc.Features[i].ID = n.Item.ID
		}
	}
	return fc
}

func (s *server) respond(c *gin.Context, err error, body gin.H) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, body)
	case errors.Is(err, cluster.ErrClusterNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, cluster.ErrNotInitialized):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, cluster.ErrSessionClosed):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	default:
		s.log.Error("request_error", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http_access",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

// rateLimit drops requests above rps with 429
func rateLimit(rps float64) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
