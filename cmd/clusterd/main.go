// Command clusterd serves a clustering session over HTTP.
// A client plays the map widget: it reports layout, readiness and settled regions,
// and reads back the visible set and fit instructions.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	cluster "github.com/MadAppGang/clustermap"
	"github.com/MadAppGang/clustermap/internal/config"
	"github.com/MadAppGang/clustermap/internal/dataset"
	"github.com/MadAppGang/clustermap/internal/graceful"
	"github.com/MadAppGang/clustermap/internal/logger"
)

// the whole world, queried at the minimum zoom
var initialRegion = cluster.Region{LatitudeDelta: 170, LongitudeDelta: 360}

func main() {
	settings, err := config.Load()
	l := logger.Setup()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg := config.Apply(settings, cluster.DefaultConfig[dataset.Place]())
	srv, err := newServer(cfg, settings.DataPath, initialRegion, l)
	if err != nil {
		l.Error("session_init_error", "data", settings.DataPath, "err", err)
		os.Exit(1)
	}
	defer srv.session.OnTeardown()

	ctx, cancel := graceful.Context(context.Background(), l)
	defer cancel()

	httpSrv := &http.Server{
		Addr:              settings.Addr,
		Handler:           srv.routes(settings.RateLimitRPS),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	l.Info("server_listen", "addr", settings.Addr, "session", srv.session.ID())
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("server_stopped")
}
