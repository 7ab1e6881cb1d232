// Command play clusters a GeoJSON file for one region and prints the visible set.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	cluster "github.com/MadAppGang/clustermap"
	"github.com/MadAppGang/clustermap/internal/config"
	"github.com/MadAppGang/clustermap/internal/dataset"
	"github.com/MadAppGang/clustermap/internal/logger"
)

type printer struct{}

func (printer) RenderMarker(p dataset.Place) {
	if p.Location == nil {
		return
	}
	fmt.Printf("marker  %-24s %9.4f %9.4f\n", p.Name, p.Location.Latitude, p.Location.Longitude)
}

func (printer) RenderCluster(n cluster.VisibleNode[dataset.Place]) {
	fmt.Printf("cluster %-24s %9.4f %9.4f  id=%d\n", n.PointCountAbbreviated, n.Coordinate.Latitude, n.Coordinate.Longitude, n.ID)
}

// noopWidget ignores camera moves, play has no map
type noopWidget struct{}

func (noopWidget) FitToCoordinates([]cluster.Coordinate, cluster.EdgePadding) {}

func main() {
	settings, err := config.Load()
	l := logger.Setup()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}

	data := flag.String("data", settings.DataPath, "GeoJSON file, .zst compressed allowed")
	lat := flag.Float64("lat", 48.8566, "region center latitude")
	lon := flag.Float64("lon", 2.3522, "region center longitude")
	dlat := flag.Float64("dlat", 20, "region latitude delta")
	dlon := flag.Float64("dlon", 30, "region longitude delta")
	press := flag.Int("press", -1, "cluster id to expand")
	asJSON := flag.Bool("geojson", false, "print the visible set as GeoJSON")
	flag.Parse()

	places, err := dataset.Load(*data)
	if err != nil {
		l.Error("dataset_error", "path", *data, "err", err)
		os.Exit(1)
	}

	cfg := config.Apply(settings, cluster.DefaultConfig[dataset.Place]())
	cfg.Renderer = printer{}
	cfg.MapWidget = noopWidget{}
	cfg.Logger = l
	cfg.OnClusterPress = func(id int, items []dataset.Place) {
		fmt.Printf("cluster %d expands to %d items\n", id, len(items))
		for _, p := range items {
			fmt.Printf("  %s\n", p.Name)
		}
	}

	session, err := cluster.NewSession(cfg)
	if err != nil {
		l.Error("session_error", "err", err)
		os.Exit(1)
	}
	defer session.OnTeardown()

	region := cluster.Region{CenterLatitude: *lat, CenterLongitude: *lon, LatitudeDelta: *dlat, LongitudeDelta: *dlon}
	if err := session.OnInit(places, region); err != nil {
		l.Error("session_init_error", "err", err)
		return
	}
	_ = session.OnLayoutComplete()
	_ = session.OnEngineReady()

	if *asJSON {
		out, _ := json.MarshalIndent(cluster.FeatureCollection(session.VisibleNodes()), "", "  ")
		fmt.Println(string(out))
	} else {
		n, _ := session.Render()
		fmt.Printf("%d nodes for %d places\n", n, len(places))
	}

	if *press >= 0 {
		if err := session.OnClusterTapped(*press); err != nil {
			l.Error("cluster_press_error", "cluster_id", *press, "err", err)
		}
	}
}
