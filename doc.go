// MIT License
//
// Copyright (c) 2016 MadAppGang

// Package cluster keeps a map legible when it has to show a lot of geolocated items.
//
// Nearby items are grouped into clusters at low zoom levels, and individual
// markers appear as the user zooms in.
//
// The package has four parts:
//
//	Accessor / ConvertItems   items -> Point, bad coordinates are skipped
//	ComputeViewport           Region + pixel size -> BoundingBox + zoom
//	Index                     hierarchical greedy clustering, one KD-tree per zoom
//	Session                   the orchestrator the map widget talks to
//
// The index uses the same hierarchical greedy approach as Dave Leaver's
// Leaflet.markercluster and MapBox's supercluster:
// https://www.mapbox.com/blog/supercluster/
//
// Very easy to use:
//
//	cfg := cluster.DefaultConfig[Place]()
//	cfg.Width, cfg.Height = 390, 844
//	cfg.Renderer = myRenderer
//	cfg.MapWidget = myMap
//
//	s, err := cluster.NewSession(cfg)
//	// 1. first snapshot and the region the map opens with
//	err = s.OnInit(places, region)
//	// 2. the widget reports layout and engine readiness
//	s.OnLayoutComplete()
//	s.OnEngineReady()
//	// 3. pan/zoom settled
//	err = s.OnRegionSettled(newRegion)
//	// 4. draw
//	s.Render()
//
// Leaf ids in the results are positions in the converted point slice. Cluster
// ids are autoincremented from ClusterIdxSeed, the next power of ten above
// the number of points. For example, with 78 points ClusterIdxSeed == 100,
// with 991 points ClusterIdxSeed == 1000.
//
// The KD-tree is https://github.com/MadAppGang/kdbush
package cluster
