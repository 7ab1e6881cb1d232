// Package dataset loads item snapshots for the binaries from GeoJSON files.
// Files ending in .zst are zstd compressed.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	cluster "github.com/MadAppGang/clustermap"
)

// Place is one map item. Location is nil for features without point geometry,
// such items are skipped by the clustering session.
type Place struct {
	ID         string              `json:"id"`
	Name       string              `json:"name,omitempty"`
	Location   *cluster.Coordinate `json:"location"`
	Properties map[string]any      `json:"properties,omitempty"`
}

// Load reads a GeoJSON feature collection from path.
func Load(path string) ([]Place, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	var r io.Reader = bufio.NewReader(file)
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	return Decode(r)
}

// Decode parses a GeoJSON feature collection into places.
func Decode(r io.Reader) ([]Place, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode feature collection: %w", err)
	}
	places := make([]Place, len(fc.Features))
	for i, f := range fc.Features {
		places[i] = fromFeature(f)
	}
	return places, nil
}

// Save writes places as a GeoJSON feature collection, zstd compressed when path ends in .zst.
func Save(path string, places []Place) error {
	raw, err := Collection(places).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode feature collection: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if !strings.HasSuffix(path, ".zst") {
		if _, err := w.Write(raw); err != nil {
			return err
		}
		return w.Flush()
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return fmt.Errorf("failed to compress dataset: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to compress dataset: %w", err)
	}
	return w.Flush()
}

// Collection converts places back to GeoJSON. Places without a location are left out.
func Collection(places []Place) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range places {
		if p.Location == nil {
			continue
		}
		f := geojson.NewFeature(p.Location.Point())
		f.ID = p.ID
		for k, v := range p.Properties {
			f.Properties[k] = v
		}
		if p.Name != "" {
			f.Properties["name"] = p.Name
		}
		fc.Append(f)
	}
	return fc
}

func fromFeature(f *geojson.Feature) Place {
	p := Place{
		ID:         featureID(f),
		Properties: map[string]any(f.Properties),
	}
	p.Name = f.Properties.MustString("name", "")
	if pt, ok := f.Geometry.(orb.Point); ok {
		c := cluster.CoordinateFromPoint(pt)
		p.Location = &c
	}
	return p
}

func featureID(f *geojson.Feature) string {
	switch id := f.ID.(type) {
	case nil:
	case string:
		if id != "" {
			return id
		}
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return fmt.Sprint(id)
	}
	return uuid.New().String()
}
