package dataset

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cluster "github.com/MadAppGang/clustermap"
)

func TestLoad(t *testing.T) {
	places, err := Load("testdata/places.geojson")
	require.NoError(t, err)
	require.Len(t, places, 5)

	assert.Equal(t, "louvre", places[0].ID)
	assert.Equal(t, "Louvre", places[0].Name)
	assert.Equal(t, "museum", places[0].Properties["kind"])
	require.NotNil(t, places[0].Location)
	assert.InDelta(t, 48.8606, places[0].Location.Latitude, 1e-9)
	assert.InDelta(t, 2.3376, places[0].Location.Longitude, 1e-9)

	assert.Equal(t, "3", places[2].ID)
	assert.NotEmpty(t, places[3].ID)

	// line geometry has no point location
	assert.Equal(t, "seine", places[4].ID)
	assert.Nil(t, places[4].Location)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/nope.geojson")
	assert.Error(t, err)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"type": "Feature"`))
	assert.Error(t, err)
}

func TestSaveLoadCompressed(t *testing.T) {
	places, err := Load("testdata/places.geojson")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "places.geojson.zst")
	require.NoError(t, Save(path, places))

	loaded, err := Load(path)
	require.NoError(t, err)
	// the line feature has no location and is not written
	require.Len(t, loaded, 4)
	for i := range loaded {
		assert.Equal(t, places[i].ID, loaded[i].ID)
		assert.Equal(t, places[i].Name, loaded[i].Name)
		assert.Equal(t, *places[i].Location, *loaded[i].Location)
	}
}

func TestPlacesClusterByLocation(t *testing.T) {
	places, err := Load("testdata/places.geojson")
	require.NoError(t, err)

	points, skipped := cluster.ConvertItems(places, cluster.ByFieldName[Place]("location"), nil)
	assert.Equal(t, 1, skipped)
	assert.Len(t, points, 4)
}
