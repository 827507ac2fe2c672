package spectrum

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredResult(t *testing.T) *MatchResult {
	t.Helper()
	res, err := testEngine().ScoreMatch(passingInput())
	require.NoError(t, err)
	return res
}

func TestRegion_MultiPolygon(t *testing.T) {
	g := NewRegion(rect(0, 3, 0, 10), rect(3, 5, 0, 15))
	mp := g.MultiPolygon(unit)
	require.Len(t, mp, g.Len())
	assert.Equal(t, unit.Area(g), planar.Area(mp))

	ring := mp[0][0]
	assert.True(t, ring.Closed())
	assert.Equal(t, orb.Point{0, 0}, ring[0])
	assert.Equal(t, orb.Point{3, 10}, ring[2])
}

func TestRegion_MultiPolygonScaled(t *testing.T) {
	q := Quantum{Time: 0.5, Freq: 100}
	g := NewRegion(rect(0, 4, 1, 3)) // 2 s by 200 Hz
	assert.InDelta(t, 400.0, planar.Area(g.MultiPolygon(q)), 1e-9)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 100}, Max: orb.Point{2, 300}}, g.OrbBound(q))
}

func TestRegion_OrbBoundEmpty(t *testing.T) {
	assert.Equal(t, orb.Bound{}, Region{}.OrbBound(unit))
}

func TestRegionFromMultiPolygon(t *testing.T) {
	g := NewRegion(rect(0, 3, 0, 10), rect(3, 5, 0, 15), rect(5, 8, 5, 15))
	back := RegionFromMultiPolygon(unit, g.MultiPolygon(unit))
	assert.True(t, g.Equal(back), "want %v got %v", g, back)

	withEmpty := append(g.MultiPolygon(unit), orb.Polygon{})
	assert.True(t, g.Equal(RegionFromMultiPolygon(unit, withEmpty)))
}

func TestRegionsFeatureCollection(t *testing.T) {
	res := scoredResult(t)
	fc := RegionsFeatureCollection(unit, res)

	layers := make(map[string]int)
	for _, f := range fc.Features {
		layers[f.Properties.MustString("layer")]++
	}
	assert.Equal(t, map[string]int{
		LayerOccupied:   1,
		LayerHistorical: 1,
		LayerPredicted:  1,
		LayerBaseline:   1,
	}, layers)

	occ := fc.Features[0]
	assert.Equal(t, 100.0, occ.Properties.MustFloat64("area"))

	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	back, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, back.Features, 4)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "FeatureCollection", raw["type"])

	pred := back.Features[2]
	assert.Equal(t, LayerPredicted, pred.Properties.MustString("layer"))
	assert.Equal(t, "gw", pred.Properties.MustString("destination"))
	assert.Equal(t, 2.0, pred.Properties.MustFloat64("windowStart"))
	assert.Equal(t, 80.0, pred.Properties.MustFloat64("reportOn"))
}
