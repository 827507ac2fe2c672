package spectrum

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Planar conversions place time (seconds after match start) on X and
// frequency (Hz) on Y.

// orbRect converts a lattice rectangle to a closed counter-clockwise ring.
func orbRect(q Quantum, r Rect) orb.Polygon {
	t0, t1 := q.Seconds(r.T0), q.Seconds(r.T1)
	f0, f1 := q.Hz(r.F0), q.Hz(r.F1)
	return orb.Polygon{orb.Ring{
		{t0, f0}, {t1, f0}, {t1, f1}, {t0, f1}, {t0, f0},
	}}
}

// MultiPolygon returns g as one polygon per canonical rectangle.
func (g Region) MultiPolygon(q Quantum) orb.MultiPolygon {
	mp := make(orb.MultiPolygon, 0, len(g.rects))
	for _, r := range g.rects {
		mp = append(mp, orbRect(q, r))
	}
	return mp
}

// OrbBound returns the bounding box of g in seconds and Hz.
func (g Region) OrbBound(q Quantum) orb.Bound {
	if g.IsEmpty() {
		return orb.Bound{}
	}
	b := g.Bound()
	return orb.Bound{
		Min: orb.Point{q.Seconds(b.T0), q.Hz(b.F0)},
		Max: orb.Point{q.Seconds(b.T1), q.Hz(b.F1)},
	}
}

// RegionFromMultiPolygon snaps the bounds of each axis-aligned polygon in
// mp onto the lattice and unions them. Holes are not supported; only the
// outer ring of each polygon is read.
func RegionFromMultiPolygon(q Quantum, mp orb.MultiPolygon) Region {
	rects := make([]Rect, 0, len(mp))
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		b := poly[0].Bound()
		rects = append(rects, Rect{
			T0: q.TimeTicks(b.Min[0]), T1: q.TimeTicks(b.Max[0]),
			F0: q.FreqTicks(b.Min[1]), F1: q.FreqTicks(b.Max[1]),
		})
	}
	return NewRegion(rects...)
}

// regionFeature wraps g as a GeoJSON feature tagged with its layer name.
func regionFeature(q Quantum, layer string, g Region) *geojson.Feature {
	mp := g.MultiPolygon(q)
	f := geojson.NewFeature(mp)
	f.Properties["layer"] = layer
	f.Properties["area"] = planar.Area(mp)
	f.Properties["rects"] = g.Len()
	return f
}

// RegionsFeatureCollection exports the occupied region and every scored
// stream of a match as one feature per layer. Predicted aggregates are
// exported per declaration, so overlapping claims stay visible.
func RegionsFeatureCollection(q Quantum, res *MatchResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Append(regionFeature(q, LayerOccupied, res.Occupied))
	for i, a := range res.Historical {
		f := regionFeature(q, LayerHistorical, a.Region)
		f.Properties["reportOn"] = a.ReportOn
		f.Properties["index"] = i
		fc.Append(f)
	}
	appendWindowed := func(layer string, wds []WindowedDeclaration) {
		for _, wd := range wds {
			for _, a := range wd.Aggregates {
				f := regionFeature(q, layer, a.Region)
				f.Properties["reportOn"] = a.ReportOn
				f.Properties["destination"] = wd.Declaration.DestinationID
				f.Properties["frame"] = wd.Declaration.FrameTimestamp
				f.Properties["windowStart"] = wd.Window.Start
				f.Properties["windowStop"] = wd.Window.Stop
				fc.Append(f)
			}
		}
	}
	appendWindowed(LayerPredicted, res.Predicted)
	appendWindowed(LayerBaseline, res.Baseline)
	return fc
}

// Layer names used in exports and renders.
const (
	LayerOccupied   = "occupied"
	LayerHistorical = "historical"
	LayerPredicted  = "predicted"
	LayerBaseline   = "baseline"
)
