package spectrum

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// Window is the match-relative span during which a predicted declaration is
// the current word of its sender toward one destination.
type Window struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
}

// WindowedDeclaration is a predicted declaration after trimming to its
// window. Aggregates are coalesced within the declaration only.
type WindowedDeclaration struct {
	Declaration Declaration
	Window      Window
	Aggregates  []Aggregate
}

// WindowDeclarations assigns each predicted declaration (absolute time) its
// active window and trims its voxels to it. A declaration stays current
// toward its destination until the next declaration to that destination
// arrives, or until match end. Duty cycles are kept as declared. The result
// is ordered by destination, then frame timestamp. Voxels of one declaration
// overlapping by less than tol stay separate.
func WindowDeclarations(q Quantum, tol Tolerance, match MatchWindow, decls []Declaration) ([]WindowedDeclaration, StreamStats) {
	var stats StreamStats
	byDest := make(map[string][]Declaration)
	for _, d := range decls {
		byDest[d.DestinationID] = append(byDest[d.DestinationID], ToMatchTime(d, match))
	}
	dests := make([]string, 0, len(byDest))
	for k := range byDest {
		dests = append(dests, k)
	}
	sort.Strings(dests)

	end := match.Duration()
	var out []WindowedDeclaration
	for _, dest := range dests {
		group := byDest[dest]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].FrameTimestamp < group[j].FrameTimestamp
		})
		for i, d := range group {
			w := Window{Start: d.FrameTimestamp, Stop: end}
			if minT, ok := d.MinVoxelTime(); ok && minT > w.Start {
				w.Start = minT
			}
			if i+1 < len(group) {
				w.Stop = group[i+1].FrameTimestamp
			}
			stats.Declarations++
			out = append(out, WindowedDeclaration{
				Declaration: d,
				Window:      w,
				Aggregates:  trimToWindow(q, tol, d, w, &stats),
			})
		}
	}
	for _, wd := range out {
		stats.Aggregates += len(wd.Aggregates)
	}
	return out, stats
}

// trimToWindow clips d's voxels to w and coalesces the survivors. Voxels
// that are malformed as declared, or left with nothing inside the window,
// are dropped.
func trimToWindow(q Quantum, tol Tolerance, d Declaration, w Window, stats *StreamStats) []Aggregate {
	items := make([]Aggregate, 0, len(d.Voxels))
	for i, v := range d.Voxels {
		if err := v.Validate(); err != nil {
			stats.discard(DiscardMalformed)
			logrus.WithFields(logrus.Fields{
				"stream":      "predicted",
				"destination": d.DestinationID,
				"frame":       d.FrameTimestamp,
				"voxel":       i,
			}).WithError(err).Debug("discarding voxel")
			continue
		}
		v.TimeStart = max(v.TimeStart, w.Start)
		v.TimeStop = min(v.TimeStop, w.Stop)
		if !(v.TimeStop > v.TimeStart) {
			stats.discard(DiscardExpired)
			continue
		}
		a, err := admit(q, v)
		if err != nil {
			stats.discard(DiscardExpired)
			continue
		}
		stats.Accepted++
		items = append(items, a)
	}
	return Coalesce(items, tol)
}

// PredictedAggregates flattens the per-declaration aggregates. Aggregates of
// different declarations are not merged with each other.
func PredictedAggregates(wds []WindowedDeclaration) []Aggregate {
	var out []Aggregate
	for _, wd := range wds {
		out = append(out, wd.Aggregates...)
	}
	return out
}
