package spectrum

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Quantum is the tick size of the time-frequency lattice. Every region
// boundary is snapped to it, so region arithmetic is exact integer work and
// repeating an operation never moves an edge.
type Quantum struct {
	Time float64 `yaml:"time" json:"time"` // seconds per tick
	Freq float64 `yaml:"freq" json:"freq"` // Hz per tick
}

// DefaultQuantum returns a 1 microsecond by 1 Hz lattice.
func DefaultQuantum() Quantum {
	return Quantum{Time: 1e-6, Freq: 1}
}

// Validate rejects non-positive tick sizes.
func (q Quantum) Validate() error {
	if !(q.Time > 0) || !(q.Freq > 0) {
		return fmt.Errorf("quantum must be positive, got time=%g freq=%g", q.Time, q.Freq)
	}
	return nil
}

// TimeTicks snaps seconds to the nearest tick.
func (q Quantum) TimeTicks(t float64) int64 { return int64(math.Round(t / q.Time)) }

// FreqTicks snaps Hz to the nearest tick.
func (q Quantum) FreqTicks(f float64) int64 { return int64(math.Round(f / q.Freq)) }

// Seconds converts time ticks back to seconds.
func (q Quantum) Seconds(ticks int64) float64 { return float64(ticks) * q.Time }

// Hz converts frequency ticks back to Hz.
func (q Quantum) Hz(ticks int64) float64 { return float64(ticks) * q.Freq }

// Rect snaps a voxel's bounds onto the lattice.
func (q Quantum) Rect(v Voxel) Rect {
	return Rect{
		T0: q.TimeTicks(v.TimeStart),
		T1: q.TimeTicks(v.TimeStop),
		F0: q.FreqTicks(v.FreqStart),
		F1: q.FreqTicks(v.FreqStop),
	}
}

// Region returns the single-rectangle region covered by v.
func (q Quantum) Region(v Voxel) Region {
	return NewRegion(q.Rect(v))
}

// Area returns the area of g in Hz*s.
func (q Quantum) Area(g Region) float64 {
	return g.cells() * q.Time * q.Freq
}

// RectArea returns the area of r in Hz*s.
func (q Quantum) RectArea(r Rect) float64 {
	if r.Empty() {
		return 0
	}
	return r.cells() * q.Time * q.Freq
}

// Tolerance is the smallest overlap, in ticks per dimension, that counts as
// overlapping. Anything thinner in either dimension only touches. Values
// below one tick mean one tick, so the zero Tolerance treats any positive
// overlap as overlapping.
type Tolerance struct {
	Time, Freq int64
}

// PixelTolerance returns the tolerance of one occupancy pixel of the given
// duration (s) and bandwidth (Hz).
func (q Quantum) PixelTolerance(duration, bandwidth float64) Tolerance {
	return Tolerance{Time: q.TimeTicks(duration), Freq: q.FreqTicks(bandwidth)}
}

func (t Tolerance) atLeastOneTick() Tolerance {
	return Tolerance{Time: max(t.Time, 1), Freq: max(t.Freq, 1)}
}

// Rect is the half-open lattice rectangle [T0,T1) x [F0,F1).
type Rect struct {
	T0, T1 int64
	F0, F1 int64
}

// Empty reports whether r covers no area.
func (r Rect) Empty() bool {
	return r.T1 <= r.T0 || r.F1 <= r.F0
}

func (r Rect) cells() float64 {
	return float64(r.T1-r.T0) * float64(r.F1-r.F0)
}

// Intersect returns the overlap of r and o, possibly empty.
func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		T0: max(r.T0, o.T0),
		T1: min(r.T1, o.T1),
		F0: max(r.F0, o.F0),
		F1: min(r.F1, o.F1),
	}
}

// Overlaps reports a positive-area overlap. Rectangles sharing only an edge
// touch but do not overlap.
func (r Rect) Overlaps(o Rect) bool {
	return r.T0 < o.T1 && o.T0 < r.T1 && r.F0 < o.F1 && o.F0 < r.F1
}

// subtract returns up to four disjoint pieces of r outside o.
func (r Rect) subtract(o Rect) []Rect {
	if !r.Overlaps(o) {
		return []Rect{r}
	}
	i := r.Intersect(o)
	pieces := [4]Rect{
		{T0: r.T0, T1: i.T0, F0: r.F0, F1: r.F1},
		{T0: i.T1, T1: r.T1, F0: r.F0, F1: r.F1},
		{T0: i.T0, T1: i.T1, F0: r.F0, F1: i.F0},
		{T0: i.T0, T1: i.T1, F0: i.F1, F1: r.F1},
	}
	out := make([]Rect, 0, 4)
	for _, p := range pieces {
		if !p.Empty() {
			out = append(out, p)
		}
	}
	return out
}

// Region is a possibly non-rectangular set in the time-frequency plane,
// stored as disjoint rectangles in canonical form: maximal time slabs, each
// holding merged frequency intervals, with adjacent slabs of identical
// intervals fused. Two regions covering the same point set have identical
// rectangles. Regions are never modified after construction.
type Region struct {
	rects []Rect
}

// NewRegion builds the union of the given rectangles.
func NewRegion(rects ...Rect) Region {
	return Region{rects: normalize(rects)}
}

// Rects returns a copy of the canonical rectangle decomposition.
func (g Region) Rects() []Rect {
	out := make([]Rect, len(g.rects))
	copy(out, g.rects)
	return out
}

// Len returns the number of rectangles in the decomposition.
func (g Region) Len() int { return len(g.rects) }

// IsEmpty reports whether the region covers nothing.
func (g Region) IsEmpty() bool { return len(g.rects) == 0 }

// Bound returns the bounding rectangle; zero for an empty region.
func (g Region) Bound() Rect {
	if len(g.rects) == 0 {
		return Rect{}
	}
	b := g.rects[0]
	for _, r := range g.rects[1:] {
		b.T0 = min(b.T0, r.T0)
		b.T1 = max(b.T1, r.T1)
		b.F0 = min(b.F0, r.F0)
		b.F1 = max(b.F1, r.F1)
	}
	return b
}

// firstEndingAfter returns the index of the first rectangle with T1 > t.
// Canonical slabs are disjoint in time, so rectangles are ordered by both
// T0 and T1.
func (g Region) firstEndingAfter(t int64) int {
	return sort.Search(len(g.rects), func(i int) bool { return g.rects[i].T1 > t })
}

func (g Region) cells() float64 {
	total := 0.0
	for _, r := range g.rects {
		total += r.cells()
	}
	return total
}

// Union returns g ∪ o.
func (g Region) Union(o Region) Region {
	if o.IsEmpty() {
		return g
	}
	if g.IsEmpty() {
		return o
	}
	all := make([]Rect, 0, len(g.rects)+len(o.rects))
	all = append(all, g.rects...)
	all = append(all, o.rects...)
	return Region{rects: normalize(all)}
}

// Intersect returns g ∩ o.
func (g Region) Intersect(o Region) Region {
	if g.IsEmpty() || o.IsEmpty() || !g.Bound().Overlaps(o.Bound()) {
		return Region{}
	}
	var out []Rect
	for _, r := range g.rects {
		for _, s := range o.rects[o.firstEndingAfter(r.T0):] {
			if s.T0 >= r.T1 {
				break
			}
			if r.Overlaps(s) {
				out = append(out, r.Intersect(s))
			}
		}
	}
	return Region{rects: normalize(out)}
}

// Difference returns g \ o, the parts of g not in o. Not symmetric.
func (g Region) Difference(o Region) Region {
	if g.IsEmpty() || o.IsEmpty() || !g.Bound().Overlaps(o.Bound()) {
		return g
	}
	var out []Rect
	for _, r := range g.rects {
		pieces := []Rect{r}
		for _, s := range o.rects[o.firstEndingAfter(r.T0):] {
			if s.T0 >= r.T1 {
				break
			}
			if !r.Overlaps(s) {
				continue
			}
			next := pieces[:0:0]
			for _, p := range pieces {
				next = append(next, p.subtract(s)...)
			}
			pieces = next
			if len(pieces) == 0 {
				break
			}
		}
		out = append(out, pieces...)
	}
	return Region{rects: normalize(out)}
}

// Overlaps reports whether g and o share positive area.
func (g Region) Overlaps(o Region) bool {
	if g.IsEmpty() || o.IsEmpty() || !g.Bound().Overlaps(o.Bound()) {
		return false
	}
	for _, r := range g.rects {
		for _, s := range o.rects[o.firstEndingAfter(r.T0):] {
			if s.T0 >= r.T1 {
				break
			}
			if r.Overlaps(s) {
				return true
			}
		}
	}
	return false
}

// OverlapsBy reports whether g and o share a box of at least tol in both
// dimensions. Growing either region never turns true into false.
func (g Region) OverlapsBy(o Region, tol Tolerance) bool {
	tol = tol.atLeastOneTick()
	if !g.Overlaps(o) {
		return false
	}
	if tol == (Tolerance{Time: 1, Freq: 1}) {
		return true
	}
	b := g.Bound().Intersect(o.Bound())
	if b.T1-b.T0 < tol.Time || b.F1-b.F0 < tol.Freq {
		return false
	}
	return g.Intersect(o).ContainsBox(tol)
}

// ContainsBox reports whether some tol.Time by tol.Freq rectangle lies
// entirely inside g.
func (g Region) ContainsBox(tol Tolerance) bool {
	tol = tol.atLeastOneTick()
	slabs := g.slabs()
	for i := range slabs {
		cover := wideIntervals(slabs[i].ivs, tol.Freq)
		for j := i; j < len(slabs) && len(cover) > 0; j++ {
			if j > i {
				if slabs[j].t0 != slabs[j-1].t1 {
					break
				}
				cover = wideIntervals(intersectIntervals(cover, slabs[j].ivs), tol.Freq)
				if len(cover) == 0 {
					break
				}
			}
			if slabs[j].t1-slabs[i].t0 >= tol.Time {
				return true
			}
		}
	}
	return false
}

type slab struct {
	t0, t1 int64
	ivs    []interval
}

// slabs groups the canonical rectangles by time slab.
func (g Region) slabs() []slab {
	var out []slab
	for _, r := range g.rects {
		if n := len(out); n > 0 && out[n-1].t0 == r.T0 && out[n-1].t1 == r.T1 {
			out[n-1].ivs = append(out[n-1].ivs, interval{r.F0, r.F1})
			continue
		}
		out = append(out, slab{t0: r.T0, t1: r.T1, ivs: []interval{{r.F0, r.F1}}})
	}
	return out
}

// intersectIntervals intersects two sorted lists of disjoint intervals.
func intersectIntervals(a, b []interval) []interval {
	var out []interval
	for i, j := 0, 0; i < len(a) && j < len(b); {
		lo, hi := max(a[i].lo, b[j].lo), min(a[i].hi, b[j].hi)
		if lo < hi {
			out = append(out, interval{lo, hi})
		}
		if a[i].hi < b[j].hi {
			i++
		} else {
			j++
		}
	}
	return out
}

// wideIntervals returns the intervals at least width long, in a new slice.
func wideIntervals(ivs []interval, width int64) []interval {
	out := make([]interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.hi-iv.lo >= width {
			out = append(out, iv)
		}
	}
	return out
}

// Equal reports whether g and o cover the same point set.
func (g Region) Equal(o Region) bool {
	if len(g.rects) != len(o.rects) {
		return false
	}
	for i := range g.rects {
		if g.rects[i] != o.rects[i] {
			return false
		}
	}
	return true
}

func (g Region) String() string {
	parts := make([]string, len(g.rects))
	for i, r := range g.rects {
		parts[i] = fmt.Sprintf("[t %d-%d f %d-%d]", r.T0, r.T1, r.F0, r.F1)
	}
	return "Region{" + strings.Join(parts, " ") + "}"
}

type interval struct{ lo, hi int64 }

// normalize converts any rectangle soup into the canonical disjoint form
// with a sweep over time.
func normalize(in []Rect) []Rect {
	rects := make([]Rect, 0, len(in))
	for _, r := range in {
		if !r.Empty() {
			rects = append(rects, r)
		}
	}
	if len(rects) == 0 {
		return nil
	}
	sort.Slice(rects, func(i, j int) bool { return rects[i].T0 < rects[j].T0 })

	edges := make([]int64, 0, 2*len(rects))
	for _, r := range rects {
		edges = append(edges, r.T0, r.T1)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i] < edges[j] })
	edges = uniqueInt64(edges)

	var (
		out     []Rect
		active  []Rect
		next    int
		slabT0  int64
		slabT1  int64
		slabIvs []interval
	)
	flush := func() {
		for _, iv := range slabIvs {
			out = append(out, Rect{T0: slabT0, T1: slabT1, F0: iv.lo, F1: iv.hi})
		}
	}

	for e := 0; e+1 < len(edges); e++ {
		a, b := edges[e], edges[e+1]

		kept := active[:0]
		for _, r := range active {
			if r.T1 > a {
				kept = append(kept, r)
			}
		}
		active = kept
		for next < len(rects) && rects[next].T0 <= a {
			if rects[next].T1 > a {
				active = append(active, rects[next])
			}
			next++
		}

		ivs := make([]interval, 0, len(active))
		for _, r := range active {
			ivs = append(ivs, interval{r.F0, r.F1})
		}
		ivs = mergeIntervals(ivs)

		if slabT1 == a && equalIntervals(slabIvs, ivs) && e > 0 {
			slabT1 = b
			continue
		}
		flush()
		slabT0, slabT1, slabIvs = a, b, ivs
	}
	flush()
	return out
}

// mergeIntervals sorts and fuses overlapping or touching intervals.
func mergeIntervals(ivs []interval) []interval {
	if len(ivs) < 2 {
		return ivs
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].lo < ivs[j].lo })
	merged := ivs[:1]
	for _, iv := range ivs[1:] {
		last := &merged[len(merged)-1]
		if iv.lo <= last.hi {
			if iv.hi > last.hi {
				last.hi = iv.hi
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

func equalIntervals(a, b []interval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func uniqueInt64(sorted []int64) []int64 {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
