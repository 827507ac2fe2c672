package spectrum

import (
	"sort"
)

// Aggregate is a coalesced region tagged with the summed report-on area of
// every voxel merged into it.
type Aggregate struct {
	Region   Region
	ReportOn float64
	Voxels   int
}

// NewAggregate wraps a single valid voxel. Report-on uses the quantized area
// so that a voxel exactly covering occupied pixels scores zero error.
func NewAggregate(q Quantum, v Voxel) Aggregate {
	r := q.Rect(v)
	return Aggregate{
		Region:   NewRegion(r),
		ReportOn: q.RectArea(r) * v.DutyCycle * v.OccupiedBandwidth(),
		Voxels:   1,
	}
}

// Coalesce merges every group of transitively overlapping aggregates into
// one, whose region is the union and whose report-on is the sum. Pairs that
// only share an edge, or overlap by less than tol in either dimension, are
// kept apart. Merged groups are checked again until nothing changes, so the
// result does not depend on input order and coalescing it again returns the
// same set.
func Coalesce(items []Aggregate, tol Tolerance) []Aggregate {
	live := make([]Aggregate, 0, len(items))
	for _, it := range items {
		if !it.Region.IsEmpty() {
			live = append(live, it)
		}
	}
	if len(live) == 0 {
		return nil
	}
	for {
		merged := coalescePass(live, tol)
		if len(merged) == len(live) {
			live = merged
			break
		}
		live = merged
	}
	sortAggregates(live)
	return live
}

// coalescePass merges the overlap components of live once.
func coalescePass(live []Aggregate, tol Tolerance) []Aggregate {
	bounds := make([]Rect, len(live))
	order := make([]int, len(live))
	for i := range live {
		bounds[i] = live[i].Region.Bound()
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return bounds[order[a]].T0 < bounds[order[b]].T0 })

	// Sweep over time; only aggregates whose time spans are still open are
	// candidates for the exact overlap test.
	uf := newUnionFind(len(live))
	var active []int
	for _, i := range order {
		kept := active[:0]
		for _, j := range active {
			if bounds[j].T1 > bounds[i].T0 {
				kept = append(kept, j)
			}
		}
		active = kept
		for _, j := range active {
			if uf.find(i) == uf.find(j) {
				continue
			}
			if bounds[i].Overlaps(bounds[j]) && live[i].Region.OverlapsBy(live[j].Region, tol) {
				uf.union(i, j)
			}
		}
		active = append(active, i)
	}

	groups := make(map[int][]int)
	for i := range live {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	out := make([]Aggregate, 0, len(groups))
	for _, members := range groups {
		if len(members) == 1 {
			out = append(out, live[members[0]])
			continue
		}
		var rects []Rect
		reports := make([]float64, 0, len(members))
		count := 0
		for _, m := range members {
			rects = append(rects, live[m].Region.rects...)
			reports = append(reports, live[m].ReportOn)
			count += live[m].Voxels
		}
		out = append(out, Aggregate{
			Region:   Region{rects: normalize(rects)},
			ReportOn: stableSum(reports),
			Voxels:   count,
		})
	}
	return out
}

// CoalesceVoxels quantizes valid voxels and coalesces them.
func CoalesceVoxels(q Quantum, tol Tolerance, voxels []Voxel) []Aggregate {
	items := make([]Aggregate, 0, len(voxels))
	for _, v := range voxels {
		items = append(items, NewAggregate(q, v))
	}
	return Coalesce(items, tol)
}

// UnionAll returns the union of every aggregate's region.
func UnionAll(aggs []Aggregate) Region {
	var rects []Rect
	for _, a := range aggs {
		rects = append(rects, a.Region.rects...)
	}
	return Region{rects: normalize(rects)}
}

// TotalReportOn sums report-on over aggs independent of their order.
func TotalReportOn(aggs []Aggregate) float64 {
	vals := make([]float64, len(aggs))
	for i, a := range aggs {
		vals[i] = a.ReportOn
	}
	return stableSum(vals)
}

// stableSum adds values in sorted order so the float result is the same for
// every permutation of the input.
func stableSum(vals []float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	total := 0.0
	for _, v := range sorted {
		total += v
	}
	return total
}

// sortAggregates orders aggregates by their canonical rectangles, then by
// report-on. Aggregates may share sub-tolerance slivers, so the whole
// decomposition is compared.
func sortAggregates(aggs []Aggregate) {
	sort.Slice(aggs, func(i, j int) bool {
		a, b := aggs[i].Region.rects, aggs[j].Region.rects
		for k := 0; k < len(a) && k < len(b); k++ {
			if c := compareRects(a[k], b[k]); c != 0 {
				return c < 0
			}
		}
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return aggs[i].ReportOn < aggs[j].ReportOn
	})
}

func compareRects(a, b Rect) int {
	for _, d := range [4][2]int64{{a.T0, b.T0}, {a.F0, b.F0}, {a.T1, b.T1}, {a.F1, b.F1}} {
		if d[0] != d[1] {
			if d[0] < d[1] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// unionFind implements a disjoint-set data structure with path compression.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[ra] = rb
	}
}
