package spectrum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func voxel(f0, f1, t0, t1, duty float64) Voxel {
	return Voxel{FreqStart: f0, FreqStop: f1, TimeStart: t0, TimeStop: t1, DutyCycle: duty}
}

func TestCoalesce_NotchedPair(t *testing.T) {
	a := voxel(0, 10, 0, 5, 0.5) // report_on 25
	b := voxel(5, 15, 3, 8, 0.4) // report_on 20

	aggs := CoalesceVoxels(unit, Tolerance{}, []Voxel{a, b})
	require.Len(t, aggs, 1)

	agg := aggs[0]
	assert.InDelta(t, 45.0, agg.ReportOn, 1e-9)
	assert.Equal(t, 2, agg.Voxels)
	assert.Equal(t, rect(0, 8, 0, 15), agg.Region.Bound())
	assert.Equal(t, 90.0, unit.Area(agg.Region), "bounding box minus the two uncovered corners")
	assert.Equal(t, 3, agg.Region.Len())
}

func TestCoalesce_TouchingStaysApart(t *testing.T) {
	aggs := CoalesceVoxels(unit, Tolerance{}, []Voxel{
		voxel(0, 10, 0, 5, 1),
		voxel(0, 10, 5, 10, 1),  // shares a time edge
		voxel(10, 20, 0, 5, 1),  // shares a frequency edge
		voxel(10, 20, 5, 10, 1), // shares a corner with the first
	})
	assert.Len(t, aggs, 4)
	for _, a := range aggs {
		assert.Equal(t, 1, a.Voxels)
	}
}

func TestCoalesce_Transitive(t *testing.T) {
	// a and c do not overlap, but both overlap b.
	aggs := CoalesceVoxels(unit, Tolerance{}, []Voxel{
		voxel(0, 10, 0, 4, 1),
		voxel(5, 15, 2, 8, 1),
		voxel(12, 20, 6, 10, 1),
		voxel(100, 110, 0, 1, 1),
	})
	require.Len(t, aggs, 2)
	assert.Equal(t, 3, aggs[0].Voxels)
	assert.InDelta(t, 40.0+60.0+32.0, aggs[0].ReportOn, 1e-9)
	assert.Equal(t, 1, aggs[1].Voxels)
}

func TestCoalesce_BoundingBoxesOverlapButRegionsDoNot(t *testing.T) {
	// An L-shaped aggregate whose bound covers a voxel sitting in its notch.
	l := Coalesce([]Aggregate{
		{Region: NewRegion(rect(0, 10, 0, 2), rect(0, 2, 0, 10)), ReportOn: 36, Voxels: 2},
		NewAggregate(unit, voxel(5, 8, 5, 8, 1)),
	}, Tolerance{})
	assert.Len(t, l, 2)
}

func TestCoalesce_OrderIndependent(t *testing.T) {
	voxels := []Voxel{
		voxel(0, 10, 0, 5, 0.5),
		voxel(5, 15, 3, 8, 0.4),
		voxel(14, 30, 7, 9, 0.3),
		voxel(40, 50, 0, 2, 0.7),
		voxel(45, 55, 1, 3, 0.1),
		voxel(0, 5, 20, 25, 1.0),
	}
	want := CoalesceVoxels(unit, Tolerance{}, voxels)

	perms := [][]int{
		{5, 4, 3, 2, 1, 0},
		{2, 0, 4, 1, 5, 3},
		{3, 5, 1, 0, 2, 4},
		{1, 2, 0, 3, 4, 5},
	}
	for _, perm := range perms {
		shuffled := make([]Voxel, len(voxels))
		for i, p := range perm {
			shuffled[i] = voxels[p]
		}
		got := CoalesceVoxels(unit, Tolerance{}, shuffled)
		require.Len(t, got, len(want), "perm %v", perm)
		for i := range want {
			assert.True(t, want[i].Region.Equal(got[i].Region), "perm %v aggregate %d", perm, i)
			assert.Equal(t, want[i].ReportOn, got[i].ReportOn, "perm %v aggregate %d", perm, i)
			assert.Equal(t, want[i].Voxels, got[i].Voxels)
		}
		assert.Equal(t, TotalReportOn(want), TotalReportOn(got))
	}
}

func TestCoalesce_Idempotent(t *testing.T) {
	once := CoalesceVoxels(unit, Tolerance{}, []Voxel{
		voxel(0, 10, 0, 5, 0.5),
		voxel(5, 15, 3, 8, 0.4),
		voxel(40, 50, 0, 2, 0.7),
	})
	twice := Coalesce(once, Tolerance{})
	require.Len(t, twice, len(once))
	for i := range once {
		assert.True(t, once[i].Region.Equal(twice[i].Region))
		assert.Equal(t, once[i].ReportOn, twice[i].ReportOn)
	}
}

func TestCoalesce_DropsEmpty(t *testing.T) {
	assert.Nil(t, Coalesce(nil, Tolerance{}))
	assert.Nil(t, Coalesce([]Aggregate{{ReportOn: 3}}, Tolerance{}))
}

func TestUnionAll(t *testing.T) {
	aggs := CoalesceVoxels(unit, Tolerance{}, []Voxel{
		voxel(0, 10, 0, 5, 1),
		voxel(0, 10, 5, 10, 1),
	})
	require.Len(t, aggs, 2)
	u := UnionAll(aggs)
	assert.Equal(t, 1, u.Len(), "touching aggregates fuse in the union")
	assert.Equal(t, 100.0, unit.Area(u))
}

func TestStableSum_OrderIndependent(t *testing.T) {
	a := []float64{1e16, 1, -1e16, 0.1, 3.3}
	b := []float64{0.1, -1e16, 3.3, 1, 1e16}
	assert.Equal(t, stableSum(a), stableSum(b))
}

func TestCoalesce_SubPixelOverlapOnlyTouches(t *testing.T) {
	q := DefaultQuantum()
	pixel := q.PixelTolerance(0.01, 1)
	voxels := []Voxel{
		voxel(0, 10, 0, 0.5, 1),
		voxel(0, 10, 0.499, 1, 1),
	}

	apart := CoalesceVoxels(q, pixel, voxels)
	require.Len(t, apart, 2, "a 1 ms overlap is below one 10 ms pixel")
	assert.InDelta(t, 10.01, TotalReportOn(apart), 1e-9)

	assert.Len(t, CoalesceVoxels(q, Tolerance{}, voxels), 1, "any overlap merges on the bare lattice")

	voxels[1].TimeStart = 0.49
	assert.Len(t, CoalesceVoxels(q, pixel, voxels), 1, "a full pixel of overlap merges")
}

func TestCoalesce_ToleranceMergesUntilStable(t *testing.T) {
	// b overlaps each of a1, a2 and c by less than the tolerance, but the
	// merged a1+c+a2 covers a full 4x4 box of b.
	tol := Tolerance{Time: 4, Freq: 4}
	voxels := []Voxel{
		voxel(0, 10, 0, 10, 1),  // a1
		voxel(0, 10, 10, 20, 1), // a2
		voxel(0, 4, 5, 15, 1),   // c bridges a1 and a2
		voxel(6, 20, 8, 12, 1),  // b
	}

	perms := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {3, 0, 1, 2}, {2, 3, 0, 1}, {1, 3, 2, 0}}
	for _, perm := range perms {
		shuffled := make([]Voxel, len(voxels))
		for i, p := range perm {
			shuffled[i] = voxels[p]
		}
		got := CoalesceVoxels(unit, tol, shuffled)
		require.Len(t, got, 1, "perm %v", perm)
		assert.Equal(t, 296.0, got[0].ReportOn)
		assert.Equal(t, 4, got[0].Voxels)

		again := Coalesce(got, tol)
		require.Len(t, again, 1)
		assert.True(t, again[0].Region.Equal(got[0].Region))
	}

	without := CoalesceVoxels(unit, tol, voxels[:2])
	assert.Len(t, without, 2, "a1 and a2 only touch")
}
