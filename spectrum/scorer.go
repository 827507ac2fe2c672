package spectrum

import (
	"math"
)

// StreamScore holds the error metrics of one voxel stream against the
// occupied region O, with the areas they were computed from (Hz*s).
type StreamScore struct {
	InVoxelError    float64 `json:"inVoxelError"`
	OutOfVoxelError float64 `json:"outOfVoxelError"`
	ReportOn        float64 `json:"reportOn"`
	TxInside        float64 `json:"txInside"`
	TxOutside       float64 `json:"txOutside"`
	Occupied        float64 `json:"occupied"`
}

// Score compares aggs with the occupied region.
//
// The in-voxel error is the summed per-aggregate mismatch between claimed
// and observed active area, normalized by the larger of the two totals; it
// is zero when both totals are zero. The out-of-voxel error is the share of
// O lying outside the union of all aggregates; it is zero when nothing was
// occupied.
func Score(q Quantum, aggs []Aggregate, occupied Region) StreamScore {
	mismatch := make([]float64, len(aggs))
	inside := make([]float64, len(aggs))
	claimed := make([]float64, len(aggs))
	for i, a := range aggs {
		inside[i] = q.Area(a.Region.Intersect(occupied))
		claimed[i] = a.ReportOn
		mismatch[i] = math.Abs(a.ReportOn - inside[i])
	}

	s := StreamScore{
		ReportOn: stableSum(claimed),
		TxInside: stableSum(inside),
		Occupied: q.Area(occupied),
	}
	if denom := max(s.TxInside, s.ReportOn); denom > 0 {
		s.InVoxelError = stableSum(mismatch) / denom
	}

	s.TxOutside = q.Area(occupied.Difference(UnionAll(aggs)))
	if s.Occupied > 0 {
		s.OutOfVoxelError = s.TxOutside / s.Occupied
	}
	return s
}
