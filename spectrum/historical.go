package spectrum

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Discard reasons recorded in StreamStats.
const (
	DiscardMalformed = "malformed"
	DiscardExpired   = "expired"
)

// StreamStats counts what happened to the voxels of one stream.
type StreamStats struct {
	Declarations int            `json:"declarations"`
	Accepted     int            `json:"accepted"`
	Discarded    map[string]int `json:"discarded,omitempty"`
	Aggregates   int            `json:"aggregates"`
}

func (s *StreamStats) discard(reason string) {
	if s.Discarded == nil {
		s.Discarded = make(map[string]int)
	}
	s.Discarded[reason]++
}

// admit validates v against q and returns its aggregate. A voxel that fails
// Validate or snaps to an empty lattice rectangle is rejected.
func admit(q Quantum, v Voxel) (Aggregate, error) {
	if err := v.Validate(); err != nil {
		return Aggregate{}, err
	}
	a := NewAggregate(q, v)
	if a.Region.IsEmpty() {
		return Aggregate{}, fmt.Errorf("%w: below lattice resolution", ErrMalformedVoxel)
	}
	return a, nil
}

// HistoricalAggregator accumulates the coalesced claims of every historical
// declaration of a match. Voxels are never removed once accepted. Pending
// voxels are coalesced on read, which gives the same set as coalescing after
// every Add.
type HistoricalAggregator struct {
	q       Quantum
	tol     Tolerance
	match   MatchWindow
	aggs    []Aggregate
	pending []Aggregate
	stats   StreamStats
}

// NewHistoricalAggregator returns an empty aggregator for one match. Voxels
// overlapping by less than tol stay separate.
func NewHistoricalAggregator(q Quantum, tol Tolerance, match MatchWindow) *HistoricalAggregator {
	return &HistoricalAggregator{q: q, tol: tol, match: match}
}

// Add takes a historical declaration in absolute time. Malformed voxels are
// logged and counted, never scored.
func (h *HistoricalAggregator) Add(d Declaration) {
	h.stats.Declarations++
	rel := ToMatchTime(d, h.match)
	for i, v := range rel.Voxels {
		a, err := admit(h.q, v)
		if err != nil {
			h.stats.discard(DiscardMalformed)
			logrus.WithFields(logrus.Fields{
				"stream": "historical",
				"frame":  d.FrameTimestamp,
				"voxel":  i,
			}).WithError(err).Debug("discarding voxel")
			continue
		}
		h.stats.Accepted++
		h.pending = append(h.pending, a)
	}
}

// Aggregates returns the current coalesced set.
func (h *HistoricalAggregator) Aggregates() []Aggregate {
	if len(h.pending) > 0 {
		h.aggs = Coalesce(append(h.aggs, h.pending...), h.tol)
		h.pending = nil
	}
	h.stats.Aggregates = len(h.aggs)
	out := make([]Aggregate, len(h.aggs))
	copy(out, h.aggs)
	return out
}

// Region returns the union of every accepted voxel.
func (h *HistoricalAggregator) Region() Region {
	return UnionAll(h.Aggregates())
}

// Stats returns voxel counters for the stream so far.
func (h *HistoricalAggregator) Stats() StreamStats {
	h.Aggregates()
	s := h.stats
	if h.stats.Discarded != nil {
		s.Discarded = make(map[string]int, len(h.stats.Discarded))
		for k, v := range h.stats.Discarded {
			s.Discarded[k] = v
		}
	}
	return s
}
