package spectrum

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricsNamespace = "voxelscore"

// Metrics holds the scoring run's Prometheus collectors on a private
// registry, which a batch run pushes to a Pushgateway and serve mode
// exposes.
type Metrics struct {
	registry *prometheus.Registry

	// DeclarationsTotal counts declarations by category.
	// Labels: category (historical, predicted, ignored)
	DeclarationsTotal *prometheus.CounterVec

	// VoxelsDiscardedTotal counts voxels excluded from scoring.
	// Labels: stream (historical, predicted, baseline), reason (malformed, expired)
	VoxelsDiscardedTotal *prometheus.CounterVec

	// ScoreError holds the latest error metric per match.
	// Labels: team, match, stream, metric (in_voxel, out_of_voxel)
	ScoreError *prometheus.GaugeVec

	// Pass is 1 when the use case passed, else 0.
	// Labels: team, match, use_case
	Pass *prometheus.GaugeVec

	// MatchesTotal counts scored matches by status (success, error).
	MatchesTotal *prometheus.CounterVec

	// ScoreDurationSeconds measures wall time per match.
	ScoreDurationSeconds prometheus.Histogram
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		DeclarationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "declarations_total",
			Help:      "Declarations seen by classification category",
		}, []string{"category"}),
		VoxelsDiscardedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "voxels_discarded_total",
			Help:      "Voxels excluded from scoring by stream and reason",
		}, []string{"stream", "reason"}),
		ScoreError: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "error_ratio",
			Help:      "In-voxel and out-of-voxel error per match and stream",
		}, []string{"team", "match", "stream", "metric"}),
		Pass: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pass",
			Help:      "1 when the use case passed its thresholds",
		}, []string{"team", "match", "use_case"}),
		MatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "matches_total",
			Help:      "Scored matches by status",
		}, []string{"status"}),
		ScoreDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "score_duration_seconds",
			Help:      "Wall time to score one match",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordMatch records a finished match. A nil receiver is a no-op.
func (m *Metrics) RecordMatch(r *AccuracyReport, c Classification, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.MatchesTotal.WithLabelValues("success").Inc()
	m.ScoreDurationSeconds.Observe(elapsed.Seconds())

	m.DeclarationsTotal.WithLabelValues(Historical.String()).Add(float64(len(c.Historical)))
	m.DeclarationsTotal.WithLabelValues(Predicted.String()).Add(float64(len(c.Predicted)))
	m.DeclarationsTotal.WithLabelValues(Ignored.String()).Add(float64(c.Ignored))

	streams := []struct {
		name  string
		stats StreamStats
	}{
		{LayerHistorical, r.Metrics.HistoricalUse.Stats},
		{LayerPredicted, r.Metrics.PredictedUse.Stats},
	}
	for _, s := range streams {
		for reason, n := range s.stats.Discarded {
			m.VoxelsDiscardedTotal.WithLabelValues(s.name, reason).Add(float64(n))
		}
	}

	set := func(stream string, u UseCaseResult) {
		m.ScoreError.WithLabelValues(r.Team, r.Match, stream, "in_voxel").Set(u.InVoxelError.CompetitorValue)
		m.ScoreError.WithLabelValues(r.Team, r.Match, stream, "out_of_voxel").Set(u.OutOfVoxelError.CompetitorValue)
		m.Pass.WithLabelValues(r.Team, r.Match, stream).Set(boolGauge(u.Pass))
	}
	set(LayerHistorical, r.Metrics.HistoricalUse)
	set(LayerPredicted, r.Metrics.PredictedUse)
	if r.Baseline != nil {
		m.ScoreError.WithLabelValues(r.Team, r.Match, LayerBaseline, "in_voxel").Set(r.Baseline.InVoxelError)
		m.ScoreError.WithLabelValues(r.Team, r.Match, LayerBaseline, "out_of_voxel").Set(r.Baseline.OutOfVoxelError)
	}
}

// RecordFailure counts a match that could not be scored.
func (m *Metrics) RecordFailure() {
	if m == nil {
		return
	}
	m.MatchesTotal.WithLabelValues("error").Inc()
}

// Push sends every collector to a Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
