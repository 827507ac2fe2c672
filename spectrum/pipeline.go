package spectrum

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Baseline sources recorded in reports.
const (
	BaselineFile     = "file"
	BaselineForecast = "forecast"
	BaselineNone     = "none"
)

// MatchInput is everything needed to score one team's match, fully loaded.
// Declarations and Baseline are in absolute time. A nil Baseline runs the
// built-in forecaster when it is enabled.
type MatchInput struct {
	Team         string
	Match        string
	Source       string
	Window       MatchWindow
	Declarations []Declaration
	Baseline     []Declaration
	Occupancy    *OccupancyGrid
}

// MatchResult is a scored match with the regions it was scored on, all in
// match-relative time.
type MatchResult struct {
	Report     *AccuracyReport
	Occupied   Region
	Historical []Aggregate
	Predicted  []WindowedDeclaration
	Baseline   []WindowedDeclaration
}

// Engine scores matches with one set of parameters. It holds no per-match
// state and is safe for concurrent use.
type Engine struct {
	Quantum    Quantum
	Thresholds Thresholds
	Scenario   Scenario
	Forecast   ForecastConfig
	Workers    int
	Metrics    *Metrics
	RunID      string
}

// NewEngine builds an engine from cfg. metrics may be nil.
func NewEngine(cfg *Config, metrics *Metrics) *Engine {
	return &Engine{
		Quantum:    cfg.Quantum,
		Thresholds: cfg.Thresholds,
		Scenario:   cfg.Scenario,
		Forecast:   cfg.Forecast,
		Workers:    cfg.Workers,
		Metrics:    metrics,
		RunID:      uuid.NewString(),
	}
}

// ScoreMatch classifies, aggregates and scores one match. A missing or empty
// occupancy grid or an empty match window fails the match with no report.
func (e *Engine) ScoreMatch(in MatchInput) (*MatchResult, error) {
	started := time.Now()
	res, c, err := e.scoreMatch(in)
	if err != nil {
		e.Metrics.RecordFailure()
		return nil, fmt.Errorf("scoring %s/%s: %w", in.Team, in.Match, err)
	}
	e.Metrics.RecordMatch(res.Report, c, time.Since(started))
	return res, nil
}

func (e *Engine) scoreMatch(in MatchInput) (*MatchResult, Classification, error) {
	log := logrus.WithFields(logrus.Fields{"team": in.Team, "match": in.Match})
	q := e.Quantum

	if err := in.Window.Validate(); err != nil {
		return nil, Classification{}, err
	}
	if in.Occupancy.Empty() {
		return nil, Classification{}, ErrNoOccupancy
	}

	occupied := e.occupiedRegion(in)
	tol := in.Occupancy.Tolerance(q)
	c := ClassifyAll(in.Declarations, in.Window, in.Source)

	hist := NewHistoricalAggregator(q, tol, in.Window)
	for _, d := range c.Historical {
		hist.Add(d)
	}
	histAggs := hist.Aggregates()
	predicted, predStats := WindowDeclarations(q, tol, in.Window, c.Predicted)

	report := &AccuracyReport{
		RunID:       e.RunID,
		Team:        in.Team,
		Match:       in.Match,
		GeneratedAt: time.Now().UTC(),
		Ignored:     c.Ignored,
		BaselineSrc: BaselineNone,
	}

	baseline, src, err := e.baselineStream(in, occupied, tol)
	if err != nil {
		return nil, c, err
	}
	var baselineScore *StreamScore
	if src != BaselineNone {
		s := Score(q, PredictedAggregates(baseline), occupied)
		baselineScore = &s
		report.BaselineSrc = src
	} else {
		log.Warn("no baseline available, predicted thresholds use the floors only")
	}
	report.Baseline = baselineScore

	report.Metrics.HistoricalUse = JudgeHistorical(Score(q, histAggs, occupied), e.Thresholds)
	report.Metrics.HistoricalUse.Stats = hist.Stats()
	report.Metrics.PredictedUse = JudgePredicted(Score(q, PredictedAggregates(predicted), occupied), baselineScore, e.Thresholds)
	report.Metrics.PredictedUse.Stats = predStats
	report.Pass = report.Metrics.HistoricalUse.Pass && report.Metrics.PredictedUse.Pass

	s := report.Summary()
	log.WithFields(logrus.Fields{
		"ei_historical": s.InVoxelHistorical,
		"eo_historical": s.OutOfVoxelHistorical,
		"ei_predicted":  s.InVoxelPredicted,
		"eo_predicted":  s.OutOfVoxelPredicted,
		"pass":          report.Pass,
	}).Info("match scored")

	return &MatchResult{
		Report:     report,
		Occupied:   occupied,
		Historical: histAggs,
		Predicted:  predicted,
		Baseline:   baseline,
	}, c, nil
}

// occupiedRegion converts the grid to match-relative time and drops
// anything recorded outside the match.
func (e *Engine) occupiedRegion(in MatchInput) Region {
	o := in.Occupancy.Region(e.Quantum, in.Window.Start)
	if o.IsEmpty() {
		return o
	}
	b := o.Bound()
	return o.Intersect(NewRegion(Rect{T0: 0, T1: e.Quantum.TimeTicks(in.Window.Duration()), F0: b.F0, F1: b.F1}))
}

// baselineStream runs the baseline declarations through the predicted-use
// pipeline. Without a baseline file the forecaster supplies one when
// enabled.
func (e *Engine) baselineStream(in MatchInput, occupied Region, tol Tolerance) ([]WindowedDeclaration, string, error) {
	decls, src := in.Baseline, BaselineFile
	if decls == nil {
		if !e.Forecast.Enabled {
			return nil, BaselineNone, nil
		}
		var err error
		if decls, err = e.predict(occupied, in.Window); err != nil {
			return nil, "", err
		}
		src = BaselineForecast
	}
	c := ClassifyAll(decls, in.Window, "")
	wds, _ := WindowDeclarations(e.Quantum, tol, in.Window, c.Predicted)
	return wds, src, nil
}

// PredictBaseline runs the built-in forecaster over the match's occupancy
// and returns its declarations in absolute time. A disabled forecast config
// falls back to the competition defaults.
func (e *Engine) PredictBaseline(in MatchInput) ([]Declaration, error) {
	if err := in.Window.Validate(); err != nil {
		return nil, err
	}
	if in.Occupancy.Empty() {
		return nil, ErrNoOccupancy
	}
	return e.predict(e.occupiedRegion(in), in.Window)
}

func (e *Engine) predict(occupied Region, match MatchWindow) ([]Declaration, error) {
	cfg := e.Forecast
	if !cfg.Enabled {
		cfg = DefaultForecastConfig()
	}
	f, err := NewForecaster(cfg, e.Quantum, e.Scenario)
	if err != nil {
		return nil, fmt.Errorf("creating forecaster: %w", err)
	}
	return f.Predict(occupied, match), nil
}

// ScoreMatches scores inputs concurrently with at most Workers matches in
// flight. Results are in input order. The first failure cancels matches not
// yet started and is returned.
func (e *Engine) ScoreMatches(ctx context.Context, inputs []MatchInput) ([]*MatchResult, error) {
	results := make([]*MatchResult, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	if e.Workers > 0 {
		g.SetLimit(e.Workers)
	}
	for i := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := e.ScoreMatch(inputs[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
