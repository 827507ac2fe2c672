package spectrum

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// BaselineDestination is the destination stamped on forecaster output.
const BaselineDestination = "baseline"

// DefaultForecastConfig returns the parameters used by the competition
// baseline: 0.2 s by 64-block cells, 30 s of training, 1 s predicted per
// step.
func DefaultForecastConfig() ForecastConfig {
	return ForecastConfig{
		Enabled:           true,
		TimeBlock:         0.2,
		FreqBlocks:        64,
		TrainingLen:       30,
		PredictionLen:     1,
		Latency:           0,
		Lags:              2,
		ConstantTolerance: 1e-3,
	}
}

// Validate checks forecaster parameters.
func (c ForecastConfig) Validate() error {
	switch {
	case !(c.TimeBlock > 0):
		return fmt.Errorf("forecast.timeBlock must be positive")
	case c.FreqBlocks <= 0:
		return fmt.Errorf("forecast.freqBlocks must be positive")
	case c.TrainingLen < c.TimeBlock:
		return fmt.Errorf("forecast.trainingLen must cover at least one time block")
	case c.PredictionLen < c.TimeBlock:
		return fmt.Errorf("forecast.predictionLen must cover at least one time block")
	case c.Latency < 0:
		return fmt.Errorf("forecast.latency must not be negative")
	case c.Lags <= 0:
		return fmt.Errorf("forecast.lags must be positive")
	}
	for i := 1; i < len(c.Quantization); i++ {
		if c.Quantization[i] <= c.Quantization[i-1] {
			return fmt.Errorf("forecast.quantization must be strictly increasing")
		}
	}
	return nil
}

// Forecaster predicts future occupancy from past occupancy only and emits
// it as declarations, so its output is scored exactly like a team's.
type Forecaster struct {
	cfg      ForecastConfig
	q        Quantum
	scenario Scenario
}

// NewForecaster validates cfg and returns a forecaster.
func NewForecaster(cfg ForecastConfig, q Quantum, sc Scenario) (*Forecaster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !(sc.Bandwidth > 0) {
		return nil, fmt.Errorf("scenario bandwidth must be positive for forecasting")
	}
	return &Forecaster{cfg: cfg, q: q, scenario: sc}, nil
}

// DutyGrid is occupancy averaged over coarse cells, indexed [time][freq].
type DutyGrid struct {
	TimeBlock float64
	FreqStart float64
	FreqBlock float64
	Cells     [][]float64
}

// DutyGrid maps the match-relative occupied region onto the coarse grid.
// Each cell holds the occupied fraction of its area.
func (f *Forecaster) DutyGrid(occupied Region, match MatchWindow) DutyGrid {
	lo, hi := f.scenario.Band()
	g := DutyGrid{
		TimeBlock: f.cfg.TimeBlock,
		FreqStart: lo,
		FreqBlock: (hi - lo) / float64(f.cfg.FreqBlocks),
	}
	n := int(math.Floor(match.Duration()/f.cfg.TimeBlock + 1e-9))
	g.Cells = make([][]float64, n)
	for t := range g.Cells {
		g.Cells[t] = make([]float64, f.cfg.FreqBlocks)
		t0, t1 := float64(t)*g.TimeBlock, float64(t+1)*g.TimeBlock
		row := occupied.Intersect(NewRegion(Rect{
			T0: f.q.TimeTicks(t0), T1: f.q.TimeTicks(t1),
			F0: f.q.FreqTicks(lo), F1: f.q.FreqTicks(hi),
		}))
		if row.IsEmpty() {
			continue
		}
		for k := range g.Cells[t] {
			cell := Rect{
				T0: f.q.TimeTicks(t0), T1: f.q.TimeTicks(t1),
				F0: f.q.FreqTicks(lo + float64(k)*g.FreqBlock),
				F1: f.q.FreqTicks(lo + float64(k+1)*g.FreqBlock),
			}
			if area := f.q.RectArea(cell); area > 0 {
				g.Cells[t][k] = f.q.Area(row.Intersect(NewRegion(cell))) / area
			}
		}
	}
	return g
}

// Predict slides a training window over the match. Each step fits one
// autoregressive model per frequency block on the training window, skips
// the latency blocks and predicts the following predictionLen seconds. The
// result is one unmeasured declaration per step in absolute time, framed at
// the end of its training window.
func (f *Forecaster) Predict(occupied Region, match MatchWindow) []Declaration {
	grid := f.DutyGrid(occupied, match)
	n := len(grid.Cells)
	train := blocks(f.cfg.TrainingLen, f.cfg.TimeBlock)
	horizon := blocks(f.cfg.PredictionLen, f.cfg.TimeBlock)
	latency := int(math.Round(f.cfg.Latency / f.cfg.TimeBlock))

	var out []Declaration
	series := make([]float64, train)
	for start := 0; start+train+latency < n; start += horizon {
		first := start + train + latency
		last := min(first+horizon, n)
		d := Declaration{
			FrameTimestamp: match.Start + float64(start+train)*grid.TimeBlock,
			SourceID:       BaselineDestination,
			DestinationID:  BaselineDestination,
		}
		for k := 0; k < f.cfg.FreqBlocks; k++ {
			for i := range series {
				series[i] = grid.Cells[start+i][k]
			}
			pred := f.forecast(series, latency+last-first)
			for h, duty := range pred[latency:] {
				duty = QuantizeDuty(clip01(duty), f.cfg.Quantization)
				if duty <= 0 {
					continue
				}
				t := first + h
				d.Voxels = append(d.Voxels, Voxel{
					FreqStart: grid.FreqStart + float64(k)*grid.FreqBlock,
					FreqStop:  grid.FreqStart + float64(k+1)*grid.FreqBlock,
					TimeStart: match.Start + float64(t)*grid.TimeBlock,
					TimeStop:  match.Start + float64(t+1)*grid.TimeBlock,
					DutyCycle: duty,
				})
			}
		}
		out = append(out, d)
	}
	logrus.WithFields(logrus.Fields{
		"blocks":       n,
		"declarations": len(out),
	}).Debug("baseline forecast complete")
	return out
}

// forecast predicts steps values after series with an AR(lags) model fitted
// by least squares. Near-constant or unfittable history predicts its mean.
func (f *Forecaster) forecast(series []float64, steps int) []float64 {
	mean := stat.Mean(series, nil)
	constant := func() []float64 {
		out := make([]float64, steps)
		for i := range out {
			out[i] = mean
		}
		return out
	}

	p := f.cfg.Lags
	rows := len(series) - p
	if len(series) < 2 || rows < p+1 || stat.StdDev(series, nil) < f.cfg.ConstantTolerance {
		return constant()
	}

	x := mat.NewDense(rows, p+1, nil)
	y := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := r + p
		x.Set(r, 0, 1)
		for j := 1; j <= p; j++ {
			x.Set(r, j, series[t-j])
		}
		y.SetVec(r, series[t])
	}
	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		logrus.WithError(err).Trace("autoregressive fit failed, using mean")
		return constant()
	}

	hist := make([]float64, len(series), len(series)+steps)
	copy(hist, series)
	out := make([]float64, steps)
	for s := range out {
		v := beta.AtVec(0)
		for j := 1; j <= p; j++ {
			v += beta.AtVec(j) * hist[len(hist)-j]
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return constant()
		}
		out[s] = v
		hist = append(hist, v)
	}
	return out
}

// QuantizeDuty rounds d down to the largest interval value not above it.
// With no intervals d is returned unchanged; values below the first
// interval become 0.
func QuantizeDuty(d float64, intervals []float64) float64 {
	if len(intervals) == 0 {
		return d
	}
	i := sort.Search(len(intervals), func(i int) bool { return intervals[i] > d })
	if i == 0 {
		return 0
	}
	return intervals[i-1]
}

func blocks(seconds, block float64) int {
	return max(1, int(math.Round(seconds/block)))
}

func clip01(v float64) float64 {
	return min(max(v, 0), 1)
}
