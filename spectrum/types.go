package spectrum

import (
	"fmt"
	"math"
	"slices"
)

// Voxel is a declared time-frequency rectangle. Frequencies are in Hz, times
// in seconds. Inside the engine times are relative to match start; on the
// wire they are absolute epoch seconds.
type Voxel struct {
	FreqStart float64 `json:"freqStart"`
	FreqStop  float64 `json:"freqStop"`
	TimeStart float64 `json:"timeStart"`
	TimeStop  float64 `json:"timeStop"`
	DutyCycle float64 `json:"dutyCycle"`
	NOBW      float64 `json:"nobw,omitempty"` // normalized occupied bandwidth, 0 means 1.0
}

// Area returns the unquantized time-frequency area in Hz*s.
func (v Voxel) Area() float64 {
	return (v.FreqStop - v.FreqStart) * (v.TimeStop - v.TimeStart)
}

// OccupiedBandwidth returns the normalized occupied bandwidth, which is
// currently always 1.0 unless set explicitly.
func (v Voxel) OccupiedBandwidth() float64 {
	if v.NOBW == 0 {
		return 1.0
	}
	return v.NOBW
}

// ReportOn returns the area the voxel claims was actively transmitting.
func (v Voxel) ReportOn() float64 {
	return v.Area() * v.DutyCycle * v.OccupiedBandwidth()
}

// Validate reports why a voxel must be excluded from scoring. The returned
// error wraps ErrMalformedVoxel.
func (v Voxel) Validate() error {
	for _, f := range []float64{v.FreqStart, v.FreqStop, v.TimeStart, v.TimeStop, v.DutyCycle, v.NOBW} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite field", ErrMalformedVoxel)
		}
	}
	switch {
	case v.FreqStop < v.FreqStart:
		return fmt.Errorf("%w: frequency stop %.0f before start %.0f", ErrMalformedVoxel, v.FreqStop, v.FreqStart)
	case v.TimeStop < v.TimeStart:
		return fmt.Errorf("%w: time stop %.6f before start %.6f", ErrMalformedVoxel, v.TimeStop, v.TimeStart)
	case v.DutyCycle <= 0:
		return fmt.Errorf("%w: duty cycle %.3f", ErrMalformedVoxel, v.DutyCycle)
	case v.DutyCycle > 1:
		return fmt.Errorf("%w: duty cycle %.3f above 1", ErrMalformedVoxel, v.DutyCycle)
	case v.NOBW < 0 || v.NOBW > 1:
		return fmt.Errorf("%w: normalized bandwidth %.3f outside (0,1]", ErrMalformedVoxel, v.NOBW)
	case v.Area() == 0:
		return fmt.Errorf("%w: zero area", ErrMalformedVoxel)
	}
	return nil
}

// Declaration is one received spectrum usage message.
type Declaration struct {
	FrameTimestamp float64 `json:"frameTimestamp"`
	SourceID       string  `json:"sourceId"`
	DestinationID  string  `json:"destinationId"`
	MeasuredData   bool    `json:"measuredData"`
	Voxels         []Voxel `json:"voxels"`
}

// MinVoxelTime returns the earliest voxel start time, or false when the
// declaration carries no voxels.
func (d Declaration) MinVoxelTime() (float64, bool) {
	if len(d.Voxels) == 0 {
		return 0, false
	}
	minT := d.Voxels[0].TimeStart
	for _, v := range d.Voxels[1:] {
		if v.TimeStart < minT {
			minT = v.TimeStart
		}
	}
	return minT, true
}

// MatchWindow holds the official match boundaries in absolute epoch seconds.
type MatchWindow struct {
	Start float64 `yaml:"start" json:"start"`
	End   float64 `yaml:"end" json:"end"`
}

// Duration returns the match length in seconds.
func (m MatchWindow) Duration() float64 {
	return m.End - m.Start
}

// Validate returns ErrEmptyMatchWindow unless End is after Start.
func (m MatchWindow) Validate() error {
	if !(m.End > m.Start) {
		return fmt.Errorf("%w: start=%.3f end=%.3f", ErrEmptyMatchWindow, m.Start, m.End)
	}
	return nil
}

// Contains reports whether t falls inside the match, boundaries included.
func (m MatchWindow) Contains(t float64) bool {
	return t >= m.Start && t <= m.End
}

// Scenario describes the RF band the match was played in.
type Scenario struct {
	CenterFrequency float64 `yaml:"centerFrequency" json:"centerFrequency"`
	Bandwidth       float64 `yaml:"bandwidth" json:"bandwidth"`
}

// Band returns the lower and upper band edges in Hz.
func (s Scenario) Band() (float64, float64) {
	return s.CenterFrequency - s.Bandwidth/2, s.CenterFrequency + s.Bandwidth/2
}

// ErrorLimits pairs an in-voxel and an out-of-voxel error threshold.
type ErrorLimits struct {
	InVoxel    float64 `yaml:"inVoxel" json:"inVoxel"`
	OutOfVoxel float64 `yaml:"outOfVoxel" json:"outOfVoxel"`
}

// Thresholds holds the pass/fail limits. Historical limits are absolute;
// predicted limits are floors raised to the baseline's own errors.
type Thresholds struct {
	Historical     ErrorLimits `yaml:"historical" json:"historical"`
	PredictedFloor ErrorLimits `yaml:"predictedFloor" json:"predictedFloor"`
}

// DefaultThresholds returns the competition limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Historical:     ErrorLimits{InVoxel: 0.5, OutOfVoxel: 0.5},
		PredictedFloor: ErrorLimits{InVoxel: 0.10, OutOfVoxel: 0.10},
	}
}

// applyDefaults fills each unset limit on its own. A zero limit can never
// be passed, so zero means unset.
func (t *Thresholds) applyDefaults() {
	def := DefaultThresholds()
	fill := func(v *float64, d float64) {
		if *v == 0 {
			*v = d
		}
	}
	fill(&t.Historical.InVoxel, def.Historical.InVoxel)
	fill(&t.Historical.OutOfVoxel, def.Historical.OutOfVoxel)
	fill(&t.PredictedFloor.InVoxel, def.PredictedFloor.InVoxel)
	fill(&t.PredictedFloor.OutOfVoxel, def.PredictedFloor.OutOfVoxel)
}

// OccupancyConfig controls how raw observer captures are thresholded.
type OccupancyConfig struct {
	RFThreshold float64 `yaml:"rfThreshold" json:"rfThreshold"` // dB
}

// ForecastConfig parameterizes the built-in baseline forecaster.
type ForecastConfig struct {
	Enabled           bool      `yaml:"enabled" json:"enabled"`
	TimeBlock         float64   `yaml:"timeBlock" json:"timeBlock"`                 // seconds per coarse cell
	FreqBlocks        int       `yaml:"freqBlocks" json:"freqBlocks"`               // coarse cells across the band
	TrainingLen       float64   `yaml:"trainingLen" json:"trainingLen"`             // seconds of history per fit
	PredictionLen     float64   `yaml:"predictionLen" json:"predictionLen"`         // seconds predicted per step
	Latency           float64   `yaml:"latency" json:"latency"`                     // seconds skipped after training
	Lags              int       `yaml:"lags" json:"lags"`                           // AR model order
	ConstantTolerance float64   `yaml:"constantTolerance" json:"constantTolerance"` // stddev below which history is constant
	Quantization      []float64 `yaml:"quantization,omitempty" json:"quantization,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// RenderFormats lists the accepted plot formats. raster is the quick-look
// PNG; geojson exports the regions instead of drawing them.
var RenderFormats = []string{"svg", "png", "both", "raster", "geojson"}

// ValidRenderFormat reports whether format is one of RenderFormats.
func ValidRenderFormat(format string) bool {
	return slices.Contains(RenderFormats, format)
}

// RenderConfig controls region plots.
type RenderConfig struct {
	Format     string  `yaml:"format" json:"format"`         // one of RenderFormats
	Resolution float64 `yaml:"resolution" json:"resolution"` // DPI for vector PNG output
	Width      float64 `yaml:"width" json:"width"`           // canvas width in mm
	Height     float64 `yaml:"height" json:"height"`         // canvas height in mm
}

// StoreConfig points at the SQLite report history. Empty disables it.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// MetricsConfig points at a Prometheus Pushgateway. Empty disables pushing.
type MetricsConfig struct {
	Pushgateway string `yaml:"pushgateway" json:"pushgateway"`
	Job         string `yaml:"job" json:"job"`
}

// MatchConfig names the inputs of one team's match.
type MatchConfig struct {
	Team         string  `yaml:"team" json:"team"`
	Match        string  `yaml:"match" json:"match"`
	Source       string  `yaml:"source,omitempty" json:"source,omitempty"` // only score declarations from this source
	Start        float64 `yaml:"start" json:"start"`
	End          float64 `yaml:"end" json:"end"`
	Declarations string  `yaml:"declarations" json:"declarations"`
	Occupancy    string  `yaml:"occupancy" json:"occupancy"`
	Baseline     string  `yaml:"baseline,omitempty" json:"baseline,omitempty"`
}

// Window returns the match boundaries.
func (mc MatchConfig) Window() MatchWindow {
	return MatchWindow{Start: mc.Start, End: mc.End}
}

// Config represents the full configuration file
type Config struct {
	Quantum    Quantum         `yaml:"quantum" json:"quantum"`
	Thresholds Thresholds      `yaml:"thresholds" json:"thresholds"`
	Scenario   Scenario        `yaml:"scenario" json:"scenario"`
	Occupancy  OccupancyConfig `yaml:"occupancy" json:"occupancy"`
	Forecast   ForecastConfig  `yaml:"forecast" json:"forecast"`
	MQTT       MQTTConfig      `yaml:"mqtt" json:"mqtt"`
	Render     RenderConfig    `yaml:"render" json:"render"`
	Store      StoreConfig     `yaml:"store" json:"store"`
	Metrics    MetricsConfig   `yaml:"metrics" json:"metrics"`
	Workers    int             `yaml:"workers,omitempty" json:"workers,omitempty"`
	OutputDir  string          `yaml:"outputDir,omitempty" json:"outputDir,omitempty"`
	Matches    []MatchConfig   `yaml:"matches" json:"matches"`
}

// GetMatch returns the match config for the given team and match ID
func (c *Config) GetMatch(team, match string) *MatchConfig {
	for i := range c.Matches {
		if c.Matches[i].Team == team && c.Matches[i].Match == match {
			return &c.Matches[i]
		}
	}
	return nil
}
