package spectrum

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MetricResult is one error metric judged against its threshold.
type MetricResult struct {
	CompetitorValue float64 `json:"competitor_value"`
	ThresholdValue  float64 `json:"threshold_value"`
	Pass            bool    `json:"pass"`
}

func judge(value, threshold float64) MetricResult {
	return MetricResult{CompetitorValue: value, ThresholdValue: threshold, Pass: value < threshold}
}

// UseCaseResult is the verdict for one voxel stream. It passes when both
// metrics are strictly below their thresholds.
type UseCaseResult struct {
	InVoxelError    MetricResult `json:"in_voxel_error"`
	OutOfVoxelError MetricResult `json:"out_of_voxel_error"`
	Pass            bool         `json:"pass"`
	Score           StreamScore  `json:"score"`
	Stats           StreamStats  `json:"stats"`
}

// JudgeHistorical applies the fixed historical limits.
func JudgeHistorical(s StreamScore, th Thresholds) UseCaseResult {
	return newUseCase(s, th.Historical)
}

// JudgePredicted raises the predicted floors to the baseline's own errors.
// A nil baseline leaves the floors in place.
func JudgePredicted(s StreamScore, baseline *StreamScore, th Thresholds) UseCaseResult {
	limits := th.PredictedFloor
	if baseline != nil {
		limits.InVoxel = max(limits.InVoxel, baseline.InVoxelError)
		limits.OutOfVoxel = max(limits.OutOfVoxel, baseline.OutOfVoxelError)
	}
	return newUseCase(s, limits)
}

func newUseCase(s StreamScore, limits ErrorLimits) UseCaseResult {
	u := UseCaseResult{
		InVoxelError:    judge(s.InVoxelError, limits.InVoxel),
		OutOfVoxelError: judge(s.OutOfVoxelError, limits.OutOfVoxel),
		Score:           s,
	}
	u.Pass = u.InVoxelError.Pass && u.OutOfVoxelError.Pass
	return u
}

// ReportMetrics groups the per-stream verdicts.
type ReportMetrics struct {
	PredictedUse  UseCaseResult `json:"predicted_use"`
	HistoricalUse UseCaseResult `json:"historical_use"`
}

// AccuracyReport is the scoring outcome of one team's match.
type AccuracyReport struct {
	RunID       string        `json:"run_id"`
	Team        string        `json:"team_id"`
	Match       string        `json:"match_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Pass        bool          `json:"pass"`
	Metrics     ReportMetrics `json:"metrics"`
	Baseline    *StreamScore  `json:"baseline,omitempty"`
	BaselineSrc string        `json:"baseline_source"` // file, forecast or none
	Ignored     int           `json:"ignored_declarations"`
}

// Summary is the flat form of a report.
type Summary struct {
	InVoxelHistorical    float64 `json:"E_i_historical"`
	OutOfVoxelHistorical float64 `json:"E_o_historical"`
	InVoxelPredicted     float64 `json:"E_i_predicted"`
	OutOfVoxelPredicted  float64 `json:"E_o_predicted"`
	PassHistorical       bool    `json:"pass_historical"`
	PassPredicted        bool    `json:"pass_predicted"`
}

// Summary flattens the report to its six headline values.
func (r *AccuracyReport) Summary() Summary {
	return Summary{
		InVoxelHistorical:    r.Metrics.HistoricalUse.InVoxelError.CompetitorValue,
		OutOfVoxelHistorical: r.Metrics.HistoricalUse.OutOfVoxelError.CompetitorValue,
		InVoxelPredicted:     r.Metrics.PredictedUse.InVoxelError.CompetitorValue,
		OutOfVoxelPredicted:  r.Metrics.PredictedUse.OutOfVoxelError.CompetitorValue,
		PassHistorical:       r.Metrics.HistoricalUse.Pass,
		PassPredicted:        r.Metrics.PredictedUse.Pass,
	}
}

// WriteReport writes r as indented JSON to dir/<team>_<match>.json and
// returns the path.
func WriteReport(dir string, r *AccuracyReport) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", r.Team, r.Match))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
