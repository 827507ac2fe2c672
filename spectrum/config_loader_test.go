package spectrum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func validConfigYAML() string {
	return `scenario:
  centerFrequency: 1000000000
  bandwidth: 20000000
mqtt:
  broker: tcp://localhost:1883
  publishPrefix: scores
matches:
  - team: team7
    match: m3
    start: 1000
    end: 1600
    declarations: inputs/team7_m3.json
    occupancy: /data/occupancy/m3.json
    baseline: inputs/baseline_m3.json
  - team: team9
    match: m3
    source: net-9
    start: 1000
    end: 1600
    declarations: inputs/team9_m3.json
    occupancy: observers/*.bin
`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// LoadConfig
// ---------------------------------------------------------------------------

func TestLoadConfig_NotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %q, want not-found message", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "matches: [unclosed")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error, got nil")
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, validConfigYAML())
	base := filepath.Dir(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("Broker = %q, want %q", cfg.MQTT.Broker, "tcp://localhost:1883")
	}
	if len(cfg.Matches) != 2 {
		t.Fatalf("len(Matches) = %d, want 2", len(cfg.Matches))
	}

	m := cfg.Matches[0]
	if m.Declarations != filepath.Join(base, "inputs/team7_m3.json") {
		t.Errorf("Declarations = %q, want resolved against config dir", m.Declarations)
	}
	if m.Occupancy != "/data/occupancy/m3.json" {
		t.Errorf("Occupancy = %q, absolute paths must be kept", m.Occupancy)
	}
	if m.Baseline != filepath.Join(base, "inputs/baseline_m3.json") {
		t.Errorf("Baseline = %q, want resolved against config dir", m.Baseline)
	}
	if cfg.Matches[1].Baseline != "" {
		t.Errorf("Baseline = %q, unset paths must stay empty", cfg.Matches[1].Baseline)
	}
	if cfg.Matches[1].Occupancy != filepath.Join(base, "observers/*.bin") {
		t.Errorf("Occupancy = %q, globs are resolved too", cfg.Matches[1].Occupancy)
	}
	if cfg.Matches[1].Source != "net-9" {
		t.Errorf("Source = %q, want net-9", cfg.Matches[1].Source)
	}
	if w := m.Window(); w.Duration() != 600 {
		t.Errorf("Window().Duration() = %v, want 600", w.Duration())
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, validConfigYAML())
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if want := filepath.Join(filepath.Dir(path), "reports"); cfg.OutputDir != want {
		t.Errorf("OutputDir = %q, want %q", cfg.OutputDir, want)
	}
	if cfg.Quantum != DefaultQuantum() {
		t.Errorf("Quantum = %+v, want default", cfg.Quantum)
	}
	if cfg.Thresholds != DefaultThresholds() {
		t.Errorf("Thresholds = %+v, want default", cfg.Thresholds)
	}
	if cfg.Occupancy.RFThreshold != -60 {
		t.Errorf("RFThreshold = %v, want -60", cfg.Occupancy.RFThreshold)
	}
	if cfg.Forecast.Enabled {
		t.Error("forecast should be disabled by default")
	}
	if cfg.Render.Format != "svg" {
		t.Errorf("Render.Format = %q, want svg", cfg.Render.Format)
	}
	if cfg.Metrics.Job != "voxelscore" {
		t.Errorf("Metrics.Job = %q, want voxelscore", cfg.Metrics.Job)
	}
	if cfg.Store.Path != "" {
		t.Errorf("Store.Path = %q, want empty", cfg.Store.Path)
	}
}

func TestLoadConfig_ForecastDefaults(t *testing.T) {
	body := validConfigYAML() + `forecast:
  enabled: true
  lags: 3
`
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	def := DefaultForecastConfig()
	if cfg.Forecast.Lags != 3 {
		t.Errorf("Lags = %d, explicit value must be kept", cfg.Forecast.Lags)
	}
	if cfg.Forecast.TrainingLen != def.TrainingLen {
		t.Errorf("TrainingLen = %v, want %v", cfg.Forecast.TrainingLen, def.TrainingLen)
	}
	if cfg.Forecast.FreqBlocks != def.FreqBlocks {
		t.Errorf("FreqBlocks = %d, want %d", cfg.Forecast.FreqBlocks, def.FreqBlocks)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	match := `matches:
  - team: team7
    match: m3
    start: 1000
    end: 1600
    declarations: d.json
    occupancy: o.json
`
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no matches",
			yaml:    "scenario:\n  bandwidth: 10\n",
			wantErr: "at least one match",
		},
		{
			name: "missing team",
			yaml: `matches:
  - match: m3
    start: 0
    end: 1
    declarations: d.json
    occupancy: o.json
`,
			wantErr: "matches[0].team is required",
		},
		{
			name: "missing occupancy",
			yaml: `matches:
  - team: team7
    match: m3
    start: 0
    end: 1
    declarations: d.json
`,
			wantErr: "matches[0].occupancy is required for team7",
		},
		{
			name: "empty window",
			yaml: `matches:
  - team: team7
    match: m3
    start: 10
    end: 10
    declarations: d.json
    occupancy: o.json
`,
			wantErr: "empty match window",
		},
		{
			name:    "duplicate match",
			yaml:    match + strings.TrimPrefix(match, "matches:\n"),
			wantErr: "duplicate match team7/m3",
		},
		{
			name:    "negative quantum",
			yaml:    "quantum:\n  time: -1\n  freq: 1\n" + match,
			wantErr: "quantum must be positive",
		},
		{
			name:    "bad render format",
			yaml:    "render:\n  format: pdf\n" + match,
			wantErr: "render.format",
		},
		{
			name:    "forecast without bandwidth",
			yaml:    "forecast:\n  enabled: true\n" + match,
			wantErr: "scenario.bandwidth is required",
		},
		{
			name:    "negative workers",
			yaml:    "workers: -2\n" + match,
			wantErr: "workers must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// SaveConfig
// ---------------------------------------------------------------------------

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg := &Config{
		Scenario: Scenario{CenterFrequency: 1e9, Bandwidth: 2e7},
		Matches: []MatchConfig{{
			Team: "team7", Match: "m3", Start: 1000, End: 1600,
			Declarations: "/abs/d.json", Occupancy: "/abs/o.json",
		}},
	}
	cfg.ApplyDefaults()

	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.Scenario != cfg.Scenario {
		t.Errorf("Scenario = %+v, want %+v", got.Scenario, cfg.Scenario)
	}
	if got.Matches[0] != cfg.Matches[0] {
		t.Errorf("Matches[0] = %+v, want %+v", got.Matches[0], cfg.Matches[0])
	}
}

func TestSaveConfig_BadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "cfg.yaml")
	if err := SaveConfig(path, &Config{}); err == nil {
		t.Fatal("expected error writing to a missing directory")
	}
}

func TestLoadConfig_PartialThresholds(t *testing.T) {
	body := validConfigYAML() + `thresholds:
  historical:
    inVoxel: 0.4
    outOfVoxel: 0.4
  predictedFloor:
    outOfVoxel: 0.2
`
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := Thresholds{
		Historical:     ErrorLimits{InVoxel: 0.4, OutOfVoxel: 0.4},
		PredictedFloor: ErrorLimits{InVoxel: 0.10, OutOfVoxel: 0.2},
	}
	if cfg.Thresholds != want {
		t.Errorf("Thresholds = %+v, want %+v", cfg.Thresholds, want)
	}

	perfect := StreamScore{}
	if res := JudgePredicted(perfect, nil, cfg.Thresholds); !res.Pass {
		t.Errorf("a perfect predicted stream must pass against the floors, got %+v", res)
	}
}

func TestLoadConfig_RenderFormats(t *testing.T) {
	for _, format := range RenderFormats {
		t.Run(format, func(t *testing.T) {
			body := validConfigYAML() + "render:\n  format: " + format + "\n"
			cfg, err := LoadConfig(writeConfig(t, body))
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			if cfg.Render.Format != format {
				t.Errorf("Render.Format = %q, want %q", cfg.Render.Format, format)
			}
		})
	}
}
