package spectrum

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the scoring configuration from a YAML file, fills
// defaults and validates it. Relative input, store and output paths are
// resolved against the config file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i := range config.Matches {
		mc := &config.Matches[i]
		mc.Declarations = resolvePath(base, mc.Declarations)
		mc.Occupancy = resolvePath(base, mc.Occupancy)
		mc.Baseline = resolvePath(base, mc.Baseline)
	}
	config.Store.Path = resolvePath(base, config.Store.Path)
	config.OutputDir = resolvePath(base, config.OutputDir)
	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ApplyDefaults fills every unset parameter.
func (c *Config) ApplyDefaults() {
	if c.Quantum.Time == 0 && c.Quantum.Freq == 0 {
		c.Quantum = DefaultQuantum()
	}
	c.Thresholds.applyDefaults()
	if c.Occupancy.RFThreshold == 0 {
		c.Occupancy.RFThreshold = -60
	}
	if c.Forecast.Enabled {
		def := DefaultForecastConfig()
		if c.Forecast.TimeBlock == 0 {
			c.Forecast.TimeBlock = def.TimeBlock
		}
		if c.Forecast.FreqBlocks == 0 {
			c.Forecast.FreqBlocks = def.FreqBlocks
		}
		if c.Forecast.TrainingLen == 0 {
			c.Forecast.TrainingLen = def.TrainingLen
		}
		if c.Forecast.PredictionLen == 0 {
			c.Forecast.PredictionLen = def.PredictionLen
		}
		if c.Forecast.Lags == 0 {
			c.Forecast.Lags = def.Lags
		}
		if c.Forecast.ConstantTolerance == 0 {
			c.Forecast.ConstantTolerance = def.ConstantTolerance
		}
	}
	if c.Render.Format == "" {
		c.Render.Format = "svg"
	}
	if c.Render.Resolution == 0 {
		c.Render.Resolution = 96
	}
	if c.Render.Width == 0 {
		c.Render.Width = 300
	}
	if c.Render.Height == 0 {
		c.Render.Height = 160
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "voxelscore"
	}
	if c.OutputDir == "" {
		c.OutputDir = "reports"
	}
}

// Validate checks required fields and parameter ranges.
func (c *Config) Validate() error {
	if err := c.Quantum.Validate(); err != nil {
		return err
	}
	if c.Forecast.Enabled {
		if err := c.Forecast.Validate(); err != nil {
			return err
		}
		if !(c.Scenario.Bandwidth > 0) {
			return fmt.Errorf("scenario.bandwidth is required when forecast is enabled")
		}
	}
	if !ValidRenderFormat(c.Render.Format) {
		return fmt.Errorf("render.format must be one of %s, got %q", strings.Join(RenderFormats, ", "), c.Render.Format)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if len(c.Matches) == 0 {
		return fmt.Errorf("at least one match must be defined")
	}

	seen := make(map[string]bool)
	for i, mc := range c.Matches {
		if mc.Team == "" {
			return fmt.Errorf("matches[%d].team is required", i)
		}
		if mc.Match == "" {
			return fmt.Errorf("matches[%d].match is required for %s", i, mc.Team)
		}
		if mc.Declarations == "" {
			return fmt.Errorf("matches[%d].declarations is required for %s", i, mc.Team)
		}
		if mc.Occupancy == "" {
			return fmt.Errorf("matches[%d].occupancy is required for %s", i, mc.Team)
		}
		if err := mc.Window().Validate(); err != nil {
			return fmt.Errorf("matches[%d]: %w", i, err)
		}
		key := mc.Team + "/" + mc.Match
		if seen[key] {
			return fmt.Errorf("matches[%d]: duplicate match %s", i, key)
		}
		seen[key] = true
	}
	return nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
