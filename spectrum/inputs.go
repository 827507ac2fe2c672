package spectrum

import (
	"fmt"
	"path/filepath"
	"strings"
)

// LoadMatchInput reads the declarations, occupancy and optional baseline of
// one configured match.
func LoadMatchInput(cfg *Config, mc MatchConfig) (MatchInput, error) {
	match := mc.Window()
	in := MatchInput{
		Team:   mc.Team,
		Match:  mc.Match,
		Source: mc.Source,
		Window: match,
	}

	decls, err := ParseDeclarationsFile(mc.Declarations, match, cfg.Scenario)
	if err != nil {
		return in, fmt.Errorf("loading declarations for %s/%s: %w", mc.Team, mc.Match, err)
	}
	in.Declarations = decls

	grid, err := LoadOccupancy(cfg, mc.Occupancy)
	if err != nil {
		return in, fmt.Errorf("loading occupancy for %s/%s: %w", mc.Team, mc.Match, err)
	}
	in.Occupancy = grid

	if mc.Baseline != "" {
		baseline, err := ParseDeclarationsFile(mc.Baseline, match, cfg.Scenario)
		if err != nil {
			return in, fmt.Errorf("loading baseline for %s/%s: %w", mc.Team, mc.Match, err)
		}
		in.Baseline = baseline
	}
	return in, nil
}

// LoadOccupancy reads ground truth from path. Observer captures (.bin, .dat)
// may be given as a glob; every matching capture is ORed into one grid.
// Anything else is read as an occupancy grid JSON file.
func LoadOccupancy(cfg *Config, path string) (*OccupancyGrid, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bin", ".dat":
		paths, err := filepath.Glob(path)
		if err != nil {
			return nil, fmt.Errorf("matching observer files %s: %w", path, err)
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("no observer files match %s: %w", path, ErrNoOccupancy)
		}
		return ReadObserverFiles(cfg.Scenario, cfg.Occupancy, paths...)
	default:
		return ReadOccupancyFile(path)
	}
}
