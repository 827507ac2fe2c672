package spectrum

import (
	"encoding/json"
	"fmt"
	"os"
)

// OccupancyGrid is a thresholded time-frequency pixel grid: frame i covers
// [TimeStart+i*DurationPerPixel, TimeStart+(i+1)*DurationPerPixel) in
// absolute seconds and bin k covers [FreqStart+k*BandwidthPerPixel, ...) Hz.
type OccupancyGrid struct {
	TimeStart         float64
	FreqStart         float64
	DurationPerPixel  float64
	BandwidthPerPixel float64
	Frames            int
	Bins              int
	bits              []bool
}

// NewOccupancyGrid returns an all-clear grid.
func NewOccupancyGrid(timeStart, freqStart, durationPerPixel, bandwidthPerPixel float64, frames, bins int) *OccupancyGrid {
	return &OccupancyGrid{
		TimeStart:         timeStart,
		FreqStart:         freqStart,
		DurationPerPixel:  durationPerPixel,
		BandwidthPerPixel: bandwidthPerPixel,
		Frames:            frames,
		Bins:              bins,
		bits:              make([]bool, frames*bins),
	}
}

// Empty reports whether the grid has no pixels at all. A grid with pixels
// that are all clear is not empty.
func (g *OccupancyGrid) Empty() bool {
	return g == nil || g.Frames <= 0 || g.Bins <= 0
}

// Set marks a pixel occupied. Out-of-range pixels are ignored.
func (g *OccupancyGrid) Set(frame, bin int) {
	if frame < 0 || frame >= g.Frames || bin < 0 || bin >= g.Bins {
		return
	}
	g.bits[frame*g.Bins+bin] = true
}

// At reports whether a pixel is occupied.
func (g *OccupancyGrid) At(frame, bin int) bool {
	if frame < 0 || frame >= g.Frames || bin < 0 || bin >= g.Bins {
		return false
	}
	return g.bits[frame*g.Bins+bin]
}

// Count returns the number of occupied pixels.
func (g *OccupancyGrid) Count() int {
	n := 0
	for _, b := range g.bits {
		if b {
			n++
		}
	}
	return n
}

// Tolerance returns the overlap tolerance of one pixel on the q lattice.
func (g *OccupancyGrid) Tolerance(q Quantum) Tolerance {
	return q.PixelTolerance(g.DurationPerPixel, g.BandwidthPerPixel)
}

// TimeEnd returns the absolute end of the last frame.
func (g *OccupancyGrid) TimeEnd() float64 {
	return g.TimeStart + float64(g.Frames)*g.DurationPerPixel
}

// FreqEnd returns the upper edge of the last bin.
func (g *OccupancyGrid) FreqEnd() float64 {
	return g.FreqStart + float64(g.Bins)*g.BandwidthPerPixel
}

// Region converts the occupied pixels to a Region with times measured from
// origin. Each frame contributes one rectangle per run of consecutive
// occupied bins; normalization then fuses identical runs across frames.
func (g *OccupancyGrid) Region(q Quantum, origin float64) Region {
	if g.Empty() {
		return Region{}
	}
	tEdge := func(i int) int64 { return q.TimeTicks(g.TimeStart + float64(i)*g.DurationPerPixel - origin) }
	fEdge := func(k int) int64 { return q.FreqTicks(g.FreqStart + float64(k)*g.BandwidthPerPixel) }

	var rects []Rect
	for i := 0; i < g.Frames; i++ {
		row := g.bits[i*g.Bins : (i+1)*g.Bins]
		for k := 0; k < g.Bins; {
			if !row[k] {
				k++
				continue
			}
			run := k
			for k < g.Bins && row[k] {
				k++
			}
			rects = append(rects, Rect{T0: tEdge(i), T1: tEdge(i + 1), F0: fEdge(run), F1: fEdge(k)})
		}
	}
	return NewRegion(rects...)
}

// gridJSON is the file form of a grid; occupied pixels are stored as a flat
// [frame, bin, frame, bin, ...] list.
type gridJSON struct {
	TimeStart         float64 `json:"timeStart"`
	FreqStart         float64 `json:"freqStart"`
	DurationPerPixel  float64 `json:"durationPerPixel"`
	BandwidthPerPixel float64 `json:"bandwidthPerPixel"`
	Frames            int     `json:"frames"`
	Bins              int     `json:"bins"`
	Pixels            []int   `json:"pixels"`
}

// MarshalJSON implements json.Marshaler.
func (g *OccupancyGrid) MarshalJSON() ([]byte, error) {
	out := gridJSON{
		TimeStart:         g.TimeStart,
		FreqStart:         g.FreqStart,
		DurationPerPixel:  g.DurationPerPixel,
		BandwidthPerPixel: g.BandwidthPerPixel,
		Frames:            g.Frames,
		Bins:              g.Bins,
		Pixels:            []int{},
	}
	for i := 0; i < g.Frames; i++ {
		for k := 0; k < g.Bins; k++ {
			if g.bits[i*g.Bins+k] {
				out.Pixels = append(out.Pixels, i, k)
			}
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *OccupancyGrid) UnmarshalJSON(data []byte) error {
	var in gridJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Frames < 0 || in.Bins < 0 {
		return fmt.Errorf("negative grid size %dx%d", in.Frames, in.Bins)
	}
	if in.Frames > 0 && in.Bins > 0 && (!(in.DurationPerPixel > 0) || !(in.BandwidthPerPixel > 0)) {
		return fmt.Errorf("pixel size must be positive, got %gs x %gHz", in.DurationPerPixel, in.BandwidthPerPixel)
	}
	if len(in.Pixels)%2 != 0 {
		return fmt.Errorf("pixel list has odd length %d", len(in.Pixels))
	}
	*g = *NewOccupancyGrid(in.TimeStart, in.FreqStart, in.DurationPerPixel, in.BandwidthPerPixel, in.Frames, in.Bins)
	for i := 0; i+1 < len(in.Pixels); i += 2 {
		g.Set(in.Pixels[i], in.Pixels[i+1])
	}
	return nil
}

// ReadOccupancyFile loads a grid from JSON, optionally zlib-compressed.
func ReadOccupancyFile(path string) (*OccupancyGrid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if isZlib(data) {
		if data, err = inflateZlib(data); err != nil {
			return nil, err
		}
	}
	var g OccupancyGrid
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing occupancy JSON: %w", err)
	}
	return &g, nil
}

// WriteOccupancyFile writes g as JSON.
func WriteOccupancyFile(path string, g *OccupancyGrid) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshaling occupancy: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
