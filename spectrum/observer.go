package spectrum

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sirupsen/logrus"
)

// observerHeader is the packed little-endian header of an observer capture.
type observerHeader struct {
	NFFT        uint32
	FramePeriod float64
	T0Int       uint64
	T0Frac      float64
}

// maxNFFT bounds the per-row allocation for corrupt headers.
const maxNFFT = 1 << 20

// ReadObserverFiles reads one or more binary observer captures of the same
// band, thresholds every FFT bin at cfg.RFThreshold dB and ORs the results
// into one grid. Frames missing from the capture are left clear. Timing comes
// from the first file.
func ReadObserverFiles(sc Scenario, cfg OccupancyConfig, paths ...string) (*OccupancyGrid, error) {
	if len(paths) == 0 {
		return nil, ErrNoOccupancy
	}
	var grid *OccupancyGrid
	for _, path := range paths {
		hdr, rows, err := readObserverFile(path, cfg.RFThreshold)
		if err != nil {
			return nil, fmt.Errorf("reading observer file %s: %w", path, err)
		}
		logrus.WithFields(logrus.Fields{
			"file":   path,
			"nfft":   hdr.NFFT,
			"frames": len(rows),
		}).Debug("read observer capture")

		if grid == nil {
			nfft := int(hdr.NFFT)
			binWidth := sc.Bandwidth / float64(nfft)
			// bin k is centered at fc + binWidth*(k - nfft/2)
			freqStart := sc.CenterFrequency - binWidth*float64(nfft/2) - binWidth/2
			grid = NewOccupancyGrid(float64(hdr.T0Int)+hdr.T0Frac, freqStart, hdr.FramePeriod, binWidth, 0, nfft)
		} else if int(hdr.NFFT) != grid.Bins {
			return nil, fmt.Errorf("observer file %s has nfft %d, expected %d", path, hdr.NFFT, grid.Bins)
		}
		for frame, bins := range rows {
			grid.grow(frame + 1)
			for k, on := range bins {
				if on {
					grid.Set(frame, k)
				}
			}
		}
	}
	return grid, nil
}

// grow extends the grid to at least frames frames.
func (g *OccupancyGrid) grow(frames int) {
	if frames <= g.Frames {
		return
	}
	bits := make([]bool, frames*g.Bins)
	copy(bits, g.bits)
	g.bits = bits
	g.Frames = frames
}

// readObserverFile returns the header and the thresholded rows keyed by
// frame number.
func readObserverFile(path string, threshold float64) (observerHeader, map[int][]bool, error) {
	var hdr observerHeader
	f, err := os.Open(path)
	if err != nil {
		return hdr, nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	r := bufio.NewReader(f)
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return hdr, nil, fmt.Errorf("reading header: %w", err)
	}
	if hdr.NFFT == 0 || hdr.NFFT > maxNFFT {
		return hdr, nil, fmt.Errorf("invalid nfft %d", hdr.NFFT)
	}
	if !(hdr.FramePeriod > 0) {
		return hdr, nil, fmt.Errorf("invalid frame period %g", hdr.FramePeriod)
	}

	rows := make(map[int][]bool)
	fft := make([]float32, hdr.NFFT)
	var prefix [2]uint32
	for {
		if err := binary.Read(r, binary.LittleEndian, &prefix); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return hdr, nil, fmt.Errorf("reading row header: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, fft); err != nil {
			return hdr, nil, fmt.Errorf("reading frame %d: %w", prefix[1], err)
		}
		frame := int(prefix[1])
		row, ok := rows[frame]
		if !ok {
			row = make([]bool, hdr.NFFT)
			rows[frame] = row
		}
		for k, v := range fft {
			if !math.IsNaN(float64(v)) && float64(v) >= threshold {
				row[k] = true
			}
		}
	}
	return hdr, rows, nil
}
