package spectrum

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// wireVoxel is a voxel as sent; any field may be omitted.
type wireVoxel struct {
	FreqStart *float64 `json:"freqStart"`
	FreqStop  *float64 `json:"freqStop"`
	TimeStart *float64 `json:"timeStart"`
	TimeStop  *float64 `json:"timeStop"`
	DutyCycle *float64 `json:"dutyCycle"`
	NOBW      float64  `json:"nobw,omitempty"`
}

type wireDeclaration struct {
	FrameTimestamp float64     `json:"frameTimestamp"`
	SourceID       string      `json:"sourceId"`
	DestinationID  string      `json:"destinationId"`
	MeasuredData   bool        `json:"measuredData"`
	Voxels         []wireVoxel `json:"voxels"`
}

// ParseDeclarationsFile reads a JSON array of declarations, optionally
// zlib-compressed, and fills omitted voxel fields from the match and scenario.
func ParseDeclarationsFile(path string, match MatchWindow, sc Scenario) ([]Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParseDeclarationsJSON(data, match, sc)
}

// ParseDeclarationsJSON parses declaration JSON data. Omitted times default
// to the match bounds, omitted frequencies to the scenario band edges and an
// omitted duty cycle to 1.0. Times stay absolute.
func ParseDeclarationsJSON(data []byte, match MatchWindow, sc Scenario) ([]Declaration, error) {
	if isZlib(data) {
		inflated, err := inflateZlib(data)
		if err != nil {
			return nil, err
		}
		data = inflated
	}

	var wire []wireDeclaration
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	lo, hi := sc.Band()
	out := make([]Declaration, len(wire))
	for i, w := range wire {
		d := Declaration{
			FrameTimestamp: w.FrameTimestamp,
			SourceID:       w.SourceID,
			DestinationID:  w.DestinationID,
			MeasuredData:   w.MeasuredData,
			Voxels:         make([]Voxel, len(w.Voxels)),
		}
		for j, wv := range w.Voxels {
			d.Voxels[j] = Voxel{
				FreqStart: valueOr(wv.FreqStart, lo),
				FreqStop:  valueOr(wv.FreqStop, hi),
				TimeStart: valueOr(wv.TimeStart, match.Start),
				TimeStop:  valueOr(wv.TimeStop, match.End),
				DutyCycle: valueOr(wv.DutyCycle, 1.0),
				NOBW:      wv.NOBW,
			}
		}
		out[i] = d
	}
	return out, nil
}

// WriteDeclarationsFile writes decls as indented JSON.
func WriteDeclarationsFile(path string, decls []Declaration) error {
	data, err := json.MarshalIndent(decls, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling declarations: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// ToMatchTime returns a copy of d with every time shifted to seconds after
// match start and voxel times clamped into [0, duration]. A voxel lying
// wholly outside the match collapses to zero duration.
func ToMatchTime(d Declaration, match MatchWindow) Declaration {
	end := match.Duration()
	clamp := func(t float64) float64 { return min(max(t-match.Start, 0), end) }

	out := d
	out.FrameTimestamp = d.FrameTimestamp - match.Start
	out.Voxels = make([]Voxel, len(d.Voxels))
	for i, v := range d.Voxels {
		v.TimeStart = clamp(v.TimeStart)
		v.TimeStop = clamp(v.TimeStop)
		out.Voxels[i] = v
	}
	return out
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// isZlib checks the two-byte zlib header.
func isZlib(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x78 && (uint16(data[0])<<8|uint16(data[1]))%31 == 0
}

func inflateZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing zlib data: %w", err)
	}
	return decompressed, nil
}
