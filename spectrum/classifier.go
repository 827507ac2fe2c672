package spectrum

import (
	"github.com/sirupsen/logrus"
)

// Category is the stream a declaration is scored in.
type Category int

const (
	Ignored Category = iota
	Historical
	Predicted
)

func (c Category) String() string {
	switch c {
	case Historical:
		return "historical"
	case Predicted:
		return "predicted"
	default:
		return "ignored"
	}
}

// Classify decides which stream d belongs to. Declarations framed outside
// the match are ignored. Measured declarations are historical when some
// voxel starts before the frame; unmeasured ones are predicted when some
// voxel ends after it. Voxel validity is not considered here.
func Classify(d Declaration, match MatchWindow) Category {
	if !match.Contains(d.FrameTimestamp) {
		return Ignored
	}
	if d.MeasuredData {
		for _, v := range d.Voxels {
			if v.TimeStart < d.FrameTimestamp {
				return Historical
			}
		}
		return Ignored
	}
	for _, v := range d.Voxels {
		if v.TimeStop > d.FrameTimestamp {
			return Predicted
		}
	}
	return Ignored
}

// Classification is a declaration stream split by category, arrival order
// preserved within each stream.
type Classification struct {
	Historical []Declaration
	Predicted  []Declaration
	Ignored    int
}

// ClassifyAll splits decls. A non-empty source keeps only declarations sent
// by that source; the rest count as ignored.
func ClassifyAll(decls []Declaration, match MatchWindow, source string) Classification {
	var c Classification
	for _, d := range decls {
		if source != "" && d.SourceID != source {
			c.Ignored++
			continue
		}
		switch Classify(d, match) {
		case Historical:
			c.Historical = append(c.Historical, d)
		case Predicted:
			c.Predicted = append(c.Predicted, d)
		default:
			c.Ignored++
		}
	}
	logrus.WithFields(logrus.Fields{
		"historical": len(c.Historical),
		"predicted":  len(c.Predicted),
		"ignored":    c.Ignored,
	}).Debug("classified declarations")
	return c
}
