package spectrum

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LayerColor defines how one region layer is drawn
type LayerColor struct {
	Fill   color.NRGBA
	Stroke color.NRGBA
}

// DefaultLayerColors returns the palette for the four region layers.
func DefaultLayerColors() map[string]LayerColor {
	return map[string]LayerColor{
		LayerOccupied: { // Grey
			Fill:   color.NRGBA{96, 96, 96, 200},
			Stroke: color.NRGBA{32, 32, 32, 255},
		},
		LayerHistorical: { // Blue
			Fill:   color.NRGBA{100, 149, 237, 110}, // Cornflower blue
			Stroke: color.NRGBA{0, 0, 139, 255},     // Dark blue
		},
		LayerPredicted: { // Red
			Fill:   color.NRGBA{255, 99, 71, 110}, // Tomato
			Stroke: color.NRGBA{139, 0, 0, 255},   // Dark red
		},
		LayerBaseline: { // Green
			Fill:   color.NRGBA{144, 238, 144, 90}, // Light green
			Stroke: color.NRGBA{0, 100, 0, 255},    // Dark green
		},
	}
}

// layerOrder is back to front.
var layerOrder = []string{LayerBaseline, LayerOccupied, LayerHistorical, LayerPredicted}

// resultLayers returns each layer's union region.
func resultLayers(res *MatchResult) map[string]Region {
	return map[string]Region{
		LayerOccupied:   res.Occupied,
		LayerHistorical: UnionAll(res.Historical),
		LayerPredicted:  UnionAll(PredictedAggregates(res.Predicted)),
		LayerBaseline:   UnionAll(PredictedAggregates(res.Baseline)),
	}
}

// plotBound returns the seconds-by-Hz extent covering every layer.
func plotBound(q Quantum, layers map[string]Region) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, name := range layerOrder {
		g := layers[name]
		if g.IsEmpty() {
			continue
		}
		if !found {
			b, found = g.OrbBound(q), true
			continue
		}
		b = b.Union(g.OrbBound(q))
	}
	return b, found
}

// RasterRenderer draws a quick-look PNG of a scored match: time runs left to
// right, frequency bottom to top.
type RasterRenderer struct {
	Result  *MatchResult
	Quantum Quantum
	Colors  map[string]LayerColor
	Width   int
	Height  int
	Padding int
}

// NewRasterRenderer creates a renderer with default settings
func NewRasterRenderer(res *MatchResult, q Quantum) *RasterRenderer {
	return &RasterRenderer{
		Result:  res,
		Quantum: q,
		Colors:  DefaultLayerColors(),
		Width:   1200,
		Height:  600,
		Padding: 20,
	}
}

// Render draws every non-empty layer and a legend.
func (r *RasterRenderer) Render() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	layers := resultLayers(r.Result)
	b, ok := plotBound(r.Quantum, layers)
	if !ok || b.Max[0] <= b.Min[0] || b.Max[1] <= b.Min[1] {
		drawText(img, r.Padding, r.Padding, "no regions", color.RGBA{0, 0, 0, 255})
		return img
	}

	plotW := float64(r.Width - 2*r.Padding)
	plotH := float64(r.Height - 2*r.Padding)
	toPixel := func(t, f float64) (int, int) {
		x := r.Padding + int((t-b.Min[0])/(b.Max[0]-b.Min[0])*plotW)
		y := r.Height - r.Padding - int((f-b.Min[1])/(b.Max[1]-b.Min[1])*plotH)
		return x, y
	}

	for _, name := range layerOrder {
		lc := r.Colors[name]
		for _, rect := range layers[name].rects {
			x0, y1 := toPixel(r.Quantum.Seconds(rect.T0), r.Quantum.Hz(rect.F0))
			x1, y0 := toPixel(r.Quantum.Seconds(rect.T1), r.Quantum.Hz(rect.F1))
			fillRect(img, x0, y0, max(x1, x0+1), max(y1, y0+1), lc.Fill)
		}
	}

	r.drawLegend(img, layers)
	return img
}

// SavePNG renders and writes the image to path.
func (r *RasterRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()
	return r.WritePNG(f)
}

// WritePNG renders and encodes the image to w.
func (r *RasterRenderer) WritePNG(w io.Writer) error {
	if err := png.Encode(w, r.Render()); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// drawLegend adds a legend with text labels to the image
func (r *RasterRenderer) drawLegend(img *image.RGBA, layers map[string]Region) {
	y := 15
	for _, name := range layerOrder {
		if layers[name].IsEmpty() {
			continue
		}
		lc := r.Colors[name]
		for dy := 0; dy < 12; dy++ {
			for dx := 0; dx < 12; dx++ {
				img.Set(10+dx, y+dy-6, lc.Stroke)
			}
		}
		label := fmt.Sprintf("%s (%.3g Hz*s)", name, r.Quantum.Area(layers[name]))
		drawText(img, 28, y+4, label, color.RGBA{0, 0, 0, 255})
		y += 18
	}
}

// fillRect alpha-blends c over [x0,x1) x [y0,y1).
func fillRect(img *image.RGBA, x0, y0, x1, y1 int, c color.NRGBA) {
	bounds := img.Bounds()
	x0, y0 = max(x0, bounds.Min.X), max(y0, bounds.Min.Y)
	x1, y1 = min(x1, bounds.Max.X), min(y1, bounds.Max.Y)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.Set(x, y, blendColors(img.RGBAAt(x, y), c))
		}
	}
}

// blendColors composites fg over an opaque bg.
func blendColors(bg color.RGBA, fg color.NRGBA) color.RGBA {
	a := uint32(fg.A)
	mix := func(b, f uint8) uint8 {
		return uint8((uint32(f)*a + uint32(b)*(255-a)) / 255)
	}
	return color.RGBA{mix(bg.R, fg.R), mix(bg.G, fg.G), mix(bg.B, fg.B), 255}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
