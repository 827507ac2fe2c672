package spectrum

import (
	"image/color"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha
// This is needed for the canvas library which expects premultiplied RGBA
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// VectorRenderer renders a scored match's regions as vector graphics. The
// plot spans Width x Height millimetres with time on X and frequency on Y.
type VectorRenderer struct {
	Result     *MatchResult
	Quantum    Quantum
	Colors     map[string]LayerColor
	Width      float64
	Height     float64
	Padding    float64
	Resolution canvas.Resolution // Resolution for PNG output
	// Outline draws rectangle edges, which shows the canonical decomposition.
	Outline bool
}

// NewVectorRenderer creates a vector renderer from the render config.
func NewVectorRenderer(res *MatchResult, q Quantum, cfg RenderConfig) *VectorRenderer {
	r := &VectorRenderer{
		Result:     res,
		Quantum:    q,
		Colors:     DefaultLayerColors(),
		Width:      cfg.Width,
		Height:     cfg.Height,
		Padding:    5,
		Resolution: canvas.DPI(cfg.Resolution),
	}
	if r.Width <= 0 {
		r.Width = 300
	}
	if r.Height <= 0 {
		r.Height = 160
	}
	if cfg.Resolution <= 0 {
		r.Resolution = canvas.DPI(96)
	}
	return r
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the plot as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	svgRenderer := svg.New(w, r.Width, r.Height, nil)
	r.renderToCanvas(svgRenderer)
	return svgRenderer.Close()
}

// RenderToPNG writes the plot as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	rast := rasterizer.New(r.Width, r.Height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast)
	return png.Encode(w, rast)
}

// renderToCanvas draws the layers back to front (shared logic for SVG and PNG)
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(r.Width, r.Height), bgStyle, canvas.Identity)

	layers := resultLayers(r.Result)
	b, ok := plotBound(r.Quantum, layers)
	if !ok || b.Max[0] <= b.Min[0] || b.Max[1] <= b.Min[1] {
		return
	}

	plotW := r.Width - 2*r.Padding
	plotH := r.Height - 2*r.Padding
	sx := plotW / (b.Max[0] - b.Min[0])
	sy := plotH / (b.Max[1] - b.Min[1])

	for _, name := range layerOrder {
		lc := r.Colors[name]
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: nrgbaToRGBA(lc.Fill)}
		style.Stroke = canvas.Paint{Color: canvas.Transparent}
		if r.Outline {
			style.Stroke = canvas.Paint{Color: nrgbaToRGBA(lc.Stroke)}
			style.StrokeWidth = 0.1
		}
		for _, rect := range layers[name].rects {
			x := r.Padding + (r.Quantum.Seconds(rect.T0)-b.Min[0])*sx
			y := r.Padding + (r.Quantum.Hz(rect.F0)-b.Min[1])*sy
			w := float64(rect.T1-rect.T0) * r.Quantum.Time * sx
			h := float64(rect.F1-rect.F0) * r.Quantum.Freq * sy
			renderer.RenderPath(canvas.Rectangle(w, h).Translate(x, y), style, canvas.Identity)
		}
	}

	frameStyle := canvas.DefaultStyle
	frameStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	frameStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	frameStyle.StrokeWidth = 0.3
	renderer.RenderPath(canvas.Rectangle(plotW, plotH).Translate(r.Padding, r.Padding), frameStyle, canvas.Identity)
}
