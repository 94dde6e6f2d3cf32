// Package render draws the cleaner scatter: valid points, excluded points and
// the curve being edited.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/datacleaner/internal/geom"
)

// Scene is everything drawn on one scatter.
type Scene struct {
	Title        string
	XLabel       string
	YLabel       string
	Valid        []geom.Point
	Excluded     []geom.Point
	Curve        []geom.Point
	Closed       bool
	ShowExcluded bool
}

var (
	validColor    = color.RGBA{R: 0xbb, G: 0xbb, B: 0xbb, A: 0xff}
	excludedColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	closedColor   = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
	openColor     = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

func hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (s Scene) curveColor() color.RGBA {
	if s.Closed {
		return closedColor
	}
	return openColor
}

// Range is an axis extent.
type Range struct {
	Min, Max float64
}

// Bounds returns padded axis ranges covering every drawn point. An empty
// scene gets unit ranges.
func (s Scene) Bounds() (x, y Range) {
	var xs, ys []float64
	add := func(pts []geom.Point) {
		for _, p := range pts {
			xs = append(xs, p.X())
			ys = append(ys, p.Y())
		}
	}
	add(s.Valid)
	if s.ShowExcluded {
		add(s.Excluded)
	}
	add(s.Curve)
	return pad(xs), pad(ys)
}

func pad(vals []float64) Range {
	if len(vals) == 0 {
		return Range{0, 1}
	}
	lo, hi := floats.Min(vals), floats.Max(vals)
	if lo == hi {
		return Range{lo - 1, hi + 1}
	}
	margin := 0.05 * (hi - lo)
	return Range{lo - margin, hi + margin}
}

func xys(pts []geom.Point) plotter.XYs {
	out := make(plotter.XYs, len(pts))
	for i, p := range pts {
		out[i] = plotter.XY{X: p.X(), Y: p.Y()}
	}
	return out
}

// Plot builds the gonum plot for the scene.
func (s Scene) Plot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = s.XLabel
	p.Y.Label.Text = s.YLabel

	xr, yr := s.Bounds()
	p.X.Min, p.X.Max = xr.Min, xr.Max
	p.Y.Min, p.Y.Max = yr.Min, yr.Max

	if len(s.Valid) > 0 {
		sc, err := plotter.NewScatter(xys(s.Valid))
		if err != nil {
			return nil, fmt.Errorf("valid points: %w", err)
		}
		sc.GlyphStyle.Color = validColor
		sc.GlyphStyle.Radius = vg.Points(1.5)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add("valid", sc)
	}

	if s.ShowExcluded && len(s.Excluded) > 0 {
		sc, err := plotter.NewScatter(xys(s.Excluded))
		if err != nil {
			return nil, fmt.Errorf("excluded points: %w", err)
		}
		sc.GlyphStyle.Color = excludedColor
		sc.GlyphStyle.Radius = vg.Points(1.5)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add("excluded", sc)
	}

	if len(s.Curve) > 0 {
		outline := s.Curve
		if s.Closed {
			outline = append(append([]geom.Point(nil), s.Curve...), s.Curve[0])
		}
		line, pts, err := plotter.NewLinePoints(xys(outline))
		if err != nil {
			return nil, fmt.Errorf("curve: %w", err)
		}
		line.Color = s.curveColor()
		line.Width = vg.Points(1)
		pts.GlyphStyle.Color = s.curveColor()
		pts.GlyphStyle.Shape = draw.CircleGlyph{}
		pts.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(line, pts)
		p.Legend.Add("curve", line)
	}

	return p, nil
}

// PNG writes the scene as a PNG image of the given size.
func PNG(w io.Writer, s Scene, width, height vg.Length) error {
	p, err := s.Plot()
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG writes the scene to path, creating its directory when needed.
func SavePNG(path string, s Scene) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	p, err := s.Plot()
	if err != nil {
		return err
	}
	return p.Save(10*vg.Inch, 8*vg.Inch, path)
}

func scatterData(pts []geom.Point) []opts.ScatterData {
	data := make([]opts.ScatterData, len(pts))
	for i, p := range pts {
		data[i] = opts.ScatterData{Value: []interface{}{p.X(), p.Y()}}
	}
	return data
}

// HTML writes an interactive go-echarts page of the scene.
func HTML(w io.Writer, s Scene) error {
	xr, yr := s.Bounds()
	state := "open"
	if s.Closed {
		state = "closed"
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Data cleaner", Width: "900px", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    s.Title,
			Subtitle: fmt.Sprintf("valid=%d excluded=%d curve=%d (%s)", len(s.Valid), len(s.Excluded), len(s.Curve), state),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Min: xr.Min, Max: xr.Max, Name: s.XLabel, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: yr.Min, Max: yr.Max, Name: s.YLabel, NameLocation: "middle", NameGap: 40}),
	)

	scatter.AddSeries("valid", scatterData(s.Valid),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: hex(validColor)}),
	)
	if s.ShowExcluded {
		scatter.AddSeries("excluded", scatterData(s.Excluded),
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hex(excludedColor)}),
		)
	}
	if len(s.Curve) > 0 {
		scatter.AddSeries("curve", scatterData(s.Curve),
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hex(s.curveColor())}),
		)
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
