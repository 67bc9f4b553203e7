// Package render draws raw and smoothed series as a stacked two-panel PNG.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"math"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrTooFewPoints is returned for series that cannot span an axis.
var ErrTooFewPoints = errors.New("render: at least two points are required")

const (
	DefaultWidth  = 1200
	DefaultHeight = 360
)

var (
	rawColor    = drawing.ColorFromHex("1f77b4")
	smoothColor = drawing.ColorFromHex("ff7f0e")
)

// Plot is the input of TrendPNG. X may be nil, in which case samples are
// plotted against their index.
type Plot struct {
	Column   string
	X        []time.Time
	Raw      []float64
	Smoothed []float64
	Width    int
	Height   int
}

// TrendPNG writes the "Unfiltered" panel above the "Filtered" panel. The
// image is Width wide and twice Height tall.
func TrendPNG(w io.Writer, p Plot) error {
	n := len(p.Raw)
	if len(p.Smoothed) != n || (p.X != nil && len(p.X) != n) {
		return fmt.Errorf("render: length mismatch: x=%d raw=%d smoothed=%d", len(p.X), n, len(p.Smoothed))
	}
	if n < 2 {
		return ErrTooFewPoints
	}
	if p.Width <= 0 {
		p.Width = DefaultWidth
	}
	if p.Height <= 0 {
		p.Height = DefaultHeight
	}

	top, err := panel(p, "Unfiltered", p.Raw, rawColor)
	if err != nil {
		return err
	}
	bottom, err := panel(p, "Filtered", p.Smoothed, smoothColor)
	if err != nil {
		return err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, p.Width, 2*p.Height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(0, 0, p.Width, p.Height), top, top.Bounds().Min, draw.Src)
	draw.Draw(canvas, image.Rect(0, p.Height, p.Width, 2*p.Height), bottom, bottom.Bounds().Min, draw.Src)
	return png.Encode(w, canvas)
}

func panel(p Plot, title string, ys []float64, color drawing.Color) (image.Image, error) {
	style := chart.Style{StrokeColor: color, StrokeWidth: 1.5}
	name := fmt.Sprintf("%s (%s)", p.Column, title)

	var series chart.Series
	xAxis := chart.XAxis{}
	if useTime(p.X) {
		series = chart.TimeSeries{Name: name, XValues: p.X, YValues: ys, Style: style}
		xAxis.ValueFormatter = chart.TimeValueFormatterWithFormat(timeFormat(p.X))
	} else {
		xs := make([]float64, len(ys))
		for i := range xs {
			xs[i] = float64(i)
		}
		series = chart.ContinuousSeries{Name: name, XValues: xs, YValues: ys, Style: style}
	}

	c := chart.Chart{
		Title:      title,
		Width:      p.Width,
		Height:     p.Height,
		Background: chart.Style{Padding: chart.Box{Top: 36, Left: 16, Right: 16, Bottom: 12}},
		XAxis:      xAxis,
		YAxis:      chart.YAxis{Name: p.Column, Range: yRange(ys)},
		Series:     []chart.Series{series},
	}
	c.Elements = []chart.Renderable{chart.Legend(&c)}

	var buf bytes.Buffer
	if err := c.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render %s panel: %w", title, err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("decode %s panel: %w", title, err)
	}
	return img, nil
}

// useTime reports whether x spans a non-empty time range.
func useTime(x []time.Time) bool {
	if len(x) < 2 {
		return false
	}
	lo, hi := x[0], x[0]
	for _, t := range x[1:] {
		if t.Before(lo) {
			lo = t
		}
		if t.After(hi) {
			hi = t
		}
	}
	return hi.After(lo)
}

func timeFormat(x []time.Time) string {
	span := x[len(x)-1].Sub(x[0])
	switch {
	case span > 180*24*time.Hour:
		return "2006-01"
	case span > 2*24*time.Hour:
		return "01-02"
	default:
		return "01-02 15:04"
	}
}

// yRange pins flat series to ±1 around their value; go-chart cannot
// draw a zero-height range. Nil leaves the range to auto-scaling.
func yRange(ys []float64) chart.Range {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range ys {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi > lo {
		return nil
	}
	return &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
}
