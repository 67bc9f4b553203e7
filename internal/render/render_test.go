package render

import (
	"bytes"
	"errors"
	"image/png"
	"math"
	"testing"
	"time"
)

func samples(n int, f func(i int) float64) ([]time.Time, []float64) {
	base := time.Date(2012, 3, 1, 0, 0, 0, 0, time.UTC)
	x := make([]time.Time, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = base.Add(time.Duration(i) * time.Hour)
		y[i] = f(i)
	}
	return x, y
}

func TestTrendPNG_Dimensions(t *testing.T) {
	x, raw := samples(500, func(i int) float64 { return math.Sin(float64(i) / 20) })
	smoothed := make([]float64, len(raw))
	copy(smoothed, raw)

	var buf bytes.Buffer
	err := TrendPNG(&buf, Plot{Column: "conductance", X: x, Raw: raw, Smoothed: smoothed, Width: 640, Height: 240})
	if err != nil {
		t.Fatalf("TrendPNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 480 {
		t.Errorf("size=%dx%d, want 640x480", b.Dx(), b.Dy())
	}
}

func TestTrendPNG_Defaults(t *testing.T) {
	_, raw := samples(10, func(i int) float64 { return float64(i) })
	var buf bytes.Buffer
	if err := TrendPNG(&buf, Plot{Column: "c", Raw: raw, Smoothed: raw}); err != nil {
		t.Fatalf("TrendPNG without x: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != DefaultWidth || b.Dy() != 2*DefaultHeight {
		t.Errorf("size=%dx%d", b.Dx(), b.Dy())
	}
}

func TestTrendPNG_ConstantSeries(t *testing.T) {
	x, raw := samples(50, func(int) float64 { return 7.5 })
	var buf bytes.Buffer
	if err := TrendPNG(&buf, Plot{Column: "c", X: x, Raw: raw, Smoothed: raw, Width: 400, Height: 200}); err != nil {
		t.Fatalf("constant series should render: %v", err)
	}
}

func TestTrendPNG_Errors(t *testing.T) {
	x, raw := samples(5, func(i int) float64 { return float64(i) })

	var buf bytes.Buffer
	if err := TrendPNG(&buf, Plot{X: x[:1], Raw: raw[:1], Smoothed: raw[:1]}); !errors.Is(err, ErrTooFewPoints) {
		t.Errorf("one point: got %v", err)
	}
	if err := TrendPNG(&buf, Plot{X: x, Raw: raw, Smoothed: raw[:4]}); err == nil {
		t.Error("expected length mismatch error")
	}
	if err := TrendPNG(&buf, Plot{X: x[:3], Raw: raw, Smoothed: raw}); err == nil {
		t.Error("expected axis length mismatch error")
	}
}

func TestYRange(t *testing.T) {
	if r := yRange([]float64{1, 2, 3}); r != nil {
		t.Errorf("varying series should auto-scale, got %v", r)
	}
	r := yRange([]float64{4, 4, 4})
	if r == nil || r.GetMin() != 3 || r.GetMax() != 5 {
		t.Errorf("flat series range = %v", r)
	}
}
