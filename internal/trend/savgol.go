package trend

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ParallelThreshold is the series length from which smoothing is split
// across goroutines. Output is identical either way.
var ParallelThreshold = 1 << 16

// fit holds everything needed to smooth one series. Memory is linear in the
// window: no window×window matrix is ever built.
type fit struct {
	window int
	half   int
	order  int
	scale  float64

	// centre are the convolution weights of an interior point.
	centre []float64
	// head and tail are the polynomial coefficients fitted to the first and
	// last full window, in scaled positions.
	head, tail []float64
}

// newFit factorizes the window's Vandermonde matrix once and derives the
// centre weights and both edge polynomials from it.
//
// Positions are scaled to [-1, 1] so that high orders stay well conditioned.
func newFit(y []float64, window, order int) (*fit, error) {
	f := &fit{window: window, half: window / 2, order: order, scale: float64(window / 2)}
	if f.scale == 0 {
		f.scale = 1
	}
	cols := order + 1

	v := mat.NewDense(window, cols, nil)
	for i := 0; i < window; i++ {
		v.SetRow(i, f.powers(i))
	}

	var qr mat.QR
	qr.Factorize(v)

	// Minimum-norm solution of Vᵀ·w = v(half) is w = V(VᵀV)⁻¹v(half),
	// the centre row of the hat matrix.
	var w mat.VecDense
	if err := qr.SolveVecTo(&w, true, mat.NewVecDense(cols, f.powers(f.half))); err != nil {
		return nil, fmt.Errorf("trend: centre weights: %w", err)
	}
	f.centre = w.RawVector().Data

	n := len(y)
	var err error
	if f.head, err = f.solve(&qr, y[:window]); err != nil {
		return nil, err
	}
	if f.tail, err = f.solve(&qr, y[n-window:]); err != nil {
		return nil, err
	}
	return f, nil
}

// powers returns 1, t, t², ... for window position i.
func (f *fit) powers(i int) []float64 {
	t := float64(i-f.half) / f.scale
	out := make([]float64, f.order+1)
	p := 1.0
	for j := range out {
		out[j] = p
		p *= t
	}
	return out
}

// solve returns the least-squares polynomial coefficients for seg.
func (f *fit) solve(qr *mat.QR, seg []float64) ([]float64, error) {
	b := mat.NewVecDense(len(seg), append([]float64(nil), seg...))
	var c mat.VecDense
	if err := qr.SolveVecTo(&c, false, b); err != nil {
		return nil, fmt.Errorf("trend: edge fit: %w", err)
	}
	return c.RawVector().Data, nil
}

// eval evaluates coefficients c at window position i (Horner).
func (f *fit) eval(c []float64, i int) float64 {
	t := float64(i-f.half) / f.scale
	var acc float64
	for j := len(c) - 1; j >= 0; j-- {
		acc = acc*t + c[j]
	}
	return acc
}

// smooth expects parameters that already passed Validate.
func smooth(y []float64, window, order int) ([]float64, error) {
	f, err := newFit(y, window, order)
	if err != nil {
		return nil, err
	}
	n := len(y)
	out := make([]float64, n)

	if n < ParallelThreshold {
		f.apply(y, out, 0, n)
		return out, nil
	}

	workers := runtime.GOMAXPROCS(0)
	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		lo := lo
		hi := min(lo+chunk, n)
		g.Go(func() error {
			f.apply(y, out, lo, hi)
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// apply fills out[lo:hi]. Interior points use the centre weights. The first
// and last half-window points evaluate the polynomial fitted to the first or
// last full window at their own offset, so no padding is needed.
func (f *fit) apply(y, out []float64, lo, hi int) {
	n := len(y)
	for i := lo; i < hi; i++ {
		switch {
		case i < f.half:
			out[i] = f.eval(f.head, i)
		case i >= n-f.half:
			out[i] = f.eval(f.tail, f.window-(n-i))
		default:
			start := i - f.half
			var acc float64
			for j, c := range f.centre {
				acc += c * y[start+j]
			}
			out[i] = acc
		}
	}
}
