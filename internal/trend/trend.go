// Package trend extracts a smooth trend from a uniformly sampled numeric
// series with a Savitzky-Golay filter: every output point is the value at
// that position of a least-squares polynomial fitted over a sliding window.
package trend

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidParameter is returned when window length or polynomial order
	// cannot be used for the given series.
	ErrInvalidParameter = errors.New("trend: invalid parameter")

	// ErrInvalidInput is returned for empty series, non-finite samples, or
	// an x-axis whose length differs from the values.
	ErrInvalidInput = errors.New("trend: invalid input")
)

// Params controls the filter. WindowLength counts samples, PolyOrder is the
// degree of the fitted polynomial.
type Params struct {
	WindowLength int `json:"window_length"`
	PolyOrder    int `json:"poly_order"`
}

// DefaultParams returns the parameters used when a caller supplies none.
func DefaultParams() Params {
	return Params{WindowLength: 11, PolyOrder: 2}
}

// Normalize bumps an even window length to the next odd number.
func (p Params) Normalize() Params {
	if p.WindowLength%2 == 0 {
		p.WindowLength++
	}
	return p
}

// Validate checks p against a series of n samples and returns the
// effective (normalized) parameters.
func (p Params) Validate(n int) (Params, error) {
	if p.WindowLength < 1 {
		return p, fmt.Errorf("%w: window_length %d must be a positive integer", ErrInvalidParameter, p.WindowLength)
	}
	if p.PolyOrder < 0 {
		return p, fmt.Errorf("%w: poly_order %d must be non-negative", ErrInvalidParameter, p.PolyOrder)
	}
	eff := p.Normalize()
	if eff.WindowLength <= eff.PolyOrder {
		return eff, fmt.Errorf("%w: window_length %d must be greater than poly_order %d",
			ErrInvalidParameter, eff.WindowLength, eff.PolyOrder)
	}
	if eff.WindowLength > n {
		return eff, fmt.Errorf("%w: window_length %d exceeds series length %d",
			ErrInvalidParameter, eff.WindowLength, n)
	}
	return eff, nil
}

// ExtractTrend smooths y and returns a new slice of the same length.
//
// x is the time axis. It only has to line up with y; samples are treated as
// equally spaced regardless of the actual gaps between x values. A nil x is
// accepted when no axis is available.
//
// An even WindowLength is silently replaced by WindowLength+1, so results
// for window 10 and window 11 are identical.
func ExtractTrend[X any](x []X, y []float64, p Params) ([]float64, error) {
	if x != nil && len(x) != len(y) {
		return nil, fmt.Errorf("%w: x has %d samples, y has %d", ErrInvalidInput, len(x), len(y))
	}
	return Filter(y, p)
}

// Filter is ExtractTrend without an x-axis.
func Filter(y []float64, p Params) ([]float64, error) {
	if err := checkValues(y); err != nil {
		return nil, err
	}
	eff, err := p.Validate(len(y))
	if err != nil {
		return nil, err
	}
	return smooth(y, eff.WindowLength, eff.PolyOrder)
}

func checkValues(y []float64) error {
	if len(y) == 0 {
		return fmt.Errorf("%w: empty series", ErrInvalidInput)
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: y[%d] is not finite", ErrInvalidInput, i)
		}
	}
	return nil
}
