package engine

import "sensortrend/internal/trend"

// DefaultPolyOrder is the order preselected for a new column.
const DefaultPolyOrder = 2

// WindowBounds are the window slider limits offered for a series.
type WindowBounds struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Default int `json:"default"`
}

// Bounds returns slider limits for a series of n samples: [3, n/10] with
// default n/100, all clamped to [3, n]. A value that would normalize to an
// odd window past n is stepped down by one.
func Bounds(n int) WindowBounds {
	if n <= 0 {
		return WindowBounds{}
	}
	lo := min(3, n)
	hi := clamp(n/10, lo, n)
	def := clamp(n/100, lo, hi)
	return WindowBounds{
		Min:     fitOdd(lo, n),
		Max:     fitOdd(hi, n),
		Default: fitOdd(def, n),
	}
}

// PolyOrders returns the polynomial orders offered to the user.
func PolyOrders() []int {
	return []int{1, 2, 3, 4}
}

// SuggestedParams are the slider defaults for a series of n samples.
func SuggestedParams(n int) trend.Params {
	return trend.Params{WindowLength: Bounds(n).Default, PolyOrder: DefaultPolyOrder}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func fitOdd(v, n int) int {
	if v%2 == 0 && v+1 > n {
		return max(v-1, 1)
	}
	return v
}
