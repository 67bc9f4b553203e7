package trend

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Summary describes how far a trend sits from its raw series and how much
// smoother it is.
type Summary struct {
	RMSE           float64 `json:"rmse"`
	ResidualStd    float64 `json:"residual_std"`
	RawRoughness   float64 `json:"raw_roughness"`
	TrendRoughness float64 `json:"trend_roughness"`
}

// Roughness is the variance of the first differences of y. Series shorter
// than two samples have roughness 0.
func Roughness(y []float64) float64 {
	if len(y) < 2 {
		return 0
	}
	diffs := make(stats.Float64Data, len(y)-1)
	for i := 1; i < len(y); i++ {
		diffs[i-1] = y[i] - y[i-1]
	}
	v, err := stats.Variance(diffs)
	if err != nil {
		return 0
	}
	return v
}

// MeanSquaredDeviation returns the mean of (a[i]-b[i])² over the common
// prefix of a and b.
func MeanSquaredDeviation(a, b []float64) float64 {
	sq := squaredResiduals(a, b)
	m, err := stats.Mean(sq)
	if err != nil {
		return 0
	}
	return m
}

// Summarize compares a raw series with its trend.
func Summarize(raw, smoothed []float64) Summary {
	s := Summary{
		RMSE:           math.Sqrt(MeanSquaredDeviation(raw, smoothed)),
		RawRoughness:   Roughness(raw),
		TrendRoughness: Roughness(smoothed),
	}
	n := min(len(raw), len(smoothed))
	if n == 0 {
		return s
	}
	res := make(stats.Float64Data, n)
	for i := range res {
		res[i] = raw[i] - smoothed[i]
	}
	if sd, err := stats.StandardDeviation(res); err == nil {
		s.ResidualStd = sd
	}
	return s
}

func squaredResiduals(a, b []float64) stats.Float64Data {
	n := min(len(a), len(b))
	out := make(stats.Float64Data, n)
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		out[i] = d * d
	}
	return out
}
