package forecast

import "math"

// Scaler is a min/max normalization fit once from a reference sample.
// The zero value is not usable; build one with Fit.
type Scaler struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Fit computes the sample range. A flat or non-finite sample cannot be
// normalized and yields a DegenerateRangeError.
func Fit(sample []float64) (Scaler, error) {
	if len(sample) == 0 {
		return Scaler{}, &InsufficientHistoryError{Have: 0, Need: 1}
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range sample {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Scaler{}, &DegenerateRangeError{Reason: "sample contains non-finite value"}
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi <= lo {
		return Scaler{}, &DegenerateRangeError{Min: lo, Max: hi}
	}
	return Scaler{Min: lo, Max: hi}, nil
}

// Normalize maps a raw value into the fitted domain ([0,1] inside the sample range).
func (s Scaler) Normalize(v float64) float64 {
	return (v - s.Min) / (s.Max - s.Min)
}

// Denormalize is the inverse of Normalize.
func (s Scaler) Denormalize(n float64) float64 {
	return n*(s.Max-s.Min) + s.Min
}

// NormalizeAll maps every value of vs.
func (s Scaler) NormalizeAll(vs []float64) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = s.Normalize(v)
	}
	return out
}
