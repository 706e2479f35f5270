package models

import "time"

// Observation is one point of an observation series (a close price at a bar time).
type Observation struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// ForecastStep is one produced output of a rollout.
// Value always holds the constrained prediction; Actual is set when a real
// observation was known for the step and fed back instead of the prediction.
type ForecastStep struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Actual    *float64  `json:"actual,omitempty"`
}

// Forecast is the outcome of one forecast request.
type Forecast struct {
	ID             string         `json:"id"`
	Symbol         string         `json:"symbol"`
	Timeframe      string         `json:"timeframe"`
	CreatedAt      time.Time      `json:"created_at"`
	Anchor         time.Time      `json:"anchor"`
	ReferencePrice float64        `json:"reference_price"`
	Horizon        int            `json:"horizon"`
	WindowSize     int            `json:"window_size"`
	Predictor      string         `json:"predictor"`
	Backfilled     int            `json:"backfilled"`
	Steps          []ForecastStep `json:"steps"`
	Partial        bool           `json:"partial"`
	Error          string         `json:"error,omitempty"`
}

// Completed reports whether every requested step was produced.
func (f *Forecast) Completed() bool {
	return !f.Partial && len(f.Steps) == f.Horizon
}

// ObservationsFromCandles projects candle closes into an observation series.
func ObservationsFromCandles(cs []Candle) []Observation {
	out := make([]Observation, 0, len(cs))
	for _, c := range cs {
		out = append(out, Observation{Time: c.Bucket, Value: c.Close})
	}
	return out
}

// Values returns the observation values in order.
func Values(obs []Observation) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Value
	}
	return out
}
