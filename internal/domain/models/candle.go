package models

import "time"

// Candle represents an OHLCV record used as forecast history.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// ForecastPublished is the event emitted after a forecast is produced.
type ForecastPublished struct {
	ForecastID string    `json:"forecast_id"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Anchor     time.Time `json:"anchor"`
	Steps      int       `json:"steps"`
	Partial    bool      `json:"partial"`
	Last       float64   `json:"last"`
	Forecast   *Forecast `json:"forecast"`
}

// BackfillRequest asks for a forecast anchored in the past, re-anchored to
// the observations that followed the anchor.
type BackfillRequest struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Anchor    time.Time `json:"anchor"`
	Horizon   int       `json:"horizon"`
	RefPrice  float64   `json:"ref_price,omitempty"`
	N         int       `json:"n,omitempty"`
}
